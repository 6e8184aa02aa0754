package channels

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sipeed/picochat/pkg/chat"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
)

// Channel is one display surface hosting chat sessions.
type Channel interface {
	Name() string
	Run(ctx context.Context) error
	IsRunning() bool
}

type BaseChannel struct {
	name     string
	widget   config.WidgetConfig
	answerer chat.Answerer
	timeout  time.Duration
	running  atomic.Bool
}

func NewBaseChannel(name string, widget config.WidgetConfig, answerer chat.Answerer, timeout time.Duration) *BaseChannel {
	return &BaseChannel{
		name:     name,
		widget:   widget,
		answerer: answerer,
		timeout:  timeout,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}

func (c *BaseChannel) Title() string {
	return c.widget.Title
}

func (c *BaseChannel) QuickAsks() []string {
	return append([]string(nil), c.widget.QuickAsks...)
}

// quickAsk returns the n-th suggestion, counting from 1.
func (c *BaseChannel) quickAsk(n int) (string, bool) {
	if n < 1 || n > len(c.widget.QuickAsks) {
		return "", false
	}
	return c.widget.QuickAsks[n-1], true
}

// newController starts a page session on display.
func (c *BaseChannel) newController(display chat.Display, session string) *chat.Controller {
	ctrl := chat.NewController(display, c.answerer)
	ctrl.SetTimeout(c.timeout)
	ctrl.SetStateListener(func(from, to chat.State) {
		logger.DebugCF("channels", "Turn state", map[string]interface{}{
			"channel": c.name,
			"session": session,
			"from":    from.String(),
			"to":      to.String(),
		})
	})
	return ctrl
}
