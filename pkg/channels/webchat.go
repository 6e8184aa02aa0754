package channels

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sipeed/picochat/pkg/chat"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
)

//go:embed webchat.html
var webChatHTML []byte

const (
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = 64 * 1024
)

// WebChatChannel serves the browser widget. Every websocket connection is a
// page session with its own controller and history.
type WebChatChannel struct {
	*BaseChannel
	config   config.WebChatConfig
	upgrader websocket.Upgrader
	server   *http.Server
	sessions map[string]*webSession
	mu       sync.RWMutex
}

// client -> server
type webInbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// server -> client
type webOutbound struct {
	Type      string   `json:"type"`
	Role      string   `json:"role,omitempty"`
	Text      string   `json:"text,omitempty"`
	HTML      string   `json:"html,omitempty"`
	Value     *bool    `json:"value,omitempty"`
	Title     string   `json:"title,omitempty"`
	QuickAsks []string `json:"quick_asks,omitempty"`
}

func NewWebChatChannel(cfg config.WebChatConfig, widget config.WidgetConfig, answerer chat.Answerer, timeout time.Duration) *WebChatChannel {
	return &WebChatChannel{
		BaseChannel: NewBaseChannel("webchat", widget, answerer, timeout),
		config:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		sessions: make(map[string]*webSession),
	}
}

// Handler returns the widget routes.
func (c *WebChatChannel) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", c.handleUI)
	mux.HandleFunc("/ws", c.handleWS)
	mux.HandleFunc("/healthz", c.handleHealth)
	return mux
}

// Run serves until ctx is cancelled.
func (c *WebChatChannel) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("webchat listen %s: %w", addr, err)
	}
	return c.Serve(ctx, ln)
}

func (c *WebChatChannel) Serve(ctx context.Context, ln net.Listener) error {
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	c.setRunning(true)
	defer c.setRunning(false)

	logger.InfoCF("channels", "WebChat started", map[string]interface{}{"addr": ln.Addr().String()})

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webchat server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.closeSessions()
	if err := c.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webchat shutdown: %w", err)
	}
	logger.InfoC("channels", "WebChat stopped")
	return nil
}

// SessionCount reports the number of open page sessions.
func (c *WebChatChannel) SessionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *WebChatChannel) closeSessions() {
	c.mu.Lock()
	sessions := make([]*webSession, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

func (c *WebChatChannel) handleUI(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(webChatHTML)
}

func (c *WebChatChannel) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"sessions": c.SessionCount(),
	})
}

func (c *WebChatChannel) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("channels", "WebChat upgrade failed", map[string]interface{}{
			"remote": r.RemoteAddr,
			"error":  err.Error(),
		})
		return
	}
	conn.SetReadLimit(wsMaxMessage)

	ctx, cancel := context.WithCancel(context.Background())
	s := &webSession{
		id:     uuid.NewString(),
		conn:   conn,
		cancel: cancel,
	}
	s.ctrl = c.newController(s, s.id)

	c.mu.Lock()
	c.sessions[s.id] = s
	c.mu.Unlock()

	logger.InfoCF("channels", "WebChat session opened", map[string]interface{}{
		"session": s.id,
		"remote":  r.RemoteAddr,
	})

	defer func() {
		c.mu.Lock()
		delete(c.sessions, s.id)
		c.mu.Unlock()
		s.close()
		logger.InfoCF("channels", "WebChat session closed", map[string]interface{}{
			"session": s.id,
			"turns":   len(s.ctrl.History()) / 2,
		})
	}()

	s.write(webOutbound{Type: "init", Title: c.Title(), QuickAsks: c.QuickAsks()})
	c.readLoop(ctx, s)
}

func (c *WebChatChannel) readLoop(ctx context.Context, s *webSession) {
	for {
		var msg webInbound
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WarnCF("channels", "WebChat read failed", map[string]interface{}{
					"session": s.id,
					"error":   err.Error(),
				})
			}
			return
		}

		switch msg.Type {
		case "submit":
			s.ctrl.SubmitText(ctx, msg.Text)
		case "quick_ask":
			s.ctrl.QuickAsk(ctx, msg.Text)
		default:
			logger.DebugCF("channels", "WebChat unknown message", map[string]interface{}{
				"session": s.id,
				"type":    msg.Type,
			})
		}
	}
}

// webSession is one browser page: it implements chat.Display by pushing
// events to the page.
type webSession struct {
	id     string
	conn   *websocket.Conn
	ctrl   *chat.Controller
	cancel context.CancelFunc

	mu      sync.Mutex
	input   string
	writeMu sync.Mutex
	closed  bool
}

func (s *webSession) InputText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// SetInputText mirrors the page's input field. It does not echo back to the
// page; quick asks fill the field client-side.
func (s *webSession) SetInputText(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

func (s *webSession) ClearInput() {
	s.mu.Lock()
	s.input = ""
	s.mu.Unlock()
	s.write(webOutbound{Type: "input"})
}

func (s *webSession) RenderBubble(text string, role chat.Role) {
	out := webOutbound{Type: "bubble", Role: "user", Text: text}
	if role == chat.RoleAssistant {
		out.Role = "bot"
		out.HTML = renderMarkdown(text)
	}
	s.write(out)
}

func (s *webSession) SetSendDisabled(disabled bool) {
	s.write(webOutbound{Type: "send_disabled", Value: &disabled})
}

func (s *webSession) SetTypingVisible(visible bool) {
	s.write(webOutbound{Type: "typing", Value: &visible})
}

func (s *webSession) FocusInput() {
	s.write(webOutbound{Type: "focus"})
}

func (s *webSession) write(msg webOutbound) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.conn.WriteJSON(msg); err != nil {
		logger.DebugCF("channels", "WebChat write failed", map[string]interface{}{
			"session": s.id,
			"type":    msg.Type,
			"error":   err.Error(),
		})
	}
}

// close cancels any in-flight turn and closes the socket.
func (s *webSession) close() {
	s.cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = s.conn.Close()
}

// renderMarkdown turns a bot answer into HTML for the page. Raw HTML is
// dropped and links to anything but http, https, mailto or relative paths are
// rendered as plain text.
func renderMarkdown(text string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.SkipHTML | html.Safelink |
			html.NofollowLinks | html.NoopenerLinks | html.HrefTargetBlank,
	})
	return string(bytes.TrimSpace(markdown.ToHTML([]byte(text), p, r)))
}
