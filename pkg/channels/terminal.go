package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/readline"
	"golang.org/x/term"

	"github.com/sipeed/picochat/pkg/chat"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
)

const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiCyan   = "\033[36m"
	ansiGreen  = "\033[32m"
	clearLine  = "\r\033[K"
	cursorUp   = "\033[1A"
	typingText = "thinking…"
)

// TerminalChannel is a line-oriented chat in the current terminal. Waiting
// for the answer before prompting again is its disabled send affordance.
type TerminalChannel struct {
	*BaseChannel
	color bool
}

func NewTerminalChannel(widget config.WidgetConfig, answerer chat.Answerer, timeout time.Duration, color bool) *TerminalChannel {
	return &TerminalChannel{
		BaseChannel: NewBaseChannel("terminal", widget, answerer, timeout),
		color:       color,
	}
}

// ColorSupported reports whether f is a terminal that can take ANSI styling.
func ColorSupported(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) && os.Getenv("NO_COLOR") == ""
}

func (c *TerminalChannel) Run(ctx context.Context) error {
	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:          c.prompt(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("starting readline: %w", err)
	}
	defer rl.Close()

	c.setRunning(true)
	defer c.setRunning(false)

	display := newTerminalDisplay(rl, c.color)
	ctrl := c.newController(display, "tty")

	c.printBanner(rl)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "/") {
			if quit := c.command(ctx, rl, ctrl, trimmed); quit {
				return nil
			}
			continue
		}

		display.SetInputText(line)
		if task := ctrl.SubmitFromInput(ctx); task != nil {
			task.Wait()
		}
	}
}

func (c *TerminalChannel) prompt() string {
	if c.color {
		return ansiGreen + "you ›" + ansiReset + " "
	}
	return "you › "
}

func (c *TerminalChannel) printBanner(w io.Writer) {
	fmt.Fprintf(w, "%s\n", c.Title())
	fmt.Fprintln(w, "Type a message and press Enter. /suggest lists suggestions, /quit exits.")
}

// command handles slash commands. It reports whether the session should end.
func (c *TerminalChannel) command(ctx context.Context, w io.Writer, ctrl *chat.Controller, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/suggest":
		for i, q := range c.QuickAsks() {
			fmt.Fprintf(w, "  %d. %s\n", i+1, q)
		}
	case "/ask":
		if len(fields) != 2 {
			fmt.Fprintln(w, "usage: /ask N")
			return false
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Fprintln(w, "usage: /ask N")
			return false
		}
		text, ok := c.quickAsk(n)
		if !ok {
			fmt.Fprintf(w, "no suggestion #%d\n", n)
			return false
		}
		if task := ctrl.QuickAsk(ctx, text); task != nil {
			task.Wait()
		}
	case "/history":
		turns := ctrl.History()
		if len(turns) == 0 {
			fmt.Fprintln(w, "  (empty)")
		}
		for _, turn := range turns {
			fmt.Fprintf(w, "  %-9s %s\n", turn.Role, turn.Content)
		}
	default:
		logger.DebugCF("channels", "Unknown terminal command", map[string]interface{}{"command": fields[0]})
		fmt.Fprintf(w, "unknown command %s\n", fields[0])
	}
	return false
}

// terminalDisplay renders bubbles as prefixed lines.
type terminalDisplay struct {
	mu           sync.Mutex
	w            io.Writer
	color        bool
	input        string
	typing       bool
	sendDisabled bool
}

func newTerminalDisplay(w io.Writer, color bool) *terminalDisplay {
	return &terminalDisplay{w: w, color: color}
}

func (d *terminalDisplay) InputText() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input
}

func (d *terminalDisplay) SetInputText(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.input = text
}

func (d *terminalDisplay) ClearInput() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.input = ""
}

func (d *terminalDisplay) RenderBubble(text string, role chat.Role) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.color {
		switch {
		case role == chat.RoleUser:
			// replace the echoed prompt line with the bubble
			fmt.Fprint(d.w, cursorUp+clearLine)
		case d.typing:
			fmt.Fprint(d.w, clearLine)
		}
	}

	label := "bot ›"
	if role == chat.RoleUser {
		label = "you ›"
	}
	if d.color {
		fmt.Fprintf(d.w, "%s%s%s %s\n", ansiCyan, label, ansiReset, text)
	} else {
		fmt.Fprintf(d.w, "%s %s\n", label, text)
	}

	if d.typing && d.color {
		fmt.Fprint(d.w, ansiDim+typingText+ansiReset)
	}
}

func (d *terminalDisplay) SetSendDisabled(disabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sendDisabled = disabled
}

func (d *terminalDisplay) SetTypingVisible(visible bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if visible == d.typing {
		return
	}
	d.typing = visible
	if !d.color {
		return
	}
	if visible {
		fmt.Fprint(d.w, ansiDim+typingText+ansiReset)
	} else {
		fmt.Fprint(d.w, clearLine)
	}
}

// FocusInput is a no-op: readline prompts again once the turn has finished.
func (d *terminalDisplay) FocusInput() {}
