package channels

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/sipeed/picochat/pkg/chat"
	"github.com/sipeed/picochat/pkg/config"
	"github.com/sipeed/picochat/pkg/logger"
)

// TUIChannel is a full-screen chat widget: bubble list, typing line, input
// field, Send button and one button per quick ask.
type TUIChannel struct {
	*BaseChannel
	app     *tview.Application
	screen  tcell.Screen
	display *tuiDisplay
	ctrl    *chat.Controller
}

func NewTUIChannel(widget config.WidgetConfig, answerer chat.Answerer, timeout time.Duration) *TUIChannel {
	return &TUIChannel{
		BaseChannel: NewBaseChannel("tui", widget, answerer, timeout),
	}
}

// SetScreen replaces the terminal screen, e.g. with a simulation screen.
func (c *TUIChannel) SetScreen(screen tcell.Screen) {
	c.screen = screen
}

func (c *TUIChannel) Run(ctx context.Context) error {
	c.app = tview.NewApplication()
	if c.screen != nil {
		c.app.SetScreen(c.screen)
	}
	display := newTUIDisplay(c.app)
	ctrl := c.newController(display, "tui")
	c.display, c.ctrl = display, ctrl

	stop := make(chan struct{})
	defer close(stop)
	go display.drain(stop)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	send := func() {
		ctrl.SubmitFromInput(sessionCtx)
	}
	display.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			send()
		}
	})
	display.send.SetSelectedFunc(send)

	suggestions := tview.NewFlex()
	for _, q := range c.QuickAsks() {
		btn := tview.NewButton(q).SetSelectedFunc(func() {
			ctrl.QuickAsk(sessionCtx, q)
		})
		suggestions.AddItem(btn, 0, 1, false).AddItem(nil, 1, 0, false)
	}

	inputRow := tview.NewFlex().
		AddItem(display.input, 0, 1, true).
		AddItem(nil, 1, 0, false).
		AddItem(display.send, 8, 0, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(display.messages, 0, 1, false).
		AddItem(display.typing, 1, 0, false).
		AddItem(suggestions, 1, 0, false).
		AddItem(inputRow, 1, 0, true)
	root.SetBorder(true).SetTitle(" " + c.Title() + " ")

	focusables := []tview.Primitive{display.input, display.send}
	for i := 0; i < suggestions.GetItemCount(); i += 2 {
		focusables = append(focusables, suggestions.GetItem(i))
	}

	c.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape:
			c.app.Stop()
			return nil
		case tcell.KeyCtrlY:
			c.copyLastAnswer(ctrl, display)
			return nil
		case tcell.KeyTab, tcell.KeyBacktab:
			c.cycleFocus(focusables, event.Key() == tcell.KeyBacktab)
			return nil
		}
		return event
	})

	go func() {
		<-sessionCtx.Done()
		c.app.Stop()
	}()

	c.setRunning(true)
	defer c.setRunning(false)

	if err := c.app.SetRoot(root, true).SetFocus(display.input).Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func (c *TUIChannel) cycleFocus(items []tview.Primitive, backwards bool) {
	current := c.app.GetFocus()
	idx := 0
	for i, p := range items {
		if p == current {
			idx = i
			break
		}
	}
	if backwards {
		idx = (idx - 1 + len(items)) % len(items)
	} else {
		idx = (idx + 1) % len(items)
	}
	c.app.SetFocus(items[idx])
}

func (c *TUIChannel) copyLastAnswer(ctrl *chat.Controller, display *tuiDisplay) {
	turns := ctrl.History()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != chat.RoleAssistant {
			continue
		}
		if err := clipboard.WriteAll(turns[i].Content); err != nil {
			logger.WarnCF("channels", "Clipboard unavailable", map[string]interface{}{"error": err.Error()})
			display.flash("clipboard unavailable")
			return
		}
		display.flash("answer copied")
		return
	}
	display.flash("nothing to copy yet")
}

// tuiDisplay maps chat effects onto tview primitives. Input reads and writes
// happen on the event loop (from key and button handlers) and are applied
// directly. Every other effect is appended to a FIFO that one goroutine hands
// to the event loop in order, so a submit from a handler never waits on the
// loop it is running on.
type tuiDisplay struct {
	app      *tview.Application
	messages *tview.TextView
	typing   *tview.TextView
	input    *tview.InputField
	send     *tview.Button

	mu      sync.Mutex
	showing bool

	queueMu sync.Mutex
	pending []func()
	wake    chan struct{}
}

func newTUIDisplay(app *tview.Application) *tuiDisplay {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true).
		SetScrollable(true)
	typing := tview.NewTextView().SetDynamicColors(true)
	input := tview.NewInputField().
		SetLabel("› ").
		SetPlaceholder("Ask something…")
	send := tview.NewButton("Send")

	return &tuiDisplay{
		app:      app,
		messages: messages,
		typing:   typing,
		input:    input,
		send:     send,
		wake:     make(chan struct{}, 1),
	}
}

func (d *tuiDisplay) queue(f func()) {
	d.queueMu.Lock()
	d.pending = append(d.pending, f)
	d.queueMu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// drain applies queued effects on the event loop until stop is closed.
func (d *tuiDisplay) drain(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-d.wake:
		}

		d.queueMu.Lock()
		batch := d.pending
		d.pending = nil
		d.queueMu.Unlock()
		if len(batch) == 0 {
			continue
		}

		d.app.QueueUpdateDraw(func() {
			for _, f := range batch {
				f()
			}
		})
	}
}

func (d *tuiDisplay) InputText() string {
	return d.input.GetText()
}

func (d *tuiDisplay) SetInputText(text string) {
	d.input.SetText(text)
}

func (d *tuiDisplay) ClearInput() {
	d.input.SetText("")
}

func (d *tuiDisplay) RenderBubble(text string, role chat.Role) {
	d.queue(func() {
		fmt.Fprint(d.messages, formatTUIBubble(text, role))
		d.messages.ScrollToEnd()
	})
}

func formatTUIBubble(text string, role chat.Role) string {
	if role == chat.RoleUser {
		return fmt.Sprintf("[green::b]you[-::-]  %s\n\n", tview.Escape(text))
	}
	return fmt.Sprintf("[aqua::b]bot[-::-]  %s\n\n", tview.Escape(text))
}

func (d *tuiDisplay) SetSendDisabled(disabled bool) {
	d.queue(func() {
		d.send.SetDisabled(disabled)
	})
}

func (d *tuiDisplay) SetTypingVisible(visible bool) {
	d.mu.Lock()
	d.showing = visible
	d.mu.Unlock()

	d.queue(func() {
		if visible {
			d.typing.SetText("[gray]bot is typing…[-]")
		} else {
			d.typing.SetText("")
		}
	})
}

func (d *tuiDisplay) FocusInput() {
	d.queue(func() {
		d.app.SetFocus(d.input)
	})
}

// flash shows a short notice on the typing line unless a turn is in flight.
func (d *tuiDisplay) flash(msg string) {
	d.mu.Lock()
	busy := d.showing
	d.mu.Unlock()
	if busy {
		return
	}
	d.typing.SetText("[gray]" + tview.Escape(msg) + "[-]")
}
