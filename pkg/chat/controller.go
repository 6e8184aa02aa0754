package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/picochat/pkg/logger"
)

// FallbackMessage is shown as the bot bubble whenever a turn fails.
const FallbackMessage = "Sorry, I couldn't reach the server."

// Controller drives chat turns from the input buffer to a rendered answer.
// It owns the session History; one Controller per page session.
type Controller struct {
	display  Display
	answerer Answerer
	history  *History
	timeout  time.Duration

	mu       sync.Mutex
	state    State
	inFlight bool
	onState  func(from, to State)
}

func NewController(display Display, answerer Answerer) *Controller {
	return &Controller{
		display:  display,
		answerer: answerer,
		history:  NewHistory(),
		state:    StateIdle,
	}
}

// SetTimeout bounds each remote call. Zero means no limit.
func (c *Controller) SetTimeout(d time.Duration) {
	c.timeout = d
}

// SetStateListener registers fn to observe every state transition. fn runs
// on whichever goroutine performed the transition.
func (c *Controller) SetStateListener(fn func(from, to State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// History returns a snapshot of the completed exchanges.
func (c *Controller) History() []Turn {
	return c.history.Snapshot()
}

func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

func (c *Controller) State() State {
	c.mu.Lock()
	s := c.state
	c.mu.Unlock()
	if s == StateIdle && strings.TrimSpace(c.display.InputText()) != "" {
		return StateComposing
	}
	return s
}

// RenderBubble appends one bubble to the display. It never touches History.
func (c *Controller) RenderBubble(text string, role Role) {
	c.display.RenderBubble(text, role)
}

// QuickAsk pre-fills the input with text and submits it.
func (c *Controller) QuickAsk(ctx context.Context, text string) *Task {
	return c.SubmitText(ctx, text)
}

// SubmitText replaces the input with text and submits it. While a turn is in
// flight it returns nil and the input is left as it was.
func (c *Controller) SubmitText(ctx context.Context, text string) *Task {
	return c.submit(ctx, func() { c.display.SetInputText(text) })
}

// SubmitFromInput starts a turn from the current input buffer. It returns nil
// when there is nothing to send or a turn is already in flight.
func (c *Controller) SubmitFromInput(ctx context.Context) *Task {
	return c.submit(ctx, nil)
}

func (c *Controller) submit(ctx context.Context, fill func()) *Task {
	if !c.reserve() {
		logger.DebugC("chat", "Submit ignored, turn already in flight")
		return nil
	}

	if fill != nil {
		fill()
	}
	msg := strings.TrimSpace(c.display.InputText())
	if msg == "" {
		c.release()
		return nil
	}

	c.transition(StateSubmitted)

	c.RenderBubble(msg, RoleUser)
	c.display.ClearInput()
	c.display.SetSendDisabled(true)
	c.display.SetTypingVisible(true)

	req := Request{Message: msg, History: c.history.Snapshot()}

	var (
		taskCtx context.Context
		cancel  context.CancelFunc
	)
	if c.timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		taskCtx, cancel = context.WithCancel(ctx)
	}
	task := newTask(cancel)

	c.transition(StateAwaitingResponse)
	logger.DebugCF("chat", "Turn submitted", map[string]interface{}{
		"history_len": len(req.History),
	})

	go func() {
		defer close(task.done)
		defer cancel()
		defer c.finish()
		task.result = c.exchange(taskCtx, req)
	}()

	return task
}

// reserve claims the single in-flight slot.
func (c *Controller) reserve() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return false
	}
	c.inFlight = true
	return true
}

func (c *Controller) release() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

func (c *Controller) exchange(ctx context.Context, req Request) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = c.fail(req.Message, fmt.Errorf("answerer panic: %v", r))
		}
	}()

	answer, err := c.answerer.Answer(ctx, req)
	if err != nil {
		return c.fail(req.Message, err)
	}

	c.RenderBubble(answer, RoleAssistant)
	c.history.Append(
		Turn{Role: RoleUser, Content: req.Message},
		Turn{Role: RoleAssistant, Content: answer},
	)
	c.transition(StateRendered)

	return Result{Outcome: OutcomeRendered, Message: req.Message, Answer: answer}
}

func (c *Controller) fail(msg string, cause error) Result {
	if !errors.Is(cause, ErrUnreachableOrInvalidResponse) {
		cause = fmt.Errorf("%w: %w", ErrUnreachableOrInvalidResponse, cause)
	}
	logger.WarnCF("chat", "Turn failed", map[string]interface{}{"error": cause.Error()})

	c.RenderBubble(FallbackMessage, RoleAssistant)
	c.transition(StateFailed)

	return Result{Outcome: OutcomeFailed, Message: msg, Err: cause}
}

// finish resets the affordances. It runs exactly once per submitted turn,
// whatever the outcome.
func (c *Controller) finish() {
	c.display.SetTypingVisible(false)
	c.display.SetSendDisabled(false)
	c.display.FocusInput()

	c.setState(StateIdle, true)
}

func (c *Controller) transition(to State) {
	c.setState(to, false)
}

// setState moves to the next state. release also clears the in-flight flag
// under the same lock, so a new turn can never observe a stale state.
func (c *Controller) setState(to State, release bool) {
	c.mu.Lock()
	if release {
		c.inFlight = false
	}
	from := c.state
	if !canTransition(from, to) {
		logger.WarnCF("chat", "Unexpected state transition", map[string]interface{}{
			"from": from.String(),
			"to":   to.String(),
		})
	}
	c.state = to
	fn := c.onState
	c.mu.Unlock()

	if fn != nil {
		fn(from, to)
	}
}
