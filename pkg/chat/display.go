package chat

import "context"

// Display is the UI surface a Controller drives. Implementations must accept
// calls from the goroutine that completes a turn, not only from the one that
// submitted it.
type Display interface {
	InputText() string
	SetInputText(text string)
	ClearInput()
	// RenderBubble appends one bubble and scrolls it into view.
	RenderBubble(text string, role Role)
	SetSendDisabled(disabled bool)
	SetTypingVisible(visible bool)
	FocusInput()
}

// Answerer produces the assistant reply for a request.
type Answerer interface {
	Answer(ctx context.Context, req Request) (string, error)
}

// AnswererFunc adapts a plain function to Answerer.
type AnswererFunc func(ctx context.Context, req Request) (string, error)

func (f AnswererFunc) Answer(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
