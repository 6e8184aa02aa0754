package channels

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/picochat/pkg/chat"
	"github.com/sipeed/picochat/pkg/config"
)

func testWidget() config.WidgetConfig {
	return config.WidgetConfig{
		Title:     "Match Assistant",
		QuickAsks: []string{"Alpha FC vs Beta United score", "Who is the top scorer?"},
	}
}

func echoAnswerer() chat.Answerer {
	return chat.AnswererFunc(func(_ context.Context, req chat.Request) (string, error) {
		return "re: " + req.Message, nil
	})
}

func TestTerminalDisplayPlainBubbles(t *testing.T) {
	var buf bytes.Buffer
	d := newTerminalDisplay(&buf, false)

	d.RenderBubble("hi", chat.RoleUser)
	d.SetTypingVisible(true)
	d.RenderBubble("hello", chat.RoleAssistant)
	d.SetTypingVisible(false)

	assert.Equal(t, "you › hi\nbot › hello\n", buf.String())
}

func TestTerminalDisplayColorTyping(t *testing.T) {
	var buf bytes.Buffer
	d := newTerminalDisplay(&buf, true)

	d.SetTypingVisible(true)
	d.SetTypingVisible(true)
	assert.Equal(t, ansiDim+typingText+ansiReset, buf.String())

	buf.Reset()
	d.RenderBubble("hello", chat.RoleAssistant)
	assert.Equal(t, clearLine+ansiCyan+"bot ›"+ansiReset+" hello\n"+ansiDim+typingText+ansiReset, buf.String())

	buf.Reset()
	d.SetTypingVisible(false)
	assert.Equal(t, clearLine, buf.String())
}

func TestTerminalDisplayInputBuffer(t *testing.T) {
	d := newTerminalDisplay(&bytes.Buffer{}, false)

	d.SetInputText("  hi  ")
	assert.Equal(t, "  hi  ", d.InputText())
	d.ClearInput()
	assert.Empty(t, d.InputText())
}

func TestTerminalTurnThroughController(t *testing.T) {
	var buf bytes.Buffer
	c := NewTerminalChannel(testWidget(), echoAnswerer(), time.Second, false)
	d := newTerminalDisplay(&buf, false)
	ctrl := c.newController(d, "test")

	d.SetInputText("  hi ")
	res := ctrl.SubmitFromInput(context.Background()).Wait()

	require.True(t, res.OK())
	assert.Equal(t, "you › hi\nbot › re: hi\n", buf.String())
	assert.False(t, d.sendDisabled)
	assert.False(t, d.typing)
}

func TestTerminalFailureShowsFallback(t *testing.T) {
	var buf bytes.Buffer
	failing := chat.AnswererFunc(func(context.Context, chat.Request) (string, error) {
		return "", errors.New("connection refused")
	})
	c := NewTerminalChannel(testWidget(), failing, time.Second, false)
	d := newTerminalDisplay(&buf, false)
	ctrl := c.newController(d, "test")

	d.SetInputText("hi")
	res := ctrl.SubmitFromInput(context.Background()).Wait()

	assert.False(t, res.OK())
	assert.Equal(t, "you › hi\nbot › "+chat.FallbackMessage+"\n", buf.String())
	assert.Empty(t, ctrl.History())
}

func TestTerminalCommands(t *testing.T) {
	c := NewTerminalChannel(testWidget(), echoAnswerer(), time.Second, false)
	var out bytes.Buffer
	d := newTerminalDisplay(&out, false)
	ctrl := c.newController(d, "test")
	ctx := context.Background()

	tests := []struct {
		name     string
		line     string
		quit     bool
		contains string
	}{
		{"suggest", "/suggest", false, "  2. Who is the top scorer?\n"},
		{"empty history", "/history", false, "(empty)"},
		{"ask usage", "/ask", false, "usage: /ask N"},
		{"ask not a number", "/ask two", false, "usage: /ask N"},
		{"ask out of range", "/ask 3", false, "no suggestion #3"},
		{"unknown", "/dance", false, "unknown command /dance"},
		{"quit", "/quit", true, ""},
		{"exit", "/exit", true, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var w bytes.Buffer
			quit := c.command(ctx, &w, ctrl, tc.line)
			assert.Equal(t, tc.quit, quit)
			assert.Contains(t, w.String(), tc.contains)
		})
	}
}

func TestTerminalAskCommandSubmitsSuggestion(t *testing.T) {
	c := NewTerminalChannel(testWidget(), echoAnswerer(), time.Second, false)
	var out bytes.Buffer
	d := newTerminalDisplay(&out, false)
	ctrl := c.newController(d, "test")

	var w bytes.Buffer
	require.False(t, c.command(context.Background(), &w, ctrl, "/ask 2"))

	assert.Equal(t, []chat.Turn{
		{Role: chat.RoleUser, Content: "Who is the top scorer?"},
		{Role: chat.RoleAssistant, Content: "re: Who is the top scorer?"},
	}, ctrl.History())
	assert.Empty(t, d.InputText())

	w.Reset()
	c.command(context.Background(), &w, ctrl, "/history")
	assert.Contains(t, w.String(), "user      Who is the top scorer?")
	assert.Contains(t, w.String(), "assistant re: Who is the top scorer?")
}

func TestBaseChannelQuickAsks(t *testing.T) {
	c := NewBaseChannel("x", testWidget(), echoAnswerer(), 0)

	got := c.QuickAsks()
	got[0] = "changed"
	assert.Equal(t, "Alpha FC vs Beta United score", c.QuickAsks()[0])

	q, ok := c.quickAsk(1)
	assert.True(t, ok)
	assert.Equal(t, "Alpha FC vs Beta United score", q)
	_, ok = c.quickAsk(0)
	assert.False(t, ok)
	_, ok = c.quickAsk(3)
	assert.False(t, ok)
	assert.Equal(t, "x", c.Name())
	assert.False(t, c.IsRunning())
}
