package bot

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/gradewatch/gradewatch/internal/errors"
)

type stubContext struct {
	telebot.Context
	text string
	sent []string
}

func (c *stubContext) Text() string {
	return c.text
}

func (c *stubContext) Chat() *telebot.Chat {
	return &telebot.Chat{ID: 7}
}

func (c *stubContext) Send(what interface{}, opts ...interface{}) error {
	if text, ok := what.(string); ok {
		c.sent = append(c.sent, text)
	}
	return nil
}

func TestChainAppliesMiddlewaresRightToLeft(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(c telebot.Context) error {
				order = append(order, name)
				return next(c)
			}
		}
	}

	handler := Chain(
		func(c telebot.Context) error {
			order = append(order, "handler")
			return nil
		},
		tag("outer"),
		tag("inner"),
	)

	assert.NoError(t, handler(&stubContext{}))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestRecoveryMiddlewareSwallowsPanic(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := RecoveryMiddleware(log, apperrors.NewHandler(log, false))(func(c telebot.Context) error {
		panic("boom")
	})

	c := &stubContext{}
	assert.NoError(t, handler(c))
	assert.NotEmpty(t, c.sent)
}

func TestLoggingMiddlewarePropagatesError(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	wantErr := errors.New("downstream failure")

	handler := LoggingMiddleware(log)(func(c telebot.Context) error {
		return wantErr
	})

	assert.ErrorIs(t, handler(&stubContext{}), wantErr)
}

func TestExtractCommandName(t *testing.T) {
	testCases := []struct {
		text     string
		expected string
	}{
		{text: "/once", expected: "/once"},
		{text: "/sub", expected: "/sub"},
		{text: "my-password", expected: "input"},
		{text: "", expected: "unknown"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, extractCommandName(&stubContext{text: tc.text}), "text %q", tc.text)
	}
}
