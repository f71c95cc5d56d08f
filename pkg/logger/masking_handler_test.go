package logger

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskingHandlerMasksSensitiveAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewJSONHandler(&buf, nil)))

	log.Info("login attempt",
		slog.String("username", "3190xxxxx"),
		slog.String("password", "hunter2"),
		slog.String("Cookie", "session-value"),
	)

	output := buf.String()
	assert.Contains(t, output, "3190xxxxx")
	assert.NotContains(t, output, "hunter2")
	assert.NotContains(t, output, "session-value")
	assert.Contains(t, output, `"password":"***"`)
}

func TestMaskingHandlerMasksWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewJSONHandler(&buf, nil)))

	log.With(slog.String("token", "tg-token")).Info("bot started")

	assert.NotContains(t, buf.String(), "tg-token")
}

func TestMiddlewareInjectsCorrelationID(t *testing.T) {
	var seen string
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.NotEmpty(t, seen)
	assert.Empty(t, CorrelationIDFromContext(context.Background()))
}
