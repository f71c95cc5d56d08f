package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCheck struct {
	err error
}

func (c staticCheck) HealthCheck(ctx context.Context) error {
	return c.err
}

func TestCheckerAggregatesResults(t *testing.T) {
	checker := NewChecker(slog.New(slog.NewTextHandler(io.Discard, nil)))
	checker.AddCheck("good", staticCheck{})
	checker.AddCheck("bad", staticCheck{err: errors.New("connection refused")})
	checker.AddCheck("", staticCheck{})

	results, healthy := checker.Check(context.Background())

	assert.False(t, healthy)
	assert.Equal(t, map[string]string{
		"good": "OK",
		"bad":  "connection refused",
	}, results)
}

func TestCheckerAllHealthy(t *testing.T) {
	checker := NewChecker(nil)
	checker.AddCheck("only", staticCheck{})

	results, healthy := checker.Check(context.Background())

	assert.True(t, healthy)
	assert.Equal(t, "OK", results["only"])
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, NewRedisChecker(client).HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, NewRedisChecker(client).HealthCheck(context.Background()))
}

func TestTelegramCheckerRequiresSession(t *testing.T) {
	assert.Error(t, NewTelegramChecker(nil).HealthCheck(context.Background()))
}
