package subscription

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradewatch/gradewatch/internal/crypto"
	"github.com/gradewatch/gradewatch/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGate(t *testing.T) *crypto.Gate {
	t.Helper()

	gate, err := crypto.NewGate("0123456789abcdef0123456789abcdef", "fedcba9876543210")
	require.NoError(t, err)
	return gate
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	backing, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	return NewStore(testGate(t), backing, testLogger())
}

func TestStore_AddGetRemove(t *testing.T) {
	store := newTestStore(t)

	assert.False(t, store.Exists(100))
	assert.False(t, store.Remove(100))

	sub := &Subscriber{ChatID: 100, Cookie: "COOKIE-A", LastQueryCourseCount: 12}
	require.NoError(t, store.Add(100, sub))

	assert.True(t, store.Exists(100))
	assert.Equal(t, 1, store.Len())

	got, ok := store.Get(100)
	require.True(t, ok)
	assert.Equal(t, sub, got)

	// Upsert replaces the prior record.
	require.NoError(t, store.Add(100, &Subscriber{ChatID: 100, Cookie: "COOKIE-B", LastQueryCourseCount: 13}))
	got, ok = store.Get(100)
	require.True(t, ok)
	assert.Equal(t, "COOKIE-B", got.Cookie)
	assert.Equal(t, 1, store.Len())

	assert.True(t, store.Remove(100))
	assert.False(t, store.Exists(100))
	assert.Equal(t, 0, store.Len())
}

func TestStore_SnapshotIsDecoupledFromLiveMutation(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Add(1, &Subscriber{ChatID: 1, Cookie: "A"}))
	require.NoError(t, store.Add(2, &Subscriber{ChatID: 2, Cookie: "B"}))

	snapshot := store.Snapshot()
	assert.Len(t, snapshot, 2)

	// Mutating the live store does not disturb the snapshot.
	store.Remove(1)
	require.NoError(t, store.Add(3, &Subscriber{ChatID: 3, Cookie: "C"}))
	assert.Len(t, snapshot, 2)

	for _, ciphertext := range snapshot {
		_, ok := store.DecryptSubscriber(ciphertext)
		assert.True(t, ok)
	}
}

func TestStore_CompareAndUpdate(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Add(5, &Subscriber{ChatID: 5, Cookie: "C", LastQueryCourseCount: 10}))
	snapshot := store.Snapshot()
	require.Len(t, snapshot, 1)

	var key string
	var old []byte
	for k, v := range snapshot {
		key, old = k, v
	}

	updated := &Subscriber{ChatID: 5, Cookie: "C", LastQueryCourseCount: 11}
	assert.True(t, store.CompareAndUpdate(key, old, updated))

	got, ok := store.Get(5)
	require.True(t, ok)
	assert.Equal(t, 11, got.LastQueryCourseCount)

	// The snapshot's ciphertext is now stale; a second swap must lose.
	assert.False(t, store.CompareAndUpdate(key, old, &Subscriber{ChatID: 5, Cookie: "C", LastQueryCourseCount: 12}))
	got, _ = store.Get(5)
	assert.Equal(t, 11, got.LastQueryCourseCount)
}

func TestStore_CompareAndRemove(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Add(6, &Subscriber{ChatID: 6, Cookie: "C"}))
	snapshot := store.Snapshot()

	var key string
	var old []byte
	for k, v := range snapshot {
		key, old = k, v
	}

	// A concurrent writer replaces the record between snapshot and swap.
	require.NoError(t, store.Add(6, &Subscriber{ChatID: 6, Cookie: "FRESH"}))

	assert.False(t, store.CompareAndRemove(key, old))
	assert.True(t, store.Exists(6))

	// With the current ciphertext the removal goes through.
	current := store.Snapshot()[key]
	assert.True(t, store.CompareAndRemove(key, current))
	assert.False(t, store.Exists(6))

	// Removing an already-removed record is a clean no-op.
	assert.False(t, store.CompareAndRemove(key, current))
}

func TestStore_DecryptSubscriberNeverErrors(t *testing.T) {
	store := newTestStore(t)

	_, ok := store.DecryptSubscriber([]byte("definitely not ciphertext"))
	assert.False(t, ok)

	_, ok = store.DecryptSubscriber(nil)
	assert.False(t, ok)

	// Valid ciphertext of something that is not a subscriber record.
	gateOutput := testGate(t).Encrypt("[1,2,3]")
	_, ok = store.DecryptSubscriber(gateOutput)
	assert.False(t, ok)
}

func TestStore_PersistAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()

	backing, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	gate := testGate(t)
	store := NewStore(gate, backing, testLogger())

	require.NoError(t, store.Add(1, &Subscriber{ChatID: 1, Cookie: "A", LastQueryCourseCount: 3}))
	require.NoError(t, store.Add(2, &Subscriber{ChatID: 2, Cookie: "B", LastQueryCourseCount: 5}))
	require.NoError(t, store.PersistAll(ctx))

	reloaded := NewStore(gate, backing, testLogger())
	require.NoError(t, reloaded.LoadAll(ctx))

	assert.Equal(t, 2, reloaded.Len())
	got, ok := reloaded.Get(2)
	require.True(t, ok)
	assert.Equal(t, &Subscriber{ChatID: 2, Cookie: "B", LastQueryCourseCount: 5}, got)
}

func TestStore_LoadAllToleratesMissingAndCorruptBacking(t *testing.T) {
	ctx := context.Background()

	backing, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	store := NewStore(testGate(t), backing, testLogger())
	require.NoError(t, store.LoadAll(ctx))
	assert.Equal(t, 0, store.Len())

	require.NoError(t, backing.Set(ctx, "subscribes", []byte("corrupt")))
	require.NoError(t, store.LoadAll(ctx))
	assert.Equal(t, 0, store.Len())
}
