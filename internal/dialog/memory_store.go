package dialog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gradewatch/gradewatch/internal/crypto"
)

type memoryEntry struct {
	ciphertext []byte
	deadline   time.Time
}

// MemoryStore is an in-process Store for deployments without Redis. Expiry is
// enforced at read time, so no background sweep is required.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	gate    *crypto.Gate
	log     *slog.Logger
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory dialog store.
func NewMemoryStore(gate *crypto.Gate, log *slog.Logger) *MemoryStore {
	if log == nil {
		log = slog.Default()
	}

	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		gate:    gate,
		log:     log,
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, chatID int64) (*User, error) {
	key := crypto.HashChatID(chatID)

	s.mu.Lock()
	entry, ok := s.entries[key]
	if ok && s.now().After(entry.deadline) {
		delete(s.entries, key)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return &User{}, nil
	}

	plaintext, err := s.gate.Decrypt(entry.ciphertext)
	if err != nil {
		s.log.Warn("dropping undecryptable dialog state", "error", err)
		_ = s.Remove(ctx, chatID)
		return &User{}, nil
	}

	var user User
	if err := json.Unmarshal([]byte(plaintext), &user); err != nil {
		s.log.Warn("dropping unparsable dialog state", "error", err)
		_ = s.Remove(ctx, chatID)
		return &User{}, nil
	}

	return &user, nil
}

func (s *MemoryStore) Save(ctx context.Context, chatID int64, user *User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[crypto.HashChatID(chatID)] = memoryEntry{
		ciphertext: s.gate.Encrypt(string(data)),
		deadline:   s.now().Add(TTL),
	}

	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, crypto.HashChatID(chatID))

	return nil
}
