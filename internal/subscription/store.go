// Package subscription manages durable per-chat subscription records. Records
// are encrypted before they reach the map, keyed by a one-way hash of the chat
// id, and mutated concurrently by the conversation engine and the periodic
// notifier.
package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gradewatch/gradewatch/internal/crypto"
	"github.com/gradewatch/gradewatch/internal/storage"
)

// persistKey is the single backing-store key holding the encrypted map.
const persistKey = "subscribes"

// Subscriber is one durable subscription record. It carries the session
// cookie, never the raw credentials.
type Subscriber struct {
	ChatID               int64  `json:"chatId"`
	Cookie               string `json:"cookie"`
	LastQueryCourseCount int    `json:"lastQueryCourseCount"`
}

// Store holds the live subscriber map. Records discovered via Snapshot must
// only be written back through CompareAndUpdate / CompareAndRemove so a sweep
// never clobbers a concurrent interactive change.
type Store struct {
	mu      sync.RWMutex
	records map[string][]byte

	gate    *crypto.Gate
	backing storage.Store
	log     *slog.Logger
}

// NewStore creates an empty Store over the given crypto gate and durable
// backing.
func NewStore(gate *crypto.Gate, backing storage.Store, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}

	return &Store{
		records: make(map[string][]byte),
		gate:    gate,
		backing: backing,
		log:     log,
	}
}

// Add unconditionally upserts the record for a chat.
func (s *Store) Add(chatID int64, sub *Subscriber) error {
	ciphertext, err := s.encrypt(sub)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.records[crypto.HashChatID(chatID)] = ciphertext
	s.mu.Unlock()

	return nil
}

// Remove deletes the record for a chat, reporting whether one existed.
func (s *Store) Remove(chatID int64) bool {
	key := crypto.HashChatID(chatID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[key]; !ok {
		return false
	}

	delete(s.records, key)

	return true
}

// Get decrypts and returns the record for a chat.
func (s *Store) Get(chatID int64) (*Subscriber, bool) {
	s.mu.RLock()
	ciphertext, ok := s.records[crypto.HashChatID(chatID)]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}

	return s.DecryptSubscriber(ciphertext)
}

// Exists reports whether a chat has a subscription.
func (s *Store) Exists(chatID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[crypto.HashChatID(chatID)]

	return ok
}

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// Snapshot returns a point-in-time copy of the map. The live store stays
// safely mutable while the snapshot is iterated.
func (s *Store) Snapshot() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string][]byte, len(s.records))
	for key, ciphertext := range s.records {
		snapshot[key] = ciphertext
	}

	return snapshot
}

// CompareAndUpdate replaces the record under key only if the stored ciphertext
// still byte-equals oldCiphertext. A false return means another writer got
// there first and the caller's view is stale.
func (s *Store) CompareAndUpdate(key string, oldCiphertext []byte, sub *Subscriber) bool {
	newCiphertext, err := s.encrypt(sub)
	if err != nil {
		s.log.Error("failed to encrypt subscriber for swap", "error", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[key]
	if !ok || !bytes.Equal(current, oldCiphertext) {
		return false
	}

	s.records[key] = newCiphertext

	return true
}

// CompareAndRemove removes the record under key only if the stored ciphertext
// still byte-equals oldCiphertext.
func (s *Store) CompareAndRemove(key string, oldCiphertext []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[key]
	if !ok || !bytes.Equal(current, oldCiphertext) {
		return false
	}

	delete(s.records, key)

	return true
}

// DecryptSubscriber decodes a ciphertext into a record. It returns false
// rather than an error on any failure, so sweep loops can treat a bad record
// as "drop it".
func (s *Store) DecryptSubscriber(ciphertext []byte) (*Subscriber, bool) {
	plaintext, err := s.gate.Decrypt(ciphertext)
	if err != nil {
		s.log.Warn("failed to decrypt subscriber record", "error", err)
		return nil, false
	}

	var sub Subscriber
	if err := json.Unmarshal([]byte(plaintext), &sub); err != nil {
		s.log.Warn("failed to decode subscriber record", "error", err)
		return nil, false
	}

	return &sub, true
}

// LoadAll replaces the live map with the persisted one. A missing backing
// record means a fresh start; a corrupt one is logged and discarded.
func (s *Store) LoadAll(ctx context.Context) error {
	data, err := s.backing.Get(ctx, persistKey)
	if err != nil {
		if err == storage.ErrNotFound {
			s.log.Info("no persisted subscriptions found, starting empty")
			return nil
		}
		return fmt.Errorf("load subscriptions: %w", err)
	}

	plaintext, err := s.gate.Decrypt(data)
	if err != nil {
		s.log.Warn("persisted subscriptions are undecryptable, starting empty", "error", err)
		return nil
	}

	var records map[string][]byte
	if err := json.Unmarshal([]byte(plaintext), &records); err != nil {
		s.log.Warn("persisted subscriptions are unparsable, starting empty", "error", err)
		return nil
	}

	if records == nil {
		records = make(map[string][]byte)
	}

	s.mu.Lock()
	s.records = records
	count := len(records)
	s.mu.Unlock()

	s.log.Info("subscriptions loaded", "count", count)

	return nil
}

// PersistAll flushes the live map to the durable backing.
func (s *Store) PersistAll(ctx context.Context) error {
	snapshot := s.Snapshot()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode subscriptions: %w", err)
	}

	if err := s.backing.Set(ctx, persistKey, s.gate.Encrypt(string(data))); err != nil {
		return fmt.Errorf("persist subscriptions: %w", err)
	}

	s.log.Info("subscriptions persisted", "count", len(snapshot))

	return nil
}

func (s *Store) encrypt(sub *Subscriber) ([]byte, error) {
	data, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("encode subscriber: %w", err)
	}

	return s.gate.Encrypt(string(data)), nil
}
