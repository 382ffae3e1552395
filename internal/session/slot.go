package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
)

// Slot is a typed, key-scoped cell backed by a Store. Storage failures never
// reach the caller: reads fall back to the default and writes are logged.
type Slot[T any] struct {
	store  Store
	key    string
	def    T
	logger *slog.Logger
}

// NewSlot binds a key and default value to a store.
func NewSlot[T any](store Store, key string, def T, logger *slog.Logger) *Slot[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slot[T]{store: store, key: key, def: def, logger: logger}
}

// Load reads the stored value, falling back to the default when the value is
// missing, unreadable or no longer decodes as T.
func (s *Slot[T]) Load(ctx context.Context) T {
	data, err := s.store.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("session read failed", "key", s.key, "error", err)
		}
		return s.def
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		s.logger.Error("session value unreadable", "key", s.key, "error", err)
		return s.def
	}
	return value
}

// Save encodes and writes the value.
func (s *Slot[T]) Save(ctx context.Context, value T) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("session encode failed", "key", s.key, "error", err)
		return
	}
	if err := s.store.Put(ctx, s.key, data); err != nil {
		s.logger.Error("session write failed", "key", s.key, "error", err)
	}
}
