package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// DefaultKVTTL bounds how long an idle session bucket survives.
const DefaultKVTTL = 12 * time.Hour

// KVStore keeps session slots in a NATS JetStream key/value bucket. The
// bucket TTL plays the role of session end.
type KVStore struct {
	conn   *nats.Conn
	bucket jetstream.KeyValue
}

// KVOptions configures the NATS-backed store.
type KVOptions struct {
	URL       string
	SessionID string
	TTL       time.Duration
	Timeout   time.Duration
}

// OpenKVStore connects to NATS and opens (or creates) the session bucket.
func OpenKVStore(ctx context.Context, opts KVOptions) (*KVStore, error) {
	if strings.TrimSpace(opts.URL) == "" {
		opts.URL = nats.DefaultURL
	}
	if !safeKey.MatchString(opts.SessionID) {
		return nil, fmt.Errorf("session: invalid session id %q", opts.SessionID)
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultKVTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	conn, err := nats.Connect(opts.URL, nats.Name("reportflow-session"), nats.Timeout(opts.Timeout))
	if err != nil {
		return nil, fmt.Errorf("session: connect %s: %w", opts.URL, err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("session: jetstream: %w", err)
	}
	name := bucketName(opts.SessionID)
	bucket, err := js.KeyValue(ctx, name)
	if err != nil {
		bucket, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      name,
			Description: "reportflow session slots",
			TTL:         opts.TTL,
			History:     1,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("session: create bucket %s: %w", name, err)
		}
	}
	return &KVStore{conn: conn, bucket: bucket}, nil
}

func bucketName(sessionID string) string {
	return "reportflow_session_" + strings.ReplaceAll(sessionID, ".", "_")
}

func (k *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := k.bucket.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), nil
}

func (k *KVStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := k.bucket.Put(ctx, key, value); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

func (k *KVStore) Clear(ctx context.Context) error {
	keys, err := k.bucket.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil
		}
		return fmt.Errorf("kv keys: %w", err)
	}
	for _, key := range keys {
		if err := k.bucket.Purge(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("kv purge %s: %w", key, err)
		}
	}
	return nil
}

// Close drains the NATS connection.
func (k *KVStore) Close() {
	if k.conn != nil {
		k.conn.Close()
	}
}
