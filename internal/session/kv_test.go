package session

import (
	"context"
	"net"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runJetStream starts an in-process NATS server with JetStream enabled and
// returns its client URL.
func runJetStream(t *testing.T) string {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := natsserver.RunServer(&opts)
	t.Cleanup(srv.Shutdown)
	return srv.ClientURL()
}

func openTestKV(t *testing.T, url, sessionID string) *KVStore {
	t.Helper()
	store, err := OpenKVStore(context.Background(), KVOptions{URL: url, SessionID: sessionID, TTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestKVStoreSlotRoundTrip(t *testing.T) {
	ctx := context.Background()
	url := runJetStream(t)
	store := openTestKV(t, url, "shell-42")

	_, err := store.Get(ctx, KeyFileName)
	assert.ErrorIs(t, err, ErrNotFound)

	slot := NewSlot(store, KeyFileName, "", nil)
	slot.Save(ctx, "report.docx")
	assert.Equal(t, "report.docx", slot.Load(ctx))

	reopened := openTestKV(t, url, "shell-42")
	assert.Equal(t, "report.docx", NewSlot(reopened, KeyFileName, "", nil).Load(ctx))

	other := openTestKV(t, url, "shell-43")
	_, err = other.Get(ctx, KeyFileName)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKVStoreClearFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	store := openTestKV(t, runJetStream(t), "shell-7")

	names := NewSlot(store, KeyFileName, "none", nil)
	sources := NewSlot(store, KeyDataSources, []string{}, nil)
	names.Save(ctx, "report.docx")
	sources.Save(ctx, []string{"a.pdf", "b.xlsx"})
	require.Equal(t, []string{"a.pdf", "b.xlsx"}, sources.Load(ctx))

	require.NoError(t, store.Clear(ctx))
	assert.Equal(t, "none", names.Load(ctx))
	assert.Equal(t, []string{}, sources.Load(ctx))
	_, err := store.Get(ctx, KeyDataSources)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Clear(ctx), "clearing an empty bucket is a no-op")
}

func TestOpenKVStoreRejectsUnsafeSessionID(t *testing.T) {
	_, err := OpenKVStore(context.Background(), KVOptions{SessionID: "../escape"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session id")
}

func TestOpenKVStoreUnreachableServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = OpenKVStore(context.Background(), KVOptions{
		URL:       "nats://" + addr,
		SessionID: "shell-42",
		Timeout:   time.Second,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session: connect")
}

func TestBucketNameIsNATSSafe(t *testing.T) {
	assert.Equal(t, "reportflow_session_shell-42", bucketName("shell-42"))
	assert.Equal(t, "reportflow_session_a_b", bucketName("a.b"))
}
