package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	getErr error
	putErr error
}

func (f failingStore) Get(context.Context, string) ([]byte, error) { return nil, f.getErr }
func (f failingStore) Put(context.Context, string, []byte) error   { return f.putErr }
func (f failingStore) Clear(context.Context) error                 { return nil }

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestSlotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	slot := NewSlot(store, KeyFileName, "", nil)
	assert.Equal(t, "", slot.Load(ctx))

	slot.Save(ctx, "report.docx")
	assert.Equal(t, "report.docx", slot.Load(ctx))

	reloaded := NewSlot(store, KeyFileName, "", nil)
	assert.Equal(t, "report.docx", reloaded.Load(ctx))
}

func TestSlotCorruptValueFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, KeyTasks, []byte(`{not json`)))
	logger, buf := bufferLogger()

	slot := NewSlot(store, KeyTasks, []string{}, logger)
	assert.Equal(t, []string{}, slot.Load(ctx))
	assert.Contains(t, buf.String(), "session value unreadable")
}

func TestSlotShapeMismatchFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, KeyZipName, []byte(`[1,2,3]`)))
	slot := NewSlot(store, KeyZipName, "", nil)
	assert.Equal(t, "", slot.Load(ctx))
}

func TestSlotReadFailureIsLogged(t *testing.T) {
	logger, buf := bufferLogger()
	slot := NewSlot[string](failingStore{getErr: errors.New("disk gone")}, KeyZipName, "fallback", logger)
	assert.Equal(t, "fallback", slot.Load(context.Background()))
	assert.Contains(t, buf.String(), "disk gone")
}

func TestSlotWriteFailureIsSwallowed(t *testing.T) {
	logger, buf := bufferLogger()
	slot := NewSlot[string](failingStore{putErr: errors.New("quota exceeded")}, KeyZipName, "", logger)
	assert.NotPanics(t, func() { slot.Save(context.Background(), "a.zip") })
	assert.Contains(t, buf.String(), "session write failed")
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFileStore(root, "4242")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, KeyFileName, []byte(`"t.docx"`)))

	again, err := NewFileStore(root, "4242")
	require.NoError(t, err)
	data, err := again.Get(ctx, KeyFileName)
	require.NoError(t, err)
	assert.Equal(t, `"t.docx"`, string(data))

	other, err := NewFileStore(root, "other")
	require.NoError(t, err)
	_, err = other.Get(ctx, KeyFileName)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreClearAndEnd(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), "s1")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, KeyTasks, []byte(`[]`)))
	require.NoError(t, store.Put(ctx, KeyZipName, []byte(`"a.zip"`)))

	require.NoError(t, store.Clear(ctx))
	_, err = store.Get(ctx, KeyTasks)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.End())
	_, err = os.Stat(store.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreRejectsUnsafeNames(t *testing.T) {
	_, err := NewFileStore(t.TempDir(), "../escape")
	assert.Error(t, err)

	store, err := NewFileStore(t.TempDir(), "ok")
	require.NoError(t, err)
	err = store.Put(context.Background(), filepath.Join("..", "x"), []byte(`1`))
	assert.Error(t, err)
}

func TestMemoryStoreClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, "b", []byte(`1`)))
	require.NoError(t, store.Put(ctx, "a", []byte(`2`)))
	assert.Equal(t, []string{"a", "b"}, store.Keys())
	require.NoError(t, store.Clear(ctx))
	assert.Empty(t, store.Keys())
}
