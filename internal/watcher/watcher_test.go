package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) record(s string) {
	r.mu.Lock()
	r.seen = append(r.seen, s)
	r.mu.Unlock()
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func startWatcher(t *testing.T, initial string) (*Watcher, *recorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diagram.mmd")
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o644))

	rec := &recorder{}
	w := New(path, rec.record, nil).WithDebounce(20 * time.Millisecond)
	src, err := w.Load()
	require.NoError(t, err)
	require.Equal(t, initial, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	return w, rec, path
}

func TestWatch_ReportsChanges(t *testing.T) {
	_, rec, path := startWatcher(t, "flowchart TD\n  A --> B")

	require.NoError(t, os.WriteFile(path, []byte("flowchart TD\n  A --> C"), 0o644))
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "flowchart TD\n  A --> C", rec.all()[0])
}

func TestWatch_DebouncesBursts(t *testing.T) {
	_, rec, path := startWatcher(t, "v0")

	for _, v := range []string{"v1", "v2", "v3"} {
		require.NoError(t, os.WriteFile(path, []byte(v), 0o644))
	}
	require.Eventually(t, func() bool { return len(rec.all()) >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	seen := rec.all()
	assert.Equal(t, "v3", seen[len(seen)-1])
	assert.Less(t, len(seen), 3)
}

func TestWrite_DoesNotEcho(t *testing.T) {
	w, rec, path := startWatcher(t, "v0")

	require.NoError(t, w.Write("from workspace"))
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, rec.all())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "from workspace", string(data))
}

func TestLoad_Missing(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "nope.mmd"), func(string) {}, nil)
	_, err := w.Load()
	assert.Error(t, err)
}
