package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	mu  sync.Mutex
	ops map[string]int
}

func (r *countingRecorder) RootEvent(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op]++
}

func (r *countingRecorder) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ops[op]
}

func waitFor(t *testing.T, events <-chan fsnotify.Event, name string, op fsnotify.Op) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Name == name && ev.Has(op) {
				return
			}
		case <-deadline:
			t.Fatalf("no %s event for %s", op, name)
		}
	}
}

func TestWatcherReportsRootChanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "existing"), 0770))

	rec := &countingRecorder{ops: map[string]int{}}
	w, err := NewWatcher(root, rec)
	require.NoError(t, err)
	events := make(chan fsnotify.Event, 64)
	w.Events = events

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	top := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(top, []byte("x"), 0660))
	waitFor(t, events, top, fsnotify.Create)

	nested := filepath.Join(root, "existing", "b.txt")
	require.NoError(t, os.WriteFile(nested, []byte("y"), 0660))
	waitFor(t, events, nested, fsnotify.Create)

	fresh := filepath.Join(root, "fresh")
	require.NoError(t, os.Mkdir(fresh, 0770))
	waitFor(t, events, fresh, fsnotify.Create)

	inFresh := filepath.Join(fresh, "c.txt")
	require.NoError(t, os.WriteFile(inFresh, nil, 0660))
	waitFor(t, events, inFresh, fsnotify.Create)

	assert.GreaterOrEqual(t, rec.count("CREATE"), 4)
}

func TestNewWatcherMissingRoot(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}

func TestRunReturnsWhenEventsNotDrained(t *testing.T) {
	root := t.TempDir()
	rec := &countingRecorder{ops: map[string]int{}}
	w, err := NewWatcher(root, rec)
	require.NoError(t, err)
	w.Events = make(chan fsnotify.Event)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(root, "stuck"), nil, 0660))
	require.Eventually(t, func() bool {
		return rec.count("CREATE") >= 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
