package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosteleset/falprs-go/internal/logging"
)

func TestIDGroupFromScreenshotURL(t *testing.T) {
	assert.Equal(t, int32(42), idGroupFromScreenshotURL("/screens/group_42/ab/cd.json"))
	assert.Equal(t, int32(0), idGroupFromScreenshotURL("/screens/no-group-here.json"))
}

func TestGuardedSkipsWhileAlreadyRunning(t *testing.T) {
	r := New(nil, logging.NewDefault(), Config{})

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	slow := func(ctx context.Context) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(started)
		<-release
	}

	go r.guarded(context.Background(), "job", slow)
	<-started

	// A concurrent invocation while the first is still running must be a no-op.
	r.guarded(context.Background(), "job", slow)

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	close(release)
}

func TestGuardedRunsAgainAfterPriorCompletes(t *testing.T) {
	r := New(nil, logging.NewDefault(), Config{})
	var calls int
	fn := func(ctx context.Context) { calls++ }

	r.guarded(context.Background(), "job", fn)
	r.guarded(context.Background(), "job", fn)

	assert.Equal(t, 2, calls)
}

func TestSweepFilesRemovesOnlyOldMatchingExtensions(t *testing.T) {
	dir := t.TempDir()

	old := filepath.Join(dir, "old.jpg")
	fresh := filepath.Join(dir, "fresh.jpg")
	ignored := filepath.Join(dir, "notes.txt")

	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(ignored, []byte("x"), 0o644))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	cutoff := time.Now().Add(-time.Minute)
	sweepFiles(dir, cutoff, logging.NewDefault())

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err), "old matching-extension file should be removed")

	_, err = os.Stat(fresh)
	assert.NoError(t, err, "fresh file should survive")

	_, err = os.Stat(ignored)
	assert.NoError(t, err, "non-matching extension should survive regardless of age")
}

func TestSweepFilesEmptyRootIsNoop(t *testing.T) {
	sweepFiles("", time.Now(), logging.NewDefault())
}
