package core

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_EnqueueDebouncesIntoRefresh(t *testing.T) {
	ix := newTestIndex(t, map[string]string{
		"main.md": "# Main\n",
	})
	w := NewWatcher(ix, nil)

	require.NoError(t, os.WriteFile(ix.Abs("extra.md"), []byte("# Extra\n"), 0o644))
	w.Enqueue("extra.md")
	assert.Equal(t, []string{"extra.md"}, w.Pending())

	ok := waitFor(t, 2*time.Second, func() bool {
		_, err := ix.GetSection("extra")
		return err == nil
	})
	assert.True(t, ok, "debounced refresh never ran")
	assert.Empty(t, w.Pending())
}

func TestWatcher_EnqueueBatchesPaths(t *testing.T) {
	ix := newTestIndex(t, map[string]string{
		"a.md": "# A\n",
	})
	w := NewWatcher(ix, nil)

	require.NoError(t, os.WriteFile(ix.Abs("b.md"), []byte("# B\n"), 0o644))
	require.NoError(t, os.WriteFile(ix.Abs("c.md"), []byte("# C\n"), 0o644))
	w.Enqueue("b.md")
	w.Enqueue("c.md")
	assert.Len(t, w.Pending(), 2)

	ok := waitFor(t, 2*time.Second, func() bool {
		return ix.SectionCount() == 3
	})
	assert.True(t, ok)
}

func TestWatcher_SuppressDropsEchoEvent(t *testing.T) {
	ix := newTestIndex(t, map[string]string{
		"main.md": "# Main\n",
	})
	w := NewWatcher(ix, nil)

	w.Suppress("main.md")
	w.Enqueue("main.md")
	assert.Empty(t, w.Pending())

	// Other paths are unaffected.
	w.Enqueue("other.md")
	assert.Equal(t, []string{"other.md"}, w.Pending())
}

func TestWatcher_EditorWiring(t *testing.T) {
	ix := newTestIndex(t, map[string]string{
		"main.md": "# Main\n\nbody\n",
	})
	w := NewWatcher(ix, nil)
	ed := NewEditor(ix)
	ed.OnWrite = w.Suppress

	require.True(t, ed.UpdateSection("main", "edited").Success)

	// The echo of our own write is discarded.
	w.Enqueue("main.md")
	assert.Empty(t, w.Pending())
}

func TestWatcher_DetectsExternalEdit(t *testing.T) {
	ix := newTestIndex(t, map[string]string{
		"main.adoc": "= Main\n\n== Overview\n\nBody.\n",
	})
	w := NewWatcher(ix, nil)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(ix.Abs("main.adoc"),
		[]byte("= Main\n\n== Summary\n\nBody.\n"), 0o644))

	ok := waitFor(t, 3*time.Second, func() bool {
		_, err := ix.GetSection("main.summary")
		return err == nil
	})
	assert.True(t, ok, "watcher never picked up the external edit")
	_, err := ix.GetSection("main.overview")
	assert.Error(t, err)
}

func TestWatcher_DetectsNewFile(t *testing.T) {
	ix := newTestIndex(t, map[string]string{
		"main.md": "# Main\n",
	})
	w := NewWatcher(ix, nil)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(ix.Abs("fresh.md"), []byte("# Fresh\n"), 0o644))

	ok := waitFor(t, 3*time.Second, func() bool {
		_, err := ix.GetSection("fresh")
		return err == nil
	})
	assert.True(t, ok, "watcher never indexed the new file")
}

func TestWatcher_RecoversFromDroppedWatch(t *testing.T) {
	ix := newTestIndex(t, map[string]string{
		"main.md": "# Main\n",
	})
	w := NewWatcher(ix, nil)
	require.NoError(t, w.Start())

	// Kill the underlying watch out from under the loop; a fresh instance
	// must take over and Stop must still return cleanly afterwards.
	w.mu.Lock()
	old := w.fw
	w.mu.Unlock()
	old.Close()

	ok := waitFor(t, 3*time.Second, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.fw != old
	})
	require.True(t, ok, "watcher never reinitialized")

	require.NoError(t, os.WriteFile(ix.Abs("late.md"), []byte("# Late\n"), 0o644))
	ok = waitFor(t, 3*time.Second, func() bool {
		_, err := ix.GetSection("late")
		return err == nil
	})
	assert.True(t, ok, "reinitialized watcher missed a new file")

	w.Stop()
}

func TestWatcher_IgnoresNonMarkup(t *testing.T) {
	ix := newTestIndex(t, map[string]string{
		"main.md": "# Main\n",
	})
	w := NewWatcher(ix, nil)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(ix.Abs("scratch.txt"), []byte("noise\n"), 0o644))
	time.Sleep(400 * time.Millisecond)
	assert.Empty(t, w.Pending())
	assert.Equal(t, 1, ix.SectionCount())
}
