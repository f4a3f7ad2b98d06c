package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amandrive/internal/config"
	"github.com/Aman-CERP/amandrive/internal/engine"
	"github.com/Aman-CERP/amandrive/internal/search"
	"github.com/Aman-CERP/amandrive/internal/watcher"
)

// Live sync tests run the engine with a watcher on a real directory, the
// way 'amandrive serve' does, and observe changes through search.

const (
	waitFor = 5 * time.Second
	tick    = 25 * time.Millisecond
)

// liveDrive is a running engine fed by a watcher.
type liveDrive struct {
	root   string
	engine *engine.Engine
}

func startLiveDrive(t *testing.T, forcePolling bool, seed map[string]string) *liveDrive {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := config.NewConfig()
	cfg.Storage.Root = t.TempDir()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Index.FlushInterval = "50ms"
	cfg.Index.SweepInterval = "0"
	require.NoError(t, cfg.Validate())

	d := &liveDrive{root: cfg.Storage.Root}
	for rel, body := range seed {
		d.write(t, rel, body)
	}

	e, err := engine.New(cfg, engine.WithInMemoryIndex())
	require.NoError(t, err)
	d.engine = e

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, e.Start(ctx))
	_, err = e.Reindex(ctx)
	require.NoError(t, err)

	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: 50 * time.Millisecond,
		PollInterval:   100 * time.Millisecond,
		ForcePolling:   forcePolling,
		Ignore:         e.Ignore(),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = w.Start(ctx, cfg.Storage.Root)
	}()
	go func() {
		defer wg.Done()
		e.ConsumeEvents(ctx, w.Events())
	}()

	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
		wg.Wait()
		require.NoError(t, e.Close())
	})

	// Let the watcher register the tree.
	time.Sleep(200 * time.Millisecond)
	return d
}

func (d *liveDrive) write(t *testing.T, rel, body string) {
	t.Helper()
	path := filepath.Join(d.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func (d *liveDrive) names(t *testing.T, owner, keyword string) []string {
	t.Helper()
	resp, err := d.engine.Search(context.Background(), search.Request{OwnerID: owner, Keyword: keyword})
	require.NoError(t, err)
	names := make([]string, 0, len(resp.Files))
	for _, f := range resp.Files {
		names = append(names, f.Name)
	}
	return names
}

func (d *liveDrive) eventuallyFinds(t *testing.T, owner, keyword, name string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		for _, n := range d.names(t, owner, keyword) {
			if n == name {
				return true
			}
		}
		return false
	}, waitFor, tick, "%s never found %q for %s", keyword, name, owner)
}

func TestLiveSync_SeededFilesAreSearchable(t *testing.T) {
	// Given: a drive indexed at startup
	d := startLiveDrive(t, false, map[string]string{
		"alice/docs/roadmap.md": "launch plan for the winter release",
	})

	// Then: the file is found by name and by content
	assert.Equal(t, []string{"roadmap.md"}, d.names(t, "alice", "roadmap"))
	assert.Equal(t, []string{"roadmap.md"}, d.names(t, "alice", "winter"))
}

func TestLiveSync_CreatedFileBecomesSearchable(t *testing.T) {
	for _, polling := range []bool{false, true} {
		name := "fsnotify"
		if polling {
			name = "polling"
		}
		t.Run(name, func(t *testing.T) {
			// Given: a running drive
			d := startLiveDrive(t, polling, map[string]string{"alice/readme.txt": "hello"})

			// When: a new file is uploaded
			d.write(t, "alice/invoices/march-invoice.txt", "amount due 4200")

			// Then: it is found by name and by content
			d.eventuallyFinds(t, "alice", "march", "march-invoice.txt")
			d.eventuallyFinds(t, "alice", "4200", "march-invoice.txt")
		})
	}
}

func TestLiveSync_ModifiedContentIsReindexed(t *testing.T) {
	// Given: a file with known content
	d := startLiveDrive(t, false, map[string]string{"alice/notes.txt": "apples"})
	require.Equal(t, []string{"notes.txt"}, d.names(t, "alice", "apples"))

	// When: its content changes
	time.Sleep(20 * time.Millisecond)
	d.write(t, "alice/notes.txt", "oranges")

	// Then: the new content is searchable and the old one is not
	d.eventuallyFinds(t, "alice", "oranges", "notes.txt")
	assert.Empty(t, d.names(t, "alice", "apples"))
}

func TestLiveSync_DeletedFileDisappears(t *testing.T) {
	// Given: an indexed file
	d := startLiveDrive(t, false, map[string]string{"alice/old-contract.pdf": "not a real pdf"})
	require.Equal(t, []string{"old-contract.pdf"}, d.names(t, "alice", "contract"))

	// When: it is deleted
	require.NoError(t, os.Remove(filepath.Join(d.root, "alice", "old-contract.pdf")))

	// Then: it is no longer found
	assert.Eventually(t, func() bool {
		return len(d.names(t, "alice", "contract")) == 0
	}, waitFor, tick)
}

func TestLiveSync_IgnoredFilesAreNeverIndexed(t *testing.T) {
	// Given: a drive whose owner ignores a scratch directory
	d := startLiveDrive(t, false, map[string]string{
		"alice/.driveignore": "scratch/\n",
		"alice/keep.txt":     "marker",
	})

	// When: files are written to ignored locations and a visible one
	d.write(t, "alice/scratch/marker-draft.txt", "marker")
	d.write(t, "alice/marker.tmp", "marker")
	d.write(t, "alice/marker-final.txt", "marker")

	// Then: only visible files are found
	d.eventuallyFinds(t, "alice", "marker-final", "marker-final.txt")
	assert.ElementsMatch(t, []string{"keep.txt", "marker-final.txt"}, d.names(t, "alice", "marker"))
}

func TestLiveSync_OwnersAreIsolated(t *testing.T) {
	// Given: two owners with files matching the same keyword
	d := startLiveDrive(t, false, map[string]string{
		"alice/budget-2024.xlsx": "",
		"bob/budget-2025.xlsx":   "",
	})

	// Then: each owner sees only their own file
	assert.Equal(t, []string{"budget-2024.xlsx"}, d.names(t, "alice", "budget"))
	assert.Equal(t, []string{"budget-2025.xlsx"}, d.names(t, "bob", "budget"))
	assert.Empty(t, d.names(t, "carol", "budget"))
}

func TestLiveSync_ConcurrentSearchesDuringIngest(t *testing.T) {
	// Given: a running drive
	d := startLiveDrive(t, false, map[string]string{"alice/seed.txt": "seed"})

	// When: searching from several goroutines while files arrive
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, err := d.engine.Search(context.Background(), search.Request{OwnerID: "alice", Keyword: "batch"})
					assert.NoError(t, err)
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		d.write(t, filepath.Join("alice", "batch", "batch-"+string(rune('a'+i))+".txt"), "batch file")
	}

	// Then: every file is eventually found and no search failed
	assert.Eventually(t, func() bool {
		resp, err := d.engine.Search(context.Background(), search.Request{OwnerID: "alice", Keyword: "batch", PageSize: 50})
		return err == nil && resp.TotalCount >= 20
	}, waitFor, tick)
	close(stop)
	wg.Wait()
}
