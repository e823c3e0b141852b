package jobs_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vrsandeep/mango-pages/internal/config"
	"github.com/vrsandeep/mango-pages/internal/jobs"
	"github.com/vrsandeep/mango-pages/internal/models"
	"github.com/vrsandeep/mango-pages/internal/pagestore"
	"github.com/vrsandeep/mango-pages/internal/store"
	"github.com/vrsandeep/mango-pages/internal/testutil"
	"github.com/vrsandeep/mango-pages/internal/websocket"
)

// setupJobContext builds a job context over a fresh database and page root.
func setupJobContext(t *testing.T) *fakeJobContext {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = t.TempDir()
	ctx := &fakeJobContext{
		db:    testutil.SetupTestDB(t),
		cfg:   cfg,
		ws:    websocket.NewHub(),
		pages: pagestore.New(cfg.Storage.Path),
	}
	ctx.jobMgr = jobs.NewManager(ctx)
	jobs.RegisterDefaultJobs(ctx.jobMgr)
	return ctx
}

func waitForJob(t *testing.T, mgr *jobs.JobManager, id string) *jobs.JobStatus {
	t.Helper()
	var status *jobs.JobStatus
	require.Eventually(t, func() bool {
		for _, s := range mgr.GetStatus() {
			if s.ID == id && s.Status != "running" && s.Status != "idle" {
				status = s
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	return status
}

func TestRegisterDefaultJobs(t *testing.T) {
	ctx := setupJobContext(t)
	statuses := ctx.jobMgr.GetStatus()
	require.Len(t, statuses, 2)
	assert.Equal(t, jobs.PruneOrphansJob, statuses[0].ID)
	assert.Equal(t, jobs.SweepPartialsJob, statuses[1].ID)
	for _, s := range statuses {
		assert.Equal(t, "idle", s.Status)
	}
}

func TestRunSweepPartials(t *testing.T) {
	ctx := setupJobContext(t)
	_, err := ctx.pages.Write("book1", 0, strings.NewReader("page"))
	require.NoError(t, err)

	stale := filepath.Join(ctx.cfg.Storage.Path, "book1", ".part-1-abc")
	require.NoError(t, os.WriteFile(stale, []byte("half"), 0644))
	old := time.Now().Add(-2 * ctx.cfg.Jobs.PartialMaxAge)
	require.NoError(t, os.Chtimes(stale, old, old))

	require.NoError(t, ctx.jobMgr.RunJob(jobs.SweepPartialsJob, ctx))
	status := waitForJob(t, ctx.jobMgr, jobs.SweepPartialsJob)
	assert.Equal(t, "success", status.Status)

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("Expected the stale partial file to be removed")
	}
	assert.True(t, ctx.pages.Exists("book1", 0))
}

func TestRunPruneOrphans(t *testing.T) {
	ctx := setupJobContext(t)
	st := store.New(ctx.db)
	require.NoError(t, st.CreateItem(&models.Item{ID: "kept", Title: "Kept", Source: models.SourceE, URL: "https://e.example/g/1/a/", PageCount: 2}))

	for _, id := range []string{"kept", "gone", ctx.cfg.Storage.ScratchID} {
		_, err := ctx.pages.Write(id, 0, strings.NewReader("page"))
		require.NoError(t, err)
	}

	require.NoError(t, ctx.jobMgr.RunJob(jobs.PruneOrphansJob, ctx))
	status := waitForJob(t, ctx.jobMgr, jobs.PruneOrphansJob)
	assert.Equal(t, "success", status.Status)

	assert.True(t, ctx.pages.Exists("kept", 0))
	assert.True(t, ctx.pages.Exists(ctx.cfg.Storage.ScratchID, 0), "the preview folder is not an orphan")
	if ctx.pages.Exists("gone", 0) {
		t.Error("Expected the orphaned folder to be removed")
	}
}

func TestRunSweepPartialsFailure(t *testing.T) {
	ctx := setupJobContext(t)
	// A regular file on the way to the root makes the walk fail.
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	ctx.pages = pagestore.New(filepath.Join(file, "pages"))

	require.NoError(t, ctx.jobMgr.RunJob(jobs.SweepPartialsJob, ctx))
	status := waitForJob(t, ctx.jobMgr, jobs.SweepPartialsJob)
	assert.Equal(t, "failed", status.Status)
	assert.Contains(t, status.Message, "Sweep failed")
}
