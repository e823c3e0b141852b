package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/vrsandeep/mango-pages/internal/models"
	"github.com/vrsandeep/mango-pages/internal/store"
)

const (
	SweepPartialsJob = "sweep-partials"
	PruneOrphansJob  = "prune-orphans"
)

// RegisterDefaultJobs adds the built-in maintenance jobs to jm.
func RegisterDefaultJobs(jm *JobManager) {
	jm.Register(SweepPartialsJob, "Sweep Partial Downloads", RunSweepPartials)
	jm.Register(PruneOrphansJob, "Prune Orphaned Page Folders", RunPruneOrphans)
}

// StartJobs starts the background job scheduler. The caller stops it.
func StartJobs(app JobContext) *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	startSweepJob(s, app)

	log.Println("Starting background job scheduler...")
	s.StartAsync()
	return s
}

func startSweepJob(s *gocron.Scheduler, app JobContext) {
	interval := app.Config().Jobs.SweepInterval
	if interval == 0 {
		log.Println("Sweep interval is 0, scheduled sweep is disabled.")
		return
	}

	jobId := SweepPartialsJob
	log.Printf("Scheduling job: '%s' to run every %d minutes.", jobId, interval)

	_, err := s.Every(interval).Minutes().Do(func() {
		log.Println("Scheduler is triggering job:", jobId)
		// Go through the manager so a manual run and a scheduled run never overlap.
		err := app.JobManager().RunJob(jobId, app)
		if err != nil {
			log.Printf("Scheduled job '%s' could not start: %v", jobId, err)
		}
	})
	if err != nil {
		log.Printf("Error scheduling '%s' job: %v", jobId, err)
	}
}

// sendProgress sends a progress update via WebSocket to connected clients.
func sendProgress(ctx JobContext, jobId string, message string, progress float64, done bool) {
	ctx.WsHub().BroadcastJSON(models.ProgressUpdate{
		JobID:    jobId,
		Message:  message,
		Progress: progress,
		Done:     done,
	})
}

// RunSweepPartials removes temp files left behind by interrupted downloads.
func RunSweepPartials(ctx JobContext) {
	sendProgress(ctx, SweepPartialsJob, "Sweeping partial downloads...", 0, false)

	removed, err := ctx.Pages().SweepPartials(ctx.Config().Jobs.PartialMaxAge)
	if err != nil {
		msg := fmt.Sprintf("Sweep failed: %v", err)
		log.Println(msg)
		ctx.JobManager().fail(SweepPartialsJob, msg)
		sendProgress(ctx, SweepPartialsJob, msg, 100, true)
		return
	}

	msg := fmt.Sprintf("Sweep complete. Removed %d partial files.", removed)
	log.Println(msg)
	sendProgress(ctx, SweepPartialsJob, msg, 100, true)
}

// RunPruneOrphans deletes page folders whose item is no longer in the
// database. The scratch folder is left to the preview.
func RunPruneOrphans(ctx JobContext) {
	sendProgress(ctx, PruneOrphansJob, "Looking for orphaned page folders...", 0, false)

	fail := func(msg string) {
		log.Println(msg)
		ctx.JobManager().fail(PruneOrphansJob, msg)
		sendProgress(ctx, PruneOrphansJob, msg, 100, true)
	}

	items, err := store.New(ctx.DB()).ListItems()
	if err != nil {
		fail(fmt.Sprintf("Prune failed: could not list items: %v", err))
		return
	}
	known := make(map[string]bool, len(items))
	for _, item := range items {
		known[item.ID] = true
	}

	folders, err := ctx.Pages().Folders()
	if err != nil {
		fail(fmt.Sprintf("Prune failed: %v", err))
		return
	}

	removed := 0
	for i, id := range folders {
		if known[id] || id == ctx.Config().Storage.ScratchID {
			continue
		}
		if err := ctx.Pages().ClearAll(id); err != nil {
			log.Printf("Failed to remove orphaned folder %s: %v", id, err)
			continue
		}
		removed++
		progress := float64(i+1) / float64(len(folders)) * 100
		sendProgress(ctx, PruneOrphansJob, fmt.Sprintf("Removed %s", id), progress, false)
	}

	msg := fmt.Sprintf("Prune complete. Removed %d orphaned folders.", removed)
	log.Println(msg)
	sendProgress(ctx, PruneOrphansJob, msg, 100, true)
}
