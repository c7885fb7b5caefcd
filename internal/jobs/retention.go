package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"streetlight/internal/services"
)

// RetentionJob prunes conversations whose last activity is older than the
// configured retention window. A retentionDays of 0 disables pruning.
type RetentionJob struct {
	scheduler     gocron.Scheduler
	store         services.ConversationStore
	retentionDays int
}

// NewRetentionJob creates the job. Call Start to begin the daily schedule.
func NewRetentionJob(store services.ConversationStore, retentionDays int) (*RetentionJob, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &RetentionJob{
		scheduler:     scheduler,
		store:         store,
		retentionDays: retentionDays,
	}, nil
}

// Start schedules the daily pruning run.
func (j *RetentionJob) Start() error {
	if j.retentionDays <= 0 {
		log.Println("⏰ [RETENTION] Conversation retention disabled")
		return nil
	}

	_, err := j.scheduler.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(j.run),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule retention job: %w", err)
	}

	j.scheduler.Start()
	log.Printf("⏰ [RETENTION] Pruning conversations idle for more than %d days, daily", j.retentionDays)
	return nil
}

// Stop shuts the scheduler down, waiting for an in-flight run.
func (j *RetentionJob) Stop() error {
	return j.scheduler.Shutdown()
}

func (j *RetentionJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)
	deleted, err := j.store.DeleteIdleBefore(ctx, cutoff)
	if err != nil {
		log.Printf("❌ [RETENTION] Cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("🧹 [RETENTION] Removed %d idle conversations (cutoff %s)", deleted, cutoff.Format(time.RFC3339))
	}
}
