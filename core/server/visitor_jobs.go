package server

import (
	"context"
	"fmt"
	"time"

	"github.com/EMADHASSAN-123/Al-shifa-association/core/visitors"
	"github.com/EMADHASSAN-123/Al-shifa-association/core/visitors/pbstore"

	"github.com/pocketbase/pocketbase/core"
)

// Visitor job ids.
const (
	JobDailySnapshot = "visitors_daily_snapshot"
	JobGatePrune     = "visitors_gate_prune"
)

const visitorJobTimeout = time.Minute

// RegisterVisitorJobs schedules the daily snapshot and gate pruning jobs.
func RegisterVisitorJobs(app core.App, jm *JobManager, t *Tracking) error {
	if err := jm.RegisterJob(
		JobDailySnapshot,
		"Daily visitors snapshot",
		"Stores yesterday's unique visitor count",
		"5 0 * * *",
		func(log *JobExecutionLogger) error {
			ctx, cancel := context.WithTimeout(context.Background(), visitorJobTimeout)
			defer cancel()
			return snapshotYesterday(ctx, app, t, log)
		},
	); err != nil {
		return err
	}

	return jm.RegisterJob(
		JobGatePrune,
		"Visitor gate pruning",
		"Drops once-per-day markers from previous days",
		"30 0 * * *",
		func(log *JobExecutionLogger) error {
			ctx, cancel := context.WithTimeout(context.Background(), visitorJobTimeout)
			defer cancel()
			return pruneGate(ctx, t, log)
		},
	)
}

func snapshotYesterday(ctx context.Context, app core.App, t *Tracking, log *JobExecutionLogger) error {
	yesterday := time.Now().In(t.Location()).AddDate(0, 0, -1)
	day := visitors.DayKey(yesterday, t.Location())

	count, err := t.Stats().DayUnique(ctx, yesterday)
	if err != nil {
		return fmt.Errorf("count visitors of %s: %w", day, err)
	}
	if err := pbstore.SnapshotDaily(app, day, count); err != nil {
		return err
	}

	log.Complete(fmt.Sprintf("%s: %d unique visitors", day, count))
	return nil
}

func pruneGate(ctx context.Context, t *Tracking, log *JobExecutionLogger) error {
	if t.Gate() == nil {
		log.Warn("No gate configured")
		return nil
	}

	pruner, ok := t.Gate().Store().(visitors.Pruner)
	if !ok {
		log.Complete("gate store expires keys itself")
		return nil
	}

	removed, err := pruner.Prune(ctx, t.Gate().Today())
	if err != nil {
		return fmt.Errorf("prune gate: %w", err)
	}

	log.Complete(fmt.Sprintf("removed %d markers", removed))
	return nil
}
