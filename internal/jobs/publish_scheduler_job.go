package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	config "github.com/maheshrc27/post-dispatch/configs"
	"github.com/maheshrc27/post-dispatch/internal/models"
	"github.com/maheshrc27/post-dispatch/internal/repository"
	"github.com/maheshrc27/post-dispatch/internal/service"
	"github.com/robfig/cron"
	"golang.org/x/sync/errgroup"
)

const (
	PolicyMarkDone = "mark_done"
	PolicyRetry    = "retry"
)

// ErrTickInProgress is returned when a run is already active. The active run makes one more
// pass before it returns, so the hours the caller wanted are still scanned.
var ErrTickInProgress = errors.New("publish run already active, pass queued")

// TickReport summarizes one scheduler run.
type TickReport struct {
	Due          int
	Skipped      int
	Published    int
	Rescheduled  int
	Failed       int
	NotifyFailed int
	Errors       []error
}

type PublishSchedulerJob struct {
	cfg         config.Scheduler
	posts       repository.PostRepository
	connections service.ConnectionService
	dispatcher  service.DispatcherService
	notifier    service.Notifier
	clock       func() time.Time

	mu      sync.Mutex
	running bool
	rerun   bool
	// scanned is the newest hour slot whose due query completed.
	scanned time.Time
}

func NewPublishSchedulerJob(
	cfg config.Scheduler,
	posts repository.PostRepository,
	connections service.ConnectionService,
	dispatcher service.DispatcherService,
	notifier service.Notifier) *PublishSchedulerJob {
	return &PublishSchedulerJob{
		cfg:         cfg,
		posts:       posts,
		connections: connections,
		dispatcher:  dispatcher,
		notifier:    notifier,
		clock:       time.Now,
	}
}

// Start runs a catch-up pass in the background and registers the hourly tick. The caller
// stops the returned cron. A tick firing while the catch-up is still running is folded
// into it as an extra pass.
func (j *PublishSchedulerJob) Start(ctx context.Context) (*cron.Cron, error) {
	c := cron.NewWithLocation(time.UTC)
	err := c.AddFunc(j.cfg.Spec, func() {
		if _, err := j.Tick(ctx); err != nil && !errors.Is(err, ErrTickInProgress) {
			slog.Error("publish tick failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule publish job: %w", err)
	}

	go func() {
		if _, err := j.CatchUp(ctx); err != nil && !errors.Is(err, ErrTickInProgress) {
			slog.Error("startup catch-up failed", "error", err)
		}
	}()

	c.Start()
	return c, nil
}

// Tick publishes posts due in every hour since the last completed scan, the current hour
// included. The first tick of a process only looks at the current hour.
func (j *PublishSchedulerJob) Tick(ctx context.Context) (*TickReport, error) {
	return j.run(ctx, false)
}

// CatchUp publishes posts due in any hour of the catch-up window, the current hour included.
func (j *PublishSchedulerJob) CatchUp(ctx context.Context) (*TickReport, error) {
	return j.run(ctx, true)
}

// HourSlot splits t into the day and zero-padded hour a post is scheduled by.
func HourSlot(t time.Time) (time.Time, string) {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), fmt.Sprintf("%02d", t.Hour())
}

func (j *PublishSchedulerJob) run(ctx context.Context, catchUp bool) (*TickReport, error) {
	j.mu.Lock()
	if j.running {
		j.rerun = true
		j.mu.Unlock()
		slog.Warn("publish run still active, queued another pass")
		return nil, ErrTickInProgress
	}
	j.running = true
	j.mu.Unlock()

	report := &TickReport{}
	for {
		now := j.clock().UTC()
		slots := j.slots(now, catchUp)
		completed := j.pass(ctx, now, slots, report)

		j.mu.Lock()
		if completed.After(j.scanned) {
			j.scanned = completed
		}
		if !j.rerun || ctx.Err() != nil {
			j.running = false
			j.rerun = false
			j.mu.Unlock()
			break
		}
		j.rerun = false
		j.mu.Unlock()
		catchUp = false
	}

	slog.Info("publish run finished",
		"due", report.Due,
		"published", report.Published,
		"rescheduled", report.Rescheduled,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"notify_failed", report.NotifyFailed,
		"errors", len(report.Errors))
	for _, err := range report.Errors {
		slog.Error("publish run error", "error", err)
	}
	return report, nil
}

// slots lists the hour slots a pass scans, oldest first. Never older than the catch-up window.
func (j *PublishSchedulerJob) slots(now time.Time, catchUp bool) []time.Time {
	current := now.Truncate(time.Hour)
	oldest := current.Add(-j.cfg.CatchUpWindow).Truncate(time.Hour)

	j.mu.Lock()
	scanned := j.scanned
	j.mu.Unlock()

	start := current
	switch {
	case catchUp:
		start = oldest
	case !scanned.IsZero() && scanned.Before(current):
		start = scanned.Add(time.Hour)
		if start.Before(oldest) {
			start = oldest
		}
	}

	var slots []time.Time
	for slot := start; !slot.After(current); slot = slot.Add(time.Hour) {
		slots = append(slots, slot)
	}
	return slots
}

// pass publishes everything due in slots and returns the newest slot scanned without a
// query error, or the zero time.
func (j *PublishSchedulerJob) pass(ctx context.Context, now time.Time, slots []time.Time, report *TickReport) time.Time {
	due, completed := j.collect(ctx, now, slots, report)
	report.Due += len(due)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(j.cfg.Concurrency, 1))

	for _, post := range due {
		g.Go(func() error {
			outcome, result, err := j.processPost(gctx, post, now)

			var notifyErr error
			if err == nil && result != nil && !result.Success {
				notifyErr = j.notifier.NotifyFailures(gctx, post, result.Errors)
			}

			mu.Lock()
			defer mu.Unlock()
			if notifyErr != nil {
				report.NotifyFailed++
			}
			if err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("post %s: %w", post.ID, err))
				return nil
			}
			switch outcome {
			case outcomeSkipped:
				report.Skipped++
			case outcomePublished:
				report.Published++
			case outcomeRescheduled:
				report.Rescheduled++
			case outcomeFailed:
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()
	return completed
}

// collect gathers candidate posts, deduplicated by id. Query errors go to the report; the
// returned slot is the last one before the first failed due query.
func (j *PublishSchedulerJob) collect(ctx context.Context, now time.Time, slots []time.Time, report *TickReport) ([]*models.Post, time.Time) {
	seen := map[string]bool{}
	var due []*models.Post
	add := func(posts []*models.Post) {
		for _, p := range posts {
			if !seen[p.ID] {
				seen[p.ID] = true
				due = append(due, p)
			}
		}
	}

	var completed time.Time
	failed := false
	for _, slot := range slots {
		day, hour := HourSlot(slot)
		posts, err := j.posts.FindDue(ctx, day, hour)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("find due %s %s: %w", day.Format(time.DateOnly), hour, err))
			failed = true
			continue
		}
		if !failed {
			completed = slot
		}
		add(posts)
	}

	if j.cfg.StatusPolicy == PolicyRetry {
		posts, err := j.posts.FindRetryable(ctx, now)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("find retryable: %w", err))
		}
		add(posts)
	}

	if j.cfg.LeaseTTL > 0 {
		posts, err := j.posts.FindStale(ctx, now.Add(-j.cfg.LeaseTTL))
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("find stale: %w", err))
		}
		add(posts)
	}
	return due, completed
}

type postOutcome int

const (
	outcomeSkipped postOutcome = iota
	outcomePublished
	outcomeRescheduled
	outcomeFailed
)

// processPost returns the dispatch result whenever a dispatch ran and its status was saved.
func (j *PublishSchedulerJob) processPost(ctx context.Context, post *models.Post, now time.Time) (postOutcome, *models.DispatchResult, error) {
	if post.Status != models.PostStatusScheduled && post.Status != models.PostStatusPublishing {
		return outcomeSkipped, nil, nil
	}
	if post.Status == models.PostStatusScheduled && post.NextAttemptAt != nil && post.NextAttemptAt.After(now) {
		return outcomeSkipped, nil, nil
	}

	claimed, err := j.posts.Claim(ctx, post.ID, now, now.Add(-j.leaseTTL()))
	if err != nil {
		return outcomeSkipped, nil, fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		slog.Debug("post claimed elsewhere", "post_id", post.ID)
		return outcomeSkipped, nil, nil
	}

	conn, err := j.connections.GetConnection(ctx, post.AccountID)
	if err != nil {
		j.release(ctx, post.ID)
		return outcomeSkipped, nil, err
	}

	var pending []string
	for _, platform := range post.Platforms {
		if !post.HasPublished(platform) {
			pending = append(pending, platform)
		}
	}

	result := j.dispatcher.PublishPlatforms(ctx, conn, post, pending)

	outcome, err := j.applyPolicy(ctx, post, result, now)
	if err != nil {
		return outcome, nil, err
	}
	return outcome, result, nil
}

func (j *PublishSchedulerJob) applyPolicy(ctx context.Context, post *models.Post, result *models.DispatchResult, now time.Time) (postOutcome, error) {
	lastError := joinErrors(result.Errors)
	patch := models.PostPatch{LastError: &lastError, ClearClaim: true}

	outcome := outcomePublished
	status := models.PostStatusPublished

	if j.cfg.StatusPolicy == PolicyRetry && !result.Success {
		attempts := post.Attempts + 1
		patch.Attempts = &attempts

		if attempts >= j.cfg.MaxAttempts {
			status = models.PostStatusFailed
			outcome = outcomeFailed
			patch.ClearNextAt = true
		} else {
			status = models.PostStatusScheduled
			outcome = outcomeRescheduled
			next := now.Add(j.backoff(attempts))
			patch.NextAttemptAt = &next
		}
	} else {
		patch.PublishedAt = &now
		patch.ClearNextAt = true
	}

	patch.Status = &status
	if err := j.posts.Update(ctx, post.ID, patch); err != nil {
		return outcomeSkipped, fmt.Errorf("update status to %s: %w", status, err)
	}
	post.Status = status
	return outcome, nil
}

// backoff returns base * 2^(attempt-1), capped at the configured maximum.
func (j *PublishSchedulerJob) backoff(attempt int) time.Duration {
	d := j.cfg.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if j.cfg.RetryMaxDelay > 0 && d >= j.cfg.RetryMaxDelay {
			return j.cfg.RetryMaxDelay
		}
	}
	if j.cfg.RetryMaxDelay > 0 && d > j.cfg.RetryMaxDelay {
		return j.cfg.RetryMaxDelay
	}
	return d
}

func (j *PublishSchedulerJob) leaseTTL() time.Duration {
	if j.cfg.LeaseTTL > 0 {
		return j.cfg.LeaseTTL
	}
	return time.Hour
}

// release puts a claimed post back to scheduled so the next tick can pick it up.
func (j *PublishSchedulerJob) release(ctx context.Context, postID string) {
	status := models.PostStatusScheduled
	if err := j.posts.Update(ctx, postID, models.PostPatch{Status: &status, ClearClaim: true}); err != nil {
		slog.Error("unable to release post", "post_id", postID, "error", err)
	}
}

func joinErrors(errs []models.PlatformError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Platform+": "+e.Error)
	}
	return strings.Join(parts, "; ")
}
