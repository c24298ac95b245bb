package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/relaytrack/relaytrack/internal/jobs"
)

// Poller is the ingestion pipeline surface the poll jobs drive.
type Poller interface {
	PollPackageScans(ctx context.Context, formID int64)
	PollDeviceBindings(ctx context.Context, formID int64)
}

// ScanPollJob periodically imports package tracking form submissions.
type ScanPollJob struct {
	Pipeline Poller
	FormID   int64
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewScanPollJob constructs the job handler.
func NewScanPollJob(pipeline Poller, formID int64, logger *slog.Logger, metrics *jobmetrics.Metrics) *ScanPollJob {
	return &ScanPollJob{
		Pipeline: pipeline,
		FormID:   formID,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one poll cycle. The pipeline swallows data-quality
// problems itself, so a non-nil return here means broken configuration.
func (j *ScanPollJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Pipeline == nil {
		return errors.New("scan poll: dependencies not configured")
	}
	tracker := j.metrics().Track(TaskScanPoll)
	start := j.now()
	j.Pipeline.PollPackageScans(ctx, j.FormID)
	j.log().Info("package scan poll finished",
		slog.Int64("form_id", j.FormID),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *ScanPollJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ScanPollJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskScanPoll))
	}
	return slog.Default().With(slog.String("job", TaskScanPoll))
}

func (j *ScanPollJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ScanPollJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
