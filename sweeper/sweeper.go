package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	PurgeJobName = "purge expired challenges and attempts"
	StatsJobName = "daily authentication stats"
)

// Engine is the part of [phoneauth.Engine] the sweeper drives.
type Engine interface {
	PurgeExpired(ctx context.Context, now time.Time) (phoneauth.PurgeReport, error)
	Stats(ctx context.Context, since time.Time) (phoneauth.Stats, error)
}

// Config controls job timing.
type Config struct {
	// PurgeInterval is the time between purges. Default 1h.
	PurgeInterval time.Duration
	// StatsHour and StatsMinute set the UTC time of the daily stats job.
	// Default 00:05.
	StatsHour   uint
	StatsMinute uint
	// StatsWindow is how far back the daily stats look. Default 24h.
	StatsWindow time.Duration
	// DisableStats skips the daily stats job.
	DisableStats bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns hourly purges and stats at 00:05 UTC.
func DefaultConfig() Config {
	return Config{
		PurgeInterval: time.Hour,
		StatsHour:     0,
		StatsMinute:   5,
		StatsWindow:   24 * time.Hour,
	}
}

// Sweeper owns a gocron scheduler running the retention jobs.
type Sweeper struct {
	engine    Engine
	config    Config
	logger    zerolog.Logger
	scheduler gocron.Scheduler
}

// New creates the scheduler and registers the jobs. Call Start to begin
// and Shutdown to stop. Extra scheduler options are appended after the
// defaults.
func New(ctx context.Context, engine Engine, cfg Config, logger zerolog.Logger, opts ...gocron.SchedulerOption) (*Sweeper, error) {
	if engine == nil {
		return nil, errors.New("sweeper: nil engine")
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = time.Hour
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 24 * time.Hour
	}
	if cfg.StatsHour > 23 || cfg.StatsMinute > 59 {
		return nil, errors.New("sweeper: invalid stats time")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Sweeper{
		engine: engine,
		config: cfg,
		logger: logger.With().Str("component", "sweeper").Logger(),
	}

	scheduler, err := gocron.NewScheduler(append([]gocron.SchedulerOption{
		gocron.WithGlobalJobOptions(
			gocron.WithContext(ctx),
			gocron.WithEventListeners(s.eventListeners()...),
		),
		gocron.WithLogger(schedulerLogger{l: s.logger}),
		gocron.WithLocation(time.UTC),
	}, opts...)...)
	if err != nil {
		return nil, err
	}
	s.scheduler = scheduler

	if _, err := scheduler.NewJob(
		gocron.DurationJob(cfg.PurgeInterval),
		gocron.NewTask(s.RunPurge),
		gocron.WithName(PurgeJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}

	if !cfg.DisableStats {
		if _, err := scheduler.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(cfg.StatsHour, cfg.StatsMinute, 0))),
			gocron.NewTask(s.RunStats),
			gocron.WithName(StatsJobName),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			_ = scheduler.Shutdown()
			return nil, err
		}
	}

	return s, nil
}

// Start begins running jobs.
func (s *Sweeper) Start() {
	s.scheduler.Start()
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Sweeper) Shutdown() error {
	return s.scheduler.Shutdown()
}

// Jobs returns the names of the registered jobs.
func (s *Sweeper) Jobs() []string {
	jobs := s.scheduler.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

// RunPurge runs one purge now.
func (s *Sweeper) RunPurge(ctx context.Context) error {
	report, err := s.engine.PurgeExpired(ctx, s.config.Now())
	if err != nil {
		return err
	}
	s.logger.Info().Object("purged", report).Msg("retention sweep complete")
	return nil
}

// RunStats logs the statistics for the configured window ending now.
func (s *Sweeper) RunStats(ctx context.Context) error {
	since := s.config.Now().Add(-s.config.StatsWindow)
	stats, err := s.engine.Stats(ctx, since)
	if err != nil {
		return err
	}
	s.logger.Info().EmbedObject(stats).Msg("daily authentication stats")
	return nil
}

func (s *Sweeper) eventListeners() []gocron.EventListener {
	zlog := s.logger
	return []gocron.EventListener{
		gocron.BeforeJobRuns(func(jobID uuid.UUID, jobName string) {
			zlog.Debug().Str("job_name", jobName).Str("job_id", jobID.String()).Msg("job started")
		}),
		gocron.AfterJobRuns(func(jobID uuid.UUID, jobName string) {
			zlog.Debug().Str("job_name", jobName).Str("job_id", jobID.String()).Msg("job finished")
		}),
		gocron.AfterJobRunsWithError(func(jobID uuid.UUID, jobName string, err error) {
			zlog.Err(err).Str("job_name", jobName).Str("job_id", jobID.String()).Msg("job failed")
		}),
		gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
			zlog.Error().Str("job_name", jobName).Str("job_id", jobID.String()).Any("recover_data", recoverData).Msg("job panicked")
		}),
	}
}

// schedulerLogger adapts zerolog to gocron.Logger. gocron passes
// key/value pairs after the message.
type schedulerLogger struct {
	l zerolog.Logger
}

func (l schedulerLogger) Debug(msg string, args ...any) {
	l.l.Debug().Fields(args).Msg(msg)
}

func (l schedulerLogger) Error(msg string, args ...any) {
	l.l.Error().Fields(args).Msg(msg)
}

func (l schedulerLogger) Info(msg string, args ...any) {
	l.l.Info().Fields(args).Msg(msg)
}

func (l schedulerLogger) Warn(msg string, args ...any) {
	l.l.Warn().Fields(args).Msg(msg)
}
