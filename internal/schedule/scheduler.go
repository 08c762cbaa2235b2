package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LaliChicken/active-role-bot/internal/activity"
	"github.com/LaliChicken/active-role-bot/internal/evaluation"
	"github.com/LaliChicken/active-role-bot/internal/metrics"
	"github.com/LaliChicken/active-role-bot/internal/weeks"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	errMissingStore     = errors.New("schedule: activity store is required")
	errMissingEvaluator = errors.New("schedule: evaluator is required")
)

// ConfigLister lists every stored community configuration.
type ConfigLister interface {
	ListConfigs(ctx context.Context) ([]activity.CommunityConfig, error)
}

// Evaluator runs one community evaluation.
type Evaluator interface {
	Evaluate(ctx context.Context, communityID string, at time.Time) (evaluation.Report, error)
}

// GroupKey identifies communities that share an evaluation instant.
type GroupKey struct {
	WeekStart weeks.WeekStart
	Timezone  string
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s@%s", k.WeekStart, k.Timezone)
}

// Config describes the scheduler dependencies.
type Config struct {
	Store     ConfigLister
	Evaluator Evaluator
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Clock     func() time.Time
}

type group struct {
	entryID     cron.EntryID
	communities []string
}

// weeklySchedule fires at weeks.NextEvaluation so the cron entry and the displayed next
// evaluation agree, including on dates where local midnight is skipped.
type weeklySchedule struct {
	loc       *time.Location
	weekStart weeks.WeekStart
}

// Next returns the first evaluation instant strictly after t.
func (w weeklySchedule) Next(t time.Time) time.Time {
	return weeks.NextEvaluation(w.loc, w.weekStart, t.Add(time.Second))
}

// Scheduler keeps one cron entry per (week start, timezone) group and evaluates the group's
// communities when it fires.
type Scheduler struct {
	store     ConfigLister
	evaluator Evaluator
	logger    *zap.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time
	cron      *cron.Cron

	mu      sync.Mutex
	groups  map[GroupKey]*group
	baseCtx context.Context
}

func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Evaluator == nil {
		return nil, errMissingEvaluator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	runner := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)
	return &Scheduler{
		store:     cfg.Store,
		evaluator: cfg.Evaluator,
		logger:    logger,
		metrics:   cfg.Metrics,
		clock:     clock,
		cron:      runner,
		groups:    make(map[GroupKey]*group),
		baseCtx:   context.Background(),
	}, nil
}

// Start registers the current groups and starts firing. Runs triggered after Start use ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started")
	return nil
}

// Stop halts firing and waits for in-flight runs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Refresh re-derives the groups from the stored configurations, adding entries for new groups,
// removing groups that became empty and updating membership of the rest.
func (s *Scheduler) Refresh(ctx context.Context) error {
	configs, err := s.store.ListConfigs(ctx)
	if err != nil {
		return fmt.Errorf("list configs: %w", err)
	}
	desired := s.group(configs)

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, existing := range s.groups {
		if _, keep := desired[key]; keep {
			continue
		}
		s.cron.Remove(existing.entryID)
		delete(s.groups, key)
		s.logger.Info("schedule group removed", zap.String("group", key.String()))
	}
	for key, communities := range desired {
		if existing, ok := s.groups[key]; ok {
			existing.communities = communities
			continue
		}
		loc, err := weeks.LoadLocation(key.Timezone)
		if err != nil {
			s.logger.Warn("schedule group not registered", zap.String("group", key.String()), zap.Error(err))
			continue
		}
		entryID := s.cron.Schedule(weeklySchedule{loc: loc, weekStart: key.WeekStart}, cron.FuncJob(s.fireFunc(key)))
		s.groups[key] = &group{entryID: entryID, communities: communities}
		s.logger.Info("schedule group added",
			zap.String("group", key.String()),
			zap.Int("communities", len(communities)))
	}
	s.metrics.SetScheduleGroups(len(s.groups))
	return nil
}

// snapshot returns a copy of the registered groups and their communities.
func (s *Scheduler) snapshot() map[GroupKey][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[GroupKey][]string, len(s.groups))
	for key, existing := range s.groups {
		snapshot[key] = append([]string(nil), existing.communities...)
	}
	return snapshot
}

// nextFiring returns the next firing time of a group, or the zero time when it is not registered.
func (s *Scheduler) nextFiring(key GroupKey) time.Time {
	s.mu.Lock()
	existing, ok := s.groups[key]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(existing.entryID).Next
}

// RunGroup evaluates each community of the group in order. A failing community does not stop the
// others.
func (s *Scheduler) RunGroup(ctx context.Context, key GroupKey, at time.Time) {
	s.mu.Lock()
	existing, ok := s.groups[key]
	var communities []string
	if ok {
		communities = append(communities, existing.communities...)
	}
	s.mu.Unlock()

	for _, communityID := range communities {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.evaluator.Evaluate(ctx, communityID, at); err != nil {
			s.logger.Warn("scheduled evaluation failed",
				zap.String("group", key.String()),
				zap.String("community_id", communityID),
				zap.Error(err))
		}
	}
}

func (s *Scheduler) fireFunc(key GroupKey) func() {
	return func() {
		s.mu.Lock()
		ctx := s.baseCtx
		s.mu.Unlock()
		s.RunGroup(ctx, key, s.clock())
	}
}

func (s *Scheduler) group(configs []activity.CommunityConfig) map[GroupKey][]string {
	desired := make(map[GroupKey][]string)
	for _, cfg := range configs {
		if !cfg.HasRole() {
			continue
		}
		if _, err := weeks.LoadLocation(cfg.Timezone); err != nil {
			s.logger.Warn("community skipped by scheduler",
				zap.String("community_id", cfg.CommunityID),
				zap.String("reason", "invalid_timezone"),
				zap.Error(err))
			continue
		}
		weekStart, err := weeks.ParseWeekStart(cfg.WeekStart)
		if err != nil {
			s.logger.Warn("community skipped by scheduler",
				zap.String("community_id", cfg.CommunityID),
				zap.String("reason", "invalid_week_start"),
				zap.Error(err))
			continue
		}
		key := GroupKey{WeekStart: weekStart, Timezone: cfg.Timezone}
		desired[key] = append(desired[key], cfg.CommunityID)
	}
	for key := range desired {
		sort.Strings(desired[key])
	}
	return desired
}
