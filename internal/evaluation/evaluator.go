package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LaliChicken/active-role-bot/internal/activity"
	"github.com/LaliChicken/active-role-bot/internal/metrics"
	"github.com/LaliChicken/active-role-bot/internal/weeks"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	ActionGrant  = "grant"
	ActionRevoke = "revoke"

	defaultWorkers     = 4
	defaultCallTimeout = 10 * time.Second
)

var (
	// ErrEvaluationInProgress is returned when a run for the same community has not finished.
	ErrEvaluationInProgress = errors.New("evaluation: run already in progress")

	errMissingStore    = errors.New("evaluation: activity store is required")
	errMissingPlatform = errors.New("evaluation: platform is required")
)

// Store is the read side of the activity store used by evaluation.
type Store interface {
	GetConfig(ctx context.Context, communityID string) (*activity.CommunityConfig, error)
	GetCounts(ctx context.Context, communityID, weekStart string) ([]activity.MemberCount, error)
}

// Platform applies role membership on the host chat platform.
type Platform interface {
	RoleMembers(ctx context.Context, communityID, roleID string) ([]string, error)
	GrantRole(ctx context.Context, communityID, memberID, roleID, reason string) error
	RevokeRole(ctx context.Context, communityID, memberID, roleID, reason string) error
}

// Notifier announces the result of a run.
type Notifier interface {
	NotifySummary(ctx context.Context, summary Summary) error
}

// Config describes the evaluator dependencies and limits.
type Config struct {
	Store             Store
	Platform          Platform
	Notifier          Notifier
	Logger            *zap.Logger
	Metrics           *metrics.Metrics
	Clock             func() time.Time
	Workers           int
	CallTimeout       time.Duration
	RequestsPerSecond float64
	SummaryEnabled    bool
}

// Failure records a role change that could not be applied.
type Failure struct {
	MemberID string `json:"memberId"`
	Action   string `json:"action"`
	Error    string `json:"error"`
}

// Report is the outcome of one evaluation run.
type Report struct {
	RunID       string                 `json:"runId"`
	CommunityID string                 `json:"communityId"`
	RoleID      string                 `json:"roleId,omitempty"`
	WeekStart   string                 `json:"weekStart,omitempty"`
	Threshold   int                    `json:"threshold"`
	Skipped     bool                   `json:"skipped"`
	Winners     []activity.MemberCount `json:"winners"`
	Granted     []string               `json:"granted"`
	Revoked     []string               `json:"revoked"`
	Failures    []Failure              `json:"failures"`
	Notified    bool                   `json:"notified"`
}

// Evaluator reconciles role membership with last week's activity.
type Evaluator struct {
	store          Store
	platform       Platform
	notifier       Notifier
	logger         *zap.Logger
	metrics        *metrics.Metrics
	clock          func() time.Time
	workers        int
	callTimeout    time.Duration
	limiter        *rate.Limiter
	summaryEnabled bool

	mu      sync.Mutex
	running map[string]struct{}
}

func NewEvaluator(cfg Config) (*Evaluator, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Platform == nil {
		return nil, errMissingPlatform
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Evaluator{
		store:          cfg.Store,
		platform:       cfg.Platform,
		notifier:       cfg.Notifier,
		logger:         logger,
		metrics:        cfg.Metrics,
		clock:          clock,
		workers:        workers,
		callTimeout:    callTimeout,
		limiter:        rate.NewLimiter(limit, 1),
		summaryEnabled: cfg.SummaryEnabled,
		running:        make(map[string]struct{}),
	}, nil
}

// Evaluate runs the weekly evaluation of communityID for the week before the one containing at.
// A zero at uses the evaluator clock.
func (e *Evaluator) Evaluate(ctx context.Context, communityID string, at time.Time) (Report, error) {
	if !e.acquire(communityID) {
		e.metrics.ObserveEvaluation("busy")
		return Report{}, ErrEvaluationInProgress
	}
	defer e.release(communityID)

	if at.IsZero() {
		at = e.clock()
	}
	report := Report{RunID: newRunID(), CommunityID: communityID}
	logger := e.logger.With(zap.String("run_id", report.RunID), zap.String("community_id", communityID))

	result, err := e.evaluate(ctx, logger, report, at)
	switch {
	case err != nil:
		e.metrics.ObserveEvaluation("failed")
		logger.Error("evaluation failed", zap.Error(err))
	case result.Skipped:
		e.metrics.ObserveEvaluation("skipped")
		logger.Info("evaluation skipped, no role configured")
	default:
		e.metrics.ObserveEvaluation("completed")
		logger.Info("evaluation completed",
			zap.String("week_start", result.WeekStart),
			zap.Int("winners", len(result.Winners)),
			zap.Int("granted", len(result.Granted)),
			zap.Int("revoked", len(result.Revoked)),
			zap.Int("failures", len(result.Failures)))
	}
	return result, err
}

func (e *Evaluator) evaluate(ctx context.Context, logger *zap.Logger, report Report, at time.Time) (Report, error) {
	cfg, err := e.store.GetConfig(ctx, report.CommunityID)
	if err != nil {
		return report, fmt.Errorf("load config: %w", err)
	}
	if cfg == nil || !cfg.HasRole() {
		report.Skipped = true
		return report, nil
	}
	report.RoleID = cfg.Role()
	report.Threshold = cfg.Threshold

	loc, err := weeks.LoadLocation(cfg.Timezone)
	if err != nil {
		return report, err
	}
	weekStart, err := weeks.ParseWeekStart(cfg.WeekStart)
	if err != nil {
		return report, err
	}
	previous := weeks.PreviousWeekStart(loc, weekStart, at).String()
	report.WeekStart = previous

	counts, err := e.store.GetCounts(ctx, report.CommunityID, previous)
	if err != nil {
		return report, fmt.Errorf("load counts: %w", err)
	}
	report.Winners = Winners(counts, cfg.Threshold)

	holders, err := e.platform.RoleMembers(ctx, report.CommunityID, report.RoleID)
	if err != nil {
		return report, fmt.Errorf("fetch role members: %w", err)
	}

	plan := Diff(report.Winners, holders)
	e.apply(ctx, logger, &report, plan)

	if e.summaryEnabled && e.notifier != nil {
		summary := BuildSummary(report.CommunityID, report.RoleID, previous, cfg.Threshold, report.Winners)
		if err := e.notifier.NotifySummary(ctx, summary); err != nil {
			logger.Warn("summary not delivered", zap.Error(err))
		} else {
			report.Notified = true
		}
	}
	return report, nil
}

type roleChange struct {
	memberID string
	action   string
}

func (e *Evaluator) apply(ctx context.Context, logger *zap.Logger, report *Report, plan Plan) {
	if plan.Empty() {
		return
	}
	grantReason := fmt.Sprintf("Active: >=%d msgs for week starting %s", report.Threshold, report.WeekStart)
	revokeReason := fmt.Sprintf("Inactive: <%d msgs for week starting %s", report.Threshold, report.WeekStart)

	changes := make([]roleChange, 0, len(plan.Grants)+len(plan.Revokes))
	for _, memberID := range plan.Grants {
		changes = append(changes, roleChange{memberID: memberID, action: ActionGrant})
	}
	for _, memberID := range plan.Revokes {
		changes = append(changes, roleChange{memberID: memberID, action: ActionRevoke})
	}

	var mu sync.Mutex
	group := new(errgroup.Group)
	group.SetLimit(e.workers)
	for _, change := range changes {
		group.Go(func() error {
			err := e.change(ctx, report.CommunityID, report.RoleID, change, grantReason, revokeReason)
			e.metrics.ObserveRoleChange(change.action, err == nil)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("role change failed",
					zap.String("member_id", change.memberID),
					zap.String("action", change.action),
					zap.Error(err))
				report.Failures = append(report.Failures, Failure{
					MemberID: change.memberID,
					Action:   change.action,
					Error:    err.Error(),
				})
				return nil
			}
			if change.action == ActionGrant {
				report.Granted = append(report.Granted, change.memberID)
			} else {
				report.Revoked = append(report.Revoked, change.memberID)
			}
			return nil
		})
	}
	_ = group.Wait()

	sort.Strings(report.Granted)
	sort.Strings(report.Revoked)
	sort.Slice(report.Failures, func(i, j int) bool {
		if report.Failures[i].Action != report.Failures[j].Action {
			return report.Failures[i].Action < report.Failures[j].Action
		}
		return report.Failures[i].MemberID < report.Failures[j].MemberID
	})
}

func (e *Evaluator) change(ctx context.Context, communityID, roleID string, change roleChange, grantReason, revokeReason string) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	if change.action == ActionGrant {
		return e.platform.GrantRole(callCtx, communityID, change.memberID, roleID, grantReason)
	}
	return e.platform.RevokeRole(callCtx, communityID, change.memberID, roleID, revokeReason)
}

func (e *Evaluator) acquire(communityID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.running[communityID]; busy {
		return false
	}
	e.running[communityID] = struct{}{}
	return true
}

func (e *Evaluator) release(communityID string) {
	e.mu.Lock()
	delete(e.running, communityID)
	e.mu.Unlock()
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
