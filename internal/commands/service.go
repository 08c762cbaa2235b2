package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LaliChicken/active-role-bot/internal/activity"
	"github.com/LaliChicken/active-role-bot/internal/weeks"
	"go.uber.org/zap"
)

const (
	// LeaderboardSize is the number of entries shown by status and leaderboard views.
	LeaderboardSize = 10
	// MaxLeaderboardLimit caps caller-supplied leaderboard sizes.
	MaxLeaderboardLimit = 100

	nextEvaluationLayout = "Mon, Jan 2 2006 15:04 MST"
)

const (
	opSetup       = "setup"
	opStatus      = "status"
	opLeaderboard = "leaderboard"
)

var errMissingStore = errors.New("commands: activity store is required")

// ValidationError reports rejected user input with a stable code such as setup.invalid_timezone.
type ValidationError struct {
	code string
	err  error
}

func (e *ValidationError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

func (e *ValidationError) Code() string {
	return e.code
}

func newValidationError(operation, reason string, cause error) error {
	return &ValidationError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Store is the part of the activity store used by the command handlers.
type Store interface {
	EnsureConfig(ctx context.Context, communityID string, defaults activity.Defaults) (activity.CommunityConfig, error)
	UpsertConfig(ctx context.Context, cfg activity.CommunityConfig) error
	GetTopN(ctx context.Context, communityID, weekStart string, n int) ([]activity.MemberCount, error)
}

// ServiceConfig describes the command service dependencies. OnChange runs after every successful
// configuration write.
type ServiceConfig struct {
	Store    Store
	Defaults activity.Defaults
	Clock    func() time.Time
	Logger   *zap.Logger
	OnChange func(ctx context.Context) error
}

// Service implements setup, status and leaderboard independently of any chat platform.
type Service struct {
	store    Store
	defaults activity.Defaults
	clock    func() time.Time
	logger   *zap.Logger
	onChange func(ctx context.Context) error
}

// SetupRequest carries the setup options. Nil or empty optional fields take their defaults.
type SetupRequest struct {
	CommunityID string
	RoleID      string
	Threshold   *int
	Timezone    string
	WeekStart   string
}

// Settings is the normalized view of a community configuration.
type Settings struct {
	CommunityID    string    `json:"communityId"`
	RoleID         string    `json:"roleId,omitempty"`
	Threshold      int       `json:"threshold"`
	Timezone       string    `json:"timezone"`
	WeekStart      string    `json:"weekStart"`
	NextEvaluation time.Time `json:"nextEvaluation"`
}

// HumanNextEvaluation formats the next evaluation in the community's zone.
func (s Settings) HumanNextEvaluation() string {
	return s.NextEvaluation.Format(nextEvaluationLayout)
}

// Leaderboard lists the top members of the current week.
type Leaderboard struct {
	CommunityID string                 `json:"communityId"`
	WeekStart   string                 `json:"weekStart"`
	Entries     []activity.MemberCount `json:"entries"`
}

// Status combines the settings with the current leaderboard.
type Status struct {
	Settings    Settings    `json:"settings"`
	Leaderboard Leaderboard `json:"leaderboard"`
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := cfg.Defaults
	if defaults.Threshold < 1 {
		defaults.Threshold = activity.DefaultThreshold
	}
	if strings.TrimSpace(defaults.Timezone) == "" {
		defaults.Timezone = "UTC"
	}
	if strings.TrimSpace(defaults.WeekStart) == "" {
		defaults.WeekStart = weeks.Monday.String()
	}
	return &Service{
		store:    cfg.Store,
		defaults: defaults,
		clock:    clock,
		logger:   logger,
		onChange: cfg.OnChange,
	}, nil
}

// Setup validates and stores a full configuration, replacing any previous one.
func (s *Service) Setup(ctx context.Context, request SetupRequest) (Settings, error) {
	cfg, loc, weekStart, err := s.validateSetup(request)
	if err != nil {
		return Settings{}, err
	}
	if err := s.store.UpsertConfig(ctx, cfg); err != nil {
		return Settings{}, fmt.Errorf("store config: %w", err)
	}
	s.logger.Info("community configured",
		zap.String("community_id", cfg.CommunityID),
		zap.String("role_id", cfg.Role()),
		zap.Int("threshold", cfg.Threshold),
		zap.String("timezone", cfg.Timezone),
		zap.String("week_start", cfg.WeekStart))

	if s.onChange != nil {
		if err := s.onChange(ctx); err != nil {
			s.logger.Warn("schedule refresh failed", zap.String("community_id", cfg.CommunityID), zap.Error(err))
		}
	}
	return s.settings(cfg, loc, weekStart), nil
}

// Status returns the settings and the current-week top members, creating a default
// configuration when the community has none.
func (s *Service) Status(ctx context.Context, communityID string) (Status, error) {
	cfg, loc, weekStart, err := s.load(ctx, opStatus, communityID)
	if err != nil {
		return Status{}, err
	}
	board, err := s.leaderboard(ctx, cfg, loc, weekStart, LeaderboardSize)
	if err != nil {
		return Status{}, err
	}
	return Status{Settings: s.settings(cfg, loc, weekStart), Leaderboard: board}, nil
}

// Leaderboard returns up to limit members of the current week. A non-positive limit uses
// LeaderboardSize.
func (s *Service) Leaderboard(ctx context.Context, communityID string, limit int) (Leaderboard, error) {
	if limit <= 0 {
		limit = LeaderboardSize
	}
	if limit > MaxLeaderboardLimit {
		return Leaderboard{}, newValidationError(opLeaderboard, "invalid_limit", fmt.Errorf("limit %d exceeds %d", limit, MaxLeaderboardLimit))
	}
	cfg, loc, weekStart, err := s.load(ctx, opLeaderboard, communityID)
	if err != nil {
		return Leaderboard{}, err
	}
	return s.leaderboard(ctx, cfg, loc, weekStart, limit)
}

func (s *Service) validateSetup(request SetupRequest) (activity.CommunityConfig, *time.Location, weeks.WeekStart, error) {
	communityID := strings.TrimSpace(request.CommunityID)
	if communityID == "" {
		return activity.CommunityConfig{}, nil, "", newValidationError(opSetup, "invalid_community", activity.ErrInvalidCommunityID)
	}
	roleID := strings.TrimSpace(request.RoleID)
	if roleID == "" {
		return activity.CommunityConfig{}, nil, "", newValidationError(opSetup, "missing_role", errors.New("role is required"))
	}

	threshold := s.defaults.Threshold
	if request.Threshold != nil {
		threshold = *request.Threshold
	}
	if threshold < 1 {
		return activity.CommunityConfig{}, nil, "", newValidationError(opSetup, "invalid_threshold", fmt.Errorf("threshold %d is below 1", threshold))
	}

	timezone := strings.TrimSpace(request.Timezone)
	if timezone == "" {
		timezone = s.defaults.Timezone
	}
	loc, err := weeks.LoadLocation(timezone)
	if err != nil {
		return activity.CommunityConfig{}, nil, "", newValidationError(opSetup, "invalid_timezone", err)
	}

	rawWeekStart := request.WeekStart
	if strings.TrimSpace(rawWeekStart) == "" {
		rawWeekStart = weeks.Monday.String()
	}
	weekStart, err := weeks.ParseWeekStart(rawWeekStart)
	if err != nil {
		return activity.CommunityConfig{}, nil, "", newValidationError(opSetup, "invalid_week_start", err)
	}

	cfg := activity.CommunityConfig{
		CommunityID: communityID,
		RoleID:      &roleID,
		Threshold:   threshold,
		Timezone:    loc.String(),
		WeekStart:   weekStart.String(),
	}
	return cfg, loc, weekStart, nil
}

func (s *Service) load(ctx context.Context, operation, communityID string) (activity.CommunityConfig, *time.Location, weeks.WeekStart, error) {
	if strings.TrimSpace(communityID) == "" {
		return activity.CommunityConfig{}, nil, "", newValidationError(operation, "invalid_community", activity.ErrInvalidCommunityID)
	}
	cfg, err := s.store.EnsureConfig(ctx, communityID, s.defaults)
	if err != nil {
		return activity.CommunityConfig{}, nil, "", fmt.Errorf("load config: %w", err)
	}
	loc, err := weeks.LoadLocation(cfg.Timezone)
	if err != nil {
		return activity.CommunityConfig{}, nil, "", fmt.Errorf("stored config: %w", err)
	}
	weekStart, err := weeks.ParseWeekStart(cfg.WeekStart)
	if err != nil {
		return activity.CommunityConfig{}, nil, "", fmt.Errorf("stored config: %w", err)
	}
	return cfg, loc, weekStart, nil
}

func (s *Service) leaderboard(ctx context.Context, cfg activity.CommunityConfig, loc *time.Location, weekStart weeks.WeekStart, limit int) (Leaderboard, error) {
	week := weeks.CurrentWeekStart(loc, weekStart, s.clock()).String()
	top, err := s.store.GetTopN(ctx, cfg.CommunityID, week, limit)
	if err != nil {
		return Leaderboard{}, fmt.Errorf("load leaderboard: %w", err)
	}
	return Leaderboard{CommunityID: cfg.CommunityID, WeekStart: week, Entries: top}, nil
}

func (s *Service) settings(cfg activity.CommunityConfig, loc *time.Location, weekStart weeks.WeekStart) Settings {
	return Settings{
		CommunityID:    cfg.CommunityID,
		RoleID:         cfg.Role(),
		Threshold:      cfg.Threshold,
		Timezone:       cfg.Timezone,
		WeekStart:      weekStart.String(),
		NextEvaluation: weeks.NextEvaluation(loc, weekStart, s.clock()),
	}
}
