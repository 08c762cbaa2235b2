package activity

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// StoreError carries a stable code of the form activity.<operation>.<reason>.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

func (e *StoreError) Code() string {
	return e.code
}

const (
	opStoreNew       = "activity.store.new"
	opGetConfig      = "activity.get_config"
	opEnsureConfig   = "activity.ensure_config"
	opUpsertConfig   = "activity.upsert_config"
	opListConfigs    = "activity.list_configs"
	opIncrementCount = "activity.increment_count"
	opGetCounts      = "activity.get_counts"
	opGetTopN        = "activity.get_top_n"
)

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// StoreConfig describes the dependencies of the activity store.
type StoreConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Store persists community configuration and weekly message counts.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore constructs a Store. The schema is expected to be migrated already.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, logger: logger}, nil
}

// GetConfig returns the configuration for a community, or nil when none has been stored yet.
func (s *Store) GetConfig(ctx context.Context, communityID string) (*CommunityConfig, error) {
	if err := s.ready(opGetConfig); err != nil {
		return nil, err
	}
	var cfg CommunityConfig
	err := s.db.WithContext(ctx).
		Where("community_id = ?", communityID).
		Take(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opGetConfig, "query_failed", err, zap.String("community_id", communityID))
		return nil, newStoreError(opGetConfig, "query_failed", err)
	}
	return &cfg, nil
}

// EnsureConfig creates the community's configuration from defaults when it does not exist and
// returns the stored row either way.
func (s *Store) EnsureConfig(ctx context.Context, communityID string, defaults Defaults) (CommunityConfig, error) {
	if err := s.ready(opEnsureConfig); err != nil {
		return CommunityConfig{}, err
	}
	if err := validateIdentifier(communityID, ErrInvalidCommunityID); err != nil {
		return CommunityConfig{}, newStoreError(opEnsureConfig, "invalid_community_id", err)
	}

	candidate := defaults.configFor(communityID)
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate).Error; err != nil {
		s.logError(opEnsureConfig, "insert_failed", err, zap.String("community_id", communityID))
		return CommunityConfig{}, newStoreError(opEnsureConfig, "insert_failed", err)
	}

	var stored CommunityConfig
	if err := db.Where("community_id = ?", communityID).Take(&stored).Error; err != nil {
		s.logError(opEnsureConfig, "query_failed", err, zap.String("community_id", communityID))
		return CommunityConfig{}, newStoreError(opEnsureConfig, "query_failed", err)
	}
	return stored, nil
}

// UpsertConfig writes every configurable column of cfg, replacing whatever was stored.
func (s *Store) UpsertConfig(ctx context.Context, cfg CommunityConfig) error {
	if err := s.ready(opUpsertConfig); err != nil {
		return err
	}
	if err := validateIdentifier(cfg.CommunityID, ErrInvalidCommunityID); err != nil {
		return newStoreError(opUpsertConfig, "invalid_community_id", err)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "community_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role_id", "threshold", "timezone", "week_start", "updated_at"}),
	}).Create(&cfg).Error
	if err != nil {
		s.logError(opUpsertConfig, "upsert_failed", err, zap.String("community_id", cfg.CommunityID))
		return newStoreError(opUpsertConfig, "upsert_failed", err)
	}
	return nil
}

// ListConfigs returns every stored community configuration ordered by community id.
func (s *Store) ListConfigs(ctx context.Context) ([]CommunityConfig, error) {
	if err := s.ready(opListConfigs); err != nil {
		return nil, err
	}
	var configs []CommunityConfig
	if err := s.db.WithContext(ctx).Order("community_id ASC").Find(&configs).Error; err != nil {
		s.logError(opListConfigs, "query_failed", err)
		return nil, newStoreError(opListConfigs, "query_failed", err)
	}
	return configs, nil
}

// IncrementCount adds one message to the member's tally for the week. The row is created at 1 when
// absent; the insert and the increment are one statement so concurrent bursts cannot lose updates.
func (s *Store) IncrementCount(ctx context.Context, communityID, memberID, weekStart string) error {
	if err := s.ready(opIncrementCount); err != nil {
		return err
	}
	if err := validateIdentifier(communityID, ErrInvalidCommunityID); err != nil {
		return newStoreError(opIncrementCount, "invalid_community_id", err)
	}
	if err := validateIdentifier(memberID, ErrInvalidMemberID); err != nil {
		return newStoreError(opIncrementCount, "invalid_member_id", err)
	}

	row := WeeklyCount{
		CommunityID:  communityID,
		MemberID:     memberID,
		WeekStart:    weekStart,
		MessageCount: 1,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "community_id"}, {Name: "member_id"}, {Name: "week_start"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"message_count": gorm.Expr("weekly_counts.message_count + 1"),
		}),
	}).Create(&row).Error
	if err != nil {
		s.logError(opIncrementCount, "upsert_failed", err,
			zap.String("community_id", communityID),
			zap.String("member_id", memberID),
			zap.String("week_start", weekStart))
		return newStoreError(opIncrementCount, "upsert_failed", err)
	}
	return nil
}

// GetCounts returns every member's tally for the week, ordered by member id.
func (s *Store) GetCounts(ctx context.Context, communityID, weekStart string) ([]MemberCount, error) {
	if err := s.ready(opGetCounts); err != nil {
		return nil, err
	}
	var rows []WeeklyCount
	if err := s.db.WithContext(ctx).
		Where("community_id = ? AND week_start = ?", communityID, weekStart).
		Order("member_id ASC").
		Find(&rows).Error; err != nil {
		s.logError(opGetCounts, "query_failed", err,
			zap.String("community_id", communityID),
			zap.String("week_start", weekStart))
		return nil, newStoreError(opGetCounts, "query_failed", err)
	}
	return toMemberCounts(rows), nil
}

// GetTopN returns the n highest tallies for the week. Ties are broken by member id so repeated
// calls over the same data return the same order.
func (s *Store) GetTopN(ctx context.Context, communityID, weekStart string, n int) ([]MemberCount, error) {
	if err := s.ready(opGetTopN); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []MemberCount{}, nil
	}
	var rows []WeeklyCount
	if err := s.db.WithContext(ctx).
		Where("community_id = ? AND week_start = ?", communityID, weekStart).
		Order("message_count DESC").
		Order("member_id ASC").
		Limit(n).
		Find(&rows).Error; err != nil {
		s.logError(opGetTopN, "query_failed", err,
			zap.String("community_id", communityID),
			zap.String("week_start", weekStart))
		return nil, newStoreError(opGetTopN, "query_failed", err)
	}
	return toMemberCounts(rows), nil
}

func toMemberCounts(rows []WeeklyCount) []MemberCount {
	counts := make([]MemberCount, 0, len(rows))
	for _, row := range rows {
		counts = append(counts, MemberCount{MemberID: row.MemberID, Count: row.MessageCount})
	}
	return counts
}

func (s *Store) ready(operation string) error {
	if s == nil || s.db == nil {
		return newStoreError(operation, "missing_database", errMissingDatabase)
	}
	return nil
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	logger := noOpLogger
	if s != nil && s.logger != nil {
		logger = s.logger
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger.Error("activity store error", attrs...)
}
