package ingest

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/LaliChicken/active-role-bot/internal/activity"
	"github.com/LaliChicken/active-role-bot/internal/metrics"
	"github.com/LaliChicken/active-role-bot/internal/weeks"
	"go.uber.org/zap"
)

var errMissingStore = errors.New("ingest: activity store is required")

// MessageEvent is the subset of a platform message the counter needs.
type MessageEvent struct {
	CommunityID string
	AuthorID    string
	AuthorIsBot bool
	At          time.Time
}

// Store is the part of the activity store used by ingestion.
type Store interface {
	EnsureConfig(ctx context.Context, communityID string, defaults activity.Defaults) (activity.CommunityConfig, error)
	IncrementCount(ctx context.Context, communityID, memberID, weekStart string) error
}

// HandlerConfig describes the dependencies of the ingestion handler.
type HandlerConfig struct {
	Store    Store
	Defaults activity.Defaults
	Clock    func() time.Time
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Handler counts inbound community messages toward the sender's weekly tally.
type Handler struct {
	store    Store
	defaults activity.Defaults
	clock    func() time.Time
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewHandler(cfg HandlerConfig) (*Handler, error) {
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
	return &Handler{
		store:    cfg.Store,
		defaults: cfg.Defaults,
		clock:    clock,
		logger:   logger,
		metrics:  cfg.Metrics,
	}, nil
}

// HandleMessage records one message. It never returns an error: a missed increment is logged and
// dropped so the next message is not held up.
func (h *Handler) HandleMessage(ctx context.Context, event MessageEvent) {
	if reason := skipReason(event); reason != "" {
		h.metrics.ObserveMessageIgnored(reason)
		return
	}
	if err := h.record(ctx, event); err != nil {
		h.metrics.ObserveIngestFailure()
		h.logger.Warn("message not counted",
			zap.String("community_id", event.CommunityID),
			zap.String("member_id", event.AuthorID),
			zap.Error(err))
		return
	}
	h.metrics.ObserveMessageCounted()
}

func (h *Handler) record(ctx context.Context, event MessageEvent) error {
	cfg, err := h.store.EnsureConfig(ctx, event.CommunityID, h.defaults)
	if err != nil {
		return err
	}
	loc, err := weeks.LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}
	weekStart, err := weeks.ParseWeekStart(cfg.WeekStart)
	if err != nil {
		return err
	}

	at := event.At
	if at.IsZero() {
		at = h.clock()
	}
	week := weeks.CurrentWeekStart(loc, weekStart, at)
	return h.store.IncrementCount(ctx, event.CommunityID, event.AuthorID, week.String())
}

func skipReason(event MessageEvent) string {
	switch {
	case strings.TrimSpace(event.CommunityID) == "":
		return "direct_message"
	case event.AuthorIsBot:
		return "bot"
	case strings.TrimSpace(event.AuthorID) == "":
		return "malformed"
	default:
		return ""
	}
}
