package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/LaliChicken/active-role-bot/internal/metrics"
	"go.uber.org/zap"
)

// Kind names a platform event type.
type Kind string

const (
	KindReady             Kind = "ready"
	KindGuildCreate       Kind = "guild_create"
	KindMessageCreate     Kind = "message_create"
	KindInteractionCreate Kind = "interaction_create"
)

const defaultQueueSize = 1024

// ErrLoopClosed is returned by Dispatch once Run has exited.
var ErrLoopClosed = errors.New("events: loop closed")

// Event is one platform event waiting to be handled.
type Event struct {
	Kind    Kind
	Payload any
}

// HandlerFunc handles a single event payload.
type HandlerFunc func(ctx context.Context, payload any)

// LoopConfig configures the dispatch loop.
type LoopConfig struct {
	QueueSize int
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Loop routes events through a dispatch table on a single worker goroutine so handlers for one
// platform connection never run concurrently with each other.
type Loop struct {
	mu       sync.RWMutex
	handlers map[Kind]HandlerFunc
	queue    chan Event
	closed   bool
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewLoop(cfg LoopConfig) *Loop {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		handlers: make(map[Kind]HandlerFunc),
		queue:    make(chan Event, size),
		logger:   logger,
		metrics:  cfg.Metrics,
	}
}

// Handle registers fn for kind, replacing any previous handler.
func (l *Loop) Handle(kind Kind, fn HandlerFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if fn == nil {
		delete(l.handlers, kind)
		return
	}
	l.handlers[kind] = fn
}

// Dispatch enqueues an event without blocking. A full queue drops the event.
func (l *Loop) Dispatch(event Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrLoopClosed
	}
	select {
	case l.queue <- event:
		return nil
	default:
		l.metrics.ObserveEventDropped()
		l.logger.Warn("event queue full, dropping event", zap.String("kind", string(event.Kind)))
		return nil
	}
}

// Run drains the queue until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-l.queue:
			l.handle(ctx, event)
		}
	}
}

func (l *Loop) handle(ctx context.Context, event Event) {
	l.mu.RLock()
	fn := l.handlers[event.Kind]
	l.mu.RUnlock()
	if fn == nil {
		return
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			l.logger.Error("event handler panicked",
				zap.String("kind", string(event.Kind)),
				zap.String("panic", fmt.Sprint(recovered)))
		}
	}()
	fn(ctx, event.Payload)
}

func (l *Loop) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}
