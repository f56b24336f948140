package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNotConnected = errors.New("realtime: not connected")
	ErrHubClosed    = errors.New("realtime: hub closed")
)

const (
	DefaultBufferSize    = 64
	DefaultRetryInterval = 5 * time.Second
	streamCloseTimeout   = 5 * time.Second
)

// Hub owns the single connection to a Source and fans each event out to the
// subscriptions whose filter matches. Delivery to a subscription never
// blocks the feed: a full buffer drops the event for that subscription only.
type Hub struct {
	source        Source
	logger        *slog.Logger
	bufferSize    int
	retryInterval time.Duration

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	connected atomic.Bool
	received  atomic.Int64
	dropped   atomic.Int64

	receivedCounter metric.Int64Counter
	droppedCounter  metric.Int64Counter
	activeSubs      metric.Int64UpDownCounter
}

// HubOption configures a Hub.
type HubOption func(*Hub)

func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithBufferSize sets the per-subscription event buffer.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithRetryInterval sets the pause between reconnect attempts.
func WithRetryInterval(d time.Duration) HubOption {
	return func(h *Hub) { h.retryInterval = d }
}

func NewHub(source Source, opts ...HubOption) *Hub {
	h := &Hub{
		source:        source,
		logger:        slog.Default(),
		bufferSize:    DefaultBufferSize,
		retryInterval: DefaultRetryInterval,
		subs:          make(map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(h)
	}

	meter := otel.Meter("automlpro/realtime")
	var err error
	if h.receivedCounter, err = meter.Int64Counter("realtime.events.received",
		metric.WithDescription("Change events read from the feed")); err != nil {
		h.logger.Warn("failed to register realtime metric", "metric", "realtime.events.received", "error", err)
	}
	if h.droppedCounter, err = meter.Int64Counter("realtime.events.dropped",
		metric.WithDescription("Change events dropped because a subscription buffer was full")); err != nil {
		h.logger.Warn("failed to register realtime metric", "metric", "realtime.events.dropped", "error", err)
	}
	if h.activeSubs, err = meter.Int64UpDownCounter("realtime.subscriptions.active",
		metric.WithDescription("Open change subscriptions")); err != nil {
		h.logger.Warn("failed to register realtime metric", "metric", "realtime.subscriptions.active", "error", err)
	}
	return h
}

// Run connects to the source and dispatches events until ctx is done,
// reconnecting after failures. Subscriptions survive reconnects. When Run
// returns, the hub is closed and every subscription channel is closed.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		stream, err := h.source.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Warn("realtime connect failed", "error", err, "retry_in", h.retryInterval)
			if !sleepCtx(ctx, h.retryInterval) {
				return
			}
			continue
		}

		h.connected.Store(true)
		h.logger.Info("realtime feed connected")

		err = h.consume(ctx, stream)

		h.connected.Store(false)
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), streamCloseTimeout)
		if cerr := stream.Close(closeCtx); cerr != nil {
			h.logger.Debug("realtime stream close", "error", cerr)
		}
		cancel()

		if ctx.Err() != nil {
			return
		}
		h.logger.Warn("realtime feed lost", "error", err, "retry_in", h.retryInterval)
		if !sleepCtx(ctx, h.retryInterval) {
			return
		}
	}
}

func (h *Hub) consume(ctx context.Context, stream Stream) error {
	for {
		ev, err := stream.Next(ctx)
		if errors.Is(err, ErrMalformedEvent) {
			h.logger.Warn("skipping malformed change event", "error", err)
			continue
		}
		if err != nil {
			return err
		}
		h.received.Add(1)
		if h.receivedCounter != nil {
			h.receivedCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("table", ev.Table), attribute.String("type", string(ev.Type))))
		}
		h.dispatch(ctx, ev)
	}
}

func (h *Hub) dispatch(ctx context.Context, ev ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.filter.Matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
			if h.droppedCounter != nil {
				h.droppedCounter.Add(ctx, 1)
			}
			h.logger.Warn("subscription buffer full, dropping event",
				"filter", sub.filter.String(), "row_id", ev.RowID())
		}
	}
}

// Connected reports whether the feed connection is currently up.
func (h *Hub) Connected() bool {
	return h.connected.Load()
}

// Subscribe registers a new subscription. It fails with ErrNotConnected
// while the feed is down and ErrHubClosed after Run has returned.
func (h *Hub) Subscribe(filter Filter) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if !h.connected.Load() {
		return nil, ErrNotConnected
	}

	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		hub:    h,
		filter: filter,
		ch:     make(chan ChangeEvent, h.bufferSize),
	}
	h.subs[sub.id] = sub
	if h.activeSubs != nil {
		h.activeSubs.Add(context.Background(), 1)
	}
	return sub, nil
}

// remove deletes the subscription and closes its channel. The map entry
// guards the close, so it runs at most once per subscription.
func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *Hub) removeLocked(id uint64) {
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
	if h.activeSubs != nil {
		h.activeSubs.Add(context.Background(), -1)
	}
}

func (h *Hub) shutdown() {
	h.connected.Store(false)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id := range h.subs {
		h.removeLocked(id)
	}
	h.logger.Info("realtime hub stopped")
}

// HubStats is a point-in-time snapshot of hub counters.
type HubStats struct {
	Connected     bool  `json:"connected"`
	Subscriptions int   `json:"subscriptions"`
	Received      int64 `json:"received"`
	Dropped       int64 `json:"dropped"`
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.subs)
	h.mu.RUnlock()
	return HubStats{
		Connected:     h.connected.Load(),
		Subscriptions: n,
		Received:      h.received.Load(),
		Dropped:       h.dropped.Load(),
	}
}

// Subscription is a filtered view of the change feed.
type Subscription struct {
	id     uint64
	hub    *Hub
	filter Filter
	ch     chan ChangeEvent
	once   sync.Once
}

// C returns the event channel. It is closed after Close or hub shutdown.
func (s *Subscription) C() <-chan ChangeEvent { return s.ch }

func (s *Subscription) Filter() Filter { return s.filter }

// Close detaches the subscription from the hub. Safe to call multiple times.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s.id) })
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
