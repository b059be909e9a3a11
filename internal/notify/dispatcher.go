package notify

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirelobby-server/internal/core"
)

const (
	defaultBuffer  = 256
	deliverTimeout = 2 * time.Second
	drainTimeout   = 3 * time.Second
)

// Sink receives lobby notices off the coordinator goroutine.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n core.Notice) error
}

// Dispatcher buffers notices from the core and fans them out to sinks.
// It implements core.Observer; Observe never blocks and drops notices when the
// buffer is full.
type Dispatcher struct {
	sinks   []Sink
	queue   chan core.Notice
	log     *zerolog.Logger
	dropped atomic.Int64
}

var _ core.Observer = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher with the given buffer size.
func NewDispatcher(buffer int, logger *zerolog.Logger, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{
		sinks: sinks,
		queue: make(chan core.Notice, buffer),
		log:   logger,
	}
}

// Observe queues a notice for delivery.
func (d *Dispatcher) Observe(n core.Notice) {
	select {
	case d.queue <- n:
	default:
		d.dropped.Add(1)
		d.log.Warn().Str("kind", string(n.Kind)).Str("lobby_id", n.LobbyID).Msg("notice buffer full, dropping")
	}
}

// Dropped returns how many notices were discarded because the buffer was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers notices until ctx is cancelled, then flushes what is buffered.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.flush()
			return
		case n := <-d.queue:
			d.deliver(context.Background(), n)
		}
	}
}

func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case n := <-d.queue:
			d.deliver(ctx, n)
		default:
			return
		}
		if ctx.Err() != nil {
			d.log.Warn().Int("remaining", len(d.queue)).Msg("notice flush timed out")
			return
		}
	}
}

func (d *Dispatcher) deliver(parent context.Context, n core.Notice) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(parent, deliverTimeout)
		if err := sink.Deliver(ctx, n); err != nil {
			d.log.Error().Err(err).Str("sink", sink.Name()).Str("kind", string(n.Kind)).Msg("deliver notice")
		}
		cancel()
	}
}
