package medium

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/romshark/hwsim-medium/radiostat"
	"github.com/romshark/hwsim-medium/ratelimit"
	"github.com/romshark/hwsim-medium/topology"
)

const (
	DefaultSNR        = 30
	DefaultNoiseFloor = -91
)

type Options struct {
	Registry *topology.Registry
	Env      Environment
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Stats defaults to a private set.
	Stats *radiostat.Set

	// Signal reported for every reception is SNR + NoiseFloor.
	SNR        int32
	NoiseFloor int32
	// QueueSize bounds every radio's mailbox. 0 means DefaultQueueSize.
	QueueSize int
	// MaxPPS caps the frames per second each radio may transmit.
	// 0 means unlimited.
	MaxPPS uint64
	// RingOrder asks the driver for a shared ring of 2^RingOrder pages.
	// 0 leaves the driver's default.
	RingOrder uint32
}

// Medium is the set of engines sharing one topology.
type Medium struct {
	engines []*Engine
}

// New prepares one engine and mailbox per radio of opts.Registry.
func New(opts Options) (*Medium, error) {
	if opts.Registry == nil {
		return nil, errors.New("medium: nil registry")
	}
	if opts.Env == nil {
		return nil, errors.New("medium: nil environment")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Stats == nil {
		opts.Stats = radiostat.NewSet()
	}

	radios := opts.Registry.Radios()
	mailboxes := make(map[topology.RadioID]*Mailbox, len(radios))
	for _, r := range radios {
		mailboxes[r.ID] = NewMailbox(opts.QueueSize)
	}

	m := &Medium{engines: make([]*Engine, 0, len(radios))}
	for _, r := range radios {
		peers := make(map[topology.RadioID]peer)
		for _, p := range opts.Registry.Peers(r.ID) {
			pr, _ := opts.Registry.Radio(p.ID)
			peers[p.ID] = peer{
				name:    pr.Name,
				mailbox: mailboxes[p.ID],
				stats:   opts.Stats.Radio(pr.Name),
			}
		}
		e := &Engine{
			radio:    r,
			registry: opts.Registry,
			env:      opts.Env,
			inbox:    mailboxes[r.ID],
			peers:    peers,
			log: opts.Logger.With(
				zap.String("radio", r.Name),
				zap.Stringer("addr", r.PermAddr),
			),
			stats:   opts.Stats.Radio(r.Name),
			limiter: ratelimit.New(opts.MaxPPS),
			signal:  opts.SNR + opts.NoiseFloor,
			smPages: opts.RingOrder,
			now:     time.Now,
		}
		m.engines = append(m.engines, e)
	}
	return m, nil
}

// Engines returns the engines in configuration order.
func (m *Medium) Engines() []*Engine { return m.engines }

// Engine returns the engine of radio id, or nil.
func (m *Medium) Engine(id topology.RadioID) *Engine {
	for _, e := range m.engines {
		if e.radio.ID == id {
			return e
		}
	}
	return nil
}

// Run runs every engine until ctx is canceled and waits for all of them to
// stop. A radio failing to initialize does not affect the others; the
// returned error joins every such failure.
func (m *Medium) Run(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, e := range m.engines {
		wg.Go(func() {
			if err := e.Run(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("radio %s: %w", e.radio.Name, err))
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Run is New followed by Medium.Run.
func Run(ctx context.Context, opts Options) error {
	m, err := New(opts)
	if err != nil {
		return err
	}
	return m.Run(ctx)
}
