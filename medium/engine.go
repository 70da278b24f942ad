// Package medium emulates the shared air between simulated radios.
//
// Every radio gets an Engine that registers it with the driver, reads its
// transmissions, hands them to the radios the topology says can hear them
// and turns what the radio hears into receptions for the driver.
package medium

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rbmk-project/common/errclass"
	"go.uber.org/zap"

	"github.com/romshark/hwsim-medium/hwsim"
	"github.com/romshark/hwsim-medium/nla"
	"github.com/romshark/hwsim-medium/radiostat"
	"github.com/romshark/hwsim-medium/ratelimit"
	"github.com/romshark/hwsim-medium/ring"
	"github.com/romshark/hwsim-medium/topology"
)

var (
	ErrSandbox      = errors.New("sandbox error")
	ErrMapping      = errors.New("mapping error")
	ErrRegistration = errors.New("registration error")
)

// RxDelay is added to a transmission's timestamp to obtain the time it is
// received.
const RxDelay = time.Millisecond

type peer struct {
	name    string
	mailbox *Mailbox
	stats   *radiostat.Collector
}

// Engine runs a single radio.
type Engine struct {
	radio    topology.Radio
	registry *topology.Registry
	env      Environment
	inbox    *Mailbox
	peers    map[topology.RadioID]peer
	log      *zap.Logger
	stats    *radiostat.Collector
	limiter  *ratelimit.Limiter
	signal   int32
	smPages  uint32
	now      func() time.Time

	state atomic.Int32

	sandbox Sandbox
	ctrl    Control
	ring    *ring.Ring
	index   int
}

// Radio returns the radio the engine runs.
func (e *Engine) Radio() topology.Radio { return e.radio }

// State returns the current lifecycle stage.
func (e *Engine) State() State { return State(e.state.Load()) }

// Index returns the radio index the driver assigned, valid once Running.
func (e *Engine) Index() int { return e.index }

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.log.Debug("state changed", zap.Stringer("state", s))
}

// Run initializes the radio and serves it until ctx is canceled.
// It returns an error only if initialization failed. Either way the
// engine has released everything and reached Stopped when Run returns.
func (e *Engine) Run(ctx context.Context) error {
	defer e.setState(Stopped)
	defer e.inbox.Close()

	if err := e.init(); err != nil {
		e.log.Error("initializing radio", zap.Error(err))
		e.setState(Terminating)
		if err := e.release(); err != nil {
			e.log.Warn("releasing radio", zap.Error(err))
		}
		return err
	}
	e.setState(Running)
	e.log.Info("radio running",
		zap.Int("index", e.index), zap.Bool("ring", e.ring != nil))

	stop := make(chan struct{})
	msgs := make(chan []hwsim.Message)
	readErr := make(chan error, 1)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		e.read(stop, msgs, readErr)
	}()

	e.loop(ctx, msgs, readErr)

	e.setState(Terminating)
	close(stop)
	if err := e.ctrl.Close(); err != nil {
		e.log.Warn("closing control channel", zap.Error(err))
	}
	<-readerDone
	e.ctrl = nil
	if err := e.release(); err != nil {
		e.log.Warn("releasing radio", zap.Error(err))
	}
	return nil
}

func (e *Engine) init() error {
	sb, err := e.env.Sandbox(e.radio)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSandbox, err)
	}
	e.sandbox = sb

	ctrl, err := e.env.Dial(sb)
	if err != nil {
		return fmt.Errorf("%w: connecting to driver: %w", ErrRegistration, err)
	}
	e.ctrl = ctrl

	if _, err := ctrl.Request(&hwsim.Register{}); err != nil {
		return fmt.Errorf("%w: %w", ErrRegistration, err)
	}
	index, err := ctrl.Request(e.newRadio())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRegistration, err)
	}
	e.index = index
	e.log = e.log.With(zap.Int("index", index))

	r, err := e.env.MapRing(e.radio, index)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMapping, err)
	}
	e.ring = r
	return nil
}

func (e *Engine) newRadio() *hwsim.NewRadio {
	return &hwsim.NewRadio{
		Channels:         e.radio.Channels,
		SupportP2PDevice: e.radio.SupportP2PDevice,
		UseChanctx:       e.radio.UseChanctx,
		DestroyOnClose:   e.radio.DestroyOnClose,
		Name:             e.radio.Name,
		NoVIF:            e.radio.NoVIF,
		PermAddr:         e.radio.PermAddr,
		SMPageNum:        e.smPages,
	}
}

// release closes whatever init acquired, the control channel first.
func (e *Engine) release() error {
	var errs []error
	if e.ctrl != nil {
		errs = append(errs, e.ctrl.Close())
		e.ctrl = nil
	}
	if e.ring != nil {
		errs = append(errs, e.ring.Close())
		e.ring = nil
	}
	if e.sandbox != nil {
		errs = append(errs, e.sandbox.Close())
		e.sandbox = nil
	}
	return errors.Join(errs...)
}

// read feeds control messages to the loop until stop is closed or the
// channel fails.
func (e *Engine) read(stop <-chan struct{}, out chan<- []hwsim.Message, errs chan<- error) {
	for {
		msgs, err := e.ctrl.Receive()
		if err != nil && !errors.Is(err, hwsim.ErrProtocol) {
			errs <- err
			return
		}
		if err != nil {
			e.stats.Inc(radiostat.Errors)
			e.log.Warn("dropping control messages", zap.Error(err))
		}
		if len(msgs) == 0 {
			continue
		}
		select {
		case out <- msgs:
		case <-stop:
			return
		}
	}
}

func (e *Engine) loop(ctx context.Context, msgs <-chan []hwsim.Message, readErr <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			e.log.Error("control channel failed",
				zap.Error(err), zap.String("errClass", errclass.New(err)))
			return
		case batch := <-msgs:
			for _, m := range batch {
				e.handleControl(m)
			}
		case <-e.inbox.Ready():
			for _, t := range e.inbox.Drain() {
				e.deliver(t)
			}
		}
	}
}

func (e *Engine) handleControl(m hwsim.Message) {
	switch m.Command {
	case hwsim.CmdFrame, hwsim.CmdTxInfoNotify:
		tx, err := e.transmission(m)
		if err != nil {
			e.stats.Inc(radiostat.Errors)
			e.log.Warn("dropping transmission",
				zap.Stringer("cmd", m.Command), zap.Error(err))
			return
		}
		e.forward(tx)
	case hwsim.CmdAddMacAddr, hwsim.CmdDelMacAddr:
		p, err := hwsim.Decode(m)
		if err != nil {
			e.log.Warn("bad address change", zap.Error(err))
			return
		}
		c := p.(*hwsim.MacAddrChange)
		e.log.Debug("address change ignored",
			zap.Bool("added", c.Added), zap.Stringer("addr", c.Addr))
	default:
		e.log.Debug("ignoring message", zap.Stringer("cmd", m.Command))
	}
}

// transmission decodes a Frame or TxInfoNotify message. A message pointing
// into the ring is merged with the record it points to, the message's own
// attributes taking precedence.
func (e *Engine) transmission(m hwsim.Message) (*hwsim.FrameTx, error) {
	tx := new(hwsim.FrameTx)
	if err := tx.UnmarshalAttributes(m.Attrs); err != nil {
		return nil, fmt.Errorf("%w: %w", hwsim.ErrProtocol, err)
	}
	if tx.SMPointer != nil {
		if e.ring == nil {
			return nil, fmt.Errorf("%w: ring pointer without a mapped ring", hwsim.ErrProtocol)
		}
		rec, _, err := e.ring.Tx().Read(int(*tx.SMPointer))
		if err != nil {
			return nil, err
		}
		recAttrs, err := nla.Decode(rec, hwsim.Schema)
		if err != nil && !errors.Is(err, nla.ErrUnknownAttributeType) {
			return nil, fmt.Errorf("%w: record at %d: %w", ring.ErrRingCorruption, *tx.SMPointer, err)
		}
		if err := tx.UnmarshalAttributes(append(recAttrs, m.Attrs...)); err != nil {
			return nil, fmt.Errorf("%w: %w", hwsim.ErrProtocol, err)
		}
	}
	if tx.Frame == nil {
		return nil, fmt.Errorf("%w: transmission without frame", hwsim.ErrProtocol)
	}
	return tx, nil
}

// forward hands tx to every peer that hears it and reports the outcome to
// the transmitting radio.
func (e *Engine) forward(tx *hwsim.FrameTx) {
	dst, _ := tx.Destination()
	log := e.log.With(zap.Stringer("dst", dst), zap.Uint64("cookie", tx.Cookie))

	acked := false
	if !e.limiter.Allow(e.now()) {
		e.stats.Inc(radiostat.RateDrops)
		log.Debug("over airtime budget, dropping")
	} else {
		e.stats.Inc(radiostat.TxFrames)
		e.stats.Add(radiostat.TxBytes, uint64(tx.Frame.Len()))
		peers := e.registry.Resolve(e.radio.ID, dst)
		if len(peers) == 0 {
			e.stats.Inc(radiostat.RoutingMisses)
			log.Debug("no radio hears destination")
		}
		for _, p := range peers {
			pe, ok := e.peers[p.ID]
			if !ok {
				continue
			}
			dropped, err := pe.mailbox.Push(Transmission{From: e.radio.ID, Tx: tx.Clone()})
			if err != nil {
				log.Debug("peer not accepting", zap.String("peer", pe.name), zap.Error(err))
				continue
			}
			if dropped {
				pe.stats.Inc(radiostat.QueueDrops)
				log.Warn("peer queue full, dropped oldest", zap.String("peer", pe.name))
			}
			acked = true
		}
	}

	flags := tx.Flags &^ hwsim.TxStatAck
	if acked {
		flags |= hwsim.TxStatAck
	}
	status := &hwsim.TxStatus{
		Transmitter: tx.Transmitter,
		Flags:       flags,
		Signal:      e.signal,
		Rates:       tx.Rates,
		Cookie:      tx.Cookie,
		Freq:        tx.Freq,
	}
	if err := e.ctrl.Notify(status); err != nil {
		e.stats.Inc(radiostat.Errors)
		log.Warn("sending tx status",
			zap.Error(err), zap.String("errClass", errclass.New(err)))
	}
}

// deliver makes the radio receive t.
func (e *Engine) deliver(t Transmission) {
	tx := t.Tx
	log := e.log.With(zap.Uint32("from", uint32(t.From)), zap.Uint64("cookie", tx.Cookie))
	rx := &hwsim.FrameRx{
		Receiver: e.radio.PermAddr,
		Frame:    *tx.Frame,
		RxRate:   tx.Rates.RxRate(),
		Signal:   e.signal,
		Freq:     tx.Freq,
	}

	var notice hwsim.Payload = rx
	if e.ring != nil {
		attrs, err := rx.MarshalAttributes()
		if err != nil {
			e.stats.Inc(radiostat.Errors)
			log.Warn("encoding reception", zap.Error(err))
			return
		}
		start, err := e.ring.Rx().Write(nla.Encode(attrs))
		if err != nil {
			e.stats.Inc(radiostat.Errors)
			log.Warn("writing reception to ring", zap.Error(err))
			return
		}
		notice = &hwsim.RxInfo{
			Transmitter: tx.Transmitter,
			Flags:       tx.Flags,
			RxRate:      rx.RxRate,
			Signal:      e.signal,
			Rates:       tx.Rates,
			Cookie:      tx.Cookie,
			Freq:        tx.Freq,
			Timestamp:   tx.Timestamp + uint64(RxDelay),
			Receiver:    hwsim.ReceiverInfo{Addr: e.radio.PermAddr, Signal: e.signal},
			SMPointer:   uint64(start),
		}
	}
	if err := e.ctrl.Notify(notice); err != nil {
		e.stats.Inc(radiostat.Errors)
		log.Warn("sending reception",
			zap.Error(err), zap.String("errClass", errclass.New(err)))
		return
	}
	e.stats.Inc(radiostat.RxFrames)
	e.stats.Add(radiostat.RxBytes, uint64(tx.Frame.Len()))
}
