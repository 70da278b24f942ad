package hwsim

import (
	"errors"
	"fmt"

	"github.com/romshark/hwsim-medium/genl"
)

// Transport is the generic netlink exchange a Conn runs on.
// *genl.Conn implements it.
type Transport interface {
	Send(m genl.Message) (genl.Message, error)
	Receive() ([]genl.Message, error)
	Execute(m genl.Message) (int32, []genl.Message, error)
	Dump(m genl.Message) ([]genl.Message, error)
	Close() error
}

// Conn exchanges MAC80211_HWSIM messages with the driver.
type Conn struct {
	t      Transport
	family uint16
}

// NewConn binds t to the resolved family id.
func NewConn(t Transport, family uint16) *Conn {
	return &Conn{t: t, family: family}
}

// Family returns the family id messages are addressed to.
func (c *Conn) Family() uint16 { return c.family }

// Notify sends p without waiting for an acknowledgement.
func (c *Conn) Notify(p Payload) error {
	m, err := Encode(p)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", p.Command(), err)
	}
	if _, err := c.t.Send(m.Genl(c.family)); err != nil {
		return fmt.Errorf("sending %s: %w", p.Command(), err)
	}
	return nil
}

// Request sends p and waits for the acknowledgement. It returns the
// non-negative ack code, which NewRadio uses for the new radio index.
func (c *Conn) Request(p Payload) (int, error) {
	m, err := Encode(p)
	if err != nil {
		return 0, fmt.Errorf("encoding %s: %w", p.Command(), err)
	}
	code, _, err := c.t.Execute(m.Genl(c.family))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", p.Command(), err)
	}
	return int(code), nil
}

// Receive blocks for the next batch of family messages.
//
// Messages that fail to parse and negative acknowledgements of earlier
// notifications are dropped. The returned error then matches ErrProtocol
// and the remaining messages are still returned. Any other error comes
// from the transport.
func (c *Conn) Receive() ([]Message, error) {
	raw, err := c.t.Receive()
	if err != nil {
		return nil, err
	}
	var (
		msgs []Message
		errs []error
	)
	for _, r := range raw {
		if r.IsControl() {
			if _, _, _, err := r.Ack(); err != nil {
				errs = append(errs, fmt.Errorf("%w: request %d rejected: %w",
					ErrProtocol, r.Header.Seq, err))
			}
			continue
		}
		if r.Header.Type != c.family {
			continue
		}
		m, err := ParseMessage(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, errors.Join(errs...)
}

// Radios returns the radio q names, or every radio when q.ID is nil.
func (c *Conn) Radios(q *RadioQuery) ([]NewRadio, error) {
	m, err := Encode(q)
	if err != nil {
		return nil, err
	}
	var replies []genl.Message
	if q.ID == nil {
		replies, err = c.t.Dump(m.Genl(c.family))
	} else {
		_, replies, err = c.t.Execute(m.Genl(c.family))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", q.Command(), err)
	}
	radios := make([]NewRadio, 0, len(replies))
	for _, r := range replies {
		msg, err := ParseMessage(r)
		if err != nil {
			return radios, err
		}
		var radio NewRadio
		if err := radio.UnmarshalAttributes(msg.Attrs); err != nil {
			return radios, fmt.Errorf("%w: radio reply: %w", ErrProtocol, err)
		}
		radios = append(radios, radio)
	}
	return radios, nil
}

// Close closes the transport, unblocking a pending Receive.
func (c *Conn) Close() error { return c.t.Close() }
