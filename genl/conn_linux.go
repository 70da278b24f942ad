//go:build linux

package genl

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	DefaultReceiveBufferSize = 1 << 20
	minReadBuffer            = 32 << 10
)

// Conn is a NETLINK_GENERIC socket.
//
// Send may be called concurrently with Receive. Execute and Dump consume
// replies themselves and must not run concurrently with Receive; messages
// unrelated to their request are kept and returned by the next Receive.
type Conn struct {
	f   *os.File
	rc  syscall.RawConn
	pid    uint32
	seq    atomic.Uint32
	closed atomic.Bool

	mu      sync.Mutex
	pending []Message
	buf     []byte
}

// Dial opens and binds a generic netlink socket in the calling thread's
// network namespace.
func Dial() (*Conn, error) {
	fd, err := unix.Socket(
		unix.AF_NETLINK,
		unix.SOCK_RAW|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK,
		unix.NETLINK_GENERIC,
	)
	if err != nil {
		return nil, fmt.Errorf("opening netlink socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("binding netlink socket: %w", err)
	}
	// Best effort, frame bursts from busy radios overflow the default.
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, DefaultReceiveBufferSize)

	sa, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("getsockname: %w", err)
	}
	nsa, ok := sa.(*unix.SockaddrNetlink)
	if !ok {
		unix.Close(fd)
		return nil, fmt.Errorf("unexpected socket address %T", sa)
	}

	// The runtime poller makes Close unblock a pending Receive.
	f := os.NewFile(uintptr(fd), "netlink")
	rc, err := f.SyscallConn()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("raw conn: %w", err)
	}
	c := &Conn{f: f, rc: rc, pid: nsa.Pid, buf: make([]byte, minReadBuffer)}
	c.seq.Store(uint32(os.Getpid()))
	return c, nil
}

// PID returns the netlink port id the socket is bound to.
func (c *Conn) PID() uint32 { return c.pid }

// Send writes m, assigning a sequence number and port id when unset.
// It returns the message as sent.
func (c *Conn) Send(m Message) (Message, error) {
	if m.Header.Seq == 0 {
		m.Header.Seq = c.seq.Add(1)
	}
	if m.Header.PID == 0 {
		m.Header.PID = c.pid
	}
	m.Header.Flags |= FlagRequest
	b, err := m.MarshalBinary()
	if err != nil {
		return m, err
	}
	m.Header.Len = uint32(HeaderLen + GenlHeaderLen + len(m.Payload))

	var serr error
	err = c.rc.Write(func(fd uintptr) bool {
		serr = unix.Sendto(int(fd), b, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK})
		return serr != unix.EAGAIN
	})
	if err = c.ioError(err, serr); err != nil {
		return m, fmt.Errorf("sending command %d: %w", m.Command, err)
	}
	return m, nil
}

// Receive blocks until at least one message arrives.
func (c *Conn) Receive() ([]Message, error) {
	c.mu.Lock()
	if len(c.pending) > 0 {
		msgs := c.pending
		c.pending = nil
		c.mu.Unlock()
		return msgs, nil
	}
	c.mu.Unlock()
	return c.receive()
}

func (c *Conn) receive() ([]Message, error) {
	// Peek the datagram size first so large frames are never truncated.
	var (
		n    int
		rerr error
	)
	err := c.rc.Read(func(fd uintptr) bool {
		n, _, rerr = unix.Recvfrom(int(fd), c.buf[:1], unix.MSG_PEEK|unix.MSG_TRUNC)
		return rerr != unix.EAGAIN
	})
	if err = c.ioError(err, rerr); err != nil {
		return nil, err
	}
	if n > len(c.buf) {
		c.buf = make([]byte, nlAlign(n))
	}
	err = c.rc.Read(func(fd uintptr) bool {
		n, _, rerr = unix.Recvfrom(int(fd), c.buf, 0)
		return rerr != unix.EAGAIN
	})
	if err = c.ioError(err, rerr); err != nil {
		return nil, err
	}

	// Payloads alias the read buffer, which is reused by the next call.
	b := make([]byte, n)
	copy(b, c.buf[:n])
	return ParseMessages(b)
}

// Execute sends m with an acknowledgement request and waits for the
// matching ack. It returns the ack code and the replies received before it.
func (c *Conn) Execute(m Message) (int32, []Message, error) {
	m.Header.Flags |= FlagRequest | FlagAck
	req, err := c.Send(m)
	if err != nil {
		return 0, nil, err
	}
	var replies []Message
	for {
		msgs, err := c.receive()
		if err != nil {
			return 0, replies, err
		}
		for _, msg := range msgs {
			code, seq, isAck, err := msg.Ack()
			if isAck && seq == req.Header.Seq {
				return code, replies, err
			}
			if msg.Header.Seq != req.Header.Seq {
				c.keep(msg)
				continue
			}
			replies = append(replies, msg)
		}
	}
}

// Dump sends m as a dump request and collects every reply up to
// NLMSG_DONE.
func (c *Conn) Dump(m Message) ([]Message, error) {
	m.Header.Flags |= FlagRequest | FlagDump
	req, err := c.Send(m)
	if err != nil {
		return nil, err
	}
	var replies []Message
	for {
		msgs, err := c.receive()
		if err != nil {
			return replies, err
		}
		for _, msg := range msgs {
			if msg.Header.Seq != req.Header.Seq {
				c.keep(msg)
				continue
			}
			switch msg.Header.Type {
			case TypeDone:
				return replies, nil
			case TypeError:
				_, _, _, err := msg.Ack()
				return replies, err
			case TypeNoop:
			default:
				replies = append(replies, msg)
			}
		}
	}
}

// ResolveFamily looks up a generic netlink family by name.
func (c *Conn) ResolveFamily(name string) (Family, error) {
	_, replies, err := c.Execute(GetFamilyRequest(name))
	if errors.Is(err, unix.ENOENT) {
		return Family{}, fmt.Errorf("%w: %q", ErrFamilyNotFound, name)
	}
	if err != nil {
		return Family{}, fmt.Errorf("resolving family %q: %w", name, err)
	}
	if len(replies) == 0 {
		return Family{}, fmt.Errorf("%w: %q: empty reply", ErrFamilyNotFound, name)
	}
	return ParseFamily(replies[0])
}

// Close closes the socket and unblocks a pending Receive.
func (c *Conn) Close() error {
	c.closed.Store(true)
	if err := c.f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

func (c *Conn) keep(m Message) {
	c.mu.Lock()
	c.pending = append(c.pending, m)
	c.mu.Unlock()
}

// ioError maps the poller error err and the syscall error opErr to the
// error returned to callers. Once Close was called every failure is
// ErrClosed, whichever way the poller reported it.
func (c *Conn) ioError(err, opErr error) error {
	if (err != nil || opErr != nil) && c.closed.Load() {
		return ErrClosed
	}
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return opErr
}

func nlAlign(n int) int {
	const page = 4096
	return (n + page - 1) &^ (page - 1)
}
