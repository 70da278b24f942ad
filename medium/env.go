package medium

import (
	"github.com/romshark/hwsim-medium/hwsim"
	"github.com/romshark/hwsim-medium/ring"
	"github.com/romshark/hwsim-medium/topology"
)

// Control is a radio's control channel to the driver.
// *hwsim.Conn implements it.
type Control interface {
	// Notify sends without waiting for an acknowledgement.
	// It may be called concurrently with Receive.
	Notify(p hwsim.Payload) error
	// Request sends and waits for the acknowledgement code.
	Request(p hwsim.Payload) (int, error)
	Receive() ([]hwsim.Message, error)
	// Close unblocks a pending Receive.
	Close() error
}

// Sandbox isolates a radio from its siblings.
// *netns.Namespace implements it.
type Sandbox interface {
	// Do runs fn inside the sandbox.
	Do(fn func() error) error
	Close() error
}

// Environment provides the kernel facing capabilities an engine acquires
// while initializing.
type Environment interface {
	Sandbox(r topology.Radio) (Sandbox, error)
	// Dial opens a control channel from inside sb.
	Dial(sb Sandbox) (Control, error)
	// MapRing maps the shared memory of the radio the driver assigned
	// index to. A nil ring without error selects inline delivery.
	MapRing(r topology.Radio, index int) (*ring.Ring, error)
}

// HostSandbox runs radios in the caller's network namespace.
type HostSandbox struct{}

func (HostSandbox) Do(fn func() error) error { return fn() }

func (HostSandbox) Close() error { return nil }
