//go:build linux

package medium

import (
	"fmt"

	"github.com/romshark/hwsim-medium/hwsim"
	"github.com/romshark/hwsim-medium/netns"
	"github.com/romshark/hwsim-medium/ring"
	"github.com/romshark/hwsim-medium/topology"
)

// LinuxEnvironment talks to the mac80211_hwsim driver.
type LinuxEnvironment struct {
	// Isolate gives each radio without a named namespace a fresh one.
	// Otherwise such radios share the host namespace.
	Isolate bool
	// RingDevice is formatted with the radio index, e.g. "/dev/phy%d".
	// Empty disables shared memory delivery.
	RingDevice string
	Ring       ring.Config
}

func (e *LinuxEnvironment) Sandbox(r topology.Radio) (Sandbox, error) {
	var (
		ns  *netns.Namespace
		err error
	)
	switch {
	case r.Netns != "":
		ns, err = netns.Open(r.Netns)
	case e.Isolate:
		ns, err = netns.New()
	default:
		return HostSandbox{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ns, nil
}

// Dial opens the netlink socket inside sb, which binds the radios it
// creates to that namespace.
func (e *LinuxEnvironment) Dial(sb Sandbox) (Control, error) {
	var c *hwsim.Conn
	err := sb.Do(func() (err error) {
		c, err = hwsim.Dial()
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (e *LinuxEnvironment) MapRing(r topology.Radio, index int) (*ring.Ring, error) {
	if e.RingDevice == "" {
		return nil, nil
	}
	return ring.Map(fmt.Sprintf(e.RingDevice, index), e.Ring)
}
