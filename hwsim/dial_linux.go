//go:build linux

package hwsim

import (
	"errors"
	"fmt"

	"github.com/romshark/hwsim-medium/genl"
)

// Dial opens a generic netlink socket in the calling thread's network
// namespace and resolves the MAC80211_HWSIM family.
func Dial() (*Conn, error) {
	gc, err := genl.Dial()
	if err != nil {
		return nil, err
	}
	f, err := gc.ResolveFamily(FamilyName)
	if err != nil {
		return nil, errors.Join(
			fmt.Errorf("is mac80211_hwsim loaded? %w", err),
			gc.Close(),
		)
	}
	return NewConn(gc, f.ID), nil
}
