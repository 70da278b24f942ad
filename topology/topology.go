// Package topology holds the static radio graph: which radios exist and
// which of them hear each other.
package topology

import (
	"errors"
	"fmt"
	"slices"

	"github.com/romshark/hwsim-medium/hwsim"
)

var (
	ErrDuplicateID   = errors.New("duplicate radio id")
	ErrDuplicateAddr = errors.New("duplicate radio address")
	ErrDuplicateName = errors.New("duplicate radio name")
	ErrUnknownRadio  = errors.New("unknown radio")
	ErrInvalidLink   = errors.New("invalid link")
	ErrInvalidAddr   = errors.New("invalid radio address")
)

// RadioID identifies a configured radio.
type RadioID uint32

// Radio describes a simulated radio.
type Radio struct {
	ID       RadioID
	Name     string
	PermAddr hwsim.MAC
	// HWAddr is the address frames are routed on. Defaults to PermAddr.
	HWAddr           hwsim.MAC
	Channels         uint32
	SupportP2PDevice bool
	UseChanctx       bool
	DestroyOnClose   bool
	NoVIF            bool
	// Netns names a persistent network namespace to run the radio in.
	// Empty means a fresh anonymous namespace.
	Netns string
}

// Link lets Dst hear Src, and Src hear Dst when Mutual.
type Link struct {
	Src, Dst RadioID
	Mutual   bool
}

// Peer is a radio reachable from another one.
type Peer struct {
	ID   RadioID
	Addr hwsim.MAC
}

// Registry is the validated, immutable topology.
// It is safe for concurrent use.
type Registry struct {
	radios []Radio
	index  map[RadioID]int
	peers  map[RadioID][]Peer
}

// New validates radios and links and precomputes every radio's peers.
func New(radios []Radio, links []Link) (*Registry, error) {
	r := &Registry{
		radios: make([]Radio, len(radios)),
		index:  make(map[RadioID]int, len(radios)),
		peers:  make(map[RadioID][]Peer, len(radios)),
	}
	addrs := make(map[hwsim.MAC]RadioID, len(radios))
	names := make(map[string]RadioID, len(radios))
	for i, radio := range radios {
		if radio.HWAddr.IsZero() {
			radio.HWAddr = radio.PermAddr
		}
		if _, ok := r.index[radio.ID]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, radio.ID)
		}
		// Names key the per-radio counters and log fields.
		if radio.Name != "" {
			if other, ok := names[radio.Name]; ok {
				return nil, fmt.Errorf("%w: %q used by radios %d and %d",
					ErrDuplicateName, radio.Name, other, radio.ID)
			}
			names[radio.Name] = radio.ID
		}
		for _, a := range []hwsim.MAC{radio.PermAddr, radio.HWAddr} {
			if a.IsZero() || a.IsBroadcast() {
				return nil, fmt.Errorf("%w: radio %d: %s", ErrInvalidAddr, radio.ID, a)
			}
			if other, ok := addrs[a]; ok && other != radio.ID {
				return nil, fmt.Errorf("%w: %s used by radios %d and %d",
					ErrDuplicateAddr, a, other, radio.ID)
			}
			addrs[a] = radio.ID
		}
		r.radios[i] = radio
		r.index[radio.ID] = i
	}

	add := func(from, to RadioID) {
		p := Peer{ID: to, Addr: r.radios[r.index[to]].HWAddr}
		if !slices.Contains(r.peers[from], p) {
			r.peers[from] = append(r.peers[from], p)
		}
	}
	for _, l := range links {
		for _, id := range []RadioID{l.Src, l.Dst} {
			if _, ok := r.index[id]; !ok {
				return nil, fmt.Errorf("%w: %d in link %d->%d", ErrUnknownRadio, id, l.Src, l.Dst)
			}
		}
		if l.Src == l.Dst {
			return nil, fmt.Errorf("%w: radio %d linked to itself", ErrInvalidLink, l.Src)
		}
		add(l.Src, l.Dst)
		if l.Mutual {
			add(l.Dst, l.Src)
		}
	}
	return r, nil
}

// Radios returns the radios in configuration order.
func (r *Registry) Radios() []Radio { return slices.Clone(r.radios) }

// Radio returns the radio with the given id.
func (r *Registry) Radio(id RadioID) (Radio, bool) {
	i, ok := r.index[id]
	if !ok {
		return Radio{}, false
	}
	return r.radios[i], true
}

// Peers returns the radios that hear id.
func (r *Registry) Peers(id RadioID) []Peer { return slices.Clone(r.peers[id]) }

// Resolve returns the peers of id that receive a frame addressed to dst:
// every peer for broadcast and all-zero addresses, otherwise the peer whose
// address is dst. No match yields nil.
func (r *Registry) Resolve(id RadioID, dst hwsim.MAC) []Peer {
	peers := r.peers[id]
	if dst.IsBroadcast() || dst.IsZero() {
		return slices.Clone(peers)
	}
	for _, p := range peers {
		if p.Addr == dst {
			return []Peer{p}
		}
	}
	return nil
}
