package genl

import (
	"errors"
	"fmt"

	"github.com/romshark/hwsim-medium/nla"
)

// Generic netlink controller ("nlctrl").
const (
	IDCtrl      uint16 = 0x10
	ctrlVersion uint8  = 2

	ctrlCmdGetFamily uint8 = 3

	ctrlAttrFamilyID    uint16 = 1
	ctrlAttrFamilyName  uint16 = 2
	ctrlAttrVersion     uint16 = 3
	ctrlAttrHdrSize     uint16 = 4
	ctrlAttrMaxAttr     uint16 = 5
	ctrlAttrMcastGroups uint16 = 7

	ctrlAttrMcastGrpName uint16 = 1
	ctrlAttrMcastGrpID   uint16 = 2
)

var ErrFamilyNotFound = errors.New("generic netlink family not found")

var ctrlSchema = nla.NewTypes(
	ctrlAttrFamilyID,
	ctrlAttrFamilyName,
	ctrlAttrVersion,
	ctrlAttrHdrSize,
	ctrlAttrMaxAttr,
	ctrlAttrMcastGroups,
)

// Family describes a registered generic netlink family.
type Family struct {
	ID      uint16
	Name    string
	Version uint32
	MaxAttr uint32
	// Groups maps multicast group names to their ids.
	Groups map[string]uint32
}

// GetFamilyRequest builds the controller request resolving name.
func GetFamilyRequest(name string) Message {
	return Message{
		Header:  Header{Type: IDCtrl, Flags: FlagRequest | FlagAck},
		Command: ctrlCmdGetFamily,
		Version: ctrlVersion,
		// The controller expects a NUL-terminated name.
		Payload: nla.Encode([]nla.Attr{nla.String(ctrlAttrFamilyName, name+"\x00")}),
	}
}

// ParseFamily decodes a controller NEWFAMILY reply.
func ParseFamily(m Message) (Family, error) {
	var f Family
	if m.Header.Type != IDCtrl {
		return f, fmt.Errorf("unexpected message type %d for family reply", m.Header.Type)
	}
	// Unknown controller attributes (ops, policies) are expected.
	attrs, err := nla.Decode(m.Payload, ctrlSchema)
	if err != nil && !errors.Is(err, nla.ErrUnknownAttributeType) {
		return f, fmt.Errorf("decoding family attributes: %w", err)
	}
	for _, a := range attrs {
		switch a.Type {
		case ctrlAttrFamilyID:
			if f.ID, err = nla.ParseUint16(a.Value); err != nil {
				return f, fmt.Errorf("family id: %w", err)
			}
		case ctrlAttrFamilyName:
			f.Name = nla.ParseString(a.Value)
		case ctrlAttrVersion:
			if f.Version, err = nla.ParseUint32(a.Value); err != nil {
				return f, fmt.Errorf("family version: %w", err)
			}
		case ctrlAttrMaxAttr:
			if f.MaxAttr, err = nla.ParseUint32(a.Value); err != nil {
				return f, fmt.Errorf("family max attr: %w", err)
			}
		case ctrlAttrMcastGroups:
			if f.Groups, err = parseGroups(a.Value); err != nil {
				return f, fmt.Errorf("family groups: %w", err)
			}
		}
	}
	if f.ID == 0 {
		return f, fmt.Errorf("%w: %q", ErrFamilyNotFound, f.Name)
	}
	return f, nil
}

// parseGroups decodes the nested array of multicast groups.
func parseGroups(b []byte) (map[string]uint32, error) {
	entries, err := nla.Decode(b, nil)
	if err != nil {
		return nil, err
	}
	groups := make(map[string]uint32, len(entries))
	for _, e := range entries {
		attrs, err := nla.Decode(e.Value, nil)
		if err != nil {
			return nil, err
		}
		var (
			name string
			id   uint32
		)
		for _, a := range attrs {
			switch a.Type {
			case ctrlAttrMcastGrpName:
				name = nla.ParseString(a.Value)
			case ctrlAttrMcastGrpID:
				if id, err = nla.ParseUint32(a.Value); err != nil {
					return nil, err
				}
			}
		}
		if name != "" {
			groups[name] = id
		}
	}
	return groups, nil
}
