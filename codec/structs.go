package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/synix/crdtengine/container"
	"github.com/synix/crdtengine/content"
	"github.com/synix/crdtengine/id"
	"github.com/synix/crdtengine/item"
	"github.com/synix/crdtengine/store"
)

const (
	contentRefMask  = 0x1F
	parentSubBit    = 1 << 5
	rightOriginBit  = 1 << 6
	originBit       = 1 << 7
)

func appendID(buf []byte, v id.ID) []byte {
	buf = binary.AppendUvarint(buf, uint64(v.Client))
	buf = binary.AppendUvarint(buf, uint64(v.Clock))
	return buf
}

func decodeID(d *decoder) (id.ID, error) {
	client, err := d.uvarint()
	if err != nil {
		return id.None, err
	}
	clock, err := d.uvarint()
	if err != nil {
		return id.None, err
	}
	return id.ID{Client: uint32(client), Clock: uint32(clock)}, nil
}

// EncodeStructs writes the struct section of an update: every struct in
// s whose client appears with clock >= sv[client] (missing clients treated
// as 0), grouped per client descending (spec §4.7, §4.4 step 1).
func EncodeStructs(s *store.Store, sv map[uint32]uint32) ([]byte, error) {
	clients := store.SortClients(s.ClientIDs())

	type run struct {
		client  uint32
		structs []item.Struct
	}
	var runs []run
	for _, c := range clients {
		from := sv[c]
		state := s.GetState(c)
		if from >= state {
			continue
		}
		if from > 0 {
			if _, err := s.GetItemCleanStart(id.ID{Client: c, Clock: from}); err != nil {
				return nil, err
			}
		}
		idx, err := s.FindIndex(c, from)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run{client: c, structs: s.Segment(c)[idx:]})
	}

	buf := binary.AppendUvarint(nil, uint64(len(runs)))
	for _, r := range runs {
		buf = binary.AppendUvarint(buf, uint64(len(r.structs)))
		buf = binary.AppendUvarint(buf, uint64(r.client))
		buf = binary.AppendUvarint(buf, uint64(r.structs[0].StructID().Clock))
		for _, st := range r.structs {
			var err error
			buf, err = appendStruct(buf, st)
			if err != nil {
				return nil, err
			}
		}
	}
	return buf, nil
}

func appendStruct(buf []byte, st item.Struct) ([]byte, error) {
	switch v := st.(type) {
	case *item.GC:
		buf = append(buf, byte(content.KindGC))
		return binary.AppendUvarint(buf, uint64(v.Length)), nil
	case *item.Skip:
		buf = append(buf, byte(content.KindSkip))
		return binary.AppendUvarint(buf, uint64(v.Length)), nil
	case *item.Item:
		ref, err := contentRef(v.Content.Kind)
		if err != nil {
			return nil, err
		}
		info := ref
		if v.Origin != id.None {
			info |= originBit
		}
		if v.RightOrigin != id.None {
			info |= rightOriginBit
		}
		if v.ParentSub != nil {
			info |= parentSubBit
		}
		buf = append(buf, info)
		if v.Origin != id.None {
			buf = appendID(buf, v.Origin)
		}
		if v.RightOrigin != id.None {
			buf = appendID(buf, v.RightOrigin)
		}
		buf, err = appendParentInfo(buf, v)
		if err != nil {
			return nil, err
		}
		if v.ParentSub != nil {
			buf = appendVarString(buf, *v.ParentSub)
		}
		buf = binary.AppendUvarint(buf, uint64(v.Length))
		return appendContentPayload(buf, v.Content)
	default:
		return nil, fmt.Errorf("unknown struct type %T: %w", st, ErrUnknownContentRef)
	}
}

// appendParentInfo always writes the parent reference, rather than only
// when the item has no left neighbor: a from-scratch decoder has no
// already-integrated state to inherit a parent from, unlike a decoder
// running inside a live document, so every item carries its own parent
// pointer on the wire here.
func appendParentInfo(buf []byte, it *item.Item) ([]byte, error) {
	if it.Parent.RootName != "" {
		buf = append(buf, 1)
		return appendVarString(buf, it.Parent.RootName), nil
	}
	if c, ok := it.Parent.Resolved.(*container.Container); ok && c.Item == nil {
		if c.RootName == "" {
			return nil, fmt.Errorf("root container has no name: %w", ErrUnknownContentRef)
		}
		buf = append(buf, 1)
		return appendVarString(buf, c.RootName), nil
	}
	var pid id.ID
	switch {
	case it.Parent.HasID:
		pid = it.Parent.ItemID
	default:
		c, ok := it.Parent.Resolved.(*container.Container)
		if !ok || c.Item == nil {
			return nil, fmt.Errorf("item has no resolvable parent reference: %w", ErrUnknownContentRef)
		}
		pid = c.Item.ID
	}
	buf = append(buf, 0)
	return appendID(buf, pid), nil
}

// DecodeStructs reads the struct section written by EncodeStructs.
func DecodeStructs(d *decoder) (map[uint32][]item.Struct, error) {
	numClients, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	out := make(map[uint32][]item.Struct, numClients)
	for i := uint64(0); i < numClients; i++ {
		numStructs, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		client64, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		firstClock, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		client := uint32(client64)
		clock := uint32(firstClock)
		structs := make([]item.Struct, 0, numStructs)
		for j := uint64(0); j < numStructs; j++ {
			st, length, err := decodeStruct(d, client, clock)
			if err != nil {
				return nil, err
			}
			structs = append(structs, st)
			clock += length
		}
		out[client] = structs
	}
	return out, nil
}

func decodeStruct(d *decoder, client uint32, clock uint32) (item.Struct, uint32, error) {
	info, err := d.byte()
	if err != nil {
		return nil, 0, err
	}
	kind, err := refToKind(info & contentRefMask)
	if err != nil {
		return nil, 0, err
	}

	switch kind {
	case content.KindGC:
		length, err := d.uvarint()
		if err != nil {
			return nil, 0, err
		}
		return &item.GC{ID: id.ID{Client: client, Clock: clock}, Length: uint32(length)}, uint32(length), nil
	case content.KindSkip:
		length, err := d.uvarint()
		if err != nil {
			return nil, 0, err
		}
		return &item.Skip{ID: id.ID{Client: client, Clock: clock}, Length: uint32(length)}, uint32(length), nil
	}

	origin := id.None
	if info&originBit != 0 {
		if origin, err = decodeID(d); err != nil {
			return nil, 0, err
		}
	}
	rightOrigin := id.None
	if info&rightOriginBit != 0 {
		if rightOrigin, err = decodeID(d); err != nil {
			return nil, 0, err
		}
	}

	parentKind, err := d.byte()
	if err != nil {
		return nil, 0, err
	}
	var parent item.ParentRef
	if parentKind == 1 {
		name, err := d.varString()
		if err != nil {
			return nil, 0, err
		}
		parent = item.ParentRef{RootName: name}
	} else {
		pid, err := decodeID(d)
		if err != nil {
			return nil, 0, err
		}
		parent = item.ParentRef{ItemID: pid, HasID: true}
	}

	var parentSub *string
	if info&parentSubBit != 0 {
		s, err := d.varString()
		if err != nil {
			return nil, 0, err
		}
		parentSub = &s
	}

	length64, err := d.uvarint()
	if err != nil {
		return nil, 0, err
	}
	length := uint32(length64)

	c, err := decodeContentPayload(d, kind, length)
	if err != nil {
		return nil, 0, err
	}

	it := &item.Item{
		ID:          id.ID{Client: client, Clock: clock},
		Length:      length,
		Origin:      origin,
		RightOrigin: rightOrigin,
		Parent:      parent,
		ParentSub:   parentSub,
		Content:     c,
		Info:        infoForDecodedContent(c),
	}
	return it, length, nil
}

func infoForDecodedContent(c content.Content) uint8 {
	if c.IsCountable() {
		return item.InfoCountable
	}
	return 0
}
