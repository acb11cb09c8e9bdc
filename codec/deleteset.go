package codec

import (
	"encoding/binary"

	"github.com/synix/crdtengine/store"
)

// EncodeDeleteSet writes ds as: varuint numberOfClients, then per client
// the client id followed by an ordered run-length list of (clock,length)
// pairs (spec §4.7).
func EncodeDeleteSet(ds *store.DeleteSet) []byte {
	ds.Normalize()
	clients := make([]uint32, 0, len(ds.Clients))
	for c := range ds.Clients {
		clients = append(clients, c)
	}
	clients = store.SortClients(clients)

	buf := binary.AppendUvarint(nil, uint64(len(clients)))
	for _, c := range clients {
		ranges := ds.Clients[c]
		buf = binary.AppendUvarint(buf, uint64(c))
		buf = binary.AppendUvarint(buf, uint64(len(ranges)))
		for _, r := range ranges {
			buf = binary.AppendUvarint(buf, uint64(r.Clock))
			buf = binary.AppendUvarint(buf, uint64(r.Length))
		}
	}
	return buf
}

// DecodeDeleteSet reads the section written by EncodeDeleteSet.
func DecodeDeleteSet(d *decoder) (*store.DeleteSet, error) {
	numClients, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	ds := store.NewDeleteSet()
	for i := uint64(0); i < numClients; i++ {
		client, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		numRanges, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		for j := uint64(0); j < numRanges; j++ {
			clock, err := d.uvarint()
			if err != nil {
				return nil, err
			}
			length, err := d.uvarint()
			if err != nil {
				return nil, err
			}
			ds.Add(uint32(client), uint32(clock), uint32(length))
		}
	}
	ds.Normalize()
	return ds, nil
}
