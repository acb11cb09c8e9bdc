// Package id defines the (client, clock) identifier that names every unit
// of content a peer has ever inserted.
package id

import "fmt"

// ID names the first content unit of an item: the client that created it
// and the clock value at creation time. An item of length L occupies
// clocks [Clock, Clock+L); the item's identifier is always its first unit.
type ID struct {
	Client uint32
	Clock  uint32
}

// None is the sentinel meaning "no such neighbor" (document start/end, or
// an unset origin). It deliberately does not overlap the zero value,
// since client 0 is a perfectly valid assigned client id.
var None = ID{Client: ^uint32(0), Clock: ^uint32(0)}

// IsNone reports whether id is the None sentinel. Client 0 is a valid
// client id in principle, so callers that need to distinguish "really id
// zero-zero" from "none" should carry an explicit *ID or a separate bool;
// within this engine None is only ever produced by "no neighbor" paths.
func (a ID) IsNone() bool { return a == None }

// Last returns the identifier of the last content unit covered by an item
// of the given length starting at a.
func (a ID) Last(length uint32) ID {
	return ID{Client: a.Client, Clock: a.Clock + length - 1}
}

// Less defines the total order used to break ties between concurrent
// items: lower client id wins (§4.3 case A).
func (a ID) Less(b ID) bool {
	if a.Client != b.Client {
		return a.Client < b.Client
	}
	return a.Clock < b.Clock
}

// Contains reports whether clock c falls within the length-L range
// starting at a.
func (a ID) Contains(c uint32, length uint32) bool {
	return c >= a.Clock && c < a.Clock+length
}

func (a ID) String() string {
	return fmt.Sprintf("(%d,%d)", a.Client, a.Clock)
}
