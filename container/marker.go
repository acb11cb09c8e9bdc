package container

import "github.com/synix/crdtengine/item"

// marker caches a (item, index) pair with a logical timestamp, up to
// maxSearchMarkers per container (spec §4.6).
type marker struct {
	it  *item.Item
	idx int
	ts  int
}

// FindPosition translates a sequence index into the item covering it,
// consulting the nearest search marker at or before index and walking
// right to the target; it does not retreat to a merge boundary
// (spec §4.2 findPosition). It returns the item together with the
// in-item offset, or (nil, 0) if index == c.Length (append position).
func (c *Container) FindPosition(index int) (*item.Item, int) {
	it, curIdx := c.nearestMarker(index)

	for it != nil {
		if it.Countable() && !it.Deleted() {
			if curIdx+int(it.Length) > index {
				c.maybeSetMarker(it, curIdx)
				return it, index - curIdx
			}
			curIdx += int(it.Length)
		}
		if it.Right == nil {
			break
		}
		it = it.Right
	}
	c.maybeSetMarker(it, curIdx)
	return nil, 0
}

// nearestMarker returns the closest cached marker at or before index,
// refreshing its timestamp, or (container start, 0) if no marker is
// close enough or none exists.
func (c *Container) nearestMarker(index int) (*item.Item, int) {
	var best *marker
	bestDist := -1
	for _, m := range c.markers {
		d := index - m.idx
		if d < 0 {
			continue
		}
		if bestDist == -1 || d < bestDist {
			best, bestDist = m, d
		}
	}
	if best != nil && (c.Length == 0 || bestDist < c.Length/maxSearchMarkers+1) {
		c.nextTS++
		best.ts = c.nextTS
		return best.it, best.idx
	}
	return c.Start, 0
}

// maybeSetMarker allocates or overwrites a search marker for (it, idx),
// dropping markers on non-countable/deleted items by walking left to the
// nearest countable, undeleted predecessor first.
func (c *Container) maybeSetMarker(it *item.Item, idx int) {
	if it == nil {
		return
	}
	for it != nil && (!it.Countable() || it.Deleted()) {
		if it.Left == nil {
			return
		}
		if it.Left.Countable() && !it.Left.Deleted() {
			idx -= int(it.Left.Length)
		}
		it = it.Left
	}
	if it == nil {
		return
	}

	c.nextTS++
	for _, m := range c.markers {
		if m.it == it {
			m.idx = idx
			m.ts = c.nextTS
			return
		}
	}
	m := &marker{it: it, idx: idx, ts: c.nextTS}
	if len(c.markers) < maxSearchMarkers {
		c.markers = append(c.markers, m)
		return
	}
	oldest := c.markers[0]
	for _, cand := range c.markers[1:] {
		if cand.ts < oldest.ts {
			oldest = cand
		}
	}
	*oldest = *m
}

// AdjustMarkersForDelete walks every marker off of an item that is about
// to be deleted or is non-countable, onto its nearest countable,
// undeleted predecessor, adjusting index accordingly; markers that can't
// find one (start of document) are dropped (spec §4.6).
func (c *Container) AdjustMarkersForDelete(deletedItem *item.Item) {
	kept := c.markers[:0:0]
	for _, m := range c.markers {
		if m.it != deletedItem {
			kept = append(kept, m)
			continue
		}
		it, idx := m.it, m.idx
		for it != nil && (it == deletedItem || !it.Countable() || it.Deleted()) {
			if it.Left == nil {
				it = nil
				break
			}
			if it.Left.Countable() && !it.Left.Deleted() && it.Left != deletedItem {
				idx -= int(it.Left.Length)
			}
			it = it.Left
		}
		if it != nil {
			m.it = it
			m.idx = idx
			kept = append(kept, m)
		}
	}
	c.markers = kept
}

// ShiftMarkers shifts every marker whose index is past the insertion
// point by n units; pure insertions (insertion, not a delete boundary)
// also shift markers exactly at idx (spec §4.6).
func (c *Container) ShiftMarkers(idx int, n int, inclusive bool) {
	for _, m := range c.markers {
		if m.idx > idx || (inclusive && m.idx == idx) {
			m.idx += n
		}
	}
}

// ClearMarkers drops the whole cache; called on remote-originated
// transactions since arbitrary restructuring invalidates every marker
// (spec §4.6).
func (c *Container) ClearMarkers() { c.markers = nil }
