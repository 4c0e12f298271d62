package stream

// DedupKey is the composite identity of one goal: a given key triggers
// delivery at most once per listener lifetime on the stream path.
type DedupKey struct {
	FixtureID int
	Minute    int
	Player    string
}

// Dedup suppresses goal events already observed. Memory is bounded: when the
// retained set exceeds the high-water mark it is pruned to its most recent
// half (insertion order, approximate LRU). A false negative after pruning
// costs at most one duplicate re-delivery, never a missed event.
//
// Not safe for concurrent use; the stream loop is the only caller.
type Dedup struct {
	seen      map[DedupKey]struct{}
	order     []DedupKey
	highWater int
}

const DefaultDedupHighWater = 1000

func NewDedup(highWater int) *Dedup {
	if highWater <= 0 {
		highWater = DefaultDedupHighWater
	}
	return &Dedup{
		seen:      make(map[DedupKey]struct{}),
		highWater: highWater,
	}
}

// Observe returns true the first time a key is seen and records it.
// Subsequent observations of the same key return false.
func (d *Dedup) Observe(k DedupKey) bool {
	if _, dup := d.seen[k]; dup {
		return false
	}
	d.seen[k] = struct{}{}
	d.order = append(d.order, k)

	if len(d.seen) > d.highWater {
		d.prune()
	}
	return true
}

// prune drops the oldest half of the retained keys.
func (d *Dedup) prune() {
	cut := len(d.order) / 2
	for _, k := range d.order[:cut] {
		delete(d.seen, k)
	}
	kept := make([]DedupKey, len(d.order)-cut)
	copy(kept, d.order[cut:])
	d.order = kept
}

// Len returns the number of retained keys.
func (d *Dedup) Len() int { return len(d.seen) }
