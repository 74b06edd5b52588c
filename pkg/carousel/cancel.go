package carousel

// CancelConfig configures the cancel-vote accumulator that turns raw switch
// edges into a block / release pair.
//
// While at least Quorum of the Sources are held at the same time the carousel
// blocks and the cancel event is posted once. The block clears when every
// source has been released again.
type CancelConfig struct {
	Sources []string
	// Quorum is the number of simultaneously active sources that cancels.
	// Zero means all of them.
	Quorum int
	// Event is posted when the block starts. Defaults to "<carousel>_cancel".
	Event string
	// ReleaseEvent is posted when the block clears. Defaults to
	// "<carousel>_released".
	ReleaseEvent string
}

// votes tracks which cancel sources are currently held.
type votes struct {
	quorum  int
	held    map[string]bool
	tripped bool
}

func newVotes(cfg CancelConfig) *votes {
	v := &votes{
		quorum: cfg.Quorum,
		held:   make(map[string]bool, len(cfg.Sources)),
	}
	if v.quorum == 0 {
		v.quorum = len(cfg.Sources)
	}
	for _, s := range cfg.Sources {
		v.held[s] = false
	}
	return v
}

// reset forgets every held source and any pending cancel.
func (v *votes) reset() {
	for s := range v.held {
		v.held[s] = false
	}
	v.tripped = false
}

// record stores the edge and reports whether source is tracked.
func (v *votes) record(source string, active bool) bool {
	if _, ok := v.held[source]; !ok {
		return false
	}
	v.held[source] = active
	return true
}

// count returns how many sources are held.
func (v *votes) count() int {
	n := 0
	for _, h := range v.held {
		if h {
			n++
		}
	}
	return n
}
