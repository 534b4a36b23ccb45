package prudp

import "time"

// ReassemblyTimeout is how long a partial fragmented message may sit
// unfinished before its buffer is discarded.
const ReassemblyTimeout = 5 * time.Second

// reassembler accumulates DATA fragments for one connection. A fragment
// index of zero marks the final fragment of a message; nonzero indices mark
// fragments with more to follow. This mirrors Quazal PRUDP's own framing,
// where the fragment counter counts down to the terminating zero rather
// than up from it.
type reassembler struct {
	active    bool
	firstSeen time.Time
	parts     [][]byte
}

func (r *reassembler) reset() {
	r.active = false
	r.parts = nil
}

// expireIfStale discards a partial buffer that has sat longer than
// ReassemblyTimeout without completing.
func (r *reassembler) expireIfStale(now time.Time) {
	if r.active && now.Sub(r.firstSeen) > ReassemblyTimeout {
		r.reset()
	}
}

// feed adds one fragment's payload, returning the joined message once the
// terminating (index zero) fragment arrives.
func (r *reassembler) feed(now time.Time, fragmentIndex uint32, payload []byte) (full []byte, complete bool) {
	r.expireIfStale(now)

	if fragmentIndex == 0 && len(r.parts) == 0 {
		return payload, true
	}

	if !r.active {
		r.active = true
		r.firstSeen = now
	}
	r.parts = append(r.parts, payload)

	if fragmentIndex != 0 {
		return nil, false
	}

	total := 0
	for _, p := range r.parts {
		total += len(p)
	}
	full = make([]byte, 0, total)
	for _, p := range r.parts {
		full = append(full, p...)
	}
	r.reset()
	return full, true
}
