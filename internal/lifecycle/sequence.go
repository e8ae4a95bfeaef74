package lifecycle

import "sync/atomic"

// Sequencer tags requests with increasing numbers so a response that arrives
// after a newer request was issued can be recognised and dropped.
type Sequencer struct {
	last atomic.Uint64
}

// Next issues a new tag.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current reports whether tag is the newest one issued.
func (s *Sequencer) Current(tag uint64) bool {
	return tag == s.last.Load()
}
