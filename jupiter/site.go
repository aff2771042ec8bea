// Package jupiter implements the two-site Jupiter OT endpoint: the
// (local_count, remote_count, queue) state machine that each side of a
// client<->server document link maintains, per spec §4.3.
package jupiter

import (
	"errors"
	"fmt"
	"sync"

	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/ot"
)

// ErrDesynchronized is returned by RemoteOp when the incoming record's state
// vector does not match this site's expectations. It is unrecoverable for
// the affected document/link: the caller must close that document for this
// peer (the session itself survives).
var ErrDesynchronized = errors.New("jupiter: state vector mismatch, link desynchronized")

// StateVector is the two-dimensional clock carried on every Record:
// LocalCount is the number of ops this site has emitted; RemoteCount is the
// number of peer ops this site has applied.
type StateVector struct {
	LocalCount  uint32
	RemoteCount uint32
}

// Record is what crosses the wire: an operation plus the author and state
// vector it was produced under.
type Record struct {
	Author content.UserID
	Op     ot.Op
	SV     StateVector
}

// Site is one endpoint of a two-site Jupiter link. The server holds one
// Site per subscribed client; a client holds one Site for the document it
// is subscribed to.
type Site struct {
	mu      sync.Mutex
	local   uint32
	remote  uint32
	queue   []Record
	content *content.Content
	side    ot.Side
	onLocal func(Record)
}

// New constructs a Site bound to content. side is the tie-break side of this
// site's own ops in an Insert/Insert tie; ops received from the peer take the
// opposite side. onLocal is invoked synchronously from
// LocalOp with the record to forward to the peer; it may be nil.
func New(content *content.Content, side ot.Side, onLocal func(Record)) *Site {
	return &Site{content: content, side: side, onLocal: onLocal}
}

// LocalCount returns the number of ops this site has emitted via LocalOp.
func (s *Site) LocalCount() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// RemoteCount returns the number of ops this site has applied via RemoteOp.
func (s *Site) RemoteCount() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// LocalOp applies a locally-produced op, enqueues it for later
// retransformation, and (if onLocal is set) emits it for the coordinator to
// ship to the peer. Per spec §4.3: apply, enqueue, emit, then increment.
func (s *Site) LocalOp(op ot.Op, author content.UserID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Record{
		Author: author,
		Op:     op,
		SV:     StateVector{LocalCount: s.local, RemoteCount: s.remote},
	}
	if err := op.Apply(s.content, &author); err != nil {
		return Record{}, err
	}
	s.queue = append(s.queue, r)
	if s.onLocal != nil {
		s.onLocal(r)
	}
	s.local++
	return r, nil
}

// RemoteOp applies an op received from the peer, transforming it against
// this site's queue of not-yet-acknowledged local ops, per spec §4.3. It
// returns the transformed operation as actually applied, which the document
// coordinator needs in order to forward the same logical edit to other
// subscribers through their own Jupiter twins (§4.4).
func (s *Site) RemoteOp(r Record) (ot.Op, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The peer's ops must arrive in order (r is the next one this site has
	// not applied), and the peer cannot have applied more of this site's ops
	// than this site has emitted.
	if r.SV.LocalCount != s.remote || r.SV.RemoteCount > s.local {
		return nil, fmt.Errorf("%w: record sv=(%d,%d), site local_count=%d remote_count=%d", ErrDesynchronized, r.SV.LocalCount, r.SV.RemoteCount, s.local, s.remote)
	}

	// Records at the front of the queue with LocalCount < r.SV.RemoteCount
	// are ops the peer had already applied when it produced r: they no
	// longer need transforming against anything further, and needn't be
	// retained. The rest are concurrent with r.
	i := 0
	for i < len(s.queue) && s.queue[i].SV.LocalCount < r.SV.RemoteCount {
		i++
	}
	s.queue = s.queue[i:]

	op := r.Op
	for idx := range s.queue {
		q := s.queue[idx]
		opPrime, qPrime := ot.TransformPair(op, q.Op, ot.Flip(s.side))
		op = opPrime
		s.queue[idx].Op = qPrime
	}

	author := r.Author
	if err := op.Apply(s.content, &author); err != nil {
		return nil, err
	}
	s.remote++
	return op, nil
}

// Queue returns a snapshot of the not-yet-acknowledged local records, for
// tests and diagnostics.
func (s *Site) Queue() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.queue))
	copy(out, s.queue)
	return out
}
