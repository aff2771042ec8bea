// Package ot implements the Jupiter operation algebra: insertions and
// deletions over a linear character buffer, plus the Split and NoOp
// variants that transformation produces, and the inclusion-transformation
// (IT) matrix between pairs of concurrent operations.
package ot

import (
	"fmt"

	"github.com/goatee-collab/goatee/content"
)

// Side breaks ties when two concurrent Inserts land at the same position.
// By convention fixed for this implementation (see design notes), the
// server-side endpoint's own operations of a client<->server Jupiter pair
// always take the Left side, and the client-side endpoint's own operations
// always take the Right side.
type Side int

const (
	Left Side = iota
	Right
)

// Flip returns the other side.
func Flip(s Side) Side {
	if s == Left {
		return Right
	}
	return Left
}

// Mutator is the subset of content.Content's surface that operations apply
// against. content.Content satisfies this interface.
type Mutator interface {
	InsertAt(pos int, text string, author *content.UserID) error
	DeleteAt(pos, length int) error
}

// Op is a Jupiter operation: Insert, Delete, Split, or NoOp.
type Op interface {
	// Apply mutates m in place, attributing any inserted text to author.
	Apply(m Mutator, author *content.UserID) error
	// Reverse returns an operation that undoes this one, given the content
	// state this operation was originally applied against.
	Reverse(before *content.Content) (Op, error)
	// Tag identifies the operation's wire encoding (§6): 0=NoOp, 1=Insert,
	// 2=Delete, 3=Split.
	Tag() uint8
}

// Transform rewrites a so that its effect, applied after b, matches a's
// intent against the state b was applied to. side resolves Insert/Insert
// position ties.
func Transform(a, b Op, side Side) Op {
	return transform(a, b, side)
}

// TransformPair rebases both a and b against each other, returning the pair
// (a.Transform(b, side), b.Transform(a, Flip(side))). Both results are
// needed wherever two operations are concurrent and both must be retained
// for further transformation (Jupiter's remote_op, §4.3).
func TransformPair(a, b Op, side Side) (ap, bp Op) {
	return transform(a, b, side), transform(b, a, Flip(side))
}

func transform(a, b Op, side Side) Op {
	if as, ok := a.(*Split); ok {
		// Split(x,y).transform(Z) = Split(x.transform(Z), y.transform(Z after x)).
		bAfterX := transform(b, as.A, Flip(side))
		xp := transform(as.A, b, side)
		yp := transform(as.B, bAfterX, side)
		return newSplit(xp, yp)
	}
	if bs, ok := b.(*Split); ok {
		// Z.transform(Split(x,y)) = Z.transform(x).transform(y).
		aAfterX := transform(a, bs.A, side)
		return transform(aAfterX, bs.B, side)
	}
	if _, ok := a.(NoOp); ok {
		return a
	}
	if _, ok := b.(NoOp); ok {
		return a
	}

	switch at := a.(type) {
	case *Insert:
		switch bt := b.(type) {
		case *Insert:
			if bt.Pos > at.Pos || (bt.Pos == at.Pos && side == Left) {
				return &Insert{Pos: at.Pos, Text: at.Text}
			}
			return &Insert{Pos: at.Pos + runeLen(bt.Text), Text: at.Text}
		case *Delete:
			return transformInsertAgainstDelete(at, bt)
		}
	case *Delete:
		switch bt := b.(type) {
		case *Insert:
			return transformDeleteAgainstInsert(at, bt)
		case *Delete:
			return transformDeleteAgainstDelete(at, bt)
		}
	}
	panic(fmt.Sprintf("ot: unhandled operand types %T, %T", a, b))
}

// transformInsertAgainstDelete rewrites Insert(a) so its effect matches
// applying after Delete(b) already ran.
func transformInsertAgainstDelete(a *Insert, b *Delete) Op {
	switch {
	case a.Pos <= b.Pos:
		return &Insert{Pos: a.Pos, Text: a.Text}
	case a.Pos >= b.Pos+b.Len:
		return &Insert{Pos: a.Pos - b.Len, Text: a.Text}
	default:
		// Insertion falls inside the deleted range; it collapses to the
		// deletion's left boundary.
		return &Insert{Pos: b.Pos, Text: a.Text}
	}
}

// transformDeleteAgainstInsert rewrites Delete(a) so its effect matches
// applying after Insert(b) already ran.
func transformDeleteAgainstInsert(a *Delete, b *Insert) Op {
	switch {
	case b.Pos <= a.Pos:
		return &Delete{Pos: a.Pos + runeLen(b.Text), Len: a.Len}
	case b.Pos >= a.Pos+a.Len:
		return &Delete{Pos: a.Pos, Len: a.Len}
	default:
		// The insertion lands inside the deleted range and splits it. The
		// second piece is positioned against the state the first piece
		// leaves behind, where the inserted text now starts at a.Pos.
		left := b.Pos - a.Pos
		return newSplit(
			&Delete{Pos: a.Pos, Len: left},
			&Delete{Pos: a.Pos + runeLen(b.Text), Len: a.Len - left},
		)
	}
}

func transformDeleteAgainstDelete(a, b *Delete) Op {
	aStart, aEnd := a.Pos, a.Pos+a.Len
	bStart, bEnd := b.Pos, b.Pos+b.Len
	if aEnd <= bStart {
		return &Delete{Pos: a.Pos, Len: a.Len}
	}
	if bEnd <= aStart {
		return &Delete{Pos: a.Pos - b.Len, Len: a.Len}
	}
	// The two ranges overlap; only the portion of a's range not already
	// removed by b survives, shifted left by whatever part of b precedes it.
	overlapStart := maxInt(aStart, bStart)
	overlapEnd := minInt(aEnd, bEnd)
	overlap := overlapEnd - overlapStart
	if aStart >= bStart && aEnd <= bEnd {
		// a's whole range is consumed by b.
		return NoOp{}
	}
	if aStart < bStart && aEnd > bEnd {
		// b's range sits strictly inside a's: once b has removed the middle,
		// a's prefix and suffix are adjacent, so one Delete covers both.
		leftLen := bStart - aStart
		rightLen := aEnd - bEnd
		return &Delete{Pos: aStart, Len: leftLen + rightLen}
	}
	if aStart < bStart {
		// a starts before b; the surviving prefix is unaffected by b's shift.
		return &Delete{Pos: aStart, Len: a.Len - overlap}
	}
	// a starts at or after b's start; shift left by the part of b preceding a.
	return &Delete{Pos: bStart, Len: a.Len - overlap}
}

func runeLen(s string) int {
	return len([]rune(s))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
