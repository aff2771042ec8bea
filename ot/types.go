package ot

import (
	"fmt"

	"github.com/goatee-collab/goatee/content"
)

// Wire tags, per the external protocol's operation encoding (§6).
const (
	TagNoOp   uint8 = 0
	TagInsert uint8 = 1
	TagDelete uint8 = 2
	TagSplit  uint8 = 3
)

// NoOp is the identity operation. It is what a fully-consumed Delete
// transforms into.
type NoOp struct{}

func (NoOp) Apply(m Mutator, author *content.UserID) error { return nil }

func (NoOp) Reverse(before *content.Content) (Op, error) { return NoOp{}, nil }

func (NoOp) Tag() uint8 { return TagNoOp }

// Insert inserts Text at Pos, shifting everything from Pos onward to the
// right by len(Text) codepoints.
type Insert struct {
	Pos  int
	Text string
}

func (op *Insert) Apply(m Mutator, author *content.UserID) error {
	return m.InsertAt(op.Pos, op.Text, author)
}

func (op *Insert) Reverse(before *content.Content) (Op, error) {
	return &Delete{Pos: op.Pos, Len: runeLen(op.Text)}, nil
}

func (op *Insert) Tag() uint8 { return TagInsert }

// Delete removes Len codepoints starting at Pos.
type Delete struct {
	Pos int
	Len int
}

func (op *Delete) Apply(m Mutator, author *content.UserID) error {
	return m.DeleteAt(op.Pos, op.Len)
}

func (op *Delete) Reverse(before *content.Content) (Op, error) {
	if op.Pos < 0 || op.Pos+op.Len > before.Length() {
		return nil, fmt.Errorf("ot: reverse out of bounds: pos=%d len=%d content length=%d", op.Pos, op.Len, before.Length())
	}
	runes := []rune(before.Text())
	removed := string(runes[op.Pos : op.Pos+op.Len])
	return &Insert{Pos: op.Pos, Text: removed}, nil
}

func (op *Delete) Tag() uint8 { return TagDelete }

// Split applies A then B, in that order, against the state A produces.
// Transformation produces Split when a single concurrent operation must be
// expressed as two non-contiguous pieces (e.g. an insertion landing inside
// a deleted range splits the deletion around it).
type Split struct {
	A, B Op
}

// newSplit builds a Split, collapsing away NoOp operands so NoOp.transform
// identities (TP3) don't accumulate as trivial Split wrappers.
func newSplit(a, b Op) Op {
	_, aNoOp := a.(NoOp)
	_, bNoOp := b.(NoOp)
	switch {
	case aNoOp && bNoOp:
		return NoOp{}
	case aNoOp:
		return b
	case bNoOp:
		return a
	default:
		return &Split{A: a, B: b}
	}
}

func (op *Split) Apply(m Mutator, author *content.UserID) error {
	if err := op.A.Apply(m, author); err != nil {
		return err
	}
	return op.B.Apply(m, author)
}

func (op *Split) Reverse(before *content.Content) (Op, error) {
	// Reversing (A then B) means undoing B first (against the state after A
	// ran), then undoing A (against the original state).
	afterA := cloneContent(before)
	if err := op.A.Apply(afterA, nil); err != nil {
		return nil, err
	}
	bRev, err := op.B.Reverse(afterA)
	if err != nil {
		return nil, err
	}
	aRev, err := op.A.Reverse(before)
	if err != nil {
		return nil, err
	}
	return newSplit(bRev, aRev), nil
}

func (op *Split) Tag() uint8 { return TagSplit }

func cloneContent(c *content.Content) *content.Content {
	clone := content.New("", nil)
	for _, ch := range c.Chunks() {
		// Chunks() already deep-copies author pointers; re-insert them in
		// order to build an independent Content with the same chunk shape.
		pos := clone.Length()
		if err := clone.InsertAt(pos, ch.Text, ch.Author); err != nil {
			panic(fmt.Sprintf("ot: clone content: %v", err))
		}
	}
	return clone
}
