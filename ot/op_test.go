package ot_test

import (
	"testing"

	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/ot"
)

func uid(n uint32) *content.UserID {
	u := content.UserID(n)
	return &u
}

func apply(t *testing.T, text string, op ot.Op) string {
	t.Helper()
	c := content.New(text, nil)
	if err := op.Apply(c, uid(1)); err != nil {
		t.Fatalf("apply %+v to %q: %v", op, text, err)
	}
	return c.Text()
}

func TestInsertApply(t *testing.T) {
	got := apply(t, "HELLO", &ot.Insert{Pos: 5, Text: " WORLD"})
	if got != "HELLO WORLD" {
		t.Fatalf("got %q", got)
	}
}

func TestDeleteApply(t *testing.T) {
	got := apply(t, "HELLO", &ot.Delete{Pos: 1, Len: 3})
	if got != "HO" {
		t.Fatalf("got %q", got)
	}
}

// TP1: for concurrent ops A, B applicable at a common state S,
// apply(apply(S,A), B.transform(A, RIGHT)) == apply(apply(S,B), A.transform(B, LEFT)).
func TestTP1Convergence(t *testing.T) {
	cases := []struct {
		name string
		s    string
		a, b ot.Op
	}{
		{"s1 concurrent inserts same pos", "HELLO", &ot.Insert{Pos: 0, Text: "X"}, &ot.Insert{Pos: 0, Text: "Y"}},
		{"s2 delete spanning insert", "ABCDEF", &ot.Delete{Pos: 1, Len: 3}, &ot.Insert{Pos: 2, Text: "z"}},
		{"s3 insert into deleted region", "ABCDEF", &ot.Delete{Pos: 2, Len: 2}, &ot.Insert{Pos: 3, Text: "x"}},
		{"s4 overlapping deletes", "ABCDEFG", &ot.Delete{Pos: 1, Len: 3}, &ot.Delete{Pos: 2, Len: 3}},
		{"insert insert distinct pos", "ABCDEF", &ot.Insert{Pos: 1, Text: "X"}, &ot.Insert{Pos: 4, Text: "Y"}},
		{"delete delete disjoint", "ABCDEFGH", &ot.Delete{Pos: 1, Len: 2}, &ot.Delete{Pos: 5, Len: 2}},
		{"insert at delete boundary", "ABCDEF", &ot.Insert{Pos: 2, Text: "Z"}, &ot.Delete{Pos: 2, Len: 2}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			left := content.New(c.s, nil)
			if err := c.a.Apply(left, uid(1)); err != nil {
				t.Fatal(err)
			}
			bPrime := ot.Transform(c.b, c.a, ot.Right)
			if err := bPrime.Apply(left, uid(2)); err != nil {
				t.Fatal(err)
			}

			right := content.New(c.s, nil)
			if err := c.b.Apply(right, uid(2)); err != nil {
				t.Fatal(err)
			}
			aPrime := ot.Transform(c.a, c.b, ot.Left)
			if err := aPrime.Apply(right, uid(1)); err != nil {
				t.Fatal(err)
			}

			if left.Text() != right.Text() {
				t.Fatalf("did not converge: left=%q right=%q", left.Text(), right.Text())
			}
		})
	}
}

// TP2: round-trip. apply(apply(S,X), X.reverse(S)) == S.
func TestTP2RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		s    string
		op   ot.Op
	}{
		{"insert", "HELLO", &ot.Insert{Pos: 2, Text: "XYZ"}},
		{"delete", "HELLO WORLD", &ot.Delete{Pos: 2, Len: 5}},
		{"split", "ABCDEFG", &ot.Split{A: &ot.Delete{Pos: 0, Len: 2}, B: &ot.Insert{Pos: 1, Text: "Q"}}},
		{"noop", "ABC", ot.NoOp{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			before := content.New(c.s, nil)
			after := content.New(c.s, nil)
			if err := c.op.Apply(after, uid(1)); err != nil {
				t.Fatal(err)
			}
			rev, err := c.op.Reverse(before)
			if err != nil {
				t.Fatal(err)
			}
			if err := rev.Apply(after, uid(1)); err != nil {
				t.Fatal(err)
			}
			if after.Text() != before.Text() {
				t.Fatalf("got %q, want %q", after.Text(), before.Text())
			}
		})
	}
}

// TP3: NoOp identities.
func TestTP3NoOpIdentity(t *testing.T) {
	ins := &ot.Insert{Pos: 0, Text: "x"}
	if got := ot.Transform(ot.NoOp{}, ins, ot.Left); got.Tag() != ot.TagNoOp {
		t.Fatalf("NoOp.transform(any) should stay NoOp, got %T", got)
	}
	if got := ot.Transform(ins, ot.NoOp{}, ot.Left); got != ins {
		t.Fatalf("any.transform(NoOp) should be unchanged, got %+v", got)
	}
	c := content.New("abc", nil)
	if err := (ot.NoOp{}).Apply(c, nil); err != nil {
		t.Fatal(err)
	}
	if c.Text() != "abc" {
		t.Fatalf("NoOp.Apply mutated content: %q", c.Text())
	}
}

// S1: concurrent inserts at the same position, server=LEFT applies first.
func TestScenarioS1ConcurrentInsertSamePos(t *testing.T) {
	a := &ot.Insert{Pos: 0, Text: "X"}
	b := &ot.Insert{Pos: 0, Text: "Y"}
	c := content.New("HELLO", nil)
	if err := a.Apply(c, uid(1)); err != nil {
		t.Fatal(err)
	}
	bPrime := ot.Transform(b, a, ot.Right)
	if err := bPrime.Apply(c, uid(2)); err != nil {
		t.Fatal(err)
	}
	if got := c.Text(); got != "XYHELLO" {
		t.Fatalf("got %q, want XYHELLO", got)
	}
}

// S2: delete spanning an insert.
func TestScenarioS2DeleteSpanningInsert(t *testing.T) {
	a := &ot.Delete{Pos: 1, Len: 3}
	b := &ot.Insert{Pos: 2, Text: "z"}
	c := content.New("ABCDEF", nil)
	if err := a.Apply(c, uid(1)); err != nil {
		t.Fatal(err)
	}
	bPrime := ot.Transform(b, a, ot.Right)
	if err := bPrime.Apply(c, uid(2)); err != nil {
		t.Fatal(err)
	}
	if got := c.Text(); got != "AzEF" {
		t.Fatalf("got %q, want AzEF", got)
	}
}

// S3: insert into a deleted region.
func TestScenarioS3InsertIntoDeletedRegion(t *testing.T) {
	a := &ot.Delete{Pos: 2, Len: 2}
	b := &ot.Insert{Pos: 3, Text: "x"}
	bPrime := ot.Transform(b, a, ot.Right)
	got, ok := bPrime.(*ot.Insert)
	if !ok || got.Pos != 2 {
		t.Fatalf("got %+v, want Insert{Pos:2}", bPrime)
	}
	c := content.New("ABCDEF", nil)
	if err := a.Apply(c, uid(1)); err != nil {
		t.Fatal(err)
	}
	if err := bPrime.Apply(c, uid(2)); err != nil {
		t.Fatal(err)
	}
	if s := c.Text(); s != "ABxEF" {
		t.Fatalf("got %q, want ABxEF", s)
	}
}

// S4: overlapping deletes, both orders converge.
func TestScenarioS4OverlappingDeletes(t *testing.T) {
	a := &ot.Delete{Pos: 1, Len: 3}
	b := &ot.Delete{Pos: 2, Len: 3}

	order1 := content.New("ABCDEFG", nil)
	if err := a.Apply(order1, uid(1)); err != nil {
		t.Fatal(err)
	}
	bPrime := ot.Transform(b, a, ot.Right)
	if err := bPrime.Apply(order1, uid(2)); err != nil {
		t.Fatal(err)
	}

	order2 := content.New("ABCDEFG", nil)
	if err := b.Apply(order2, uid(2)); err != nil {
		t.Fatal(err)
	}
	aPrime := ot.Transform(a, b, ot.Left)
	if err := aPrime.Apply(order2, uid(1)); err != nil {
		t.Fatal(err)
	}

	if order1.Text() != "AFG" || order2.Text() != "AFG" {
		t.Fatalf("got %q / %q, want AFG / AFG", order1.Text(), order2.Text())
	}
}

func TestTransformPair(t *testing.T) {
	a := &ot.Insert{Pos: 0, Text: "a"}
	b := &ot.Insert{Pos: 0, Text: "b"}
	ap, bp := ot.TransformPair(a, b, ot.Left)
	if ap.(*ot.Insert).Pos != 0 {
		t.Fatalf("a (Left) should keep position 0, got %+v", ap)
	}
	if bp.(*ot.Insert).Pos != 1 {
		t.Fatalf("b should shift to 1, got %+v", bp)
	}
}
