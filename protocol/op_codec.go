package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/goatee-collab/goatee/ot"
)

// OpWire is the JSON wire shape of an ot.Op, per §6's tag-then-payload
// encoding (0=NoOp, 1=Insert, 2=Delete, 3=Split). Split is recursive: A and
// B are themselves OpWire values.
type OpWire struct {
	Tag  uint8   `json:"op_tag"`
	Pos  int     `json:"pos,omitempty"`
	Len  int     `json:"len,omitempty"`
	Text string  `json:"text,omitempty"`
	A    *OpWire `json:"a,omitempty"`
	B    *OpWire `json:"b,omitempty"`
}

// EncodeOp converts an ot.Op into its wire representation.
func EncodeOp(op ot.Op) (OpWire, error) {
	switch v := op.(type) {
	case ot.NoOp:
		return OpWire{Tag: ot.TagNoOp}, nil
	case *ot.Insert:
		return OpWire{Tag: ot.TagInsert, Pos: v.Pos, Text: v.Text}, nil
	case *ot.Delete:
		return OpWire{Tag: ot.TagDelete, Pos: v.Pos, Len: v.Len}, nil
	case *ot.Split:
		a, err := EncodeOp(v.A)
		if err != nil {
			return OpWire{}, err
		}
		b, err := EncodeOp(v.B)
		if err != nil {
			return OpWire{}, err
		}
		return OpWire{Tag: ot.TagSplit, A: &a, B: &b}, nil
	default:
		return OpWire{}, Newf(KindProtocolViolation, "unencodable op type %T", op)
	}
}

// DecodeOp converts a wire representation back into an ot.Op.
func DecodeOp(w OpWire) (ot.Op, error) {
	switch w.Tag {
	case ot.TagNoOp:
		return ot.NoOp{}, nil
	case ot.TagInsert:
		return &ot.Insert{Pos: w.Pos, Text: w.Text}, nil
	case ot.TagDelete:
		return &ot.Delete{Pos: w.Pos, Len: w.Len}, nil
	case ot.TagSplit:
		if w.A == nil || w.B == nil {
			return nil, Newf(KindProtocolViolation, "split op missing operand")
		}
		a, err := DecodeOp(*w.A)
		if err != nil {
			return nil, err
		}
		b, err := DecodeOp(*w.B)
		if err != nil {
			return nil, err
		}
		return &ot.Split{A: a, B: b}, nil
	default:
		return nil, Newf(KindProtocolViolation, "unknown op_tag %d", w.Tag)
	}
}

// MarshalOp and UnmarshalOp are convenience wrappers for embedding an
// operation directly in a larger packet's JSON body.
func MarshalOp(op ot.Op) (json.RawMessage, error) {
	w, err := EncodeOp(op)
	if err != nil {
		return nil, err
	}
	buf, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal op: %w", err)
	}
	return buf, nil
}

func UnmarshalOp(raw json.RawMessage) (ot.Op, error) {
	var w OpWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal op: %w", err)
	}
	return DecodeOp(w)
}
