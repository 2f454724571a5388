package infinote

import (
	"encoding/json"
	"fmt"
)

// Wire forms. Requests travel as a tagged envelope with the vector in its
// canonical string form; operations are a tagged union; buffers are plain
// segment lists.

const (
	kindDo   = "do"
	kindUndo = "undo"
	kindRedo = "redo"
)

const (
	opNoOp   = "noop"
	opInsert = "insert"
	opDelete = "delete"
	opSplit  = "split"
)

type wireRequest struct {
	Kind   string         `json:"kind"`
	User   UserID         `json:"user"`
	Vector string         `json:"vector"`
	Op     *wireOperation `json:"op,omitempty"`
}

type wireOperation struct {
	Type     string         `json:"type"`
	Position int            `json:"position,omitempty"`
	Text     []Segment      `json:"text,omitempty"`
	Count    int            `json:"count,omitempty"`
	First    *wireOperation `json:"first,omitempty"`
	Second   *wireOperation `json:"second,omitempty"`
}

// EncodeRequest renders a request in its wire form.
func EncodeRequest(r Request) ([]byte, error) {
	env := wireRequest{User: r.RequestUser(), Vector: r.RequestVector().String()}
	switch req := r.(type) {
	case *DoRequest:
		env.Kind = kindDo
		op, err := encodeOperation(req.Operation)
		if err != nil {
			return nil, err
		}
		env.Op = op
	case *UndoRequest:
		env.Kind = kindUndo
	case *RedoRequest:
		env.Kind = kindRedo
	default:
		return nil, fmt.Errorf("infinote: cannot encode %T", r)
	}
	return json.Marshal(env)
}

// DecodeRequest parses a request from its wire form.
func DecodeRequest(data []byte) (Request, error) {
	var env wireRequest
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("infinote: decode request: %w", err)
	}
	vector, err := ParseVector(env.Vector)
	if err != nil {
		return nil, err
	}
	switch env.Kind {
	case kindDo:
		if env.Op == nil {
			return nil, fmt.Errorf("infinote: do request without operation")
		}
		op, err := decodeOperation(env.Op)
		if err != nil {
			return nil, err
		}
		return NewDoRequest(env.User, vector, op), nil
	case kindUndo:
		return NewUndoRequest(env.User, vector), nil
	case kindRedo:
		return NewRedoRequest(env.User, vector), nil
	}
	return nil, fmt.Errorf("infinote: unknown request kind %q", env.Kind)
}

func encodeOperation(op Operation) (*wireOperation, error) {
	switch o := op.(type) {
	case *NoOp:
		return &wireOperation{Type: opNoOp}, nil
	case *Insert:
		return &wireOperation{Type: opInsert, Position: o.Position, Text: o.Text.Segments()}, nil
	case *Delete:
		if o.Reversible() {
			return &wireOperation{Type: opDelete, Position: o.Position, Text: o.Text().Segments()}, nil
		}
		return &wireOperation{Type: opDelete, Position: o.Position, Count: o.Length()}, nil
	case *Split:
		first, err := encodeOperation(o.First)
		if err != nil {
			return nil, err
		}
		second, err := encodeOperation(o.Second)
		if err != nil {
			return nil, err
		}
		return &wireOperation{Type: opSplit, First: first, Second: second}, nil
	}
	return nil, fmt.Errorf("infinote: cannot encode operation %T", op)
}

func decodeOperation(w *wireOperation) (Operation, error) {
	switch w.Type {
	case opNoOp:
		return NewNoOp(), nil
	case opInsert:
		return NewInsert(w.Position, NewBuffer(w.Text...)), nil
	case opDelete:
		if w.Text != nil {
			return NewDelete(w.Position, NewBuffer(w.Text...)), nil
		}
		return NewDeleteCount(w.Position, w.Count), nil
	case opSplit:
		if w.First == nil || w.Second == nil {
			return nil, fmt.Errorf("infinote: split operation missing a component")
		}
		first, err := decodeOperation(w.First)
		if err != nil {
			return nil, err
		}
		second, err := decodeOperation(w.Second)
		if err != nil {
			return nil, err
		}
		return NewSplit(first, second), nil
	}
	return nil, fmt.Errorf("infinote: unknown operation type %q", w.Type)
}

// EncodeBuffer renders a buffer as its wire segment list.
func EncodeBuffer(b *Buffer) ([]byte, error) {
	return json.Marshal(b.Segments())
}

// DecodeBuffer parses a buffer from its wire segment list.
func DecodeBuffer(data []byte) (*Buffer, error) {
	var segments []Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, fmt.Errorf("infinote: decode buffer: %w", err)
	}
	return NewBuffer(segments...), nil
}
