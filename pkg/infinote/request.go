package infinote

import (
	"fmt"
	"sync/atomic"
)

// requestIDs hands out process-unique ids used as translation cache keys.
var requestIDs atomic.Uint64

func nextRequestID() uint64 {
	return requestIDs.Add(1)
}

// Request is an edit request made by a user at a certain time. The vector
// names the state against which the request was issued.
type Request interface {
	RequestUser() UserID
	RequestVector() Vector

	// Copy returns a shallow copy of the request with a fresh identity.
	Copy() Request

	String() string

	requestID() uint64
}

// DoRequest wraps an operation with the user that issued it and the state
// vector it was issued against.
type DoRequest struct {
	User      UserID
	Vector    Vector
	Operation Operation

	id uint64
}

// NewDoRequest creates a new do request.
func NewDoRequest(user UserID, vector Vector, operation Operation) *DoRequest {
	return &DoRequest{User: user, Vector: vector, Operation: operation, id: nextRequestID()}
}

func (r *DoRequest) RequestUser() UserID { return r.User }
func (r *DoRequest) RequestVector() Vector { return r.Vector }
func (r *DoRequest) requestID() uint64 { return r.id }

func (r *DoRequest) Copy() Request {
	return NewDoRequest(r.User, r.Vector, r.Operation)
}

// Execute applies the request to a state: the operation is applied to the
// state's buffer and the issuing user's clock advances by one.
func (r *DoRequest) Execute(state *State) error {
	if err := r.Operation.Apply(state.Buffer); err != nil {
		return err
	}
	state.Vector = state.Vector.Incr(r.User, 1)
	return nil
}

// Transform transforms this request against another request issued at the
// same state. cid names the request whose operation is to be shifted in
// case of conflict.
func (r *DoRequest) Transform(other *DoRequest, cid *DoRequest) (*DoRequest, error) {
	var newOp Operation
	if _, isNoOp := r.Operation.(*NoOp); isNoOp {
		newOp = NewNoOp()
	} else {
		var opCID Operation
		switch cid {
		case r:
			opCID = r.Operation
		case other:
			opCID = other.Operation
		}
		var err error
		newOp, err = r.Operation.Transform(other.Operation, opCID)
		if err != nil {
			return nil, err
		}
	}
	return NewDoRequest(r.User, r.Vector.Incr(other.User, 1), newOp), nil
}

// Mirror inverts the operation and increases the issuer's component of the
// request time by the given amount.
func (r *DoRequest) Mirror(amount int) (*DoRequest, error) {
	mirrored, err := r.Operation.Mirror()
	if err != nil {
		return nil, err
	}
	return NewDoRequest(r.User, r.Vector.Incr(r.User, amount), mirrored), nil
}

// Fold folds the request along another user's axis, increasing that user's
// component by the given amount. Folding skips a do/undo or undo/redo pair,
// so the amount must be a multiple of 2.
func (r *DoRequest) Fold(user UserID, amount int) (*DoRequest, error) {
	if amount%2 != 0 {
		return nil, ErrFoldParity
	}
	return NewDoRequest(r.User, r.Vector.Incr(user, amount), r.Operation), nil
}

// MakeReversible replaces a delete operation with its reversible form,
// given this request translated to the given state. Requests carrying any
// other operation are returned as a plain copy.
func (r *DoRequest) MakeReversible(translated *DoRequest, state *State) (*DoRequest, error) {
	if del, ok := r.Operation.(*Delete); ok {
		reversible, err := del.MakeReversible(translated.Operation, state)
		if err != nil {
			return nil, err
		}
		return NewDoRequest(r.User, r.Vector, reversible), nil
	}
	return r.Copy().(*DoRequest), nil
}

func (r *DoRequest) String() string {
	return fmt.Sprintf("DoRequest(%d, %s, %s)", r.User, vectorString(r.Vector), r.Operation)
}

// UndoRequest asks to revert the issuing user's latest not-yet-undone
// request.
type UndoRequest struct {
	User   UserID
	Vector Vector

	id uint64
}

// NewUndoRequest creates a new undo request.
func NewUndoRequest(user UserID, vector Vector) *UndoRequest {
	return &UndoRequest{User: user, Vector: vector, id: nextRequestID()}
}

func (r *UndoRequest) RequestUser() UserID { return r.User }
func (r *UndoRequest) RequestVector() Vector { return r.Vector }
func (r *UndoRequest) requestID() uint64 { return r.id }

func (r *UndoRequest) Copy() Request {
	return NewUndoRequest(r.User, r.Vector)
}

// AssociatedRequest finds the request in the log that this undo reverts,
// or nil if there is none.
func (r *UndoRequest) AssociatedRequest(log []Request) Request {
	return walkAssociated(log, r, func(entry Request) bool {
		_, isUndo := entry.(*UndoRequest)
		return isUndo
	})
}

func (r *UndoRequest) String() string {
	return fmt.Sprintf("UndoRequest(%d, %s)", r.User, vectorString(r.Vector))
}

// RedoRequest asks to re-apply the issuing user's latest undo.
type RedoRequest struct {
	User   UserID
	Vector Vector

	id uint64
}

// NewRedoRequest creates a new redo request.
func NewRedoRequest(user UserID, vector Vector) *RedoRequest {
	return &RedoRequest{User: user, Vector: vector, id: nextRequestID()}
}

func (r *RedoRequest) RequestUser() UserID { return r.User }
func (r *RedoRequest) RequestVector() Vector { return r.Vector }
func (r *RedoRequest) requestID() uint64 { return r.id }

func (r *RedoRequest) Copy() Request {
	return NewRedoRequest(r.User, r.Vector)
}

// AssociatedRequest finds the request in the log that this redo re-applies
// (normally the user's latest unmatched undo), or nil if there is none. Do
// requests close a nesting level just as undos do, so the result can also be
// a do request.
func (r *RedoRequest) AssociatedRequest(log []Request) Request {
	return walkAssociated(log, r, func(entry Request) bool {
		_, isRedo := entry.(*RedoRequest)
		return isRedo
	})
}

func (r *RedoRequest) String() string {
	return fmt.Sprintf("RedoRequest(%d, %s)", r.User, vectorString(r.Vector))
}

// walkAssociated walks the log backwards from (but excluding) `self`,
// looking at requests by the same user whose own-user clock does not exceed
// self's. Requests of self's kind deepen the nesting, any other request
// closes one level; the entry closing the outermost level is the associated
// request. The index moves at every step.
func walkAssociated(log []Request, self Request, sameKind func(Request) bool) Request {
	user := self.RequestUser()
	own := self.RequestVector().Get(user)

	index := len(log) - 1
	for i, entry := range log {
		if entry == self {
			index = i
			break
		}
	}

	sequence := 1
	for ; index >= 0; index-- {
		entry := log[index]
		if entry == self || entry.RequestUser() != user {
			continue
		}
		if entry.RequestVector().Get(user) > own {
			continue
		}
		if sameKind(entry) {
			sequence++
		} else {
			sequence--
		}
		if sequence == 0 {
			return entry
		}
	}
	return nil
}

// vectorString renders a vector for request String methods, showing empty
// vectors explicitly.
func vectorString(v Vector) string {
	s := v.String()
	if s == "" {
		return "-"
	}
	return s
}
