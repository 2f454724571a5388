package infinote

import "fmt"

// Operation is an edit that can be applied to a buffer, transformed against
// a concurrent operation and (when reversible) mirrored into its inverse.
//
// The variants are mutually recursive: a Split wraps two arbitrary
// operations and transforms of Splits recurse into their components. The
// cid ("concurrency id") argument of Transform names the operation that is
// to be shifted when two operations conflict; it is compared by pointer
// identity, so callers must pass one of the two operations taking part in
// the transform, or nil when no conflict resolution is needed.
type Operation interface {
	// Apply performs the operation on the given buffer.
	Apply(buf *Buffer) error

	// Transform adjusts this operation so that its effect on the state
	// produced by `other` matches its original intent.
	Transform(other Operation, cid Operation) (Operation, error)

	// Mirror returns the inversion of this operation.
	Mirror() (Operation, error)

	// Length returns the number of characters this operation produces or
	// consumes.
	Length() int

	// RequiresCID reports whether transforming this operation can conflict
	// and therefore needs a concurrency id.
	RequiresCID() bool

	// CID computes the concurrency id against another operation: the one of
	// the two that is to be shifted, or nil when the conflict cannot be
	// decided positionally.
	CID(other Operation) Operation

	String() string
}

// NoOp is an operation that does nothing.
type NoOp struct{}

// NewNoOp creates a new no-op operation.
func NewNoOp() *NoOp { return &NoOp{} }

func (op *NoOp) Apply(*Buffer) error { return nil }

func (op *NoOp) Transform(Operation, Operation) (Operation, error) { return NewNoOp(), nil }

func (op *NoOp) Mirror() (Operation, error) { return NewNoOp(), nil }

func (op *NoOp) Length() int { return 0 }

func (op *NoOp) RequiresCID() bool { return false }

func (op *NoOp) CID(Operation) Operation { return nil }

func (op *NoOp) String() string { return "NoOp()" }

// Insert is an operation that inserts a buffer at a certain offset.
type Insert struct {
	Position int
	Text     *Buffer
}

// NewInsert creates an insert of a deep copy of `text` at `position`.
func NewInsert(position int, text *Buffer) *Insert {
	return &Insert{Position: position, Text: text.Copy()}
}

func (op *Insert) Apply(buf *Buffer) error {
	return buf.Splice(op.Position, 0, op.Text)
}

func (op *Insert) Length() int { return op.Text.Length() }

func (op *Insert) RequiresCID() bool { return true }

// CID returns the operation that is to be shifted: the later-positioned of
// the two. Equal positions cannot be decided positionally and yield nil.
func (op *Insert) CID(other Operation) Operation {
	pos, ok := operationPosition(other)
	if !ok {
		return nil
	}
	switch {
	case op.Position < pos:
		return other
	case op.Position > pos:
		return op
	}
	return nil
}

func (op *Insert) Transform(other Operation, cid Operation) (Operation, error) {
	switch o := other.(type) {
	case *NoOp:
		return NewInsert(op.Position, op.Text), nil
	case *Split:
		return transformAgainstSplit(op, o, cid)
	case *Insert:
		p1, p2 := op.Position, o.Position
		switch {
		case p1 < p2 || (p1 == p2 && cid == other):
			return NewInsert(p1, op.Text), nil
		case p1 > p2 || (p1 == p2 && cid == Operation(op)):
			return NewInsert(p1+o.Length(), op.Text), nil
		}
		return nil, fmt.Errorf("infinote: concurrent inserts at position %d without a cid", p1)
	case *Delete:
		p1, p2, l2 := op.Position, o.Position, o.Length()
		switch {
		case p1 >= p2+l2:
			return NewInsert(p1-l2, op.Text), nil
		case p1 < p2:
			return NewInsert(p1, op.Text), nil
		}
		// The insert falls inside the deleted range and collapses to the
		// deletion start.
		return NewInsert(p2, op.Text), nil
	}
	return nil, fmt.Errorf("infinote: cannot transform insert against %T", other)
}

// Mirror returns a reversible delete of the inserted text.
func (op *Insert) Mirror() (Operation, error) {
	return NewDelete(op.Position, op.Text), nil
}

func (op *Insert) String() string {
	return fmt.Sprintf("Insert(%d, %s)", op.Position, op.Text)
}

// Delete is an operation that removes a range of characters from the target
// buffer. Deletes constructed from a buffer know which text they remove and
// are reversible; deletes constructed from a character count are not.
type Delete struct {
	Position int
	Recon    Recon

	// text holds the removed data for reversible deletes; count is used
	// when text is nil.
	text  *Buffer
	count int
}

// NewDelete creates a reversible delete of a deep copy of `what` at
// `position`.
func NewDelete(position int, what *Buffer) *Delete {
	return &Delete{Position: position, text: what.Copy()}
}

// NewDeleteCount creates a non-reversible delete of `count` characters at
// `position`.
func NewDeleteCount(position, count int) *Delete {
	return &Delete{Position: position, count: count}
}

// Reversible reports whether this delete knows the text it removes.
func (op *Delete) Reversible() bool { return op.text != nil }

// Text returns the removed text of a reversible delete, or nil.
func (op *Delete) Text() *Buffer { return op.text }

func (op *Delete) Apply(buf *Buffer) error {
	return buf.Splice(op.Position, op.Length(), nil)
}

func (op *Delete) Length() int {
	if op.Reversible() {
		return op.text.Length()
	}
	return op.count
}

func (op *Delete) RequiresCID() bool { return false }

func (op *Delete) CID(Operation) Operation { return nil }

// cloneAt copies this delete, optionally moving it to a new position.
func (op *Delete) cloneAt(position int) *Delete {
	out := &Delete{Position: position, count: op.count, Recon: op.Recon}
	if op.text != nil {
		out.text = op.text.Copy()
	}
	return out
}

// sliceText returns the given range of the removed text, or nil for a
// non-reversible delete.
func (op *Delete) sliceText(begin, end int) *Buffer {
	if !op.Reversible() {
		return nil
	}
	return op.text.Slice(begin, end)
}

// sliceTextFrom returns the removed text from `begin` to its end, or nil
// for a non-reversible delete.
func (op *Delete) sliceTextFrom(begin int) *Buffer {
	if !op.Reversible() {
		return nil
	}
	return op.text.SliceFrom(begin)
}

// splitParts partitions this delete at character offset `at`, distributing
// the recon segments between the two halves.
func (op *Delete) splitParts(at int) (*Delete, *Delete) {
	var recon1, recon2 Recon
	for _, seg := range op.Recon.segments {
		if seg.Offset < at {
			recon1.segments = append(recon1.segments, seg)
		} else {
			recon2.segments = append(recon2.segments, ReconSegment{Offset: seg.Offset - at, Text: seg.Text})
		}
	}
	first := &Delete{Position: op.Position, Recon: recon1}
	second := &Delete{Position: op.Position + at, Recon: recon2}
	if op.Reversible() {
		first.text = op.text.Slice(0, at)
		second.text = op.text.SliceFrom(at)
	} else {
		first.count = at
		second.count = op.count - at
	}
	return first, second
}

// SplitAt splits this delete into two deletes at the given offset. The
// resulting split affects the same range of text as the original delete.
func (op *Delete) SplitAt(at int) *Split {
	first, second := op.splitParts(at)
	return NewSplit(first, second)
}

// Merge concatenates two deletes into one removing the same range of text
// as the two would when executed sequentially. Both must be of the same
// flavor (reversible or not).
func (op *Delete) Merge(other *Delete) (*Delete, error) {
	if op.Reversible() != other.Reversible() {
		return nil, ErrMergeMismatch
	}
	if op.Reversible() {
		merged := op.text.Copy()
		if err := merged.Splice(merged.Length(), 0, other.text); err != nil {
			return nil, err
		}
		return &Delete{Position: op.Position, text: merged}, nil
	}
	return &Delete{Position: op.Position, count: op.count + other.count}, nil
}

func (op *Delete) Transform(other Operation, cid Operation) (Operation, error) {
	switch o := other.(type) {
	case *NoOp:
		return op.cloneAt(op.Position), nil
	case *Split:
		return transformAgainstSplit(op, o, cid)
	case *Insert:
		p1, l1 := op.Position, op.Length()
		p2, l2 := o.Position, o.Length()
		switch {
		case p2 >= p1+l1:
			return op.cloneAt(p1), nil
		case p2 <= p1:
			return op.cloneAt(p1 + l2), nil
		}
		// The insert falls inside the deleted range: split around it.
		first, second := op.splitParts(p2 - p1)
		second.Position += l2
		return NewSplit(first, second), nil
	case *Delete:
		return op.transformDelete(o)
	}
	return nil, fmt.Errorf("infinote: cannot transform delete against %T", other)
}

// transformDelete resolves the six geometric arrangements of two deletes.
// The removed range of the result is the set difference of the two ranges;
// overlap text is recorded in the recon so the delete can later be made
// reversible.
func (op *Delete) transformDelete(o *Delete) (Operation, error) {
	p1, l1 := op.Position, op.Length()
	p2, l2 := o.Position, o.Length()

	switch {
	case p1+l1 <= p2:
		// Entirely left of the other delete.
		return op.cloneAt(p1), nil

	case p1 >= p2+l2:
		// Entirely right of the other delete.
		return op.cloneAt(p1 - l2), nil

	case p2 <= p1 && p2+l2 >= p1+l1:
		// This delete falls completely within the range of the other: all
		// data has already been removed and the result removes nothing.
		out := &Delete{Position: p2, Recon: op.Recon.Update(0, o.sliceText(p1-p2, p1-p2+l1))}
		if op.Reversible() {
			out.text = NewBuffer()
		}
		return out, nil

	case p2 <= p1:
		// The first part of this delete falls within the range of the
		// other; keep the right part.
		_, second := op.splitParts(p2 + l2 - p1)
		second.Position = p2
		second.Recon = op.Recon.Update(0, o.sliceTextFrom(p1-p2))
		return second, nil

	case p2+l2 >= p1+l1:
		// The second part of this delete falls within the range of the
		// other; keep the left part.
		first, _ := op.splitParts(p2 - p1)
		first.Recon = op.Recon.Update(first.Length(), o.sliceText(0, p1+l1-p2))
		return first, nil
	}

	// The other delete falls completely within this delete's range: remove
	// that part by splitting twice and merging the outer pieces.
	first, rest := op.splitParts(p2 - p1)
	_, tail := rest.splitParts(l2)
	merged, err := first.Merge(tail)
	if err != nil {
		return nil, err
	}
	merged.Recon = op.Recon.Update(p2-p1, o.sliceTextFrom(0))
	return merged, nil
}

// Mirror returns an insert of the text this delete removes. Non-reversible
// deletes cannot be mirrored.
func (op *Delete) Mirror() (Operation, error) {
	if !op.Reversible() {
		return nil, ErrMirrorUndefined
	}
	return NewInsert(op.Position, op.text), nil
}

// MakeReversible converts this delete into its reversible form, given a
// version of it transformed to a state and the state itself. The affected
// text is read from the state's buffer and completed from the transformed
// operation's recon data.
func (op *Delete) MakeReversible(transformed Operation, state *State) (*Delete, error) {
	if op.Reversible() {
		return NewDelete(op.Position, op.text), nil
	}
	affected, err := affectedText(transformed, state.Buffer)
	if err != nil {
		return nil, err
	}
	return NewDelete(op.Position, affected), nil
}

// affectedText returns the range of text in the buffer that a delete or
// split-delete removes, with recon data restored into it.
func affectedText(op Operation, buf *Buffer) (*Buffer, error) {
	switch o := op.(type) {
	case *Split:
		part1, err := affectedText(o.First, buf)
		if err != nil {
			return nil, err
		}
		part2, err := affectedText(o.Second, buf)
		if err != nil {
			return nil, err
		}
		if err := part2.Splice(0, 0, part1); err != nil {
			return nil, err
		}
		return part2, nil
	case *Delete:
		affected := buf.Slice(o.Position, o.Position+o.Length())
		if err := o.Recon.Restore(affected); err != nil {
			return nil, err
		}
		return affected, nil
	}
	return nil, fmt.Errorf("infinote: %T does not remove text", op)
}

func (op *Delete) String() string {
	if op.Reversible() {
		return fmt.Sprintf("Delete(%d, %s)", op.Position, op.text)
	}
	return fmt.Sprintf("Delete(%d, %d)", op.Position, op.count)
}

// Split wraps two operations into a single atomic one. This is necessary,
// for example, to transform a delete against an insert falling into the
// range that is to be deleted. The second component is understood in the
// state before the first one applies.
type Split struct {
	First  Operation
	Second Operation
}

// NewSplit creates a new split operation from its two components.
func NewSplit(first, second Operation) *Split {
	return &Split{First: first, Second: second}
}

// Apply applies both components sequentially; the second is transformed
// against the first since it was defined relative to the pre-first state.
func (op *Split) Apply(buf *Buffer) error {
	work := buf.Copy()
	if err := op.First.Apply(work); err != nil {
		return err
	}
	second, err := op.Second.Transform(op.First, nil)
	if err != nil {
		return err
	}
	if err := second.Apply(work); err != nil {
		return err
	}
	buf.segments = work.segments
	return nil
}

func (op *Split) Length() int {
	return op.First.Length() + op.Second.Length()
}

func (op *Split) RequiresCID() bool { return true }

func (op *Split) CID(Operation) Operation { return nil }

// Transform transforms both components individually. When the caller's cid
// designates this split or the other operation, each recursive call
// receives the cid token for the corresponding side.
func (op *Split) Transform(other Operation, cid Operation) (Operation, error) {
	var cidFirst, cidSecond Operation
	switch cid {
	case Operation(op):
		cidFirst, cidSecond = op.First, op.Second
	case other:
		cidFirst, cidSecond = other, other
	}
	first, err := op.First.Transform(other, cidFirst)
	if err != nil {
		return nil, err
	}
	second, err := op.Second.Transform(other, cidSecond)
	if err != nil {
		return nil, err
	}
	return NewSplit(first, second), nil
}

// Mirror transforms the second component against the first, then mirrors
// both components individually.
func (op *Split) Mirror() (Operation, error) {
	second, err := op.Second.Transform(op.First, nil)
	if err != nil {
		return nil, err
	}
	first, err := op.First.Mirror()
	if err != nil {
		return nil, err
	}
	second, err = second.Mirror()
	if err != nil {
		return nil, err
	}
	return NewSplit(first, second), nil
}

func (op *Split) String() string {
	return fmt.Sprintf("Split(%s, %s)", op.First, op.Second)
}

// transformAgainstSplit transforms `self` against a split: first against
// the split's first component, then against its second component brought
// forward past the first, propagating the cid choice through both steps.
func transformAgainstSplit(self Operation, split *Split, cid Operation) (Operation, error) {
	cidFirst := Operation(split.First)
	if cid == self {
		cidFirst = self
	}
	transformed, err := self.Transform(split.First, cidFirst)
	if err != nil {
		return nil, err
	}
	newSecond, err := split.Second.Transform(split.First, nil)
	if err != nil {
		return nil, err
	}
	cidSecond := newSecond
	if cid == self {
		cidSecond = transformed
	}
	return transformed.Transform(newSecond, cidSecond)
}

// operationPosition extracts the buffer position of positional operations.
func operationPosition(op Operation) (int, bool) {
	switch o := op.(type) {
	case *Insert:
		return o.Position, true
	case *Delete:
		return o.Position, true
	}
	return 0, false
}
