package infinote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTransform(t *testing.T, op, other, cid Operation) Operation {
	t.Helper()
	out, err := op.Transform(other, cid)
	require.NoError(t, err)
	return out
}

func applyTo(t *testing.T, op Operation, segments ...Segment) *Buffer {
	t.Helper()
	buf := NewBuffer(segments...)
	require.NoError(t, op.Apply(buf))
	return buf
}

func TestNoOp(t *testing.T) {
	op := NewNoOp()
	buf := NewBuffer(Segment{1, "abc"})
	require.NoError(t, op.Apply(buf))
	assert.Equal(t, "abc", buf.String())

	mirrored, err := op.Mirror()
	require.NoError(t, err)
	assert.IsType(t, &NoOp{}, mirrored)
	assert.Equal(t, 0, op.Length())
	assert.False(t, op.RequiresCID())
}

func TestInsertApply(t *testing.T) {
	op := NewInsert(2, NewBuffer(Segment{2, "XY"}))
	buf := applyTo(t, op, Segment{1, "abcd"})
	assert.Equal(t, []Segment{{1, "ab"}, {2, "XY"}, {1, "cd"}}, buf.Segments())
	assert.Equal(t, 2, op.Length())
}

func TestInsertMirrorInversion(t *testing.T) {
	op := NewInsert(1, NewBuffer(Segment{2, "XY"}))
	buf := applyTo(t, op, Segment{1, "abc"})

	mirrored, err := op.Mirror()
	require.NoError(t, err)
	require.NoError(t, mirrored.Apply(buf))
	assert.Equal(t, []Segment{{1, "abc"}}, buf.Segments())
}

func TestInsertCID(t *testing.T) {
	a := NewInsert(1, NewBuffer(Segment{1, "A"}))
	b := NewInsert(3, NewBuffer(Segment{2, "B"}))
	c := NewInsert(1, NewBuffer(Segment{3, "C"}))

	// The later-positioned insert is the one to be shifted.
	assert.Equal(t, Operation(b), a.CID(b))
	assert.Equal(t, Operation(b), b.CID(a))
	assert.Nil(t, a.CID(c), "equal positions cannot be decided positionally")
}

func TestInsertTransformInsert(t *testing.T) {
	text := func(s string) *Buffer { return NewBuffer(Segment{1, s}) }

	left := NewInsert(1, text("X"))
	right := NewInsert(4, text("YY"))

	got := mustTransform(t, left, right, nil).(*Insert)
	assert.Equal(t, 1, got.Position)

	got = mustTransform(t, right, left, nil).(*Insert)
	assert.Equal(t, 5, got.Position)

	// Equal positions resolve through the cid: the designated operation
	// shifts, the other keeps its place.
	a := NewInsert(2, text("A"))
	b := NewInsert(2, text("B"))
	got = mustTransform(t, a, b, a).(*Insert)
	assert.Equal(t, 3, got.Position)
	got = mustTransform(t, a, b, b).(*Insert)
	assert.Equal(t, 2, got.Position)

	_, err := a.Transform(b, nil)
	assert.Error(t, err, "equal positions without a cid are a protocol error")
}

func TestInsertTransformDelete(t *testing.T) {
	text := func(s string) *Buffer { return NewBuffer(Segment{1, s}) }
	del := NewDelete(2, NewBuffer(Segment{1, "cde"}))

	// Entirely after the deleted range: shift left.
	got := mustTransform(t, NewInsert(5, text("X")), del, nil).(*Insert)
	assert.Equal(t, 2, got.Position)

	// Entirely before: unchanged.
	got = mustTransform(t, NewInsert(1, text("X")), del, nil).(*Insert)
	assert.Equal(t, 1, got.Position)

	// Inside the deleted range: collapse to the deletion start.
	got = mustTransform(t, NewInsert(4, text("X")), del, nil).(*Insert)
	assert.Equal(t, 2, got.Position)
}

func TestDeleteApplyAndLength(t *testing.T) {
	rev := NewDelete(1, NewBuffer(Segment{1, "bc"}))
	assert.True(t, rev.Reversible())
	assert.Equal(t, 2, rev.Length())
	buf := applyTo(t, rev, Segment{1, "abcd"})
	assert.Equal(t, "ad", buf.String())

	count := NewDeleteCount(1, 2)
	assert.False(t, count.Reversible())
	assert.Equal(t, 2, count.Length())
	buf = applyTo(t, count, Segment{1, "abcd"})
	assert.Equal(t, "ad", buf.String())
}

func TestDeleteMirror(t *testing.T) {
	rev := NewDelete(1, NewBuffer(Segment{2, "bc"}))
	buf := applyTo(t, rev, Segment{1, "a"}, Segment{2, "bc"}, Segment{1, "d"})
	assert.Equal(t, "ad", buf.String())

	mirrored, err := rev.Mirror()
	require.NoError(t, err)
	require.NoError(t, mirrored.Apply(buf))
	assert.Equal(t, []Segment{{1, "a"}, {2, "bc"}, {1, "d"}}, buf.Segments())

	_, err = NewDeleteCount(0, 3).Mirror()
	assert.ErrorIs(t, err, ErrMirrorUndefined)
}

func TestDeleteTransformInsertSplitsAroundIt(t *testing.T) {
	del := NewDelete(1, NewBuffer(Segment{1, "bcde"}))
	ins := NewInsert(3, NewBuffer(Segment{2, "X"}))

	got := mustTransform(t, del, ins, nil)
	split, ok := got.(*Split)
	require.True(t, ok)

	first := split.First.(*Delete)
	second := split.Second.(*Delete)
	assert.Equal(t, 1, first.Position)
	assert.Equal(t, "bc", first.Text().String())
	assert.Equal(t, 4, second.Position)
	assert.Equal(t, "de", second.Text().String())

	// Applying the split to the post-insert buffer keeps the insert.
	buf := NewBuffer(Segment{1, "abcXdef"})
	require.NoError(t, split.Apply(buf))
	assert.Equal(t, "aXf", buf.String())
}

func TestDeleteTransformInsertOutside(t *testing.T) {
	del := NewDelete(2, NewBuffer(Segment{1, "cd"}))

	got := mustTransform(t, del, NewInsert(4, NewBuffer(Segment{2, "X"})), nil).(*Delete)
	assert.Equal(t, 2, got.Position, "insert at range end leaves the delete alone")

	got = mustTransform(t, del, NewInsert(0, NewBuffer(Segment{2, "XX"})), nil).(*Delete)
	assert.Equal(t, 4, got.Position, "insert before shifts the delete right")
}

func TestDeleteTransformDelete(t *testing.T) {
	// All cases transform X against a reversible Y, as produced by the log.
	buf := func(s string) *Buffer { return NewBuffer(Segment{1, s}) }

	t.Run("entirely left", func(t *testing.T) {
		x := NewDelete(0, buf("ab"))
		y := NewDelete(4, buf("ef"))
		got := mustTransform(t, x, y, nil).(*Delete)
		assert.Equal(t, 0, got.Position)
		assert.Equal(t, "ab", got.Text().String())
	})

	t.Run("entirely right", func(t *testing.T) {
		x := NewDelete(4, buf("ef"))
		y := NewDelete(0, buf("ab"))
		got := mustTransform(t, x, y, nil).(*Delete)
		assert.Equal(t, 2, got.Position)
	})

	t.Run("covered by other", func(t *testing.T) {
		x := NewDelete(2, buf("cd"))
		y := NewDelete(0, buf("abcdef"))
		got := mustTransform(t, x, y, nil).(*Delete)
		assert.Equal(t, 0, got.Position)
		assert.Equal(t, 0, got.Length(), "everything was already removed")
		assert.True(t, got.Reversible())

		// The overlap is preserved in the recon.
		restored := NewBuffer()
		require.NoError(t, got.Recon.Restore(restored))
		assert.Equal(t, "cd", restored.String())
	})

	t.Run("left part clipped", func(t *testing.T) {
		x := NewDelete(2, buf("cdef"))
		y := NewDelete(0, buf("abcd"))
		got := mustTransform(t, x, y, nil).(*Delete)
		assert.Equal(t, 0, got.Position)
		assert.Equal(t, "ef", got.Text().String())

		restored := got.Text().Copy()
		require.NoError(t, got.Recon.Restore(restored))
		assert.Equal(t, "cdef", restored.String(), "recon restores the clipped text")
	})

	t.Run("right part clipped", func(t *testing.T) {
		x := NewDelete(0, buf("abcd"))
		y := NewDelete(2, buf("cdef"))
		got := mustTransform(t, x, y, nil).(*Delete)
		assert.Equal(t, 0, got.Position)
		assert.Equal(t, "ab", got.Text().String())

		restored := got.Text().Copy()
		require.NoError(t, got.Recon.Restore(restored))
		assert.Equal(t, "abcd", restored.String())
	})

	t.Run("other strictly inside", func(t *testing.T) {
		x := NewDelete(0, buf("abcdef"))
		y := NewDelete(2, buf("cd"))
		got := mustTransform(t, x, y, nil).(*Delete)
		assert.Equal(t, 0, got.Position)
		assert.Equal(t, "abef", got.Text().String())

		restored := got.Text().Copy()
		require.NoError(t, got.Recon.Restore(restored))
		assert.Equal(t, "abcdef", restored.String())
	})
}

func TestDeleteSplitAt(t *testing.T) {
	del := NewDelete(3, NewBuffer(Segment{1, "defg"}))
	split := del.SplitAt(2)

	first := split.First.(*Delete)
	second := split.Second.(*Delete)
	assert.Equal(t, 3, first.Position)
	assert.Equal(t, "de", first.Text().String())
	assert.Equal(t, 5, second.Position)
	assert.Equal(t, "fg", second.Text().String())
}

func TestDeleteSplitAtPartitionsRecon(t *testing.T) {
	del := NewDeleteCount(0, 4)
	del.Recon = del.Recon.
		Update(1, NewBuffer(Segment{1, "a"})).
		Update(3, NewBuffer(Segment{1, "b"}))

	split := del.SplitAt(2)
	first := split.First.(*Delete)
	second := split.Second.(*Delete)

	assert.Equal(t, 2, first.Length())
	assert.Equal(t, 2, second.Length())
	require.Len(t, first.Recon.segments, 1)
	require.Len(t, second.Recon.segments, 1)
	assert.Equal(t, 1, first.Recon.segments[0].Offset)
	assert.Equal(t, 1, second.Recon.segments[0].Offset, "offset shifted by the split point")
}

func TestDeleteMerge(t *testing.T) {
	a := NewDelete(1, NewBuffer(Segment{1, "bc"}))
	b := NewDelete(3, NewBuffer(Segment{2, "de"}))
	merged, err := a.Merge(b)
	require.NoError(t, err)
	assert.Equal(t, 1, merged.Position)
	assert.Equal(t, []Segment{{1, "bc"}, {2, "de"}}, merged.Text().Segments())

	c := NewDeleteCount(1, 2)
	d := NewDeleteCount(3, 4)
	merged, err = c.Merge(d)
	require.NoError(t, err)
	assert.Equal(t, 6, merged.Length())

	_, err = a.Merge(c)
	assert.ErrorIs(t, err, ErrMergeMismatch)
}

func TestSplitApplySemantics(t *testing.T) {
	// Split(a, b) applied to S equals applying a, then b transformed
	// against a.
	a := NewDelete(1, NewBuffer(Segment{1, "b"}))
	b := NewDelete(3, NewBuffer(Segment{1, "d"}))
	split := NewSplit(a, b)

	buf := NewBuffer(Segment{1, "abcde"})
	require.NoError(t, split.Apply(buf))
	assert.Equal(t, "ace", buf.String())

	manual := NewBuffer(Segment{1, "abcde"})
	require.NoError(t, a.Apply(manual))
	bt := mustTransform(t, b, a, nil)
	require.NoError(t, bt.Apply(manual))
	assert.Equal(t, manual.String(), buf.String())
}

func TestSplitMirrorInversion(t *testing.T) {
	// A split produced by transforming a delete around an insert mirrors
	// back into the deleted text.
	del := NewDelete(1, NewBuffer(Segment{1, "bcde"}))
	ins := NewInsert(3, NewBuffer(Segment{2, "X"}))
	split := mustTransform(t, del, ins, nil).(*Split)

	buf := NewBuffer(Segment{1, "abc"}, Segment{2, "X"}, Segment{1, "def"})
	require.NoError(t, split.Apply(buf))
	assert.Equal(t, "aXf", buf.String())

	mirrored, err := split.Mirror()
	require.NoError(t, err)
	require.NoError(t, mirrored.Apply(buf))
	assert.Equal(t, "abcXdef", buf.String())
}

func TestTransformProperty(t *testing.T) {
	// TP1: A'(B(S)) == B'(A(S)) for concurrent operations on the same
	// state.
	t.Run("insert vs delete", func(t *testing.T) {
		a := NewInsert(2, NewBuffer(Segment{2, "XY"}))
		b := NewDelete(1, NewBuffer(Segment{1, "bcd"}))

		s1 := NewBuffer(Segment{1, "abcdef"})
		require.NoError(t, b.Apply(s1))
		require.NoError(t, mustTransform(t, a, b, nil).Apply(s1))

		s2 := NewBuffer(Segment{1, "abcdef"})
		require.NoError(t, a.Apply(s2))
		require.NoError(t, mustTransform(t, b, a, nil).Apply(s2))

		assert.Equal(t, s1.String(), s2.String())
		assert.Equal(t, "aXYef", s1.String())
	})

	t.Run("insert vs insert with cid", func(t *testing.T) {
		a := NewInsert(1, NewBuffer(Segment{1, "X"}))
		b := NewInsert(1, NewBuffer(Segment{2, "Y"}))

		// a is designated to shift on both sides.
		s1 := NewBuffer(Segment{1, "ab"})
		require.NoError(t, b.Apply(s1))
		require.NoError(t, mustTransform(t, a, b, a).Apply(s1))

		s2 := NewBuffer(Segment{1, "ab"})
		require.NoError(t, a.Apply(s2))
		require.NoError(t, mustTransform(t, b, a, a).Apply(s2))

		assert.Equal(t, s1.String(), s2.String())
		assert.Equal(t, "aYXb", s1.String())
	})

	t.Run("delete vs delete overlapping", func(t *testing.T) {
		a := NewDelete(1, NewBuffer(Segment{1, "bcd"}))
		b := NewDelete(2, NewBuffer(Segment{1, "cde"}))

		s1 := NewBuffer(Segment{1, "abcdef"})
		require.NoError(t, b.Apply(s1))
		require.NoError(t, mustTransform(t, a, b, nil).Apply(s1))

		s2 := NewBuffer(Segment{1, "abcdef"})
		require.NoError(t, a.Apply(s2))
		require.NoError(t, mustTransform(t, b, a, nil).Apply(s2))

		assert.Equal(t, s1.String(), s2.String())
		assert.Equal(t, "af", s1.String())
	})
}

func TestMakeReversibleDelete(t *testing.T) {
	state := NewState(NewBuffer(Segment{1, "abcdef"}), NewVector())
	del := NewDeleteCount(2, 3)

	reversible, err := del.MakeReversible(del, state)
	require.NoError(t, err)
	assert.True(t, reversible.Reversible())
	assert.Equal(t, "cde", reversible.Text().String())

	// Already-reversible deletes come back as plain copies.
	rev := NewDelete(1, NewBuffer(Segment{1, "bc"}))
	again, err := rev.MakeReversible(rev, state)
	require.NoError(t, err)
	assert.Equal(t, "bc", again.Text().String())
}
