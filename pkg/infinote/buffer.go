// Package infinote implements the core of the Infinote operational
// transformation protocol for real-time collaborative editing: an
// author-attributed text buffer, state vectors, the insert/delete/split
// operation algebra with transformation and mirroring, and a state machine
// that queues, translates and executes do/undo/redo requests against a
// shared log.
package infinote

// UserID identifies a participant in a collaborative session.
type UserID int

// Segment stores a chunk of text together with the user it was written by.
type Segment struct {
	User UserID `json:"user"`
	Text string `json:"text"`
}

// Copy returns a copy of this segment.
func (s Segment) Copy() Segment {
	return Segment{User: s.User, Text: s.Text}
}

// Buffer holds an ordered sequence of segments and provides methods for
// modifying them at character level. Positions are byte offsets into the
// concatenation of all segment texts.
type Buffer struct {
	segments []Segment
}

// NewBuffer creates a buffer pre-filled with copies of the given segments.
func NewBuffer(segments ...Segment) *Buffer {
	b := &Buffer{segments: make([]Segment, 0, len(segments))}
	for _, s := range segments {
		b.segments = append(b.segments, s.Copy())
	}
	b.Compact()
	return b
}

// Segments returns a copy of the buffer's segment list.
func (b *Buffer) Segments() []Segment {
	out := make([]Segment, len(b.segments))
	copy(out, b.segments)
	return out
}

// Length returns the total number of characters contained in this buffer.
func (b *Buffer) Length() int {
	length := 0
	for _, s := range b.segments {
		length += len(s.Text)
	}
	return length
}

// String returns the concatenated text of all segments.
func (b *Buffer) String() string {
	out := ""
	for _, s := range b.segments {
		out += s.Text
	}
	return out
}

// Copy creates a deep copy of this buffer.
func (b *Buffer) Copy() *Buffer {
	return b.Slice(0, b.Length())
}

// Compact cleans up the buffer by removing empty segments and merging
// adjacent segments written by the same user.
func (b *Buffer) Compact() {
	i := 0
	for i < len(b.segments) {
		if len(b.segments[i].Text) == 0 {
			b.segments = append(b.segments[:i], b.segments[i+1:]...)
			continue
		}
		if i < len(b.segments)-1 && b.segments[i].User == b.segments[i+1].User {
			b.segments[i].Text += b.segments[i+1].Text
			b.segments = append(b.segments[:i+1], b.segments[i+2:]...)
			continue
		}
		i++
	}
}

// Slice extracts a deep copy of the character range [begin, end) as a new
// buffer, preserving per-character author attribution. end is clamped to
// [begin, Length()].
func (b *Buffer) Slice(begin, end int) *Buffer {
	length := b.Length()
	if begin < 0 {
		begin = 0
	}
	if end > length {
		end = length
	}
	if end < begin {
		end = begin
	}

	result := &Buffer{}
	offset := 0
	for _, seg := range b.segments {
		if offset >= end {
			break
		}
		lo := begin - offset
		hi := end - offset
		if lo < 0 {
			lo = 0
		}
		if hi > len(seg.Text) {
			hi = len(seg.Text)
		}
		if lo < len(seg.Text) && hi > lo {
			result.segments = append(result.segments, Segment{User: seg.User, Text: seg.Text[lo:hi]})
		}
		offset += len(seg.Text)
	}
	result.Compact()
	return result
}

// SliceFrom extracts a deep copy of everything from begin to the end of the
// buffer.
func (b *Buffer) SliceFrom(begin int) *Buffer {
	return b.Slice(begin, b.Length())
}

// Splice removes `remove` characters at `index` and then inserts a copy of
// `insert` (which may be nil) at the same position. Inserted segments retain
// their authors; the buffer is compacted afterwards. Splicing past the end
// of the buffer fails with ErrSpliceOutOfBounds.
func (b *Buffer) Splice(index, remove int, insert *Buffer) error {
	if index < 0 || index > b.Length() {
		return ErrSpliceOutOfBounds
	}

	segmentIndex := 0
	spliceIndex := index
	spliceCount := remove
	insertOffset := -1

	for segmentIndex < len(b.segments) {
		seg := &b.segments[segmentIndex]
		removed := 0
		removedWhole := false

		if spliceIndex >= 0 && spliceIndex < len(seg.Text) {
			// This segment is part of the region to splice.
			removeEnd := spliceIndex + spliceCount
			if removeEnd > len(seg.Text) {
				removeEnd = len(seg.Text)
			}
			removed = removeEnd - spliceIndex

			if spliceIndex == 0 {
				if spliceCount < len(seg.Text) {
					// Remove a part at the beginning.
					if insertOffset == -1 {
						insertOffset = segmentIndex
					}
					seg.Text = seg.Text[removeEnd:]
				} else {
					// Remove the entire segment.
					if insertOffset == -1 {
						insertOffset = segmentIndex
					}
					seg.Text = ""
					removedWhole = true
					b.segments = append(b.segments[:segmentIndex], b.segments[segmentIndex+1:]...)
					segmentIndex--
				}
			} else {
				if insertOffset == -1 {
					insertOffset = segmentIndex + 1
				}
				if spliceIndex+spliceCount < len(seg.Text) {
					// Remove a part in between. When spliceCount == 0 this
					// only splits the segment in two, so that segments
					// inserted below keep their own authorship.
					post := Segment{User: seg.User, Text: seg.Text[removeEnd:]}
					seg.Text = seg.Text[:spliceIndex]
					rest := make([]Segment, 0, len(b.segments)+1)
					rest = append(rest, b.segments[:segmentIndex+1]...)
					rest = append(rest, post)
					rest = append(rest, b.segments[segmentIndex+1:]...)
					b.segments = rest
				} else {
					// Remove a part at the end.
					seg.Text = seg.Text[:spliceIndex]
				}
			}
			spliceCount -= removed
		}

		segText := ""
		if !removedWhole && segmentIndex >= 0 && segmentIndex < len(b.segments) {
			segText = b.segments[segmentIndex].Text
		}
		if spliceIndex < len(segText) && spliceCount == 0 {
			// The requested range has been removed; nothing remains to do.
			break
		}
		spliceIndex -= len(segText)
		segmentIndex++
	}

	if insert != nil {
		if insertOffset == -1 {
			insertOffset = len(b.segments)
		}
		out := make([]Segment, 0, len(b.segments)+len(insert.segments))
		out = append(out, b.segments[:insertOffset]...)
		for _, s := range insert.segments {
			out = append(out, s.Copy())
		}
		out = append(out, b.segments[insertOffset:]...)
		b.segments = out
	}

	// The splice may have fragmented some segments.
	b.Compact()
	return nil
}
