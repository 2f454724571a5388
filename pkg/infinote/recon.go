package infinote

import "fmt"

// ReconSegment stores a range of text combined with the offset at which it
// is to be re-inserted upon restoration. Offsets are relative to the owning
// delete's start position at the state where the segment was recorded.
type ReconSegment struct {
	Offset int
	Text   *Buffer
}

// NewReconSegment creates a segment holding a deep copy of the given buffer.
func NewReconSegment(offset int, text *Buffer) ReconSegment {
	return ReconSegment{Offset: offset, Text: text.Copy()}
}

func (rs ReconSegment) String() string {
	return fmt.Sprintf("(%d,%s)", rs.Offset, rs.Text)
}

// Recon collects the parts of a delete operation that are lost during
// transformation against other concurrent deletes. It is used to
// reconstruct the text of a remote delete that was issued in a previous
// state, and thus to make such a delete reversible.
//
// Recon values are never mutated; Update returns a new Recon.
type Recon struct {
	segments []ReconSegment
}

// NewRecon creates an empty recon.
func NewRecon() Recon {
	return Recon{}
}

// Update returns a new recon with an additional piece of text to be
// restored later. A nil buffer leaves the recon unchanged.
func (r Recon) Update(offset int, text *Buffer) Recon {
	out := Recon{segments: make([]ReconSegment, len(r.segments), len(r.segments)+1)}
	copy(out.segments, r.segments)
	if text != nil {
		out.segments = append(out.segments, NewReconSegment(offset, text))
	}
	return out
}

// Restore splices the recorded segments back into the given buffer, in
// insertion order.
func (r Recon) Restore(buf *Buffer) error {
	for _, seg := range r.segments {
		if err := buf.Splice(seg.Offset, 0, seg.Text); err != nil {
			return err
		}
	}
	return nil
}

func (r Recon) String() string {
	return fmt.Sprintf("Recon(%v)", r.segments)
}
