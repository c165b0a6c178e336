// Package selection tracks which sample of the stream is on screen.
//
// The cursor is synchronous and purely local. It knows the stream only by
// its length, so back/forward navigation never carries fetch errors.
package selection

import (
	"errors"

	"github.com/JackEngelmann/nlpanno/internal/sample"
)

var (
	// ErrEmpty is returned by Current when the stream has no samples yet.
	ErrEmpty = errors.New("selection: stream is empty")
	// ErrAtStart is returned by Previous at index 0.
	ErrAtStart = errors.New("selection: already at first sample")
	// ErrAtEnd is returned by Next at the last fetched index.
	ErrAtEnd = errors.New("selection: already at last fetched sample")
	// ErrOutOfRange is returned by Current when the cursor is past the given stream.
	ErrOutOfRange = errors.New("selection: cursor past end of stream")
)

// Cursor is an index into the sample stream, kept within [0, n-1].
//
// Advancing past the tail is only possible together with a fetch that
// extends the stream: ArmAdvance records the intent and Settle applies it
// once the stream has grown. The zero value points at index 0.
type Cursor struct {
	index int
	armed bool
}

// Index returns the current offset.
func (c Cursor) Index() int {
	return c.index
}

// Armed reports whether an advance is waiting for the stream to grow.
func (c Cursor) Armed() bool {
	return c.armed
}

// IsFirst reports whether the cursor is at index 0.
func (c Cursor) IsFirst() bool {
	return c.index == 0
}

// IsLast reports whether the cursor is at the last fetched index of a
// stream of length n. An empty stream counts as last.
func (c Cursor) IsLast(n int) bool {
	return c.index >= n-1
}

// Current returns the sample under the cursor.
func (c Cursor) Current(samples []sample.Sample) (sample.Sample, error) {
	if len(samples) == 0 {
		return sample.Sample{}, ErrEmpty
	}
	if c.index >= len(samples) {
		// The stream never shrinks, so this only happens when a caller
		// passes a different stream than the one the cursor walked.
		return sample.Sample{}, ErrOutOfRange
	}
	return samples[c.index], nil
}

// Next moves one sample forward within a stream of length n.
func (c *Cursor) Next(n int) error {
	if c.IsLast(n) {
		return ErrAtEnd
	}
	c.index++
	c.armed = false
	return nil
}

// Previous moves one sample back. A pending advance is dropped since the
// user has navigated away from the tail.
func (c *Cursor) Previous() error {
	if c.index == 0 {
		return ErrAtStart
	}
	c.index--
	c.armed = false
	return nil
}

// ArmAdvance records that the cursor should step forward as soon as the
// stream grows beyond its current length n. When the cursor is not at the
// tail it simply advances and reports true.
func (c *Cursor) ArmAdvance(n int) (advanced bool) {
	if !c.IsLast(n) {
		c.index++
		c.armed = false
		return true
	}
	c.armed = true
	return false
}

// Settle applies an armed advance if the stream (now of length n) has
// grown past the cursor. It reports whether the cursor moved.
func (c *Cursor) Settle(n int) bool {
	if !c.armed || c.index+1 >= n {
		return false
	}
	c.index++
	c.armed = false
	return true
}

// Disarm drops a pending advance, e.g. when the tail fetch failed or the
// stream is exhausted.
func (c *Cursor) Disarm() {
	c.armed = false
}
