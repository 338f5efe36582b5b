// Package page implements the fixed-capacity tuple buffer passed by
// reference between operators. A Page is owned by exactly one operator
// instance on exactly one worker; it remains valid until the next call from
// the consuming parent to the same operator on the same worker.
package page

import (
	"github.com/sblanas/pythia-sub001/engine/schema"
	"github.com/sblanas/pythia-sub001/internal/engineerr"
)

// Page is a contiguous tuple buffer bound to one schema.
type Page struct {
	buf        []byte
	schema     *schema.Schema
	tupleWidth int
	used       int // bytes currently occupied, always a multiple of tupleWidth
}

// New allocates a page with room for at least capacityTuples tuples under
// the given schema.
func New(s *schema.Schema, capacityTuples int) *Page {
	width := s.TupleSize()
	return &Page{
		buf:        make([]byte, width*capacityTuples),
		schema:     s,
		tupleWidth: width,
	}
}

// Allocate reserves room for one additional tuple and returns its byte
// offset within the page, for the caller to fill in. Returns a
// *engineerr.PageFullError if the page has no remaining capacity.
func (p *Page) Allocate() (int, error) {
	if p.used+p.tupleWidth > len(p.buf) {
		return 0, &engineerr.PageFullError{Requested: p.tupleWidth}
	}
	off := p.used
	p.used += p.tupleWidth
	return off, nil
}

// GetTupleOffset returns the byte offset of the i-th tuple, or -1 if i is out
// of range for the page's current contents (the original's NULL-pointer
// sentinel, translated to an in-range check since Go slices carry no natural
// NULL).
func (p *Page) GetTupleOffset(i int) int {
	off := i * p.tupleWidth
	if off < 0 || off >= p.used {
		return -1
	}
	return off
}

// Bytes returns the backing buffer, for readers that need direct access to a
// tuple's bytes at a given offset (e.g. the comparator and hash packages).
func (p *Page) Bytes() []byte { return p.buf }

// GetNumTuples returns the number of fully-written tuples currently held.
func (p *Page) GetNumTuples() int {
	if p.tupleWidth == 0 {
		return 0
	}
	return p.used / p.tupleWidth
}

// GetUsedSpace returns the number of bytes currently occupied.
func (p *Page) GetUsedSpace() int { return p.used }

// Capacity returns the maximum number of tuples the page can hold.
func (p *Page) Capacity() int {
	if p.tupleWidth == 0 {
		return 0
	}
	return len(p.buf) / p.tupleWidth
}

// Clear resets the page to empty without releasing its backing buffer.
func (p *Page) Clear() { p.used = 0 }

// Schema returns the schema this page's tuples are laid out under.
func (p *Page) Schema() *schema.Schema { return p.schema }
