package transport

import (
	"golang.org/x/exp/slices"
)

type byteRange struct {
	start, end int64
}

// Reassembly tracks the contiguous prefix of a byte stream whose pieces may
// arrive out of order or more than once.
type Reassembly struct {
	next    int64
	pending []byteRange
}

// Next returns the first byte offset not yet received in order
func (r *Reassembly) Next() int64 { return r.next }

// Add records [offset, offset+size) and returns how far Next advanced
func (r *Reassembly) Add(offset int64, size int) int64 {
	end := offset + int64(size)
	if size <= 0 || end <= r.next {
		return 0
	}
	if offset < r.next {
		offset = r.next
	}

	before := r.next
	if offset == r.next {
		r.next = end
	} else {
		r.pending = append(r.pending, byteRange{offset, end})
		slices.SortFunc(r.pending, func(a, b byteRange) int {
			switch {
			case a.start < b.start:
				return -1
			case a.start > b.start:
				return 1
			}
			return 0
		})
		return 0
	}

	// absorb buffered ranges that now touch the prefix
	kept := r.pending[:0]
	for _, p := range r.pending {
		switch {
		case p.end <= r.next:
		case p.start <= r.next:
			r.next = p.end
		default:
			kept = append(kept, p)
		}
	}
	r.pending = kept
	return r.next - before
}
