// Package view implements IndexView: an ordered, duplicate-free set of
// episode ids over one backend.
//
// A View is immutable. Filter and Extend return new views, so views shared
// between dataset handles never observe each other's changes.
package view

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/episodb/episode"
)

var (
	// ErrNotAscending is returned by Extend when new ids are not strictly
	// greater than every current member.
	ErrNotAscending = errors.New("ids not ascending")
	// ErrOutOfRange is returned for positions outside [0, Len()).
	ErrOutOfRange = errors.New("position out of range")
	// ErrSampleSize is returned by Sample when k is negative or exceeds Len().
	ErrSampleSize = errors.New("invalid sample size")
)

// View is a strictly increasing sequence of episode ids.
type View struct {
	rb *roaring64.Bitmap
}

// Empty returns a view with no members.
func Empty() *View {
	return &View{rb: roaring64.New()}
}

// Full returns the view [0, n).
func Full(n uint64) *View {
	rb := roaring64.New()
	if n > 0 {
		rb.AddRange(0, n)
	}
	return &View{rb: rb}
}

// FromIDs builds a view from ids, which must be strictly increasing.
func FromIDs(ids []uint64) (*View, error) {
	return Empty().Extend(ids)
}

// Len returns the number of members.
func (v *View) Len() int {
	return int(v.rb.GetCardinality())
}

// At returns the member at position i.
func (v *View) At(i int) (uint64, error) {
	if i < 0 || i >= v.Len() {
		return 0, fmt.Errorf("%w: %d (len %d)", ErrOutOfRange, i, v.Len())
	}
	return v.rb.Select(uint64(i))
}

// Contains reports whether id is a member.
func (v *View) Contains(id uint64) bool {
	return v.rb.Contains(id)
}

// Max returns the largest member. ok is false for an empty view.
func (v *View) Max() (id uint64, ok bool) {
	if v.rb.IsEmpty() {
		return 0, false
	}
	return v.rb.Maximum(), true
}

// IDs returns the members in ascending order.
func (v *View) IDs() []uint64 {
	return v.rb.ToArray()
}

// All iterates the members in ascending order.
func (v *View) All() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		it := v.rb.Iterator()
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}

// Extend returns a new view with ids appended. ids must be strictly
// increasing and greater than the current maximum.
func (v *View) Extend(ids []uint64) (*View, error) {
	last, ok := v.Max()
	for _, id := range ids {
		if ok && id <= last {
			return nil, fmt.Errorf("%w: %d after %d", ErrNotAscending, id, last)
		}
		last, ok = id, true
	}
	rb := v.rb.Clone()
	rb.AddMany(ids)
	return &View{rb: rb}, nil
}

// FetchFunc loads the episode with the given id.
type FetchFunc func(ctx context.Context, id uint64) (*episode.Episode, error)

// Filter evaluates pred on every member in ascending order and returns the
// view of members for which it held, together with their step sum.
func Filter(ctx context.Context, v *View, fetch FetchFunc, pred func(*episode.Episode) bool) (*View, uint64, error) {
	kept := roaring64.New()
	var steps uint64
	for id := range v.All() {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		ep, err := fetch(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		if pred(ep) {
			kept.Add(id)
			steps += uint64(ep.TotalSteps)
		}
	}
	return &View{rb: kept}, steps, nil
}

// Sample draws k distinct members uniformly without replacement and returns
// them in the order drawn.
func (v *View) Sample(r *rand.Rand, k int) ([]uint64, error) {
	n := v.Len()
	if k < 0 || k > n {
		return nil, fmt.Errorf("%w: %d of %d", ErrSampleSize, k, n)
	}

	// Partial Fisher-Yates over positions; swapped tracks displaced slots.
	swapped := make(map[int]int, k)
	out := make([]uint64, k)
	for i := range k {
		j := i + r.IntN(n-i)
		pj, ok := swapped[j]
		if !ok {
			pj = j
		}
		pi, ok := swapped[i]
		if !ok {
			pi = i
		}
		swapped[j] = pi

		id, err := v.rb.Select(uint64(pj))
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

// String returns a compact description.
func (v *View) String() string {
	if v.rb.IsEmpty() {
		return "View[]"
	}
	return fmt.Sprintf("View[%d ids, %d..%d]", v.Len(), v.rb.Minimum(), v.rb.Maximum())
}
