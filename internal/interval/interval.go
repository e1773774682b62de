// Package interval implements half-open time intervals and the set algebra
// (merge, subtract, intersect) that availability is computed with.
//
// Every operation validates its input: an interval whose start is not
// strictly before its end is rejected with ErrInvalid instead of being
// silently dropped.
package interval

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrInvalid is returned for intervals where start >= end.
	ErrInvalid = errors.New("interval: start must be before end")

	// ErrNotDisjoint is returned by Intersect when an input set overlaps itself.
	ErrNotDisjoint = errors.New("interval: set is not disjoint")
)

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New builds a validated interval.
func New(start, end time.Time) (Interval, error) {
	iv := Interval{Start: start, End: end}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// Validate reports ErrInvalid when the interval is empty or inverted.
func (iv Interval) Validate() error {
	if !iv.Start.Before(iv.End) {
		return fmt.Errorf("%w: [%s, %s)", ErrInvalid,
			iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
	}
	return nil
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether the two intervals share at least one instant.
// Touching intervals do not overlap.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && o.Start.Before(iv.End)
}

// Contains reports whether t lies in [Start, End).
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Clip returns the part of iv inside bounds. ok is false when nothing remains.
func (iv Interval) Clip(bounds Interval) (Interval, bool) {
	start := iv.Start
	if bounds.Start.After(start) {
		start = bounds.Start
	}
	end := iv.End
	if bounds.End.Before(end) {
		end = bounds.End
	}
	if !start.Before(end) {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// Equal compares instants, ignoring location.
func (iv Interval) Equal(o Interval) bool {
	return iv.Start.Equal(o.Start) && iv.End.Equal(o.End)
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
}

func validateAll(set []Interval) error {
	for _, iv := range set {
		if err := iv.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func sortByStart(set []Interval) []Interval {
	out := slices.Clone(set)
	slices.SortFunc(out, func(a, b Interval) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})
	return out
}

// Merge returns the minimal disjoint set covering the input, sorted by start.
// Intervals coalesce when b.Start <= a.End, so touching endpoints merge.
func Merge(set []Interval) ([]Interval, error) {
	if err := validateAll(set); err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, nil
	}

	sorted := sortByStart(set)
	out := make([]Interval, 0, len(sorted))
	cur := sorted[0]
	for _, iv := range sorted[1:] {
		if !iv.Start.After(cur.End) {
			if iv.End.After(cur.End) {
				cur.End = iv.End
			}
			continue
		}
		out = append(out, cur)
		cur = iv
	}
	return append(out, cur), nil
}

// Subtract removes every busy interval from every universe interval,
// splitting universe intervals where busy time falls inside them. Universe
// intervals are processed in input order and never merged with each other,
// so two touching universe windows stay two windows.
func Subtract(universe, busy []Interval) ([]Interval, error) {
	if err := validateAll(universe); err != nil {
		return nil, err
	}
	blocks, err := Merge(busy)
	if err != nil {
		return nil, err
	}

	var out []Interval
	for _, u := range universe {
		cursor := u.Start
		for _, b := range blocks {
			if !b.End.After(cursor) {
				continue
			}
			if !b.Start.Before(u.End) {
				break
			}
			if b.Start.After(cursor) {
				out = append(out, Interval{Start: cursor, End: b.Start})
			}
			cursor = b.End
			if !cursor.Before(u.End) {
				break
			}
		}
		if cursor.Before(u.End) {
			out = append(out, Interval{Start: cursor, End: u.End})
		}
	}
	return out, nil
}

func checkDisjoint(sorted []Interval) error {
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start.Before(sorted[i-1].End) {
			return fmt.Errorf("%w: %s overlaps %s", ErrNotDisjoint, sorted[i-1], sorted[i])
		}
	}
	return nil
}

// Intersect returns the instants present in both sets. Each input must be
// internally disjoint (touching is allowed); the sweep is O(|a|+|b|).
func Intersect(a, b []Interval) ([]Interval, error) {
	if err := validateAll(a); err != nil {
		return nil, err
	}
	if err := validateAll(b); err != nil {
		return nil, err
	}
	as, bs := sortByStart(a), sortByStart(b)
	if err := checkDisjoint(as); err != nil {
		return nil, err
	}
	if err := checkDisjoint(bs); err != nil {
		return nil, err
	}

	var out []Interval
	i, j := 0, 0
	for i < len(as) && j < len(bs) {
		lo := as[i].Start
		if bs[j].Start.After(lo) {
			lo = bs[j].Start
		}
		hi := as[i].End
		if bs[j].End.Before(hi) {
			hi = bs[j].End
		}
		if lo.Before(hi) {
			out = append(out, Interval{Start: lo, End: hi})
		}

		switch as[i].End.Compare(bs[j].End) {
		case -1:
			i++
		case 1:
			j++
		default:
			i++
			j++
		}
	}
	return out, nil
}

// FilterMinDuration keeps intervals at least minLen long. A non-positive minLen
// keeps everything.
func FilterMinDuration(set []Interval, minLen time.Duration) []Interval {
	if minLen <= 0 {
		return set
	}
	out := make([]Interval, 0, len(set))
	for _, iv := range set {
		if iv.Duration() >= minLen {
			out = append(out, iv)
		}
	}
	return out
}

// TotalDuration sums the durations of the set. Overlaps are counted twice;
// merge first when that matters.
func TotalDuration(set []Interval) time.Duration {
	var total time.Duration
	for _, iv := range set {
		total += iv.Duration()
	}
	return total
}
