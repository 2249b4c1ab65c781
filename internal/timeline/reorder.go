package timeline

import "github.com/montagehq/montage-engine/internal/manifest"

// DragReorder tracks an in-progress horizontal drag of a clip within one
// track. It is independent of any UI drag toolkit: the host wires pointer
// events to DragStart/DragOver/Drop.
//
// Dropping reorders display/selection order only; it never retimes clips.
// Callers that want sequential retiming run a ripple mutation afterwards.
type DragReorder struct {
	track  manifest.TrackKind
	from   int
	over   int
	active bool
}

// DragStart begins dragging the clip at index on the given track.
func (d *DragReorder) DragStart(track manifest.TrackKind, index int) {
	d.track = track
	d.from = index
	d.over = index
	d.active = true
}

// DragOver records the index the pointer currently hovers.
func (d *DragReorder) DragOver(index int) {
	if d.active {
		d.over = index
	}
}

// Cancel abandons the drag without reordering.
func (d *DragReorder) Cancel() {
	d.active = false
}

// Drop finishes the drag and reports the move. ok is false when no drag was
// active or the clip did not change position.
func (d *DragReorder) Drop() (track manifest.TrackKind, from, to int, ok bool) {
	if !d.active {
		return "", 0, 0, false
	}
	d.active = false
	if d.from == d.over {
		return "", 0, 0, false
	}
	return d.track, d.from, d.over, true
}

// Active reports whether a drag is in progress.
func (d *DragReorder) Active() bool {
	return d.active
}

// Reorder returns a new slice with the element at from moved to to.
// Out-of-range indexes are clamped rather than rejected; the input slice is
// left untouched.
func Reorder[T any](s []T, from, to int) []T {
	out := append([]T(nil), s...)
	if len(out) == 0 {
		return out
	}
	from = clampIndex(from, len(out))
	to = clampIndex(to, len(out))
	if from == to {
		return out
	}
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	rest := append([]T(nil), out[to:]...)
	out = append(append(out[:to], moved), rest...)
	return out
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}
