// Package viewport implements windowed rendering over a large ordered list.
//
// Row heights start as a uniform estimate and are refined by measurements
// reported after a row has actually been rendered. Refinement is monotonic:
// a measured height can be corrected by a newer measurement but never falls
// back to the estimate, so the total height converges instead of
// oscillating.
package viewport

import "sync"

// Item is one renderable row of a window.
type Item struct {
	Index  int     `json:"index"`
	Offset float64 `json:"offset"`
	Size   float64 `json:"size"`
}

// Window is the renderable slice of the list: the items intersecting the
// visible region plus overscan, and the padding that reserves space for
// everything outside it.
type Window struct {
	Items     []Item  `json:"items"`
	Start     int     `json:"start"`
	End       int     `json:"end"`
	TopPad    float64 `json:"top_pad"`
	BottomPad float64 `json:"bottom_pad"`
	Total     float64 `json:"total"`
}

// SizeTable tracks per-row heights with monotonic estimate→measured
// refinement.
type SizeTable struct {
	estimate float64
	sizes    []float64
	measured []bool
}

// NewSizeTable creates a table with the given per-row estimate.
func NewSizeTable(estimate float64) *SizeTable {
	if estimate <= 0 {
		estimate = 1
	}
	return &SizeTable{estimate: estimate}
}

// Len returns the number of rows.
func (t *SizeTable) Len() int {
	return len(t.sizes)
}

// Resize adjusts the table to n rows. Existing measurements survive; new
// rows start at the estimate.
func (t *SizeTable) Resize(n int) {
	if n < 0 {
		n = 0
	}
	if n <= len(t.sizes) {
		t.sizes = t.sizes[:n]
		t.measured = t.measured[:n]
		return
	}
	for len(t.sizes) < n {
		t.sizes = append(t.sizes, t.estimate)
		t.measured = append(t.measured, false)
	}
}

// Measure replaces the row's size with a measured value and reports the
// size delta. Non-positive sizes and out-of-range indexes are ignored.
func (t *SizeTable) Measure(index int, size float64) (delta float64, changed bool) {
	if index < 0 || index >= len(t.sizes) || size <= 0 {
		return 0, false
	}
	delta = size - t.sizes[index]
	if delta == 0 && t.measured[index] {
		return 0, false
	}
	t.sizes[index] = size
	t.measured[index] = true
	return delta, delta != 0
}

// SizeOf returns the current size of a row.
func (t *SizeTable) SizeOf(index int) float64 {
	if index < 0 || index >= len(t.sizes) {
		return 0
	}
	return t.sizes[index]
}

// Measured reports whether the row's size comes from a measurement.
func (t *SizeTable) Measured(index int) bool {
	return index >= 0 && index < len(t.measured) && t.measured[index]
}

// OffsetOf returns the top position of a row.
func (t *SizeTable) OffsetOf(index int) float64 {
	if index > len(t.sizes) {
		index = len(t.sizes)
	}
	var offset float64
	for i := 0; i < index; i++ {
		offset += t.sizes[i]
	}
	return offset
}

// TotalHeight is the reserved scroll height for all rows.
func (t *SizeTable) TotalHeight() float64 {
	return t.OffsetOf(len(t.sizes))
}

// indexAt returns the row covering the given position, or Len() if the
// position lies past the end.
func (t *SizeTable) indexAt(pos float64) int {
	if pos <= 0 {
		return 0
	}
	var offset float64
	for i, size := range t.sizes {
		if pos < offset+size {
			return i
		}
		offset += size
	}
	return len(t.sizes)
}

// Window computes the renderable slice for a scroll offset and viewport
// height, with overscan extra rows on both sides.
func (t *SizeTable) Window(offset, height float64, overscan int) Window {
	n := len(t.sizes)
	total := t.TotalHeight()
	if n == 0 || height <= 0 {
		return Window{Total: total, BottomPad: total}
	}
	if offset < 0 {
		offset = 0
	}
	if max := total - height; offset > max && max > 0 {
		offset = max
	}
	if overscan < 0 {
		overscan = 0
	}

	start := t.indexAt(offset)
	end := t.indexAt(offset + height)
	if end < n {
		end++
	}
	start -= overscan
	if start < 0 {
		start = 0
	}
	end += overscan
	if end > n {
		end = n
	}

	items := make([]Item, 0, end-start)
	pos := t.OffsetOf(start)
	topPad := pos
	for i := start; i < end; i++ {
		items = append(items, Item{Index: i, Offset: pos, Size: t.sizes[i]})
		pos += t.sizes[i]
	}

	return Window{
		Items:     items,
		Start:     start,
		End:       end,
		TopPad:    topPad,
		BottomPad: total - pos,
		Total:     total,
	}
}

// Viewport couples a size table with a scroll position and compensates the
// offset when rows above the visible region are remeasured, keeping the
// content currently on screen anchored in place.
type Viewport struct {
	mu       sync.Mutex
	sizes    *SizeTable
	offset   float64
	height   float64
	overscan int
}

// New creates a viewport with the given row height estimate, viewport
// height and overscan row count.
func New(estimate, height float64, overscan int) *Viewport {
	return &Viewport{
		sizes:    NewSizeTable(estimate),
		height:   height,
		overscan: overscan,
	}
}

// SetCount resizes the underlying table to n rows.
func (v *Viewport) SetCount(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sizes.Resize(n)
	v.clampOffsetLocked()
}

// Reset discards every measurement and starts over with n rows at the
// estimate. Use it when the rows change identity rather than count: a
// height measured for one row must not apply to whatever occupies its
// index afterwards.
func (v *Viewport) Reset(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sizes = NewSizeTable(v.sizes.estimate)
	v.sizes.Resize(n)
	v.clampOffsetLocked()
}

// Count returns the number of rows.
func (v *Viewport) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sizes.Len()
}

// SetOffset moves the scroll position.
func (v *Viewport) SetOffset(offset float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.offset = offset
	v.clampOffsetLocked()
}

// Offset returns the current scroll position.
func (v *Viewport) Offset() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.offset
}

// SetHeight updates the visible height.
func (v *Viewport) SetHeight(height float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if height > 0 {
		v.height = height
	}
	v.clampOffsetLocked()
}

// Measure feeds back the true rendered height of a row. When the row lies
// entirely above the first visible row, the scroll offset shifts by the
// size delta so the visible content does not jump.
func (v *Viewport) Measure(index int, size float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	first := v.sizes.indexAt(v.offset)
	delta, changed := v.sizes.Measure(index, size)
	if changed && index < first {
		v.offset += delta
	}
	v.clampOffsetLocked()
}

// Window returns the current renderable slice.
func (v *Viewport) Window() Window {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sizes.Window(v.offset, v.height, v.overscan)
}

func (v *Viewport) clampOffsetLocked() {
	if v.offset < 0 {
		v.offset = 0
	}
	if max := v.sizes.TotalHeight() - v.height; max > 0 && v.offset > max {
		v.offset = max
	} else if max <= 0 {
		v.offset = 0
	}
}
