package main

import "math"

// RenderFrame tells the presentation layer how to draw one frame: stack
// CopyCount copies of the script (each followed by the loop gap) and shift the
// stack by StackOffset.
//
// VisibleCopies limits drawing to the first n copies of the stack when the
// scroll stops at the end; zero draws every copy.
type RenderFrame struct {
	CopyCount     int     `json:"copy_count"`
	StackOffset   float64 `json:"stack_offset"`
	VisibleCopies int     `json:"visible_copies,omitempty"`
}

// MapToRender derives the frame layout from the scroll phase. It has no state.
func MapToRender(phase, contentHeight, loopGap, viewportHeight float64) RenderFrame {
	cycle := effectiveContentHeight(contentHeight) + math.Max(0, loopGap)

	offset := -math.Mod(phase, cycle)
	if offset == 0 {
		// Normalize -0 so frames compare and serialize cleanly.
		offset = 0
	}

	copies := 3
	if viewportHeight > 0 {
		if n := int(math.Ceil(viewportHeight/cycle)) + 2; n > copies {
			copies = n
		}
	}

	return RenderFrame{CopyCount: copies, StackOffset: offset}
}
