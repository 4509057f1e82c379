package hunk

// Side identifies which of a hunk's two ranges a [Subtraction] is
// expressed against.
type Side int

const (
	// OldSide subtracts against a hunk's old-range.
	OldSide Side = iota
	// NewSide subtracts against a hunk's new-range.
	NewSide
)

// Subtraction is one carve-out to remove from a hunk, expressed as a
// range on one side of it.
type Subtraction struct {
	Side  Side
	Range Range
}

// SubtractHunks computes the boolean difference of h and subtractions:
// zero or more sub-ranges are carved out of h's range on the given
// side, and the corresponding proportional range on the opposite side
// is carved out along with it. A subtraction touching one of h's
// boundaries trims that boundary in place; a subtraction strictly
// inside h splits it into a hunk before and a hunk after the carved-out
// range. Subtractions are applied independently against the original h
// (they must not overlap each other).
func SubtractHunks(h Header, subtractions []Subtraction) []Header {
	hunks := []Header{h}
	for _, sub := range subtractions {
		var next []Header
		for _, candidate := range hunks {
			next = append(next, subtractOne(candidate, sub)...)
		}
		hunks = next
	}
	return hunks
}

func subtractOne(h Header, sub Subtraction) []Header {
	var base, other Range
	if sub.Side == OldSide {
		base, other = h.OldRange(), h.NewRange()
	} else {
		base, other = h.NewRange(), h.OldRange()
	}

	cut := sub.Range
	if !base.Intersects(cut) && !(cut.Lines == 0 && base.Contains(cut)) {
		return []Header{h} // subtraction doesn't touch this hunk at all
	}

	// Clamp the cut to the hunk's own range.
	start := max(cut.Start, base.Start)
	end := min(cut.End(), base.End())
	if start >= end && cut.Lines != 0 {
		return []Header{h}
	}

	proportional := func(x int) int {
		if base.Lines == 0 {
			return other.Start
		}
		offset := (x - base.Start) * other.Lines
		// Round toward the nearer boundary rather than always flooring,
		// so a cut at base's midpoint lands close to other's midpoint.
		return other.Start + (offset+base.Lines/2)/base.Lines
	}

	leftBase := Range{Start: base.Start, Lines: start - base.Start}
	rightBase := Range{Start: end, Lines: base.End() - end}
	leftOther := Range{Start: other.Start, Lines: proportional(start) - other.Start}
	rightOther := Range{Start: proportional(end), Lines: other.End() - proportional(end)}

	var out []Header
	if leftBase.Lines > 0 || leftOther.Lines > 0 {
		out = append(out, fromSides(sub.Side, leftBase, leftOther))
	}
	if rightBase.Lines > 0 || rightOther.Lines > 0 {
		out = append(out, fromSides(sub.Side, rightBase, rightOther))
	}
	return out
}

func fromSides(cutSide Side, base, other Range) Header {
	if cutSide == OldSide {
		return Header{OldStart: base.Start, OldLines: base.Lines, NewStart: other.Start, NewLines: other.Lines}
	}
	return Header{OldStart: other.Start, OldLines: other.Lines, NewStart: base.Start, NewLines: base.Lines}
}
