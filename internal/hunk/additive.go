package hunk

// ToAdditiveHunks folds selection hunks into the anchor structure of
// reference (a full old+new context diff), producing additive hunks
// whose old- and new-ranges are both populated and mutually consistent.
//
// Each selection's populated side is matched against the corresponding
// side of every reference hunk in order; the first reference hunk whose
// range contains the selection's range becomes its anchor, and the
// anchor itself (not just the selected sub-range) is emitted as the
// additive hunk, since only the anchor carries the unselected side's
// content. Selections that land inside no reference hunk are returned
// separately as rejected, unmodified.
func ToAdditiveHunks(selections, reference []Header) (additive, rejected []Header) {
	for _, sel := range selections {
		anchor, ok := findAnchor(sel, reference)
		if !ok {
			rejected = append(rejected, sel)
			continue
		}
		additive = append(additive, anchor)
	}
	return additive, rejected
}

func findAnchor(sel Header, reference []Header) (Header, bool) {
	selRange, onOldSide := selectionRange(sel)
	for _, ref := range reference {
		refRange := ref.NewRange()
		if onOldSide {
			refRange = ref.OldRange()
		}
		if refRange.Contains(selRange) {
			return ref, true
		}
	}
	return Header{}, false
}

// selectionRange returns the populated side of a selection hunk, and
// whether that side is the old side. A selection populated on neither
// side (a degenerate zero-length hunk on both sides) is treated as an
// old-side anchor at its old position, since both sides agree it's
// empty.
func selectionRange(sel Header) (r Range, onOldSide bool) {
	if sel.NewOnly() && !sel.OldOnly() {
		return sel.NewRange(), false
	}
	return sel.OldRange(), true
}
