package documents

import "github.com/meridian-erp/meridian-erp/internal/shared"

// ProductQty is one product's aggregated quantity across a document's lines.
type ProductQty struct {
	Ref shared.ProductRef
	Qty float64
}

// LineDiff is the symmetric difference between two line snapshots, keyed by
// product reference. Service lines (no product) are ignored.
type LineDiff struct {
	Added   []ProductQty
	Removed []ProductQty
	Changed []ProductQty
}

// DiffLines compares a before and after line snapshot. Quantities are
// aggregated per product, since the stock ledger keeps one movement per
// (document, product) pair. Changed entries carry the new quantity;
// Removed entries carry the old one. The diff is derived from the two
// snapshots alone, never from movement history.
func DiffLines(before, after []Line) LineDiff {
	prev := aggregateByProduct(before)
	next := aggregateByProduct(after)

	var diff LineDiff
	for key, p := range next {
		old, existed := prev[key]
		switch {
		case !existed:
			diff.Added = append(diff.Added, p)
		case old.Qty != p.Qty:
			diff.Changed = append(diff.Changed, p)
		}
	}
	for key, p := range prev {
		if _, still := next[key]; !still {
			diff.Removed = append(diff.Removed, p)
		}
	}
	return diff
}

func aggregateByProduct(lines []Line) map[string]ProductQty {
	agg := make(map[string]ProductQty, len(lines))
	for _, line := range lines {
		if line.ProductRef.IsZero() {
			continue
		}
		key := line.ProductRef.Key()
		entry := agg[key]
		entry.Ref = line.ProductRef
		entry.Qty += line.Quantity
		agg[key] = entry
	}
	return agg
}
