package documents

import "math"

// ComputeTotals derives the monetary totals of a document from its lines and
// discount/levy configuration. The cascade order is fixed: line discounts,
// then the global discount, then the levy on the discounted base, then VAT
// per line, then stamp duty. Re-running on unchanged input reproduces
// identical output.
func ComputeTotals(doc *Document) {
	if doc == nil {
		return
	}
	if len(doc.Lines) == 0 {
		doc.Totals = Totals{StampDuty: 0}
		return
	}

	globalFactor := 1 - doc.GlobalDiscountPct/100

	var sumLineBase float64
	for _, line := range doc.Lines {
		sumLineBase += lineBase(line)
	}
	baseHT := round2(sumLineBase * globalFactor)

	var levyAmount float64
	if doc.LevyEnabled {
		levyAmount = round2(baseHT * doc.LevyRatePct / 100)
	}

	// VAT is computed per line to support mixed rates. Each line's tax base
	// is its globally-discounted amount plus its proportional levy share.
	var totalTax float64
	for _, line := range doc.Lines {
		base := lineBase(line) * globalFactor
		if doc.LevyEnabled {
			rate := doc.LevyRatePct
			if line.LevyPct != nil {
				rate = *line.LevyPct
			}
			base += base * rate / 100
		}
		totalTax += base * line.TaxPct / 100
	}
	totalTax = round2(totalTax)

	doc.Totals = Totals{
		BaseHT:     baseHT,
		TaxAmount:  totalTax,
		LevyAmount: levyAmount,
		StampDuty:  round2(doc.StampDuty),
		GrandTotal: round2(baseHT + levyAmount + totalTax + doc.StampDuty),
	}
}

func lineBase(line Line) float64 {
	return line.UnitPriceHT * (1 - line.DiscountPct/100) * line.Quantity
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
