package extractor

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"docscan/internal/domain"
	"docscan/internal/layout"
)

var ordinalRe = regexp.MustCompile(`^\d{1,3}\.?$`)

// tableRegion marks the line-item table: the header line, and the first line
// after the item rows. totals is set when that line is a totals row.
type tableRegion struct {
	header    int
	end       int
	hasTotals bool
	// numbersX is the left edge of the first numeric column; tokens left of
	// it belong to the description.
	numbersX float64
}

func (t tableRegion) found() bool { return t.header >= 0 }

func (t tableRegion) contains(line int) bool {
	return t.found() && line >= t.header && line < t.end
}

func lineKeys(l layout.Line) []string {
	keys := make([]string, len(l.Tokens))
	for i, t := range l.Tokens {
		keys[i] = labelKey(t.Text)
	}
	return keys
}

func containsAny(keys []string, cues []string) bool {
	for _, k := range keys {
		for _, c := range cues {
			if k == c {
				return true
			}
		}
	}
	return false
}

func isTotalsLine(l layout.Line) bool {
	keys := lineKeys(l)
	if len(keys) == 0 {
		return false
	}
	for _, c := range tableTotalsCues {
		if keys[0] == c {
			return true
		}
	}
	return strings.Contains(Fold(l.Text()), "do zaplaty")
}

func findTable(lines []layout.Line) tableRegion {
	t := tableRegion{header: -1}
	for i, l := range lines {
		keys := lineKeys(l)
		if !containsAny(keys, tableDescriptionCues) || !containsAny(keys, tableNumberCues) {
			continue
		}
		t.header = i
		t.numbersX = 2
		for k, key := range keys {
			for _, c := range tableNumberCues {
				if key == c && l.Tokens[k].Box.X < t.numbersX {
					t.numbersX = l.Tokens[k].Box.X
				}
			}
		}
		break
	}
	if !t.found() {
		return t
	}
	t.end = t.header + 1
	for i := t.header + 1; i < len(lines); i++ {
		if lines[i].Box.Page != lines[t.header].Box.Page {
			break
		}
		if isTotalsLine(lines[i]) {
			t.end, t.hasTotals = i, true
			return t
		}
		if len(rowCells(lines[i], i, t.numbersX)) > 0 {
			t.end = i + 1
		}
	}
	return t
}

// cell is one numeric or rate column value in a table row.
type cell struct {
	span
	rate bool
}

func amountMatch(s string) bool {
	_, ok := NormalizeAmount(s)
	return ok
}

func rateMatch(s string) bool {
	_, ok := NormalizeVATRate(s)
	return ok
}

// rowCells returns the numeric and rate cells of a line, left to right,
// considering only tokens at or right of minX.
func rowCells(l layout.Line, li int, minX float64) []cell {
	var toks []domain.Token
	for _, t := range l.Tokens {
		if t.Box.X >= minX-0.5*t.Box.H {
			toks = append(toks, t)
		}
	}
	if len(toks) == 0 {
		return nil
	}
	sub := []layout.Line{{Tokens: toks, Box: l.Box}}
	var cells []cell
	for _, s := range valueSpansN(sub, rateMatch, 2) {
		s.line = li
		cells = append(cells, cell{span: s, rate: true})
	}
	for _, s := range valueSpansN(sub, amountMatch, 4) {
		s.line = li
		overlap := false
		for _, c := range cells {
			if c.rate && c.box.IoU(s.box) > 0 {
				overlap = true
				break
			}
		}
		if !overlap {
			cells = append(cells, cell{span: s})
		}
	}
	sortCells(cells)
	return cells
}

func sortCells(cells []cell) {
	for i := 1; i < len(cells); i++ {
		for j := i; j > 0 && cells[j].box.X < cells[j-1].box.X; j-- {
			cells[j], cells[j-1] = cells[j-1], cells[j]
		}
	}
}

// lineItems parses the rows between the table header and the totals row.
// The rate column anchors the layout: the cells before it end with the unit
// price and net value, the last cell after it is the gross value.
func (d *document) lineItems() (domain.CandidateField, bool) {
	t := d.table
	if !t.found() {
		return domain.CandidateField{}, false
	}
	var items []domain.LineItem
	var rows []string
	var confSum float64
	var confN int
	var box domain.BBox

	for li := t.header + 1; li < t.end; li++ {
		l := d.lines[li]
		cells := rowCells(l, li, t.numbersX)

		var desc []string
		for i, tok := range l.Tokens {
			if tok.Box.X >= t.numbersX-0.5*tok.Box.H {
				break
			}
			if i == 0 && ordinalRe.MatchString(tok.Text) && len(l.Tokens) > 1 {
				continue
			}
			desc = append(desc, tok.Text)
		}

		if len(cells) == 0 {
			if len(items) > 0 && len(desc) > 0 {
				last := &items[len(items)-1]
				last.Description = strings.TrimSpace(last.Description + " " + strings.Join(desc, " "))
				rows[len(rows)-1] += "\n" + l.Text()
			}
			continue
		}

		item := domain.LineItem{Description: strings.Join(desc, " "), Box: l.Box}
		var before, after []decimal.Decimal
		seenRate := false
		for _, c := range cells {
			if c.rate {
				if !seenRate {
					item.VATRate, _ = NormalizeVATRate(c.text)
					seenRate = true
				}
				continue
			}
			v, _ := NormalizeAmount(c.text)
			if seenRate {
				after = append(after, v)
			} else {
				before = append(before, v)
			}
		}
		switch {
		case len(before) >= 3:
			item.Quantity, item.UnitNet, item.Net = before[0], before[len(before)-2], before[len(before)-1]
		case len(before) == 2:
			item.UnitNet, item.Net = before[0], before[1]
		case len(before) == 1:
			item.Net = before[0]
		}
		if len(after) > 0 {
			item.Gross = after[len(after)-1]
		}
		if item.Description == "" && item.Net.IsZero() {
			continue
		}

		items = append(items, item)
		rows = append(rows, l.Text())
		for _, tok := range l.Tokens {
			confSum += tok.Confidence
			confN++
		}
		box = box.Union(l.Box)
	}
	if len(items) == 0 {
		return domain.CandidateField{}, false
	}

	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Net)
	}
	return domain.CandidateField{
		Name:            domain.FieldLineItems,
		RawValue:        strings.Join(rows, "\n"),
		NormalizedValue: sum.StringFixed(2),
		Items:           items,
		Confidence:      confSum / float64(confN),
		Box:             box,
	}, true
}

// totalsFromTable reads net, VAT and gross totals from the last three amount
// cells of the table's totals row, for totals not already found by label.
func (d *document) totalsFromTable(found map[domain.FieldName]bool) []domain.CandidateField {
	t := d.table
	if !t.found() || !t.hasTotals {
		return nil
	}
	var amounts []span
	for _, c := range rowCells(d.lines[t.end], t.end, 0) {
		if !c.rate {
			amounts = append(amounts, c.span)
		}
	}
	if len(amounts) < 3 {
		return nil
	}
	amounts = amounts[len(amounts)-3:]
	var out []domain.CandidateField
	for i, name := range []domain.FieldName{domain.FieldNetTotal, domain.FieldVATTotal, domain.FieldGrossTotal} {
		if found[name] || d.isUsed(amounts[i]) {
			continue
		}
		out = append(out, d.field(name, amounts[i], normalizeAmountString, labelledFactor))
	}
	return out
}

// grossFallback takes the largest amount with a fractional part outside the
// item rows.
func (d *document) grossFallback() (domain.CandidateField, bool) {
	values := d.unused(d.keep(valueSpansN(d.lines, amountMatch, 4), true))
	var best *span
	var bestVal decimal.Decimal
	for i := range values {
		if !strings.ContainsAny(values[i].text, ",.") {
			continue
		}
		v, _ := NormalizeAmount(values[i].text)
		if best == nil || v.GreaterThan(bestVal) {
			best, bestVal = &values[i], v
		}
	}
	if best == nil {
		return domain.CandidateField{}, false
	}
	return d.field(domain.FieldGrossTotal, *best, normalizeAmountString, unlabeledFactor), true
}
