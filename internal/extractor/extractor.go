// Package extractor turns recognized tokens into candidate invoice fields.
// Values are found by format grammar and tied to labels by position; nothing
// is inferred that does not appear on the page.
package extractor

import (
	"math"
	"sort"
	"strings"

	"docscan/internal/domain"
	"docscan/internal/layout"
)

// Confidence multipliers for how a value was located.
const (
	labelledFactor  = 1.0
	unlabeledFactor = 0.5
)

// Extractor is stateless and safe for concurrent use.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// fieldSpec describes a field located by label and grammar alone.
type fieldSpec struct {
	name      domain.FieldName
	labels    []string
	maxTokens int
	normalize func(string) (string, bool)
	// fallback allows the first grammar match in reading order when no
	// label leads to a value.
	fallback bool
	// outsideTable excludes labels and values inside the line-item table.
	outsideTable bool
}

var simpleFields = []fieldSpec{
	{name: domain.FieldInvoiceNumber, labels: invoiceNumberLabels, maxTokens: 1, normalize: normalizeInvoiceNumber},
	{name: domain.FieldIssueDate, labels: issueDateLabels, maxTokens: 4, normalize: NormalizeDate, fallback: true},
	{name: domain.FieldSaleDate, labels: saleDateLabels, maxTokens: 4, normalize: NormalizeDate},
	{name: domain.FieldDueDate, labels: dueDateLabels, maxTokens: 4, normalize: NormalizeDate},
	{name: domain.FieldNetTotal, labels: netTotalLabels, maxTokens: 5, normalize: normalizeAmountString, outsideTable: true},
	{name: domain.FieldVATTotal, labels: vatTotalLabels, maxTokens: 5, normalize: normalizeAmountString, outsideTable: true},
	{name: domain.FieldGrossTotal, labels: grossTotalLabels, maxTokens: 5, normalize: normalizeAmountString, outsideTable: true},
	{name: domain.FieldVATRate, labels: vatRateLabels, maxTokens: 2, normalize: NormalizeVATRate, fallback: true},
	{name: domain.FieldBankAccount, labels: bankAccountLabels, maxTokens: 8, normalize: NormalizeIBAN, fallback: true},
}

var fieldOrder = map[domain.FieldName]int{}

func init() {
	order := []domain.FieldName{
		domain.FieldInvoiceNumber, domain.FieldIssueDate, domain.FieldSaleDate, domain.FieldDueDate,
		domain.FieldSellerName, domain.FieldSellerTaxID, domain.FieldSellerRegon,
		domain.FieldBuyerName, domain.FieldBuyerTaxID, domain.FieldBuyerRegon,
		domain.FieldNetTotal, domain.FieldVATTotal, domain.FieldGrossTotal, domain.FieldVATRate,
		domain.FieldBankAccount, domain.FieldLineItems,
	}
	for i, f := range order {
		fieldOrder[f] = i
	}
}

// Extract returns the fields found in res, in a fixed field order. Fields
// without a matching value are omitted.
func (e *Extractor) Extract(res *domain.BackendResult) []domain.CandidateField {
	if res == nil {
		return nil
	}
	tokens := res.Tokens
	if len(tokens) == 0 {
		tokens = syntheticTokens(res.Text)
	}
	if len(tokens) == 0 {
		return nil
	}
	doc := newDocument(layout.Lines(splitGlued(tokens)))

	var fields []domain.CandidateField
	found := map[domain.FieldName]bool{}
	add := func(f domain.CandidateField) {
		fields = append(fields, f)
		found[f.Name] = true
	}
	for _, spec := range simpleFields {
		if f, ok := doc.extract(spec, false); ok {
			add(f)
		}
	}
	for _, f := range doc.totalsFromTable(found) {
		add(f)
	}
	for _, spec := range simpleFields {
		if !spec.fallback || found[spec.name] {
			continue
		}
		if f, ok := doc.extract(spec, true); ok {
			add(f)
		}
	}
	if !found[domain.FieldGrossTotal] {
		if f, ok := doc.grossFallback(); ok {
			add(f)
		}
	}
	fields = append(fields, doc.partyIdentifiers(taxIDLabels, NormalizeTaxID, 5, domain.FieldSellerTaxID, domain.FieldBuyerTaxID)...)
	fields = append(fields, doc.partyIdentifiers(regonLabels, NormalizeRegon, 1, domain.FieldSellerRegon, domain.FieldBuyerRegon)...)
	fields = append(fields, doc.partyNames()...)
	if f, ok := doc.lineItems(); ok {
		fields = append(fields, f)
	}

	sort.SliceStable(fields, func(i, j int) bool {
		return fieldOrder[fields[i].Name] < fieldOrder[fields[j].Name]
	})
	return fields
}

type party int

const (
	partyNone party = iota
	partySeller
	partyBuyer
)

// document is the per-call view of one recognized page set.
type document struct {
	lines   []layout.Line
	sellers []span
	buyers  []span
	table   tableRegion
	used    map[tokenKey]bool
}

type tokenKey struct {
	page int
	x, y float64
	text string
}

func keyOf(t domain.Token) tokenKey {
	return tokenKey{page: t.Box.Page, x: t.Box.X, y: t.Box.Y, text: t.Text}
}

func (d *document) isUsed(s span) bool {
	for _, t := range s.tokens {
		if d.used[keyOf(t)] {
			return true
		}
	}
	return false
}

func (d *document) unused(spans []span) []span {
	out := spans[:0:0]
	for _, s := range spans {
		if !d.isUsed(s) {
			out = append(out, s)
		}
	}
	return out
}

func newDocument(lines []layout.Line) *document {
	d := &document{
		lines:   lines,
		sellers: labelSpans(lines, sellerHeaders),
		buyers:  labelSpans(lines, buyerHeaders),
		used:    map[tokenKey]bool{},
	}
	d.table = findTable(lines)
	return d
}

func (d *document) hasParties() bool {
	return len(d.sellers) > 0 || len(d.buyers) > 0
}

// partyOf returns the party whose header is nearest among headers at or
// above box.
func (d *document) partyOf(box domain.BBox) party {
	best, bestDist := partyNone, math.Inf(1)
	consider := func(headers []span, p party) {
		for _, h := range headers {
			if h.box.Page != box.Page {
				continue
			}
			_, hy := h.box.Center()
			_, by := box.Center()
			if hy > by+0.5*math.Max(h.box.H, box.H) {
				continue
			}
			if dist := h.box.Distance(box); dist < bestDist {
				best, bestDist = p, dist
			}
		}
	}
	consider(d.sellers, partySeller)
	consider(d.buyers, partyBuyer)
	return best
}

func (d *document) keep(spans []span, outsideTable bool) []span {
	if !outsideTable || !d.table.found() {
		return spans
	}
	out := spans[:0:0]
	for _, s := range spans {
		if !d.table.contains(s.line) {
			out = append(out, s)
		}
	}
	return out
}

// extract locates spec by label, or with fallback set, by the first unused
// grammar match in reading order.
func (d *document) extract(spec fieldSpec, fallback bool) (domain.CandidateField, bool) {
	match := func(text string) bool {
		_, ok := spec.normalize(text)
		return ok
	}
	values := d.unused(d.keep(valueSpansN(d.lines, match, spec.maxTokens), spec.outsideTable))
	if len(values) == 0 {
		return domain.CandidateField{}, false
	}
	if fallback {
		return d.field(spec.name, values[0], spec.normalize, unlabeledFactor), true
	}
	labels := d.keep(labelSpans(d.lines, spec.labels), spec.outsideTable)
	if m, ok := nearest(labels, values); ok {
		return d.field(spec.name, m.value, spec.normalize, labelledFactor), true
	}
	return domain.CandidateField{}, false
}

func (d *document) field(name domain.FieldName, v span, normalize func(string) (string, bool), factor float64) domain.CandidateField {
	for _, t := range v.tokens {
		d.used[keyOf(t)] = true
	}
	norm, _ := normalize(v.text)
	return domain.CandidateField{
		Name:            name,
		RawValue:        v.text,
		NormalizedValue: norm,
		Confidence:      v.confidence() * factor,
		Box:             v.box,
	}
}

// partyIdentifiers assigns identifier values to seller and buyer. A label is
// tied to the party whose header is nearest above it; without any party
// headers, labelled values are taken in reading order as seller then buyer
// at reduced confidence.
func (d *document) partyIdentifiers(labelPhrases []string, normalize func(string) (string, bool), maxTokens int, sellerField, buyerField domain.FieldName) []domain.CandidateField {
	match := func(text string) bool {
		_, ok := normalize(text)
		return ok
	}
	values := d.unused(valueSpansN(d.lines, match, maxTokens))
	if len(values) == 0 {
		return nil
	}
	labels := labelSpans(d.lines, labelPhrases)

	type pair struct {
		label, value int
		dist         float64
	}
	var pairs []pair
	for li, l := range labels {
		for vi, v := range values {
			if overlapsTokens(l, v) || !followsLabel(l.box, v.box) {
				continue
			}
			pairs = append(pairs, pair{li, vi, l.box.Distance(v.box)})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].dist < pairs[j].dist })

	var out []domain.CandidateField
	usedLabel := map[int]bool{}
	usedValue := map[int]bool{}
	filled := map[party]bool{}
	fieldFor := map[party]domain.FieldName{partySeller: sellerField, partyBuyer: buyerField}

	if d.hasParties() {
		for _, p := range pairs {
			if usedLabel[p.label] || usedValue[p.value] {
				continue
			}
			who := d.partyOf(labels[p.label].box)
			if who == partyNone || filled[who] {
				continue
			}
			usedLabel[p.label], usedValue[p.value], filled[who] = true, true, true
			out = append(out, d.field(fieldFor[who], values[p.value], normalize, labelledFactor))
		}
		return out
	}

	// No party headers: reading order decides.
	order := []party{partySeller, partyBuyer}
	next := 0
	if len(labels) > 0 {
		for li := range labels {
			if next == len(order) {
				break
			}
			for _, p := range pairs {
				if p.label != li || usedValue[p.value] {
					continue
				}
				usedValue[p.value] = true
				out = append(out, d.field(fieldFor[order[next]], values[p.value], normalize, unlabeledFactor))
				next++
				break
			}
		}
		return out
	}
	for vi := range values {
		if next == len(order) {
			break
		}
		out = append(out, d.field(fieldFor[order[next]], values[vi], normalize, unlabeledFactor))
		next++
	}
	return out
}

// partyNames finds company names anchored on a legal-entity suffix.
func (d *document) partyNames() []domain.CandidateField {
	var names []span
	for li, l := range d.lines {
		for _, seg := range segments(l.Tokens) {
			if s, ok := nameSpan(li, seg); ok {
				names = append(names, s)
			}
		}
	}
	if len(names) == 0 {
		return nil
	}

	var out []domain.CandidateField
	if d.hasParties() {
		filled := map[party]bool{}
		for _, s := range names {
			who := d.partyOf(s.box)
			if who == partyNone || filled[who] {
				continue
			}
			filled[who] = true
			name := domain.FieldSellerName
			if who == partyBuyer {
				name = domain.FieldBuyerName
			}
			out = append(out, d.field(name, s, normalizeName, labelledFactor))
		}
		return out
	}
	out = append(out, d.field(domain.FieldSellerName, names[0], normalizeName, unlabeledFactor))
	if len(names) > 1 {
		out = append(out, d.field(domain.FieldBuyerName, names[1], normalizeName, unlabeledFactor))
	}
	return out
}

// segments splits a line at wide horizontal gaps, separating columns.
func segments(tokens []domain.Token) [][]domain.Token {
	var out [][]domain.Token
	start := 0
	for i := 1; i <= len(tokens); i++ {
		if i == len(tokens) || tokens[i].Box.X-tokens[i-1].Box.Right() > 3*math.Max(tokens[i].Box.H, tokens[i-1].Box.H) {
			out = append(out, tokens[start:i])
			start = i
		}
	}
	return out
}

// nameSpan returns the tokens of seg up to and including a legal-entity
// suffix, without leading party headers or labels. At least one token must
// precede the suffix.
func nameSpan(line int, seg []domain.Token) (span, bool) {
	loc := legalSuffixRe.FindStringSubmatchIndex(joinText(seg))
	if loc == nil {
		return span{}, false
	}
	suffixStart, suffixEnd := loc[2], loc[3]
	startTok, last, offset := -1, -1, 0
	for i, t := range seg {
		if startTok < 0 && offset+len(t.Text) > suffixStart {
			startTok = i
		}
		if offset < suffixEnd {
			last = i
		}
		offset += len(t.Text) + 1
	}
	first := 0
	for first < startTok && isHeaderToken(seg[first].Text) {
		first++
	}
	if first >= startTok {
		return span{}, false
	}
	return newSpan(line, seg[first:last+1]), true
}

func isHeaderToken(text string) bool {
	if strings.HasSuffix(text, ":") {
		return true
	}
	key := labelKey(text)
	for _, h := range append(append([]string{}, sellerHeaders...), buyerHeaders...) {
		if key == h {
			return true
		}
	}
	return false
}

func normalizeName(s string) (string, bool) {
	return strings.Join(strings.Fields(s), " "), true
}

func normalizeAmountString(s string) (string, bool) {
	d, ok := NormalizeAmount(s)
	if !ok {
		return "", false
	}
	return d.StringFixed(2), true
}

func normalizeInvoiceNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || !invoiceNoRe.MatchString(s) || !strings.ContainsAny(s, "0123456789") {
		return "", false
	}
	if _, isDate := NormalizeDate(s); isDate {
		return "", false
	}
	return strings.ToUpper(s), true
}

// syntheticTokens lays plain text out on a grid so that text-only results
// can still be read line by line.
func syntheticTokens(text string) []domain.Token {
	const lineH, charW = 0.02, 0.008
	var out []domain.Token
	for li, line := range strings.Split(text, "\n") {
		col := 0
		for _, word := range strings.Split(line, " ") {
			n := len([]rune(word))
			if strings.TrimSpace(word) != "" {
				out = append(out, domain.Token{
					Text:       word,
					Box:        domain.BBox{X: float64(col) * charW, Y: float64(li) * lineH * 1.5, W: float64(n) * charW, H: lineH},
					Confidence: 0.5,
				})
			}
			col += n + 1
		}
	}
	return out
}
