package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Value grammars. Each is matched against the space-joined text of a token span.
var (
	dateNumeric   = regexp.MustCompile(`^(\d{1,2})[./-](\d{1,2})[./-](\d{4})(?:\s?r\.?)?$`)
	dateISO       = regexp.MustCompile(`^(\d{4})[./-](\d{1,2})[./-](\d{1,2})(?:\s?r\.?)?$`)
	dateWords     = regexp.MustCompile(`^(\d{1,2})\s+(\p{L}+)\.?\s+(\d{4})(?:\s?r\.?)?$`)
	amountRe      = regexp.MustCompile(`(?i)^(-?\d{1,3}(?:[ .\x{00a0}]\d{3})+(?:,\d{1,2})?|-?\d+(?:[.,]\d{1,2})?)(?:\s?(?:zł|zl|pln))?$`)
	taxIDRe       = regexp.MustCompile(`(?i)^(?:PL\s?)?\d(?:[\s-]?\d){9}$`)
	regonRe       = regexp.MustCompile(`^\d{9}(?:\d{5})?$`)
	ibanRe        = regexp.MustCompile(`(?i)^(?:PL\s?)?\d{2}(?:\s?\d{4}){6}$`)
	vatRateRe     = regexp.MustCompile(`(?i)^(?:(\d{1,2})\s?%|(zw|np)\.?)$`)
	invoiceNoRe   = regexp.MustCompile(`(?i)^[A-Z0-9][A-Z0-9/_.\-]*$`)
	legalSuffixRe = regexp.MustCompile(`(?i)(?:^|\s)(sp\.\s?z\s?o\.\s?o\.|s\.\s?k\.\s?a\.|s\.\s?a\.|sp\.\s?j\.|sp\.\s?k\.|sp\.\s?p\.)(?:$|[\s,;])`)
)

var monthNames = map[string]time.Month{
	"stycznia": time.January, "styczen": time.January, "sty": time.January,
	"lutego": time.February, "luty": time.February, "lut": time.February,
	"marca": time.March, "marzec": time.March, "mar": time.March,
	"kwietnia": time.April, "kwiecien": time.April, "kwi": time.April,
	"maja": time.May, "maj": time.May,
	"czerwca": time.June, "czerwiec": time.June, "cze": time.June,
	"lipca": time.July, "lipiec": time.July, "lip": time.July,
	"sierpnia": time.August, "sierpien": time.August, "sie": time.August,
	"wrzesnia": time.September, "wrzesien": time.September, "wrz": time.September,
	"pazdziernika": time.October, "pazdziernik": time.October, "paz": time.October,
	"listopada": time.November, "listopad": time.November, "lis": time.November,
	"grudnia": time.December, "grudzien": time.December, "gru": time.December,
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// NormalizeDate parses a date in one of the supported layouts and returns it
// as YYYY-MM-DD. Impossible calendar dates are rejected.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	var y, m, d int
	switch {
	case dateNumeric.MatchString(s):
		g := dateNumeric.FindStringSubmatch(s)
		d, m, y = atoi(g[1]), atoi(g[2]), atoi(g[3])
	case dateISO.MatchString(s):
		g := dateISO.FindStringSubmatch(s)
		y, m, d = atoi(g[1]), atoi(g[2]), atoi(g[3])
	case dateWords.MatchString(s):
		g := dateWords.FindStringSubmatch(s)
		month, ok := monthNames[Fold(g[2])]
		if !ok {
			return "", false
		}
		d, m, y = atoi(g[1]), int(month), atoi(g[3])
	default:
		return "", false
	}
	if m < 1 || m > 12 || d < 1 || y < 1900 || y > 2999 {
		return "", false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// NormalizeAmount parses a monetary amount written with a comma or period
// decimal separator and space, period or no-break-space thousands separators.
// The result is rounded to two decimal places.
func NormalizeAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if !amountRe.MatchString(s) {
		return decimal.Zero, false
	}
	s = strings.ToLower(s)
	for _, suffix := range []string{"pln", "zł", "zl"} {
		s = strings.TrimSuffix(s, suffix)
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == ' ' {
			return -1
		}
		return r
	}, s)
	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	case strings.Contains(s, "."):
		if i := strings.LastIndex(s, "."); len(s)-i-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d.Round(2), true
}

// NormalizeTaxID strips the country prefix and separators from a NIP.
func NormalizeTaxID(s string) (string, bool) {
	if !taxIDRe.MatchString(strings.TrimSpace(s)) {
		return "", false
	}
	return digitsOnly(s), true
}

// NormalizeRegon strips separators from a REGON.
func NormalizeRegon(s string) (string, bool) {
	d := digitsOnly(s)
	if !regonRe.MatchString(d) || len(d) != len(strings.TrimSpace(s)) {
		return "", false
	}
	return d, true
}

// NormalizeIBAN returns a Polish account number in compact IBAN form.
func NormalizeIBAN(s string) (string, bool) {
	if !ibanRe.MatchString(strings.TrimSpace(s)) {
		return "", false
	}
	return "PL" + digitsOnly(s), true
}

// NormalizeVATRate maps "23%", "23 %", "zw." and "np" to "23", "zw" and "np".
func NormalizeVATRate(s string) (string, bool) {
	g := vatRateRe.FindStringSubmatch(strings.TrimSpace(s))
	if g == nil {
		return "", false
	}
	if g[1] != "" {
		return strconv.Itoa(atoi(g[1])), true
	}
	return strings.ToLower(g[2]), true
}

// Fold lowercases s and strips diacritics, so that "Sprzedaży" and
// "sprzedazy" compare equal. The Polish ł has no decomposition and is mapped
// explicitly.
func Fold(s string) string {
	s = strings.NewReplacer("ł", "l", "Ł", "L").Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// HasDiacritics reports whether s contains Polish diacritic letters.
func HasDiacritics(s string) bool {
	return strings.ContainsAny(s, "ąćęłńóśźżĄĆĘŁŃÓŚŹŻ")
}

// HasLegalSuffix reports whether s contains a Polish legal-entity suffix.
func HasLegalSuffix(s string) bool {
	return legalSuffixRe.MatchString(s)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
