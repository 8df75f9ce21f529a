package invoice

import (
	"math/big"
	"strings"
)

var (
	nipWeights     = []int{6, 5, 7, 2, 3, 4, 5, 6, 7}
	regon9Weights  = []int{8, 9, 2, 3, 4, 5, 6, 7}
	regon14Weights = []int{2, 4, 8, 5, 0, 9, 7, 3, 6, 1, 2, 4, 8}
)

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func weightedSum(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	return sum
}

// CheckNIP validates a 10-digit Polish tax identifier. A weighted sum of 10
// modulo 11 never matches.
func CheckNIP(s string) (bool, string) {
	if len(s) != 10 || !allDigits(s) {
		return false, ReasonMalformed
	}
	mod := weightedSum(s, nipWeights) % 11
	if mod == 10 || mod != int(s[9]-'0') {
		return false, ReasonChecksumMismatch
	}
	return true, ReasonOK
}

// CheckREGON validates a 9- or 14-digit business registry number. A weighted
// sum of 10 modulo 11 expects a check digit of 0.
func CheckREGON(s string) (bool, string) {
	var weights []int
	switch {
	case !allDigits(s):
		return false, ReasonMalformed
	case len(s) == 9:
		weights = regon9Weights
	case len(s) == 14:
		weights = regon14Weights
	default:
		return false, ReasonMalformed
	}
	mod := weightedSum(s, weights) % 11
	if mod == 10 {
		mod = 0
	}
	if mod != int(s[len(s)-1]-'0') {
		return false, ReasonChecksumMismatch
	}
	return true, ReasonOK
}

// CheckIBAN validates a Polish IBAN (PL + 26 digits) with the ISO 7064
// mod 97 check.
func CheckIBAN(s string) (bool, string) {
	s = strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	if len(s) != 28 || !strings.HasPrefix(s, "PL") || !allDigits(s[2:]) {
		return false, ReasonMalformed
	}
	// Move country code and check digits to the end; P=25, L=21.
	rearranged := s[4:] + "2521" + s[2:4]
	n, ok := new(big.Int).SetString(rearranged, 10)
	if !ok {
		return false, ReasonMalformed
	}
	if new(big.Int).Mod(n, big.NewInt(97)).Int64() != 1 {
		return false, ReasonChecksumMismatch
	}
	return true, ReasonOK
}
