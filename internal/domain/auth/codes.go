package auth

import "strings"

const (
	taxIDLength            = 11
	municipalityCodeLength = 7
	facilityCodeLength     = 7
)

// NormalizeTaxID strips the usual CPF punctuation ("123.456.789-09").
func NormalizeTaxID(raw string) string {
	return strings.NewReplacer(".", "", "-", "", " ", "").Replace(strings.TrimSpace(raw))
}

// ValidTaxID reports whether s is an 11-digit CPF with correct check digits.
// Sequences of one repeated digit pass the checksum but are never issued.
func ValidTaxID(s string) bool {
	if len(s) != taxIDLength || !allDigits(s) {
		return false
	}
	if strings.Count(s, s[:1]) == taxIDLength {
		return false
	}
	return checkDigit(s[:9], 10) == s[9] && checkDigit(s[:10], 11) == s[10]
}

func checkDigit(prefix string, weight int) byte {
	sum := 0
	for i := 0; i < len(prefix); i++ {
		sum += int(prefix[i]-'0') * (weight - i)
	}
	rem := (sum * 10) % 11
	if rem == 10 {
		rem = 0
	}
	return byte('0' + rem)
}

// ValidMunicipalityCode reports whether code looks like a 7-digit IBGE municipality code.
func ValidMunicipalityCode(code string) bool {
	return len(code) == municipalityCodeLength && allDigits(code)
}

// ValidFacilityCode reports whether code looks like a 7-digit CNES facility code.
func ValidFacilityCode(code string) bool {
	return len(code) == facilityCodeLength && allDigits(code)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
