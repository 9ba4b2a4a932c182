package domain

import (
	"context"
	"strings"
	"unicode"
)

// postcodeFormats are the valid shapes of a normalised UK postcode.
// A = letter, 9 = digit.
var postcodeFormats = []string{"AA9A9AA", "A9A9AA", "A99AA", "A999AA", "AA99AA", "AA999AA"}

const maxPostcodeLen = 7

// NormalizePostcode upper-cases s, removes all whitespace and truncates the
// result to seven characters.
func NormalizePostcode(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		if n == maxPostcodeLen {
			break
		}
		b.WriteRune(unicode.ToUpper(r))
		n++
	}
	return b.String()
}

// MatchPostcodeFormat reports whether pc fits one of the UK postcode shapes.
// pc must already be normalised.
func MatchPostcodeFormat(pc string) bool {
	for _, f := range postcodeFormats {
		if matchTemplate(pc, f) {
			return true
		}
	}
	return false
}

func matchTemplate(pc, tmpl string) bool {
	if len(pc) != len(tmpl) {
		return false
	}
	for i := 0; i < len(tmpl); i++ {
		c := pc[i]
		switch tmpl[i] {
		case 'A':
			if c < 'A' || c > 'Z' {
				return false
			}
		case '9':
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}

// Jurisdiction decides whether the certificate directory can be used.
type Jurisdiction string

const (
	JurisdictionUnknown  Jurisdiction = ""
	JurisdictionStandard Jurisdiction = "standard"
	JurisdictionScotland Jurisdiction = "scotland"
)

// JurisdictionFromCountry maps the registry's country name.
func JurisdictionFromCountry(country string) Jurisdiction {
	if strings.EqualFold(strings.TrimSpace(country), "Scotland") {
		return JurisdictionScotland
	}
	return JurisdictionStandard
}

// PostcodeResult is the registry's answer for a single postcode.
type PostcodeResult struct {
	Latitude       float64
	Longitude      float64
	Country        string
	HasCoordinates bool
}

// Jurisdiction derives the jurisdiction from the result's country.
func (r PostcodeResult) Jurisdiction() Jurisdiction {
	return JurisdictionFromCountry(r.Country)
}

// PostcodeLookup resolves a normalised postcode to coordinates and country.
// Implementations return an error wrapping ErrConnectivity on transport
// failure and a *ServiceError when the registry answers with an error.
type PostcodeLookup interface {
	LookupPostcode(ctx context.Context, postcode string) (PostcodeResult, error)
}
