package domain

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Address selector sentinels.
const (
	SelectAddressLabel    = "Select Address"
	AddressNotListedLabel = "Address Not Listed"
)

const maxShortAddress = 45

// AddressCertificate pairs a property address with its certificate ID.
type AddressCertificate struct {
	Address       string `json:"address"`
	CertificateID string `json:"certificate"`
}

// CertificateText is the registry's raw free-text answer for a certificate.
// Either field may be empty.
type CertificateText struct {
	SpaceHeating string
	FloorArea    string
}

// CertificateRecord holds the numeric estimates extracted from a certificate.
type CertificateRecord struct {
	SpaceHeating *float64 `json:"space_heating,omitempty"`
	FloorArea    *float64 `json:"floor_area,omitempty"`
}

// Completeness classifies which estimates a certificate carries.
type Completeness string

const (
	Complete            Completeness = "complete"
	MissingFloorArea    Completeness = "missing-floor-area"
	MissingSpaceHeating Completeness = "missing-space-heating"
	MissingBoth         Completeness = "missing-both"
)

// Completeness classifies the record.
func (r CertificateRecord) Completeness() Completeness {
	switch {
	case r.SpaceHeating != nil && r.FloorArea != nil:
		return Complete
	case r.SpaceHeating != nil:
		return MissingFloorArea
	case r.FloorArea != nil:
		return MissingSpaceHeating
	default:
		return MissingBoth
	}
}

// Missing returns the primary fields the record cannot fill.
func (r CertificateRecord) Missing() []FieldID {
	var out []FieldID
	if r.SpaceHeating == nil {
		out = append(out, FieldSpaceHeating)
	}
	if r.FloorArea == nil {
		out = append(out, FieldFloorArea)
	}
	return out
}

// Value returns the estimate for a certificate field.
func (r CertificateRecord) Value(f FieldID) *float64 {
	switch f {
	case FieldSpaceHeating, FieldNeighbourSpaceHeating:
		return r.SpaceHeating
	case FieldFloorArea, FieldNeighbourFloorArea:
		return r.FloorArea
	}
	return nil
}

var digitsPattern = regexp.MustCompile(`\d+`)

// ExtractEstimate returns the first run of digits in s, or nil if there is none.
func ExtractEstimate(s string) *float64 {
	m := digitsPattern.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseCertificate extracts both estimates from the registry text.
func ParseCertificate(t CertificateText) CertificateRecord {
	return CertificateRecord{
		SpaceHeating: ExtractEstimate(t.SpaceHeating),
		FloorArea:    ExtractEstimate(t.FloorArea),
	}
}

// FormatAddress title-cases each word of a registry address.
func FormatAddress(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	start := true
	for _, r := range s {
		if unicode.IsSpace(r) {
			start = true
			b.WriteRune(r)
			continue
		}
		if start {
			b.WriteRune(unicode.ToUpper(r))
			start = false
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// ShortAddress truncates an address for display to 45 characters and strips
// a trailing comma and any whitespace after it.
func ShortAddress(s string) string {
	if utf8.RuneCountInString(s) > maxShortAddress {
		s = string([]rune(s)[:maxShortAddress])
	}
	return strings.TrimRightFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// CertificateDirectory is the EPC registry port. Errors follow the same
// convention as PostcodeLookup.
type CertificateDirectory interface {
	AddressesByPostcode(ctx context.Context, postcode string) ([]AddressCertificate, error)
	Certificate(ctx context.Context, id string) (CertificateText, error)
}
