package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldID identifies one logical input of a form session.
type FieldID int

const (
	FieldPostcode FieldID = iota
	FieldSpaceHeating
	FieldFloorArea
	FieldTemperature
	FieldOccupants
	FieldTESVolume
	FieldNeighbourPostcode
	FieldNeighbourSpaceHeating
	FieldNeighbourFloorArea
)

// NumFields is the number of logical inputs.
const NumFields = int(FieldNeighbourFloorArea) + 1

var fieldNames = [NumFields]string{
	"postcode",
	"epc-space-heating",
	"floor-area",
	"temperature",
	"occupants",
	"tes-volume",
	"neighbour-postcode",
	"neighbour-epc-space-heating",
	"neighbour-floor-area",
}

// RequiredFields are the inputs that must all be valid before a simulation
// can be submitted, in the order they appear in links and files.
var RequiredFields = []FieldID{
	FieldPostcode,
	FieldSpaceHeating,
	FieldFloorArea,
	FieldTemperature,
	FieldOccupants,
	FieldTESVolume,
}

// AllFields lists every FieldID.
func AllFields() []FieldID {
	out := make([]FieldID, NumFields)
	for i := range out {
		out[i] = FieldID(i)
	}
	return out
}

func (f FieldID) String() string {
	if f < 0 || int(f) >= NumFields {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// Valid reports whether f is a known field.
func (f FieldID) Valid() bool { return f >= 0 && int(f) < NumFields }

// Neighbour reports whether f belongs to the neighbour (proxy) flow.
func (f FieldID) Neighbour() bool {
	return f == FieldNeighbourPostcode || f == FieldNeighbourSpaceHeating || f == FieldNeighbourFloorArea
}

// Param returns the snapshot parameter name for f. Neighbour fields have none.
func (f FieldID) Param() (string, bool) {
	if !f.Valid() || f.Neighbour() {
		return "", false
	}
	return fieldNames[f], true
}

// NeighbourOf maps a primary certificate field to its neighbour counterpart.
func NeighbourOf(f FieldID) (FieldID, bool) {
	switch f {
	case FieldSpaceHeating:
		return FieldNeighbourSpaceHeating, true
	case FieldFloorArea:
		return FieldNeighbourFloorArea, true
	case FieldPostcode:
		return FieldNeighbourPostcode, true
	}
	return 0, false
}

// ParseFieldID resolves a hyphenated field name.
func ParseFieldID(s string) (FieldID, error) {
	for i, name := range fieldNames {
		if name == s {
			return FieldID(i), nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", s)
}

func (f FieldID) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("unknown field %d", int(f))
	}
	return []byte(f.String()), nil
}

func (f *FieldID) UnmarshalText(b []byte) error {
	id, err := ParseFieldID(string(b))
	if err != nil {
		return err
	}
	*f = id
	return nil
}

// Validity is the validation state of a field.
type Validity int

const (
	Unvalidated Validity = iota
	Pending
	Valid
	Invalid
)

var validityNames = [...]string{"unvalidated", "pending", "valid", "invalid"}

func (v Validity) String() string {
	if v < 0 || int(v) >= len(validityNames) {
		return "unknown"
	}
	return validityNames[v]
}

func (v Validity) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// Source records which resolver last validly set a field.
type Source string

const (
	SourceUser        Source = "user"
	SourceCertificate Source = "certificate"
	SourceNeighbour   Source = "neighbour"
	SourceImport      Source = "import"
)

// Range bounds a numeric field. Values are rounded to 1/Multiplier.
type Range struct {
	Min        float64
	Max        float64
	Multiplier float64
}

// Contains reports whether v lies within the range, inclusive.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Clamp limits v to the range and rounds it to the field's precision.
func (r Range) Clamp(v float64) float64 {
	return math.Round(math.Min(math.Max(v, r.Min), r.Max)*r.Multiplier) / r.Multiplier
}

// ClampText applies Clamp to a textual value. Unparseable text is returned
// unchanged so the range condition can reject it.
func (r Range) ClampText(s string) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return s
	}
	return FormatNumber(r.Clamp(v))
}

var inputRanges = map[FieldID]Range{
	FieldTemperature:           {Min: 0, Max: 35, Multiplier: 10},
	FieldOccupants:             {Min: 1, Max: 20, Multiplier: 1},
	FieldTESVolume:             {Min: 0.1, Max: 3.0, Multiplier: 10},
	FieldSpaceHeating:          {Min: 0, Max: 999999, Multiplier: 1},
	FieldFloorArea:             {Min: 25, Max: 1500, Multiplier: 1},
	FieldNeighbourSpaceHeating: {Min: 0, Max: 999999, Multiplier: 1},
	FieldNeighbourFloorArea:    {Min: 25, Max: 1500, Multiplier: 1},
}

// RangeOf returns the numeric range of f, if f is numeric.
func RangeOf(f FieldID) (Range, bool) {
	r, ok := inputRanges[f]
	return r, ok
}

// FormatNumber renders v with the shortest exact decimal representation.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
