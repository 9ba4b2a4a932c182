package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// Snapshot parameter names that are not fields.
const (
	ParamLatitude  = "latitude"
	ParamLongitude = "longitude"
)

// Value is a committed parameter: a number, or a string when the text
// contains letters (postcodes).
type Value struct {
	Num   float64
	Str   string
	IsStr bool
}

// Number returns a numeric Value.
func Number(v float64) Value { return Value{Num: v} }

// Text returns a textual Value.
func Text(s string) Value { return Value{Str: s, IsStr: true} }

// ParseValue converts committed text into a Value. Text containing any letter,
// or that does not parse as a number, stays a string.
func ParseValue(s string) Value {
	if strings.IndexFunc(s, unicode.IsLetter) >= 0 {
		return Text(s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Text(s)
	}
	return Number(v)
}

func (v Value) String() string {
	if v.IsStr {
		return v.Str
	}
	return FormatNumber(v.Num)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsStr {
		return json.Marshal(v.Str)
	}
	return json.Marshal(v.Num)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = Text(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = Number(n)
	return nil
}

// Snapshot maps parameter names to the values of currently valid fields plus
// the postcode's coordinates.
type Snapshot map[string]Value

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s Snapshot) number(key string) float64 {
	return s[key].Num
}

// SimulationRequest assembles the request from a snapshot that holds every
// required field. The second result is false if anything is missing.
func (s Snapshot) SimulationRequest() (SimulationRequest, bool) {
	for _, f := range RequiredFields {
		p, _ := f.Param()
		if _, ok := s[p]; !ok {
			return SimulationRequest{}, false
		}
	}
	req := SimulationRequest{
		Postcode:     s[FieldPostcode.String()].String(),
		SpaceHeating: s.number(FieldSpaceHeating.String()),
		FloorArea:    s.number(FieldFloorArea.String()),
		Temperature:  s.number(FieldTemperature.String()),
		Occupants:    s.number(FieldOccupants.String()),
		TESVolume:    s.number(FieldTESVolume.String()),
	}
	lat, latOK := s[ParamLatitude]
	lon, lonOK := s[ParamLongitude]
	if latOK && lonOK {
		req.Latitude, req.Longitude = lat.Num, lon.Num
		req.HasLocation = true
	}
	return req, true
}
