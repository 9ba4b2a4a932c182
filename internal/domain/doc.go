// Package domain models the inputs of the HeatMyHome heating-cost simulator
// and the contracts of the registries used to resolve them.
//
// # Inputs
//
// Nine logical inputs exist per form session (see [FieldID]). Six are required
// for a simulation: postcode, EPC space heating (kWh/year), floor area (m²),
// thermostat temperature (°C), occupants, and maximum thermal energy storage
// volume (m³). The three neighbour inputs belong to the proxy flow and are
// never required.
//
// Numeric ranges (min, max, rounding multiplier):
//
//	temperature         0 – 35        ×10  (0.1 °C steps)
//	occupants           1 – 20        ×1
//	tes-volume          0.1 – 3.0     ×10  (0.1 m³ steps)
//	epc-space-heating   0 – 999999    ×1
//	floor-area          25 – 1500     ×1
//
// # UK Postcodes
//
// Postcodes are normalised by upper-casing, removing all whitespace and
// truncating to seven characters ("cv4 7al" → "CV47AL"). A normalised postcode
// must then match one of six shapes, A = letter and 9 = digit:
//
//	AA9A9AA  A9A9AA  A99AA  A999AA  AA99AA  AA999AA
//
// See https://ideal-postcodes.co.uk/guides/uk-postcode-format.
//
// # Jurisdiction
//
// The postcode registry (postcodes.io) reports the country of each postcode.
// Scottish certificates live in a separate register with no public API, so a
// postcode in Scotland skips the certificate directory entirely and the user
// enters space heating and floor area by hand.
//
// # Certificate Text
//
// The certificate registry returns its estimates as free text, e.g.
// "3512 kWh per year" or "60 square metres". The estimate is the first run of
// digits in the text; text with no digits counts as absent.
//
// # Parameter Names
//
// Snapshot keys are the hyphenated field names plus "latitude" and
// "longitude". Shareable links use the simulator's query names instead:
//
//	postcode  space_heating  floor_area  temperature  occupants  tes_max
package domain
