package form

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
)

type linkParam struct {
	field domain.FieldID
	name  string
}

// deepLinkParams fixes the order of a shareable link's query.
var deepLinkParams = []linkParam{
	{domain.FieldPostcode, "postcode"},
	{domain.FieldSpaceHeating, "space_heating"},
	{domain.FieldFloorArea, "floor_area"},
	{domain.FieldTemperature, "temperature"},
	{domain.FieldOccupants, "occupants"},
	{domain.FieldTESVolume, "tes_max"},
}

// BuildDeepLink renders the snapshot as a shareable link under base. The same
// snapshot always yields the same string.
func BuildDeepLink(base string, snap domain.Snapshot) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteByte('?')
	for i, p := range deepLinkParams {
		if i > 0 {
			b.WriteByte('&')
		}
		key, _ := p.field.Param()
		b.WriteString(p.name)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(snap[key].String()))
	}
	return b.String()
}

// ParseDeepLink reads the required inputs from a shareable link or a bare
// query string. Every required input must be present and non-empty.
func ParseDeepLink(raw string) (map[domain.FieldID]string, error) {
	query := raw
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		query = raw[i+1:]
	}
	q, err := url.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("%w: parse link query: %w", ErrMalformedImport, err)
	}
	values := make(map[domain.FieldID]string, len(deepLinkParams))
	var missing []string
	for _, p := range deepLinkParams {
		v := strings.TrimSpace(q.Get(p.name))
		if v == "" {
			missing = append(missing, p.name)
			continue
		}
		values[p.field] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrIncompleteImport, strings.Join(missing, ", "))
	}
	return values, nil
}

// File is the saved-results document: the inputs a simulation ran with and
// the simulator's output.
type File struct {
	Inputs  map[string]any  `json:"inputs"`
	Outputs json.RawMessage `json:"outputs,omitempty"`
}

// ParseFile reads the required inputs and any outputs from a saved-results
// document.
func ParseFile(data []byte) (map[domain.FieldID]string, json.RawMessage, error) {
	var doc struct {
		Inputs  map[string]json.RawMessage `json:"inputs"`
		Outputs json.RawMessage            `json:"outputs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: parse results file: %w", ErrMalformedImport, err)
	}
	values := make(map[domain.FieldID]string, len(domain.RequiredFields))
	var missing []string
	for _, f := range domain.RequiredFields {
		key, _ := f.Param()
		v, ok := fileValue(doc.Inputs[key])
		if !ok {
			missing = append(missing, key)
			continue
		}
		values[f] = v
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: missing %s", ErrIncompleteImport, strings.Join(missing, ", "))
	}
	outputs := doc.Outputs
	if bytes.Equal(bytes.TrimSpace(outputs), []byte("null")) {
		outputs = nil
	}
	return values, outputs, nil
}

// fileValue renders a JSON string or number as typed text.
func fileValue(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var v domain.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	s := strings.TrimSpace(v.String())
	return s, s != ""
}

// Import loads a complete input set as if each value had been typed and
// committed. The certificate directory is not consulted and manual entry of
// the certificate fields is unlocked.
func (s *Session) Import(ctx context.Context, values map[domain.FieldID]string) error {
	var missing []string
	for _, f := range domain.RequiredFields {
		if strings.TrimSpace(values[f]) == "" {
			missing = append(missing, f.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteImport, strings.Join(missing, ", "))
	}

	opts := chainOpts{transform: true, source: domain.SourceImport, importing: true}
	if err := s.runChain(ctx, domain.FieldPostcode, values[domain.FieldPostcode], opts); err != nil {
		return err
	}
	s.mu.Lock()
	s.res.ManualEntry = ManualEntry{SpaceHeating: true, FloorArea: true}
	s.mu.Unlock()

	for _, f := range domain.RequiredFields[1:] {
		if err := s.runChain(ctx, f, values[f], opts); err != nil {
			return err
		}
	}
	s.logger.Info("inputs imported")
	return nil
}

// ImportLink loads the inputs of a shareable link.
func (s *Session) ImportLink(ctx context.Context, link string) error {
	values, err := ParseDeepLink(link)
	if err != nil {
		return err
	}
	return s.Import(ctx, values)
}

// ImportFile loads a saved-results document, keeping its outputs as the
// session's last result.
func (s *Session) ImportFile(ctx context.Context, data []byte) error {
	values, outputs, err := ParseFile(data)
	if err != nil {
		return err
	}
	if err := s.Import(ctx, values); err != nil {
		return err
	}
	if outputs != nil {
		s.mu.Lock()
		s.dispatch = DispatchState{
			Status: DispatchSucceeded,
			Output: &domain.SimulationOutput{Backend: "file", Result: outputs},
		}
		s.mu.Unlock()
	}
	return nil
}

// Export renders the session as a saved-results document.
func (s *Session) Export() File {
	s.mu.Lock()
	defer s.mu.Unlock()
	inputs := make(map[string]any, len(s.snapshot)+1)
	for k, v := range s.snapshot {
		inputs[k] = v
	}
	inputs["enable-optimisation"] = s.optimisation
	f := File{Inputs: inputs}
	if s.dispatch.Output != nil {
		f.Outputs = s.dispatch.Output.Result
	}
	return f
}
