package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
	"github.com/couchcryptid/heatmyhome-form/internal/form"
	"github.com/couchcryptid/heatmyhome-form/internal/observability"
)

type stubPostcodes map[string]domain.PostcodeResult

func (s stubPostcodes) LookupPostcode(_ context.Context, pc string) (domain.PostcodeResult, error) {
	r, ok := s[pc]
	if !ok {
		return domain.PostcodeResult{}, &domain.ServiceError{Service: "postcodes", Status: 404, Message: "Invalid postcode"}
	}
	return r, nil
}

type stubDirectory struct {
	addresses map[string][]domain.AddressCertificate
	certs     map[string]domain.CertificateText
}

func (d stubDirectory) AddressesByPostcode(_ context.Context, pc string) ([]domain.AddressCertificate, error) {
	return d.addresses[pc], nil
}

func (d stubDirectory) Certificate(_ context.Context, id string) (domain.CertificateText, error) {
	c, ok := d.certs[id]
	if !ok {
		return domain.CertificateText{}, &domain.ServiceError{Service: "epc-certificate", Status: 404, Message: "not found"}
	}
	return c, nil
}

type stubBackend struct{ result json.RawMessage }

func (stubBackend) Name() string { return "stub" }

func (b stubBackend) Submit(context.Context, domain.SimulationRequest) (json.RawMessage, error) {
	if b.result == nil {
		return nil, errors.New("engine crashed")
	}
	return b.result, nil
}

var testDirectory = stubDirectory{
	addresses: map[string][]domain.AddressCertificate{
		"CV47AL": {
			{Address: "1 GIBBET HILL ROAD, COVENTRY", CertificateID: "cert-1"},
			{Address: "2 GIBBET HILL ROAD, COVENTRY", CertificateID: "cert-2"},
		},
	},
	certs: map[string]domain.CertificateText{
		"cert-1": {FloorArea: "72 square metres"},
		"cert-2": {SpaceHeating: "4000 kWh per year", FloorArea: "85 square metres"},
	},
}

func newTestSession(t *testing.T, sim domain.SimulationBackend) *form.Session {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	deps := form.Deps{
		Postcodes: stubPostcodes{
			"CV47AL": {Latitude: 52.3793, Longitude: -1.5615, Country: "England", HasCoordinates: true},
			"EH11YZ": {Latitude: 55.9521, Longitude: -3.1965, Country: "Scotland", HasCoordinates: true},
		},
		Directory:    testDirectory,
		PublicURL:    "https://heatmyhome.ninja/simulator.html",
		SimulateURL:  "https://customapi.heatmyhome.ninja/simulate",
		Optimisation: true,
		Metrics:      metrics,
		Logger:       logger,
	}
	if sim != nil {
		deps.Dispatcher = form.NewDispatcher(sim, 0, metrics, logger)
	}
	s := form.NewSession("test", deps)
	t.Cleanup(s.Close)
	return s
}

const answersYAML = `
postcode: CV4 7AL
address: cert-2
fields:
  temperature: 20
  occupants: 2
  tes-volume: 0.5
optimisation: false
`

func TestParseAnswers(t *testing.T) {
	a, err := parseAnswers([]byte(answersYAML))
	require.NoError(t, err)
	assert.Equal(t, "CV4 7AL", a.Postcode)
	assert.Equal(t, "cert-2", a.Address)
	assert.Equal(t, map[string]string{"temperature": "20", "occupants": "2", "tes-volume": "0.5"}, a.Fields)
	require.NotNil(t, a.Optimisation)
	assert.False(t, *a.Optimisation)
	assert.Nil(t, a.Neighbour)
}

func TestParseAnswers_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "malformed", yaml: "postcode: [CV4"},
		{name: "unknown field", yaml: "fields:\n  roof-area: 40\n"},
		{name: "postcode in fields", yaml: "fields:\n  postcode: CV47AL\n"},
		{name: "neighbour in fields", yaml: "fields:\n  neighbour-floor-area: 80\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseAnswers([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestRunFill(t *testing.T) {
	a, err := parseAnswers([]byte(answersYAML))
	require.NoError(t, err)
	s := newTestSession(t, stubBackend{result: json.RawMessage(`{"heat-pump":{}}`)})

	var out bytes.Buffer
	require.NoError(t, runFill(context.Background(), s, a, true, &out))

	doc := out.String()
	assert.True(t, gjson.Get(doc, "gate.ready").Bool())
	assert.Equal(t,
		"https://heatmyhome.ninja/simulator.html?postcode=CV47AL&space_heating=4000&floor_area=85&temperature=20&occupants=2&tes_max=0.5",
		gjson.Get(doc, "gate.deep_link").String())
	assert.False(t, gjson.Get(doc, "enable_optimisation").Bool())
	assert.Equal(t, "succeeded", gjson.Get(doc, "dispatch.status").String())
	assert.JSONEq(t, `{"heat-pump":{}}`, gjson.Get(doc, "dispatch.output.result").Raw)
}

func TestRunFill_SubmitFailure(t *testing.T) {
	a, err := parseAnswers([]byte(answersYAML))
	require.NoError(t, err)
	s := newTestSession(t, stubBackend{})

	var out bytes.Buffer
	err = runFill(context.Background(), s, a, true, &out)

	require.Error(t, err)
	assert.Equal(t, "failed", gjson.Get(out.String(), "dispatch.status").String())
}

func TestRunResolve(t *testing.T) {
	s := newTestSession(t, nil)

	var out bytes.Buffer
	require.NoError(t, runResolve(context.Background(), s, "cv4 7al", &out))

	doc := out.String()
	assert.Equal(t, "valid", gjson.Get(doc, "postcode.validity").String())
	assert.Equal(t, "CV47AL", gjson.Get(doc, "postcode.committed").String())
	assert.InDelta(t, 52.3793, gjson.Get(doc, "snapshot.latitude").Float(), 1e-9)
	values := gjson.Get(doc, "addresses.options.#.value").Array()
	require.Len(t, values, 4)
	assert.Equal(t, "cert-1", values[1].String())
}

func TestRunCertificate(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runCertificate(context.Background(), testDirectory, "cert-1", &out))

	doc := out.String()
	assert.Equal(t, "missing-space-heating", gjson.Get(doc, "completeness").String())
	assert.InDelta(t, 72, gjson.Get(doc, "record.floor_area").Float(), 0)
	assert.False(t, gjson.Get(doc, "record.space_heating").Exists())

	err := runCertificate(context.Background(), testDirectory, "cert-9", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cert-9")
}

func TestRunLoad(t *testing.T) {
	link := "https://heatmyhome.ninja/simulator.html?postcode=CV47AL&space_heating=4000&floor_area=85&temperature=20&occupants=2&tes_max=0.5"

	t.Run("link", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runLoad(context.Background(), newTestSession(t, nil), link, &out))
		assert.Equal(t, link, gjson.Get(out.String(), "gate.deep_link").String())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "results.json")
		data := `{"inputs":{"postcode":"CV47AL","epc-space-heating":4000,"floor-area":85,"temperature":20,"occupants":2,"tes-volume":0.5},"outputs":{"heat-pump":{}}}`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		var out bytes.Buffer
		require.NoError(t, runLoad(context.Background(), newTestSession(t, nil), path, &out))
		doc := out.String()
		assert.True(t, gjson.Get(doc, "gate.ready").Bool())
		assert.Equal(t, "file", gjson.Get(doc, "dispatch.output.backend").String())
	})

	t.Run("missing file", func(t *testing.T) {
		var out bytes.Buffer
		err := runLoad(context.Background(), newTestSession(t, nil), filepath.Join(t.TempDir(), "nope.json"), &out)
		require.ErrorIs(t, err, os.ErrNotExist)
		assert.Zero(t, out.Len())
	})
}
