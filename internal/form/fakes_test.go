package form

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
	"github.com/couchcryptid/heatmyhome-form/internal/observability"
)

const (
	testPublicURL   = "https://heatmyhome.ninja/simulator.html"
	testSimulateURL = "https://customapi.heatmyhome.ninja/simulate"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePostcodes answers from fixed tables. A gate channel for a postcode
// holds its answer until the channel is closed.
type fakePostcodes struct {
	mu      sync.Mutex
	results map[string]domain.PostcodeResult
	errs    map[string]error
	gates   map[string]chan struct{}
	calls   []string
}

func newFakePostcodes() *fakePostcodes {
	return &fakePostcodes{
		results: map[string]domain.PostcodeResult{},
		errs:    map[string]error{},
		gates:   map[string]chan struct{}{},
	}
}

func (f *fakePostcodes) add(pc, country string, lat, lon float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[pc] = domain.PostcodeResult{Latitude: lat, Longitude: lon, Country: country, HasCoordinates: true}
}

func (f *fakePostcodes) hold(pc string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[pc] = ch
	return ch
}

func (f *fakePostcodes) callCount(pc string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == pc {
			n++
		}
	}
	return n
}

func (f *fakePostcodes) LookupPostcode(ctx context.Context, pc string) (domain.PostcodeResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pc)
	gate := f.gates[pc]
	res, ok := f.results[pc]
	err := f.errs[pc]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.PostcodeResult{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.PostcodeResult{}, err
	}
	if !ok {
		return domain.PostcodeResult{}, &domain.ServiceError{Service: "postcodes.io", Status: 404, Message: "Postcode not found"}
	}
	return res, nil
}

// fakeDirectory is the certificate registry counterpart of fakePostcodes.
type fakeDirectory struct {
	mu        sync.Mutex
	addresses map[string][]domain.AddressCertificate
	addrErrs  map[string]error
	certs     map[string]domain.CertificateText
	certErrs  map[string]error
	certGates map[string]chan struct{}
	addrCalls []string
	certCalls []string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		addresses: map[string][]domain.AddressCertificate{},
		addrErrs:  map[string]error{},
		certs:     map[string]domain.CertificateText{},
		certErrs:  map[string]error{},
		certGates: map[string]chan struct{}{},
	}
}

func (f *fakeDirectory) holdCertificate(id string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.certGates[id] = ch
	return ch
}

func (f *fakeDirectory) addressCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.addrCalls)
}

func (f *fakeDirectory) AddressesByPostcode(_ context.Context, pc string) ([]domain.AddressCertificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addrCalls = append(f.addrCalls, pc)
	if err := f.addrErrs[pc]; err != nil {
		return nil, err
	}
	entries, ok := f.addresses[pc]
	if !ok {
		return nil, &domain.ServiceError{Service: "epc", Status: 404, Message: "no certificates"}
	}
	return entries, nil
}

func (f *fakeDirectory) Certificate(ctx context.Context, id string) (domain.CertificateText, error) {
	f.mu.Lock()
	f.certCalls = append(f.certCalls, id)
	gate := f.certGates[id]
	text, ok := f.certs[id]
	err := f.certErrs[id]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.CertificateText{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.CertificateText{}, err
	}
	if !ok {
		return domain.CertificateText{}, &domain.ServiceError{Service: "epc", Status: 404, Message: "unknown certificate"}
	}
	return text, nil
}

// fakeBackend replies with a fixed result, optionally waiting for release.
type fakeBackend struct {
	name    string
	result  json.RawMessage
	err     error
	release chan struct{}

	mu   sync.Mutex
	reqs []domain.SimulationRequest
}

func (b *fakeBackend) Name() string {
	if b.name == "" {
		return "fake"
	}
	return b.name
}

func (b *fakeBackend) Submit(ctx context.Context, req domain.SimulationRequest) (json.RawMessage, error) {
	b.mu.Lock()
	b.reqs = append(b.reqs, req)
	b.mu.Unlock()
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return b.result, b.err
}

func (b *fakeBackend) requests() []domain.SimulationRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.SimulationRequest(nil), b.reqs...)
}

// fixture wires a session to fakes loaded with a Coventry street, an
// Edinburgh postcode, and certificates of every completeness.
type fixture struct {
	postcodes *fakePostcodes
	directory *fakeDirectory
	backend   *fakeBackend
	metrics   *observability.Metrics
	session   *Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pc := newFakePostcodes()
	pc.add("CV47AL", "England", 52.3793, -1.5615)
	pc.add("CV47AW", "England", 52.3801, -1.5630)
	pc.add("B338TH", "England", 52.4862, -1.8904)
	pc.add("EH11YZ", "Scotland", 55.9521, -3.1965)

	dir := newFakeDirectory()
	dir.addresses["CV47AL"] = []domain.AddressCertificate{
		{Address: "1 GIBBET HILL ROAD, COVENTRY", CertificateID: "cert-1"},
		{Address: "2 GIBBET HILL ROAD, COVENTRY", CertificateID: "cert-2"},
		{Address: "3 GIBBET HILL ROAD, COVENTRY", CertificateID: "cert-3"},
	}
	dir.addresses["CV47AW"] = []domain.AddressCertificate{
		{Address: "10 KIRBY CORNER ROAD, COVENTRY", CertificateID: "cert-10"},
		{Address: "11 KIRBY CORNER ROAD, COVENTRY", CertificateID: "cert-11"},
	}
	dir.addresses["B338TH"] = []domain.AddressCertificate{
		{Address: "5 STECHFORD ROAD, BIRMINGHAM", CertificateID: "cert-b5"},
	}
	dir.certs["cert-1"] = domain.CertificateText{FloorArea: "72 square metres"}
	dir.certs["cert-2"] = domain.CertificateText{SpaceHeating: "4000 kWh per year", FloorArea: "85 square metres"}
	dir.certs["cert-3"] = domain.CertificateText{SpaceHeating: "3500 kWh per year"}
	dir.certs["cert-10"] = domain.CertificateText{SpaceHeating: "5000 kWh per year", FloorArea: "80 square metres"}
	dir.certs["cert-11"] = domain.CertificateText{SpaceHeating: "4200 kWh per year"}
	dir.certs["cert-b5"] = domain.CertificateText{}

	backend := &fakeBackend{result: json.RawMessage(`{"electric-boiler":{"none":{"operational_expenditure":812}}}`)}
	metrics := observability.NewMetricsForTesting()
	deps := Deps{
		Postcodes:    pc,
		Directory:    dir,
		Dispatcher:   NewDispatcher(backend, DefaultDispatchTimeout, metrics, testLogger()),
		PublicURL:    testPublicURL,
		SimulateURL:  testSimulateURL,
		Optimisation: true,
		Metrics:      metrics,
		Logger:       testLogger(),
	}
	s := NewSession("test-session", deps)
	t.Cleanup(s.Close)
	return &fixture{postcodes: pc, directory: dir, backend: backend, metrics: metrics, session: s}
}

func (fx *fixture) validate(t *testing.T, f domain.FieldID, raw string) {
	t.Helper()
	if err := fx.session.Validate(context.Background(), f, raw, true); err != nil {
		t.Fatalf("validate %s=%q: %v", f, raw, err)
	}
}

// fillManualInputs supplies the three inputs that never come from a registry.
func (fx *fixture) fillManualInputs(t *testing.T) {
	t.Helper()
	fx.validate(t, domain.FieldTemperature, "20")
	fx.validate(t, domain.FieldOccupants, "2")
	fx.validate(t, domain.FieldTESVolume, "0.5")
}

func errNetwork(op string) error {
	return fmt.Errorf("%w: %s: connection refused", domain.ErrConnectivity, op)
}
