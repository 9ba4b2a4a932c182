package form

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
	"github.com/couchcryptid/heatmyhome-form/internal/observability"
)

var (
	ErrSessionClosed    = errors.New("session closed")
	ErrNeighbourClosed  = errors.New("neighbour search is not open")
	ErrUnknownOption    = errors.New("unknown address option")
	ErrPrimaryOwned     = errors.New("field already set from the primary address")
	ErrNoNeighbourValue = errors.New("neighbour certificate has no value for field")
	ErrNotApplicable    = errors.New("field cannot be filled from a neighbour")
	ErrIncompleteImport = errors.New("import must contain every required input")
	ErrMalformedImport  = errors.New("import is not a valid link or results file")

	errSuperseded = errors.New("superseded")
)

// Sequence slots beyond the per-field ones.
const (
	slotAddress = domain.NumFields + iota
	slotNeighbourAddress
	slotDispatch
	numSlots
)

// Deps are the collaborators a session resolves and dispatches through.
type Deps struct {
	Postcodes  domain.PostcodeLookup
	Directory  domain.CertificateDirectory
	Dispatcher *Dispatcher

	// PublicURL is the page shareable links point at; SimulateURL is the
	// simulate API endpoint rendered alongside the request.
	PublicURL    string
	SimulateURL  string
	Optimisation bool

	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// FieldState is the validation state of one input.
type FieldState struct {
	Raw       string          `json:"raw"`
	Committed string          `json:"committed,omitempty"`
	Validity  domain.Validity `json:"validity"`
	Reason    domain.Warning  `json:"reason,omitempty"`
	Warning   domain.Warning  `json:"warning,omitempty"`
	Source    domain.Source   `json:"source,omitempty"`
}

// ManualEntry records which certificate fields the user may type directly.
type ManualEntry struct {
	SpaceHeating bool `json:"epc-space-heating"`
	FloorArea    bool `json:"floor-area"`
}

// Resolution is the postcode-scoped state of a session. It is reset whenever
// the postcode is cleared or edited.
type Resolution struct {
	Jurisdiction        domain.Jurisdiction `json:"jurisdiction,omitempty"`
	DirectoryReachable  bool                `json:"directory_reachable"`
	DirectoryErrored    bool                `json:"directory_errored"`
	SelectedCertificate string              `json:"selected_certificate,omitempty"`
	Completeness        domain.Completeness `json:"completeness,omitempty"`
	Address             Selector            `json:"address"`
	ManualEntry         ManualEntry         `json:"manual_entry"`
	Neighbour           *NeighbourContext   `json:"neighbour,omitempty"`
}

// Session is one user's form. All state is guarded by mu, which is never held
// across a registry or simulation call.
type Session struct {
	id     string
	deps   Deps
	rules  [domain.NumFields]Rule
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	fields       [domain.NumFields]FieldState
	snapshot     domain.Snapshot
	res          Resolution
	notices      []domain.Notice
	gate         Gate
	optimisation bool
	dispatch     DispatchState
	seq          [numSlots]uint64
	lastActive   time.Time
	closed       bool
}

// NewSession creates an empty form session.
func NewSession(id string, deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:           id,
		deps:         deps,
		rules:        buildRules(),
		logger:       deps.Logger.With("session", id),
		ctx:          ctx,
		cancel:       cancel,
		snapshot:     domain.Snapshot{},
		res:          Resolution{DirectoryReachable: true},
		optimisation: deps.Optimisation,
		dispatch:     DispatchState{Status: DispatchIdle},
		lastActive:   domain.Clock().Now(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Validate edits a field and runs its validation chain to completion.
// applyTransform marks a committed change (as opposed to a keystroke): it
// clamps and rounds numeric input and makes a malformed postcode show its
// warning.
func (s *Session) Validate(ctx context.Context, f domain.FieldID, raw string, applyTransform bool) error {
	if !f.Valid() {
		return fmt.Errorf("unknown field %d", int(f))
	}
	if f.Neighbour() {
		s.mu.Lock()
		open := s.res.Neighbour != nil
		s.mu.Unlock()
		if !open {
			return ErrNeighbourClosed
		}
	}
	return s.runChain(ctx, f, raw, chainOpts{transform: applyTransform, source: domain.SourceUser})
}

// Field returns a copy of a field's state.
func (s *Session) Field(f domain.FieldID) FieldState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields[f]
}

// Snapshot returns a copy of the committed parameters.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// Resolution returns a copy of the postcode-scoped state.
func (s *Session) Resolution() Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.res.clone()
}

// Notices returns the non-blocking messages currently shown.
func (s *Session) Notices() []domain.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notice(nil), s.notices...)
}

// SetOptimisation toggles the simulator's optimisation pass.
func (s *Session) SetOptimisation(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optimisation = on
	s.evaluateGateLocked()
}

// LastActive reports when the session was last edited.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Close ends the session. In-flight lookups and submissions are abandoned and
// their results ignored.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for i := range s.seq {
		s.seq[i]++
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (r Resolution) clone() Resolution {
	out := r
	out.Address = r.Address.clone()
	if r.Neighbour != nil {
		n := *r.Neighbour
		n.Address = r.Neighbour.Address.clone()
		n.Scope = append([]domain.FieldID(nil), r.Neighbour.Scope...)
		out.Neighbour = &n
	}
	return out
}

// Attempt is one run of a validation chain or resolver. Its side effects are
// applied only while it is still the latest attempt for its slot.
type Attempt struct {
	s         *Session
	slot      int
	seq       uint64
	source    domain.Source
	change    bool
	importing bool
}

func (a *Attempt) currentLocked() bool {
	return !a.s.closed && a.s.seq[a.slot] == a.seq
}

// Current reports whether no newer attempt has started for the same slot.
func (a *Attempt) Current() bool {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.currentLocked()
}

// Apply runs fn under the session lock if the attempt is still current.
func (a *Attempt) Apply(fn func(s *Session)) bool {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if !a.currentLocked() {
		return false
	}
	fn(a.s)
	return true
}

// Read runs fn under the session lock.
func (a *Attempt) Read(fn func(s *Session)) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	fn(a.s)
}

type chainOpts struct {
	transform bool
	source    domain.Source
	importing bool
	// claim runs under the lock before the attempt starts. It may veto the
	// attempt or supply the value to validate.
	claim func(s *Session) (string, error)
}

// runChain starts a new attempt for f, runs its conditions in order and
// commits the verdict if no newer attempt has started meanwhile.
func (s *Session) runChain(ctx context.Context, f domain.FieldID, raw string, opts chainOpts) error {
	rule := s.rules[f]

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if opts.claim != nil {
		v, err := opts.claim(s)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		raw = v
	}
	s.seq[f]++
	at := &Attempt{s: s, slot: int(f), seq: s.seq[f], source: opts.source, change: opts.transform, importing: opts.importing}
	s.touchLocked()
	if rule.OnEdit != nil {
		rule.OnEdit(s)
	}

	value := raw
	if value != "" && rule.Normalize != nil {
		value = rule.Normalize(value)
	}
	if value != "" && opts.transform && rule.Transform != nil {
		value = rule.Transform(value)
	}
	s.removeParamLocked(f)
	if value == "" {
		s.fields[f] = FieldState{Validity: domain.Unvalidated}
		s.evaluateGateLocked()
		s.mu.Unlock()
		return nil
	}
	s.fields[f] = FieldState{Raw: value, Validity: domain.Pending}
	s.evaluateGateLocked()
	s.mu.Unlock()

	outcome := Success()
	for _, c := range rule.Conditions {
		outcome = c.Check(ctx, at, value)
		if !outcome.OK() {
			break
		}
		if !at.Current() {
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !at.currentLocked() {
		s.discardLocked(f.String())
		return nil
	}
	st := &s.fields[f]
	if outcome.OK() {
		*st = FieldState{Raw: value, Committed: value, Validity: domain.Valid, Source: opts.source}
		if p, ok := f.Param(); ok {
			s.snapshot[p] = domain.ParseValue(value)
		}
	} else {
		*st = FieldState{Raw: value, Validity: domain.Invalid, Reason: outcome.Reason, Warning: outcome.Shown()}
	}
	s.evaluateGateLocked()
	return nil
}

func (s *Session) discardLocked(slot string) {
	s.logger.Debug("discarding stale completion", "slot", slot)
	if s.deps.Metrics != nil {
		s.deps.Metrics.StaleCompletions.WithLabelValues(slot).Inc()
	}
}

func (s *Session) touchLocked() {
	s.lastActive = domain.Clock().Now()
}

func (s *Session) removeParamLocked(f domain.FieldID) {
	if p, ok := f.Param(); ok {
		delete(s.snapshot, p)
	}
}

// resetFieldLocked clears a field and supersedes any attempt on it.
func (s *Session) resetFieldLocked(f domain.FieldID) {
	s.seq[f]++
	s.fields[f] = FieldState{Validity: domain.Unvalidated}
	s.removeParamLocked(f)
}

func (s *Session) addNoticeLocked(n domain.Notice) {
	for _, have := range s.notices {
		if have == n {
			return
		}
	}
	s.notices = append(s.notices, n)
}

func (s *Session) removeNoticesLocked(ns ...domain.Notice) {
	kept := s.notices[:0]
	for _, have := range s.notices {
		drop := false
		for _, n := range ns {
			if have == n {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, have)
		}
	}
	s.notices = kept
}
