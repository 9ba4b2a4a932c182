package form

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
)

// NeighbourContext is the proxy flow used to backfill certificate fields the
// primary address could not supply. Its values never replace a primary field
// that is already valid.
type NeighbourContext struct {
	Scope               []domain.FieldID    `json:"scope"`
	Jurisdiction        domain.Jurisdiction `json:"jurisdiction,omitempty"`
	DirectoryReachable  bool                `json:"directory_reachable"`
	DirectoryErrored    bool                `json:"directory_errored"`
	Address             Selector            `json:"address"`
	SelectedCertificate string              `json:"selected_certificate,omitempty"`
	Warning             domain.Warning      `json:"warning,omitempty"`
}

func (n *NeighbourContext) inScope(f domain.FieldID) bool {
	for _, g := range n.Scope {
		if g == f {
			return true
		}
	}
	return false
}

var neighbourFields = []domain.FieldID{
	domain.FieldNeighbourPostcode,
	domain.FieldNeighbourSpaceHeating,
	domain.FieldNeighbourFloorArea,
}

// openNeighbourLocked starts the proxy flow from the primary postcode and its
// address list.
func (s *Session) openNeighbourLocked(scope []domain.FieldID) {
	s.closeNeighbourLocked()
	n := &NeighbourContext{
		Scope:              append([]domain.FieldID(nil), scope...),
		Jurisdiction:       s.res.Jurisdiction,
		DirectoryReachable: true,
	}
	if s.res.Address.Visible() {
		n.Address = newSelector(s.res.Address.Entries, false)
	}
	s.res.Neighbour = n

	pc := s.fields[domain.FieldPostcode]
	if pc.Validity == domain.Valid {
		s.fields[domain.FieldNeighbourPostcode] = FieldState{
			Raw:       pc.Committed,
			Committed: pc.Committed,
			Validity:  domain.Valid,
			Source:    pc.Source,
		}
	}
	s.logger.Info("neighbour search opened", "scope", fmt.Sprint(scope))
}

func (s *Session) closeNeighbourLocked() {
	s.res.Neighbour = nil
	s.seq[slotNeighbourAddress]++
	for _, f := range neighbourFields {
		s.resetFieldLocked(f)
	}
	s.removeNoticesLocked(
		domain.NoticeNeighbourScottish,
		domain.NoticeNeighbourUnreachable,
		domain.NoticeNeighbourDirectoryErr,
	)
}

// resetNeighbourLocked drops what the previous neighbour postcode resolved.
func (s *Session) resetNeighbourLocked() {
	s.seq[slotNeighbourAddress]++
	s.resetFieldLocked(domain.FieldNeighbourSpaceHeating)
	s.resetFieldLocked(domain.FieldNeighbourFloorArea)
	s.removeNoticesLocked(
		domain.NoticeNeighbourScottish,
		domain.NoticeNeighbourUnreachable,
		domain.NoticeNeighbourDirectoryErr,
	)
	n := s.res.Neighbour
	if n == nil {
		return
	}
	n.Jurisdiction = domain.JurisdictionUnknown
	n.DirectoryReachable = true
	n.DirectoryErrored = false
	n.Address = Selector{}
	n.SelectedCertificate = ""
	n.Warning = domain.WarnNone
}

// SelectNeighbourAddress chooses a neighbour's certificate and backfills the
// primary fields in scope that are not already valid. If the certificate
// lacks an estimate that is still needed the neighbour warning is raised and
// the primary address is left untouched.
func (s *Session) SelectNeighbourAddress(ctx context.Context, option string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	n := s.res.Neighbour
	if n == nil {
		s.mu.Unlock()
		return ErrNeighbourClosed
	}
	if !n.Address.has(option) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownOption, option)
	}
	s.seq[slotNeighbourAddress]++
	nseq := s.seq[slotNeighbourAddress]
	s.touchLocked()
	s.resetFieldLocked(domain.FieldNeighbourSpaceHeating)
	s.resetFieldLocked(domain.FieldNeighbourFloorArea)
	n.Warning = domain.WarnNone
	n.SelectedCertificate = ""
	n.Address.Selected = option
	n.Address.Warning = domain.WarnNone
	if option == OptionSelect {
		n.Address.Validity = domain.Unvalidated
		s.mu.Unlock()
		return nil
	}
	n.Address.Validity = domain.Valid
	n.SelectedCertificate = option
	s.mu.Unlock()

	text, err := s.deps.Directory.Certificate(ctx, option)

	s.mu.Lock()
	if s.closed || s.seq[slotNeighbourAddress] != nseq || s.res.Neighbour != n {
		s.discardLocked("neighbour-address")
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.logger.Warn("neighbour certificate lookup failed", "certificate", option, "error", err)
		n.Address.Validity = domain.Invalid
		n.Address.Warning = domain.Classify(err, domain.WarnUnknownAddress)
		s.mu.Unlock()
		return nil
	}
	rec := domain.ParseCertificate(text)
	var needed bool
	for _, f := range certificateFields {
		if n.inScope(f) && s.fields[f].Validity != domain.Valid && rec.Value(f) == nil {
			needed = true
		}
	}
	if needed {
		n.Warning = domain.WarnNeighbourNoData
	}
	s.mu.Unlock()

	claimNeighbour := func(want string) func(*Session) (string, error) {
		return func(s *Session) (string, error) {
			if s.seq[slotNeighbourAddress] != nseq {
				return "", errSuperseded
			}
			return want, nil
		}
	}
	for _, f := range certificateFields {
		v := rec.Value(f)
		if v == nil {
			continue
		}
		nf, _ := domain.NeighbourOf(f)
		err := s.runChain(ctx, nf, "", chainOpts{source: domain.SourceCertificate, claim: claimNeighbour(domain.FormatNumber(*v))})
		if errors.Is(err, errSuperseded) {
			return nil
		}
		if err != nil {
			return err
		}
	}

	for _, f := range certificateFields {
		if !n.inScope(f) || rec.Value(f) == nil {
			continue
		}
		err := s.commitNeighbour(ctx, f, nseq)
		switch {
		case err == nil, errors.Is(err, ErrPrimaryOwned):
		case errors.Is(err, ErrNoNeighbourValue):
			// The estimate was present but rejected, e.g. out of range.
			s.mu.Lock()
			if s.res.Neighbour == n && s.seq[slotNeighbourAddress] == nseq {
				n.Warning = domain.WarnNeighbourNoData
			}
			s.mu.Unlock()
		case errors.Is(err, errSuperseded), errors.Is(err, ErrNeighbourClosed):
			return nil
		default:
			return err
		}
	}
	return nil
}

// ApplyNeighbour copies the neighbour's value for a certificate field into
// the primary field, unless the primary field is already valid.
func (s *Session) ApplyNeighbour(ctx context.Context, f domain.FieldID) error {
	if _, ok := domain.NeighbourOf(f); !ok || f == domain.FieldPostcode {
		return fmt.Errorf("%w: %s", ErrNotApplicable, f)
	}
	return s.commitNeighbour(ctx, f, 0)
}

// commitNeighbour runs the primary field's chain with the neighbour value.
// The ownership check happens under the same lock that starts the attempt.
// nseq, when non-zero, ties the commit to one neighbour address selection.
func (s *Session) commitNeighbour(ctx context.Context, f domain.FieldID, nseq uint64) error {
	nf, _ := domain.NeighbourOf(f)
	return s.runChain(ctx, f, "", chainOpts{
		source: domain.SourceNeighbour,
		claim: func(s *Session) (string, error) {
			if s.res.Neighbour == nil {
				return "", ErrNeighbourClosed
			}
			if nseq != 0 && s.seq[slotNeighbourAddress] != nseq {
				return "", errSuperseded
			}
			if s.fields[f].Validity == domain.Valid {
				return "", ErrPrimaryOwned
			}
			st := s.fields[nf]
			if st.Validity != domain.Valid {
				return "", ErrNoNeighbourValue
			}
			return st.Committed, nil
		},
	})
}

// CancelNeighbour abandons the proxy flow. Manual entry of both certificate
// fields is restored so the user can still complete the form; the primary
// address selection is left as it was.
func (s *Session) CancelNeighbour() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.res.Neighbour == nil {
		return ErrNeighbourClosed
	}
	s.closeNeighbourLocked()
	s.res.ManualEntry = ManualEntry{SpaceHeating: true, FloorArea: true}
	s.touchLocked()
	s.evaluateGateLocked()
	s.logger.Info("neighbour search cancelled")
	return nil
}
