package form

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
)

var certificateFields = []domain.FieldID{domain.FieldSpaceHeating, domain.FieldFloorArea}

// SelectAddress chooses an entry of the primary address selector: a
// certificate ID, OptionSelect or OptionNotListed. Choosing a certificate
// fetches it and commits whatever estimates it carries.
func (s *Session) SelectAddress(ctx context.Context, option string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	sel := &s.res.Address
	if !sel.has(option) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownOption, option)
	}
	s.seq[slotAddress]++
	addrSeq := s.seq[slotAddress]
	s.touchLocked()

	for _, f := range certificateFields {
		s.resetFieldLocked(f)
	}
	s.closeNeighbourLocked()
	s.res.SelectedCertificate = ""
	s.res.Completeness = ""
	s.res.ManualEntry = ManualEntry{}
	s.removeNoticesLocked(domain.NoticeAddressFilled, domain.NoticeMissingData)

	sel.Selected = option
	sel.Warning = domain.WarnNone
	switch option {
	case OptionSelect:
		sel.Validity = domain.Unvalidated
	case OptionNotListed:
		sel.Validity = domain.Invalid
		sel.Warning = domain.WarnNotListed
		s.res.ManualEntry = ManualEntry{SpaceHeating: true, FloorArea: true}
		s.openNeighbourLocked(certificateFields)
	default:
		sel.Validity = domain.Valid
		s.res.SelectedCertificate = option
	}
	s.evaluateGateLocked()
	s.mu.Unlock()

	if option == OptionSelect || option == OptionNotListed {
		return nil
	}
	return s.extract(ctx, addrSeq, option)
}

// extract fetches the selected certificate and commits its estimates through
// the validator. Missing estimates unlock manual entry and open the
// neighbour search scoped to them.
func (s *Session) extract(ctx context.Context, addrSeq uint64, id string) error {
	text, err := s.deps.Directory.Certificate(ctx, id)

	s.mu.Lock()
	if s.closed || s.seq[slotAddress] != addrSeq {
		s.discardLocked("address")
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.logger.Warn("certificate lookup failed", "certificate", id, "error", err)
		s.res.Address.Validity = domain.Invalid
		s.res.Address.Warning = domain.Classify(err, domain.WarnUnknownAddress)
		s.res.ManualEntry = ManualEntry{SpaceHeating: true, FloorArea: true}
		s.mu.Unlock()
		return nil
	}
	rec := domain.ParseCertificate(text)
	s.res.Completeness = rec.Completeness()
	s.res.ManualEntry = ManualEntry{SpaceHeating: true, FloorArea: true}
	if rec.Completeness() != domain.MissingBoth {
		s.addNoticeLocked(domain.NoticeAddressFilled)
	}
	if missing := rec.Missing(); len(missing) > 0 {
		s.addNoticeLocked(domain.NoticeMissingData)
		s.openNeighbourLocked(missing)
	}
	s.logger.Info("certificate extracted", "certificate", id, "completeness", string(rec.Completeness()))
	s.mu.Unlock()

	for _, f := range certificateFields {
		v := rec.Value(f)
		if v == nil {
			continue
		}
		value := domain.FormatNumber(*v)
		err := s.runChain(ctx, f, "", chainOpts{
			source: domain.SourceCertificate,
			claim: func(s *Session) (string, error) {
				if s.seq[slotAddress] != addrSeq {
					return "", errSuperseded
				}
				return value, nil
			},
		})
		if errors.Is(err, errSuperseded) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}
