package form

import (
	"context"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
)

// resetResolutionLocked drops everything derived from the previous postcode.
// Attempts on the address selectors and dependent fields are superseded so
// their late results are ignored.
func (s *Session) resetResolutionLocked() {
	s.res = Resolution{DirectoryReachable: true}
	s.seq[slotAddress]++
	s.seq[slotNeighbourAddress]++
	for _, f := range []domain.FieldID{
		domain.FieldSpaceHeating,
		domain.FieldFloorArea,
		domain.FieldNeighbourPostcode,
		domain.FieldNeighbourSpaceHeating,
		domain.FieldNeighbourFloorArea,
	} {
		s.resetFieldLocked(f)
	}
	delete(s.snapshot, domain.ParamLatitude)
	delete(s.snapshot, domain.ParamLongitude)
	s.notices = nil
}

// checkPostcodeFormat rejects anything that is not a UK postcode shape before
// any registry is called. While the user is still typing the failure is
// silent.
func checkPostcodeFormat(_ context.Context, at *Attempt, value string) Outcome {
	if domain.MatchPostcodeFormat(value) {
		return Success()
	}
	if at.change {
		return Warn(domain.WarnFormat)
	}
	return NoDisplay(domain.WarnFormat)
}

func (s *Session) lookupPostcode(ctx context.Context, f domain.FieldID, value string) (domain.PostcodeResult, Outcome) {
	res, err := s.deps.Postcodes.LookupPostcode(ctx, value)
	if err != nil {
		s.logger.Warn("postcode lookup failed", "field", f.String(), "postcode", value, "error", err)
		return res, Warn(domain.Classify(err, domain.WarnLookupFailed))
	}
	return res, Success()
}

// geocodePrimary commits the postcode's coordinates and jurisdiction.
func geocodePrimary(ctx context.Context, at *Attempt, value string) Outcome {
	s := at.s
	res, out := s.lookupPostcode(ctx, domain.FieldPostcode, value)
	if !out.OK() {
		return out
	}
	if !res.HasCoordinates {
		s.logger.Warn("postcode has no coordinates", "postcode", value)
		return Warn(domain.WarnLookupFailed)
	}
	at.Apply(func(s *Session) {
		s.res.Jurisdiction = res.Jurisdiction()
		s.snapshot[domain.ParamLatitude] = domain.Number(res.Latitude)
		s.snapshot[domain.ParamLongitude] = domain.Number(res.Longitude)
		if s.res.Jurisdiction == domain.JurisdictionScotland {
			s.addNoticeLocked(domain.NoticeScottishPostcode)
		}
	})
	return Success()
}

// geocodeNeighbour records the neighbour's jurisdiction only.
func geocodeNeighbour(ctx context.Context, at *Attempt, value string) Outcome {
	s := at.s
	res, out := s.lookupPostcode(ctx, domain.FieldNeighbourPostcode, value)
	if !out.OK() {
		return out
	}
	at.Apply(func(s *Session) {
		n := s.res.Neighbour
		if n == nil {
			return
		}
		n.Jurisdiction = res.Jurisdiction()
		if n.Jurisdiction == domain.JurisdictionScotland {
			s.addNoticeLocked(domain.NoticeNeighbourScottish)
		}
	})
	return Success()
}
