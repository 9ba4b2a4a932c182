package form

import (
	"context"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
)

// Address selector option values besides certificate IDs.
const (
	OptionSelect    = "select"
	OptionNotListed = "not-listed"
)

// Option is one entry of an address selector.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Selector is an address drop-down built from the certificate directory.
type Selector struct {
	Options  []Option                    `json:"options,omitempty"`
	Entries  []domain.AddressCertificate `json:"entries,omitempty"`
	Selected string                      `json:"selected,omitempty"`
	Validity domain.Validity             `json:"validity"`
	Warning  domain.Warning              `json:"warning,omitempty"`
}

// Visible reports whether the directory produced a list to choose from.
func (sel Selector) Visible() bool { return len(sel.Options) > 0 }

func (sel Selector) has(option string) bool {
	for _, o := range sel.Options {
		if o.Value == option {
			return true
		}
	}
	return false
}

func (sel Selector) clone() Selector {
	out := sel
	out.Options = append([]Option(nil), sel.Options...)
	out.Entries = append([]domain.AddressCertificate(nil), sel.Entries...)
	return out
}

// newSelector title-cases the directory entries and prepends the sentinels.
// The neighbour selector has no "Address Not Listed" escape hatch.
func newSelector(entries []domain.AddressCertificate, notListed bool) Selector {
	sel := Selector{
		Options:  []Option{{Value: OptionSelect, Label: domain.SelectAddressLabel}},
		Entries:  make([]domain.AddressCertificate, 0, len(entries)),
		Selected: OptionSelect,
	}
	if notListed {
		sel.Options = append(sel.Options, Option{Value: OptionNotListed, Label: domain.AddressNotListedLabel})
	}
	for _, e := range entries {
		addr := domain.FormatAddress(e.Address)
		sel.Entries = append(sel.Entries, domain.AddressCertificate{Address: addr, CertificateID: e.CertificateID})
		sel.Options = append(sel.Options, Option{Value: e.CertificateID, Label: domain.ShortAddress(addr)})
	}
	return sel
}

// resolveDirectory lists the addresses registered under the postcode. It
// never fails the postcode: an unreachable or erroring directory only unlocks
// manual entry further down the chain.
func resolveDirectory(ctx context.Context, at *Attempt, value string) Outcome {
	s := at.s
	var scottish bool
	at.Read(func(s *Session) { scottish = s.res.Jurisdiction == domain.JurisdictionScotland })
	if scottish || at.importing {
		return Success()
	}

	entries, err := s.deps.Directory.AddressesByPostcode(ctx, value)
	if err != nil {
		s.logger.Warn("certificate directory lookup failed", "postcode", value, "error", err)
		at.Apply(func(s *Session) {
			if domain.IsConnectivity(err) {
				s.res.DirectoryReachable = false
				s.addNoticeLocked(domain.NoticeDirectoryUnreachable)
			} else {
				s.res.DirectoryErrored = true
				s.addNoticeLocked(domain.NoticeDirectoryError)
			}
		})
		return Success()
	}
	at.Apply(func(s *Session) {
		s.res.Address = newSelector(entries, true)
	})
	return Success()
}

// unlockManualFallback opens manual entry of both certificate fields when no
// certificate can be looked up.
func unlockManualFallback(_ context.Context, at *Attempt, _ string) Outcome {
	at.Apply(func(s *Session) {
		r := &s.res
		if r.Jurisdiction == domain.JurisdictionScotland || !r.DirectoryReachable || r.DirectoryErrored {
			r.ManualEntry = ManualEntry{SpaceHeating: true, FloorArea: true}
		}
	})
	return Success()
}

func resolveNeighbourDirectory(ctx context.Context, at *Attempt, value string) Outcome {
	s := at.s
	var skip bool
	at.Read(func(s *Session) {
		n := s.res.Neighbour
		skip = n == nil || n.Jurisdiction == domain.JurisdictionScotland
	})
	if skip {
		return Success()
	}

	entries, err := s.deps.Directory.AddressesByPostcode(ctx, value)
	if err != nil {
		s.logger.Warn("neighbour directory lookup failed", "postcode", value, "error", err)
	}
	at.Apply(func(s *Session) {
		n := s.res.Neighbour
		if n == nil {
			return
		}
		switch {
		case err == nil:
			n.Address = newSelector(entries, false)
		case domain.IsConnectivity(err):
			n.DirectoryReachable = false
			s.addNoticeLocked(domain.NoticeNeighbourUnreachable)
		default:
			n.DirectoryErrored = true
			s.addNoticeLocked(domain.NoticeNeighbourDirectoryErr)
		}
	})
	return Success()
}

// unlockNeighbourFallback opens manual entry of the primary fields when the
// neighbour cannot be looked up either.
func unlockNeighbourFallback(_ context.Context, at *Attempt, _ string) Outcome {
	at.Apply(func(s *Session) {
		n := s.res.Neighbour
		if n == nil {
			return
		}
		if n.Jurisdiction == domain.JurisdictionScotland || !n.DirectoryReachable || n.DirectoryErrored {
			s.res.ManualEntry = ManualEntry{SpaceHeating: true, FloorArea: true}
		}
	})
	return Success()
}
