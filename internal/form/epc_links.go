package form

import (
	"net/url"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
)

const (
	scottishRegisterURL = "https://www.scottishepcregister.org.uk"
	certificatePageURL  = "https://find-energy-certificate.service.gov.uk/energy-certificate/"
	postcodeSearchURL   = "https://find-energy-certificate.service.gov.uk/find-a-certificate/search-by-postcode?postcode="
	registryLandingURL  = "https://www.gov.uk/find-energy-certificate"
)

// EPCLinks are the registry pages a user can open to check their data.
type EPCLinks struct {
	Primary   string `json:"primary"`
	Neighbour string `json:"neighbour,omitempty"`
}

func (s *Session) epcLinksLocked() EPCLinks {
	links := EPCLinks{
		Primary: epcLink(s.res.Jurisdiction, s.res.SelectedCertificate, s.fields[domain.FieldPostcode]),
	}
	if n := s.res.Neighbour; n != nil {
		links.Neighbour = epcLink(domain.JurisdictionUnknown, n.SelectedCertificate, s.fields[domain.FieldNeighbourPostcode])
	}
	return links
}

func epcLink(j domain.Jurisdiction, certificate string, postcode FieldState) string {
	switch {
	case j == domain.JurisdictionScotland:
		return scottishRegisterURL
	case certificate != "":
		return certificatePageURL + url.PathEscape(certificate)
	case postcode.Validity == domain.Valid:
		return postcodeSearchURL + url.QueryEscape(postcode.Committed)
	default:
		return registryLandingURL
	}
}

// EPCLinks returns the registry pages for the current resolution.
func (s *Session) EPCLinks() EPCLinks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epcLinksLocked()
}
