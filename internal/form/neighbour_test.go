package form

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
)

// partialFixture selects a certificate that has a space heating estimate but
// no floor area.
func partialFixture(t *testing.T) *fixture {
	t.Helper()
	fx := newFixture(t)
	fx.validate(t, domain.FieldPostcode, "CV4 7AL")
	require.NoError(t, fx.session.SelectAddress(context.Background(), "cert-3"))
	return fx
}

func TestExtract_PartialCertificateOpensNeighbour(t *testing.T) {
	fx := partialFixture(t)

	sh := fx.session.Field(domain.FieldSpaceHeating)
	assert.Equal(t, domain.Valid, sh.Validity)
	assert.Equal(t, "3500", sh.Committed)
	assert.Equal(t, domain.Unvalidated, fx.session.Field(domain.FieldFloorArea).Validity)

	res := fx.session.Resolution()
	assert.Equal(t, domain.MissingFloorArea, res.Completeness)
	assert.Equal(t, ManualEntry{SpaceHeating: true, FloorArea: true}, res.ManualEntry)
	require.NotNil(t, res.Neighbour)
	assert.Equal(t, []domain.FieldID{domain.FieldFloorArea}, res.Neighbour.Scope)
	assert.Equal(t, []domain.Notice{domain.NoticeAddressFilled, domain.NoticeMissingData}, fx.session.Notices())

	// The neighbour search starts from the primary postcode and its list,
	// without the "not listed" option.
	npc := fx.session.Field(domain.FieldNeighbourPostcode)
	assert.Equal(t, domain.Valid, npc.Validity)
	assert.Equal(t, "CV47AL", npc.Committed)
	require.Len(t, res.Neighbour.Address.Options, 4)
	assert.Equal(t, OptionSelect, res.Neighbour.Address.Options[0].Value)
	assert.Equal(t, "cert-1", res.Neighbour.Address.Options[1].Value)
	assert.False(t, fx.session.Gate().Ready)
}

func TestExtract_EmptyCertificate(t *testing.T) {
	fx := newFixture(t)
	fx.validate(t, domain.FieldPostcode, "B33 8TH")
	require.NoError(t, fx.session.SelectAddress(context.Background(), "cert-b5"))

	res := fx.session.Resolution()
	assert.Equal(t, domain.MissingBoth, res.Completeness)
	require.NotNil(t, res.Neighbour)
	assert.Equal(t, []domain.FieldID{domain.FieldSpaceHeating, domain.FieldFloorArea}, res.Neighbour.Scope)
	assert.Equal(t, []domain.Notice{domain.NoticeMissingData}, fx.session.Notices())
}

func TestNeighbour_BackfillsMissingField(t *testing.T) {
	fx := partialFixture(t)
	ctx := context.Background()

	fx.validate(t, domain.FieldNeighbourPostcode, "CV4 7AW")
	res := fx.session.Resolution()
	require.NotNil(t, res.Neighbour)
	assert.Equal(t, domain.JurisdictionStandard, res.Neighbour.Jurisdiction)
	require.Len(t, res.Neighbour.Address.Options, 3)

	require.NoError(t, fx.session.SelectNeighbourAddress(ctx, "cert-10"))

	fa := fx.session.Field(domain.FieldFloorArea)
	assert.Equal(t, domain.Valid, fa.Validity)
	assert.Equal(t, "80", fa.Committed)
	assert.Equal(t, domain.SourceNeighbour, fa.Source)

	sh := fx.session.Field(domain.FieldSpaceHeating)
	assert.Equal(t, "3500", sh.Committed, "out-of-scope field keeps the primary value")
	assert.Equal(t, domain.SourceCertificate, sh.Source)

	assert.Equal(t, "80", fx.session.Field(domain.FieldNeighbourFloorArea).Committed)
	assert.Equal(t, "5000", fx.session.Field(domain.FieldNeighbourSpaceHeating).Committed)
	assert.Empty(t, fx.session.Resolution().Neighbour.Warning)
	assert.Equal(t,
		"https://find-energy-certificate.service.gov.uk/energy-certificate/cert-10",
		fx.session.EPCLinks().Neighbour)

	fx.fillManualInputs(t)
	g := fx.session.Gate()
	require.True(t, g.Ready)
	assert.Contains(t, g.DeepLink, "space_heating=3500&floor_area=80")
}

func TestNeighbour_CertificateWithoutNeededValue(t *testing.T) {
	fx := partialFixture(t)
	fx.validate(t, domain.FieldNeighbourPostcode, "CV4 7AW")

	require.NoError(t, fx.session.SelectNeighbourAddress(context.Background(), "cert-11"))

	res := fx.session.Resolution()
	require.NotNil(t, res.Neighbour)
	assert.Equal(t, domain.WarnNeighbourNoData, res.Neighbour.Warning)
	assert.Equal(t, domain.Unvalidated, fx.session.Field(domain.FieldFloorArea).Validity)
	assert.Equal(t, "3500", fx.session.Field(domain.FieldSpaceHeating).Committed)
	assert.Equal(t, "cert-3", res.Address.Selected, "primary selection is untouched")
}

func TestNeighbour_OutOfRangeValueRaisesNoData(t *testing.T) {
	fx := partialFixture(t)
	fx.validate(t, domain.FieldNeighbourPostcode, "CV4 7AW")
	fx.directory.certs["cert-10"] = domain.CertificateText{SpaceHeating: "5000 kWh per year", FloorArea: "20 square metres"}

	require.NoError(t, fx.session.SelectNeighbourAddress(context.Background(), "cert-10"))

	nfa := fx.session.Field(domain.FieldNeighbourFloorArea)
	assert.Equal(t, domain.Invalid, nfa.Validity)
	assert.Equal(t, domain.WarnRange, nfa.Reason)
	assert.Equal(t, domain.Unvalidated, fx.session.Field(domain.FieldFloorArea).Validity)
	res := fx.session.Resolution()
	require.NotNil(t, res.Neighbour)
	assert.Equal(t, domain.WarnNeighbourNoData, res.Neighbour.Warning)
	assert.Equal(t, "cert-3", res.Address.Selected)
}

func TestNeighbour_NeverOverwritesPrimary(t *testing.T) {
	fx := partialFixture(t)
	ctx := context.Background()

	fx.validate(t, domain.FieldFloorArea, "60")
	require.NoError(t, fx.session.SelectNeighbourAddress(ctx, "cert-2"))

	fa := fx.session.Field(domain.FieldFloorArea)
	assert.Equal(t, "60", fa.Committed)
	assert.Equal(t, domain.SourceUser, fa.Source)
	assert.Equal(t, "85", fx.session.Field(domain.FieldNeighbourFloorArea).Committed)

	err := fx.session.ApplyNeighbour(ctx, domain.FieldFloorArea)
	require.ErrorIs(t, err, ErrPrimaryOwned)
	assert.Equal(t, "60", fx.session.Field(domain.FieldFloorArea).Committed)
}

func TestApplyNeighbour(t *testing.T) {
	fx := partialFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.session.SelectNeighbourAddress(ctx, "cert-2"))
	require.Equal(t, "85", fx.session.Field(domain.FieldFloorArea).Committed)

	fx.validate(t, domain.FieldFloorArea, "")
	require.NoError(t, fx.session.ApplyNeighbour(ctx, domain.FieldFloorArea))
	fa := fx.session.Field(domain.FieldFloorArea)
	assert.Equal(t, domain.Valid, fa.Validity)
	assert.Equal(t, "85", fa.Committed)
	assert.Equal(t, domain.SourceNeighbour, fa.Source)

	require.ErrorIs(t, fx.session.ApplyNeighbour(ctx, domain.FieldTemperature), ErrNotApplicable)
	require.ErrorIs(t, fx.session.ApplyNeighbour(ctx, domain.FieldPostcode), ErrNotApplicable)
}

func TestApplyNeighbour_NoNeighbourValue(t *testing.T) {
	fx := partialFixture(t)
	err := fx.session.ApplyNeighbour(context.Background(), domain.FieldFloorArea)
	require.ErrorIs(t, err, ErrNoNeighbourValue)
}

func TestNeighbour_ScottishPostcode(t *testing.T) {
	fx := partialFixture(t)

	fx.validate(t, domain.FieldNeighbourPostcode, "EH1 1YZ")

	res := fx.session.Resolution()
	require.NotNil(t, res.Neighbour)
	assert.Equal(t, domain.JurisdictionScotland, res.Neighbour.Jurisdiction)
	assert.False(t, res.Neighbour.Address.Visible())
	assert.NotContains(t, fx.directory.addrCalls, "EH11YZ")
	assert.Contains(t, fx.session.Notices(), domain.NoticeNeighbourScottish)
	assert.Equal(t,
		"https://find-energy-certificate.service.gov.uk/find-a-certificate/search-by-postcode?postcode=EH11YZ",
		fx.session.EPCLinks().Neighbour)
}

func TestNeighbour_DirectoryUnreachable(t *testing.T) {
	fx := partialFixture(t)
	fx.directory.addrErrs["CV47AW"] = errNetwork("epc")

	fx.validate(t, domain.FieldNeighbourPostcode, "CV4 7AW")

	res := fx.session.Resolution()
	require.NotNil(t, res.Neighbour)
	assert.False(t, res.Neighbour.DirectoryReachable)
	assert.Equal(t, ManualEntry{SpaceHeating: true, FloorArea: true}, res.ManualEntry)
	assert.Contains(t, fx.session.Notices(), domain.NoticeNeighbourUnreachable)

	// A new neighbour postcode drops the previous failure.
	delete(fx.directory.addrErrs, "CV47AW")
	fx.validate(t, domain.FieldNeighbourPostcode, "CV4 7AW")
	assert.True(t, fx.session.Resolution().Neighbour.DirectoryReachable)
	assert.NotContains(t, fx.session.Notices(), domain.NoticeNeighbourUnreachable)
}

func TestNeighbour_CertificateFetchFailure(t *testing.T) {
	fx := partialFixture(t)
	fx.directory.certErrs["cert-1"] = errNetwork("epc")

	require.NoError(t, fx.session.SelectNeighbourAddress(context.Background(), "cert-1"))

	n := fx.session.Resolution().Neighbour
	require.NotNil(t, n)
	assert.Equal(t, domain.Invalid, n.Address.Validity)
	assert.Equal(t, domain.WarnConnectivity, n.Address.Warning)
	assert.Equal(t, domain.Unvalidated, fx.session.Field(domain.FieldFloorArea).Validity)
}

func TestCancelNeighbour(t *testing.T) {
	fx := partialFixture(t)
	fx.validate(t, domain.FieldNeighbourPostcode, "CV4 7AW")

	require.NoError(t, fx.session.CancelNeighbour())

	res := fx.session.Resolution()
	assert.Nil(t, res.Neighbour)
	assert.Equal(t, ManualEntry{SpaceHeating: true, FloorArea: true}, res.ManualEntry)
	assert.Equal(t, "cert-3", res.Address.Selected)
	assert.Equal(t, domain.Unvalidated, fx.session.Field(domain.FieldNeighbourPostcode).Validity)
	assert.Empty(t, fx.session.EPCLinks().Neighbour)

	require.ErrorIs(t, fx.session.CancelNeighbour(), ErrNeighbourClosed)
	require.ErrorIs(t, fx.session.SelectNeighbourAddress(context.Background(), "cert-10"), ErrNeighbourClosed)
	err := fx.session.Validate(context.Background(), domain.FieldNeighbourPostcode, "CV47AW", true)
	require.ErrorIs(t, err, ErrNeighbourClosed)
}

func TestSelectAddress_ClosesNeighbour(t *testing.T) {
	fx := partialFixture(t)
	require.NotNil(t, fx.session.Resolution().Neighbour)

	require.NoError(t, fx.session.SelectAddress(context.Background(), "cert-2"))

	assert.Nil(t, fx.session.Resolution().Neighbour)
	assert.Equal(t, []domain.Notice{domain.NoticeAddressFilled}, fx.session.Notices())
}
