package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
	"github.com/couchcryptid/heatmyhome-form/internal/form"
)

type resolveReport struct {
	Postcode     form.FieldState     `json:"postcode"`
	Jurisdiction domain.Jurisdiction `json:"jurisdiction,omitempty"`
	Snapshot     domain.Snapshot     `json:"snapshot"`
	Addresses    form.Selector       `json:"addresses"`
	ManualEntry  form.ManualEntry    `json:"manual_entry"`
	Notices      []domain.Notice     `json:"notices,omitempty"`
	EPCLinks     form.EPCLinks       `json:"epc_links"`
}

func runResolve(ctx context.Context, s *form.Session, postcode string, out io.Writer) error {
	if err := s.Validate(ctx, domain.FieldPostcode, postcode, true); err != nil {
		return err
	}
	v := s.View()
	return printJSON(out, resolveReport{
		Postcode:     v.Fields[domain.FieldPostcode.String()],
		Jurisdiction: v.Resolution.Jurisdiction,
		Snapshot:     v.Snapshot,
		Addresses:    v.Resolution.Address,
		ManualEntry:  v.Resolution.ManualEntry,
		Notices:      v.Notices,
		EPCLinks:     v.EPCLinks,
	})
}

type certificateReport struct {
	ID           string                   `json:"certificate"`
	Record       domain.CertificateRecord `json:"record"`
	Completeness domain.Completeness      `json:"completeness"`
}

func runCertificate(ctx context.Context, dir domain.CertificateDirectory, id string, out io.Writer) error {
	text, err := dir.Certificate(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch certificate %s: %w", id, err)
	}
	rec := domain.ParseCertificate(text)
	return printJSON(out, certificateReport{ID: id, Record: rec, Completeness: rec.Completeness()})
}

// runLoad imports src as a saved-results file when it names a readable file,
// and as a shareable link otherwise.
func runLoad(ctx context.Context, s *form.Session, src string, out io.Writer) error {
	data, err := os.ReadFile(src)
	switch {
	case err == nil:
		err = s.ImportFile(ctx, data)
	case strings.Contains(src, "="):
		err = s.ImportLink(ctx, src)
	default:
		return err
	}
	if err != nil {
		return err
	}
	return printJSON(out, s.View())
}

func runFill(ctx context.Context, s *form.Session, a answers, submit bool, out io.Writer) error {
	if err := a.apply(ctx, s); err != nil {
		return err
	}
	if submit {
		if _, err := s.Submit(ctx); err != nil {
			// The view below carries the classified failure.
			_ = printJSON(out, s.View())
			return err
		}
	}
	return printJSON(out, s.View())
}
