package main

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
	"github.com/couchcryptid/heatmyhome-form/internal/form"
)

// answers is a scripted session. Fields are keyed by field name, for example:
//
//	postcode: CV4 7AL
//	address: 0123-4567-8910-1112-1314
//	fields:
//	  temperature: 20
//	  occupants: 2
//	  tes-volume: 0.5
//	neighbour:
//	  postcode: CV4 7AW
//	  address: 2222-3333-4444-5555-6666
type answers struct {
	Postcode     string            `yaml:"postcode"`
	Address      string            `yaml:"address"`
	Fields       map[string]string `yaml:"fields"`
	Neighbour    *neighbourAnswers `yaml:"neighbour"`
	Optimisation *bool             `yaml:"optimisation"`
}

type neighbourAnswers struct {
	Postcode string `yaml:"postcode"`
	Address  string `yaml:"address"`
}

func parseAnswers(data []byte) (answers, error) {
	var a answers
	if err := yaml.Unmarshal(data, &a); err != nil {
		return answers{}, fmt.Errorf("parse answers: %w", err)
	}
	for name := range a.Fields {
		f, err := domain.ParseFieldID(name)
		if err != nil {
			return answers{}, fmt.Errorf("parse answers: %w", err)
		}
		if f == domain.FieldPostcode || f.Neighbour() {
			return answers{}, fmt.Errorf("parse answers: %s belongs outside fields", name)
		}
	}
	return a, nil
}

// apply replays the answers in form order: postcode, address, the remaining
// fields, then the neighbour search.
func (a answers) apply(ctx context.Context, s *form.Session) error {
	if a.Postcode != "" {
		if err := s.Validate(ctx, domain.FieldPostcode, a.Postcode, true); err != nil {
			return err
		}
	}
	if a.Address != "" {
		if err := s.SelectAddress(ctx, a.Address); err != nil {
			return err
		}
	}
	for _, f := range domain.AllFields() {
		v, ok := a.Fields[f.String()]
		if !ok {
			continue
		}
		if err := s.Validate(ctx, f, v, true); err != nil {
			return err
		}
	}
	if n := a.Neighbour; n != nil {
		if n.Postcode != "" {
			if err := s.Validate(ctx, domain.FieldNeighbourPostcode, n.Postcode, true); err != nil {
				return err
			}
		}
		if n.Address != "" {
			if err := s.SelectNeighbourAddress(ctx, n.Address); err != nil {
				return err
			}
		}
	}
	if a.Optimisation != nil {
		s.SetOptimisation(*a.Optimisation)
	}
	return nil
}
