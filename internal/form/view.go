package form

import (
	"github.com/couchcryptid/heatmyhome-form/internal/domain"
)

// View is a point-in-time copy of a session for rendering.
type View struct {
	ID           string                `json:"id"`
	Fields       map[string]FieldState `json:"fields"`
	Snapshot     domain.Snapshot       `json:"snapshot"`
	Resolution   Resolution            `json:"resolution"`
	Notices      []domain.Notice       `json:"notices"`
	Gate         Gate                  `json:"gate"`
	Optimisation bool                  `json:"enable_optimisation"`
	Dispatch     DispatchState         `json:"dispatch"`
	EPCLinks     EPCLinks              `json:"epc_links"`
}

// View snapshots the whole session under one lock.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := make(map[string]FieldState, domain.NumFields)
	for _, f := range domain.AllFields() {
		fields[f.String()] = s.fields[f]
	}
	g := s.gate
	if g.Request != nil {
		req := *g.Request
		g.Request = &req
	}
	notices := append([]domain.Notice{}, s.notices...)
	return View{
		ID:           s.id,
		Fields:       fields,
		Snapshot:     s.snapshot.Clone(),
		Resolution:   s.res.clone(),
		Notices:      notices,
		Gate:         g,
		Optimisation: s.optimisation,
		Dispatch:     s.dispatch,
		EPCLinks:     s.epcLinksLocked(),
	}
}
