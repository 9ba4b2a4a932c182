// Package form implements the HeatMyHome input form as a server-side session.
//
// A [Session] owns the state of every input, the postcode-scoped
// [Resolution] and the optional neighbour search. Editing a field runs its
// validation chain: a list of [Condition] values awaited strictly in order,
// the first failure marking the field invalid. The postcode chain is
//
//	format check → postcode registry → certificate directory → manual fallback
//
// and choosing an address fetches its certificate and commits the estimates
// it carries through the same validator.
//
// Registry calls run without the session lock. Each attempt captures a
// per-field (or per-selector) sequence number when it starts, and its side
// effects are applied only if no newer attempt has started since, so an old
// postcode's late answer can never overwrite a newer one.
//
// After every commit the submission gate is re-evaluated. While all six
// required inputs are valid the gate exposes a shareable link and the
// simulation request; [Session.Submit] sends that request through a
// [Dispatcher] with a bounded wait.
package form
