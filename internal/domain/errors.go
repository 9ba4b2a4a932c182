package domain

import (
	"errors"
	"fmt"
)

// Warning is the reason attached to an invalid field or selector. At most one
// warning is shown per field at a time.
type Warning string

const (
	WarnNone            Warning = ""
	WarnFormat          Warning = "format"
	WarnRange           Warning = "range"
	WarnConnectivity    Warning = "connectivity"
	WarnLookupFailed    Warning = "lookup-failed"
	WarnDirectoryError  Warning = "directory-error"
	WarnNotListed       Warning = "not-listed"
	WarnUnknownAddress  Warning = "unknown-address"
	WarnNeighbourNoData Warning = "neighbour-no-data"
	WarnTimeout         Warning = "timeout"
)

// Notice is a non-blocking message shown alongside the form.
type Notice string

const (
	NoticeScottishPostcode      Notice = "scottish-postcode"
	NoticeDirectoryUnreachable  Notice = "directory-unreachable"
	NoticeDirectoryError        Notice = "directory-error"
	NoticeAddressFilled         Notice = "address-filled"
	NoticeMissingData           Notice = "missing-data"
	NoticeNeighbourScottish     Notice = "neighbour-scottish-postcode"
	NoticeNeighbourUnreachable  Notice = "neighbour-directory-unreachable"
	NoticeNeighbourDirectoryErr Notice = "neighbour-directory-error"
)

// ErrConnectivity marks a failure to reach a remote service at all, as
// opposed to the service answering with an error.
var ErrConnectivity = errors.New("service unreachable")

// ErrSimulationFailed is returned by a backend that ran but produced nothing.
var ErrSimulationFailed = errors.New("simulation failed")

// ServiceError is a logical error reported by a reachable remote service.
type ServiceError struct {
	Service string
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Service, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.Status, e.Message)
}

// IsConnectivity reports whether err is a transport failure.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrConnectivity)
}

// Classify maps an adapter error to the warning shown to the user. svcWarn is
// the warning used for logical service errors, which differs per resolver.
func Classify(err error, svcWarn Warning) Warning {
	switch {
	case err == nil:
		return WarnNone
	case IsConnectivity(err):
		return WarnConnectivity
	default:
		return svcWarn
	}
}

// DispatchKind classifies a failed simulation submission.
type DispatchKind string

const (
	DispatchNotReady     DispatchKind = "not-ready"
	DispatchConnectivity DispatchKind = "connectivity"
	DispatchServiceError DispatchKind = "service-error"
	DispatchBusy         DispatchKind = "busy"
	DispatchFailed       DispatchKind = "failed"
	DispatchTimeout      DispatchKind = "timeout"
)

// BusyMessagePrefix starts the error the simulate API returns when its
// runtime budget is exhausted by other requests.
const BusyMessagePrefix = "simulation exceeded allowed runtime"

// DispatchError is returned when a simulation submission does not produce a
// result.
type DispatchError struct {
	Kind DispatchKind
	Err  error
}

func (e *DispatchError) Error() string {
	if e.Err == nil {
		return "dispatch " + string(e.Kind)
	}
	return fmt.Sprintf("dispatch %s: %v", e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// DispatchKindOf returns the kind of a dispatch error, or "" if err is not one.
func DispatchKindOf(err error) DispatchKind {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
