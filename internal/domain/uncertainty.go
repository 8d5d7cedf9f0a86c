package domain

import (
	"encoding/json"
	"fmt"
)

// PointUncertainty is the closed sum type describing point-level uncertainty.
// It is implemented only by Summary and NoUncertainty, which lets callers
// distinguish "computed but without a usable standard error" from
// "never computed".
type PointUncertainty interface {
	isPointUncertainty()
}

// IntervalEstimate is an optional interval around the point estimate.
// It is carried for reporting and never consulted by the engine.
type IntervalEstimate struct {
	Lower           *float64 `json:"lower,omitempty"`
	Upper           *float64 `json:"upper,omitempty"`
	ConfidenceLevel *float64 `json:"confidence_level,omitempty"`
	MethodRef       string   `json:"method_ref,omitempty"`
}

// Summary carries the sample size and standard error behind a measurement.
// Either field may be absent.
type Summary struct {
	SampleSize    *int              `json:"sample_size,omitempty"`
	StandardError *float64          `json:"standard_error,omitempty"`
	Interval      *IntervalEstimate `json:"interval,omitempty"`
	MethodRef     string            `json:"method_ref"`
}

func (Summary) isPointUncertainty() {}

// NoUncertainty records that uncertainty was never computed, and why.
type NoUncertainty struct {
	Reason string `json:"reason"`
}

func (NoUncertainty) isPointUncertainty() {}

// UncertaintySummary wraps the point uncertainty of a component.
// Distribution is an opaque payload forwarded untouched to consumers.
type UncertaintySummary struct {
	Point        PointUncertainty `json:"-"`
	Distribution map[string]any   `json:"-"`
}

// NewSummaryUncertainty builds an UncertaintySummary holding a Summary point.
func NewSummaryUncertainty(sampleSize *int, standardError *float64, methodRef string) *UncertaintySummary {
	return &UncertaintySummary{
		Point: Summary{
			SampleSize:    sampleSize,
			StandardError: standardError,
			MethodRef:     methodRef,
		},
	}
}

// NewNoUncertainty builds an UncertaintySummary holding a NoUncertainty point.
func NewNoUncertainty(reason string) *UncertaintySummary {
	return &UncertaintySummary{Point: NoUncertainty{Reason: reason}}
}

// Point type tags used on the wire.
const (
	pointTypeSummary       = "summary"
	pointTypeNoUncertainty = "no_uncertainty"
)

type pointEnvelope struct {
	Type string `json:"type"`
	Summary
	Reason string `json:"reason,omitempty"`
}

type uncertaintyWire struct {
	Point        *pointEnvelope `json:"point"`
	Distribution map[string]any `json:"distribution,omitempty"`
}

// MarshalJSON encodes the point as a tagged object so the sum type survives
// a round trip through language-neutral JSON. A typed nil point is encoded
// like a missing one.
func (u UncertaintySummary) MarshalJSON() ([]byte, error) {
	wire := uncertaintyWire{Distribution: u.Distribution}
	switch p := u.Point.(type) {
	case Summary:
		wire.Point = &pointEnvelope{Type: pointTypeSummary, Summary: p}
	case *Summary:
		if p != nil {
			wire.Point = &pointEnvelope{Type: pointTypeSummary, Summary: *p}
		}
	case NoUncertainty:
		wire.Point = &pointEnvelope{Type: pointTypeNoUncertainty, Reason: p.Reason}
	case *NoUncertainty:
		if p != nil {
			wire.Point = &pointEnvelope{Type: pointTypeNoUncertainty, Reason: p.Reason}
		}
	case nil:
	default:
		return nil, fmt.Errorf("unsupported point uncertainty %T", u.Point)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the tagged point written by MarshalJSON.
func (u *UncertaintySummary) UnmarshalJSON(data []byte) error {
	var wire uncertaintyWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	u.Distribution = wire.Distribution
	u.Point = nil
	if wire.Point == nil {
		return nil
	}

	switch wire.Point.Type {
	case pointTypeSummary:
		u.Point = wire.Point.Summary
	case pointTypeNoUncertainty:
		u.Point = NoUncertainty{Reason: wire.Point.Reason}
	default:
		return fmt.Errorf("unknown point uncertainty type %q", wire.Point.Type)
	}
	return nil
}

// SummaryPoint returns the Summary point when present.
func (u *UncertaintySummary) SummaryPoint() (Summary, bool) {
	if u == nil {
		return Summary{}, false
	}
	switch p := u.Point.(type) {
	case Summary:
		return p, true
	case *Summary:
		if p != nil {
			return *p, true
		}
	}
	return Summary{}, false
}

// IsNoUncertainty reports whether the point is the NoUncertainty variant.
func (u *UncertaintySummary) IsNoUncertainty() bool {
	if u == nil {
		return false
	}
	switch p := u.Point.(type) {
	case NoUncertainty:
		return true
	case *NoUncertainty:
		return p != nil
	}
	return false
}
