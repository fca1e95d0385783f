package domain

import (
	"errors"
	"fmt"
	"strings"
)

// CoordinateNotFoundError means no axis matched any of the candidate names.
type CoordinateNotFoundError struct {
	Axis       string
	Candidates []string
	Available  []string
}

func (e *CoordinateNotFoundError) Error() string {
	return fmt.Sprintf("no %s coordinate found: tried %s, field has axes [%s]; add the axis name to the %s candidates",
		e.Axis, strings.Join(e.Candidates, ", "), strings.Join(e.Available, ", "), e.Axis)
}

// EmptyRegionError means clipping or region selection left zero grid cells.
type EmptyRegionError struct {
	Region string
	Box    BoundingBox
	Extent BoundingBox
}

func (e *EmptyRegionError) Error() string {
	name := e.Region
	if name == "" {
		name = "target box"
	}
	return fmt.Sprintf("%s (%s) contains no grid cells of data covering %s; expand the region or supply data for it",
		name, e.Box, e.Extent)
}

// UnitAmbiguousError means the units could not be established with enough
// confidence, or a declared units attribute was not recognized.
type UnitAmbiguousError struct {
	Member     string
	Declared   string
	Guess      Units
	Confidence float64
	Required   float64
	Statistic  float64
}

func (e *UnitAmbiguousError) Error() string {
	if e.Declared != "" {
		return fmt.Sprintf("units of %s are ambiguous: units attribute %q is not a recognized rainfall unit; set units_override to the intended unit",
			e.Member, e.Declared)
	}
	return fmt.Sprintf("units of %s are ambiguous: no units attribute, p95 magnitude %.3g suggests %q with confidence %.2f below %.2f; supply explicit units",
		e.Member, e.Statistic, e.Guess, e.Confidence, e.Required)
}

// InsufficientDataError means too little valid data remained to compute a statistic.
type InsufficientDataError struct {
	Subject  string
	Region   string
	Period   string
	Valid    int
	Total    int
	Required float64
	Reason   string
}

func (e *InsufficientDataError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "insufficient data for %s", e.Subject)
	if e.Region != "" {
		fmt.Fprintf(&b, " in %s", e.Region)
	}
	if e.Period != "" {
		fmt.Fprintf(&b, " over %s", e.Period)
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	} else {
		fmt.Fprintf(&b, ": %d of %d valid, at least %.0f%% required", e.Valid, e.Total, e.Required*100)
	}
	b.WriteString("; widen the period or region, or supply more complete data")
	return b.String()
}

// ConfigurationError means a setting or an input shape is invalid.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Setting, e.Reason)
}

// Error kinds reported by ErrorKind.
const (
	KindCoordinateNotFound = "coordinate_not_found"
	KindEmptyRegion        = "empty_region"
	KindUnitAmbiguous      = "unit_ambiguous"
	KindInsufficientData   = "insufficient_data"
	KindConfiguration      = "configuration"
)

// ErrorKind returns a stable identifier for the typed engine error wrapped in
// err, or "" when err carries none.
func ErrorKind(err error) string {
	var (
		coord *CoordinateNotFoundError
		empty *EmptyRegionError
		units *UnitAmbiguousError
		data  *InsufficientDataError
		cfg   *ConfigurationError
	)
	switch {
	case errors.As(err, &coord):
		return KindCoordinateNotFound
	case errors.As(err, &empty):
		return KindEmptyRegion
	case errors.As(err, &units):
		return KindUnitAmbiguous
	case errors.As(err, &data):
		return KindInsufficientData
	case errors.As(err, &cfg):
		return KindConfiguration
	default:
		return ""
	}
}
