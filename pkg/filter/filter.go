// Package filter normalizes raw catalog filter input into a canonical
// shape and derives stable fingerprints for (query, filter) identities.
package filter

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Unit conversion factors to the canonical distance unit (miles).
const (
	milesPerKilometer = 0.621371
	milesPerMeter     = 0.000621371
)

var validate = validator.New()

// Filters is the canonical, normalized filter set for catalog queries.
// Zero-valued and nil fields mean "not constrained".
type Filters struct {
	Agency         string   `json:"certifying_agency,omitempty"`
	KosherCategory string   `json:"kosher_category,omitempty"`
	PriceMin       *float64 `json:"price_min,omitempty"`
	PriceMax       *float64 `json:"price_max,omitempty"`
	MinRating      *float64 `json:"min_rating,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	RadiusMiles    *float64 `json:"radius_miles,omitempty"`
	BusinessTypes  []string `json:"business_types,omitempty"`
	Dietary        []string `json:"dietary,omitempty"`
}

// IsZero reports whether no filter field is set.
func (f Filters) IsZero() bool {
	return f.Agency == "" && f.KosherCategory == "" &&
		f.PriceMin == nil && f.PriceMax == nil && f.MinRating == nil &&
		f.Latitude == nil && f.Longitude == nil && f.RadiusMiles == nil &&
		len(f.BusinessTypes) == 0 && len(f.Dietary) == 0
}

// Normalize converts an arbitrary partial filter object into the canonical
// Filters shape. It never fails: undefined, null, empty-string and
// empty-list fields are dropped, unrecognized keys are ignored, and values
// outside their valid range are discarded rather than rejected.
//
// Distance constraints are reconciled to miles. An explicit miles field
// ("max_distance_mi" or "radius") wins; otherwise kilometer or meter
// variants are converted.
func Normalize(raw map[string]any) Filters {
	var f Filters

	if raw == nil {
		return f
	}

	// Both the snake_case wire names and the camelCase UI-layer names are
	// accepted for each field.
	f.Agency = asString(raw["certifying_agency"], raw["certifyingAgency"], raw["agency"])
	f.KosherCategory = asString(raw["kosher_category"], raw["kosherCategory"], raw["category"])

	f.PriceMin = validFloat(asFloat(raw["price_min"], raw["priceMin"]), "gte=0")
	f.PriceMax = validFloat(asFloat(raw["price_max"], raw["priceMax"]), "gte=0")
	f.MinRating = validFloat(asFloat(raw["min_rating"], raw["minRating"], raw["ratingMin"]), "gte=0,lte=5")
	f.Latitude = validFloat(asFloat(raw["latitude"], raw["lat"]), "gte=-90,lte=90")
	f.Longitude = validFloat(asFloat(raw["longitude"], raw["lng"]), "gte=-180,lte=180")

	// Prefer an explicit miles field, then convert from metric variants.
	if miles := asFloat(raw["max_distance_mi"], raw["maxDistanceMi"], raw["radius"]); miles != nil {
		f.RadiusMiles = validFloat(miles, "gt=0")
	} else if km := asFloat(raw["radius_km"], raw["radiusKm"]); km != nil {
		converted := *km * milesPerKilometer
		f.RadiusMiles = validFloat(&converted, "gt=0")
	} else if m := asFloat(raw["radius_m"], raw["radiusM"]); m != nil {
		converted := *m * milesPerMeter
		f.RadiusMiles = validFloat(&converted, "gt=0")
	}

	// A position is only usable as a pair. The radius stays: it is part
	// of the result identity even when no position is attached.
	if f.Latitude == nil || f.Longitude == nil {
		f.Latitude = nil
		f.Longitude = nil
	}

	f.BusinessTypes = asStringList(raw["business_types"])
	if f.BusinessTypes == nil {
		f.BusinessTypes = asStringList(raw["businessTypes"])
	}
	f.Dietary = asStringList(raw["dietary"])

	return f
}

// validFloat returns v when it satisfies the validator tag, nil otherwise.
func validFloat(v *float64, tag string) *float64 {
	if v == nil {
		return nil
	}
	if err := validate.Var(*v, tag); err != nil {
		return nil
	}
	return v
}

// asString returns the first non-empty string among the candidates.
func asString(candidates ...any) string {
	for _, c := range candidates {
		if s, ok := c.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// asFloat coerces the first usable candidate to a float64. Strings and
// JSON numbers are parsed; anything unparseable is dropped.
func asFloat(candidates ...any) *float64 {
	for _, c := range candidates {
		switch v := c.(type) {
		case float64:
			return &v
		case float32:
			f := float64(v)
			return &f
		case int:
			f := float64(v)
			return &f
		case int64:
			f := float64(v)
			return &f
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return &f
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// asStringList flattens a multi-select field into a sorted-free flat list.
// Accepts a plain string, a comma-separated string, []string, or []any.
func asStringList(v any) []string {
	var out []string

	appendValue := func(s string) {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	switch list := v.(type) {
	case string:
		for _, part := range strings.Split(list, ",") {
			appendValue(part)
		}
	case []string:
		for _, s := range list {
			appendValue(s)
		}
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok {
				appendValue(s)
			}
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
