// Package feature deterministically maps an event into the fixed-length
// numeric vector a model artifact expects (C3 of the spec).
package feature

import (
	"strings"

	"honeytrack-collector/internal/event"
)

// unknownCategoryCode is the reserved value an unseen categorical input
// encodes to.
const unknownCategoryCode = -1.0

// Scaler holds the mean/std a numeric column was standardized with at
// training time.
type Scaler struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Spec is the opaque preprocessing state shipped alongside a model
// artifact: the feature column list, the categorical encoding tables, and
// numeric scalers. Whether a column is categorical or numeric is fixed by
// the column name in columnValue, not by the Spec. The
// collector treats this as data, not code -- the same Spec drives both
// training-time and inference-time featurization.
type Spec struct {
	Columns      []string                      `json:"columns"`
	Categorical  map[string]map[string]float64 `json:"categorical_encoders"`
	Scalers      map[string]Scaler             `json:"scalers"`
	IndicatorColumns IndicatorColumns          `json:"indicator_columns"`
}

// IndicatorColumns names the columns the heuristic augmentation step sets
// when an event matches a configured indicator (§4.3).
type IndicatorColumns struct {
	Action string `json:"action"`
	Path   string `json:"path"`
}

// Vector is a feature vector whose length and column order match a Spec's
// Columns.
type Vector []float64

// Indicators carries the configured indicator actions/paths used to set
// the heuristic augmentation columns. The extractor does not decide the
// final score -- it only surfaces the signal to the model (§4.3).
type Indicators struct {
	Actions []string
	Paths   []string
}

// MatchesAction reports whether action is a configured indicator action.
func (ind Indicators) MatchesAction(action string) bool {
	for _, a := range ind.Actions {
		if strings.EqualFold(a, action) {
			return true
		}
	}
	return false
}

// MatchesPath reports whether path contains a configured indicator
// substring.
func (ind Indicators) MatchesPath(path string) bool {
	if path == "" {
		return false
	}
	lower := strings.ToLower(path)
	for _, p := range ind.Paths {
		p = strings.ToLower(p)
		if strings.HasSuffix(p, "*") {
			if strings.Contains(lower, strings.TrimSuffix(p, "*")) {
				return true
			}
			continue
		}
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// columnValue computes the raw (pre-scale/pre-encode) value of one named
// column from an event. Unknown column names yield 0, matching the "no
// exceptions are raised for unknown inputs" contract.
func columnValue(e event.Event, ind Indicators, col string) (value float64, categorical bool, category string) {
	switch col {
	case "protocol":
		return 0, true, e.Protocol
	case "target_service":
		return 0, true, e.TargetService
	case "action":
		return 0, true, e.Action
	case "has_target_path":
		if e.TargetPath != "" {
			return 1, false, ""
		}
		return 0, false, ""
	case "user_agent_length":
		return float64(len(e.UserAgent)), false, ""
	case "header_count":
		return float64(len(e.Headers)), false, ""
	case "payload_size":
		return float64(len(e.Payload)), false, ""
	case "hour_of_day":
		return float64(e.ObservedAt.UTC().Hour()), false, ""
	case "is_private_source":
		if e.Geo.IsPrivate {
			return 1, false, ""
		}
		return 0, false, ""
	case "geo_country":
		return 0, true, e.Geo.Country
	default:
		return 0, false, ""
	}
}

// Featurize produces a vector whose length and column order equal
// spec.Columns, applying numeric scaling and categorical encoding from the
// spec, then the heuristic indicator augmentation.
func Featurize(e event.Event, spec Spec, ind Indicators) Vector {
	vec := make(Vector, len(spec.Columns))

	for i, col := range spec.Columns {
		value, isCategorical, category := columnValue(e, ind, col)
		if isCategorical {
			table := spec.Categorical[col]
			if code, ok := table[category]; ok {
				vec[i] = code
			} else {
				vec[i] = unknownCategoryCode
			}
			continue
		}

		if scaler, ok := spec.Scalers[col]; ok && scaler.Std != 0 {
			vec[i] = (value - scaler.Mean) / scaler.Std
		} else {
			vec[i] = value
		}
	}

	applyIndicatorAugmentation(e, spec, ind, vec)
	return vec
}

func applyIndicatorAugmentation(e event.Event, spec Spec, ind Indicators, vec Vector) {
	if spec.IndicatorColumns.Action != "" && ind.MatchesAction(e.Action) {
		setColumn(spec, vec, spec.IndicatorColumns.Action, 1)
	}
	if spec.IndicatorColumns.Path != "" && ind.MatchesPath(e.TargetPath) {
		setColumn(spec, vec, spec.IndicatorColumns.Path, 1)
	}
}

func setColumn(spec Spec, vec Vector, name string, value float64) {
	for i, col := range spec.Columns {
		if col == name {
			vec[i] = value
			return
		}
	}
}
