package feature_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeytrack-collector/internal/event"
	"honeytrack-collector/internal/feature"
)

func testSpec() feature.Spec {
	return feature.Spec{
		Columns: []string{"action", "has_target_path", "payload_size", "indicator_action", "indicator_path"},
		Categorical: map[string]map[string]float64{
			"action": {"scan_attempt": 0, "file_access": 1, "git_push": 2},
		},
		Scalers: map[string]feature.Scaler{
			"payload_size": {Mean: 0, Std: 1},
		},
		IndicatorColumns: feature.IndicatorColumns{
			Action: "indicator_action",
			Path:   "indicator_path",
		},
	}
}

func testIndicators() feature.Indicators {
	return feature.Indicators{
		Actions: []string{"git_push", "cred_access"},
		Paths:   []string{".env", "secrets.yml", "kubeconfig-*"},
	}
}

func baseEvent() event.Event {
	return event.Event{
		ObservedAt: time.Date(2024, 6, 1, 10, 15, 0, 0, time.UTC),
		Action:     "file_access",
	}
}

func TestFeaturize_VectorLengthMatchesColumns(t *testing.T) {
	e := baseEvent()
	vec := feature.Featurize(e, testSpec(), testIndicators())
	require.Len(t, vec, len(testSpec().Columns))
}

func TestFeaturize_UnknownCategoryDoesNotPanic(t *testing.T) {
	e := baseEvent()
	e.Action = "never_seen_before"
	assert.NotPanics(t, func() {
		feature.Featurize(e, testSpec(), testIndicators())
	})
}

func TestFeaturize_IndicatorActionSetsColumn(t *testing.T) {
	e := baseEvent()
	e.Action = "git_push"
	spec := testSpec()
	vec := feature.Featurize(e, spec, testIndicators())

	idx := -1
	for i, c := range spec.Columns {
		if c == "indicator_action" {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, 1.0, vec[idx])
}

func TestFeaturize_IndicatorPathSetsColumn(t *testing.T) {
	e := baseEvent()
	e.TargetPath = "config/secrets.yml"
	spec := testSpec()
	vec := feature.Featurize(e, spec, testIndicators())

	idx := -1
	for i, c := range spec.Columns {
		if c == "indicator_path" {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, 1.0, vec[idx])
}
