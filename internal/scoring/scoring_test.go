package scoring_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeytrack-collector/internal/config"
	"honeytrack-collector/internal/event"
	"honeytrack-collector/internal/feature"
	"honeytrack-collector/internal/metrics"
	"honeytrack-collector/internal/scoring"
)

func minimalSpec(cols ...string) feature.Spec {
	return feature.Spec{Columns: cols}
}

func testConfig() config.Config {
	cfg := config.Default()
	return cfg
}

func supervisedArtifact(weight float64) *scoring.SupervisedArtifact {
	return &scoring.SupervisedArtifact{
		Spec:              minimalSpec("x"),
		Weights:           []float64{weight},
		Bias:              0,
		DecisionThreshold: 0.9,
	}
}

func unsupervisedArtifact() *scoring.UnsupervisedArtifact {
	return &scoring.UnsupervisedArtifact{
		Spec:      minimalSpec("x"),
		Centroid:  []float64{0},
		Bandwidth: 1,
		Threshold: 5,
	}
}

func secondaryArtifact() *scoring.SecondaryArtifact {
	return &scoring.SecondaryArtifact{
		Spec:   minimalSpec("x"),
		Labels: []string{"NORMAL", "TOR"},
		Weights: map[string][]float64{
			"NORMAL": {0},
			"TOR":    {0},
		},
		Bias: map[string]float64{"NORMAL": 1, "TOR": 0},
	}
}

func baseEvent(action, path string) event.Event {
	return event.Event{
		ObservedAt:    time.Date(2024, 6, 1, 10, 15, 0, 0, time.UTC),
		SourceAddress: "203.0.113.42",
		TargetService: "git",
		Action:        action,
		TargetPath:    path,
		SessionID:     "s1",
	}
}

func TestScore_CredentialFileAccessTriggersFloor(t *testing.T) {
	cfg := testConfig()
	ens := scoring.NewEnsemble(supervisedArtifact(0), unsupervisedArtifact(), secondaryArtifact(), cfg, metrics.NewRegistry())

	score, degraded := ens.Score(baseEvent("file_access", "secrets.yml"))

	require.False(t, degraded)
	assert.GreaterOrEqual(t, score.Value, cfg.ScoreFloor)
	assert.Contains(t, []event.Band{event.BandMedium, event.BandHigh}, score.Band)
	assert.Equal(t, "CREDENTIAL_ACCESS", score.PredictedClass)
}

func TestScore_BandDeterminism(t *testing.T) {
	cfg := testConfig()
	ens := scoring.NewEnsemble(supervisedArtifact(10), unsupervisedArtifact(), secondaryArtifact(), cfg, metrics.NewRegistry())

	score, _ := ens.Score(baseEvent("scan_attempt", ""))

	switch {
	case score.Value >= cfg.Bands.High:
		assert.Equal(t, event.BandHigh, score.Band)
	case score.Value >= cfg.Bands.Medium:
		assert.Equal(t, event.BandMedium, score.Band)
	case score.Value >= cfg.Bands.Low:
		assert.Equal(t, event.BandLow, score.Band)
	default:
		assert.Equal(t, event.BandMinimal, score.Band)
	}
}

func TestScore_AllModelsFailDegradesToMinimalBenign(t *testing.T) {
	cfg := testConfig()
	ens := scoring.NewEnsemble(nil, nil, nil, cfg, metrics.NewRegistry())

	score, degraded := ens.Score(baseEvent("scan_attempt", ""))

	require.True(t, degraded)
	assert.Equal(t, 0.0, score.Value)
	assert.Equal(t, event.BandMinimal, score.Band)
	assert.Equal(t, "BENIGN", score.PredictedClass)
}

func TestScore_ScoreIsPure(t *testing.T) {
	cfg := testConfig()
	ens := scoring.NewEnsemble(supervisedArtifact(2), unsupervisedArtifact(), secondaryArtifact(), cfg, metrics.NewRegistry())

	e := baseEvent("file_access", "")
	s1, _ := ens.Score(e)
	s2, _ := ens.Score(e)

	assert.Equal(t, s1, s2)
}

func TestScore_WeightSumValidatedAtConfigLoad(t *testing.T) {
	cfg := testConfig()
	cfg.Models.Weights.Supervised = 0.5
	err := cfg.Validate()
	assert.Error(t, err)
}
