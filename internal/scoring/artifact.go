// Package scoring loads the three tagged model artifacts and runs them as
// a weighted ensemble to produce a calibrated risk score (C4 of the spec).
package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"honeytrack-collector/internal/feature"
)

// SupervisedArtifact is a linear classifier over standardized features,
// calibrated through a sigmoid -- a portable, dependency-free stand-in for
// whatever gradient-boosted or linear model produced the weights offline.
type SupervisedArtifact struct {
	Spec              feature.Spec `json:"spec"`
	Weights           []float64    `json:"weights"`
	Bias              float64      `json:"bias"`
	DecisionThreshold float64      `json:"decision_threshold"`
}

// UnsupervisedArtifact is a centroid/bandwidth anomaly detector: distance
// from the training centroid, normalized by bandwidth and squashed into
// [0,1], with a configured flagging threshold. The exact normalization of
// the raw decision function is an artifact detail the spec leaves open;
// this implementation uses a saturating exponential of the standardized
// distance, which only needs to be monotonic in "more anomalous".
type UnsupervisedArtifact struct {
	Spec      feature.Spec `json:"spec"`
	Centroid  []float64    `json:"centroid"`
	Bandwidth float64      `json:"bandwidth"`
	Threshold float64      `json:"threshold"`
}

// SecondaryArtifact is a small weighted multi-class (traffic-type)
// classifier: one linear score per label, softmax-normalized.
type SecondaryArtifact struct {
	Spec    feature.Spec         `json:"spec"`
	Labels  []string             `json:"labels"`
	Weights map[string][]float64 `json:"weights"`
	Bias    map[string]float64   `json:"bias"`
}

func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading artifact %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing artifact %s: %w", path, err)
	}
	return nil
}

func LoadSupervised(path string) (*SupervisedArtifact, error) {
	var a SupervisedArtifact
	if err := loadJSON(path, &a); err != nil {
		return nil, err
	}
	if len(a.Weights) != len(a.Spec.Columns) {
		return nil, fmt.Errorf("supervised artifact %s: weight count %d does not match column count %d", path, len(a.Weights), len(a.Spec.Columns))
	}
	return &a, nil
}

func LoadUnsupervised(path string) (*UnsupervisedArtifact, error) {
	var a UnsupervisedArtifact
	if err := loadJSON(path, &a); err != nil {
		return nil, err
	}
	if len(a.Centroid) != len(a.Spec.Columns) {
		return nil, fmt.Errorf("unsupervised artifact %s: centroid length %d does not match column count %d", path, len(a.Centroid), len(a.Spec.Columns))
	}
	return &a, nil
}

func LoadSecondary(path string) (*SecondaryArtifact, error) {
	var a SecondaryArtifact
	if err := loadJSON(path, &a); err != nil {
		return nil, err
	}
	for _, label := range a.Labels {
		if len(a.Weights[label]) != len(a.Spec.Columns) {
			return nil, fmt.Errorf("secondary artifact %s: label %s weight count does not match column count", path, label)
		}
	}
	return &a, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Predict returns p_s and whether p_s (the sigmoid output, not the raw
// logit) reached the model's own decision threshold.
func (a *SupervisedArtifact) Predict(vec feature.Vector) (float64, bool, error) {
	if len(vec) != len(a.Weights) {
		return 0, false, fmt.Errorf("feature vector length %d does not match model input length %d", len(vec), len(a.Weights))
	}
	logit := a.Bias
	for i, w := range a.Weights {
		logit += w * vec[i]
	}
	p := sigmoid(logit)
	return p, p >= a.DecisionThreshold, nil
}

// Predict returns p_a in [0,1] (1 = most anomalous) and whether the
// distance exceeded the artifact's flagging threshold.
func (a *UnsupervisedArtifact) Predict(vec feature.Vector) (float64, bool, error) {
	if len(vec) != len(a.Centroid) {
		return 0, false, fmt.Errorf("feature vector length %d does not match model input length %d", len(vec), len(a.Centroid))
	}
	var sumSq float64
	for i, c := range a.Centroid {
		d := vec[i] - c
		sumSq += d * d
	}
	dist := math.Sqrt(sumSq)

	bandwidth := a.Bandwidth
	if bandwidth <= 0 {
		bandwidth = 1
	}
	normalized := dist / bandwidth
	score := 1 - math.Exp(-normalized)
	return score, normalized >= a.Threshold, nil
}

// Predict returns the highest-scoring label and its softmax-normalized
// confidence p_t.
func (a *SecondaryArtifact) Predict(vec feature.Vector) (string, float64, error) {
	if len(a.Labels) == 0 {
		return "", 0, fmt.Errorf("secondary artifact has no labels")
	}

	logits := make(map[string]float64, len(a.Labels))
	maxLogit := math.Inf(-1)
	for _, label := range a.Labels {
		weights, ok := a.Weights[label]
		if !ok || len(weights) != len(vec) {
			return "", 0, fmt.Errorf("feature vector length %d does not match model input length for label %s", len(vec), label)
		}
		logit := a.Bias[label]
		for i, w := range weights {
			logit += w * vec[i]
		}
		logits[label] = logit
		if logit > maxLogit {
			maxLogit = logit
		}
	}

	var sumExp float64
	for _, logit := range logits {
		sumExp += math.Exp(logit - maxLogit)
	}

	bestLabel := a.Labels[0]
	var bestP float64
	for _, label := range a.Labels {
		p := math.Exp(logits[label]-maxLogit) / sumExp
		if p > bestP {
			bestP = p
			bestLabel = label
		}
	}
	return bestLabel, bestP, nil
}
