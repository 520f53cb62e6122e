package scoring

import (
	"strings"

	"honeytrack-collector/internal/config"
	"honeytrack-collector/internal/event"
	"honeytrack-collector/internal/feature"
	"honeytrack-collector/internal/logging"
	"honeytrack-collector/internal/metrics"
	"honeytrack-collector/internal/errorkind"
)

// explicit predicted-class taxonomy (§4.4); indicator rules outrank
// model-only labels when more than one would match.
const (
	classExploit           = "EXPLOIT"
	classCredentialAccess  = "CREDENTIAL_ACCESS"
	classDataExfil         = "DATA_EXFIL"
	classRecon             = "RECON"
	classKnownMalicious    = "KNOWN_MALICIOUS"
	classUnknownAnomaly    = "UNKNOWN_ANOMALY"
	classBenign            = "BENIGN"
)

var exploitActions = map[string]bool{"git_push": true}
var credentialActions = map[string]bool{"cred_access": true}
var reconActions = map[string]bool{"scan_attempt": true, "bruteforce": true}

var credentialPathHints = []string{".env", "secrets.yml", "credentials", "private.key", "kubeconfig-"}

// Ensemble wires the three model artifacts together with the weighting,
// band, and indicator policy from configuration (§4.4).
type Ensemble struct {
	supervised   *SupervisedArtifact
	unsupervised *UnsupervisedArtifact
	secondary    *SecondaryArtifact

	weights    config.ModelWeights
	bands      config.Bands
	indicators feature.Indicators
	scoreFloor float64

	metrics *metrics.Registry
}

func NewEnsemble(supervised *SupervisedArtifact, unsupervised *UnsupervisedArtifact, secondary *SecondaryArtifact, cfg config.Config, reg *metrics.Registry) *Ensemble {
	return &Ensemble{
		supervised:   supervised,
		unsupervised: unsupervised,
		secondary:    secondary,
		weights:      cfg.Models.Weights,
		bands:        cfg.Bands,
		indicators:   feature.Indicators{Actions: cfg.IndicatorActions, Paths: cfg.IndicatorPaths},
		scoreFloor:   cfg.ScoreFloor,
		metrics:      reg,
	}
}

// Score runs all three models against e's feature vectors and combines
// their outputs into the final event.Score, per §4.4. It never returns an
// error: per-model failures degrade that model's contribution to 0 and set
// scoringDegraded; if all three fail, value=0, band=MINIMAL,
// predicted_class=BENIGN, scoringDegraded=true.
func (ens *Ensemble) Score(e event.Event) (event.Score, bool) {
	var (
		pS, pA, pT       float64
		anomalyFlagged   bool
		thresholdCrossed bool
		trafficClass     string
		degraded         bool
		supervisedOK     bool
		unsupervisedOK   bool
		secondaryOK      bool
	)

	if ens.supervised != nil {
		vec := feature.Featurize(e, ens.supervised.Spec, ens.indicators)
		p, crossed, err := ens.supervised.Predict(vec)
		if err != nil {
			logging.Warn("supervised model failed", logging.F("error", err.Error()))
			ens.metrics.CountError(errorkind.ScoringDegraded)
			degraded = true
		} else {
			pS = p
			thresholdCrossed = crossed
			supervisedOK = true
		}
	} else {
		degraded = true
	}

	if ens.unsupervised != nil {
		vec := feature.Featurize(e, ens.unsupervised.Spec, ens.indicators)
		p, flagged, err := ens.unsupervised.Predict(vec)
		if err != nil {
			logging.Warn("unsupervised model failed", logging.F("error", err.Error()))
			ens.metrics.CountError(errorkind.ScoringDegraded)
			degraded = true
		} else {
			pA = p
			anomalyFlagged = flagged
			unsupervisedOK = true
		}
	} else {
		degraded = true
	}

	if ens.secondary != nil {
		vec := feature.Featurize(e, ens.secondary.Spec, ens.indicators)
		label, p, err := ens.secondary.Predict(vec)
		if err != nil {
			logging.Warn("secondary model failed", logging.F("error", err.Error()))
			ens.metrics.CountError(errorkind.ScoringDegraded)
			degraded = true
		} else {
			pT = p
			trafficClass = label
			secondaryOK = true
		}
	} else {
		degraded = true
	}

	allFailed := !supervisedOK && !unsupervisedOK && !secondaryOK
	ens.metrics.CountScored(degraded)

	if allFailed {
		return event.Score{
			Value:          0,
			Band:           event.BandMinimal,
			IsAnomaly:      false,
			PredictedClass: classBenign,
			TrafficClass:   trafficClass,
		}, true
	}

	value := ens.weights.Supervised*pS + ens.weights.Unsupervised*pA + ens.weights.Secondary*pT

	matchedIndicator := ens.indicators.MatchesAction(e.Action) || ens.indicators.MatchesPath(e.TargetPath)
	if matchedIndicator && value < ens.scoreFloor {
		value = ens.scoreFloor
	}

	band := ens.assignBand(value)
	isAnomaly := anomalyFlagged || band == event.BandHigh || thresholdCrossed

	predictedClass := ens.classify(e, matchedIndicator, thresholdCrossed, anomalyFlagged)

	return event.Score{
		Value:          value,
		Band:           band,
		IsAnomaly:      isAnomaly,
		PredictedClass: predictedClass,
		TrafficClass:   trafficClass,
	}, degraded
}

// LoadStatus reports whether each of the three tagged artifacts loaded
// successfully, for the /health endpoint (§4.8).
func (ens *Ensemble) LoadStatus() map[string]bool {
	return map[string]bool{
		"supervised":   ens.supervised != nil,
		"unsupervised": ens.unsupervised != nil,
		"secondary":    ens.secondary != nil,
	}
}

// assignBand is the total function of value described in §4.4.
func (ens *Ensemble) assignBand(value float64) event.Band {
	switch {
	case value >= ens.bands.High:
		return event.BandHigh
	case value >= ens.bands.Medium:
		return event.BandMedium
	case value >= ens.bands.Low:
		return event.BandLow
	default:
		return event.BandMinimal
	}
}

func (ens *Ensemble) classify(e event.Event, matchedIndicator, supervisedCrossed, anomalyFlagged bool) string {
	action := strings.ToLower(e.Action)
	path := strings.ToLower(e.TargetPath)

	if exploitActions[action] {
		return classExploit
	}
	if credentialActions[action] || containsAny(path, credentialPathHints) {
		return classCredentialAccess
	}
	if matchedIndicator {
		return classDataExfil
	}
	if reconActions[action] {
		return classRecon
	}
	if supervisedCrossed {
		return classKnownMalicious
	}
	if anomalyFlagged {
		return classUnknownAnomaly
	}
	return classBenign
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
