package session

import (
	"fmt"

	"github.com/ppiankov/hookwarden/internal/detect"
)

// AnomalyType names a detected session anomaly.
type AnomalyType string

const (
	AnomalyHighThreatRate  AnomalyType = "high_threat_rate"
	AnomalyHighBlockRate   AnomalyType = "high_block_rate"
	AnomalyEscalation      AnomalyType = "escalation_pattern"
	AnomalyRepeatedAttacks AnomalyType = "repeated_attacks"
)

// DefaultWindowSize is the number of recent threat levels anomaly detection
// looks at.
const DefaultWindowSize = 10

// minAttackRun is the shortest run of high-threat messages reported as
// repeated attacks.
const minAttackRun = 3

// AnomalyConfig holds detection thresholds.
type AnomalyConfig struct {
	MinMessagesForRateCheck int     `yaml:"min_messages_for_rate_check"`
	HighThreatThreshold     int     `yaml:"high_threat_threshold"`
	HighThreatRateThreshold float64 `yaml:"high_threat_rate_threshold"`
	HighBlockRateThreshold  float64 `yaml:"high_block_rate_threshold"`
	EscalationThreshold     float64 `yaml:"escalation_threshold"`
	RecentThreatWindowSize  int     `yaml:"recent_threat_window_size"`
}

// DefaultAnomalyConfig returns the stock thresholds.
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		MinMessagesForRateCheck: 5,
		HighThreatThreshold:     4,
		HighThreatRateThreshold: 0.3,
		HighBlockRateThreshold:  0.5,
		EscalationThreshold:     2,
		RecentThreatWindowSize:  DefaultWindowSize,
	}
}

// withDefaults fills zero fields from DefaultAnomalyConfig.
func (c AnomalyConfig) withDefaults() AnomalyConfig {
	d := DefaultAnomalyConfig()
	if c.MinMessagesForRateCheck <= 0 {
		c.MinMessagesForRateCheck = d.MinMessagesForRateCheck
	}
	if c.HighThreatThreshold <= 0 {
		c.HighThreatThreshold = d.HighThreatThreshold
	}
	if c.HighThreatRateThreshold <= 0 {
		c.HighThreatRateThreshold = d.HighThreatRateThreshold
	}
	if c.HighBlockRateThreshold <= 0 {
		c.HighBlockRateThreshold = d.HighBlockRateThreshold
	}
	if c.EscalationThreshold <= 0 {
		c.EscalationThreshold = d.EscalationThreshold
	}
	if c.RecentThreatWindowSize <= 0 {
		c.RecentThreatWindowSize = d.RecentThreatWindowSize
	}
	return c
}

// Anomaly is the verdict of DetectAnomalies. Only the first matching check is
// reported.
type Anomaly struct {
	Detected    bool        `json:"detected"`
	Type        AnomalyType `json:"type,omitempty"`
	Confidence  float64     `json:"confidence,omitempty"`
	Description string      `json:"description,omitempty"`
}

// DetectAnomalies scores a snapshot. It is pure: the same snapshot and config
// always give the same answer. Checks run in order high_threat_rate,
// high_block_rate, escalation_pattern, repeated_attacks.
func DetectAnomalies(s Snapshot, cfg AnomalyConfig) Anomaly {
	cfg = cfg.withDefaults()
	if s.MessageCount < cfg.MinMessagesForRateCheck {
		return Anomaly{}
	}

	levels := s.RecentThreatLevels
	if len(levels) > cfg.RecentThreatWindowSize {
		levels = levels[len(levels)-cfg.RecentThreatWindowSize:]
	}

	if len(levels) > 0 {
		high := 0
		for _, l := range levels {
			if l >= cfg.HighThreatThreshold {
				high++
			}
		}
		rate := float64(high) / float64(len(levels))
		if rate > cfg.HighThreatRateThreshold {
			return Anomaly{
				Detected:    true,
				Type:        AnomalyHighThreatRate,
				Confidence:  min(1, rate/cfg.HighThreatRateThreshold),
				Description: fmt.Sprintf("%.0f%% of recent messages at threat level %d or above", rate*100, cfg.HighThreatThreshold),
			}
		}
	}

	if total := s.ToolCallCount + s.MessageCount; total > 0 {
		rate := float64(s.ActionsBlocked) / float64(total)
		if rate > cfg.HighBlockRateThreshold {
			return Anomaly{
				Detected:    true,
				Type:        AnomalyHighBlockRate,
				Confidence:  min(1, rate/cfg.HighBlockRateThreshold),
				Description: fmt.Sprintf("%d of %d actions blocked", s.ActionsBlocked, total),
			}
		}
	}

	if len(levels) >= cfg.RecentThreatWindowSize {
		mid := len(levels) / 2
		delta := average(levels[mid:]) - average(levels[:mid])
		if delta >= cfg.EscalationThreshold {
			return Anomaly{
				Detected:    true,
				Type:        AnomalyEscalation,
				Confidence:  min(1, delta/detect.MaxThreatLevel),
				Description: fmt.Sprintf("average threat rose by %.1f across the window", delta),
			}
		}
	}

	if run := longestRun(levels, cfg.HighThreatThreshold); run >= minAttackRun {
		return Anomaly{
			Detected:    true,
			Type:        AnomalyRepeatedAttacks,
			Confidence:  min(1, float64(run)/5),
			Description: fmt.Sprintf("%d consecutive messages at threat level %d or above", run, cfg.HighThreatThreshold),
		}
	}

	return Anomaly{}
}

func average(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

func longestRun(levels []int, threshold int) int {
	best, cur := 0, 0
	for _, l := range levels {
		if l >= threshold {
			cur++
			best = max(best, cur)
		} else {
			cur = 0
		}
	}
	return best
}
