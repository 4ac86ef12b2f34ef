package alerts

import (
	"encoding/json"
	"fmt"
	"time"
)

// Rule is the per-category filter policy
type Rule struct {
	MinPriority       Priority
	MaxPerHour        int           // 0 means unlimited
	DedupeWindow      time.Duration // 0 disables deduplication
	RespectQuietHours bool
}

// DefaultRule applies to categories without an explicit rule
func DefaultRule() Rule {
	return Rule{
		MinPriority:       PriorityMedium,
		MaxPerHour:        20,
		DedupeWindow:      15 * time.Minute,
		RespectQuietHours: true,
	}
}

// DefaultRules returns the built-in rule set
func DefaultRules() map[Category]Rule {
	return map[Category]Rule{
		CategoryKillSwitch: {
			MinPriority:       PriorityLow,
			MaxPerHour:        0,
			DedupeWindow:      time.Minute,
			RespectQuietHours: false,
		},
		CategoryRisk: {
			MinPriority:       PriorityMedium,
			MaxPerHour:        30,
			DedupeWindow:      10 * time.Minute,
			RespectQuietHours: true,
		},
		CategoryCircuitBreaker: {
			MinPriority:       PriorityMedium,
			MaxPerHour:        12,
			DedupeWindow:      5 * time.Minute,
			RespectQuietHours: false,
		},
		CategoryTrade: {
			MinPriority:       PriorityLow,
			MaxPerHour:        60,
			DedupeWindow:      time.Minute,
			RespectQuietHours: true,
		},
		CategoryPortfolio: {
			MinPriority:       PriorityMedium,
			MaxPerHour:        10,
			DedupeWindow:      30 * time.Minute,
			RespectQuietHours: true,
		},
		CategorySystem: {
			MinPriority:       PriorityHigh,
			MaxPerHour:        10,
			DedupeWindow:      15 * time.Minute,
			RespectQuietHours: false,
		},
	}
}

// ruleFile is the JSON shape of one rule in the rules file
type ruleFile struct {
	MinPriority         *Priority `json:"min_priority"`
	MaxPerHour          *int      `json:"max_per_hour"`
	DedupeWindowMinutes *float64  `json:"dedupe_window_minutes"`
	RespectQuietHours   *bool     `json:"respect_quiet_hours"`
}

// ParseRules merges a JSON rules document over base. Fields absent from the
// document keep their base value; unknown categories get DefaultRule as base.
//
//	{"risk": {"min_priority": "HIGH", "max_per_hour": 5, "dedupe_window_minutes": 30}}
func ParseRules(data []byte, base map[Category]Rule) (map[Category]Rule, error) {
	var doc map[Category]ruleFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse alert rules: %w", err)
	}

	merged := make(map[Category]Rule, len(base)+len(doc))
	for k, v := range base {
		merged[k] = v
	}

	for category, rf := range doc {
		rule, ok := merged[category]
		if !ok {
			rule = DefaultRule()
		}
		if rf.MinPriority != nil {
			rule.MinPriority = *rf.MinPriority
		}
		if rf.MaxPerHour != nil {
			if *rf.MaxPerHour < 0 {
				return nil, fmt.Errorf("rule %s: max_per_hour must be >= 0", category)
			}
			rule.MaxPerHour = *rf.MaxPerHour
		}
		if rf.DedupeWindowMinutes != nil {
			if *rf.DedupeWindowMinutes < 0 {
				return nil, fmt.Errorf("rule %s: dedupe_window_minutes must be >= 0", category)
			}
			rule.DedupeWindow = time.Duration(*rf.DedupeWindowMinutes * float64(time.Minute))
		}
		if rf.RespectQuietHours != nil {
			rule.RespectQuietHours = *rf.RespectQuietHours
		}
		merged[category] = rule
	}
	return merged, nil
}
