// Package alerting classifies dams against their own blue/orange/red
// threshold levels.
package alerting

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mr1hm/go-dam-alerts/internal/models"
)

// ParseDecimal parses a feed value. Placeholders such as "N/A" come back
// with Valid false.
func ParseDecimal(s string) decimal.NullDecimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// reached reports whether level is at or above threshold. A missing level
// never reaches anything and a missing threshold is never reached.
func reached(level, threshold decimal.NullDecimal) bool {
	return level.Valid && threshold.Valid && level.Decimal.Cmp(threshold.Decimal) >= 0
}

// Classify returns the highest severity whose threshold the dam's latest
// water level has reached. Thresholds are compared independently; their
// relative order in the feed is not trusted.
func Classify(d *models.Dam) models.Severity {
	r, ok := d.Latest()
	if !ok {
		return models.SeverityNone
	}
	return classifyLevel(ParseDecimal(r.WaterLevel), d)
}

func classifyLevel(level decimal.NullDecimal, d *models.Dam) models.Severity {
	switch {
	case reached(level, ParseDecimal(d.RedLevel)):
		return models.SeverityRed
	case reached(level, ParseDecimal(d.OrangeLevel)):
		return models.SeverityOrange
	case reached(level, ParseDecimal(d.BlueLevel)):
		return models.SeverityBlue
	default:
		return models.SeverityNone
	}
}

type Result struct {
	Dam      *models.Dam
	Reading  models.Reading
	Severity models.Severity
}

// Evaluate classifies every dam that has a reading and keeps the ones at
// blue or above, in feed order.
func Evaluate(dams []models.Dam) []Result {
	var results []Result
	for i := range dams {
		d := &dams[i]
		r, ok := d.Latest()
		if !ok {
			continue
		}
		sev := classifyLevel(ParseDecimal(r.WaterLevel), d)
		if sev == models.SeverityNone {
			continue
		}
		results = append(results, Result{Dam: d, Reading: r, Severity: sev})
	}
	return results
}
