package models

import (
	"fmt"
	"strings"
	"time"
)

// Severity is the alert level of a dam. Values are ordered so that
// comparisons like s >= SeverityOrange hold.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityBlue
	SeverityOrange
	SeverityRed
)

func (s Severity) String() string {
	switch s {
	case SeverityBlue:
		return "BLUE"
	case SeverityOrange:
		return "ORANGE"
	case SeverityRed:
		return "RED"
	default:
		return "NONE"
	}
}

func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return SeverityNone, nil
	case "blue":
		return SeverityBlue, nil
	case "orange":
		return SeverityOrange, nil
	case "red":
		return SeverityRed, nil
	default:
		return SeverityNone, fmt.Errorf("unknown severity: %q", s)
	}
}

// Alert records a change of a dam's severity between two evaluations.
type Alert struct {
	ID               string
	DamID            string
	DamName          string
	Severity         Severity
	PreviousSeverity Severity
	WaterLevel       string
	ReadingDate      string
	CreatedAt        time.Time
}

// Escalated reports whether the dam moved to a higher severity.
func (a *Alert) Escalated() bool {
	return a.Severity > a.PreviousSeverity
}
