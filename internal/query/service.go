// Package query implements the dam_monitor operations and renders their
// results as human-readable text.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mr1hm/go-dam-alerts/internal/alerting"
	"github.com/mr1hm/go-dam-alerts/internal/compare"
	"github.com/mr1hm/go-dam-alerts/internal/models"
	"github.com/mr1hm/go-dam-alerts/internal/repository"
)

// DamStore is satisfied by *repository.DamRepository.
type DamStore interface {
	All(ctx context.Context) ([]models.Dam, error)
	ByID(ctx context.Context, id string) (*models.Dam, error)
}

type Service struct {
	dams DamStore
}

func NewService(dams DamStore) *Service {
	return &Service{dams: dams}
}

const (
	ActionListAll     = "list_all"
	ActionGetDam      = "get_dam"
	ActionCheckAlerts = "check_alerts"
	ActionCompare     = "compare"
)

type Request struct {
	Action      string
	DamID       string
	SecondDamID string
	Metric      string
}

// Dispatch runs the action named in req. An empty action lists all dams.
func (s *Service) Dispatch(ctx context.Context, req Request) (string, error) {
	switch req.Action {
	case "", ActionListAll:
		return s.ListAll(ctx)
	case ActionGetDam:
		if req.DamID == "" {
			return "", invalidArgument("dam_id is required for get_dam action")
		}
		return s.GetDam(ctx, req.DamID)
	case ActionCheckAlerts:
		return s.CheckAlerts(ctx)
	case ActionCompare:
		return s.Compare(ctx, req.DamID, req.SecondDamID, req.Metric)
	default:
		return "", invalidArgument("invalid action %q. Please use 'get_dam', 'list_all', 'check_alerts', or 'compare'", req.Action)
	}
}

func (s *Service) ListAll(ctx context.Context) (string, error) {
	dams, err := s.dams.All(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Current Dam Status Overview:\n\n")
	listed := 0
	for i := range dams {
		r, ok := dams[i].Latest()
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "• %s (%s): %sm (%s%% full)\n", dams[i].Name, dams[i].ID, r.WaterLevel, r.StoragePercentage)
		listed++
	}
	if listed == 0 {
		return "No dams available in the current feed.", nil
	}
	return b.String(), nil
}

func (s *Service) GetDam(ctx context.Context, id string) (string, error) {
	d, err := s.resolve(ctx, id)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s (%s)\n\n", d.Name, d.OfficialName)

	r, ok := d.Latest()
	if !ok {
		b.WriteString("No readings available for this dam.\n")
		return b.String(), nil
	}

	fmt.Fprintf(&b, "**Current Status** (as of %s):\n", r.Date)
	fmt.Fprintf(&b, "- Water Level: %sm (FRL: %sm)\n", r.WaterLevel, d.FRL)
	fmt.Fprintf(&b, "- Storage: %s MCM (%s%% of capacity)\n", r.LiveStorage, r.StoragePercentage)
	fmt.Fprintf(&b, "- Inflow: %s m³/s\n", r.Inflow)
	fmt.Fprintf(&b, "- Outflow: %s m³/s (Power: %s m³/s, Spillway: %s m³/s)\n", r.TotalOutflow, r.PowerHouseDischarge, r.SpillwayRelease)
	fmt.Fprintf(&b, "- Recent Rainfall: %s mm\n\n", r.Rainfall)

	switch alerting.Classify(d) {
	case models.SeverityRed:
		b.WriteString("⚠️ **DANGER ALERT**: Water level has reached or exceeded red alert level!\n")
	case models.SeverityOrange:
		b.WriteString("⚠️ **WARNING**: Water level has reached or exceeded orange alert level!\n")
	}
	return b.String(), nil
}

func (s *Service) CheckAlerts(ctx context.Context) (string, error) {
	dams, err := s.dams.All(ctx)
	if err != nil {
		return "", err
	}

	results := alerting.Evaluate(dams)
	if len(results) == 0 {
		return "No dams currently at alert levels.", nil
	}

	lines := make([]string, 0, len(results))
	for _, res := range results {
		lines = append(lines, alertLine(res))
	}
	return "Dam Alert Status:\n\n" + strings.Join(lines, "\n"), nil
}

func alertLine(res alerting.Result) string {
	switch res.Severity {
	case models.SeverityRed:
		return fmt.Sprintf("🚨 CRITICAL: %s is at RED alert level (%sm)", res.Dam.Name, res.Reading.WaterLevel)
	case models.SeverityOrange:
		return fmt.Sprintf("⚠️ WARNING: %s is at ORANGE alert level (%sm)", res.Dam.Name, res.Reading.WaterLevel)
	default:
		return fmt.Sprintf("ℹ️ NOTICE: %s is at BLUE alert level (%sm)", res.Dam.Name, res.Reading.WaterLevel)
	}
}

func (s *Service) Compare(ctx context.Context, idA, idB, metricName string) (string, error) {
	if idA == "" || idB == "" {
		return "", invalidArgument("both dam_id and second_dam_id are required for comparison")
	}
	if metricName == "" {
		return "", invalidArgument("metric is required for comparison")
	}
	metric, err := compare.ParseMetric(metricName)
	if err != nil {
		return "", invalidArgument("%v", err)
	}

	a, err := s.resolve(ctx, idA)
	if err != nil {
		return "", err
	}
	b, err := s.resolve(ctx, idB)
	if err != nil {
		return "", err
	}

	res := compare.Compare(a, b, metric)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Comparison of %s between dams:\n\n", metric)
	fmt.Fprintf(&sb, "• %s: %s %s\n", a.Name, displayValue(res.ValueA), res.Unit)
	fmt.Fprintf(&sb, "• %s: %s %s\n\n", b.Name, displayValue(res.ValueB), res.Unit)

	switch res.Leader {
	case compare.LeaderA:
		fmt.Fprintf(&sb, "%s is %s %s higher than %s", a.Name, res.Delta.Decimal.String(), res.Unit, b.Name)
	case compare.LeaderB:
		fmt.Fprintf(&sb, "%s is %s %s higher than %s", b.Name, res.Delta.Decimal.String(), res.Unit, a.Name)
	case compare.LeaderTie:
		fmt.Fprintf(&sb, "Both dams have the same %s value", metric)
	default:
		sb.WriteString("Unable to calculate numerical difference")
	}
	return sb.String(), nil
}

func displayValue(v string) string {
	if strings.TrimSpace(v) == "" {
		return "no data"
	}
	return v
}

func (s *Service) resolve(ctx context.Context, id string) (*models.Dam, error) {
	d, err := s.dams.ByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}
