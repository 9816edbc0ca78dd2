package api

import (
	"strings"
	"time"

	"github.com/mr1hm/go-dam-alerts/internal/models"
)

type damsDocument struct {
	Dams      []models.Dam `json:"dams"`
	FetchedAt time.Time    `json:"fetched_at"`
}

type alertDocument struct {
	ID               string    `json:"id"`
	DamID            string    `json:"dam_id"`
	DamName          string    `json:"dam_name"`
	Severity         string    `json:"severity"`
	PreviousSeverity string    `json:"previous_severity"`
	WaterLevel       string    `json:"water_level"`
	ReadingDate      string    `json:"reading_date"`
	CreatedAt        time.Time `json:"created_at"`
}

func toAlertDocument(a *models.Alert) alertDocument {
	return alertDocument{
		ID:               a.ID,
		DamID:            a.DamID,
		DamName:          a.DamName,
		Severity:         strings.ToLower(a.Severity.String()),
		PreviousSeverity: strings.ToLower(a.PreviousSeverity.String()),
		WaterLevel:       a.WaterLevel,
		ReadingDate:      a.ReadingDate,
		CreatedAt:        a.CreatedAt,
	}
}

func toAlertDocuments(alerts []models.Alert) []alertDocument {
	docs := make([]alertDocument, 0, len(alerts))
	for i := range alerts {
		docs = append(docs, toAlertDocument(&alerts[i]))
	}
	return docs
}
