package models

import "time"

// Dam is one monitored reservoir. Threshold levels are kept as the feed sends
// them; the feed uses placeholders such as "N/A" for unknown values.
type Dam struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	OfficialName string    `json:"officialName"`
	FRL          string    `json:"FRL"` // full reservoir level, meters
	BlueLevel    string    `json:"blueLevel"`
	OrangeLevel  string    `json:"orangeLevel"`
	RedLevel     string    `json:"redLevel"`
	Readings     []Reading `json:"data"` // chronological, last is current
}

// Reading is one timestamped observation of a dam.
type Reading struct {
	Date                string `json:"date"`
	WaterLevel          string `json:"waterLevel"`        // m
	StoragePercentage   string `json:"storagePercentage"` // %
	LiveStorage         string `json:"liveStorage"`       // MCM
	Inflow              string `json:"inflow"`            // m³/s
	TotalOutflow        string `json:"totalOutflow"`      // m³/s
	PowerHouseDischarge string `json:"powerHouseDischarge"`
	SpillwayRelease     string `json:"spillwayRelease"`
	Rainfall            string `json:"rainfall"` // mm
}

// Latest returns the most recent reading. ok is false when the dam has no
// readings at all.
func (d *Dam) Latest() (r Reading, ok bool) {
	if len(d.Readings) == 0 {
		return Reading{}, false
	}
	return d.Readings[len(d.Readings)-1], true
}

// FeedSnapshot is one fetched copy of the feed. It is never modified after
// NewFeedSnapshot returns; refreshes build a new snapshot.
type FeedSnapshot struct {
	Dams      []Dam
	FetchedAt time.Time
	Source    string

	index map[string]int
}

// NewFeedSnapshot indexes dams by id. Dams must already be free of duplicate ids.
func NewFeedSnapshot(dams []Dam, source string, fetchedAt time.Time) *FeedSnapshot {
	index := make(map[string]int, len(dams))
	for i, d := range dams {
		index[d.ID] = i
	}
	return &FeedSnapshot{
		Dams:      dams,
		FetchedAt: fetchedAt,
		Source:    source,
		index:     index,
	}
}

func (s *FeedSnapshot) Lookup(id string) (*Dam, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return &s.Dams[i], true
}

func (s *FeedSnapshot) Len() int {
	return len(s.Dams)
}
