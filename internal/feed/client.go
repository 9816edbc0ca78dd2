package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mr1hm/go-dam-alerts/internal/models"
)

const DefaultURL = "https://raw.githubusercontent.com/amith-vp/Kerala-Dam-Water-Levels/main/live.json"

type feedDocument struct {
	Dams *[]feedDam `json:"dams"`
}

type feedDam struct {
	ID           flexString    `json:"id"`
	Name         flexString    `json:"name"`
	OfficialName flexString    `json:"officialName"`
	FRL          flexString    `json:"FRL"`
	BlueLevel    flexString    `json:"blueLevel"`
	OrangeLevel  flexString    `json:"orangeLevel"`
	RedLevel     flexString    `json:"redLevel"`
	Data         []feedReading `json:"data"`
}

type feedReading struct {
	Date                flexString `json:"date"`
	WaterLevel          flexString `json:"waterLevel"`
	StoragePercentage   flexString `json:"storagePercentage"`
	LiveStorage         flexString `json:"liveStorage"`
	Inflow              flexString `json:"inflow"`
	TotalOutflow        flexString `json:"totalOutflow"`
	PowerHouseDischarge flexString `json:"powerHouseDischarge"`
	SpillwayRelease     flexString `json:"spillwayRelease"`
	Rainfall            flexString `json:"rainfall"`
}

// flexString accepts a JSON string, number, bool or null. Non-string
// scalars keep their literal text and null becomes "".
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	switch {
	case raw == "null":
		*f = ""
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case strings.HasPrefix(raw, "{"), strings.HasPrefix(raw, "["):
		return fmt.Errorf("expected scalar, got %.20s", raw)
	default:
		*f = flexString(raw)
	}
	return nil
}

// Client fetches the dam feed. It does not retry.
type Client struct {
	url        string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

func (c *Client) URL() string {
	return c.url
}

func (c *Client) Fetch(ctx context.Context) (*models.FeedSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Err: fmt.Errorf("error creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Kind: KindNetwork,
			Err:  fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status),
		}
	}

	var doc feedDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		// A body cut short by the client timeout surfaces here too.
		if fe := transportError(err); fe.Kind == KindTimeout {
			return nil, fe
		}
		return nil, &FetchError{Kind: KindSchema, Err: fmt.Errorf("error decoding resp.Body: %w", err)}
	}
	if doc.Dams == nil {
		return nil, &FetchError{Kind: KindSchema, Err: errors.New(`missing "dams" array`)}
	}

	dams := toDams(*doc.Dams)
	slog.Debug("feed fetched", "url", c.url, "dams", len(dams))
	return models.NewFeedSnapshot(dams, c.url, c.now()), nil
}

func toDams(raw []feedDam) []models.Dam {
	dams := make([]models.Dam, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, fd := range raw {
		id := string(fd.ID)
		if seen[id] {
			slog.Warn("duplicate dam id in feed, keeping first", "id", id)
			continue
		}
		seen[id] = true

		readings := make([]models.Reading, 0, len(fd.Data))
		for _, r := range fd.Data {
			readings = append(readings, models.Reading{
				Date:                string(r.Date),
				WaterLevel:          string(r.WaterLevel),
				StoragePercentage:   string(r.StoragePercentage),
				LiveStorage:         string(r.LiveStorage),
				Inflow:              string(r.Inflow),
				TotalOutflow:        string(r.TotalOutflow),
				PowerHouseDischarge: string(r.PowerHouseDischarge),
				SpillwayRelease:     string(r.SpillwayRelease),
				Rainfall:            string(r.Rainfall),
			})
		}

		dams = append(dams, models.Dam{
			ID:           id,
			Name:         string(fd.Name),
			OfficialName: string(fd.OfficialName),
			FRL:          string(fd.FRL),
			BlueLevel:    string(fd.BlueLevel),
			OrangeLevel:  string(fd.OrangeLevel),
			RedLevel:     string(fd.RedLevel),
			Readings:     readings,
		})
	}
	return dams
}
