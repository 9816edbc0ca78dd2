package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleFeed = `{
	"dams": [
		{
			"id": "idukki",
			"name": "Idukki",
			"officialName": "Idukki Reservoir",
			"FRL": "2403.0",
			"blueLevel": "2396.0",
			"orangeLevel": "2400.0",
			"redLevel": "2403.0",
			"data": [
				{"date": "2024-07-30", "waterLevel": "2390.1", "storagePercentage": "60.0"},
				{"date": "2024-07-31", "waterLevel": 2398.5, "storagePercentage": "71.2", "inflow": null}
			]
		},
		{
			"id": "mullaperiyar",
			"name": "Mullaperiyar",
			"redLevel": "N/A",
			"data": []
		},
		{
			"id": "idukki",
			"name": "Idukki duplicate",
			"data": []
		}
	]
}`

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Fetch(t *testing.T) {
	srv := serve(t, http.StatusOK, sampleFeed)
	c := NewClient(srv.URL, time.Second)

	snap, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if snap.Len() != 2 {
		t.Fatalf("expected 2 dams after dedup, got %d", snap.Len())
	}
	if snap.FetchedAt.IsZero() {
		t.Error("expected FetchedAt to be set")
	}

	idukki, ok := snap.Lookup("idukki")
	if !ok {
		t.Fatal("expected idukki in snapshot")
	}
	if idukki.Name != "Idukki" {
		t.Errorf("expected first occurrence to win, got name %q", idukki.Name)
	}

	latest, ok := idukki.Latest()
	if !ok {
		t.Fatal("expected a latest reading")
	}
	if latest.WaterLevel != "2398.5" {
		t.Errorf("expected numeric water level kept as text, got %q", latest.WaterLevel)
	}
	if latest.Inflow != "" {
		t.Errorf("expected null inflow to become empty, got %q", latest.Inflow)
	}

	mp, _ := snap.Lookup("mullaperiyar")
	if _, ok := mp.Latest(); ok {
		t.Error("expected no latest reading for dam without data")
	}
}

func TestClient_Fetch_EmptyDams(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"dams": []}`)

	snap, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	if err != nil {
		t.Fatalf("expected empty feed to be valid, got %v", err)
	}
	if snap.Len() != 0 {
		t.Errorf("expected 0 dams, got %d", snap.Len())
	}
}

func TestClient_Fetch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{"server error", http.StatusInternalServerError, "oops", KindNetwork},
		{"not found", http.StatusNotFound, "", KindNetwork},
		{"not json", http.StatusOK, "<html></html>", KindSchema},
		{"top level array", http.StatusOK, `[{"id": "x"}]`, KindSchema},
		{"missing dams", http.StatusOK, `{"reservoirs": []}`, KindSchema},
		{"null dams", http.StatusOK, `{"dams": null}`, KindSchema},
		{"dams not array", http.StatusOK, `{"dams": "idukki"}`, KindSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.status, tt.body)

			_, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FetchError, got %v", err)
			}
			if fe.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, fe.Kind)
			}
		})
	}
}

func TestClient_Fetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 50*time.Millisecond).Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.Kind != KindTimeout {
		t.Errorf("expected timeout kind, got %s", fe.Kind)
	}
	if !fe.IsNetwork() {
		t.Error("expected timeout to count as a network failure")
	}
}

func TestClient_Fetch_Unreachable(t *testing.T) {
	srv := serve(t, http.StatusOK, sampleFeed)
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if !fe.IsNetwork() {
		t.Errorf("expected network failure, got %s", fe.Kind)
	}
}
