package sota

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const spotsJSON = `[
  {"id": 7, "userID": 1, "timeStamp": "2023-06-01T12:34:56.123", "comments": "qrv", "callsign": "YO7JBP",
   "associationCode": "yo", "summitCode": "ec-001", "activatorCallsign": "YO7JBP", "activatorName": "Vasi",
   "frequency": "14.062", "mode": "cw"},
  {"id": 5, "timeStamp": "2023-06-01T12:30:00", "callsign": "G4ABC", "associationCode": "G",
   "summitCode": "LD-001", "frequency": 7.032, "mode": "ssb"}
]`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/", srv.Client()), srv
}

func TestFetchSpotsLatest(t *testing.T) {
	var gotPath string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(spotsJSON))
	})

	spots, err := c.FetchSpots(context.Background(), Latest(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/api/spots/1/all" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if len(spots) != 2 {
		t.Fatalf("expected 2 spots, got %d", len(spots))
	}
	first := spots[0]
	if first.ID != 7 || first.Callsign != "YO7JBP" || first.Mode != "cw" {
		t.Fatalf("unexpected spot %+v", first)
	}
	if first.Summit != (SummitKey{Association: "YO", Code: "EC-001"}) {
		t.Fatalf("expected normalized summit key, got %+v", first.Summit)
	}
	if first.FrequencyMHz != 14.062 {
		t.Fatalf("expected string frequency decoded, got %v", first.FrequencyMHz)
	}
	want := time.Date(2023, time.June, 1, 12, 34, 56, 123000000, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Fatalf("expected %v, got %v", want, first.Timestamp)
	}
	if spots[1].FrequencyMHz != 7.032 {
		t.Fatalf("expected numeric frequency decoded, got %v", spots[1].FrequencyMHz)
	}
	if spots[1].Timestamp.Second() != 0 || spots[1].Timestamp.Minute() != 30 {
		t.Fatalf("expected timestamp without fraction to parse, got %v", spots[1].Timestamp)
	}
}

func TestFetchSpotsWithinUsesNegativeHours(t *testing.T) {
	var gotPath string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`[]`))
	})
	spots, err := c.FetchSpots(context.Background(), Within(1.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spots) != 0 {
		t.Fatalf("expected empty batch")
	}
	if gotPath != "/api/spots/-1.5/all" {
		t.Fatalf("unexpected path %s", gotPath)
	}
}

func TestFetchSpotsFailuresAreFeedUnavailable(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		},
		"malformed": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"not":"a list"`))
		},
		"not a list": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":"rate limited"}`))
		},
	}
	for name, h := range cases {
		c, _ := newTestClient(t, h)
		_, err := c.FetchSpots(context.Background(), Latest(1))
		if !errors.Is(err, ErrFeedUnavailable) {
			t.Fatalf("%s: expected ErrFeedUnavailable, got %v", name, err)
		}
	}
}

func TestFetchSpotsSkipsMalformedRecords(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
  {"id": 9, "timeStamp": "2023-06-01T12:40:00", "callsign": "YO9A", "associationCode": "YO", "summitCode": "EC-001", "frequency": "14.285", "mode": "ssb"},
  {"id": 8, "timeStamp": "2023-06-01T12:39:00", "callsign": "YO8B", "associationCode": "YO", "summitCode": "EC-002", "frequency": "7.032/14.062", "mode": "cw"},
  {"id": 7, "timeStamp": "2023-06-01T12:38:00", "callsign": "YO7C", "associationCode": "YO", "summitCode": "EC-003", "frequency": 10.118, "mode": "cw"},
  {"id": 6, "timeStamp": "yesterday", "callsign": "YO6D", "associationCode": "YO", "summitCode": "EC-004", "frequency": "7.1", "mode": "ssb"},
  {"id": "five", "callsign": "YO5E"}
]`))
	})
	spots, err := c.FetchSpots(context.Background(), Within(1))
	if err != nil {
		t.Fatalf("one bad record must not fail the batch: %v", err)
	}
	if len(spots) != 3 {
		t.Fatalf("expected 3 decodable spots, got %d", len(spots))
	}
	if spots[0].ID != 9 || spots[1].ID != 8 || spots[2].ID != 7 {
		t.Fatalf("unexpected ids %d %d %d", spots[0].ID, spots[1].ID, spots[2].ID)
	}
	if spots[1].FrequencyText != "7.032/14.062" || spots[1].FrequencyMHz != 0 {
		t.Fatalf("expected raw frequency text kept, got %+v", spots[1])
	}
	if spots[0].FrequencyText != "" || spots[0].FrequencyMHz != 14.285 {
		t.Fatalf("expected numeric frequency parsed, got %+v", spots[0])
	}
}

func TestFetchSpotsTransportError(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()
	if _, err := c.FetchSpots(context.Background(), Latest(1)); !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("expected ErrFeedUnavailable, got %v", err)
	}
}

func TestFetchSummit(t *testing.T) {
	var gotPath string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"summitCode":"YO/EC-001","name":"Vârful Omu","altM":2505,"latitude":"45.4456","longitude":25.4567}`))
	})
	s, err := c.FetchSummit(context.Background(), NewSummitKey("yo", "ec-001"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/api/summits/YO/EC-001" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if s.AltitudeM != 2505 || s.Point.Lat != 45.4456 || s.Point.Lon != 25.4567 {
		t.Fatalf("unexpected summit %+v", s)
	}
	if s.Key.String() != "YO/EC-001" {
		t.Fatalf("unexpected key %s", s.Key)
	}
}

func TestFetchSummitUnknownOrBroken(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"not found": func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) },
		"null":      func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("null")) },
		"no coords": func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"name":"x","altM":1}`)) },
		"garbage":   func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`<html>`)) },
	}
	for name, h := range cases {
		c, _ := newTestClient(t, h)
		_, err := c.FetchSummit(context.Background(), NewSummitKey("G", "LD-001"))
		if !errors.Is(err, ErrLocationUnavailable) {
			t.Fatalf("%s: expected ErrLocationUnavailable, got %v", name, err)
		}
	}
}

func TestLookbackHours(t *testing.T) {
	if h := LookbackHours(60 * time.Second); h != 1 {
		t.Fatalf("expected minimum of 1 hour, got %v", h)
	}
	if h := LookbackHours(2 * time.Hour); h != 2 {
		t.Fatalf("expected 2 hours, got %v", h)
	}
	if h := LookbackHours(90 * time.Minute); h != 1.5 {
		t.Fatalf("expected 1.5 hours, got %v", h)
	}
}
