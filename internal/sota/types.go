package sota

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/rimio/sota-notifier/internal/geo"
)

// SummitKey identifies an activation site by association and summit code, e.g. YO/EC-001.
type SummitKey struct {
	Association string `json:"association"`
	Code        string `json:"code"`
}

// NewSummitKey normalizes both parts to trimmed upper case.
func NewSummitKey(association, code string) SummitKey {
	return SummitKey{
		Association: strings.ToUpper(strings.TrimSpace(association)),
		Code:        strings.ToUpper(strings.TrimSpace(code)),
	}
}

func (k SummitKey) String() string {
	return k.Association + "/" + k.Code
}

// Valid reports whether both parts are present.
func (k SummitKey) Valid() bool {
	return k.Association != "" && k.Code != ""
}

// Spot is one activation report from the feed.
type Spot struct {
	ID                int64     `json:"id"`
	Callsign          string    `json:"callsign"`
	ActivatorCallsign string    `json:"activator_callsign,omitempty"`
	ActivatorName     string    `json:"activator_name,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
	Summit            SummitKey `json:"summit"`
	FrequencyMHz      float64   `json:"frequency_mhz"`
	// FrequencyText holds the feed's frequency verbatim when it is not a plain number,
	// e.g. "7.032/14.062".
	FrequencyText string `json:"frequency_text,omitempty"`
	Mode          string `json:"mode"`
	Comments      string `json:"comments,omitempty"`
}

// Summit is the geographic metadata for an activation site.
type Summit struct {
	Key       SummitKey `json:"key"`
	Name      string    `json:"name"`
	Point     geo.Point `json:"point"`
	AltitudeM int       `json:"altitude_m"`
}

// wireSpot mirrors the feed JSON.
type wireSpot struct {
	ID                int64     `json:"id"`
	TimeStamp         string    `json:"timeStamp"`
	Comments          string    `json:"comments"`
	Callsign          string    `json:"callsign"`
	AssociationCode   string    `json:"associationCode"`
	SummitCode        string    `json:"summitCode"`
	ActivatorCallsign string    `json:"activatorCallsign"`
	ActivatorName     string    `json:"activatorName"`
	Frequency         frequency `json:"frequency"`
	Mode              string    `json:"mode"`
}

type wireSummit struct {
	SummitCode string     `json:"summitCode"`
	Name       string     `json:"name"`
	AltM       flexNumber `json:"altM"`
	Latitude   flexNumber `json:"latitude"`
	Longitude  flexNumber `json:"longitude"`
}

// flexNumber accepts a JSON number, a numeric string, or null.
type flexNumber struct {
	Value float64
	Set   bool
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = flexNumber{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = flexNumber{}
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse number %q: %w", s, err)
		}
		*n = flexNumber{Value: f, Set: true}
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("parse number %s: %w", b, err)
	}
	*n = flexNumber{Value: f, Set: true}
	return nil
}

// frequency is free text in the feed. Anything that is not a number is kept as text.
type frequency struct {
	MHz  float64
	Text string
}

func (f *frequency) UnmarshalJSON(b []byte) error {
	*f = frequency{}
	var n flexNumber
	if err := n.UnmarshalJSON(b); err == nil {
		f.MHz = n.Value
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		f.Text = strings.TrimSpace(string(b))
		return nil
	}
	f.Text = strings.TrimSpace(s)
	return nil
}

// Feed timestamps carry no zone and are UTC.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (w wireSpot) toSpot() (Spot, error) {
	ts, err := parseTimestamp(w.TimeStamp)
	if err != nil {
		return Spot{}, fmt.Errorf("spot %d: %w", w.ID, err)
	}
	return Spot{
		ID:                w.ID,
		Callsign:          strings.TrimSpace(w.Callsign),
		ActivatorCallsign: strings.TrimSpace(w.ActivatorCallsign),
		ActivatorName:     strings.TrimSpace(w.ActivatorName),
		Timestamp:         ts,
		Summit:            NewSummitKey(w.AssociationCode, w.SummitCode),
		FrequencyMHz:      w.Frequency.MHz,
		FrequencyText:     w.Frequency.Text,
		Mode:              strings.TrimSpace(w.Mode),
		Comments:          strings.TrimSpace(w.Comments),
	}, nil
}

func (w wireSummit) toSummit(key SummitKey) (Summit, error) {
	if !w.Latitude.Set || !w.Longitude.Set {
		return Summit{}, fmt.Errorf("summit %s has no coordinates", key)
	}
	pt := geo.Point{Lat: w.Latitude.Value, Lon: w.Longitude.Value}
	if err := pt.Validate(); err != nil {
		return Summit{}, fmt.Errorf("summit %s: %w", key, err)
	}
	return Summit{
		Key:       key,
		Name:      norm.NFC.String(strings.TrimSpace(w.Name)),
		Point:     pt,
		AltitudeM: int(w.AltM.Value),
	}, nil
}
