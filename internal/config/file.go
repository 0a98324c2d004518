package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the YAML config file. Pointer fields distinguish "absent" from zero.
type File struct {
	Location        string   `yaml:"location"`
	DistanceKm      *float64 `yaml:"distance_km"`
	IntervalSeconds *int     `yaml:"interval_seconds"`
	Modes           []string `yaml:"modes"`
	APIURL          string   `yaml:"sota_api_url"`
	OpsAddr         string   `yaml:"ops_addr"`
	JournalPath     string   `yaml:"journal_path"`
	Notify          struct {
		Command        string `yaml:"command"`
		AppName        string `yaml:"app_name"`
		DisableDesktop *bool  `yaml:"disable_desktop"`
	} `yaml:"notify"`
	Ntfy struct {
		URL   string   `yaml:"url"`
		Topic string   `yaml:"topic"`
		Tags  []string `yaml:"tags"`
	} `yaml:"ntfy"`
}

// ReadFile parses path. A missing file is not an error: found is false.
func ReadFile(path string) (File, bool, error) {
	var f File
	if path == "" {
		return f, false, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, false, nil
	}
	if err != nil {
		return f, false, &Error{Field: "config file", Err: err}
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, false, &Error{Field: "config file", Err: err}
	}
	return f, true, nil
}

func (f File) apply(cfg *Config, location string) string {
	if f.Location != "" {
		location = f.Location
	}
	if f.DistanceKm != nil {
		cfg.DistanceKm = *f.DistanceKm
	}
	if f.IntervalSeconds != nil {
		cfg.Interval = time.Duration(*f.IntervalSeconds) * time.Second
	}
	if f.Modes != nil {
		cfg.Modes = f.Modes
	}
	if f.APIURL != "" {
		cfg.APIURL = f.APIURL
	}
	if f.OpsAddr != "" {
		cfg.OpsAddr = f.OpsAddr
	}
	if f.JournalPath != "" {
		cfg.JournalPath = f.JournalPath
	}
	if f.Notify.Command != "" {
		cfg.NotifyCommand = f.Notify.Command
	}
	if f.Notify.AppName != "" {
		cfg.NotifyAppName = f.Notify.AppName
	}
	if f.Notify.DisableDesktop != nil {
		cfg.DesktopEnabled = !*f.Notify.DisableDesktop
	}
	if f.Ntfy.URL != "" {
		cfg.NtfyURL = f.Ntfy.URL
	}
	if f.Ntfy.Topic != "" {
		cfg.NtfyTopic = f.Ntfy.Topic
	}
	if f.Ntfy.Tags != nil {
		cfg.NtfyTags = f.Ntfy.Tags
	}
	return location
}

// Reloadable is the subset of File the running monitor picks up on change.
type Reloadable struct {
	DistanceKm *float64
	Modes      []string
	HasModes   bool
}

// ReadReloadable re-reads path for the hot-reloadable settings.
func ReadReloadable(path string) (Reloadable, error) {
	f, found, err := ReadFile(path)
	if err != nil {
		return Reloadable{}, err
	}
	if !found {
		return Reloadable{}, &Error{Field: "config file", Err: fs.ErrNotExist}
	}
	r := Reloadable{DistanceKm: f.DistanceKm, Modes: f.Modes, HasModes: f.Modes != nil}
	if r.DistanceKm != nil {
		if err := validDistance(KeyDistance, *r.DistanceKm); err != nil {
			return Reloadable{}, err
		}
	}
	return r, nil
}
