package sites

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Package sites contains pluggable source-site configs (YAML/JSON) helpers.

// ErrNoSite is returned when no configured site matches a URL.
var ErrNoSite = errors.New("no site mapped to url")

// Site describes one source site: where its event calendar lives and which
// parser variant understands its markup.
type Site struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	CalendarURL string `json:"calendar_url" yaml:"calendar_url"`
	// URLPattern is matched as a case-insensitive substring against URLs
	// to resolve the parser for ad-hoc harvests.
	URLPattern     string         `json:"url_pattern" yaml:"url_pattern"`
	PageSize       int            `json:"page_size" yaml:"page_size"`
	RequestDelayMs int            `json:"request_delay_ms" yaml:"request_delay_ms"`
	Config         map[string]any `json:"config" yaml:"config"`
}

type registryFile struct {
	Sites []Site `json:"sites" yaml:"sites"`
}

const (
	defaultPageSize       = 25
	defaultRequestDelayMs = 1000
)

// Registry materializes site definitions loaded from config files.
type Registry struct {
	mu    sync.RWMutex
	sites []Site
	idx   map[string]Site
}

// LoadRegistry loads the sites registry from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sites file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sites file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}

	fileReg, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(fileReg.Sites) == 0 {
		return nil, errors.New("sites file contains no sites entries")
	}

	reg := &Registry{
		sites: make([]Site, len(fileReg.Sites)),
		idx:   make(map[string]Site, len(fileReg.Sites)),
	}

	for i := range fileReg.Sites {
		s := sanitizeSite(fileReg.Sites[i])
		if err := validateSite(s); err != nil {
			return nil, fmt.Errorf("sites[%d]: %w", i, err)
		}
		if _, exists := reg.idx[s.ID]; exists {
			return nil, fmt.Errorf("duplicate site id %q", s.ID)
		}
		reg.sites[i] = s
		reg.idx[s.ID] = s
	}

	return reg, nil
}

func sanitizeSite(s Site) Site {
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	s.Type = strings.TrimSpace(s.Type)
	s.CalendarURL = strings.TrimSpace(s.CalendarURL)
	s.URLPattern = strings.TrimSpace(s.URLPattern)

	if s.Config == nil {
		s.Config = map[string]any{}
	}
	if s.PageSize <= 0 {
		s.PageSize = defaultPageSize
	}
	if s.RequestDelayMs <= 0 {
		s.RequestDelayMs = defaultRequestDelayMs
	}

	return s
}

func validateSite(s Site) error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Name == "" {
		return fmt.Errorf("name is required for site %q", s.ID)
	}
	if s.Type == "" {
		return fmt.Errorf("type is required for site %q", s.ID)
	}
	if s.CalendarURL == "" {
		return fmt.Errorf("calendar_url is required for site %q", s.ID)
	}
	if s.URLPattern == "" {
		return fmt.Errorf("url_pattern is required for site %q", s.ID)
	}
	return nil
}

// All returns a copy of the loaded site definitions.
func (r *Registry) All() []Site {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Site, len(r.sites))
	copy(out, r.sites)
	return out
}

// ByID returns the site entry for the given id, if loaded.
func (r *Registry) ByID(id string) (Site, bool) {
	if r == nil {
		return Site{}, false
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return Site{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.idx[id]
	return s, ok
}

// ForURL resolves the site whose url_pattern matches the given URL.
// Returns ErrNoSite when no pattern matches; the caller treats that as
// fatal for the URL only.
func (r *Registry) ForURL(url string) (Site, error) {
	if r == nil {
		return Site{}, ErrNoSite
	}

	lower := strings.ToLower(url)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sites {
		if strings.Contains(lower, strings.ToLower(s.URLPattern)) {
			return s, nil
		}
	}
	return Site{}, fmt.Errorf("%w: %s", ErrNoSite, url)
}

func parseRegistry(data []byte, ext string) (registryFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if reg, err := unmarshalRegistry(d.name, data, d.fn); err == nil {
			return reg, nil
		}
	}

	return registryFile{}, errors.New("sites file format not recognized (expected YAML or JSON)")
}

type unmarshalFn func([]byte, any) error

func unmarshalRegistry(name string, data []byte, fn unmarshalFn) (registryFile, error) {
	var reg registryFile
	if err := fn(data, &reg); err != nil {
		return registryFile{}, fmt.Errorf("decode %s sites: %w", name, err)
	}
	return reg, nil
}

// RequestDelay returns the per-request throttle duration for the site.
func (s Site) RequestDelay() time.Duration {
	if s.RequestDelayMs <= 0 {
		return time.Duration(defaultRequestDelayMs) * time.Millisecond
	}
	return time.Duration(s.RequestDelayMs) * time.Millisecond
}
