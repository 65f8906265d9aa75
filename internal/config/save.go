package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shalom-dev-bot/astremina/internal/domain"
)

// SourceSeed is one entry of sources.yml. Sources are data: the engine
// upserts them into the registry by name at startup.
type SourceSeed struct {
	Name       string            `yaml:"name" json:"name"`
	Endpoint   string            `yaml:"endpoint" json:"endpoint"`
	Family     string            `yaml:"family,omitempty" json:"family,omitempty"`
	Active     *bool             `yaml:"active,omitempty" json:"active,omitempty"`
	Interval   string            `yaml:"interval,omitempty" json:"interval,omitempty"`
	Extraction map[string]string `yaml:"extraction,omitempty" json:"extraction,omitempty"`
}

type SourcesFile struct {
	Sources []SourceSeed `yaml:"sources" json:"sources"`
}

// LoadSources reads a sources file. A missing file yields no sources.
func LoadSources(path string) (SourcesFile, error) {
	var sf SourcesFile
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sf, nil
		}
		return sf, err
	}
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return sf, fmt.Errorf("parse %s: %w", path, err)
	}
	return sf, nil
}

func (s SourceSeed) ToDomain() (domain.Source, error) {
	src := domain.Source{
		Name:       strings.TrimSpace(s.Name),
		Endpoint:   strings.TrimSpace(s.Endpoint),
		Family:     domain.Family(strings.ToLower(strings.TrimSpace(s.Family))),
		Extraction: domain.ExtractionConfig(s.Extraction),
		Active:     s.Active == nil || *s.Active,
	}
	if src.Family == "" {
		src.Family = domain.InferFamily(src.Endpoint)
	}
	if s.Interval != "" {
		d, err := time.ParseDuration(s.Interval)
		if err != nil {
			return src, fmt.Errorf("source %q: interval: %w", s.Name, err)
		}
		src.Interval = d
	}
	return src, nil
}

func ValidateSources(sf SourcesFile) error {
	var errs []string
	seen := map[string]bool{}

	for i, s := range sf.Sources {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			errs = append(errs, fmt.Sprintf("sources[%d].name is required", i))
		} else if seen[strings.ToLower(name)] {
			errs = append(errs, fmt.Sprintf("sources[%d].name %q is duplicated", i, name))
		}
		seen[strings.ToLower(name)] = true

		// mailbox endpoints are imap host:port pairs, not URLs
		fam := domain.Family(strings.ToLower(strings.TrimSpace(s.Family)))
		if fam != domain.FamilyMailbox {
			if u, err := url.Parse(s.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, fmt.Sprintf("sources[%d].endpoint must be an absolute URL", i))
			}
		} else if strings.TrimSpace(s.Endpoint) == "" {
			errs = append(errs, fmt.Sprintf("sources[%d].endpoint is required", i))
		}
		if fam != "" && !fam.Valid() {
			errs = append(errs, fmt.Sprintf("sources[%d].family %q is unknown", i, s.Family))
		}
		if s.Interval != "" {
			if _, err := time.ParseDuration(s.Interval); err != nil {
				errs = append(errs, fmt.Sprintf("sources[%d].interval: %v", i, err))
			}
		}
	}

	if len(errs) > 0 {
		return errors.New("sources validation failed:\n- " + strings.Join(errs, "\n- "))
	}
	return nil
}

// SaveSourcesAtomic writes tmp, keeps the previous file as .bak, then renames into place.
func SaveSourcesAtomic(path string, sf SourcesFile) error {
	if err := ValidateSources(sf); err != nil {
		return err
	}

	b, err := yaml.Marshal(&sf)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	bak := path + ".bak"

	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}

	_ = os.Remove(bak)
	_ = os.Rename(path, bak)

	return os.Rename(tmp, path)
}

// SeedFromSource is the inverse of ToDomain, used when exporting the registry.
func SeedFromSource(src domain.Source) SourceSeed {
	active := src.Active
	s := SourceSeed{
		Name:       src.Name,
		Endpoint:   src.Endpoint,
		Family:     string(src.Family),
		Active:     &active,
		Extraction: map[string]string(src.Extraction),
	}
	if src.Interval > 0 {
		s.Interval = src.Interval.String()
	}
	return s
}
