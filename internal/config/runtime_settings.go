package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

const DefaultRuntimeSettingsFile = "/app/config/news-settings.json"

// RuntimeSettings are the industry news automation settings editable while the service runs.
type RuntimeSettings struct {
	Enabled             bool     `json:"enabled"`
	CronExpr            string   `json:"cron_expr"`
	SearchQueries       []string `json:"search_queries"`
	DailyCap            int      `json:"daily_cap"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	TargetCategory      string   `json:"target_category,omitempty"`
	TargetLanguages     []string `json:"target_languages"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.CronExpr) == "" {
		return fmt.Errorf("cron_expr is required")
	}
	if _, err := cron.ParseStandard(s.CronExpr); err != nil {
		return fmt.Errorf("invalid cron_expr: %w", err)
	}
	if s.DailyCap <= 0 {
		return fmt.Errorf("daily_cap must be positive")
	}
	if s.SimilarityThreshold <= 0 || s.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in (0, 1]")
	}
	if s.Enabled && len(s.SearchQueries) == 0 {
		return fmt.Errorf("search_queries is required when enabled")
	}
	for _, lang := range s.TargetLanguages {
		if _, err := language.Parse(lang); err != nil {
			return fmt.Errorf("invalid target language %q: %w", lang, err)
		}
	}
	return nil
}

// RuntimeSettings derives the initial settings from env config.
func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		Enabled:             c.News.Enabled,
		CronExpr:            c.News.CronExpr,
		SearchQueries:       getEnvList("NEWS_QUERIES", []string{"industry news"}),
		DailyCap:            getEnvInt("NEWS_DAILY_CAP", 100),
		SimilarityThreshold: getEnvFloat("NEWS_SIMILARITY_THRESHOLD", 0.85),
		TargetCategory:      getEnvString("NEWS_TARGET_CATEGORY", ""),
		TargetLanguages:     c.Translate.LanguageCodes(),
	}
}

// WithRuntimeSettings overlays persisted settings on the env config.
func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		c.News.Enabled = settings.Enabled
		if strings.TrimSpace(settings.CronExpr) != "" {
			c.News.CronExpr = settings.CronExpr
		}
		if len(settings.TargetLanguages) > 0 {
			if tags, err := parseLanguages(settings.TargetLanguages); err == nil {
				c.Translate.Languages = tags
			}
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
