package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"cinequery"
	"cinequery/internal/engine"
)

// StoreConfig locates the catalogue database and the narrative cache file.
type StoreConfig struct {
	Path      string `yaml:"path"`
	Table     string `yaml:"table"`
	CacheFile string `yaml:"cache_file"`
}

// FileConfig is the on-disk configuration shape.
type FileConfig struct {
	Agent  cinequery.Config `yaml:"agent"`
	Engine engine.Config    `yaml:"engine"`
	Store  StoreConfig      `yaml:"store"`

	// CacheTTL bounds how long schema narratives are reused.
	CacheTTL cinequery.Duration `yaml:"cache_ttl"`
}

func defaultFileConfig() FileConfig {
	return FileConfig{
		Agent: cinequery.DefaultConfig(),
		Engine: engine.Config{
			Model:     engine.DefaultModel,
			MaxTokens: engine.DefaultMaxTokens,
		},
		Store: StoreConfig{
			Path:  "movies.db",
			Table: "movies",
		},
		CacheTTL: cinequery.Duration(24 * time.Hour),
	}
}

// loadConfig merges an optional YAML file over the defaults. The API
// key always comes from the environment, never the file.
func loadConfig(path string) (FileConfig, error) {
	cfg := defaultFileConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.Engine.APIKey = os.Getenv("OPENAI_API_KEY")
	return cfg, nil
}
