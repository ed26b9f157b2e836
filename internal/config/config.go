package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProfileOption is one extra UCI option applied after the handshake.
type ProfileOption struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// EngineProfile is the optional YAML file referenced by ENGINE_PROFILE, for
// options beyond threads/hash (e.g. SyzygyPath).
type EngineProfile struct {
	Options []ProfileOption `yaml:"options"`
}

type AppConfig struct {
	Port int

	EnginePath    string
	EngineThreads int
	EngineHashMB  int
	EngineOptions []ProfileOption

	RedisURL    string
	CacheTTLSec int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Port:          9898,
		EnginePath:    "stockfish",
		EngineThreads: 1,
		EngineHashMB:  128,
		CacheTTLSec:   600,
	}

	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("PORT invalid: %q", v)
		}
		cfg.Port = n
	}

	if v := strings.TrimSpace(os.Getenv("ENGINE_PATH")); v != "" {
		cfg.EnginePath = v
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_THREADS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineThreads = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_HASH_MB")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineHashMB = n
		}
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if v := strings.TrimSpace(os.Getenv("CACHE_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheTTLSec = n
		}
	}

	if path := strings.TrimSpace(os.Getenv("ENGINE_PROFILE")); path != "" {
		profile, err := loadProfile(path)
		if err != nil {
			return nil, err
		}
		cfg.EngineOptions = profile.Options
	}

	return cfg, nil
}

func loadProfile(path string) (*EngineProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read engine profile: %w", err)
	}
	var profile EngineProfile
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("parse engine profile: %w", err)
	}
	for i, opt := range profile.Options {
		if strings.TrimSpace(opt.Name) == "" {
			return nil, fmt.Errorf("engine profile: option %d has no name", i)
		}
	}
	return &profile, nil
}
