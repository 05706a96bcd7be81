// Package config loads the engine's configuration from JSONC files and CLI
// flags, with defaults < global file < project file < flags precedence
// (§6 enumerated configuration keys).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/docengine/pkg/document"
	"github.com/calvinalkan/docengine/pkg/index"
)

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errDataPathEmpty      = errors.New("data_path cannot be empty")
)

// ConfigFileName is the default project config file name.
const ConfigFileName = ".docengine.json"

// Config holds every engine configuration value (§6).
type Config struct {
	DataPath                          string  `json:"data_path"`
	NullSentinelToken                 string  `json:"null_sentinel_token"`
	AutoFacetEnabled                  bool    `json:"auto_facet_enabled"`
	AutoDocValuesEnabled              bool    `json:"auto_doc_values_enabled"`
	SchemaPersistenceIntervalSeconds  float64 `json:"schema_persistence_interval_seconds"`
	StorageCompression                string  `json:"storage_compression"`
}

// ConfigSources tracks which config files were loaded, for diagnostics.
type ConfigSources struct {
	Global  string
	Project string
}

// Default returns the configuration's defaults (§6: "default = next to
// executable" for data-path is resolved by the caller; Default leaves it
// empty so callers can fill in their own executable-relative default).
func Default() Config {
	return Config{
		DataPath:                         "",
		NullSentinelToken:                "_null_",
		AutoFacetEnabled:                 true,
		AutoDocValuesEnabled:             true,
		SchemaPersistenceIntervalSeconds: 1.0,
		StorageCompression:               "fast-streaming",
	}
}

// Codec maps StorageCompression to a document.Codec.
func (c Config) Codec() (document.Codec, error) {
	return document.ParseCodec(c.StorageCompression)
}

// IndexConfig maps the relevant fields to index.Config.
func (c Config) IndexConfig() index.Config {
	return index.Config{
		NullSentinelToken:    c.NullSentinelToken,
		AutoFacetEnabled:     c.AutoFacetEnabled,
		AutoDocValuesEnabled: c.AutoDocValuesEnabled,
	}
}

// getGlobalConfigPath returns the path to the global config file, honoring
// XDG_CONFIG_HOME if present in env (or the process environment).
func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "docengine", "config.json")
		}
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "docengine", "config.json")
	}
	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "docengine", "config.json")
	}
	return ""
}

// Load loads configuration with the following precedence (highest wins):
//  1. Default
//  2. Global user config
//  3. Project config file (.docengine.json, or configPath if given)
//  4. cliOverrides, applied field-by-field where the caller indicates an
//     override was actually supplied (hasDataPathOverride etc.)
func Load(workDir, configPath string, cliOverrides Config, hasDataPathOverride bool, env []string) (Config, ConfigSources, error) {
	cfg := Default()
	var sources ConfigSources

	globalCfg, globalPath, err := loadGlobalConfig(env)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}
	sources.Global = globalPath
	cfg = merge(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, configPath)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}
	sources.Project = projectPath
	cfg = merge(cfg, projectCfg)

	if hasDataPathOverride {
		cfg.DataPath = cliOverrides.DataPath
	}

	if err := validate(cfg); err != nil {
		return Config{}, ConfigSources{}, err
	}

	return cfg, sources, nil
}

func loadGlobalConfig(env []string) (Config, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}
	cfg, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}
	if !loaded {
		return Config{}, "", nil
	}
	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var cfgFile string
	mustExist := false

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}
		mustExist = true
		if _, err := os.Stat(cfgFile); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, ConfigFileName)
	}

	cfg, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}
	if !loaded {
		return Config{}, "", nil
	}
	return cfg, cfgFile, nil
}

func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}
		if mustExist {
			return Config{}, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
		}
		return Config{}, false, nil
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}
	return cfg, true, nil
}

func parseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return cfg, nil
}

// merge overlays overlay's non-zero fields onto base. The two boolean
// toggles are OR-ed across layers: a bare bool can't distinguish "absent
// from this layer" from "explicitly disabled here", so a layer can only
// turn a toggle on. Since Default sets both to true, no config file can
// turn either of them off.
func merge(base, overlay Config) Config {
	if overlay.DataPath != "" {
		base.DataPath = overlay.DataPath
	}
	if overlay.NullSentinelToken != "" {
		base.NullSentinelToken = overlay.NullSentinelToken
	}
	if overlay.SchemaPersistenceIntervalSeconds != 0 {
		base.SchemaPersistenceIntervalSeconds = overlay.SchemaPersistenceIntervalSeconds
	}
	if overlay.StorageCompression != "" {
		base.StorageCompression = overlay.StorageCompression
	}
	base.AutoFacetEnabled = overlay.AutoFacetEnabled || base.AutoFacetEnabled
	base.AutoDocValuesEnabled = overlay.AutoDocValuesEnabled || base.AutoDocValuesEnabled
	return base
}

func validate(cfg Config) error {
	if cfg.DataPath == "" {
		return errDataPathEmpty
	}
	if _, err := document.ParseCodec(cfg.StorageCompression); err != nil {
		return fmt.Errorf("%w: storage_compression %q", errConfigInvalid, cfg.StorageCompression)
	}
	return nil
}

// Format returns cfg as formatted JSON, for a "config" diagnostic command.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}
	return string(data), nil
}
