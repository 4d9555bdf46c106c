package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rendis/lienzo/internal/validation"
)

// Config holds all lienzo configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	ListenAddr      string          `json:"listen_addr"`
	DBPath          string          `json:"db_path"`
	LogLevel        string          `json:"log_level"`
	Renderer        string          `json:"renderer"`
	MermaidCLIPath  string          `json:"mermaid_cli_path,omitempty"`
	MermaidASCIIDir string          `json:"mermaid_ascii_dir,omitempty"`
	Theme           string          `json:"theme"`
	ThemeCatalog    string          `json:"theme_catalog,omitempty"`
	Locale          string          `json:"locale,omitempty"`
	ViewportWidth   float64         `json:"viewport_width"`
	ViewportHeight  float64         `json:"viewport_height"`
	AutosaveCron    string          `json:"autosave_cron"`
	VacuumCron      string          `json:"vacuum_cron"`
	WatchFile       string          `json:"watch_file,omitempty"`
	Session         string          `json:"session,omitempty"`
	ClassifierRules ClassifierRules `json:"classifier_rules,omitzero"`
	MCP             bool            `json:"mcp"`
}

// ClassifierRules are expr rules replacing the default node and edge-label
// markers. Both empty keeps the defaults.
type ClassifierRules struct {
	Node      string `json:"node,omitempty"`
	EdgeLabel string `json:"edge_label,omitempty"`
}

const (
	rendererGraphviz   = "graphviz"
	rendererMermaidCLI = "mermaid-cli"
)

func defaultConfig() Config {
	return Config{
		ListenAddr:      "127.0.0.1:4200",
		DBPath:          filepath.Join(lienzoDir(), "lienzo.db"),
		LogLevel:        "info",
		Renderer:        rendererGraphviz,
		MermaidASCIIDir: filepath.Join(lienzoDir(), "bin"),
		Theme:           "default",
		ViewportWidth:   1280,
		ViewportHeight:  800,
		AutosaveCron:    "@every 30s",
		VacuumCron:      "@daily",
		Session:         "default",
	}
}

func lienzoDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lienzo"
	}
	return filepath.Join(home, ".lienzo")
}

func settingsPath() string {
	return filepath.Join(lienzoDir(), "settings.json")
}

// loadConfig layers settings.json and LIENZO_* env vars over the defaults.
// A settings file that fails schema validation is an error; a missing one
// is not.
func loadConfig() (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.json.
	if data, err := os.ReadFile(settingsPath()); err == nil {
		if err := applySettings(&cfg, data); err != nil {
			return cfg, fmt.Errorf("%s: %w", settingsPath(), err)
		}
	}

	// Layer 3: env vars override.
	applyEnv(&cfg, os.Getenv)
	return cfg, nil
}

// applySettings validates a settings document and merges it into cfg.
func applySettings(cfg *Config, data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	v, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return err
	}
	if err := v.ValidateSettings(doc); err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config, getenv func(string) string) {
	str := map[string]*string{
		"LIENZO_LISTEN_ADDR":       &cfg.ListenAddr,
		"LIENZO_DB_PATH":           &cfg.DBPath,
		"LIENZO_LOG_LEVEL":         &cfg.LogLevel,
		"LIENZO_RENDERER":          &cfg.Renderer,
		"LIENZO_MERMAID_CLI_PATH":  &cfg.MermaidCLIPath,
		"LIENZO_MERMAID_ASCII_DIR": &cfg.MermaidASCIIDir,
		"LIENZO_THEME":             &cfg.Theme,
		"LIENZO_THEME_CATALOG":     &cfg.ThemeCatalog,
		"LIENZO_LOCALE":            &cfg.Locale,
		"LIENZO_AUTOSAVE_CRON":     &cfg.AutosaveCron,
		"LIENZO_VACUUM_CRON":       &cfg.VacuumCron,
		"LIENZO_WATCH_FILE":        &cfg.WatchFile,
		"LIENZO_SESSION":           &cfg.Session,
	}
	for key, dst := range str {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	if v := getenv("LIENZO_VIEWPORT_WIDTH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.ViewportWidth = f
		}
	}
	if v := getenv("LIENZO_VIEWPORT_HEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.ViewportHeight = f
		}
	}
	if v := getenv("LIENZO_MCP"); v != "" {
		cfg.MCP = v == "true" || v == "1"
	}
}

// bindFlags registers the command-line layer on fs. Flags left unset keep
// the lower layers' values.
func bindFlags(fs *flag.FlagSet, cfg *Config) (showVersion *bool) {
	fs.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "panel listen address (empty disables the panel)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "session database path")
	fs.StringVar(&cfg.Session, "session", cfg.Session, "session id to open or create")
	fs.StringVar(&cfg.WatchFile, "watch", cfg.WatchFile, "diagram source file to watch and edit")
	fs.BoolVar(&cfg.MCP, "mcp", cfg.MCP, "serve MCP tools over stdio")
	fs.StringVar(&cfg.Theme, "theme", cfg.Theme, "initial theme id")
	fs.StringVar(&cfg.Renderer, "renderer", cfg.Renderer, "renderer: graphviz or mermaid-cli")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	return fs.Bool("version", false, "print version and exit")
}

// validate checks cross-field constraints the schema cannot express.
func (c Config) validate() error {
	switch c.Renderer {
	case rendererGraphviz, rendererMermaidCLI:
	default:
		return fmt.Errorf("unknown renderer %q (want %s or %s)", c.Renderer, rendererGraphviz, rendererMermaidCLI)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return fmt.Errorf("viewport size must be positive")
	}
	return nil
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged     bool
	ThemeCatalogChanged bool
	RestartNeeded       []string // fields that require a restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.ThemeCatalog != new.ThemeCatalog {
		d.ThemeCatalogChanged = true
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.Renderer != new.Renderer || old.MermaidCLIPath != new.MermaidCLIPath {
		d.RestartNeeded = append(d.RestartNeeded, "renderer")
	}
	if old.Session != new.Session {
		d.RestartNeeded = append(d.RestartNeeded, "session")
	}
	if old.WatchFile != new.WatchFile {
		d.RestartNeeded = append(d.RestartNeeded, "watch_file")
	}
	return d
}
