package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/tliron/commonlog"
	"gopkg.in/yaml.v3"
)

const (
	ModeRendezvous = "rendezvous"
	ModeDirect     = "direct"

	ClipboardMemory = "memory"
	ClipboardSystem = "system"
)

// Workspace config files, in lookup order.
var WorkspaceFiles = []string{".i18nlens.yaml", ".i18nlens.yml", ".i18nlens.toml"}

type ReferencesConfig struct {
	// Mode is ModeRendezvous (search panel + clipboard) or ModeDirect.
	Mode      string
	Clipboard string
}

type DecorationConfig struct {
	Color  string
	Border string
	Margin string
}

type Config struct {
	WorkspaceRoot      string
	LocaleGlobs        []string
	SupportedLanguages []string
	// SearchTimeout is measured from the start of clipboard polling.
	SearchTimeout      time.Duration
	SearchPollInterval time.Duration
	DecorationRefresh  time.Duration
	RebuildDebounce    time.Duration
	SearchExclude      []string
	ScanCacheBytes     int64
	References         ReferencesConfig
	Decoration         DecorationConfig
}

func NewConfig() *Config {
	return &Config{
		WorkspaceRoot:      ".",
		LocaleGlobs:        []string{"src/locales/zh-CN/**/*.ts", "src/locales/zh-CN.ts"},
		SupportedLanguages: []string{"javascript", "javascriptreact", "typescript", "typescriptreact"},
		SearchTimeout:      20 * time.Millisecond,
		SearchPollInterval: 100 * time.Millisecond,
		DecorationRefresh:  100 * time.Millisecond,
		RebuildDebounce:    50 * time.Millisecond,
		SearchExclude:      []string{"**/node_modules/**", "**/.git/**"},
		ScanCacheBytes:     32 << 20,
		References: ReferencesConfig{
			Mode:      ModeRendezvous,
			Clipboard: ClipboardMemory,
		},
		Decoration: DecorationConfig{
			Color:  "rgb(209 209 209 / 80%)",
			Border: "1px dashed green",
			Margin: "0 0 0 0.5rem",
		},
	}
}

// SetWorkspaceRoot stores root as an absolute, clean path.
func (c *Config) SetWorkspaceRoot(root string) {
	if root == "" {
		root = "."
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	c.WorkspaceRoot = filepath.Clean(root)
}

func (c *Config) IsSupportedLanguage(languageID string) bool {
	return slices.Contains(c.SupportedLanguages, languageID)
}

// fileConfig is the on-disk shape. Durations are in milliseconds and unset
// fields keep their current value.
type fileConfig struct {
	LocaleGlobs         []string `yaml:"localeGlobs" toml:"localeGlobs"`
	SupportedLanguages  []string `yaml:"supportedLanguages" toml:"supportedLanguages"`
	SearchTimeoutMs     *int     `yaml:"searchTimeoutMs" toml:"searchTimeoutMs"`
	SearchPollMs        *int     `yaml:"searchPollMs" toml:"searchPollMs"`
	DecorationRefreshMs *int     `yaml:"decorationRefreshMs" toml:"decorationRefreshMs"`
	RebuildDebounceMs   *int     `yaml:"rebuildDebounceMs" toml:"rebuildDebounceMs"`
	SearchExclude       []string `yaml:"searchExclude" toml:"searchExclude"`
	ScanCacheBytes      *int64   `yaml:"scanCacheBytes" toml:"scanCacheBytes"`
	References          struct {
		Mode      string `yaml:"mode" toml:"mode"`
		Clipboard string `yaml:"clipboard" toml:"clipboard"`
	} `yaml:"references" toml:"references"`
	Decoration struct {
		Color  string `yaml:"color" toml:"color"`
		Border string `yaml:"border" toml:"border"`
		Margin string `yaml:"margin" toml:"margin"`
	} `yaml:"decoration" toml:"decoration"`
}

// LoadWorkspaceFile applies the first workspace config file found in the
// workspace root. It returns the path it loaded, or "" when there is none.
func (c *Config) LoadWorkspaceFile() (string, error) {
	for _, name := range WorkspaceFiles {
		path := filepath.Join(c.WorkspaceRoot, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return path, c.LoadFile(path)
	}
	return "", nil
}

// LoadFile applies a YAML or TOML config file, chosen by extension.
func (c *Config) LoadFile(path string) error {
	var fc fileConfig
	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return fmt.Errorf("could not decode %s: %w", path, err)
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("could not read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("could not decode %s: %w", path, err)
		}
	}
	c.apply(&fc)
	return nil
}

func (c *Config) apply(fc *fileConfig) {
	if len(fc.LocaleGlobs) > 0 {
		c.LocaleGlobs = fc.LocaleGlobs
	}
	if len(fc.SupportedLanguages) > 0 {
		c.SupportedLanguages = fc.SupportedLanguages
	}
	if fc.SearchExclude != nil {
		c.SearchExclude = fc.SearchExclude
	}
	setMillis(&c.SearchTimeout, fc.SearchTimeoutMs)
	setMillis(&c.SearchPollInterval, fc.SearchPollMs)
	setMillis(&c.DecorationRefresh, fc.DecorationRefreshMs)
	setMillis(&c.RebuildDebounce, fc.RebuildDebounceMs)
	if fc.ScanCacheBytes != nil {
		c.ScanCacheBytes = *fc.ScanCacheBytes
	}
	setString(&c.References.Mode, fc.References.Mode)
	setString(&c.References.Clipboard, fc.References.Clipboard)
	setString(&c.Decoration.Color, fc.Decoration.Color)
	setString(&c.Decoration.Border, fc.Decoration.Border)
	setString(&c.Decoration.Margin, fc.Decoration.Margin)
}

// ApplyInitializationOptions reads the same keys as the config file from the
// LSP initializationOptions object.
func (c *Config) ApplyInitializationOptions(opts any) {
	m, ok := opts.(map[string]any)
	if !ok {
		return
	}

	if globs := stringList(m["localeGlobs"]); len(globs) > 0 {
		c.LocaleGlobs = globs
	}
	if langs := stringList(m["supportedLanguages"]); len(langs) > 0 {
		c.SupportedLanguages = langs
	}
	if _, ok := m["searchExclude"]; ok {
		c.SearchExclude = stringList(m["searchExclude"])
	}
	if ms, ok := number(m["searchTimeoutMs"]); ok {
		c.SearchTimeout = time.Duration(ms) * time.Millisecond
	}
	if ms, ok := number(m["searchPollMs"]); ok {
		c.SearchPollInterval = time.Duration(ms) * time.Millisecond
	}
	if ms, ok := number(m["decorationRefreshMs"]); ok {
		c.DecorationRefresh = time.Duration(ms) * time.Millisecond
	}
	if ms, ok := number(m["rebuildDebounceMs"]); ok {
		c.RebuildDebounce = time.Duration(ms) * time.Millisecond
	}
	if n, ok := number(m["scanCacheBytes"]); ok {
		c.ScanCacheBytes = n
	}
	if refs, ok := m["references"].(map[string]any); ok {
		if s, ok := refs["mode"].(string); ok {
			setString(&c.References.Mode, s)
		}
		if s, ok := refs["clipboard"].(string); ok {
			setString(&c.References.Clipboard, s)
		}
	}
	if deco, ok := m["decoration"].(map[string]any); ok {
		if s, ok := deco["color"].(string); ok {
			setString(&c.Decoration.Color, s)
		}
		if s, ok := deco["border"].(string); ok {
			setString(&c.Decoration.Border, s)
		}
		if s, ok := deco["margin"].(string); ok {
			setString(&c.Decoration.Margin, s)
		}
	}
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if len(c.LocaleGlobs) == 0 {
		return fmt.Errorf("no locale globs configured")
	}
	for _, g := range c.LocaleGlobs {
		if !doublestar.ValidatePattern(filepath.ToSlash(g)) {
			return fmt.Errorf("invalid locale glob %q", g)
		}
	}
	for _, g := range c.SearchExclude {
		if !doublestar.ValidatePattern(g) {
			return fmt.Errorf("invalid search exclude %q", g)
		}
	}
	switch c.References.Mode {
	case ModeRendezvous, ModeDirect:
	default:
		return fmt.Errorf("unknown references mode %q", c.References.Mode)
	}
	switch c.References.Clipboard {
	case ClipboardMemory, ClipboardSystem:
	default:
		return fmt.Errorf("unknown clipboard %q", c.References.Clipboard)
	}
	if c.SearchPollInterval <= 0 {
		return fmt.Errorf("search poll interval must be positive")
	}
	return nil
}

// LogSummary writes the effective settings to the log.
func (c *Config) LogSummary(context string) {
	logger := commonlog.GetLoggerf("i18nlens.config")
	logger.Infof("config (%s): root %s, %d locale globs, references via %s, search timeout %s",
		context, c.WorkspaceRoot, len(c.LocaleGlobs), c.References.Mode, c.SearchTimeout)
}

func setMillis(dst *time.Duration, ms *int) {
	if ms != nil {
		*dst = time.Duration(*ms) * time.Millisecond
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func stringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range arr {
		if str, ok := item.(string); ok && str != "" {
			out = append(out, str)
		}
	}
	return out
}

func number(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
