package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConfigFormat selects which tool configuration file is generated in the work area.
type ConfigFormat string

const (
	// ConfigFormatJS generates cypress.config.js (Cypress 10 and later).
	ConfigFormatJS ConfigFormat = "js"
	// ConfigFormatJSON generates the legacy cypress.json.
	ConfigFormatJSON ConfigFormat = "json"
)

// IsValid checks if the ConfigFormat value is valid
func (f ConfigFormat) IsValid() bool {
	switch f {
	case ConfigFormatJS, ConfigFormatJSON:
		return true
	default:
		return false
	}
}

const (
	BrowserElectron = "electron"
	BrowserChrome   = "chrome"
	BrowserChromium = "chromium"
	BrowserFirefox  = "firefox"
	BrowserEdge     = "edge"
)

var knownBrowsers = []string{BrowserElectron, BrowserChrome, BrowserChromium, BrowserFirefox, BrowserEdge}

// Duration is a time.Duration that decodes from strings such as "60s" in both YAML and TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Profile describes how the external test runner is invoked for every run.
type Profile struct {
	Browser            string       `yaml:"browser" toml:"browser"`
	BrowserPath        string       `yaml:"browser_path" toml:"browser_path"`
	Headless           bool         `yaml:"headless" toml:"headless"`
	Video              bool         `yaml:"video" toml:"video"`
	CommandTimeout     Duration     `yaml:"command_timeout" toml:"command_timeout"`
	ConfigFormat       ConfigFormat `yaml:"config_format" toml:"config_format"`
	SpecPattern        string       `yaml:"spec_pattern" toml:"spec_pattern"`
	LaunchArgs         []string     `yaml:"launch_args" toml:"launch_args"`
	Reporter           string       `yaml:"reporter" toml:"reporter"`
	ReportFilename     string       `yaml:"report_filename" toml:"report_filename"`
	ReportJSON         bool         `yaml:"report_json" toml:"report_json"`
	ReportInlineAssets bool         `yaml:"report_inline_assets" toml:"report_inline_assets"`
}

// Default returns the profile used when no profile file is configured.
// The launch args keep Chromium-family browsers working inside containers.
func Default() Profile {
	return Profile{
		Browser:        BrowserElectron,
		Headless:       true,
		Video:          false,
		CommandTimeout: Duration(60 * time.Second),
		ConfigFormat:   ConfigFormatJS,
		SpecPattern:    "cypress/e2e/**/*.cy.{js,jsx,ts,tsx}",
		LaunchArgs: []string{
			"--disable-gpu",
			"--no-sandbox",
			"--disable-dev-shm-usage",
		},
		Reporter:           "mochawesome",
		ReportFilename:     "report.html",
		ReportJSON:         false,
		ReportInlineAssets: true,
	}
}

// Load reads a profile file on top of the defaults. The decoder is chosen by
// file extension: .yaml/.yml or .toml. An empty path returns Default().
func Load(path string) (Profile, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read profile %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("failed to parse yaml profile %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &p); err != nil {
			return p, fmt.Errorf("failed to parse toml profile %s: %w", path, err)
		}
	default:
		return p, fmt.Errorf("unsupported profile extension '%s', must be .yaml, .yml or .toml", ext)
	}

	if err := p.Check(); err != nil {
		return p, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return p, nil
}

func (p Profile) Check() error {
	if p.BrowserPath == "" && !isKnownBrowser(p.Browser) {
		return fmt.Errorf("unknown browser '%s', must be one of: %s", p.Browser, strings.Join(knownBrowsers, ", "))
	}
	if !p.ConfigFormat.IsValid() {
		return fmt.Errorf("invalid config_format '%s', must be '%s' or '%s'", p.ConfigFormat, ConfigFormatJS, ConfigFormatJSON)
	}
	if p.CommandTimeout <= 0 {
		return errors.New("command_timeout must be positive")
	}
	if p.Reporter == "" {
		return errors.New("reporter is required")
	}
	if p.ReportFilename == "" || filepath.Base(p.ReportFilename) != p.ReportFilename {
		return fmt.Errorf("report_filename '%s' must be a plain file name", p.ReportFilename)
	}
	if filepath.Ext(p.ReportFilename) != ".html" {
		return fmt.Errorf("report_filename '%s' must end in .html", p.ReportFilename)
	}
	return nil
}

// ReportJSONFilename is the name the reporter uses for the JSON twin of the HTML report.
func (p Profile) ReportJSONFilename() string {
	return strings.TrimSuffix(p.ReportFilename, filepath.Ext(p.ReportFilename)) + ".json"
}

func isKnownBrowser(b string) bool {
	for _, known := range knownBrowsers {
		if b == known {
			return true
		}
	}
	return false
}
