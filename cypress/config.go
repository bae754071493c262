package cypress

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/ethereum-optimism/infra/op-cyrunner/profile"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var configTemplates = template.Must(
	template.New("").Funcs(template.FuncMap{"quote": quote}).ParseFS(templateFS, "templates/*.tmpl"),
)

// ConfigParams is the data rendered into the generated runner configuration.
type ConfigParams struct {
	SpecPattern       string
	SpecsFolder       string
	LaunchArgs        []string
	Video             bool
	CommandTimeoutMs  int64
	VideosFolder      string
	ScreenshotsFolder string
	Reporter          string
	ReportDir         string
	ReportFilename    string
	ReportJSON        bool
	InlineAssets      bool
}

// NewConfigParams fills ConfigParams from a profile and the report directory of a work area.
func NewConfigParams(p profile.Profile, reportDir string) ConfigParams {
	return ConfigParams{
		SpecPattern:       p.SpecPattern,
		SpecsFolder:       SpecsFolder,
		LaunchArgs:        p.LaunchArgs,
		Video:             p.Video,
		CommandTimeoutMs:  timeoutMillis(p),
		VideosFolder:      VideosFolder,
		ScreenshotsFolder: ScreenshotsFolder,
		Reporter:          p.Reporter,
		ReportDir:         reportDir,
		ReportFilename:    p.ReportFilename,
		ReportJSON:        p.ReportJSON,
		InlineAssets:      p.ReportInlineAssets,
	}
}

// ConfigFileName returns the file name the runner expects for the given format.
func ConfigFileName(format profile.ConfigFormat) (string, error) {
	switch format {
	case profile.ConfigFormatJS:
		return JSConfigFile, nil
	case profile.ConfigFormatJSON:
		return JSONConfigFile, nil
	default:
		return "", fmt.Errorf("unsupported config format '%s'", format)
	}
}

// RenderConfig renders the runner configuration file for the given format.
// Launch args are only rendered in the js format, the legacy json format has
// no browser launch hook.
func RenderConfig(format profile.ConfigFormat, params ConfigParams) ([]byte, error) {
	name, err := ConfigFileName(format)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := configTemplates.ExecuteTemplate(&buf, name+".tmpl", params); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// quote renders s as a JSON string literal, which is also a valid JS string literal.
func quote(s string) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func timeoutMillis(p profile.Profile) int64 {
	return time.Duration(p.CommandTimeout).Milliseconds()
}
