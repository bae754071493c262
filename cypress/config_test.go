package cypress

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-cyrunner/profile"
)

func TestRenderJSConfig(t *testing.T) {
	p := profile.Default()
	out, err := RenderConfig(profile.ConfigFormatJS, NewConfigParams(p, `/tmp/run-1/cypress/reports`))
	require.NoError(t, err)
	cfg := string(out)

	require.Contains(t, cfg, "require('cypress')")
	require.Contains(t, cfg, `specPattern: "cypress/e2e/**/*.cy.{js,jsx,ts,tsx}"`)
	require.Contains(t, cfg, `launchOptions.args.push("--disable-gpu");`)
	require.Contains(t, cfg, `launchOptions.args.push("--no-sandbox");`)
	require.Contains(t, cfg, `launchOptions.args.push("--disable-dev-shm-usage");`)
	require.Contains(t, cfg, "defaultCommandTimeout: 60000,")
	require.Contains(t, cfg, "video: false,")
	require.Contains(t, cfg, `reporter: "mochawesome",`)
	require.Contains(t, cfg, `reportDir: "/tmp/run-1/cypress/reports",`)
	require.Contains(t, cfg, `reportFilename: "report.html",`)
	require.Contains(t, cfg, "json: false,")
	require.Contains(t, cfg, "inlineAssets: true,")
}

func TestRenderJSConfigWithoutLaunchArgs(t *testing.T) {
	p := profile.Default()
	p.LaunchArgs = nil
	out, err := RenderConfig(profile.ConfigFormatJS, NewConfigParams(p, "/r"))
	require.NoError(t, err)
	require.NotContains(t, string(out), "setupNodeEvents")
}

func TestRenderJSConfigEscapesPaths(t *testing.T) {
	out, err := RenderConfig(profile.ConfigFormatJS, NewConfigParams(profile.Default(), `C:\runs\run-1'x\reports`))
	require.NoError(t, err)
	require.Contains(t, string(out), `reportDir: "C:\\runs\\run-1'x\\reports",`)
}

func TestRenderJSONConfig(t *testing.T) {
	p := profile.Default()
	p.ReportJSON = true
	p.CommandTimeout = profile.Duration(90 * time.Second)
	out, err := RenderConfig(profile.ConfigFormatJSON, NewConfigParams(p, `/tmp/run "2"/reports`))
	require.NoError(t, err)
	require.False(t, strings.Contains(string(out), "disable-gpu"))

	var doc struct {
		IntegrationFolder     string `json:"integrationFolder"`
		Video                 bool   `json:"video"`
		DefaultCommandTimeout int64  `json:"defaultCommandTimeout"`
		Reporter              string `json:"reporter"`
		ReporterOptions       struct {
			ReportDir      string `json:"reportDir"`
			ReportFilename string `json:"reportFilename"`
			HTML           bool   `json:"html"`
			JSON           bool   `json:"json"`
		} `json:"reporterOptions"`
	}
	require.NoError(t, json.Unmarshal(out, &doc), string(out))
	require.Equal(t, SpecsFolder, doc.IntegrationFolder)
	require.False(t, doc.Video)
	require.Equal(t, int64(90000), doc.DefaultCommandTimeout)
	require.Equal(t, "mochawesome", doc.Reporter)
	require.Equal(t, `/tmp/run "2"/reports`, doc.ReporterOptions.ReportDir)
	require.Equal(t, "report.html", doc.ReporterOptions.ReportFilename)
	require.True(t, doc.ReporterOptions.HTML)
	require.True(t, doc.ReporterOptions.JSON)
}

func TestConfigFileName(t *testing.T) {
	name, err := ConfigFileName(profile.ConfigFormatJS)
	require.NoError(t, err)
	require.Equal(t, "cypress.config.js", name)

	name, err = ConfigFileName(profile.ConfigFormatJSON)
	require.NoError(t, err)
	require.Equal(t, "cypress.json", name)

	_, err = ConfigFileName("yaml")
	require.Error(t, err)
	_, err = RenderConfig("yaml", ConfigParams{})
	require.Error(t, err)
}

func TestResolveBrowser(t *testing.T) {
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })

	p := profile.Default()
	require.Equal(t, "electron", ResolveBrowser(p))

	lookPath = func() (string, bool) { return "/usr/bin/chromium", true }
	p.Browser = profile.BrowserChrome
	require.Equal(t, "/usr/bin/chromium", ResolveBrowser(p))

	lookPath = func() (string, bool) { return "", false }
	require.Equal(t, "chrome", ResolveBrowser(p))

	p.BrowserPath = "/opt/chrome/chrome"
	require.Equal(t, "/opt/chrome/chrome", ResolveBrowser(p))

	p = profile.Default()
	p.Browser = profile.BrowserFirefox
	lookPath = func() (string, bool) { t.Fatal("lookPath must not be used for firefox"); return "", false }
	require.Equal(t, "firefox", ResolveBrowser(p))
}
