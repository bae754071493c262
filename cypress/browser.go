package cypress

import (
	"github.com/go-rod/rod/lib/launcher"

	"github.com/ethereum-optimism/infra/op-cyrunner/profile"
)

// lookPath finds a locally installed Chromium-family browser.
var lookPath = launcher.LookPath

// ResolveBrowser returns the value passed to --browser. An explicit
// browser_path always wins. For chrome and chromium the local install is
// located so the runner does not depend on its own detection inside minimal
// containers; when nothing is found the browser name is passed through.
func ResolveBrowser(p profile.Profile) string {
	if p.BrowserPath != "" {
		return p.BrowserPath
	}
	switch p.Browser {
	case profile.BrowserChrome, profile.BrowserChromium:
		if found, has := lookPath(); has {
			return found
		}
	}
	return p.Browser
}
