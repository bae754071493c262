package cypress

import "time"

const (
	// DefaultCommand is how the runner binary is launched when no command is configured.
	DefaultCommand = "npx cypress"

	RunCommand          = "run"
	ProjectFlag         = "--project"
	SpecFlag            = "--spec"
	BrowserFlag         = "--browser"
	HeadlessFlag        = "--headless"
	HeadedFlag          = "--headed"
	ConfigFileFlag      = "--config-file"
	ConfigFlag          = "--config"
	ReporterFlag        = "--reporter"
	ReporterOptionsFlag = "--reporter-options"

	JSConfigFile   = "cypress.config.js"
	JSONConfigFile = "cypress.json"

	// the runner writes screenshots and videos here, relative to the project root
	VideosFolder      = "cypress/videos"
	ScreenshotsFolder = "cypress/screenshots"
	SpecsFolder       = "cypress/e2e"

	defaultOutputTailBytes = 256 * 1024
	maxMessageBytes        = 16 * 1024

	// waitDelay bounds how long Wait blocks on output pipes after the process is killed
	waitDelay = 5 * time.Second
)
