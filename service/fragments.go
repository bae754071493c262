package service

import (
	"bytes"
	"embed"
	"html/template"
)

//go:embed templates/fragments.html
var fragmentFS embed.FS

var fragments = template.Must(template.ParseFS(fragmentFS, "templates/fragments.html"))

const (
	fragmentRunFailed     = "run-failed"
	fragmentReportMissing = "report-missing"
	fragmentServerError   = "server-error"
)

// renderFragment renders one of the HTML error fragments. data is escaped.
func renderFragment(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := fragments.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
