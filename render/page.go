package render

import (
	"embed"
	"fmt"
	"html/template"
	"time"

	iface "TableDetFront/interface"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type FileItem struct {
	Index       int
	Name        string
	DisplayName string
	SizeLabel   string
	ThumbURL    string
}

// Page is everything the index template needs.
type Page struct {
	Files             []FileItem
	CanAnalyze        bool
	Running           bool
	ConfidencePercent int
	Visualize         bool
	ResultsVisible    bool
	Mode              string
	Summary           Summary
	Cards             []Card
	Notices           []iface.Notice
	APIBase           string
	APIChecked        bool
	APIHealthy        bool
	MaxFileSizeMB     int
	PlaceholderURL    string
}

var funcs = template.FuncMap{
	"millis": func(d time.Duration) int64 { return d.Milliseconds() },
}

// Templates parses the page, card and notice templates.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
}

func MustTemplates() *template.Template {
	return template.Must(Templates())
}

// SizeLabel formats a byte count the way the file list shows it.
func SizeLabel(n int64) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	case n >= 1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	}
	return fmt.Sprintf("%d B", n)
}
