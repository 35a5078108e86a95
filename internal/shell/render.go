package shell

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/basflight/bas-console/internal/models"
	"github.com/basflight/bas-console/internal/utils"
	"github.com/basflight/bas-console/internal/views"
)

const barWidth = 40

const templates = `
{{define "range"}}Date range: {{.Start}} .. {{.End}} ({{.Days}} days)
{{end}}

{{define "settings"}}Language:      {{.Language}}
Theme:         {{.Theme}}
Notifications: {{if .Notifications}}on{{else}}off{{end}}
{{end}}

{{define "stats"}}=== {{.Range}} ===
{{range .Cards}}{{printf "%-24s" .Title}} {{.Value}}
{{end}}{{end}}

{{define "rating"}}=== {{.Range}} ===
{{if eq .Table.State "ready"}}{{range .Table.Rows}}{{medal .Medal}} {{printf "%3d" .Position}}. {{printf "%-32s" .Region}} {{printf "%8s" .Flights}} {{printf "%8s" .Hours}} {{printf "%6s" .Operators}}
{{end}}{{else}}{{placeholder .Table.State}}
{{end}}{{end}}

{{define "panel"}}{{.Title}}
{{if eq .State "ready"}}{{range .Fields}}  {{printf "%-24s" .Label}} {{.Value}}{{if .Note}} ({{.Note}}){{end}}
{{end}}{{else if ne .State "empty"}}  {{placeholder .State}}
{{end}}{{end}}

{{define "series"}}--- {{.Title}} ---
{{if eq .Series.State "ready"}}{{$max := maxOf .Series.Points}}{{range .Series.Points}}{{printf "%-10s" .Label}} {{printf "%5d" .Value}} {{bar .Value $max}}
{{end}}{{else}}{{placeholder .Series.State}}
{{end}}{{end}}

{{define "flights"}}{{range .}}{{printf "%6d" .ID}}  {{stamp .FlightDate}}  {{printf "%-24s" (dash .DepRegion)}} {{printf "%-20s" (dash .Operator)}} {{dash .UAVType}}
{{else}}no flights
{{end}}{{end}}

{{define "uploads"}}{{range .}}{{.Time}}  {{printf "%-6s" .Kind}} {{printf "%-32s" .Filename}} {{printf "%8s" .Records}}  {{.Outcome}}{{if .Error}}: {{.Error}}{{end}}
{{end}}{{end}}

{{define "workbook"}}Workbook: {{len .Sheets}} sheet(s), {{.DataRows}} data row(s)
{{end}}

{{define "report"}}Status:  {{dash .Status}}
File:    {{dash .FilePath}}
Format:  {{dash .Format}}
Size:    {{.SizeBytes}} bytes
{{end}}

{{define "health"}}Backend: {{.}}
{{end}}
`

var funcs = template.FuncMap{
	"medal": func(m views.Medal) string {
		switch m {
		case views.MedalGold:
			return "🥇"
		case views.MedalSilver:
			return "🥈"
		case views.MedalBronze:
			return "🥉"
		default:
			return "  "
		}
	},
	"placeholder": func(s views.State) string {
		switch s {
		case views.StateLoading:
			return views.LoadingPlaceholder
		case views.StateError:
			return views.ErrorPlaceholder
		default:
			return "no data"
		}
	},
	"maxOf": func(points []views.Point) int {
		highest := 0
		for _, p := range points {
			if p.Value > highest {
				highest = p.Value
			}
		}
		return highest
	},
	"bar": func(v, highest int) string {
		if highest <= 0 || v <= 0 {
			return ""
		}
		n := v * barWidth / highest
		if n == 0 {
			n = 1
		}
		return strings.Repeat("█", n)
	},
	"stamp": func(t models.Timestamp) string {
		if t.IsZero() {
			return views.ErrorPlaceholder
		}
		return t.Format("2006-01-02 15:04")
	},
	"dash": func(s string) string {
		if strings.TrimSpace(s) == "" {
			return views.ErrorPlaceholder
		}
		return s
	},
}

var textTemplates = template.Must(template.New("shell").Funcs(funcs).Parse(templates))

// Renderer outputs projections to the console in a formatted text form.
type Renderer struct {
	writer io.Writer
}

// NewRenderer creates a renderer writing to w, or stdout when w is nil.
func NewRenderer(w io.Writer) *Renderer {
	if w == nil {
		w = os.Stdout
	}
	return &Renderer{writer: w}
}

// Render executes the named template with data.
func (r *Renderer) Render(name string, data any) error {
	if err := textTemplates.ExecuteTemplate(r.writer, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return nil
}

type rangeView struct {
	Start string
	End   string
	Days  int
}

func newRangeView(r models.DateRange) rangeView {
	return rangeView{Start: r.StartDate(), End: r.EndDate(), Days: r.Days()}
}

type settingsView struct {
	Language      string
	Theme         string
	Notifications bool
}

func newSettingsView(s models.Settings) settingsView {
	return settingsView{Language: s.Language, Theme: s.Theme, Notifications: s.NotificationsEnabled()}
}

type statsView struct {
	Range string
	Cards []views.StatCard
}

type ratingView struct {
	Range string
	Table views.RatingTable
}

type seriesView struct {
	Title  string
	Series views.Series
}

func rangeTitle(r models.DateRange) string {
	return utils.FormatDate(r.Start) + " .. " + utils.FormatDate(r.End)
}
