package views

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Placeholders shown in place of a value.
const (
	LoadingPlaceholder = "…"
	ErrorPlaceholder   = "—"
)

const (
	msgTotalFlights  = "Total flights"
	msgAvgDuration   = "Average duration"
	msgOperators     = "Operators"
	msgUAVTypes      = "UAV types"
	msgMinutes       = "%d min"
	msgHours         = "%d h"
	msgFlightTime    = "Total flight time"
	msgUniqueOps     = "Unique operators"
	msgPeakHour      = "Peak hour"
	msgFlightsCount  = "%d flights"
	msgAvgPerDay     = "Average per day"
	msgFlightsPerDay = "%.1f flights"
	msgSelectRegion  = "Select a region"
	msgDetails       = "Details: %s"
)

var labels = buildCatalog()

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.Russian))
	ru := map[string]string{
		msgTotalFlights:  "Всего полетов",
		msgAvgDuration:   "Средняя длительность",
		msgOperators:     "Операторов",
		msgUAVTypes:      "Типов БВС",
		msgMinutes:       "%d мин",
		msgHours:         "%d ч",
		msgFlightTime:    "Общее время полетов",
		msgUniqueOps:     "Уникальных операторов",
		msgPeakHour:      "Пиковый час",
		msgFlightsCount:  "%d полетов",
		msgAvgPerDay:     "Среднее в день",
		msgFlightsPerDay: "%.1f полетов",
		msgSelectRegion:  "Выберите регион",
		msgDetails:       "Детали: %s",
	}
	for key, text := range ru {
		_ = b.SetString(language.Russian, key, text)
		_ = b.SetString(language.English, key, key)
	}
	return b
}

// Formatter renders numbers and labels for one operator language.
type Formatter struct {
	p *message.Printer
}

// NewFormatter picks the printer for lang ("ru", "en", ...); unknown or empty
// languages fall back to Russian.
func NewFormatter(lang string) Formatter {
	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		tag = language.Russian
	}
	return Formatter{p: message.NewPrinter(tag, message.Catalog(labels))}
}

func (f Formatter) printer() *message.Printer {
	if f.p == nil {
		return message.NewPrinter(language.Russian, message.Catalog(labels))
	}
	return f.p
}

// Int formats n with locale digit grouping.
func (f Formatter) Int(n int) string {
	return f.printer().Sprintf("%d", n)
}

// Decimal formats v with prec fractional digits.
func (f Formatter) Decimal(v float64, prec int) string {
	if prec < 0 {
		prec = 0
	}
	return f.printer().Sprintf(fmt.Sprintf("%%.%df", prec), v)
}

// Label translates one of the fixed display messages.
func (f Formatter) Label(key string, args ...any) string {
	return f.printer().Sprintf(key, args...)
}

func round(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}
