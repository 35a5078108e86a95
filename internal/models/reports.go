package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ReportFormat is the output format requested from the report generator.
type ReportFormat string

const (
	ReportJSON ReportFormat = "json"
	ReportPNG  ReportFormat = "png"
	ReportXLSX ReportFormat = "xlsx"
)

// ParseReportFormat accepts the wire names plus the structured/image/spreadsheet aliases.
func ParseReportFormat(value string) (ReportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "json", "structured":
		return ReportJSON, nil
	case "png", "image":
		return ReportPNG, nil
	case "xlsx", "spreadsheet":
		return ReportXLSX, nil
	default:
		return "", fmt.Errorf("unknown report format %q", value)
	}
}

// ChartKind selects the chart drawn into image reports.
type ChartKind string

const (
	ChartBar  ChartKind = "bar"
	ChartPie  ChartKind = "pie"
	ChartLine ChartKind = "line"
)

// ParseChartKind accepts bar, pie or line; the empty string means unset.
func ParseChartKind(value string) (ChartKind, error) {
	switch ChartKind(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return "", nil
	case ChartBar:
		return ChartBar, nil
	case ChartPie:
		return ChartPie, nil
	case ChartLine:
		return ChartLine, nil
	default:
		return "", fmt.Errorf("unknown chart kind %q", value)
	}
}

// ReportRequest is built once per report action and sent as-is.
type ReportRequest struct {
	Format    ReportFormat
	Range     DateRange
	Regions   []string
	ChartKind ChartKind
}

type reportRequestWire struct {
	Format    ReportFormat `json:"format"`
	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
	Regions   []string     `json:"regions,omitempty"`
	ChartType ChartKind    `json:"chart_type,omitempty"`
}

// MarshalJSON produces the backend body; unset regions and chart kind are omitted.
func (r ReportRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportRequestWire{
		Format:    r.Format,
		StartDate: r.Range.StartDate(),
		EndDate:   r.Range.EndDate(),
		Regions:   r.Regions,
		ChartType: r.ChartKind,
	})
}

// ReportHandle is whatever the backend returned for a generated report.
type ReportHandle struct {
	Status    string          `json:"status"`
	FilePath  string          `json:"file_path"`
	Format    string          `json:"format"`
	SizeBytes int64           `json:"size_bytes"`
	Raw       json.RawMessage `json:"-"`
}
