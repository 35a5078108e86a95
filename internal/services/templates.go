package services

import (
	"time"

	"github.com/basflight/bas-console/internal/models"
	"github.com/basflight/bas-console/internal/utils"
)

// Predefined reports offered next to the custom report form.

// MonthlyReport is a spreadsheet of the month containing now.
func MonthlyReport(now time.Time) models.ReportRequest {
	start, end := utils.MonthBounds(now)
	return models.ReportRequest{Format: models.ReportXLSX, Range: models.DateRange{Start: start, End: end}}
}

// QuarterlyReport is a structured analytics export of the quarter containing now.
func QuarterlyReport(now time.Time) models.ReportRequest {
	start, end := utils.QuarterBounds(now)
	return models.ReportRequest{Format: models.ReportJSON, Range: models.DateRange{Start: start, End: end}}
}

// TopRegionsReport is a bar chart image of the busiest regions over r.
func TopRegionsReport(r models.DateRange) models.ReportRequest {
	return models.ReportRequest{Format: models.ReportPNG, Range: r.Normalize(), ChartKind: models.ChartBar}
}

// ReportTemplate names a predefined report.
type ReportTemplate string

const (
	TemplateMonthly    ReportTemplate = "monthly"
	TemplateQuarterly  ReportTemplate = "quarterly"
	TemplateTopRegions ReportTemplate = "top-regions"
)

// Templates lists the predefined reports in display order.
var Templates = []ReportTemplate{TemplateMonthly, TemplateQuarterly, TemplateTopRegions}

// BuildTemplate expands a template for the given clock and active range.
func BuildTemplate(t ReportTemplate, now time.Time, active models.DateRange) (models.ReportRequest, error) {
	switch t {
	case TemplateMonthly:
		return MonthlyReport(now), nil
	case TemplateQuarterly:
		return QuarterlyReport(now), nil
	case TemplateTopRegions:
		return TopRegionsReport(active), nil
	default:
		return models.ReportRequest{}, utils.NewValidationError("report template", "unknown template "+string(t))
	}
}

// CustomReport builds the request of the free-form report form: image reports
// get a bar chart, and an empty region selection means all regions.
func CustomReport(format models.ReportFormat, r models.DateRange, regions []string) models.ReportRequest {
	req := models.ReportRequest{Format: format, Range: r}
	if len(regions) > 0 {
		req.Regions = append([]string(nil), regions...)
	}
	if format == models.ReportPNG {
		req.ChartKind = models.ChartBar
	}
	return req
}
