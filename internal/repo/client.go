package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/basflight/bas-console/internal/models"
	"github.com/basflight/bas-console/internal/utils"
)

// Paths lists the backend routes used by Client. RegionDetail and Download
// carry one %s placeholder for an escaped path segment.
type Paths struct {
	Flights        string
	Statistics     string
	RegionRating   string
	RegionDetail   string
	UploadExcel    string
	UploadSHR      string
	GenerateReport string
	Download       string
	Health         string
}

// DefaultPaths returns the un-prefixed routes the backend serves.
func DefaultPaths() Paths {
	return Paths{
		Flights:        "/flights",
		Statistics:     "/flights/statistics",
		RegionRating:   "/regions/rating",
		RegionDetail:   "/regions/%s/statistics",
		UploadExcel:    "/flights/upload/excel",
		UploadSHR:      "/flights/upload/shr",
		GenerateReport: "/reports/generate",
		Download:       "/reports/download/%s",
		Health:         "/health",
	}
}

func (p Paths) withDefaults() Paths {
	d := DefaultPaths()
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}
	return Paths{
		Flights:        pick(p.Flights, d.Flights),
		Statistics:     pick(p.Statistics, d.Statistics),
		RegionRating:   pick(p.RegionRating, d.RegionRating),
		RegionDetail:   pick(p.RegionDetail, d.RegionDetail),
		UploadExcel:    pick(p.UploadExcel, d.UploadExcel),
		UploadSHR:      pick(p.UploadSHR, d.UploadSHR),
		GenerateReport: pick(p.GenerateReport, d.GenerateReport),
		Download:       pick(p.Download, d.Download),
		Health:         pick(p.Health, d.Health),
	}
}

// FlightQuery narrows a flight listing beyond the date range.
type FlightQuery struct {
	Region string
	Skip   int
	Limit  int
}

// Params renders the non-zero fields as query parameters.
func (q FlightQuery) Params() map[string]string {
	out := map[string]string{}
	if q.Region != "" {
		out["region"] = q.Region
	}
	if q.Skip > 0 {
		out["skip"] = strconv.Itoa(q.Skip)
	}
	if q.Limit > 0 {
		out["limit"] = strconv.Itoa(q.Limit)
	}
	return out
}

// Client wraps the flight-analytics endpoints on top of a Gateway.
type Client struct {
	gw    *Gateway
	paths Paths
}

// NewClient constructs a typed client; empty paths fall back to DefaultPaths.
func NewClient(gw *Gateway, paths Paths) *Client {
	return &Client{gw: gw, paths: paths.withDefaults()}
}

// FetchFlights lists flights in the range.
func (c *Client) FetchFlights(ctx context.Context, r models.DateRange, q FlightQuery) ([]models.Flight, error) {
	if c == nil {
		return nil, fmt.Errorf("backend client not initialised")
	}
	params := rangeParams(r)
	for k, v := range q.Params() {
		params.Set(k, v)
	}
	var flights []models.Flight
	if err := c.get(ctx, c.paths.Flights, c.paths.Flights, params, &flights); err != nil {
		return nil, fmt.Errorf("flights request failed: %w", err)
	}
	return flights, nil
}

// FetchStatistics returns aggregate statistics for the range.
func (c *Client) FetchStatistics(ctx context.Context, r models.DateRange) (models.Statistics, error) {
	if c == nil {
		return models.Statistics{}, fmt.Errorf("backend client not initialised")
	}
	var stats models.Statistics
	if err := c.get(ctx, c.paths.Statistics, c.paths.Statistics, rangeParams(r), &stats); err != nil {
		return models.Statistics{}, fmt.Errorf("statistics request failed: %w", err)
	}
	return stats, nil
}

// FetchRegionRating returns the region leaderboard; limit <= 0 leaves the backend default.
func (c *Client) FetchRegionRating(ctx context.Context, r models.DateRange, limit int) ([]models.RegionRating, error) {
	if c == nil {
		return nil, fmt.Errorf("backend client not initialised")
	}
	params := rangeParams(r)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var rating []models.RegionRating
	if err := c.get(ctx, c.paths.RegionRating, c.paths.RegionRating, params, &rating); err != nil {
		return nil, fmt.Errorf("region rating request failed: %w", err)
	}
	return rating, nil
}

// FetchRegionDetail returns the breakdown for one region.
func (c *Client) FetchRegionDetail(ctx context.Context, r models.DateRange, region string) (models.RegionDetail, error) {
	if c == nil {
		return models.RegionDetail{}, fmt.Errorf("backend client not initialised")
	}
	if strings.TrimSpace(region) == "" {
		return models.RegionDetail{}, utils.NewValidationError("region detail", "region is required")
	}
	var detail models.RegionDetail
	p := fmt.Sprintf(c.paths.RegionDetail, url.PathEscape(region))
	if err := c.get(ctx, c.paths.RegionDetail, p, rangeParams(r), &detail); err != nil {
		return models.RegionDetail{}, fmt.Errorf("region detail request failed: %w", err)
	}
	return detail, nil
}

// UploadFlights sends one file to the endpoint for kind.
func (c *Client) UploadFlights(ctx context.Context, kind models.SourceKind, filename string, r io.Reader) (models.UploadResult, error) {
	if c == nil {
		return models.UploadResult{}, fmt.Errorf("backend client not initialised")
	}
	var route string
	switch kind {
	case models.SourceExcel:
		route = c.paths.UploadExcel
	case models.SourceSHR:
		route = c.paths.UploadSHR
	default:
		return models.UploadResult{}, utils.NewValidationError("upload", fmt.Sprintf("unsupported source kind %q", kind))
	}
	var result models.UploadResult
	err := c.gw.Do(ctx, Call{
		Route:  route,
		Method: http.MethodPost,
		Path:   route,
		Body:   MultipartBody{Field: "file", Filename: filename, Reader: r},
		Out:    &result,
	})
	if err != nil {
		return models.UploadResult{}, fmt.Errorf("upload request failed: %w", err)
	}
	return result, nil
}

// GenerateReport submits req unchanged and returns the backend handle.
func (c *Client) GenerateReport(ctx context.Context, req models.ReportRequest) (models.ReportHandle, error) {
	if c == nil {
		return models.ReportHandle{}, fmt.Errorf("backend client not initialised")
	}
	var raw json.RawMessage
	err := c.gw.Do(ctx, Call{
		Route:  c.paths.GenerateReport,
		Method: http.MethodPost,
		Path:   c.paths.GenerateReport,
		Body:   JSONBody{Value: req},
		Out:    &raw,
	})
	if err != nil {
		return models.ReportHandle{}, fmt.Errorf("report request failed: %w", err)
	}
	var handle models.ReportHandle
	if len(raw) > 0 {
		// Non-object payloads are still handed back through Raw.
		_ = json.Unmarshal(raw, &handle)
	}
	handle.Raw = raw
	return handle, nil
}

// DownloadReport streams a generated report into w.
func (c *Client) DownloadReport(ctx context.Context, reportID string, w io.Writer) error {
	if c == nil {
		return fmt.Errorf("backend client not initialised")
	}
	if strings.TrimSpace(reportID) == "" {
		return utils.NewValidationError("download report", "report id is required")
	}
	p := fmt.Sprintf(c.paths.Download, url.PathEscape(reportID))
	if err := c.get(ctx, c.paths.Download, p, nil, w); err != nil {
		return fmt.Errorf("report download failed: %w", err)
	}
	return nil
}

// Health probes the backend liveness endpoint and returns its status string.
func (c *Client) Health(ctx context.Context) (string, error) {
	if c == nil {
		return "", fmt.Errorf("backend client not initialised")
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, c.paths.Health, c.paths.Health, nil, &out); err != nil {
		return "", fmt.Errorf("health request failed: %w", err)
	}
	return out.Status, nil
}

func (c *Client) get(ctx context.Context, route, p string, params url.Values, out any) error {
	return c.gw.Do(ctx, Call{Route: route, Method: http.MethodGet, Path: p, Params: params, Out: out})
}

func rangeParams(r models.DateRange) url.Values {
	params := url.Values{}
	if s := r.StartDate(); s != "" {
		params.Set("start_date", s)
	}
	if e := r.EndDate(); e != "" {
		params.Set("end_date", e)
	}
	return params
}
