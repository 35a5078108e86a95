package services

import (
	"context"
	"io"

	"github.com/basflight/bas-console/internal/models"
	"github.com/basflight/bas-console/internal/repo"
)

// Backend is the slice of the typed backend client the services call.
// *repo.Client satisfies it.
type Backend interface {
	FetchFlights(ctx context.Context, r models.DateRange, q repo.FlightQuery) ([]models.Flight, error)
	FetchStatistics(ctx context.Context, r models.DateRange) (models.Statistics, error)
	FetchRegionRating(ctx context.Context, r models.DateRange, limit int) ([]models.RegionRating, error)
	FetchRegionDetail(ctx context.Context, r models.DateRange, region string) (models.RegionDetail, error)
	UploadFlights(ctx context.Context, kind models.SourceKind, filename string, r io.Reader) (models.UploadResult, error)
	GenerateReport(ctx context.Context, req models.ReportRequest) (models.ReportHandle, error)
}

var _ Backend = (*repo.Client)(nil)
