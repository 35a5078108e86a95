package services

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/basflight/bas-console/internal/models"
	"github.com/basflight/bas-console/internal/repo"
)

// fakeBackend records calls and returns canned payloads.
type fakeBackend struct {
	mu sync.Mutex

	stats        models.Statistics
	statsErr     error
	flights      []models.Flight
	rating       []models.RegionRating
	detail       models.RegionDetail
	uploadResult models.UploadResult
	uploadErr    error
	reportHandle models.ReportHandle
	reportErr    error

	// gate, when set, blocks region detail fetches until closed.
	gate chan struct{}
	// statsGate, when set, blocks statistics fetches until closed.
	statsGate chan struct{}
	// uploadGate, when set, blocks uploads until closed.
	uploadGate chan struct{}

	statsCalls   atomic.Int32
	flightCalls  atomic.Int32
	ratingCalls  atomic.Int32
	detailCalls  atomic.Int32
	uploadCalls  atomic.Int32
	reportCalls  atomic.Int32
	lastRange    models.DateRange
	lastReport   models.ReportRequest
	uploadedName string
}

func (f *fakeBackend) FetchFlights(_ context.Context, r models.DateRange, _ repo.FlightQuery) ([]models.Flight, error) {
	f.flightCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRange = r
	return append([]models.Flight(nil), f.flights...), nil
}

func (f *fakeBackend) FetchStatistics(_ context.Context, r models.DateRange) (models.Statistics, error) {
	f.statsCalls.Add(1)
	if f.statsGate != nil {
		<-f.statsGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRange = r
	return f.stats, f.statsErr
}

func (f *fakeBackend) FetchRegionRating(_ context.Context, r models.DateRange, _ int) ([]models.RegionRating, error) {
	f.ratingCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRange = r
	return append([]models.RegionRating(nil), f.rating...), nil
}

func (f *fakeBackend) FetchRegionDetail(_ context.Context, r models.DateRange, region string) (models.RegionDetail, error) {
	f.detailCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRange = r
	d := f.detail
	d.Region = region
	return d, nil
}

func (f *fakeBackend) UploadFlights(_ context.Context, _ models.SourceKind, name string, r io.Reader) (models.UploadResult, error) {
	f.uploadCalls.Add(1)
	if f.uploadGate != nil {
		<-f.uploadGate
	}
	if r != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadedName = name
	return f.uploadResult, f.uploadErr
}

func (f *fakeBackend) GenerateReport(_ context.Context, req models.ReportRequest) (models.ReportHandle, error) {
	f.reportCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReport = req
	return f.reportHandle, f.reportErr
}
