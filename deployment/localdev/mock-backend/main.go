package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/basflight/bas-console/internal/models"
)

var regions = []string{"Москва", "Санкт-Петербург", "Тверская область", "Ленинградская область", "Калужская область", "Республика Татарстан"}

var operators = []string{"АэроГеоМатика", "СкайСервис", "ГеоСкан", "Агродрон"}

var uavTypes = []string{"Геоскан 201", "Supercam S350", "DJI Matrice 300"}

func main() {
	addr := ":8000"
	if v := os.Getenv("MOCK_ADDR"); v != "" {
		addr = v
	}
	token := os.Getenv("MOCK_TOKEN")

	mux := http.NewServeMux()
	for _, prefix := range []string{"", "/api/v1"} {
		mux.HandleFunc(prefix+"/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		})
		mux.HandleFunc(prefix+"/flights", handleFlights)
		mux.HandleFunc(prefix+"/flights/statistics", handleStatistics)
		mux.HandleFunc(prefix+"/flights/upload/excel", handleUpload)
		mux.HandleFunc(prefix+"/flights/upload/shr", handleUpload)
		mux.HandleFunc(prefix+"/regions/rating", handleRating)
		mux.HandleFunc(prefix+"/regions/{region}/statistics", handleRegion)
		mux.HandleFunc(prefix+"/reports/generate", handleReport)
		mux.HandleFunc(prefix+"/reports/download/{id}", handleDownload)
	}

	logger := log.New(log.Writer(), "backend-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    addr,
		Handler: logRequests(logger, requireToken(token, mux)),
	}

	logger.Println("listening on " + addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// flightsFor generates a stable set of flights per day so repeated queries agree.
func flightsFor(r models.DateRange) []models.Flight {
	var out []models.Flight
	id := 1
	for day := r.Start; !day.After(r.End); day = day.AddDate(0, 0, 1) {
		seed := hash(day.Format(time.DateOnly))
		for i := 0; i < int(seed%7); i++ {
			n := int(seed>>uint(i*3)) + i
			duration := 15 + n%90
			out = append(out, models.Flight{
				ID:              id,
				SID:             fmt.Sprintf("SHR-%05d", id),
				FlightDate:      models.Timestamp{Time: day.Add(time.Duration(6+n%14) * time.Hour)},
				DepRegion:       regions[n%len(regions)],
				ArrRegion:       regions[n%len(regions)],
				Operator:        operators[n%len(operators)],
				UAVType:         uavTypes[n%len(uavTypes)],
				DurationMinutes: &duration,
				Status:          "completed",
			})
			id++
		}
	}
	return out
}

func handleFlights(w http.ResponseWriter, r *http.Request) {
	if !enforceMethod(w, r, http.MethodGet) {
		return
	}
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}
	flights := flightsFor(rng)
	if region := r.URL.Query().Get("region"); region != "" {
		filtered := flights[:0]
		for _, f := range flights {
			if f.DepRegion == region {
				filtered = append(filtered, f)
			}
		}
		flights = filtered
	}
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if skip > len(flights) {
		skip = len(flights)
	}
	flights = flights[skip:]
	if limit > 0 && limit < len(flights) {
		flights = flights[:limit]
	}
	writeJSON(w, http.StatusOK, flights)
}

func handleStatistics(w http.ResponseWriter, r *http.Request) {
	if !enforceMethod(w, r, http.MethodGet) {
		return
	}
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}
	flights := flightsFor(rng)
	ops, types := map[string]bool{}, map[string]bool{}
	total := 0
	for _, f := range flights {
		ops[f.Operator] = true
		types[f.UAVType] = true
		total += *f.DurationMinutes
	}
	stats := models.Statistics{
		TotalFlights:    len(flights),
		UniqueOperators: len(ops),
		UniqueUAVTypes:  len(types),
		PeriodStart:     models.Timestamp{Time: rng.Start},
		PeriodEnd:       models.Timestamp{Time: rng.End},
	}
	if len(flights) > 0 {
		stats.AvgDurationMinutes = float64(total) / float64(len(flights))
	}
	writeJSON(w, http.StatusOK, stats)
}

func handleRating(w http.ResponseWriter, r *http.Request) {
	if !enforceMethod(w, r, http.MethodGet) {
		return
	}
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}
	byRegion := map[string]*models.RegionRating{}
	ops := map[string]map[string]bool{}
	for _, f := range flightsFor(rng) {
		row, ok := byRegion[f.DepRegion]
		if !ok {
			row = &models.RegionRating{Region: f.DepRegion}
			byRegion[f.DepRegion] = row
			ops[f.DepRegion] = map[string]bool{}
		}
		row.FlightCount++
		row.TotalDurationHours += float64(*f.DurationMinutes) / 60
		ops[f.DepRegion][f.Operator] = true
	}
	rating := make([]models.RegionRating, 0, len(byRegion))
	for name, row := range byRegion {
		row.UniqueOperators = len(ops[name])
		rating = append(rating, *row)
	}
	sort.Slice(rating, func(i, j int) bool {
		if rating[i].FlightCount != rating[j].FlightCount {
			return rating[i].FlightCount > rating[j].FlightCount
		}
		return rating[i].Region < rating[j].Region
	})
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	if limit < len(rating) {
		rating = rating[:limit]
	}
	for i := range rating {
		rating[i].Position = i + 1
	}
	writeJSON(w, http.StatusOK, rating)
}

func handleRegion(w http.ResponseWriter, r *http.Request) {
	if !enforceMethod(w, r, http.MethodGet) {
		return
	}
	rng, ok := parseRange(w, r)
	if !ok {
		return
	}
	region := r.PathValue("region")
	detail := models.RegionDetail{Region: region}
	ops, types := map[string]bool{}, map[string]bool{}
	var hours [24]int
	perDay := map[string]int{}
	for _, f := range flightsFor(rng) {
		if f.DepRegion != region {
			continue
		}
		detail.TotalFlights++
		detail.TotalDurationHours += float64(*f.DurationMinutes) / 60
		ops[f.Operator] = true
		types[f.UAVType] = true
		hours[f.FlightDate.Hour()]++
		perDay[f.FlightDate.Format(time.DateOnly)]++
	}
	if detail.TotalFlights == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "no flights for region " + region})
		return
	}
	detail.UniqueOperators = len(ops)
	detail.UniqueUAVTypes = len(types)
	for h, n := range hours {
		if n > detail.PeakHourFlights {
			detail.PeakHour, detail.PeakHourFlights = h, n
		}
	}
	days := rng.Days()
	detail.ZeroFlightDays = days - len(perDay)
	detail.AvgFlightsPerDay = float64(detail.TotalFlights) / float64(days)
	writeJSON(w, http.StatusOK, detail)
}

func handleUpload(w http.ResponseWriter, r *http.Request) {
	if !enforceMethod(w, r, http.MethodPost) {
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "multipart field \"file\" is required"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	processed := strings.Count(string(data), "\n") + 1
	writeJSON(w, http.StatusOK, map[string]any{
		"processed": processed,
		"status":    "ok",
		"filename":  header.Filename,
	})
}

func handleReport(w http.ResponseWriter, r *http.Request) {
	if !enforceMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Format    string   `json:"format"`
		StartDate string   `json:"start_date"`
		EndDate   string   `json:"end_date"`
		Regions   []string `json:"regions"`
		ChartType string   `json:"chart_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}
	id := fmt.Sprintf("report_%s_%s", strings.ReplaceAll(req.StartDate, "-", ""), strings.ReplaceAll(req.EndDate, "-", ""))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"file_path":  "reports/" + id + "." + req.Format,
		"format":     req.Format,
		"size_bytes": 4096,
	})
}

func handleDownload(w http.ResponseWriter, r *http.Request) {
	if !enforceMethod(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = fmt.Fprintf(w, "mock report %s\n", r.PathValue("id"))
}

func parseRange(w http.ResponseWriter, r *http.Request) (models.DateRange, bool) {
	rng, err := models.ParseDateRange(r.URL.Query().Get("start_date"), r.URL.Query().Get("end_date"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return models.DateRange{}, false
	}
	return rng.Normalize(), true
}

func hash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

func requireToken(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token && !strings.HasSuffix(r.URL.Path, "/health") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enforceMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}
