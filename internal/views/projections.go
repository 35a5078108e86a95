package views

import (
	"fmt"
	"sort"
	"time"

	"github.com/basflight/bas-console/internal/models"
	"github.com/basflight/bas-console/internal/utils"
)

// StatCard is one dashboard tile.
type StatCard struct {
	Title string
	Value string
	State State
}

// StatCards derives the four dashboard tiles from a statistics result.
func StatCards(r Result[models.Statistics], f Formatter) []StatCard {
	titles := []string{msgTotalFlights, msgAvgDuration, msgOperators, msgUAVTypes}
	state := stateOf(r)

	values := make([]string, len(titles))
	switch state {
	case StateReady:
		s := r.Value
		values[0] = f.Int(s.TotalFlights)
		values[1] = f.Label(msgMinutes, round(s.AvgDurationMinutes))
		values[2] = f.Int(s.UniqueOperators)
		values[3] = f.Int(s.UniqueUAVTypes)
	case StateError:
		fill(values, ErrorPlaceholder)
	default:
		fill(values, LoadingPlaceholder)
	}

	cards := make([]StatCard, len(titles))
	for i, title := range titles {
		cards[i] = StatCard{Title: f.Label(title), Value: values[i], State: state}
	}
	return cards
}

// Medal marks the top three leaderboard rows.
type Medal string

const (
	MedalNone   Medal = ""
	MedalGold   Medal = "gold"
	MedalSilver Medal = "silver"
	MedalBronze Medal = "bronze"
)

// RatingRow is one leaderboard line.
type RatingRow struct {
	Position  int
	Medal     Medal
	Region    string
	Flights   string
	Hours     string
	Operators string
}

// RatingTable is the region leaderboard.
type RatingTable struct {
	State State
	Rows  []RatingRow
}

// RatingRows orders the leaderboard by position and formats each row.
func RatingRows(r Result[[]models.RegionRating], f Formatter) RatingTable {
	state := stateOf(r)
	if state != StateReady {
		return RatingTable{State: state}
	}
	ratings := append([]models.RegionRating(nil), (*r.Value)...)
	if len(ratings) == 0 {
		return RatingTable{State: StateEmpty}
	}
	sort.SliceStable(ratings, func(i, j int) bool { return ratings[i].Position < ratings[j].Position })

	rows := make([]RatingRow, 0, len(ratings))
	for _, rating := range ratings {
		rows = append(rows, RatingRow{
			Position:  rating.Position,
			Medal:     medalFor(rating.Position),
			Region:    rating.Region,
			Flights:   f.Int(rating.FlightCount),
			Hours:     f.Int(round(rating.TotalDurationHours)),
			Operators: f.Int(rating.UniqueOperators),
		})
	}
	return RatingTable{State: StateReady, Rows: rows}
}

func medalFor(position int) Medal {
	switch position {
	case 1:
		return MedalGold
	case 2:
		return MedalSilver
	case 3:
		return MedalBronze
	default:
		return MedalNone
	}
}

// Field is a labelled value in a detail panel.
type Field struct {
	Label string
	Value string
	Note  string
}

// Panel is the region detail side panel.
type Panel struct {
	State  State
	Title  string
	Fields []Field
}

// RegionPanel formats a region detail. An empty region yields the
// "select a region" prompt.
func RegionPanel(region string, r Result[models.RegionDetail], f Formatter) Panel {
	if region == "" {
		return Panel{State: StateEmpty, Title: f.Label(msgSelectRegion)}
	}
	panel := Panel{State: stateOf(r), Title: f.Label(msgDetails, region)}
	if panel.State != StateReady {
		return panel
	}
	d := r.Value
	panel.Fields = []Field{
		{Label: f.Label(msgTotalFlights), Value: f.Int(d.TotalFlights)},
		{Label: f.Label(msgFlightTime), Value: f.Label(msgHours, round(d.TotalDurationHours))},
		{Label: f.Label(msgUniqueOps), Value: f.Int(d.UniqueOperators)},
		{Label: f.Label(msgUAVTypes), Value: f.Int(d.UniqueUAVTypes)},
		{Label: f.Label(msgPeakHour), Value: fmt.Sprintf("%02d:00", d.PeakHour), Note: f.Label(msgFlightsCount, d.PeakHourFlights)},
		{Label: f.Label(msgAvgPerDay), Value: f.Label(msgFlightsPerDay, d.AvgFlightsPerDay)},
	}
	return panel
}

// Point is one chart sample.
type Point struct {
	Label string
	Value int
}

// Series is a chart-ready sequence.
type Series struct {
	State  State
	Points []Point
}

// FlightSeries counts flights per calendar day over the whole range, with
// zero-valued days included. Flights outside the range are ignored.
func FlightSeries(r Result[[]models.Flight], dr models.DateRange) Series {
	state := stateOf(r)
	if state != StateReady {
		return Series{State: state}
	}
	if dr.IsZero() {
		return Series{State: StateEmpty}
	}
	dr = dr.Normalize()

	counts := make(map[string]int)
	for _, fl := range *r.Value {
		if fl.FlightDate.IsZero() {
			continue
		}
		counts[utils.FormatDate(utils.TruncateDay(fl.FlightDate.Time))]++
	}

	points := make([]Point, 0, dr.Days())
	for day := dr.Start; !day.After(dr.End); day = day.AddDate(0, 0, 1) {
		label := utils.FormatDate(day)
		points = append(points, Point{Label: label, Value: counts[label]})
	}
	return Series{State: StateReady, Points: points}
}

// HourlySeries buckets flights by departure hour, 00 through 23.
func HourlySeries(r Result[[]models.Flight]) Series {
	state := stateOf(r)
	if state != StateReady {
		return Series{State: state}
	}
	var buckets [24]int
	for _, fl := range *r.Value {
		if fl.FlightDate.IsZero() {
			continue
		}
		buckets[fl.FlightDate.Hour()]++
	}
	points := make([]Point, 24)
	for h := range buckets {
		points[h] = Point{Label: fmt.Sprintf("%02d:00", h), Value: buckets[h]}
	}
	return Series{State: StateReady, Points: points}
}

// UploadRow is one line of the session upload history.
type UploadRow struct {
	ID       string
	Time     string
	Filename string
	Kind     string
	Records  string
	Outcome  string
	Error    string
}

// UploadRows formats the history in the order given (most recent first).
func UploadRows(records []models.UploadRecord, f Formatter) []UploadRow {
	rows := make([]UploadRow, 0, len(records))
	for _, rec := range records {
		records := ErrorPlaceholder
		if rec.Outcome == models.UploadSucceeded {
			records = f.Int(rec.RecordsProcessed)
		}
		rows = append(rows, UploadRow{
			ID:       rec.ID,
			Time:     rec.Timestamp.Format(time.DateTime),
			Filename: rec.Filename,
			Kind:     string(rec.SourceKind),
			Records:  records,
			Outcome:  string(rec.Outcome),
			Error:    rec.Error,
		})
	}
	return rows
}

func fill(values []string, v string) {
	for i := range values {
		values[i] = v
	}
}
