package models

// RegionRating is one row of the region leaderboard.
type RegionRating struct {
	Position           int     `json:"position"`
	Region             string  `json:"region"`
	FlightCount        int     `json:"flight_count"`
	TotalDurationHours float64 `json:"total_duration_hours"`
	UniqueOperators    int     `json:"unique_operators"`
}

// RegionDetail is the per-region breakdown shown next to the leaderboard.
type RegionDetail struct {
	Region             string  `json:"region"`
	TotalFlights       int     `json:"total_flights"`
	TotalDurationHours float64 `json:"total_duration_hours"`
	UniqueOperators    int     `json:"unique_operators"`
	UniqueUAVTypes     int     `json:"unique_uav_types"`
	PeakHour           int     `json:"peak_hour"`
	PeakHourFlights    int     `json:"peak_hour_flights"`
	ZeroFlightDays     int     `json:"zero_flight_days"`
	AvgFlightsPerDay   float64 `json:"avg_flights_per_day"`
}
