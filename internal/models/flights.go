package models

// Flight is one parsed flight record as listed by the backend.
type Flight struct {
	ID              int       `json:"id"`
	SID             string    `json:"sid,omitempty"`
	FlightDate      Timestamp `json:"flight_date"`
	DepCoords       string    `json:"dep_coords,omitempty"`
	ArrCoords       string    `json:"arr_coords,omitempty"`
	DepRegion       string    `json:"dep_region,omitempty"`
	ArrRegion       string    `json:"arr_region,omitempty"`
	Operator        string    `json:"operator,omitempty"`
	UAVType         string    `json:"uav_type,omitempty"`
	UAVReg          string    `json:"uav_reg,omitempty"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	Status          string    `json:"status,omitempty"`
	CreatedAt       Timestamp `json:"created_at"`
	UpdatedAt       Timestamp `json:"updated_at"`
}

// Statistics aggregates flight activity over a date range.
type Statistics struct {
	TotalFlights       int       `json:"total_flights"`
	AvgDurationMinutes float64   `json:"avg_duration_minutes"`
	UniqueOperators    int       `json:"unique_operators"`
	UniqueUAVTypes     int       `json:"unique_uav_types"`
	PeriodStart        Timestamp `json:"period_start"`
	PeriodEnd          Timestamp `json:"period_end"`
}
