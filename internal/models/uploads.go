package models

import (
	"fmt"
	"strings"
	"time"
)

// SourceKind selects the upload endpoint and parser on the backend.
type SourceKind string

const (
	// SourceExcel is a spreadsheet export of flight plans.
	SourceExcel SourceKind = "excel"
	// SourceSHR is a telemetry dump of SHR telegrams.
	SourceSHR SourceKind = "shr"
)

// ParseSourceKind accepts "excel" or "shr" ("telemetry" is an alias for shr).
func ParseSourceKind(value string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "excel", "xlsx", "xls":
		return SourceExcel, nil
	case "shr", "telemetry":
		return SourceSHR, nil
	default:
		return "", fmt.Errorf("unknown source kind %q", value)
	}
}

// UploadOutcome records how an upload ended.
type UploadOutcome string

const (
	UploadSucceeded UploadOutcome = "success"
	UploadFailed    UploadOutcome = "failure"
)

// UploadRecord is one entry of the in-session upload history.
type UploadRecord struct {
	ID               string
	Filename         string
	SourceKind       SourceKind
	RecordsProcessed int
	Timestamp        time.Time
	Outcome          UploadOutcome
	Error            string
}

// UploadResult is the backend acknowledgement of an upload.
type UploadResult struct {
	Processed int      `json:"processed"`
	Errors    []string `json:"errors,omitempty"`
	Status    string   `json:"status,omitempty"`
}
