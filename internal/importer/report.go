package importer

import (
	"encoding/csv"
	"io"
	"strconv"
)

const (
	SeverityError   = "error"
	SeverityWarning = "warn"
	SeverityInfo    = "info"
)

var reportHeader = []string{"row_number", "severity", "state", "stage", "field", "message", "natural_key", "record_id"}

// WriteErrorReport writes one CSV line per failed row, per warning and per
// skipped duplicate. Rows that were written cleanly are left out.
func WriteErrorReport(w io.Writer, outcomes []Outcome) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(reportHeader); err != nil {
		return err
	}
	for _, o := range outcomes {
		recordID := ""
		if o.RecordID != nil {
			recordID = o.RecordID.String()
		}
		line := func(severity, message string) []string {
			return []string{strconv.Itoa(o.Row), severity, string(o.State), string(o.FailedAt), o.Field, message, o.NaturalKey, recordID}
		}

		switch o.State {
		case StateFailed:
			if err := writer.Write(line(SeverityError, o.Message)); err != nil {
				return err
			}
		case StateSkipped:
			if err := writer.Write(line(SeverityInfo, o.Message)); err != nil {
				return err
			}
		}
		for _, warning := range o.Warnings {
			if err := writer.Write(line(SeverityWarning, warning)); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}
