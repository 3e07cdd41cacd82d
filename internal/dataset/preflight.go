package dataset

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/montanaflynn/stats"
)

// Preflight is a local, best-effort summary of a CSV staged for upload. It
// is computed before the backend is contacted so the upload view can show
// the user what is about to be analyzed; the backend statistics remain
// authoritative.
type Preflight struct {
	Rows        int            `json:"rows"`
	AvgPressure float64        `json:"avg_pressure"`
	AvgTemp     float64        `json:"avg_temp"`
	Types       map[string]int `json:"types"`
}

// ErrEmptyCSV is returned for files with no data rows.
var ErrEmptyCSV = errors.New("csv has no data rows")

// ParsePreflight reads an equipment CSV and summarizes it. Columns are
// located by header name (Pressure, Temperature, Type); missing columns
// simply leave the matching summary zeroed, mirroring the backend's
// tolerance for partial files.
func ParsePreflight(r io.Reader) (Preflight, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return Preflight{}, err
	}
	if len(rows) < 2 {
		return Preflight{}, ErrEmptyCSV
	}

	pressureCol, tempCol, typeCol := -1, -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "pressure":
			pressureCol = i
		case "temperature":
			tempCol = i
		case "type":
			typeCol = i
		}
	}

	out := Preflight{Types: map[string]int{}}
	pressures := make([]float64, 0, len(rows)-1)
	temps := make([]float64, 0, len(rows)-1)

	for _, row := range rows[1:] {
		out.Rows++
		if v, ok := cellFloat(row, pressureCol); ok {
			pressures = append(pressures, v)
		}
		if v, ok := cellFloat(row, tempCol); ok {
			temps = append(temps, v)
		}
		if typeCol >= 0 && typeCol < len(row) {
			if label := strings.TrimSpace(row[typeCol]); label != "" {
				out.Types[label]++
			}
		}
	}

	if len(pressures) > 0 {
		if mean, err := stats.Mean(pressures); err == nil {
			out.AvgPressure = mean
		}
	}
	if len(temps) > 0 {
		if mean, err := stats.Mean(temps); err == nil {
			out.AvgTemp = mean
		}
	}
	return out, nil
}

func cellFloat(row []string, col int) (float64, bool) {
	if col < 0 || col >= len(row) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
