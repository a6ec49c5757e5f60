// Package imports parses uploaded interval readings. Both adapters collect
// per-row errors next to the rows that parsed; a partial import is normal.
package imports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ecg-guardrail-server/internal/domain"
)

// Required CSV columns. HR_bpm, PR_ms and QRS_ms are optional.
var requiredColumns = []string{"timestamp", domain.MetricQT, domain.MetricRR}

var optionalColumns = []string{domain.MetricHR, domain.MetricPR, domain.MetricQRS}

// Accepted timestamp layouts, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the common ISO 8601 variants without
// zone, which are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// ParseCSV reads a header row followed by one reading per row.
func ParseCSV(r io.Reader) domain.ImportResult {
	result := domain.ImportResult{Readings: []domain.Reading{}, Errors: []string{}}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return result
	}
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("header: %v", err))
		return result
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}

	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", row, err))
			continue
		}

		fields := make(map[string]string, len(columns))
		for name, idx := range columns {
			if idx < len(record) {
				fields[name] = strings.TrimSpace(record[idx])
			}
		}

		reading, err := readingFromFields(fields)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", row, err))
			continue
		}
		result.Readings = append(result.Readings, reading)
	}

	return result
}

func readingFromFields(fields map[string]string) (domain.Reading, error) {
	for _, name := range requiredColumns {
		if fields[name] == "" {
			return domain.Reading{}, fmt.Errorf("missing %s", name)
		}
	}

	ts, err := ParseTimestamp(fields["timestamp"])
	if err != nil {
		return domain.Reading{}, err
	}

	values := make(map[string]domain.Value, 5)
	for _, name := range append([]string{domain.MetricQT, domain.MetricRR}, optionalColumns...) {
		raw := fields[name]
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Reading{}, fmt.Errorf("%s: invalid number %q", name, raw)
		}
		values[name] = domain.Some(f)
	}

	return domain.Reading{
		Timestamp: ts,
		QTMs:      values[domain.MetricQT],
		RRMs:      values[domain.MetricRR],
		HRBpm:     values[domain.MetricHR],
		PRMs:      values[domain.MetricPR],
		QRSMs:     values[domain.MetricQRS],
	}, nil
}

// ParseJSON reads a JSON array of reading objects. Anything other than an
// array yields a single error and no readings.
func ParseJSON(data []byte) domain.ImportResult {
	result := domain.ImportResult{Readings: []domain.Reading{}, Errors: []string{}}

	var items []json.RawMessage
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		result.Errors = append(result.Errors, "payload must be a JSON array of readings")
		return result
	}
	if err := json.Unmarshal(trimmed, &items); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	for i, raw := range items {
		reading, err := readingFromJSON(raw)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("item %d: %v", i+1, err))
			continue
		}
		result.Readings = append(result.Readings, reading)
	}

	return result
}

func readingFromJSON(raw json.RawMessage) (domain.Reading, error) {
	var obj map[string]any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&obj); err != nil {
		return domain.Reading{}, fmt.Errorf("not an object: %v", err)
	}
	if obj == nil {
		return domain.Reading{}, errors.New("not an object")
	}

	fields := make(map[string]string, len(obj))
	for _, key := range append(append([]string{}, requiredColumns...), optionalColumns...) {
		switch val := obj[key].(type) {
		case nil:
		case string:
			fields[key] = strings.TrimSpace(val)
		case json.Number:
			fields[key] = val.String()
		default:
			return domain.Reading{}, fmt.Errorf("%s: unsupported value", key)
		}
	}

	return readingFromFields(fields)
}
