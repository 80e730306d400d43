package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode/utf16"
)

// RowLimitSentinel is the literal value GA4 substitutes for a dimension when
// the underlying database table from which the report is built reaches its
// row limit. See https://support.google.com/analytics/answer/9309767
const RowLimitSentinel = "(other)"

// RecordDatetimeFormat is the normalized timestamp layout for datetime
// dimension values on emitted records.
const RecordDatetimeFormat = "2006-01-02T15:04:05.000000Z"

// DatetimeFormats maps datetime-valued dimension names to the compact
// numeric layout GA4 returns them in.
var DatetimeFormats = map[string]string{
	"dateHour":         "2006010215",
	"dateHourMinute":   "200601021504",
	"date":             "20060102",
	"firstSessionDate": "20060102",
}

// Record is one flat output record keyed by _sdc_record_hash.
type Record map[string]interface{}

// Row is one raw report result row: ordered dimension values followed by
// ordered metric values, positions matching the response headers.
type Row struct {
	DimensionValues []string
	MetricValues    []string
}

// DimensionPair is one ("dimension_name", "dimension_value") input to the
// primary key hash.
type DimensionPair struct {
	Name  string
	Value string
}

// jsonEncodeString encodes s as a JSON string with every rune outside
// printable ASCII escaped as \uXXXX (surrogate pairs beyond the BMP), so
// the hash source bytes keep the layout historical primary keys were
// built from.
func jsonEncodeString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r >= 0x20 && r <= 0x7e {
				b.WriteRune(r)
			} else if r > 0xffff {
				high, low := utf16.EncodeRune(r)
				fmt.Fprintf(&b, `\u%04x\u%04x`, high, low)
			} else {
				fmt.Fprintf(&b, `\u%04x`, r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// GenerateSDCRecordHash generates the SHA 256 hash used as the primary key
// for records associated with a report. It digests a UTF-8 encoded JSON
// list containing:
//   - The property_id of the associated report
//   - Pairs of ("dimension_name", "dimension_value"), sorted
//   - Report start_date value in YYYY-mm-dd format
//   - Report end_date value in YYYY-mm-dd format
//
// Start and end date are included to maintain flexibility in the event the
// engine is extended to support wider date ranges.
//
// WARNING: Any change in the hashing mechanism, data, or sorting will
// REQUIRE a major version bump! As it will invalidate all previous
// primary keys and cause new data to be appended.
func GenerateSDCRecordHash(record Record, dimensionPairs []DimensionPair) string {
	sorted := make([]DimensionPair, len(dimensionPairs))
	copy(sorted, dimensionPairs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Value < sorted[j].Value
	})

	// NB: Do not change the ordering of this list, it is the source of the PK hash
	var source strings.Builder
	source.WriteString("[")
	source.WriteString(jsonEncodeString(record["property_id"].(string)))
	source.WriteString(", [")
	for i, pair := range sorted {
		if i > 0 {
			source.WriteString(", ")
		}
		source.WriteString("[")
		source.WriteString(jsonEncodeString(pair.Name))
		source.WriteString(", ")
		source.WriteString(jsonEncodeString(pair.Value))
		source.WriteString("]")
	}
	source.WriteString("], ")
	source.WriteString(jsonEncodeString(record["start_date"].(string)))
	source.WriteString(", ")
	source.WriteString(jsonEncodeString(record["end_date"].(string)))
	source.WriteString("]")

	digest := sha256.Sum256([]byte(source.String()))
	return hex.EncodeToString(digest[:])
}

// RowToRecord parses a report response row into a single flat record, with
// added runtime info and the primary key hash. Header/value length
// mismatches indicate an unsupported API contract change and are fatal.
func RowToRecord(report Report, row Row, dimensionHeaders []string, metricHeaders []string) (Record, error) {
	if len(dimensionHeaders) != len(row.DimensionValues) {
		return nil, fmt.Errorf("report %s returned %d dimension headers for %d dimension values",
			report.Name, len(dimensionHeaders), len(row.DimensionValues))
	}
	if len(metricHeaders) != len(row.MetricValues) {
		return nil, fmt.Errorf("report %s returned %d metric headers for %d metric values",
			report.Name, len(metricHeaders), len(row.MetricValues))
	}

	record := Record{}
	dimensionPairs := make([]DimensionPair, len(dimensionHeaders))
	for i, header := range dimensionHeaders {
		dimensionPairs[i] = DimensionPair{Name: header, Value: row.DimensionValues[i]}
		record[header] = row.DimensionValues[i]
	}
	for i, header := range metricHeaders {
		record[header] = row.MetricValues[i]
	}

	reportDate := ""
	found := false
	for i, header := range dimensionHeaders {
		if header == "date" {
			reportDate = row.DimensionValues[i]
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("report %s response is missing the required 'date' dimension", report.Name)
	}

	record["start_date"] = reportDate
	record["end_date"] = reportDate
	record["property_id"] = report.PropertyID
	record["_sdc_record_hash"] = GenerateSDCRecordHash(record, dimensionPairs)
	if report.AccountID != "" {
		record["account_id"] = report.AccountID
	}
	return record, nil
}

// ParseDatetime handles the case where a datetime value is not in a valid
// datetime format.
//
// GA4 will return `(other)` as the value when the underlying database table
// from which the report is built reaches its row limit.
//
// See https://support.google.com/analytics/answer/9309767
func ParseDatetime(fieldName string, value string) (string, bool) {
	parsed, err := time.Parse(DatetimeFormats[fieldName], value)
	if err != nil {
		return value, false
	}
	return parsed.UTC().Format(RecordDatetimeFormat), true
}

// TransformDatetimes normalizes the compressed datetime dimension values on
// a record so they parse correctly downstream. Unparseable values pass
// through unchanged; the documented row limit sentinel additionally logs a
// warning.
func TransformDatetimes(reportName string, record Record) Record {
	rowLimitReached := false
	for fieldName, value := range record {
		s, isString := value.(string)
		if !isString || s == "" {
			continue
		}
		if _, isDatetime := DatetimeFormats[fieldName]; !isDatetime {
			continue
		}
		parsed, valid := ParseDatetime(fieldName, s)
		record[fieldName] = parsed
		rowLimitReached = rowLimitReached || (!valid && s == RowLimitSentinel)
	}
	if rowLimitReached {
		log.Printf("Warning: row limit reached for report: %s. See https://support.google.com/analytics/answer/9309767 for more info.", reportName)
	}
	return record
}
