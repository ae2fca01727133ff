package importer

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/scrobbled/scrobbled/internal/scrobble"
	"github.com/scrobbled/scrobbled/internal/util"
)

// Format identifies an import file layout
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
	FormatTSV   Format = "tsv"
)

// DetectFormat guesses the file format from its first line: a JSON object
// means JSONL, a tab means TSV, a comma means CSV, anything else defaults to
// JSONL
func DetectFormat(firstLine string) Format {
	stripped := strings.TrimSpace(firstLine)

	if strings.HasPrefix(stripped, "{") {
		var probe map[string]interface{}
		if json.Unmarshal([]byte(stripped), &probe) == nil {
			return FormatJSONL
		}
	}

	if strings.Contains(stripped, "\t") {
		return FormatTSV
	}
	if strings.Contains(stripped, ",") {
		return FormatCSV
	}

	return FormatJSONL
}

// ParseFormat validates a user-supplied format name; empty means auto-detect
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "":
		return "", nil
	case "jsonl", "json":
		return FormatJSONL, nil
	case "csv":
		return FormatCSV, nil
	case "tsv":
		return FormatTSV, nil
	}
	return "", fmt.Errorf("%w: unknown format %q (want jsonl, csv or tsv)", util.ErrInvalidConfig, name)
}

// ReadRecords parses an import file and passes each record to yield together
// with its line number. With format == "" the format is detected from the
// first line. A parse error on an individual line is delivered to yield as a
// zero record plus the error, so the caller's skip-errors policy decides
// whether the run continues.
func ReadRecords(r io.Reader, format Format, yield func(raw scrobble.RawPlay, line int, err error) error) error {
	br := bufio.NewReader(r)

	firstLine, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if strings.TrimSpace(firstLine) == "" && err == io.EOF {
		return nil // Empty input
	}

	if format == "" {
		format = DetectFormat(firstLine)
		util.DebugLog("Detected input format: %s", format)
	}

	switch format {
	case FormatJSONL:
		return readJSONL(firstLine, br, yield)
	case FormatCSV:
		return readDelimited(firstLine, br, ',', yield)
	case FormatTSV:
		return readDelimited(firstLine, br, '\t', yield)
	}

	return fmt.Errorf("%w: unsupported format %q", util.ErrInvalidConfig, format)
}

// ParseJSONLine parses one JSONL line into a raw play record
func ParseJSONLine(line string) (scrobble.RawPlay, error) {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return scrobble.RawPlay{}, fmt.Errorf("%w: invalid JSON: %v", util.ErrMalformedRecord, err)
	}

	fields := make(map[string]string, len(data))
	for key, value := range data {
		switch v := value.(type) {
		case string:
			fields[key] = v
		case float64:
			// JSON numbers decode as float64; epoch timestamps must not
			// pick up a spurious fraction
			if v == float64(int64(v)) {
				fields[key] = strconv.FormatInt(int64(v), 10)
			} else {
				fields[key] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		case nil:
			// Omitted
		default:
			fields[key] = fmt.Sprintf("%v", v)
		}
	}

	return scrobble.RawFromFields(fields), nil
}

func readJSONL(firstLine string, br *bufio.Reader, yield func(scrobble.RawPlay, int, error) error) error {
	lineNum := 0
	line := firstLine
	var readErr error

	for {
		lineNum++
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			raw, err := ParseJSONLine(trimmed)
			if err := yield(raw, lineNum, err); err != nil {
				return err
			}
		}

		if readErr == io.EOF {
			return nil
		}
		line, readErr = br.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("failed to read line %d: %w", lineNum+1, readErr)
		}
		if readErr == io.EOF && strings.TrimSpace(line) == "" {
			return nil
		}
	}
}

func readDelimited(headerLine string, br *bufio.Reader, delimiter rune, yield func(scrobble.RawPlay, int, error) error) error {
	reader := csv.NewReader(io.MultiReader(strings.NewReader(headerLine), br))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1 // Tolerate ragged rows; short rows yield record errors below

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read header row: %w", err)
	}

	lineNum := 1
	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if yieldErr := yield(scrobble.RawPlay{}, lineNum,
				fmt.Errorf("%w: %v", util.ErrMalformedRecord, err)); yieldErr != nil {
				return yieldErr
			}
			continue
		}

		fields := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				fields[name] = row[i]
			}
		}

		if err := yield(scrobble.RawFromFields(fields), lineNum, nil); err != nil {
			return err
		}
	}
}
