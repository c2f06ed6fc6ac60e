package importing

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
)

// DetectFormat infers the source format from the location's suffix,
// defaulting to the generic JSON array format. Query strings on URLs are
// ignored.
func DetectFormat(location string) job.Format {
	loc := location
	if i := strings.IndexByte(loc, '?'); i >= 0 {
		loc = loc[:i]
	}
	switch strings.ToLower(path.Ext(loc)) {
	case ".ndjson", ".jsonl":
		return job.FormatNDJSON
	case ".csv":
		return job.FormatCSV
	default:
		return job.FormatJSONArray
	}
}

// recordReader produces raw records one at a time. Next returns io.EOF at
// stream end. A *job.ParseError is a per-record failure and the reader stays
// usable; any other error is fatal to the job. The second return value is
// the record's source text where cheaply available, for error reporting.
type recordReader interface {
	Next() (map[string]any, string, error)
}

func newReader(format job.Format, r io.Reader) (recordReader, error) {
	switch format {
	case job.FormatNDJSON:
		return newNDJSONReader(r), nil
	case job.FormatCSV:
		return &csvReader{r: csv.NewReader(r)}, nil
	case job.FormatJSONArray:
		return newArrayReader(r)
	default:
		return nil, fmt.Errorf("unsupported import format %q", format)
	}
}

type ndjsonReader struct {
	scanner *bufio.Scanner
}

func newNDJSONReader(r io.Reader) *ndjsonReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &ndjsonReader{scanner: s}
}

func (r *ndjsonReader) Next() (map[string]any, string, error) {
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, line, &job.ParseError{Err: err}
		}
		return rec, line, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, "", fmt.Errorf("read source: %w", err)
	}
	return nil, "", io.EOF
}

type csvReader struct {
	r       *csv.Reader
	headers []string
}

func (r *csvReader) Next() (map[string]any, string, error) {
	if r.headers == nil {
		headers, err := r.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, "", io.EOF
			}
			return nil, "", &job.SourceError{Reason: "read csv header", Err: err}
		}
		for i := range headers {
			headers[i] = strings.TrimSpace(headers[i])
		}
		r.headers = headers
	}

	row, err := r.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, "", io.EOF
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, "", &job.ParseError{Err: err}
		}
		return nil, "", fmt.Errorf("read csv row: %w", err)
	}

	rec := make(map[string]any, len(r.headers))
	for i, h := range r.headers {
		if i >= len(row) {
			break
		}
		cell := strings.TrimSpace(row[i])
		if cell == "" {
			continue // absent
		}
		rec[h] = coerceCell(cell)
	}
	return rec, strings.Join(row, ","), nil
}

// coerceCell applies plain literal matching: boolean and numeric literals
// become typed values, everything else stays a string.
func coerceCell(cell string) any {
	switch cell {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	return cell
}

type arrayReader struct {
	dec  *json.Decoder
	done bool
}

// newArrayReader streams a top-level JSON array element by element. Any
// other top-level structure fails the job outright.
func newArrayReader(r io.Reader) (*arrayReader, error) {
	dec := json.NewDecoder(r)
	token, err := dec.Token()
	if err != nil {
		return nil, &job.SourceError{Reason: "read json start token", Err: err}
	}
	delim, ok := token.(json.Delim)
	if !ok || delim != '[' {
		return nil, &job.SourceError{Reason: "import payload must be a JSON array"}
	}
	return &arrayReader{dec: dec}, nil
}

func (r *arrayReader) Next() (map[string]any, string, error) {
	if r.done {
		return nil, "", io.EOF
	}
	if !r.dec.More() {
		if _, err := r.dec.Token(); err != nil {
			return nil, "", &job.SourceError{Reason: "read json end token", Err: err}
		}
		r.done = true
		return nil, "", io.EOF
	}

	var rec map[string]any
	if err := r.dec.Decode(&rec); err != nil {
		// A well-formed element of the wrong type is fully consumed by the
		// decoder, which stays usable; only syntax errors are fatal, since
		// the decoder cannot resynchronize mid-array.
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, "", &job.ParseError{Err: err}
		}
		return nil, "", &job.SourceError{Reason: "decode json array element", Err: err}
	}
	return rec, "", nil
}
