package exporting

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
)

// encoder frames formatted records onto an output stream without buffering
// the whole result set.
type encoder interface {
	Write(rec map[string]any) error
	Close() error
}

func newEncoder(format job.Format, w io.Writer) (encoder, error) {
	switch format {
	case job.FormatNDJSON:
		return &ndjsonEncoder{w: w}, nil
	case job.FormatJSONArray:
		return &arrayEncoder{w: w}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// ndjsonEncoder writes one compact JSON object per record, newline
// terminated.
type ndjsonEncoder struct {
	w io.Writer
}

func (e *ndjsonEncoder) Write(rec map[string]any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	data = append(data, '\n')
	_, err = e.w.Write(data)
	return err
}

func (e *ndjsonEncoder) Close() error { return nil }

// arrayEncoder writes an incremental JSON array: `[`, comma-newline
// separated objects, `]`. The first flag avoids a leading comma.
type arrayEncoder struct {
	w     io.Writer
	first bool
}

func (e *arrayEncoder) Write(rec map[string]any) error {
	var prefix string
	if !e.first {
		prefix = "[\n"
		e.first = true
	} else {
		prefix = ",\n"
	}
	if _, err := io.WriteString(e.w, prefix); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = e.w.Write(data)
	return err
}

func (e *arrayEncoder) Close() error {
	if !e.first {
		_, err := io.WriteString(e.w, "[]\n")
		return err
	}
	_, err := io.WriteString(e.w, "\n]\n")
	return err
}
