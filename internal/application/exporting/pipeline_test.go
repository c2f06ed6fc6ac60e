package exporting_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/ewamal/bulk-data-import-export/internal/application/exporting"
	"github.com/ewamal/bulk-data-import-export/internal/application/identity"
	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
	"github.com/ewamal/bulk-data-import-export/internal/domain/record"
)

type fakeScanner struct {
	users    []record.StoredUser
	articles []record.StoredArticle
	pages    int
}

func (f *fakeScanner) ScanPage(ctx context.Context, resource record.Resource, filters map[string]any, afterID int64, limit int) ([]record.Stored, error) {
	f.pages++
	var out []record.Stored
	switch resource {
	case record.ResourceUsers:
		for _, u := range f.users {
			if u.ID <= afterID {
				continue
			}
			out = append(out, u)
			if len(out) == limit {
				break
			}
		}
	case record.ResourceArticles:
		for _, a := range f.articles {
			if a.ID <= afterID {
				continue
			}
			if status, ok := filters["status"]; ok && a.Status != status {
				continue
			}
			out = append(out, a)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeIndex struct {
	externalByID map[int64]string
}

func (f *fakeIndex) LookupIDByExternalID(ctx context.Context, resource record.Resource, externalID string) (int64, error) {
	for id, ext := range f.externalByID {
		if ext == externalID {
			return id, nil
		}
	}
	return 0, record.ErrNotFound
}

func (f *fakeIndex) LookupExternalID(ctx context.Context, resource record.Resource, id int64) (string, error) {
	return f.externalByID[id], nil
}

type fakeExportJobStore struct {
	completedTotal int64
	filePath       string
	downloadURL    string
	failedReason   string
}

func (f *fakeExportJobStore) CompleteExport(ctx context.Context, jobID, totalRecords int64, filePath, downloadURL string) error {
	f.completedTotal = totalRecords
	f.filePath = filePath
	f.downloadURL = downloadURL
	return nil
}

func (f *fakeExportJobStore) FailExport(ctx context.Context, jobID int64, reason string) error {
	f.failedReason = reason
	return nil
}

type memFile struct {
	*bytes.Buffer
}

func (memFile) Close() error { return nil }

type fakeOutputStore struct {
	buf *bytes.Buffer
}

func (f *fakeOutputStore) Create(name string) (io.WriteCloser, string, error) {
	f.buf = &bytes.Buffer{}
	return memFile{f.buf}, "/exports/" + name, nil
}

func (f *fakeOutputStore) DownloadURL(name string) string {
	return "http://localhost:8080/downloads/" + name
}

func decodeNDJSON(t *testing.T, data string) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad ndjson line %q: %v", sc.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

func TestExporterStreamOrdersAndPages(t *testing.T) {
	t.Parallel()

	scanner := &fakeScanner{}
	for i := int64(1); i <= 5; i++ {
		scanner.users = append(scanner.users, record.StoredUser{ID: i, Email: "u@example.com", Name: "U"})
	}
	resolver := identity.NewResolver(&fakeIndex{})
	exp := exporting.NewExporter(&fakeExportJobStore{}, scanner, resolver, &fakeOutputStore{}, nil, 2)

	var buf bytes.Buffer
	total, err := exp.Stream(context.Background(), &buf, record.ResourceUsers, job.FormatNDJSON)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected 5 records, got %d", total)
	}
	// 2+2+1: the short page ends the cursor.
	if scanner.pages != 3 {
		t.Fatalf("expected 3 page scans, got %d", scanner.pages)
	}

	rows := decodeNDJSON(t, buf.String())
	if len(rows) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(rows))
	}
	for i, row := range rows {
		if row["id"] != float64(i+1) {
			t.Fatalf("expected ascending ids, got %v at %d", row["id"], i)
		}
	}
}

func TestExporterAppliesFiltersAndFields(t *testing.T) {
	t.Parallel()

	scanner := &fakeScanner{articles: []record.StoredArticle{
		{ID: 1, Slug: "one", Title: "One", Status: "published", AuthorID: 10},
		{ID: 2, Slug: "two", Title: "Two", Status: "draft", AuthorID: 10},
		{ID: 3, Slug: "three", Title: "Three", Status: "published", AuthorID: 10},
	}}
	resolver := identity.NewResolver(&fakeIndex{})
	jobs := &fakeExportJobStore{}
	files := &fakeOutputStore{}
	exp := exporting.NewExporter(jobs, scanner, resolver, files, nil, 100)

	err := exp.ProcessJob(context.Background(), job.ExportJob{
		ID:       7,
		Resource: record.ResourceArticles,
		Format:   job.FormatNDJSON,
		Filters:  map[string]any{"status": "published"},
		Fields:   []string{"id", "slug"},
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}

	rows := decodeNDJSON(t, files.buf.String())
	if len(rows) != 2 {
		t.Fatalf("expected 2 published articles, got %d", len(rows))
	}
	for _, row := range rows {
		if len(row) != 2 {
			t.Fatalf("expected exactly id and slug keys, got %v", row)
		}
		if _, ok := row["slug"]; !ok {
			t.Fatalf("expected slug key, got %v", row)
		}
	}
	if jobs.completedTotal != 2 {
		t.Fatalf("expected completed total 2, got %d", jobs.completedTotal)
	}
	if jobs.downloadURL == "" || !strings.HasPrefix(jobs.downloadURL, "http://localhost:8080/downloads/articles_7_") {
		t.Fatalf("unexpected download url: %q", jobs.downloadURL)
	}
	if !strings.HasSuffix(jobs.filePath, ".ndjson") {
		t.Fatalf("unexpected file path: %q", jobs.filePath)
	}
}

func TestExporterPrefersExternalIDs(t *testing.T) {
	t.Parallel()

	scanner := &fakeScanner{articles: []record.StoredArticle{
		{ID: 1, ExternalID: "art-1", Slug: "one", Title: "One", Status: "published", AuthorID: 10},
	}}
	resolver := identity.NewResolver(&fakeIndex{externalByID: map[int64]string{10: "usr-10"}})
	exp := exporting.NewExporter(&fakeExportJobStore{}, scanner, resolver, &fakeOutputStore{}, nil, 100)

	var buf bytes.Buffer
	if _, err := exp.Stream(context.Background(), &buf, record.ResourceArticles, job.FormatNDJSON); err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	rows := decodeNDJSON(t, buf.String())
	if rows[0]["id"] != "art-1" {
		t.Fatalf("expected external id on record, got %v", rows[0]["id"])
	}
	if rows[0]["author_id"] != "usr-10" {
		t.Fatalf("expected externalized author reference, got %v", rows[0]["author_id"])
	}
}

func TestExporterJSONArrayFraming(t *testing.T) {
	t.Parallel()

	scanner := &fakeScanner{users: []record.StoredUser{
		{ID: 1, Email: "a@example.com", Name: "A"},
		{ID: 2, Email: "b@example.com", Name: "B"},
	}}
	resolver := identity.NewResolver(&fakeIndex{})
	exp := exporting.NewExporter(&fakeExportJobStore{}, scanner, resolver, &fakeOutputStore{}, nil, 100)

	var buf bytes.Buffer
	if _, err := exp.Stream(context.Background(), &buf, record.ResourceUsers, job.FormatJSONArray); err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rows); err != nil {
		t.Fatalf("output is not a valid json array: %v\n%s", err, buf.String())
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(rows))
	}
}

func TestExporterEmptyJSONArray(t *testing.T) {
	t.Parallel()

	resolver := identity.NewResolver(&fakeIndex{})
	exp := exporting.NewExporter(&fakeExportJobStore{}, &fakeScanner{}, resolver, &fakeOutputStore{}, nil, 100)

	var buf bytes.Buffer
	total, err := exp.Stream(context.Background(), &buf, record.ResourceUsers, job.FormatJSONArray)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected 0 records, got %d", total)
	}

	var rows []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rows); err != nil {
		t.Fatalf("empty export must still be a valid array: %v\n%s", err, buf.String())
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty array, got %v", rows)
	}
}
