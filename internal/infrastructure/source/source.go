// Package source makes import sources available as local files: user-supplied
// paths are used in place, remote locations are downloaded to a staging
// directory and removed after processing.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"

	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
)

type Stager struct {
	baseDir    string
	stagingDir string
	client     *http.Client
	downloader *s3manager.Downloader
}

func NewStager(baseDir, stagingDir string, client *http.Client, sess *session.Session) *Stager {
	if baseDir == "" {
		baseDir = "."
	}
	if client == nil {
		client = http.DefaultClient
	}
	s := &Stager{
		baseDir:    baseDir,
		stagingDir: stagingDir,
		client:     client,
	}
	if sess != nil {
		s.downloader = s3manager.NewDownloader(sess)
	}
	return s
}

// Stage resolves a source location to a local path. The cleanup func removes
// any staged download and is a no-op for user-supplied local files; it is
// safe to call unconditionally, regardless of processing outcome.
func (s *Stager) Stage(ctx context.Context, location string) (string, func(), error) {
	noop := func() {}

	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return s.downloadHTTP(ctx, location)
	case strings.HasPrefix(location, "s3://"):
		return s.downloadS3(ctx, location)
	default:
		p := location
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.baseDir, location)
		}
		if _, err := os.Stat(p); err != nil {
			return "", noop, &job.SourceError{Reason: fmt.Sprintf("source file %s", location), Err: err}
		}
		return p, noop, nil
	}
}

func (s *Stager) downloadHTTP(ctx context.Context, location string) (string, func(), error) {
	noop := func() {}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return "", noop, &job.SourceError{Reason: "build download request", Err: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", noop, &job.SourceError{Reason: fmt.Sprintf("download %s", location), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", noop, &job.SourceError{Reason: fmt.Sprintf("download %s returned status %d", location, resp.StatusCode)}
	}

	return s.stageStream(location, resp.Body)
}

func (s *Stager) downloadS3(ctx context.Context, location string) (string, func(), error) {
	noop := func() {}

	if s.downloader == nil {
		return "", noop, &job.SourceError{Reason: "s3 sources are not configured"}
	}

	bucket, key, err := splitS3Location(location)
	if err != nil {
		return "", noop, &job.SourceError{Reason: "parse s3 location", Err: err}
	}

	dest, cleanup, f, err := s.createStagingFile(location)
	if err != nil {
		return "", noop, err
	}

	if _, err := s.downloader.DownloadWithContext(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		f.Close()
		cleanup()
		return "", noop, &job.SourceError{Reason: fmt.Sprintf("download %s", location), Err: err}
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", noop, &job.SourceError{Reason: "close staging file", Err: err}
	}
	return dest, cleanup, nil
}

func (s *Stager) stageStream(location string, body io.Reader) (string, func(), error) {
	noop := func() {}

	dest, cleanup, f, err := s.createStagingFile(location)
	if err != nil {
		return "", noop, err
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		cleanup()
		return "", noop, &job.SourceError{Reason: "write staging file", Err: err}
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", noop, &job.SourceError{Reason: "close staging file", Err: err}
	}
	return dest, cleanup, nil
}

func (s *Stager) createStagingFile(location string) (string, func(), *os.File, error) {
	if err := os.MkdirAll(s.stagingDir, 0o755); err != nil {
		return "", nil, nil, &job.SourceError{Reason: "create staging dir", Err: err}
	}

	loc := location
	if i := strings.IndexByte(loc, '?'); i >= 0 {
		loc = loc[:i]
	}
	dest := filepath.Join(s.stagingDir, uuid.NewString()+path.Ext(loc))

	f, err := os.Create(dest)
	if err != nil {
		return "", nil, nil, &job.SourceError{Reason: "create staging file", Err: err}
	}
	cleanup := func() { os.Remove(dest) }
	return dest, cleanup, f, nil
}

func splitS3Location(location string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(location, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected s3://bucket/key, got %q", location)
	}
	return parts[0], parts[1], nil
}
