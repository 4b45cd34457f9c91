// Package download implements the resumable, retrying, hash-verifying HTTP
// fetch primitive every loader and provider client funnels through.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mcserverd/mcserverd/pkg/artifact"
	"github.com/mcserverd/mcserverd/pkg/errs"
	"github.com/mcserverd/mcserverd/pkg/log"
	"github.com/mcserverd/mcserverd/pkg/metrics"
	"github.com/mcserverd/mcserverd/pkg/types"
)

const (
	maxAttempts       = 5
	initialBackoff    = 2 * time.Second
	progressThrottle  = 100 * time.Millisecond
	perAttemptTimeout = 30 * time.Second
)

// ProgressFunc is invoked as bytes arrive; total is 0 when unknown.
type ProgressFunc func(downloaded, total int64)

// Request describes a single fetch.
type Request struct {
	URL            string
	TargetPath     string
	ExpectedHash   string // optional
	ExpectedAlgo   types.ArtifactAlgo
	ExpectedSize   int64 // optional, 0 means unknown
	OnProgress     ProgressFunc
}

// Downloader performs resumable downloads and verifies them against
// ExpectedHash when one is given.
type Downloader struct {
	client *http.Client
}

// New creates a Downloader using client, or http.DefaultClient if nil.
func New(client *http.Client) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{client: client}
}

// Fetch downloads req.URL to req.TargetPath, resuming a partial file if one
// exists, retrying transient failures with exponential backoff, and
// verifying the hash if requested.
func (d *Downloader) Fetch(ctx context.Context, req Request) error {
	logger := log.WithComponent("download")
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DownloadDuration)

	if req.ExpectedHash == "" {
		if fi, err := os.Stat(req.TargetPath); err == nil && req.ExpectedSize > 0 && fi.Size() >= req.ExpectedSize {
			metrics.DownloadAttemptsTotal.WithLabelValues("success").Inc()
			return nil
		}
	}

	op := func() (struct{}, error) {
		if err := d.attempt(ctx, req); err != nil {
			metrics.DownloadAttemptsTotal.WithLabelValues("retry").Inc()
			logger.Warn().Err(err).Str("url", req.URL).Msg("download attempt failed")
			return struct{}{}, err
		}

		if req.ExpectedHash != "" {
			actual, err := artifact.CalculateHash(req.TargetPath, req.ExpectedAlgo)
			if err != nil {
				return struct{}{}, err
			}
			if actual != req.ExpectedHash {
				os.Remove(req.TargetPath)
				mismatch := &errs.HashMismatch{Algo: string(req.ExpectedAlgo), Expected: req.ExpectedHash, Actual: actual}
				metrics.DownloadAttemptsTotal.WithLabelValues("retry").Inc()
				logger.Warn().Err(mismatch).Str("url", req.URL).Msg("hash mismatch, restarting download")
				return struct{}{}, mismatch
			}
		}

		return struct{}{}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialBackoff
	bo.Multiplier = 2

	_, err := backoff.Retry(ctx, op, backoff.WithBackOff(bo), backoff.WithMaxTries(maxAttempts))
	if err != nil {
		metrics.DownloadAttemptsTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("downloading %s: %w", req.URL, err)
	}

	metrics.DownloadAttemptsTotal.WithLabelValues("success").Inc()
	return nil
}

func (d *Downloader) attempt(ctx context.Context, req Request) error {
	ctx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(req.TargetPath), 0o755); err != nil {
		return err
	}

	var resumeFrom int64
	if fi, err := os.Stat(req.TargetPath); err == nil {
		resumeFrom = fi.Size()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return err
	}
	if resumeFrom > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out *os.File
	downloaded := resumeFrom

	switch resp.StatusCode {
	case http.StatusPartialContent:
		out, err = os.OpenFile(req.TargetPath, os.O_WRONLY|os.O_APPEND, 0o644)
	case http.StatusOK:
		downloaded = 0
		out, err = os.Create(req.TargetPath)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &errs.ProviderError{Provider: "download", Status: resp.StatusCode, Body: string(body)}
	}
	if err != nil {
		return err
	}
	defer out.Close()

	total := req.ExpectedSize
	if total == 0 && resp.ContentLength > 0 {
		total = resp.ContentLength + downloaded
	}

	lastTick := time.Now()
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			downloaded += int64(n)
			if req.OnProgress != nil && time.Since(lastTick) >= progressThrottle {
				req.OnProgress(downloaded, total)
				lastTick = time.Now()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	if req.OnProgress != nil {
		req.OnProgress(downloaded, total)
	}

	return nil
}
