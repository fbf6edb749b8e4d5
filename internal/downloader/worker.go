package downloader

import (
	"context"
	"time"

	"pzgrab/pkg/exif"
	"pzgrab/pkg/gallery"
	"pzgrab/pkg/logger"
	"pzgrab/pkg/report"
	"pzgrab/pkg/retry"
)

// Target is one image to fetch. Immutable once constructed; the shared
// header set lives on the client, only the referer rides along per target.
type Target struct {
	URL     string
	Referer string
}

// ImageFetcher downloads one URL and reports the last HTTP status seen
type ImageFetcher interface {
	FetchImage(ctx context.Context, url, referer string) ([]byte, int, error)
}

// FileStore persists image bytes under a derived filename
type FileStore interface {
	SaveFile(filename string, data []byte) (string, error)
	SetModTime(filename string, t time.Time) error
}

// FetchOptions control one fetch invocation
type FetchOptions struct {
	ExifEnabled bool
	Latitude    *float64
	Longitude   *float64
	// MaxTries bounds the whole-operation retry loop
	MaxTries int
	// Backoff is the delay strategy between whole-operation attempts
	Backoff retry.BackoffStrategy
}

// fetchOne runs the complete whole-operation retry loop for a single
// target: GET, optional metadata rewrite, atomic save, mtime stamp. It
// always returns an Outcome; no failure escapes as an error.
func fetchOne(ctx context.Context, client ImageFetcher, store FileStore, target Target, opts FetchOptions, log logger.Logger) report.Outcome {
	filename := gallery.FilenameFromURL(target.URL)
	mediaID, variant := gallery.MediaInfo(target.URL)
	capturedAt := gallery.CaptureTime(target.URL)

	maxTries := opts.MaxTries
	if maxTries <= 0 {
		maxTries = 5
	}
	backoff := opts.Backoff
	if backoff == nil {
		backoff = retry.DefaultAttemptBackoff()
	}

	outcome := report.Outcome{
		URL:      target.URL,
		MediaID:  mediaID,
		Variant:  variant,
		Filename: filename,
	}

	var lastErr string

	for attempt := 1; attempt <= maxTries; attempt++ {
		data, status, err := client.FetchImage(ctx, target.URL, target.Referer)
		if status != 0 {
			outcome.HTTPStatus = status
		}

		if err == nil {
			advisory := ""
			if opts.ExifEnabled {
				patch := exif.Patch{
					CapturedAt: capturedAt,
					Latitude:   opts.Latitude,
					Longitude:  opts.Longitude,
				}
				rewritten, exifErr := exif.Rewrite(data, patch)
				if exifErr != nil {
					// Advisory only: the original bytes are saved
					advisory = exifErr.Error()
					log.WarnWithFields("metadata rewrite failed, saving original", map[string]interface{}{
						"url":   target.URL,
						"error": advisory,
					})
				} else {
					data = rewritten
				}
			}

			if _, saveErr := store.SaveFile(filename, data); saveErr != nil {
				lastErr = saveErr.Error()
			} else {
				if capturedAt != nil {
					// Best effort; a filesystem that refuses is not a failure
					_ = store.SetModTime(filename, *capturedAt)
				}
				outcome.Success = true
				outcome.Attempts = attempt
				outcome.ErrorMessage = advisory
				outcome.Timestamp = time.Now()
				return outcome
			}
		} else {
			lastErr = err.Error()
		}

		if attempt < maxTries {
			if waitErr := retry.Wait(ctx, backoff.NextDelay(attempt)); waitErr != nil {
				break
			}
		}
	}

	outcome.Success = false
	outcome.Attempts = maxTries
	outcome.ErrorMessage = lastErr
	outcome.Timestamp = time.Now()
	return outcome
}
