package gallery

import (
	"net/url"
	"strings"
	"time"
)

// mediaMarker is the path segment preceding the media ID in gallery URLs,
// e.g. https://host/media/42/large
const mediaMarker = "media"

// MediaInfo returns the (mediaID, variant) pair parsed from the URL path,
// or empty strings when the path carries no media marker
func MediaInfo(rawURL string) (string, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ""
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, part := range parts {
		if part != mediaMarker || i+1 >= len(parts) {
			continue
		}
		mediaID := parts[i+1]
		variant := "file"
		if i+2 < len(parts) && parts[i+2] != "" {
			variant = parts[i+2]
		}
		return mediaID, variant
	}

	return "", ""
}

// FilenameFromURL derives the deterministic local file name for a gallery
// URL: "{mediaID}_{variant}.jpg" when the media marker is present,
// otherwise the last path segment, falling back to "image.jpg"
func FilenameFromURL(rawURL string) string {
	if mediaID, variant := MediaInfo(rawURL); mediaID != "" {
		return mediaID + "_" + variant + ".jpg"
	}

	name := "image"
	if u, err := url.Parse(rawURL); err == nil {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if last := parts[len(parts)-1]; last != "" {
			name = last
		}
	}

	return name + ".jpg"
}

// captureTimeLayouts covers the ISO-8601-like forms seen in the u= query
// parameter
var captureTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05.999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CaptureTime parses the naive capture timestamp from the u= query
// parameter. Absent or malformed values yield nil, never an error.
func CaptureTime(rawURL string) *time.Time {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}

	value := u.Query().Get("u")
	if value == "" {
		return nil
	}
	value = strings.TrimSuffix(value, "Z")

	for _, layout := range captureTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return &t
		}
	}

	return nil
}
