package extractor

import (
	"context"
	"strings"
)

// DefaultOutputTemplate names a download after the media title and the
// container the extractor produced.
const DefaultOutputTemplate = "%(title)s.%(ext)s"

// Client is the media extraction capability: it enumerates the formats of a
// media URL and downloads one of them into a directory.
type Client interface {
	// ExtractInfo returns metadata only; nothing is written to disk.
	ExtractInfo(ctx context.Context, url string) (*Info, error)
	// Download fetches url using opts and returns the metadata of what was written.
	Download(ctx context.Context, url string, opts DownloadOptions) (*Info, error)
}

// Info is the subset of extractor metadata this service consumes.
type Info struct {
	ID    string
	Title string
	// Ext is the container of the downloaded file. Empty in metadata-only mode.
	Ext string
	// Filename is the path written by Download, when the backend reports it.
	Filename string
	Formats  []Format
}

// Format is one downloadable variant as reported by the extractor.
type Format struct {
	ID  string
	Ext string
	// Height is nil for variants without a video track.
	Height *int
	Note   string
}

// DownloadOptions controls a single download.
type DownloadOptions struct {
	OutputDir      string
	OutputTemplate string
	// Format is an extractor specific selector such as "best" or "137+140".
	Format string
	// Cookies is a raw Cookie header value, forwarded untouched.
	Cookies string
}

// ExpandTemplate fills the %(title)s and %(ext)s fields of an output template.
func ExpandTemplate(template, title, ext string) string {
	if template == "" {
		template = DefaultOutputTemplate
	}

	return strings.NewReplacer(
		"%(title)s", title,
		"%(ext)s", ext,
	).Replace(template)
}

// SanitizeFilename makes a media title usable as a single path element.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '-'
		}

		return r
	}, strings.TrimSpace(name))

	switch name {
	case "", ".", "..":
		return "untitled"
	}

	return name
}
