package report

import (
	"bytes"
	"context"
	"io"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// Writer uploads rendered reports under a base URL
type Writer struct {
	fs      afs.Service
	baseURL string
}

// Write renders with render and uploads the result as name, returning its URL.
// A relative name is resolved against the base URL.
func (w *Writer) Write(ctx context.Context, name string, render func(io.Writer) error) (string, error) {
	buffer := &bytes.Buffer{}
	if err := render(buffer); err != nil {
		return "", err
	}
	URL := name
	if url.IsRelative(name) {
		URL = url.Join(w.baseURL, name)
	}
	if err := w.fs.Upload(ctx, URL, file.DefaultFileOsMode, buffer); err != nil {
		return "", err
	}
	return URL, nil
}

// BaseURL returns the destination location
func (w *Writer) BaseURL() string {
	return w.baseURL
}

// NewWriter creates a writer; an empty baseURL means the working directory.
func NewWriter(fs afs.Service, baseURL string) *Writer {
	if fs == nil {
		fs = afs.New()
	}
	if baseURL == "" {
		baseURL = "."
	}
	baseURL = url.Normalize(baseURL, file.Scheme)
	return &Writer{fs: fs, baseURL: baseURL}
}
