package fulfillment

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// LibraryTrigger delivers library-kind resolutions as a navigation target
// carrying the resolved identifier, or the title query when only the
// fallback lookup is available.
type LibraryTrigger struct {
	BasePath string // e.g. "/library"
}

// Deliver implements Trigger for library redirects.
func (t LibraryTrigger) Deliver(_ context.Context, res Resolution) (Delivery, error) {
	if res.Kind != KindLibrary {
		return Delivery{}, fmt.Errorf("fulfillment: library trigger received a %d-kind resolution", res.Kind)
	}
	base := t.BasePath
	if base == "" {
		base = "/library"
	}
	q := url.Values{}
	switch {
	case res.DownloadID != "":
		q.Set("download", res.DownloadID)
	case res.TitleQuery != "":
		q.Set("title", res.TitleQuery)
	}
	target := base
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	return Delivery{RedirectURL: target}, nil
}

// SaveTrigger delivers file-kind resolutions by writing the stream out and
// releasing both handles as soon as the save completes, so no reader or
// descriptor outlives the delivery.
type SaveTrigger struct {
	// Open creates the destination for a filename. Defaults to a file in Dir.
	Open func(filename string) (io.WriteCloser, error)
	Dir  string
}

// Deliver implements Trigger for local saves.
func (t SaveTrigger) Deliver(_ context.Context, res Resolution) (Delivery, error) {
	if res.Kind != KindFile {
		return Delivery{}, fmt.Errorf("fulfillment: save trigger received a %d-kind resolution", res.Kind)
	}
	if res.Content == nil {
		return Delivery{}, fmt.Errorf("fulfillment: file resolution carries no content")
	}
	defer res.Content.Close()

	open := t.Open
	if open == nil {
		open = func(filename string) (io.WriteCloser, error) {
			return os.Create(filepath.Join(t.Dir, filepath.Base(filename)))
		}
	}
	dst, err := open(res.Filename)
	if err != nil {
		return Delivery{}, fmt.Errorf("fulfillment: opening destination for %s: %w", res.Filename, err)
	}
	n, copyErr := io.Copy(dst, res.Content)
	closeErr := dst.Close()
	if copyErr != nil {
		return Delivery{}, fmt.Errorf("fulfillment: saving %s: %w", res.Filename, copyErr)
	}
	if closeErr != nil {
		return Delivery{}, fmt.Errorf("fulfillment: finalizing %s: %w", res.Filename, closeErr)
	}
	return Delivery{Filename: res.Filename, Bytes: n}, nil
}
