// Package media stores recipe photos on disk. Uploads are re-encoded to
// JPEG, capped to a maximum width, and a small thumbnail is generated
// alongside the full image.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	// MaxUploadBytes is the largest accepted upload.
	MaxUploadBytes = 5 << 20

	maxImageWidth  = 1280
	thumbnailWidth = 240
	jpegQuality    = 82
)

// ErrInvalidImage is returned when the uploaded bytes do not decode as an
// image.
var ErrInvalidImage = errors.New("media: invalid image")

// Photo describes a stored image and its thumbnail.
type Photo struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Store writes photos under a base directory and serves them from a base
// URL path.
type Store struct {
	dir     string
	baseURL string
}

// NewStore creates a photo store rooted at dir. Files are addressed as
// baseURL/<name>. The directory is created if missing.
func NewStore(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir, baseURL: baseURL}, nil
}

// Dir returns the directory photos are stored in.
func (s *Store) Dir() string {
	return s.dir
}

// Save decodes r, normalizes the image, and writes the full image plus a
// thumbnail to disk. The returned Photo carries the public URLs.
func (s *Store) Save(r io.Reader) (Photo, error) {
	src, err := imaging.Decode(io.LimitReader(r, MaxUploadBytes), imaging.AutoOrientation(true))
	if err != nil {
		return Photo{}, ErrInvalidImage
	}

	if src.Bounds().Dx() > maxImageWidth {
		src = imaging.Resize(src, maxImageWidth, 0, imaging.Lanczos)
	}
	thumb := imaging.Resize(src, thumbnailWidth, 0, imaging.Lanczos)

	name := uuid.NewString() + ".jpg"
	thumbName := "thumb-" + name

	if err := imaging.Save(src, filepath.Join(s.dir, name), imaging.JPEGQuality(jpegQuality)); err != nil {
		return Photo{}, fmt.Errorf("media: save image: %w", err)
	}
	if err := imaging.Save(thumb, filepath.Join(s.dir, thumbName), imaging.JPEGQuality(jpegQuality)); err != nil {
		os.Remove(filepath.Join(s.dir, name))
		return Photo{}, fmt.Errorf("media: save thumbnail: %w", err)
	}

	return Photo{
		URL:          s.baseURL + "/" + name,
		ThumbnailURL: s.baseURL + "/" + thumbName,
	}, nil
}
