// Package attachment stores item images on an afero filesystem, one
// directory per project scope, and downsizes oversized images in place.
package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rpggio/dsheet/internal/domain/item"
	"github.com/rpggio/dsheet/internal/domain/project"
	"github.com/spf13/afero"
	xdraw "golang.org/x/image/draw"
)

// DefaultMaxPixels is the pixel count above which images are downscaled.
const DefaultMaxPixels = 100_000

const tempPrefix = ".resize-"

var (
	// ErrUnsupportedFormat indicates data that is not a JPEG, PNG or GIF image.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported image format", item.ErrValidationFailed)
	// ErrInvalidRef indicates a reference outside the store layout.
	ErrInvalidRef = fmt.Errorf("%w: invalid attachment reference", item.ErrValidationFailed)
)

var formatExt = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"gif":  ".gif",
}

var knownExt = map[string]string{
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".png":  "png",
	".gif":  "gif",
}

// Store persists images. References have the form "<scope>/<file>".
type Store struct {
	fs        afero.Fs
	maxPixels int
	logger    *slog.Logger
}

// New creates a store on fsys. maxPixels <= 0 selects DefaultMaxPixels.
func New(fsys afero.Fs, maxPixels int, logger *slog.Logger) *Store {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{fs: fsys, maxPixels: maxPixels, logger: logger}
}

// NewOS creates a store rooted at dir on the local disk.
func NewOS(dir string, maxPixels int, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root: %w", err)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), dir), maxPixels, logger), nil
}

// Store writes data under a fresh name in scope and returns its reference.
// The original extension is kept when it names a supported format.
func (s *Store) Store(_ context.Context, scope string, data []byte, originalName string) (string, error) {
	if !project.ValidKey(scope) {
		return "", fmt.Errorf("%w: scope %q", ErrInvalidRef, scope)
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, originalName)
	}
	ext, ok := formatExt[format]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if orig := strings.ToLower(path.Ext(originalName)); knownExt[orig] == format {
		ext = orig
	}

	if err := s.fs.MkdirAll(scope, 0o755); err != nil {
		return "", fmt.Errorf("creating scope directory: %w", err)
	}
	ref := scope + "/" + ulid.Make().String() + ext
	f, err := s.fs.OpenFile(ref, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", ref, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = s.fs.Remove(ref)
		return "", fmt.Errorf("writing %s: %w", ref, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(ref)
		return "", fmt.Errorf("closing %s: %w", ref, err)
	}

	storedBytes.Add(float64(len(data)))
	storedFiles.Inc()
	return ref, nil
}

// Normalize downscales the image at ref when its pixel count exceeds the
// threshold, replacing the file atomically. It reports whether it resized.
func (s *Store) Normalize(_ context.Context, ref string) (bool, error) {
	if err := checkRef(ref); err != nil {
		return false, err
	}
	data, err := afero.ReadFile(s.fs, ref)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", ref, err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ref)
	}
	w, h, resize := ScaledSize(cfg.Width, cfg.Height, s.maxPixels)
	if !resize {
		return false, nil
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ref)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	if err := s.replace(ref, dst, format); err != nil {
		return false, err
	}
	resizedFiles.Inc()
	s.logger.Debug("image resized", "ref", ref,
		"from_width", cfg.Width, "from_height", cfg.Height, "width", w, "height", h)
	return true, nil
}

func (s *Store) replace(ref string, img image.Image, format string) error {
	tmp, err := afero.TempFile(s.fs, path.Dir(ref), tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = s.fs.Remove(tmpName) }

	if err := encode(tmp, img, format); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("encoding %s: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, ref); err != nil {
		cleanup()
		return fmt.Errorf("replacing %s: %w", ref, err)
	}
	return nil
}

func encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case "png":
		return png.Encode(w, img)
	case "gif":
		return gif.Encode(w, img, nil)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// Release deletes the file at ref. A missing file is not an error.
func (s *Store) Release(_ context.Context, ref string) error {
	if err := checkRef(ref); err != nil {
		return err
	}
	if err := s.fs.Remove(ref); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", ref, err)
	}
	releasedFiles.Inc()
	return nil
}

// List returns the references stored in scope.
func (s *Store) List(_ context.Context, scope string) ([]string, error) {
	if !project.ValidKey(scope) {
		return nil, fmt.Errorf("%w: scope %q", ErrInvalidRef, scope)
	}
	entries, err := afero.ReadDir(s.fs, scope)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("listing %s: %w", scope, err)
	}
	refs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		refs = append(refs, scope+"/"+e.Name())
	}
	return refs, nil
}

// Handler serves stored files read-only, addressed by reference.
func (s *Store) Handler() http.Handler {
	return http.FileServer(afero.NewHttpFs(afero.NewReadOnlyFs(s.fs)).Dir("."))
}

func checkRef(ref string) error {
	scope, name, ok := strings.Cut(ref, "/")
	if !ok || !project.ValidKey(scope) || name == "" ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return nil
}

// ScaledSize returns the size an image of w x h is reduced to so that its
// pixel count is at most maxPixels, keeping the aspect ratio. Images at or
// under the threshold are returned unchanged with resize false.
func ScaledSize(w, h, maxPixels int) (int, int, bool) {
	if w <= 0 || h <= 0 || w*h <= maxPixels {
		return w, h, false
	}
	scale := math.Sqrt(float64(maxPixels) / float64(w*h))
	nw := max(1, int(math.Floor(float64(w)*scale)))
	nh := max(1, int(math.Floor(float64(h)*scale)))
	// Rounding error can leave the product one step over.
	for nw*nh > maxPixels && (nw > 1 || nh > 1) {
		if nw >= nh {
			nw--
		} else {
			nh--
		}
	}
	return nw, nh, true
}
