// Package media hosts uploaded images on local disk and hands back the URL
// they are served from.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"chatup/internal/domain"
)

// URLPrefix is the route hosted files are served under.
const URLPrefix = "/api/uploads/"

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// LocalHost stores images in a directory.
type LocalHost struct {
	dir     string
	baseURL string
	maxSize int64
}

func NewLocalHost(dir, baseURL string, maxSize int64) *LocalHost {
	return &LocalHost{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxSize: maxSize}
}

func (h *LocalHost) Dir() string {
	return h.dir
}

// UploadDataURI stores a base64 data URI ("data:image/png;base64,...") and
// returns the public URL.
func (h *LocalHost) UploadDataURI(ctx context.Context, dataURI string) (string, error) {
	rest, ok := strings.CutPrefix(dataURI, "data:")
	if !ok {
		return "", fmt.Errorf("%w: image must be a data URI", domain.ErrValidation)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return "", fmt.Errorf("%w: image must be base64 encoded", domain.ErrValidation)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64 image", domain.ErrValidation)
	}
	return h.Save(ctx, bytes.NewReader(raw))
}

// Save sniffs the content type, rejects non-images and writes the file.
func (h *LocalHost) Save(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	limit := h.maxSize
	if limit <= 0 {
		limit = 4 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%w: image exceeds %d bytes", domain.ErrValidation, limit)
	}
	ext, ok := extensions[http.DetectContentType(data)]
	if !ok {
		return "", fmt.Errorf("%w: unsupported image type", domain.ErrValidation)
	}

	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(h.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write image: %v", domain.ErrStorage, err)
	}
	return h.baseURL + URLPrefix + name, nil
}

// Hosts reports whether url names a file this host stored, either under the
// public base URL or as a site-relative path.
func (h *LocalHost) Hosts(url string) bool {
	_, ok := h.fileName(url)
	return ok
}

// Remove deletes a hosted file. URLs this host does not own are ignored.
func (h *LocalHost) Remove(ctx context.Context, url string) error {
	name, ok := h.fileName(url)
	if !ok {
		return nil
	}
	if err := os.Remove(filepath.Join(h.dir, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove image: %v", domain.ErrStorage, err)
	}
	return nil
}

func (h *LocalHost) fileName(url string) (string, bool) {
	name, ok := strings.CutPrefix(url, URLPrefix)
	if !ok && h.baseURL != "" {
		name, ok = strings.CutPrefix(url, h.baseURL+URLPrefix)
	}
	if !ok || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", false
	}
	info, err := os.Stat(filepath.Join(h.dir, name))
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return name, true
}
