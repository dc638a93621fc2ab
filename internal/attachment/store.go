package attachment

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"palaver/internal/domain"
)

// MaxUploadBytes caps a single stored image.
const MaxUploadBytes = 10 << 20

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// Ref points at one stored image: the public URL path handed to clients and
// the on-disk path used to re-resolve the bytes.
type Ref struct {
	URL  string `json:"url"`
	Path string `json:"-"`
}

// Store persists uploaded and generated images. Files are write-once: every
// name embeds a timestamp and a random token, so no locking is needed.
type Store struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

// New creates an attachment store rooted at dir, serving files under baseURL
// (e.g. "/uploads").
func New(dir, baseURL string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	return &Store{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}, nil
}

// Store writes the image bytes under a fresh unique name derived from the
// original filename's extension.
func (s *Store) Store(data []byte, originalFilename string) (Ref, error) {
	if len(data) == 0 {
		return Ref{}, &domain.ValidationError{Message: "image data is empty"}
	}
	if len(data) > MaxUploadBytes {
		return Ref{}, &domain.ValidationError{Message: "image exceeds maximum upload size"}
	}

	ext := strings.ToLower(filepath.Ext(originalFilename))
	if !allowedExtensions[ext] {
		return Ref{}, &domain.ValidationError{Message: fmt.Sprintf("unsupported image type %q", ext)}
	}

	name := fmt.Sprintf("upload_%d_%s%s", time.Now().Unix(), uuid.NewString()[:8], ext)
	diskPath := filepath.Join(s.dir, name)

	f, err := os.OpenFile(diskPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %v", domain.ErrStorageIO, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(diskPath)
		return Ref{}, fmt.Errorf("%w: %v", domain.ErrStorageIO, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(diskPath)
		return Ref{}, fmt.Errorf("%w: %v", domain.ErrStorageIO, err)
	}

	s.logger.Debug("attachment stored", "name", name, "bytes", len(data))

	return Ref{
		URL:  s.baseURL + "/" + name,
		Path: diskPath,
	}, nil
}

// Resolve reads back the bytes for a stored attachment URL. Only the
// basename is honored, so a crafted reference cannot escape the upload
// directory.
func (s *Store) Resolve(url string) ([]byte, error) {
	name := path.Base(url)
	if name == "." || name == "/" || name == ".." {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("attachment %q not found", url)}
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("attachment %s: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read attachment %s: %w", name, err)
	}

	return data, nil
}

// Dir returns the on-disk root, for serving files over HTTP.
func (s *Store) Dir() string {
	return s.dir
}
