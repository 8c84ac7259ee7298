package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Area is a top-level directory of the store that is also served statically.
type Area string

const (
	AreaGenerated Area = "generated"
	AreaUploads   Area = "uploads"
)

// Stored describes a file written into the store.
type Stored struct {
	Key  string
	Path string
	URL  string
	MIME string
}

// FileStore persists media onto the local filesystem under generated/ and
// uploads/. Writes land in a temp file first and are renamed into place, so
// a reader never observes a partial artifact.
type FileStore struct {
	basePath string
	baseURL  string
}

// NewFileStore initializes a FileStore rooted at basePath. baseURL prefixes
// the servable URL of every key.
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	for _, area := range []Area{AreaGenerated, AreaUploads} {
		if err := os.MkdirAll(filepath.Join(basePath, string(area)), 0o755); err != nil {
			return nil, fmt.Errorf("storage: ensure %s: %w", area, err)
		}
	}
	return &FileStore{basePath: basePath, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the directory backing area.
func (s *FileStore) Dir(area Area) string {
	return filepath.Join(s.basePath, string(area))
}

// Save writes data under area with a fresh uuid name. The extension follows
// the detected content type unless mime is given.
func (s *FileStore) Save(ctx context.Context, area Area, data []byte, mime string) (Stored, error) {
	if len(data) == 0 {
		return Stored{}, errors.New("storage: empty payload")
	}
	detected := mimetype.Detect(data)
	if strings.TrimSpace(mime) == "" || mime == "application/octet-stream" {
		mime = detected.String()
	}
	ext := extensionForMIME(mime)
	if ext == "" {
		ext = detected.Extension()
	}
	if ext == "" {
		ext = ".bin"
	}
	key := string(area) + "/" + uuid.NewString() + ext
	cleanKey, err := s.Write(ctx, key, data)
	if err != nil {
		return Stored{}, err
	}
	return Stored{Key: cleanKey, Path: s.Path(cleanKey), URL: s.URL(cleanKey), MIME: baseMIME(mime)}, nil
}

// Write persists the provided bytes at the given relative key and returns the
// canonicalized storage key. Keys are cleaned to prevent directory traversal.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: close file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: chmod file: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: commit file: %w", err)
	}
	return cleanKey, nil
}

// Remove deletes a stored key. Missing files are not an error.
func (s *FileStore) Remove(key string) error {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(s.Path(cleanKey)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove: %w", err)
	}
	return nil
}

// Locate looks for a file named base in area. Only the final path element of
// base is considered.
func (s *FileStore) Locate(area Area, base string) (string, bool) {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(base), "\\", "/"))
	if name == "." || name == "/" || name == "" || strings.HasPrefix(name, ".") {
		return "", false
	}
	path := filepath.Join(s.Dir(area), name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// Path maps a key to its location on disk.
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// URL maps a key to its servable URL.
func (s *FileStore) URL(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

func baseMIME(mime string) string {
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

func extensionForMIME(mime string) string {
	switch baseMIME(mime) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	default:
		return ""
	}
}
