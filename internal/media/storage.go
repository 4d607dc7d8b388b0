// Package media stores uploaded user images on the local filesystem and
// serves them under /uploads/.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const maxUploadBytes = 5 << 20

var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image exceeds the size limit")
	errBadImageName    = errors.New("invalid image name")
)

// Storage writes uploads into a single flat directory with random names, so
// client-supplied filenames never touch the filesystem.
type Storage struct {
	dir string
}

func NewStorage(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}

	return &Storage{dir: dir}, nil
}

// Dir returns the directory files are written to, for serving.
func (s *Storage) Dir() string { return s.dir }

// Save sniffs the content type, enforces the size limit and writes the file
// under a fresh random name, which it returns.
func (s *Storage) Save(file multipart.File) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	ext, ok := allowedContentTypes[http.DetectContentType(head)]
	if !ok {
		return "", ErrUnsupportedType
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate image name: %w", err)
	}
	name := id.String() + ext

	out, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, io.MultiReader(bytes.NewReader(head), io.LimitReader(file, maxUploadBytes+1)))
	if err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("write image file: %w", err)
	}
	if written > maxUploadBytes {
		_ = os.Remove(out.Name())
		return "", ErrTooLarge
	}

	return name, nil
}

// Delete removes a stored file by its bare name. Names carrying path
// separators are rejected outright.
func (s *Storage) Delete(name string) error {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return errBadImageName
	}

	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove image file: %w", err)
	}

	return nil
}
