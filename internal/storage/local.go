package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidKey = errors.New("invalid storage key")

// PhotoStore keeps holder photos on local disk under <root>/<openid>/
type PhotoStore struct {
	root   string
	logger *zap.Logger
}

func NewPhotoStore(root string, logger *zap.Logger) *PhotoStore {
	return &PhotoStore{root: root, logger: logger}
}

// DeletePhotos removes every stored photo of a holder. A holder without a
// photo directory is not an error.
func (s *PhotoStore) DeletePhotos(ctx context.Context, openid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.dir(openid)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove photos: %w", err)
	}
	s.logger.Info("Removed holder photos", zap.String("dir", dir))
	return nil
}

func (s *PhotoStore) dir(openid string) (string, error) {
	if !safeSegment(openid) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, openid)
	}
	return filepath.Join(s.root, openid), nil
}

// PostStore writes generated posts to <root>/<serial>/<uuid>.md and returns
// the public URL under prefix.
type PostStore struct {
	root   string
	prefix string
	logger *zap.Logger
}

func NewPostStore(root, prefix string, logger *zap.Logger) *PostStore {
	return &PostStore{root: root, prefix: strings.TrimRight(prefix, "/"), logger: logger}
}

// Save stores content for a profile serial and returns its public URL
func (s *PostStore) Save(ctx context.Context, serial string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !safeSegment(serial) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, serial)
	}

	dir := filepath.Join(s.root, serial)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create post directory: %w", err)
	}

	name := uuid.NewString() + ".md"
	if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write post: %w", err)
	}

	url := path.Join(s.prefix, serial, name)
	s.logger.Info("Post saved", zap.String("serial_number", serial), zap.String("url", url))
	return url, nil
}

// safeSegment rejects values that could escape the storage root
func safeSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && !strings.Contains(s, "..")
}
