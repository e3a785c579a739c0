package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileStore 每个会话一个 JSON 文件
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore 创建文件存储，目录不存在时创建
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir == "" {
		return nil, errors.New("session directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger.With(zap.String("component", "session_file"))}, nil
}

// path 会话 ID 经过转义，不会逃出存储目录
func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, url.PathEscape(id)+".json")
}

func (f *FileStore) Load(ctx context.Context, id string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session %q: %w", id, err)
	}
	return decodeSnapshot(data)
}

func (f *FileStore) Save(ctx context.Context, id string, snapshot Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, ".session-*")
	if err != nil {
		return fmt.Errorf("write session %q: %w", id, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session %q: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write session %q: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), f.path(id)); err != nil {
		return fmt.Errorf("write session %q: %w", id, err)
	}
	f.logger.Debug("session saved", zap.String("session_id", id), zap.Int("bytes", len(data)))
	return nil
}

func (f *FileStore) Delete(_ context.Context, id string) error {
	err := os.Remove(f.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete session %q: %w", id, err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }
