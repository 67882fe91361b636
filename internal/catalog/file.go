package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/egv/autotask/internal/contracts"
)

// FileSource reads and writes a catalog document on local disk. The format
// follows the file extension.
type FileSource struct {
	Path string
}

var _ contracts.CatalogStore = (*FileSource)(nil)

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) LoadCatalog(ctx context.Context) (contracts.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return contracts.Catalog{}, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return contracts.Catalog{}, fmt.Errorf("%w: %s", contracts.ErrCatalogNotFound, s.Path)
		}
		return contracts.Catalog{}, fmt.Errorf("read catalog %s: %w", s.Path, err)
	}
	catalog, err := Decode(data)
	if err != nil {
		return contracts.Catalog{}, fmt.Errorf("load catalog %s: %w", s.Path, err)
	}
	return catalog, nil
}

// SaveCatalog writes to a temporary file in the same directory and renames
// it over the target.
func (s *FileSource) SaveCatalog(ctx context.Context, catalog contracts.Catalog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := Validate(catalog); err != nil {
		return err
	}
	data, err := Encode(catalog, FormatForPath(s.Path))
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create catalog dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".catalog-*")
	if err != nil {
		return fmt.Errorf("create temp catalog: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close catalog: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("replace catalog %s: %w", s.Path, err)
	}
	return nil
}
