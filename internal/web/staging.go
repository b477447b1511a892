package web

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Stager writes uploaded payloads to the staging directory under unique
// names so concurrent uploads of the same file name never collide. The
// processing unit deletes its staged file when it finishes.
type Stager struct {
	dir string
}

// NewStager creates a Stager and ensures its directory exists.
func NewStager(dir string) (*Stager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir %s: %w", dir, err)
	}
	return &Stager{dir: dir}, nil
}

// Save writes data to a uniquely named file and returns its path. Only the
// base of fileName is used so a crafted name cannot escape the directory.
func (s *Stager) Save(fileName string, data []byte) (string, error) {
	name := uuid.NewString() + "-" + filepath.Base(fileName)
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	return path, nil
}
