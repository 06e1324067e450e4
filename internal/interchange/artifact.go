package interchange

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"backoffice/internal/core"
)

// ErrArtifactMissing reports that no snapshot file exists for a version.
// Artifacts are written outside the transaction that persists the estimation
// rows, so a missing file is a recoverable condition: the database remains
// the source of truth.
var ErrArtifactMissing = errors.New("estimation artifact missing")

// ArtifactStore keeps one CSV snapshot per estimation version under a base
// directory, laid out as <base>/project_<id>/v<version>_upload.csv. Older
// deployments wrote *_export.csv; readers fall back between the two.
type ArtifactStore struct {
	baseDir string
}

func NewArtifactStore(baseDir string) *ArtifactStore {
	return &ArtifactStore{baseDir: baseDir}
}

func (s *ArtifactStore) projectDir(projectID int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("project_%d", projectID))
}

// variants returns the candidate file paths for a version, preferred first.
func (s *ArtifactStore) variants(projectID, version int) []string {
	dir := s.projectDir(projectID)
	return []string{
		filepath.Join(dir, fmt.Sprintf("v%d_upload.csv", version)),
		filepath.Join(dir, fmt.Sprintf("v%d_export.csv", version)),
	}
}

// Save writes the snapshot for one estimation version and returns its path.
func (s *ArtifactStore) Save(projectID, version int, items []core.RawItem) (string, error) {
	dir := s.projectDir(projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}

	path := s.variants(projectID, version)[0]
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create artifact %s: %w", path, err)
	}
	if err := WriteItems(f, items); err != nil {
		f.Close()
		return "", fmt.Errorf("write artifact %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close artifact %s: %w", path, err)
	}
	return path, nil
}

// Load reads the snapshot for a version, trying each naming variant in
// order. Returns ErrArtifactMissing (wrapped) when no variant exists.
func (s *ArtifactStore) Load(projectID, version int) ([]core.RawItem, error) {
	for _, path := range s.variants(projectID, version) {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("open artifact %s: %w", path, err)
		}
		items, readErr := ReadItems(f)
		f.Close()
		if readErr != nil {
			return nil, fmt.Errorf("decode artifact %s: %w", path, readErr)
		}
		return items, nil
	}
	return nil, fmt.Errorf("project %d version %d: %w", projectID, version, ErrArtifactMissing)
}
