// File: internal/store/store.go
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/stitchcd/stitch/api/schemas"
)

// Well-known artifact names inside the store directory.
const (
	ReviewArtifact       = "review.json"
	ChangedFilesArtifact = "changed_files.txt"
	FixSetArtifact       = "fixes.json"
	RunArtifact          = "run.json"
	ReportArtifactStem   = "report"
)

// Store is a file-backed run artifact store. Everything a run produces
// lands under one directory so a CI system can collect it wholesale.
type Store struct {
	dir string
	log *zap.Logger
}

// New creates the artifact directory if needed and returns a store rooted
// at it.
func New(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}
	return &Store{
		dir: dir,
		log: logger.Named("store"),
	}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the location of a named artifact inside the store.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// SaveReview writes the review document to its well-known location.
func (s *Store) SaveReview(doc *schemas.ReviewDocument) error {
	return s.SaveJSON(s.Path(ReviewArtifact), doc)
}

// SaveChangedFiles writes the allow-list artifact, one path per line.
func (s *Store) SaveChangedFiles(files []string) error {
	var b strings.Builder
	for _, f := range files {
		b.WriteString(f)
		b.WriteByte('\n')
	}
	return s.writeAtomic(s.Path(ChangedFilesArtifact), []byte(b.String()))
}

// SaveFixSet writes the fix results to path. A nil slice still serializes
// as an empty JSON array; consumers must always get valid JSON.
func (s *Store) SaveFixSet(path string, fixes []schemas.FixResult) error {
	if fixes == nil {
		fixes = []schemas.FixResult{}
	}
	return s.SaveJSON(path, fixes)
}

// SaveRunRecord writes the run metadata artifact.
func (s *Store) SaveRunRecord(rec *schemas.RunRecord) error {
	return s.SaveJSON(s.Path(RunArtifact), rec)
}

// SaveJSON marshals v with indentation and writes it atomically.
func (s *Store) SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact %s: %w", filepath.Base(path), err)
	}
	return s.writeAtomic(path, append(data, '\n'))
}

// LoadReviewDocument reads and decodes a findings document.
func (s *Store) LoadReviewDocument(path string) (*schemas.ReviewDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read findings document: %w", err)
	}
	var doc schemas.ReviewDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse findings document %s: %w", path, err)
	}
	return &doc, nil
}

// LoadFixSet reads and decodes a fix set artifact.
func (s *Store) LoadFixSet(path string) ([]schemas.FixResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fix set: %w", err)
	}
	var fixes []schemas.FixResult
	if err := json.Unmarshal(data, &fixes); err != nil {
		return nil, fmt.Errorf("failed to parse fix set %s: %w", path, err)
	}
	return fixes, nil
}

// LoadRunRecord reads the run metadata artifact.
func (s *Store) LoadRunRecord() (*schemas.RunRecord, error) {
	data, err := os.ReadFile(s.Path(RunArtifact))
	if err != nil {
		return nil, fmt.Errorf("failed to read run record: %w", err)
	}
	var rec schemas.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse run record: %w", err)
	}
	return &rec, nil
}

// LoadAllowList reads the changed-files artifact: one path per line, exact
// bytes. No glob expansion, no path normalization; blank lines are skipped
// and a trailing CR is tolerated for files written on Windows runners.
func (s *Store) LoadAllowList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read allow-list: %w", err)
	}
	var files []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		files = append(files, line)
	}
	return files, nil
}

// writeAtomic writes through a temp file in the target directory and
// renames it into place so readers never observe a partial artifact.
func (s *Store) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}

	s.log.Debug("Artifact written", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}
