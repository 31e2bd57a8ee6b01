// Package planstore persists plan documents as flat files under a configured
// root directory. Documents are opaque blobs addressed by reference; the
// tracker and workflow layers only ever pass references around.
package planstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sukhchana/jira-tool/errors"
)

const refTimestampFormat = "20060102_150405"

// Store reads and writes plan documents under a root directory.
type Store struct {
	root   string
	logger *zap.SugaredLogger
}

// NewStore creates a plan store rooted at dir, creating it if needed.
func NewStore(dir string, logger *zap.SugaredLogger) (*Store, error) {
	if dir == "" {
		return nil, errors.NewValidation("plan store directory cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create plan store directory")
	}

	return &Store{root: dir, logger: logger}, nil
}

// NewExecutionPlanRef generates a reference for an execution plan document.
func NewExecutionPlanRef(epicKey string) string {
	return fmt.Sprintf("EXECUTION_%s_%s.md", epicKey, time.Now().UTC().Format(refTimestampFormat))
}

// NewProposedPlanRef generates a reference for a proposed plan document.
func NewProposedPlanRef(epicKey string) string {
	return fmt.Sprintf("PROPOSED_%s_%s.yaml", epicKey, time.Now().UTC().Format(refTimestampFormat))
}

// Write stores a document under ref. The write is atomic: a concurrent Read
// sees either the previous content or the full new content, never a partial
// file.
func (s *Store) Write(ctx context.Context, ref string, blob []byte) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, "."+ref+".tmp*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp plan file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to write plan file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to close plan file")
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to finalize plan file")
	}

	s.logger.Debugw("Plan document written", "ref", ref, "bytes", len(blob))
	return nil
}

// Read returns the document stored under ref, or ErrNotFound.
func (s *Store) Read(ctx context.Context, ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFound("plan document not found: %s", ref)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read plan file")
	}

	return blob, nil
}

// Exists reports whether a document is stored under ref.
func (s *Store) Exists(ref string) (bool, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to stat plan file")
	}
	return true, nil
}

// resolve maps a reference to a path inside the root. References are bare
// file names; anything containing a path separator or traversal is rejected
// before touching the filesystem.
func (s *Store) resolve(ref string) (string, error) {
	if ref == "" {
		return "", errors.NewValidation("plan reference cannot be empty")
	}
	if strings.ContainsAny(ref, `/\`) || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return "", errors.NewValidation("invalid plan reference: %s", ref)
	}
	return filepath.Join(s.root, ref), nil
}
