// Package file provides file-based persistence for editor drafts.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/composer/pkg/persistence"
)

var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Persistence implements the persistence.Persistence interface using the file system.
// Each draft is one JSON document under <root>/drafts.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.Replace(root, "file://", "", 1)}
}

func (fp *Persistence) dir() string {
	return filepath.Join(fp.root, "drafts")
}

func (fp *Persistence) path(sessionID string) (string, error) {
	if !safeID.MatchString(sessionID) {
		return "", &persistence.DraftError{Op: "path", SessionID: sessionID, Err: persistence.ErrInvalidDraft, Message: "session id is not a safe file name"}
	}

	return filepath.Join(fp.dir(), sessionID+".json"), nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Drafts returns every stored draft, most recently updated first.
func (fp *Persistence) Drafts(ctx context.Context) ([]*persistence.Draft, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	files, err := fs.Glob(os.DirFS(fp.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list draft files: %w", err)
	}

	drafts := make([]*persistence.Draft, 0, len(files))

	for _, file := range files {
		draft, err := fp.read(filepath.Join(fp.dir(), file))
		if err != nil {
			return nil, err
		}

		drafts = append(drafts, draft)
	}

	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].UpdatedAt.After(drafts[j].UpdatedAt)
	})

	return drafts, nil
}

// SaveDraft writes the draft, replacing any previous version atomically.
func (fp *Persistence) SaveDraft(_ context.Context, draft *persistence.Draft) error {
	if err := draft.Validate(); err != nil {
		return err
	}

	path, err := fp.path(draft.SessionID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(draft, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if err := os.MkdirAll(fp.dir(), 0o750); err != nil {
		return fmt.Errorf("failed to create drafts directory: %w", err)
	}

	tmp, err := os.CreateTemp(fp.dir(), draft.SessionID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create draft file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write draft file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close draft file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace draft file: %w", err)
	}

	return nil
}

// DraftByID returns persistence.ErrDraftNotFound when no draft exists.
func (fp *Persistence) DraftByID(_ context.Context, sessionID string) (*persistence.Draft, error) {
	path, err := fp.path(sessionID)
	if err != nil {
		return nil, err
	}

	fp.mu.RLock()
	defer fp.mu.RUnlock()

	return fp.read(path)
}

func (fp *Persistence) read(path string) (*persistence.Draft, error) {
	sessionID := strings.TrimSuffix(filepath.Base(path), ".json")

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewDraftError("DraftByID", sessionID, persistence.ErrDraftNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read draft %s: %w", sessionID, err)
	}

	var draft persistence.Draft
	if err := json.Unmarshal(data, &draft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft %s: %w", sessionID, err)
	}

	return &draft, nil
}

func (fp *Persistence) DeleteDraft(_ context.Context, sessionID string) error {
	path, err := fp.path(sessionID)
	if err != nil {
		return err
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return persistence.NewDraftError("DeleteDraft", sessionID, persistence.ErrDraftNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to delete draft %s: %w", sessionID, err)
	}

	return nil
}
