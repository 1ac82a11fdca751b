// Package history records every accepted planner document as a commit in a
// per-planner git repository.
package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"planner/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	documentFile = "planner.json"
	branchName   = "main"
)

var ErrRevisionNotFound = errors.New("revision not found")

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Record commits state as the new head of plannerID's history. Writing the
// same document twice does not add a commit; the current head is returned.
func (s *Service) Record(plannerID string, state []byte, author, message string) (store.CommitInfo, error) {
	lock := s.plannerLock(plannerID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(plannerID)
	if err != nil {
		return store.CommitInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	if !json.Valid(state) {
		return store.CommitInfo{}, fmt.Errorf("format document: invalid JSON")
	}
	contents := append(bytes.Clone(bytes.TrimSpace(state)), '\n')
	if err := os.WriteFile(filepath.Join(s.repoPath(plannerID), documentFile), contents, 0o644); err != nil {
		return store.CommitInfo{}, fmt.Errorf("write %s: %w", documentFile, err)
	}
	if _, err := worktree.Add(documentFile); err != nil {
		return store.CommitInfo{}, fmt.Errorf("git add document: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@planner.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		head, headErr := repo.Head()
		if headErr != nil {
			return store.CommitInfo{}, fmt.Errorf("resolve head: %w", headErr)
		}
		hash = head.Hash()
	} else if err != nil {
		return store.CommitInfo{}, fmt.Errorf("commit document: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// List returns up to limit commits, newest first. A planner without history
// yields an empty list.
func (s *Service) List(plannerID string, limit int) ([]store.CommitInfo, error) {
	lock := s.plannerLock(plannerID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(plannerID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []store.CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branchName), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []store.CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branchName, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Document returns the planner document stored at hash, as it was
// recorded. Unknown planners and hashes report ErrRevisionNotFound.
func (s *Service) Document(plannerID, hash string) ([]byte, error) {
	lock := s.plannerLock(plannerID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(plannerID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrRevisionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRevisionNotFound, hash)
	}
	commitObj, err := repo.CommitObject(*resolved)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRevisionNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := commitObj.File(documentFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", documentFile, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return bytes.TrimSuffix([]byte(contents), []byte("\n")), nil
}

func (s *Service) openOrInit(plannerID string) (*git.Repository, error) {
	path := s.repoPath(plannerID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branchName))); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", branchName, err)
	}
	return repo, nil
}

func (s *Service) repoPath(plannerID string) string {
	return filepath.Join(s.baseDir, plannerID)
}

func (s *Service) plannerLock(plannerID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[plannerID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[plannerID] = lock
	return lock
}

func toCommitInfo(commitObj *object.Commit) store.CommitInfo {
	return store.CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
