package pagehist

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

	"quillboard/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Snapshot is the serialized state of a page at a point in time. Blocks are
// stored in position order so snapshots of the same content compare equal.
type Snapshot struct {
	Title  string          `json:"title"`
	Icon   string          `json:"icon,omitempty"`
	Blocks []BlockSnapshot `json:"blocks"`
}

type BlockSnapshot struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Position float64         `json:"position"`
	Content  json.RawMessage `json:"content,omitempty"`
}

// Service keeps one git repository per page and records snapshots as
// commits on main.
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

func (s *Service) EnsurePageRepo(pageID string, initial Snapshot, author string) error {
	lock := s.pageLock(pageID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(pageID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(initial, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal initial snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "page.json"), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write initial snapshot: %w", err)
	}
	if _, err := worktree.Add("page.json"); err != nil {
		return fmt.Errorf("git add initial snapshot: %w", err)
	}
	hash, err := worktree.Commit("Create page", &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return fmt.Errorf("commit initial snapshot: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// Commit records snap as a new snapshot. Identical content is skipped and
// the current head is returned instead.
func (s *Service) Commit(pageID string, snap Snapshot, author, message string) (store.SnapshotInfo, error) {
	lock := s.pageLock(pageID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(pageID))
	if err != nil {
		return store.SnapshotInfo{}, fmt.Errorf("open repo: %w", err)
	}

	head, headInfo, err := headSnapshot(repo)
	if err == nil && !HasChanges(head, snap) {
		return headInfo, nil
	}

	if err := checkoutMain(repo); err != nil {
		return store.SnapshotInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return store.SnapshotInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return store.SnapshotInfo{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, "page.json"), append(payload, '\n'), 0o644); err != nil {
		return store.SnapshotInfo{}, fmt.Errorf("write page.json: %w", err)
	}
	if _, err := worktree.Add("page.json"); err != nil {
		return store.SnapshotInfo{}, fmt.Errorf("git add snapshot: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return store.SnapshotInfo{}, fmt.Errorf("commit snapshot: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return store.SnapshotInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toSnapshotInfo(commitObj), nil
}

func (s *Service) Head(pageID string) (Snapshot, store.SnapshotInfo, error) {
	lock := s.pageLock(pageID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(pageID))
	if err != nil {
		return Snapshot{}, store.SnapshotInfo{}, fmt.Errorf("open repo: %w", err)
	}
	return headSnapshot(repo)
}

func (s *Service) GetSnapshot(pageID, hash string) (Snapshot, store.SnapshotInfo, error) {
	lock := s.pageLock(pageID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(pageID))
	if err != nil {
		return Snapshot{}, store.SnapshotInfo{}, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Snapshot{}, store.SnapshotInfo{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Snapshot{}, store.SnapshotInfo{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	snap, err := readSnapshotFromCommit(commitObj)
	if err != nil {
		return Snapshot{}, store.SnapshotInfo{}, err
	}
	return snap, toSnapshotInfo(commitObj), nil
}

func (s *Service) History(pageID string, limit int) ([]store.SnapshotInfo, error) {
	lock := s.pageLock(pageID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(pageID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]store.SnapshotInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toSnapshotInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func HasChanges(from, to Snapshot) bool {
	if from.Title != to.Title || from.Icon != to.Icon {
		return true
	}
	if len(from.Blocks) != len(to.Blocks) {
		return true
	}
	for i := range from.Blocks {
		a, b := from.Blocks[i], to.Blocks[i]
		if a.ID != b.ID || a.Type != b.Type || a.Position != b.Position {
			return true
		}
		if !bytes.Equal(normalizeContent(a.Content), normalizeContent(b.Content)) {
			return true
		}
	}
	return false
}

func (s *Service) repoPath(pageID string) string {
	return filepath.Join(s.baseDir, pageID)
}

func (s *Service) pageLock(pageID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[pageID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[pageID] = lock
	return lock
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}

func headSnapshot(repo *git.Repository) (Snapshot, store.SnapshotInfo, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return Snapshot{}, store.SnapshotInfo{}, fmt.Errorf("resolve main: %w", err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Snapshot{}, store.SnapshotInfo{}, fmt.Errorf("load commit object: %w", err)
	}
	snap, err := readSnapshotFromCommit(commitObj)
	if err != nil {
		return Snapshot{}, store.SnapshotInfo{}, err
	}
	return snap, toSnapshotInfo(commitObj), nil
}

func checkoutMain(repo *git.Repository) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	branchRef := plumbing.NewBranchReferenceName("main")
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return fmt.Errorf("checkout main: %w", err)
	}
	return nil
}

func readSnapshotFromCommit(commitObj *object.Commit) (Snapshot, error) {
	file, err := commitObj.File("page.json")
	if err != nil {
		return Snapshot{}, fmt.Errorf("load page.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Snapshot{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot bytes: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode commit snapshot: %w", err)
	}
	return snap, nil
}

func toSnapshotInfo(commitObj *object.Commit) store.SnapshotInfo {
	return store.SnapshotInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@quillboard.local", sanitizeEmail(author)),
		When:  time.Now(),
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

func normalizeContent(content json.RawMessage) []byte {
	if len(content) == 0 {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(content, &parsed); err != nil {
		return nil
	}
	normalized, err := json.Marshal(parsed)
	if err != nil {
		return nil
	}
	return normalized
}
