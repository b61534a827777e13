package logs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"claudeview/internal/reconcile"
	"claudeview/internal/types"
)

// DefaultPageSize is used when neither the query nor the config sets one.
const DefaultPageSize = 50

// Stats summarizes what the projects directory holds.
type Stats struct {
	Projects     int       `json:"projects"`
	Sessions     int       `json:"sessions"`
	Threads      int       `json:"threads"`
	Messages     int       `json:"messages"`
	LastActivity time.Time `json:"lastActivity,omitzero"`
}

// Project is one directory under the projects root.
type Project struct {
	Dir      string `json:"dir"`
	Path     string `json:"path"`
	Sessions int    `json:"sessions"`
}

type cachedSession struct {
	size    int64
	modTime time.Time
	session *Session
}

// Source serves snapshots from a projects directory. Parsed sessions are
// cached by path and re-read only when the file's size or mtime changes.
type Source struct {
	dir      string
	mode     GroupMode
	pageSize int
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedSession
}

// NewSource creates a Source over dir. pageSize <= 0 means DefaultPageSize.
func NewSource(dir string, mode GroupMode, pageSize int, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if mode == "" {
		mode = GroupExchange
	}
	return &Source{
		dir:      dir,
		mode:     mode,
		pageSize: pageSize,
		logger:   logger,
		cache:    make(map[string]cachedSession),
	}
}

// Dir returns the projects root.
func (s *Source) Dir() string {
	return s.dir
}

// =============================================================================
// DISCOVERY
// =============================================================================

// Sessions reads every session file under the root. A missing root yields no
// sessions; an unreadable file is logged and skipped.
func (s *Source) Sessions(ctx context.Context) ([]*Session, error) {
	projectDirs, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read projects dir: %w", err)
	}

	seen := make(map[string]struct{})
	var sessions []*Session
	for _, pd := range projectDirs {
		if !pd.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := filepath.Join(s.dir, pd.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			s.logger.Debug("skip project dir", zap.String("dir", dir), zap.Error(err))
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !IsSessionFile(entry.Name()) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			seen[path] = struct{}{}

			session, err := s.load(path, entry)
			if err != nil {
				s.logger.Warn("skip session", zap.String("path", path), zap.Error(err))
				continue
			}
			if len(session.Messages) == 0 {
				continue
			}
			sessions = append(sessions, session)
		}
	}

	s.evict(seen)
	return sessions, nil
}

func (s *Source) load(path string, entry fs.DirEntry) (*Session, error) {
	info, err := entry.Info()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	cached, ok := s.cache[path]
	s.mu.Unlock()
	if ok && cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		return cached.session, nil
	}

	session, err := ReadSession(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[path] = cachedSession{size: info.Size(), modTime: info.ModTime(), session: session}
	s.mu.Unlock()
	return session, nil
}

func (s *Source) evict(seen map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path := range s.cache {
		if _, ok := seen[path]; !ok {
			delete(s.cache, path)
		}
	}
}

// Projects lists project directories that contain at least one session.
func (s *Source) Projects(ctx context.Context) ([]Project, error) {
	sessions, err := s.Sessions(ctx)
	if err != nil {
		return nil, err
	}

	byDir := lo.GroupBy(sessions, func(sess *Session) string { return sess.ProjectDir })
	projects := make([]Project, 0, len(byDir))
	for dir, group := range byDir {
		projects = append(projects, Project{Dir: dir, Path: group[0].Project, Sessions: len(group)})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Path < projects[j].Path })
	return projects, nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// FetchThreads returns one page of threads matching query.
func (s *Source) FetchThreads(ctx context.Context, query types.Query) ([]types.Thread, error) {
	query = query.Normalize(s.pageSize)

	sessions, err := s.Sessions(ctx)
	if err != nil {
		return nil, err
	}

	var threads []types.Thread
	for _, sess := range sessions {
		if !matchProject(sess, query.Project) {
			continue
		}
		threads = append(threads, Group(sess.Messages, s.mode)...)
	}

	threads = lo.Filter(threads, func(t types.Thread, _ int) bool {
		return inRange(t, query.From, query.To) && matchKeyword(t, query.Keyword)
	})
	sortThreads(threads, query.Sort)
	return page(threads, query.Page, query.PageSize), nil
}

// Stats counts everything under the root, ignoring any query.
func (s *Source) Stats(ctx context.Context) (Stats, error) {
	sessions, err := s.Sessions(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Projects: len(lo.Uniq(lo.Map(sessions, func(sess *Session, _ int) string { return sess.ProjectDir }))),
		Sessions: len(sessions),
		Messages: lo.SumBy(sessions, func(sess *Session) int { return len(sess.Messages) }),
	}
	for _, sess := range sessions {
		threads := Group(sess.Messages, s.mode)
		stats.Threads += len(threads)
		for _, t := range threads {
			if ts := t.UpdatedAt(); ts.After(stats.LastActivity) {
				stats.LastActivity = ts
			}
		}
	}
	return stats, nil
}

func matchProject(sess *Session, project string) bool {
	if project == "" {
		return true
	}
	return sess.Project == project ||
		sess.ProjectDir == project ||
		filepath.Base(sess.Project) == project
}

func inRange(t types.Thread, from, to time.Time) bool {
	if from.IsZero() && to.IsZero() {
		return true
	}
	started := t.StartedAt()
	if started.IsZero() {
		return false
	}
	if !from.IsZero() && started.Before(from) {
		return false
	}
	if !to.IsZero() && started.After(to) {
		return false
	}
	return true
}

func matchKeyword(t types.Thread, keyword string) bool {
	if keyword == "" {
		return true
	}
	needle := strings.ToLower(keyword)
	return lo.ContainsBy([]types.Message(t), func(m types.Message) bool {
		return strings.Contains(strings.ToLower(m.Content), needle)
	})
}

// sortThreads orders by last activity. Ties fall back to the thread id so a
// page boundary does not move between two fetches of unchanged data.
func sortThreads(threads []types.Thread, order string) {
	sort.SliceStable(threads, func(i, j int) bool {
		ti, tj := threads[i].UpdatedAt(), threads[j].UpdatedAt()
		if !ti.Equal(tj) {
			if order == types.SortOldest {
				return ti.Before(tj)
			}
			return ti.After(tj)
		}
		idI, _ := reconcile.ThreadID(threads[i])
		idJ, _ := reconcile.ThreadID(threads[j])
		return idI < idJ
	})
}

func page(threads []types.Thread, pageNum, size int) []types.Thread {
	if size <= 0 || pageNum < 1 {
		return []types.Thread{}
	}
	// compare in pages so huge page numbers cannot overflow the offset
	pages := len(threads) / size
	if len(threads)%size != 0 {
		pages++
	}
	if pageNum > pages {
		return []types.Thread{}
	}
	start := (pageNum - 1) * size
	end := min(start+size, len(threads))
	return threads[start:end]
}
