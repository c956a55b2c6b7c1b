// Package repotest provides in-memory repositories for tests.
package repotest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maheshrc27/post-dispatch/internal/models"
	"github.com/maheshrc27/post-dispatch/internal/repository"
)

type PostStore struct {
	mu      sync.Mutex
	posts   map[string]*models.Post
	updates int

	// FailUpdate, when set, is returned by Update for the matching post id.
	FailUpdate map[string]error
	// FindDueErr, when set, is returned by FindDue.
	FindDueErr error
}

var _ repository.PostRepository = (*PostStore)(nil)

func NewPostStore(posts ...*models.Post) *PostStore {
	s := &PostStore{posts: map[string]*models.Post{}, FailUpdate: map[string]error{}}
	for _, p := range posts {
		s.Put(p)
	}
	return s
}

func (s *PostStore) Put(p *models.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.posts[p.ID] = &cp
}

// Get returns a copy of the stored post, or nil.
func (s *PostStore) Get(id string) *models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil
	}
	cp := *p
	cp.PublishedPlatforms = append([]string(nil), p.PublishedPlatforms...)
	return &cp
}

// Updates counts calls to Update that changed a post.
func (s *PostStore) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *PostStore) GetByID(ctx context.Context, id string) (*models.Post, error) {
	p := s.Get(id)
	if p == nil {
		return nil, repository.ErrPostNotFound
	}
	return p, nil
}

func (s *PostStore) filter(keep func(p *models.Post) bool) []*models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Post
	for _, p := range s.posts {
		if keep(p) {
			cp := *p
			cp.PublishedPlatforms = append([]string(nil), p.PublishedPlatforms...)
			out = append(out, &cp)
		}
	}
	return out
}

func (s *PostStore) FindDue(ctx context.Context, day time.Time, hour string) ([]*models.Post, error) {
	if s.FindDueErr != nil {
		return nil, s.FindDueErr
	}
	d := day.UTC().Format("2006-01-02")
	return s.filter(func(p *models.Post) bool {
		return p.DatePost.UTC().Format("2006-01-02") == d && p.TimePost == hour && p.Status == models.PostStatusScheduled
	}), nil
}

func (s *PostStore) FindRetryable(ctx context.Context, now time.Time) ([]*models.Post, error) {
	return s.filter(func(p *models.Post) bool {
		return p.Status == models.PostStatusScheduled && p.NextAttemptAt != nil && !p.NextAttemptAt.After(now)
	}), nil
}

func (s *PostStore) FindStale(ctx context.Context, claimedBefore time.Time) ([]*models.Post, error) {
	return s.filter(func(p *models.Post) bool {
		return p.Status == models.PostStatusPublishing && p.ClaimedAt != nil && p.ClaimedAt.Before(claimedBefore)
	}), nil
}

func (s *PostStore) Claim(ctx context.Context, id string, now, claimedBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return false, nil
	}
	stale := p.Status == models.PostStatusPublishing && p.ClaimedAt != nil && p.ClaimedAt.Before(claimedBefore)
	if p.Status != models.PostStatusScheduled && !stale {
		return false, nil
	}
	p.Status = models.PostStatusPublishing
	at := now
	p.ClaimedAt = &at
	return true, nil
}

func (s *PostStore) ClaimFrom(ctx context.Context, id, status string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok || p.Status != status {
		return false, nil
	}
	p.Status = models.PostStatusPublishing
	at := now
	p.ClaimedAt = &at
	return true, nil
}

func (s *PostStore) Update(ctx context.Context, id string, patch models.PostPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailUpdate[id]; err != nil {
		return err
	}
	p, ok := s.posts[id]
	if !ok {
		return repository.ErrPostNotFound
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.PublishedAt != nil {
		at := *patch.PublishedAt
		p.PublishedAt = &at
	}
	if patch.Attempts != nil {
		p.Attempts = *patch.Attempts
	}
	if patch.NextAttemptAt != nil {
		at := *patch.NextAttemptAt
		p.NextAttemptAt = &at
	} else if patch.ClearNextAt {
		p.NextAttemptAt = nil
	}
	if patch.LastError != nil {
		p.LastError = *patch.LastError
	}
	if patch.ClearClaim {
		p.ClaimedAt = nil
	}
	s.updates++
	return nil
}

func (s *PostStore) AddPublishedPlatform(ctx context.Context, id, platform string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return repository.ErrPostNotFound
	}
	if !p.HasPublished(platform) {
		p.PublishedPlatforms = append(p.PublishedPlatforms, strings.ToLower(platform))
	}
	return nil
}

func (s *PostStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, id)
	return nil
}

type ConnectionStore struct {
	mu    sync.Mutex
	conns map[string]*models.Connection
	Err   error
}

var _ repository.ConnectionRepository = (*ConnectionStore)(nil)

func NewConnectionStore(conns ...*models.Connection) *ConnectionStore {
	s := &ConnectionStore{conns: map[string]*models.Connection{}}
	for _, c := range conns {
		s.conns[c.AccountID] = c
	}
	return s
}

func (s *ConnectionStore) GetByAccountID(ctx context.Context, accountID string) (*models.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.conns[accountID], nil
}

type HistoryStore struct {
	mu      sync.Mutex
	entries []*models.PostingHistory
}

var _ repository.PostingHistoryRepository = (*HistoryStore)(nil)

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

func (s *HistoryStore) Create(ctx context.Context, ph *models.PostingHistory) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ph.ID == "" {
		ph.ID = uuid.NewString()
	}
	cp := *ph
	s.entries = append(s.entries, &cp)
	return ph.ID, nil
}

func (s *HistoryStore) ListByPostID(ctx context.Context, postID string) ([]*models.PostingHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PostingHistory
	for _, e := range s.entries {
		if e.PostID == postID {
			out = append(out, e)
		}
	}
	return out, nil
}
