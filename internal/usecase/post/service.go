package post

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/occdex"
	"github.com/kailas-cloud/occdex/internal/domain"
	dompost "github.com/kailas-cloud/occdex/internal/domain/post"
	"github.com/kailas-cloud/occdex/pkg/query"
)

// Draft is the caller-supplied content of a new post. An empty ID is generated.
type Draft struct {
	ID      string
	Title   string
	Content string
	Author  string
}

// Filter selects posts. Empty fields match everything.
type Filter struct {
	Author string
	Text   string
}

// Service handles post writes with optimistic concurrency control.
//
// It never retries: a conflict is returned to the caller, who holds the
// knowledge needed to re-read and re-apply the change.
type Service struct {
	repo        Repository
	exec        *occdex.Executor
	mapper      occdex.ResultMapper[*dompost.Post]
	newID       func() string
	now         func() time.Time
	maxBulkSize int
}

// New creates a post service. exec is used for single-document reads.
func New(repo Repository, exec *occdex.Executor) *Service {
	return &Service{
		repo:        repo,
		exec:        exec,
		mapper:      occdex.NewVersionAwareMapper(occdex.NewResultMapper[*dompost.Post](nil)),
		newID:       uuid.NewString,
		now:         time.Now,
		maxBulkSize: 500,
	}
}

// WithClock overrides the timestamp source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithIDGenerator overrides the id source used for drafts without an id.
func (s *Service) WithIDGenerator(f func() string) *Service {
	s.newID = f
	return s
}

// WithMaxBulkSize limits the number of drafts per Import call.
func (s *Service) WithMaxBulkSize(n int) *Service {
	if n > 0 {
		s.maxBulkSize = n
	}
	return s
}

// Create stores a new post. It fails with a version conflict if the id is taken.
func (s *Service) Create(ctx context.Context, d Draft) (*dompost.Post, error) {
	p, err := s.fromDraft(d)
	if err != nil {
		return nil, err
	}
	saved, err := s.repo.Index(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", translate(err))
	}
	return saved, nil
}

// Get re-reads one post with its current version token.
func (s *Service) Get(ctx context.Context, id string) (*dompost.Post, error) {
	if id == "" {
		return nil, domain.Invalidf("id is required")
	}
	p, err := occdex.Execute(ctx, s.exec, []string{dompost.Index},
		func() query.Query { return query.IDs(id) },
		occdex.FirstHit(s.mapper),
	)
	if errors.Is(err, occdex.ErrNotFound) {
		return nil, fmt.Errorf("post %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

// Update applies an edit conditioned on the version token the caller last saw.
// A token that no longer matches the stored post yields a version conflict.
func (s *Service) Update(ctx context.Context, id string, seqNo, primaryTerm int64, title, content string) (*dompost.Post, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	current.SetVersion(seqNo, primaryTerm)
	if !occdex.IsPersisted(current) {
		return nil, domain.Invalidf("a version token is required to update %s", id)
	}
	if err := current.Edit(title, content, s.now()); err != nil {
		return nil, err
	}

	saved, err := s.repo.Index(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("update post: %w", translate(err))
	}
	return saved, nil
}

// Search returns at most one page of posts matching f.
func (s *Service) Search(ctx context.Context, f Filter) ([]*dompost.Post, error) {
	posts, err := s.repo.Search(ctx, buildQuery(f))
	if err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}
	return posts, nil
}

// Import creates many posts in one batch. Per-post failures, conflicts
// included, are reported in the result.
func (s *Service) Import(ctx context.Context, drafts []Draft) (*occdex.BulkResult, error) {
	if len(drafts) == 0 {
		return nil, domain.Invalidf("at least one post is required")
	}
	if len(drafts) > s.maxBulkSize {
		return nil, fmt.Errorf("%w: %d posts, max %d", domain.ErrTooManyItems, len(drafts), s.maxBulkSize)
	}

	posts := make([]*dompost.Post, len(drafts))
	for i, d := range drafts {
		p, err := s.fromDraft(d)
		if err != nil {
			return nil, fmt.Errorf("post %d: %w", i, err)
		}
		posts[i] = p
	}

	res, err := s.repo.BulkIndex(ctx, posts)
	if err != nil {
		return nil, fmt.Errorf("import posts: %w", err)
	}
	return res, nil
}

func (s *Service) fromDraft(d Draft) (*dompost.Post, error) {
	id := d.ID
	if id == "" {
		id = s.newID()
	}
	return dompost.New(id, d.Title, d.Content, d.Author, s.now())
}

func buildQuery(f Filter) query.Query {
	var clauses []query.Query
	if f.Author != "" {
		clauses = append(clauses, query.Term("author", f.Author))
	}
	if f.Text != "" {
		clauses = append(clauses, query.Bool().Should(
			query.Match("title", f.Text),
			query.Match("content", f.Text),
		))
	}
	switch len(clauses) {
	case 0:
		return query.MatchAll()
	case 1:
		return clauses[0]
	default:
		return query.Bool().Must(clauses...)
	}
}

// translate turns a repository conflict into the domain conflict error.
func translate(err error) error {
	var ce *occdex.ConflictError
	if errors.As(err, &ce) {
		return domain.NewVersionConflict(ce.ID, ce.SeqNo, ce.PrimaryTerm)
	}
	return err
}
