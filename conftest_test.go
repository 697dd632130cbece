package occdex

import (
	"testing"

	"github.com/kailas-cloud/occdex/internal/db/memory"
)

type testPost struct {
	Version `json:"-"`
	ID      string `json:"id"`
	Title   string `json:"title"   occ:"title"`
	Content string `json:"content" occ:"content"`
	Author  string `json:"author"  occ:"author,tag"`
	Likes   int    `json:"likes"   occ:"likes,numeric"`
}

func (p *testPost) DocumentID() string { return p.ID }

func newTestRepo(t *testing.T, opts ...RepositoryOption) (*Repository[*testPost], *memory.Store) {
	t.Helper()
	reg := NewRegistry()
	if err := Register[testPost](reg, "post", "postdoc"); err != nil {
		t.Fatalf("register: %v", err)
	}
	store := memory.NewStore()
	repo, err := NewRepository[*testPost](store, reg, opts...)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	return repo, store
}
