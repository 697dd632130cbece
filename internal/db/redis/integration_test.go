package redis_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/kailas-cloud/occdex"
	"github.com/kailas-cloud/occdex/pkg/query"
)

type itDoc struct {
	occdex.Version `json:"-"`

	ID     string `json:"id"`
	Body   string `json:"body"   occ:"body"`
	Author string `json:"author" occ:"author,tag"`
}

func (d *itDoc) DocumentID() string { return d.ID }

// newLiveRepo connects to the Redis 8 instance named by REDIS_ADDR and
// creates a throwaway index for the test.
func newLiveRepo(t *testing.T) (*occdex.Repository[*itDoc], context.Context) {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client, err := occdex.New(
		occdex.WithRedis(addr, os.Getenv("REDIS_PASSWORD")),
		occdex.WithReadinessTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	index := fmt.Sprintf("it-%d", time.Now().UnixNano())
	if err := occdex.Register[itDoc](client.Registry(), index, "itdoc"); err != nil {
		t.Fatal(err)
	}
	if err := client.EnsureIndexes(ctx); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	t.Cleanup(func() { _ = client.Store().DropIndex(context.Background(), index) })

	repo, err := occdex.Open[*itDoc](client)
	if err != nil {
		t.Fatal(err)
	}
	return repo, ctx
}

func TestLive_CreateAdvanceConflict(t *testing.T) {
	repo, ctx := newLiveRepo(t)

	doc := &itDoc{ID: "d1", Body: "first", Author: "Doe, Jane"}
	if _, err := repo.Index(ctx, doc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.SeqNo() != 0 || doc.PrimaryTerm() != 1 {
		t.Fatalf("after create got %s, want 0/1", doc.Token())
	}

	doc.Body = "second"
	if _, err := repo.Index(ctx, doc); err != nil {
		t.Fatalf("update: %v", err)
	}
	if doc.SeqNo() != 1 || doc.PrimaryTerm() != 1 {
		t.Fatalf("after update got %s, want 1/1", doc.Token())
	}

	stale := &itDoc{ID: "d1", Body: "stale", Author: "Doe, Jane"}
	stale.SetVersion(0, 1)
	_, err := repo.Index(ctx, stale)
	var conflict *occdex.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	dup := &itDoc{ID: "d1", Body: "dup"}
	if _, err := repo.Index(ctx, dup); !occdex.IsConflict(err) {
		t.Fatalf("create over existing id: expected conflict, got %v", err)
	}

	got, err := repo.Search(ctx, query.IDs("d1"))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Body != "second" || got[0].SeqNo() != 1 {
		t.Fatalf("stored document changed: %+v", got)
	}
}

func TestLive_TagTermIsExact(t *testing.T) {
	repo, ctx := newLiveRepo(t)

	for _, d := range []*itDoc{
		{ID: "a", Body: "x", Author: "Doe, Jane"},
		{ID: "b", Body: "y", Author: "Alice"},
	} {
		if _, err := repo.Index(ctx, d); err != nil {
			t.Fatalf("create %s: %v", d.ID, err)
		}
	}

	tests := []struct {
		value string
		want  int
	}{
		{"Doe, Jane", 1},
		{"Doe", 0},
		{"Alice", 1},
		{"alice", 0},
	}
	for _, tc := range tests {
		got, err := repo.Search(ctx, query.Term("author", tc.value))
		if err != nil {
			t.Fatalf("search %q: %v", tc.value, err)
		}
		if len(got) != tc.want {
			t.Errorf("Term(author, %q) matched %d, want %d", tc.value, len(got), tc.want)
		}
	}
}
