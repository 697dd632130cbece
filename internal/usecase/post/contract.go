package post

import (
	"context"

	"github.com/kailas-cloud/occdex"
	dompost "github.com/kailas-cloud/occdex/internal/domain/post"
	"github.com/kailas-cloud/occdex/pkg/query"
)

// Repository defines the storage contract for posts.
type Repository interface {
	Index(ctx context.Context, p *dompost.Post) (*dompost.Post, error)
	BulkIndex(ctx context.Context, posts []*dompost.Post) (*occdex.BulkResult, error)
	Search(ctx context.Context, q query.Query) ([]*dompost.Post, error)
}
