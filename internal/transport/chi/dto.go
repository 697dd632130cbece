package chi

import (
	"time"

	"github.com/kailas-cloud/occdex"
	dompost "github.com/kailas-cloud/occdex/internal/domain/post"
	postuc "github.com/kailas-cloud/occdex/internal/usecase/post"
)

type createPostRequest struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Author  string `json:"author"`
}

func (r createPostRequest) toDraft() postuc.Draft {
	return postuc.Draft{ID: r.ID, Title: r.Title, Content: r.Content, Author: r.Author}
}

type updatePostRequest struct {
	Title       string `json:"title,omitempty"`
	Content     string `json:"content,omitempty"`
	SeqNo       *int64 `json:"seq_no"`
	PrimaryTerm *int64 `json:"primary_term"`
}

type bulkImportRequest struct {
	Items []createPostRequest `json:"items"`
}

type postResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Author       string    `json:"author"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
	SeqNo        int64     `json:"seq_no"`
	PrimaryTerm  int64     `json:"primary_term"`
}

type postListResponse struct {
	Items []postResponse `json:"items"`
	Count int            `json:"count"`
}

type bulkItemResponse struct {
	ID          string         `json:"id"`
	Status      int            `json:"status"`
	SeqNo       *int64         `json:"seq_no,omitempty"`
	PrimaryTerm *int64         `json:"primary_term,omitempty"`
	Error       *ErrorResponse `json:"error,omitempty"`
}

type bulkImportResponse struct {
	Items     []bulkItemResponse `json:"items"`
	Errors    bool               `json:"errors"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func postToResponse(p *dompost.Post) postResponse {
	return postResponse{
		ID:           p.ID,
		Title:        p.Title,
		Content:      p.Content,
		Author:       p.Author,
		CreatedAt:    p.CreatedAt,
		LastModified: p.LastModified,
		SeqNo:        p.SeqNo(),
		PrimaryTerm:  p.PrimaryTerm(),
	}
}

func bulkResultToResponse(res *occdex.BulkResult) bulkImportResponse {
	resp := bulkImportResponse{Items: make([]bulkItemResponse, len(res.Items))}
	for i := range res.Items {
		it := &res.Items[i]
		item := bulkItemResponse{ID: it.ID, Status: it.Status}
		if it.Failed() {
			code := CodeBadRequest
			if it.IsConflict() {
				code = CodeVersionConflict
			}
			item.Error = &ErrorResponse{Code: code, Message: it.Failure.Reason}
			resp.Failed++
		} else {
			seqNo, term := it.SeqNo, it.PrimaryTerm
			item.SeqNo, item.PrimaryTerm = &seqNo, &term
			resp.Succeeded++
		}
		resp.Items[i] = item
	}
	resp.Errors = resp.Failed > 0
	return resp
}
