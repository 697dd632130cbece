package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	gochi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/occdex"
	"github.com/kailas-cloud/occdex/internal/domain"
	dompost "github.com/kailas-cloud/occdex/internal/domain/post"
	healthuc "github.com/kailas-cloud/occdex/internal/usecase/health"
	postuc "github.com/kailas-cloud/occdex/internal/usecase/post"
)

// maxBodyBytes bounds request bodies, bulk imports included.
const maxBodyBytes = 8 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the posts API.
type Server struct {
	posts         *postuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(posts *postuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		posts:  posts,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		versionConflictHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrTooManyItems, http.StatusRequestEntityTooLarge, CodeTooManyItems),
		sentinelHandler(occdex.ErrIndexNotFound, http.StatusServiceUnavailable, CodeIndexNotFound),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r gochi.Router) {
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/posts", func(r gochi.Router) {
		r.Get("/", s.SearchPosts)
		r.Post("/", s.CreatePost)
		r.Post("/_bulk", s.BulkImport)
		r.Get("/{id}", s.GetPost)
		r.Put("/{id}", s.UpdatePost)
	})
}

// SearchPosts handles GET /posts?author=&q=.
func (s *Server) SearchPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.posts.Search(r.Context(), postuc.Filter{
		Author: r.URL.Query().Get("author"),
		Text:   r.URL.Query().Get("q"),
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]postResponse, len(posts))
	for i, p := range posts {
		items[i] = postToResponse(p)
	}
	writeJSON(w, http.StatusOK, postListResponse{Items: items, Count: len(items)})
}

// CreatePost handles POST /posts.
func (s *Server) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := s.posts.Create(r.Context(), req.toDraft())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/posts/%s", p.ID))
	setVersionHeader(w, p)
	writeJSON(w, http.StatusCreated, postToResponse(p))
}

// GetPost handles GET /posts/{id}.
func (s *Server) GetPost(w http.ResponseWriter, r *http.Request) {
	p, err := s.posts.Get(r.Context(), gochi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setVersionHeader(w, p)
	writeJSON(w, http.StatusOK, postToResponse(p))
}

// UpdatePost handles PUT /posts/{id}. The body must carry the version token
// returned by the last read or write of the post.
func (s *Server) UpdatePost(w http.ResponseWriter, r *http.Request) {
	var req updatePostRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SeqNo == nil || req.PrimaryTerm == nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "seq_no and primary_term are required")
		return
	}

	p, err := s.posts.Update(r.Context(), gochi.URLParam(r, "id"), *req.SeqNo, *req.PrimaryTerm, req.Title, req.Content)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setVersionHeader(w, p)
	writeJSON(w, http.StatusOK, postToResponse(p))
}

// BulkImport handles POST /posts/_bulk. Per-item failures do not fail the request.
func (s *Server) BulkImport(w http.ResponseWriter, r *http.Request) {
	var req bulkImportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	drafts := make([]postuc.Draft, len(req.Items))
	for i := range req.Items {
		drafts[i] = req.Items[i].toDraft()
	}

	res, err := s.posts.Import(r.Context(), drafts)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, bulkResultToResponse(res))
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// setVersionHeader exposes the version token as an ETag of the form "seq_no/primary_term".
func setVersionHeader(w http.ResponseWriter, p *dompost.Post) {
	w.Header().Set("ETag", strconv.Quote(p.Token()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
