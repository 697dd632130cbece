// Package post holds the blog post entity stored through the occdex repository.
package post

import (
	"strings"
	"time"

	"github.com/kailas-cloud/occdex"
	"github.com/kailas-cloud/occdex/internal/domain"
)

const (
	// Index is the index posts are stored in.
	Index = "post"
	// Kind is the document kind recorded in the index mapping.
	Kind = "postdoc"

	maxTitleLength = 512
)

// Post is a blog post. Its version token is not part of the stored body.
type Post struct {
	occdex.Version `json:"-"`

	ID           string    `json:"id"`
	Title        string    `json:"title"        occ:"title"`
	Content      string    `json:"content"      occ:"content"`
	Author       string    `json:"author"       occ:"author,tag"`
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`
}

// DocumentID returns the post id.
func (p *Post) DocumentID() string { return p.ID }

// Register binds Post to its index in reg.
func Register(reg *occdex.Registry) error {
	return occdex.Register[Post](reg, Index, Kind)
}

// New creates an unsaved post stamped with now.
func New(id, title, content, author string, now time.Time) (*Post, error) {
	p := &Post{
		ID:           id,
		Title:        strings.TrimSpace(title),
		Content:      content,
		Author:       strings.TrimSpace(author),
		CreatedAt:    now.UTC(),
		LastModified: now.UTC(),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the fields every stored post must have.
func (p *Post) Validate() error {
	if p.ID == "" {
		return domain.Invalidf("id is required")
	}
	if p.Title == "" {
		return domain.Invalidf("title is required")
	}
	if len(p.Title) > maxTitleLength {
		return domain.Invalidf("title exceeds %d bytes", maxTitleLength)
	}
	if p.Author == "" {
		return domain.Invalidf("author is required")
	}
	return nil
}

// Edit replaces title and content and bumps LastModified. Empty values keep
// the current ones.
func (p *Post) Edit(title, content string, now time.Time) error {
	if t := strings.TrimSpace(title); t != "" {
		p.Title = t
	}
	if content != "" {
		p.Content = content
	}
	p.LastModified = now.UTC()
	return p.Validate()
}
