// Package occdex is a versioned document repository with optimistic
// concurrency control over Elasticsearch, Redis or an in-process store.
//
// Every stored document carries a (seq_no, primary_term) token. Index writes
// a document only if the stored copy still has the token the caller last saw,
// and reports a ConflictError otherwise. Search returns documents with their
// current token so a later Index can be conditional.
//
// Quick start:
//
//	type Post struct {
//	    occdex.Version `json:"-"`
//	    ID     string `json:"id"`
//	    Title  string `json:"title"  occ:"title"`
//	    Author string `json:"author" occ:"author,tag"`
//	}
//
//	func (p *Post) DocumentID() string { return p.ID }
//
//	client, err := occdex.New(occdex.WithRedis("localhost:6379", ""))
//	if err != nil { ... }
//	defer client.Close()
//
//	_ = occdex.Register[Post](client.Registry(), "post", "postdoc")
//	_ = client.EnsureIndexes(ctx)
//
//	posts, _ := occdex.Open[*Post](client)
//	p, err := posts.Index(ctx, &Post{ID: "p1", Title: "hello", Author: "alice"})
//	// p.SeqNo() == 0, p.PrimaryTerm() == 1
//
//	p.Title = "hello again"
//	if _, err := posts.Index(ctx, p); occdex.IsConflict(err) {
//	    // someone else wrote p1 first: re-read and retry
//	}
package occdex
