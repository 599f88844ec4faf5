// Package content holds the post, comment and reaction model shared by the
// feed service and its stores.
package content

import "time"

// Post is an authored feed entry. Image and Video are opaque media
// references; file storage itself lives outside this service.
type Post struct {
	ID        string
	AuthorID  string
	Content   string
	Image     string
	Video     string
	CreatedAt time.Time
}

// Comment attaches to a post. Inactive comments are soft-hidden: they stay
// persisted but are excluded from detail views.
type Comment struct {
	ID        string
	PostID    string
	UserID    string
	Content   string
	Image     string
	Video     string
	IsActive  bool
	CreatedAt time.Time
}

// Reaction records one user's current reaction to a post. At most one row
// exists per (post, user); a repeated reaction replaces the code.
type Reaction struct {
	ID           string
	PostID       string
	UserID       string
	ReactionType string
	CreatedAt    time.Time
}

// ReactionCount is one bucket of the per-post reaction distribution.
type ReactionCount struct {
	ReactionType string `json:"reaction_type"`
	Count        int    `json:"count"`
}
