// Package storage defines the persistence interfaces implemented by the
// memory, postgres and redis backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/agora-social/agora/internal/app/domain/account"
	"github.com/agora-social/agora/internal/app/domain/commerce"
	"github.com/agora-social/agora/internal/app/domain/content"
	"github.com/agora-social/agora/internal/app/domain/session"
)

// ErrNotFound is returned when a referenced record does not exist. The
// postgres backend maps sql.ErrNoRows onto it so callers match one sentinel.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateUsername is returned when creating an account whose username
// is already taken.
var ErrDuplicateUsername = errors.New("username already exists")

// AccountStore persists account records.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	GetAccount(ctx context.Context, id string) (account.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (account.Account, error)
	ListAccounts(ctx context.Context) ([]account.Account, error)
}

// SessionStore persists login sessions keyed by opaque token.
type SessionStore interface {
	CreateSession(ctx context.Context, sess session.Session) error
	GetSession(ctx context.Context, token string) (session.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// SessionSweeper is implemented by backends that need periodic cleanup of
// expired sessions. The redis backend expires keys itself and does not
// implement it.
type SessionSweeper interface {
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error)
}

// PostStore persists posts. DeletePost cascades to the post's comments and
// reactions.
type PostStore interface {
	CreatePost(ctx context.Context, p content.Post) (content.Post, error)
	UpdatePost(ctx context.Context, p content.Post) (content.Post, error)
	GetPost(ctx context.Context, id string) (content.Post, error)
	ListPosts(ctx context.Context) ([]content.Post, error)
	ListPostsByAuthor(ctx context.Context, authorID string) ([]content.Post, error)
	DeletePost(ctx context.Context, id string) error
}

// CommentStore persists comments.
type CommentStore interface {
	CreateComment(ctx context.Context, c content.Comment) (content.Comment, error)
	ListActiveComments(ctx context.Context, postID string) ([]content.Comment, error)
}

// ReactionStore persists reactions with upsert semantics: at most one row
// per (post, user).
type ReactionStore interface {
	// UpsertReaction stores the user's reaction on a post, replacing any
	// previous one. created reports whether a new row was inserted.
	UpsertReaction(ctx context.Context, r content.Reaction) (stored content.Reaction, created bool, err error)
	GetReaction(ctx context.Context, postID, userID string) (content.Reaction, error)
	CountReactions(ctx context.Context, postID string) ([]content.ReactionCount, error)
}

// ItemStore persists catalog items.
type ItemStore interface {
	CreateItem(ctx context.Context, item commerce.Item) (commerce.Item, error)
	UpdateItem(ctx context.Context, item commerce.Item) (commerce.Item, error)
	GetItem(ctx context.Context, id string) (commerce.Item, error)
	ListItems(ctx context.Context) ([]commerce.Item, error)
}

// OrderStore persists orders and their lines.
type OrderStore interface {
	// CreateOrder stores the order and all of its lines atomically. If any
	// referenced item does not exist the whole call fails with ErrNotFound
	// and nothing is persisted.
	CreateOrder(ctx context.Context, o commerce.Order, lines []commerce.OrderItem) (commerce.Order, error)
	GetOrder(ctx context.Context, id string) (commerce.Order, error)
	// GetOrderForUser resolves an order only when owned by userID; a
	// mismatch yields ErrNotFound, never a distinct forbidden error.
	GetOrderForUser(ctx context.Context, id, userID string) (commerce.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]commerce.Order, error)
	ListOrderLines(ctx context.Context, orderID string) ([]commerce.Line, error)
	UpdateOrderStatus(ctx context.Context, id string, status commerce.Status) (commerce.Order, error)
}
