package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/agora-social/agora/internal/app/domain/account"
	"github.com/agora-social/agora/internal/app/domain/commerce"
	"github.com/agora-social/agora/internal/app/domain/content"
	"github.com/agora-social/agora/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestCreateAccountDuplicateUsername(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO accounts`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "accounts_username_key"})

	_, err := store.CreateAccount(context.Background(), account.Account{Username: "alice"})
	if !errors.Is(err, storage.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestUniqueViolationOnOtherConstraintPassesThrough(t *testing.T) {
	store, mock := newMockStore(t)

	cause := &pq.Error{Code: "23505", Constraint: "reactions_post_id_user_id_key"}
	mock.ExpectExec(`INSERT INTO accounts`).WillReturnError(cause)

	_, err := store.CreateAccount(context.Background(), account.Account{Username: "alice"})
	if errors.Is(err, storage.ErrDuplicateUsername) {
		t.Fatal("unique violation on a non-username constraint must not map to ErrDuplicateUsername")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected the driver error to pass through, got %v", err)
	}
}

func TestGetPostNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM posts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "author_id", "content", "image", "video", "created_at"}))

	_, err := store.GetPost(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertReactionReportsInsert(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "post_id", "user_id", "reaction_type", "created_at", "inserted"}).
		AddRow("r1", "p1", "u1", "like", time.Now(), true)
	mock.ExpectQuery(`INSERT INTO reactions`).WillReturnRows(rows)

	_, created, err := store.UpsertReaction(context.Background(), content.Reaction{PostID: "p1", UserID: "u1", ReactionType: "like"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !created {
		t.Fatal("expected created=true on fresh insert")
	}
}

func TestCreateOrderRollsBackOnMissingItem(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO orders`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_items`).WillReturnError(&pq.Error{Code: "23503"})
	mock.ExpectRollback()

	_, err := store.CreateOrder(context.Background(), commerce.Order{UserID: "u1"},
		[]commerce.OrderItem{{ItemID: "missing", Quantity: 1}})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := New(db)
	ctx := context.Background()

	acct, err := store.CreateAccount(ctx, account.Account{Username: "it-user", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	post, err := store.CreatePost(ctx, content.Post{AuthorID: acct.ID, Content: "hello"})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	if _, err := store.CreateComment(ctx, content.Comment{
		PostID: post.ID, UserID: acct.ID, Content: "hi", Image: "shot.png", IsActive: true,
	}); err != nil {
		t.Fatalf("create comment: %v", err)
	}
	comments, err := store.ListActiveComments(ctx, post.ID)
	if err != nil || len(comments) != 1 {
		t.Fatalf("list comments: n=%d err=%v", len(comments), err)
	}
	if comments[0].UserID != acct.ID || comments[0].Image != "shot.png" {
		t.Fatalf("comment round trip: %+v", comments[0])
	}

	if _, created, err := store.UpsertReaction(ctx, content.Reaction{PostID: post.ID, UserID: acct.ID, ReactionType: "like"}); err != nil || !created {
		t.Fatalf("first reaction: created=%v err=%v", created, err)
	}
	if _, created, err := store.UpsertReaction(ctx, content.Reaction{PostID: post.ID, UserID: acct.ID, ReactionType: "love"}); err != nil || created {
		t.Fatalf("second reaction: created=%v err=%v", created, err)
	}

	counts, err := store.CountReactions(ctx, post.ID)
	if err != nil {
		t.Fatalf("count reactions: %v", err)
	}
	if len(counts) != 1 || counts[0].ReactionType != "love" || counts[0].Count != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	item, err := store.CreateItem(ctx, commerce.Item{Name: "widget", Price: decimal.NewFromFloat(9.99), Stock: 4})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if got, err := store.GetItem(ctx, item.ID); err != nil || got.Stock != 4 {
		t.Fatalf("item round trip: stock=%d err=%v", got.Stock, err)
	}

	order, err := store.CreateOrder(ctx, commerce.Order{UserID: acct.ID},
		[]commerce.OrderItem{{ItemID: item.ID, Quantity: 2}})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != commerce.StatusOpen {
		t.Fatalf("expected open order, got %s", order.Status)
	}

	lines, err := store.ListOrderLines(ctx, order.ID)
	if err != nil {
		t.Fatalf("list lines: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 2 {
		t.Fatalf("unexpected lines: %+v", lines)
	}

	if _, err := store.GetOrderForUser(ctx, order.ID, "someone-else"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}

	if err := store.DeletePost(ctx, post.ID); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	if _, err := store.GetReaction(ctx, post.ID, acct.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected reaction gone after post delete, got %v", err)
	}
}
