package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/agora-social/agora/internal/app/domain/account"
	"github.com/agora-social/agora/internal/app/storage"
	"github.com/agora-social/agora/internal/app/storage/memory"
)

func newFixture(t *testing.T) (*Service, *memory.Store, account.Account, account.Account) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	alice, err := store.CreateAccount(ctx, account.Account{Username: "alice", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := store.CreateAccount(ctx, account.Account{Username: "bob", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	return New(store, store, store, nil), store, alice, bob
}

func TestPostLifecycle(t *testing.T) {
	svc, _, alice, _ := newFixture(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, alice.ID, "  hello world  ", "", "")
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if post.Content != "hello world" {
		t.Fatalf("expected trimmed content, got %q", post.Content)
	}

	newBody := "edited"
	updated, err := svc.EditPost(ctx, post.ID, EditParams{Content: &newBody})
	if err != nil {
		t.Fatalf("edit post: %v", err)
	}
	if updated.Content != "edited" || updated.AuthorID != alice.ID {
		t.Fatalf("unexpected edit result: %+v", updated)
	}

	// nil fields are left alone
	img := "pic.png"
	updated, err = svc.EditPost(ctx, post.ID, EditParams{Image: &img})
	if err != nil {
		t.Fatalf("edit image: %v", err)
	}
	if updated.Content != "edited" || updated.Image != "pic.png" {
		t.Fatalf("partial edit clobbered fields: %+v", updated)
	}

	if err := svc.DeletePost(ctx, post.ID); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	if _, err := svc.GetPost(ctx, post.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected post gone, got %v", err)
	}
}

func TestCreatePostRejectsEmpty(t *testing.T) {
	svc, _, alice, _ := newFixture(t)

	if _, err := svc.CreatePost(context.Background(), alice.ID, "   ", "", ""); err == nil {
		t.Fatal("expected error for empty post")
	}
}

func TestCommentTrimAndDrop(t *testing.T) {
	svc, _, alice, bob := newFixture(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, alice.ID, "post", "", "")
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	c, created, err := svc.CreateComment(ctx, post.ID, bob.ID, "  nice  ", "", "")
	if err != nil || !created {
		t.Fatalf("comment: created=%v err=%v", created, err)
	}
	if c.Content != "nice" {
		t.Fatalf("expected trimmed comment, got %q", c.Content)
	}

	// whitespace-only comments are dropped without error
	_, created, err = svc.CreateComment(ctx, post.ID, bob.ID, "   \n\t ", "", "")
	if err != nil {
		t.Fatalf("blank comment: %v", err)
	}
	if created {
		t.Fatal("expected blank comment to be dropped")
	}

	// but the target post must exist
	if _, _, err := svc.CreateComment(ctx, "missing", bob.ID, "   ", "", ""); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	detail, err := svc.GetDetail(ctx, post.ID, "")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(detail.Comments))
	}
	if detail.Comments[0].UserID != bob.ID {
		t.Fatalf("expected comment by %s, got %q", bob.ID, detail.Comments[0].UserID)
	}
}

func TestCommentCarriesMedia(t *testing.T) {
	svc, _, alice, bob := newFixture(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, alice.ID, "post", "", "")
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	// a media-only comment is not blank
	c, created, err := svc.CreateComment(ctx, post.ID, bob.ID, "   ", "shot.png", "")
	if err != nil || !created {
		t.Fatalf("media comment: created=%v err=%v", created, err)
	}
	if c.Image != "shot.png" || c.Content != "" {
		t.Fatalf("unexpected comment fields: %+v", c)
	}

	detail, err := svc.GetDetail(ctx, post.ID, "")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(detail.Comments) != 1 || detail.Comments[0].Image != "shot.png" {
		t.Fatalf("expected stored media comment, got %+v", detail.Comments)
	}
}

func TestReactUpsertAndCounts(t *testing.T) {
	svc, _, alice, bob := newFixture(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, alice.ID, "post", "", "")
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	res, err := svc.React(ctx, post.ID, alice.ID, "like")
	if err != nil || !res.Created {
		t.Fatalf("alice like: created=%v err=%v", res.Created, err)
	}
	if _, err := svc.React(ctx, post.ID, bob.ID, "love"); err != nil {
		t.Fatalf("bob love: %v", err)
	}

	// alice switches to love: replaces her row, never adds a second one
	res, err = svc.React(ctx, post.ID, alice.ID, "love")
	if err != nil {
		t.Fatalf("alice switch: %v", err)
	}
	if res.Created {
		t.Fatal("switch must not create a new reaction")
	}
	if len(res.Counts) != 1 || res.Counts[0].ReactionType != "love" || res.Counts[0].Count != 2 {
		t.Fatalf("expected love:2, got %+v", res.Counts)
	}
}

func TestReactNormalizesEmoji(t *testing.T) {
	svc, _, alice, _ := newFixture(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, alice.ID, "post", "", "")
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	res, err := svc.React(ctx, post.ID, alice.ID, "👍")
	if err != nil {
		t.Fatalf("react: %v", err)
	}
	if res.Reaction.ReactionType != "like" {
		t.Fatalf("expected emoji mapped to like, got %q", res.Reaction.ReactionType)
	}
}

func TestReactRejectsBadSignals(t *testing.T) {
	svc, _, alice, _ := newFixture(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, alice.ID, "post", "", "")
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	if _, err := svc.React(ctx, post.ID, alice.ID, ""); !errors.Is(err, ErrEmptyReaction) {
		t.Fatalf("expected ErrEmptyReaction, got %v", err)
	}
	if _, err := svc.React(ctx, post.ID, alice.ID, "meh"); !errors.Is(err, ErrUnknownReaction) {
		t.Fatalf("expected ErrUnknownReaction, got %v", err)
	}
	if _, err := svc.React(ctx, "missing", alice.ID, "like"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeletePostCascades(t *testing.T) {
	svc, store, alice, bob := newFixture(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, alice.ID, "post", "", "")
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if _, _, err := svc.CreateComment(ctx, post.ID, bob.ID, "hi", "", ""); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if _, err := svc.React(ctx, post.ID, bob.ID, "wow"); err != nil {
		t.Fatalf("react: %v", err)
	}

	if err := svc.DeletePost(ctx, post.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetReaction(ctx, post.ID, bob.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected reaction gone, got %v", err)
	}
	comments, err := store.ListActiveComments(ctx, post.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 0 {
		t.Fatalf("expected comments gone, got %d", len(comments))
	}
}

func TestGetDetailViewerReaction(t *testing.T) {
	svc, _, alice, bob := newFixture(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, alice.ID, "post", "", "")
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if _, err := svc.React(ctx, post.ID, bob.ID, "haha"); err != nil {
		t.Fatalf("react: %v", err)
	}

	detail, err := svc.GetDetail(ctx, post.ID, bob.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.ViewerReaction != "haha" {
		t.Fatalf("expected viewer reaction haha, got %q", detail.ViewerReaction)
	}

	detail, err = svc.GetDetail(ctx, post.ID, alice.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.ViewerReaction != "" {
		t.Fatalf("expected no viewer reaction, got %q", detail.ViewerReaction)
	}
}
