// Package feed manages posts, comments and reactions.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agora-social/agora/internal/app/domain/content"
	"github.com/agora-social/agora/internal/app/storage"
	"github.com/agora-social/agora/pkg/logger"
)

var (
	// ErrEmptyReaction is returned when the reaction field is missing or blank.
	ErrEmptyReaction = errors.New("reaction is required")
	// ErrUnknownReaction is returned for signals outside the canonical set.
	ErrUnknownReaction = errors.New("unknown reaction")
)

// Service manages the social feed.
type Service struct {
	posts     storage.PostStore
	comments  storage.CommentStore
	reactions storage.ReactionStore
	log       *logger.Logger
}

// New constructs a feed service.
func New(posts storage.PostStore, comments storage.CommentStore, reactions storage.ReactionStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("feed")
	}
	return &Service{posts: posts, comments: comments, reactions: reactions, log: log}
}

// CreatePost publishes a new post for the author.
func (s *Service) CreatePost(ctx context.Context, authorID, body, image, video string) (content.Post, error) {
	if authorID == "" {
		return content.Post{}, fmt.Errorf("author is required")
	}
	body = strings.TrimSpace(body)
	if body == "" && image == "" && video == "" {
		return content.Post{}, fmt.Errorf("post is empty")
	}

	created, err := s.posts.CreatePost(ctx, content.Post{
		AuthorID: authorID,
		Content:  body,
		Image:    image,
		Video:    video,
	})
	if err != nil {
		return content.Post{}, err
	}
	s.log.WithField("post_id", created.ID).Info("post created")
	return created, nil
}

// EditParams carries the optional fields of a post edit. Nil means keep the
// stored value.
type EditParams struct {
	Content *string
	Image   *string
	Video   *string
}

// EditPost applies a partial update to a post.
func (s *Service) EditPost(ctx context.Context, postID string, params EditParams) (content.Post, error) {
	existing, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return content.Post{}, err
	}

	if params.Content != nil {
		existing.Content = strings.TrimSpace(*params.Content)
	}
	if params.Image != nil {
		existing.Image = *params.Image
	}
	if params.Video != nil {
		existing.Video = *params.Video
	}

	updated, err := s.posts.UpdatePost(ctx, existing)
	if err != nil {
		return content.Post{}, err
	}
	s.log.WithField("post_id", postID).Info("post updated")
	return updated, nil
}

// DeletePost removes a post and everything attached to it.
func (s *Service) DeletePost(ctx context.Context, postID string) error {
	if err := s.posts.DeletePost(ctx, postID); err != nil {
		return err
	}
	s.log.WithField("post_id", postID).Info("post deleted")
	return nil
}

// ListPosts returns every post, newest first.
func (s *Service) ListPosts(ctx context.Context) ([]content.Post, error) {
	return s.posts.ListPosts(ctx)
}

// GetPost retrieves a single post.
func (s *Service) GetPost(ctx context.Context, postID string) (content.Post, error) {
	return s.posts.GetPost(ctx, postID)
}

// CreateComment attaches a comment to a post. Whitespace-only comments with
// no media are silently dropped: the returned bool reports whether anything
// was stored.
func (s *Service) CreateComment(ctx context.Context, postID, userID, body, image, video string) (content.Comment, bool, error) {
	body = strings.TrimSpace(body)
	if body == "" && image == "" && video == "" {
		// the post must still exist for the drop to be a success
		if _, err := s.posts.GetPost(ctx, postID); err != nil {
			return content.Comment{}, false, err
		}
		return content.Comment{}, false, nil
	}

	created, err := s.comments.CreateComment(ctx, content.Comment{
		PostID:   postID,
		UserID:   userID,
		Content:  body,
		Image:    image,
		Video:    video,
		IsActive: true,
	})
	if err != nil {
		return content.Comment{}, false, err
	}
	return created, true, nil
}

// ReactionResult reports the outcome of a react call.
type ReactionResult struct {
	Reaction content.Reaction
	Created  bool
	Counts   []content.ReactionCount
}

// React records or replaces the caller's reaction on a post. The raw signal
// may be a canonical code or an emoji alias; anything else is rejected.
func (s *Service) React(ctx context.Context, postID, userID, raw string) (ReactionResult, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ReactionResult{}, ErrEmptyReaction
	}
	code, ok := content.NormalizeReaction(raw)
	if !ok {
		return ReactionResult{}, fmt.Errorf("%w: %q", ErrUnknownReaction, raw)
	}

	if _, err := s.posts.GetPost(ctx, postID); err != nil {
		return ReactionResult{}, err
	}

	stored, created, err := s.reactions.UpsertReaction(ctx, content.Reaction{
		PostID:       postID,
		UserID:       userID,
		ReactionType: code,
	})
	if err != nil {
		return ReactionResult{}, err
	}

	counts, err := s.reactions.CountReactions(ctx, postID)
	if err != nil {
		return ReactionResult{}, err
	}

	s.log.WithFields(map[string]any{"post_id": postID, "reaction": code}).Debug("reaction stored")
	return ReactionResult{Reaction: stored, Created: created, Counts: counts}, nil
}

// Detail is a post with its live comments, grouped reaction counts and the
// viewer's own reaction if any.
type Detail struct {
	Post           content.Post
	Comments       []content.Comment
	Counts         []content.ReactionCount
	ViewerReaction string
}

// GetDetail assembles the detail view of a post. viewerID may be empty for
// anonymous readers.
func (s *Service) GetDetail(ctx context.Context, postID, viewerID string) (Detail, error) {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return Detail{}, err
	}

	comments, err := s.comments.ListActiveComments(ctx, postID)
	if err != nil {
		return Detail{}, err
	}

	counts, err := s.reactions.CountReactions(ctx, postID)
	if err != nil {
		return Detail{}, err
	}

	detail := Detail{Post: post, Comments: comments, Counts: counts}
	if viewerID != "" {
		own, err := s.reactions.GetReaction(ctx, postID, viewerID)
		if err == nil {
			detail.ViewerReaction = own.ReactionType
		} else if !errors.Is(err, storage.ErrNotFound) {
			return Detail{}, err
		}
	}
	return detail, nil
}
