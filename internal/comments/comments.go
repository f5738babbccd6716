// Package comments implements the one-level discussion thread attached to
// each market (C9): top-level comments, a single layer of replies, and
// idempotent up/down voting. Every mutation commits through the ledger and
// then fans out a CommentUpdate via C8, the same lock/compute/apply/commit
// shape used throughout the engine.
package comments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moodring-exchange/core-engine/internal/apperr"
	"github.com/moodring-exchange/core-engine/internal/ledger"
	"github.com/moodring-exchange/core-engine/internal/realtime"
	"github.com/moodring-exchange/core-engine/pkg/models"
)

// EventEmitter is the subset of fanout the comment subsystem drives.
type EventEmitter interface {
	EmitCommentUpdate(p realtime.CommentUpdatePayload)
}

// Engine is the comment subsystem (C9).
type Engine struct {
	pool    *pgxpool.Pool
	ledger  *ledger.Ledger
	emitter EventEmitter
}

func NewEngine(pool *pgxpool.Pool, led *ledger.Ledger, emitter EventEmitter) *Engine {
	return &Engine{pool: pool, ledger: led, emitter: emitter}
}

// CreateComment posts a top-level comment (parentID == nil) or a reply.
// Replies to a reply are rejected: the thread is exactly one level deep.
func (e *Engine) CreateComment(ctx context.Context, marketID, authorID uuid.UUID, parentID *uuid.UUID, content string) (*models.Comment, error) {
	if content == "" {
		return nil, apperr.Validationf("comment content must not be empty")
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internalf("begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if parentID != nil {
		parent, err := e.ledger.GetCommentWithLock(ctx, tx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.MarketID != marketID {
			return nil, apperr.Validationf("parent comment belongs to a different market")
		}
		if parent.ParentID != nil {
			return nil, apperr.Validationf("replies cannot themselves be replied to")
		}
		if err := e.ledger.IncrementReplyCount(ctx, tx, *parentID, 1); err != nil {
			return nil, err
		}
	}

	c := &models.Comment{
		ID:        uuid.New(),
		MarketID:  marketID,
		ParentID:  parentID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := e.ledger.InsertComment(ctx, tx, c); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internalf("commit: %v", err)
	}

	e.emitter.EmitCommentUpdate(realtime.CommentUpdatePayload{
		MarketID: marketID, CommentID: c.ID, Event: realtime.CommentCreated, ParentID: parentID, Comment: c,
	})
	return c, nil
}

// DeleteComment removes a comment. Deleting a top-level comment cascades to
// its replies; deleting a reply decrements its parent's reply_count.
func (e *Engine) DeleteComment(ctx context.Context, commentID, requesterID uuid.UUID) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return apperr.Internalf("begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := e.ledger.GetCommentWithLock(ctx, tx, commentID)
	if err != nil {
		return err
	}
	if c.AuthorID != requesterID {
		return apperr.Validationf("only the comment's author may delete it")
	}

	if c.ParentID == nil {
		if err := e.ledger.DeleteRepliesOf(ctx, tx, commentID); err != nil {
			return err
		}
	} else if err := e.ledger.IncrementReplyCount(ctx, tx, *c.ParentID, -1); err != nil {
		return err
	}

	if err := e.ledger.DeleteComment(ctx, tx, commentID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Internalf("commit: %v", err)
	}

	e.emitter.EmitCommentUpdate(realtime.CommentUpdatePayload{
		MarketID: c.MarketID, CommentID: c.ID, Event: realtime.CommentDeleted, ParentID: c.ParentID,
	})
	return nil
}

// voteDelta computes the (upvote, downvote) adjustment needed to move a
// user's vote from one state to another. Flipping direction is expressed as
// a single atomic delta rather than two separate operations.
func voteDelta(from, to models.VoteState) (upDelta, downDelta int) {
	if from == to {
		return 0, 0
	}
	switch from {
	case models.VoteUp:
		upDelta--
	case models.VoteDown:
		downDelta--
	}
	switch to {
	case models.VoteUp:
		upDelta++
	case models.VoteDown:
		downDelta++
	}
	return upDelta, downDelta
}

// Vote applies an idempotent up/down/none vote for a user on a comment.
// Casting the same vote twice is a no-op; switching direction atomically
// removes the old tally and applies the new one.
func (e *Engine) Vote(ctx context.Context, commentID, userID uuid.UUID, direction models.VoteState) (*models.Comment, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.Internalf("begin transaction: %v", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := e.ledger.GetCommentWithLock(ctx, tx, commentID)
	if err != nil {
		return nil, err
	}

	current, err := e.ledger.GetVote(ctx, tx, userID, commentID)
	if err != nil {
		return nil, err
	}

	upDelta, downDelta := voteDelta(current, direction)
	if upDelta != 0 || downDelta != 0 {
		if err := e.ledger.SetVote(ctx, tx, userID, commentID, direction); err != nil {
			return nil, err
		}
		if err := e.ledger.UpdateCommentVoteCounts(ctx, tx, commentID, upDelta, downDelta); err != nil {
			return nil, err
		}
		c.Upvotes += upDelta
		c.Downvotes += downDelta
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Internalf("commit: %v", err)
	}

	e.emitter.EmitCommentUpdate(realtime.CommentUpdatePayload{
		MarketID: c.MarketID, CommentID: c.ID, Event: realtime.CommentVoted, Upvotes: &c.Upvotes, Downvotes: &c.Downvotes,
	})
	return c, nil
}

// ListForMarket returns every comment (top-level and replies) for a market,
// oldest first, for a caller to assemble into a thread.
func (e *Engine) ListForMarket(ctx context.Context, marketID uuid.UUID) ([]*models.Comment, error) {
	return e.ledger.ListCommentsForMarket(ctx, e.pool, marketID)
}
