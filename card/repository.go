// Package card owns card documents, the per-board card-list cache key and
// the batch reorder protocol behind drag-and-drop moves.
package card

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"kanban-api/domain"
)

// Store is the cache-wrapped persistence surface the repository needs.
// Card-by-id reads are deliberately uncached; the cached unit is the
// per-board card list.
type Store interface {
	FindCard(ctx context.Context, cardID bson.ObjectID) (domain.Card, error)
	FetchCards(ctx context.Context, boardID bson.ObjectID) ([]domain.Card, error)
	FetchUser(ctx context.Context, userID bson.ObjectID) (domain.UserSnapshot, error)
	NextCardIndex(ctx context.Context, boardID bson.ObjectID, state domain.CardState) (int, error)
	InsertCard(ctx context.Context, c domain.Card) (bson.ObjectID, error)
	SetCardFields(ctx context.Context, cardID bson.ObjectID, fields map[string]any) error
	PushCardItem(ctx context.Context, cardID bson.ObjectID, field string, value any) error
	PullCardItem(ctx context.Context, cardID bson.ObjectID, field string, filter any) error
	DeleteCard(ctx context.Context, cardID bson.ObjectID) error
	BulkReorder(ctx context.Context, boardID bson.ObjectID, items []domain.ReorderItem) error
	EvictCards(ctx context.Context, boardID bson.ObjectID)
}

// Gate authorizes a user against a board before any card operation.
type Gate interface {
	Authorize(ctx context.Context, boardID, userID bson.ObjectID) error
}

// Broadcaster fans change notifications out to connections watching a board.
// Implementations must never block the repository on slow deliveries.
type Broadcaster interface {
	CardsChanged(boardID, actorID string)
	CardChanged(boardID, cardID string, section domain.CardSection, actorID string)
}

// Repository is the only writer of card documents and of the per-board
// card-list cache key. Every mutation runs gate → write → invalidate →
// broadcast, in that order.
type Repository struct {
	store     Store
	gate      Gate
	broadcast Broadcaster
}

// NewRepository creates a card repository.
func NewRepository(store Store, gate Gate, broadcast Broadcaster) *Repository {
	return &Repository{store: store, gate: gate, broadcast: broadcast}
}

// GetByID returns one card after authorizing the requester against its board.
func (r *Repository) GetByID(ctx context.Context, requesterID, cardID bson.ObjectID) (domain.Card, error) {
	card, err := r.store.FindCard(ctx, cardID)
	if err != nil {
		return domain.Card{}, err
	}
	if err := r.gate.Authorize(ctx, card.BoardID, requesterID); err != nil {
		return domain.Card{}, err
	}
	return card, nil
}

// ListByBoard returns the board's cards through the read-through cache.
func (r *Repository) ListByBoard(ctx context.Context, requesterID, boardID bson.ObjectID) ([]domain.Card, error) {
	if err := r.gate.Authorize(ctx, boardID, requesterID); err != nil {
		return nil, err
	}
	return r.store.FetchCards(ctx, boardID)
}

// Create inserts a card appended at the end of its (board, state) lane. The
// creator is auto-assigned.
func (r *Repository) Create(ctx context.Context, requesterID, boardID bson.ObjectID, title, description string, state domain.CardState) (domain.Card, error) {
	if !state.Valid() {
		return domain.Card{}, fmt.Errorf("unknown lane %q: %w", state, domain.ErrValidation)
	}
	if strings.TrimSpace(title) == "" {
		return domain.Card{}, fmt.Errorf("empty title: %w", domain.ErrValidation)
	}
	if err := r.gate.Authorize(ctx, boardID, requesterID); err != nil {
		return domain.Card{}, err
	}
	creator, err := r.store.FetchUser(ctx, requesterID)
	if err != nil {
		return domain.Card{}, err
	}
	index, err := r.store.NextCardIndex(ctx, boardID, state)
	if err != nil {
		return domain.Card{}, err
	}
	card := domain.Card{
		BoardID:      boardID,
		Creator:      creator,
		Title:        title,
		Description:  description,
		State:        state,
		Index:        index,
		AssignedTo:   []domain.UserSnapshot{creator},
		Comments:     []domain.Comment{},
		Attachments:  []domain.Attachment{},
		CreationDate: time.Now().UTC(),
	}
	id, err := r.store.InsertCard(ctx, card)
	if err != nil {
		return domain.Card{}, err
	}
	card.ID = id
	r.store.EvictCards(ctx, boardID)
	r.broadcast.CardsChanged(boardID.Hex(), requesterID.Hex())
	return card, nil
}

// UpdateTitle sets the card's title.
func (r *Repository) UpdateTitle(ctx context.Context, requesterID, cardID bson.ObjectID, title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("empty title: %w", domain.ErrValidation)
	}
	return r.setField(ctx, requesterID, cardID, "title", title, domain.SectionTitle)
}

// UpdateDescription sets the card's description.
func (r *Repository) UpdateDescription(ctx context.Context, requesterID, cardID bson.ObjectID, description string) error {
	return r.setField(ctx, requesterID, cardID, "description", description, domain.SectionDescription)
}

func (r *Repository) setField(ctx context.Context, requesterID, cardID bson.ObjectID, field string, value any, section domain.CardSection) error {
	card, err := r.store.FindCard(ctx, cardID)
	if err != nil {
		return err
	}
	if err := r.gate.Authorize(ctx, card.BoardID, requesterID); err != nil {
		return err
	}
	if err := r.store.SetCardFields(ctx, cardID, map[string]any{field: value}); err != nil {
		return err
	}
	r.finishCardMutation(ctx, card.BoardID, cardID, section, requesterID)
	return nil
}

// AttachFile appends a file reference to the card.
func (r *Repository) AttachFile(ctx context.Context, requesterID, cardID bson.ObjectID, url string) (domain.Attachment, error) {
	if strings.TrimSpace(url) == "" {
		return domain.Attachment{}, fmt.Errorf("empty url: %w", domain.ErrValidation)
	}
	card, err := r.store.FindCard(ctx, cardID)
	if err != nil {
		return domain.Attachment{}, err
	}
	if err := r.gate.Authorize(ctx, card.BoardID, requesterID); err != nil {
		return domain.Attachment{}, err
	}
	user, err := r.store.FetchUser(ctx, requesterID)
	if err != nil {
		return domain.Attachment{}, err
	}
	attachment := domain.Attachment{
		ID:           uuid.NewString(),
		URL:          url,
		User:         user,
		CreationDate: time.Now().UTC(),
	}
	if err := r.store.PushCardItem(ctx, cardID, "attachments", attachment); err != nil {
		return domain.Attachment{}, err
	}
	r.finishCardMutation(ctx, card.BoardID, cardID, domain.SectionAttachment, requesterID)
	return attachment, nil
}

// DeleteFile pulls an attachment off the card.
func (r *Repository) DeleteFile(ctx context.Context, requesterID, cardID bson.ObjectID, attachmentID string) error {
	card, err := r.store.FindCard(ctx, cardID)
	if err != nil {
		return err
	}
	if err := r.gate.Authorize(ctx, card.BoardID, requesterID); err != nil {
		return err
	}
	if err := r.store.PullCardItem(ctx, cardID, "attachments", bson.M{"_id": attachmentID}); err != nil {
		return err
	}
	r.finishCardMutation(ctx, card.BoardID, cardID, domain.SectionAttachment, requesterID)
	return nil
}

// PostComment appends a comment authored by the requester.
func (r *Repository) PostComment(ctx context.Context, requesterID, cardID bson.ObjectID, text string) (domain.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Comment{}, fmt.Errorf("empty comment: %w", domain.ErrValidation)
	}
	card, err := r.store.FindCard(ctx, cardID)
	if err != nil {
		return domain.Comment{}, err
	}
	if err := r.gate.Authorize(ctx, card.BoardID, requesterID); err != nil {
		return domain.Comment{}, err
	}
	creator, err := r.store.FetchUser(ctx, requesterID)
	if err != nil {
		return domain.Comment{}, err
	}
	comment := domain.Comment{
		ID:           uuid.NewString(),
		Text:         text,
		Creator:      creator,
		CreationDate: time.Now().UTC(),
	}
	if err := r.store.PushCardItem(ctx, cardID, "comments", comment); err != nil {
		return domain.Comment{}, err
	}
	r.finishCardMutation(ctx, card.BoardID, cardID, domain.SectionComments, requesterID)
	return comment, nil
}

// DeleteComment removes a comment. Only the comment's original author may
// delete it; anyone else gets ErrNotFound.
func (r *Repository) DeleteComment(ctx context.Context, requesterID, cardID bson.ObjectID, commentID string) error {
	card, err := r.store.FindCard(ctx, cardID)
	if err != nil {
		return err
	}
	if err := r.gate.Authorize(ctx, card.BoardID, requesterID); err != nil {
		return err
	}
	var owned bool
	for _, c := range card.Comments {
		if c.ID == commentID && c.Creator.ID == requesterID {
			owned = true
			break
		}
	}
	if !owned {
		return fmt.Errorf("comment %s: %w", commentID, domain.ErrNotFound)
	}
	if err := r.store.PullCardItem(ctx, cardID, "comments", bson.M{"_id": commentID}); err != nil {
		return err
	}
	r.finishCardMutation(ctx, card.BoardID, cardID, domain.SectionComments, requesterID)
	return nil
}

// AssignUser adds targetID to the card's assignee list. Assigning an already
// assigned user is a conflict.
func (r *Repository) AssignUser(ctx context.Context, requesterID, cardID, targetID bson.ObjectID) error {
	card, err := r.store.FindCard(ctx, cardID)
	if err != nil {
		return err
	}
	if err := r.gate.Authorize(ctx, card.BoardID, requesterID); err != nil {
		return err
	}
	if card.Assigned(targetID) {
		return fmt.Errorf("user already assigned: %w", domain.ErrConflict)
	}
	target, err := r.store.FetchUser(ctx, targetID)
	if err != nil {
		return err
	}
	if err := r.store.PushCardItem(ctx, cardID, "assignedTo", target); err != nil {
		return err
	}
	r.finishCardMutation(ctx, card.BoardID, cardID, domain.SectionAssignedTo, requesterID)
	return nil
}

// UnassignUser removes targetID from the card's assignee list. Removing a
// never-assigned user is a conflict.
func (r *Repository) UnassignUser(ctx context.Context, requesterID, cardID, targetID bson.ObjectID) error {
	card, err := r.store.FindCard(ctx, cardID)
	if err != nil {
		return err
	}
	if err := r.gate.Authorize(ctx, card.BoardID, requesterID); err != nil {
		return err
	}
	if !card.Assigned(targetID) {
		return fmt.Errorf("user not assigned: %w", domain.ErrConflict)
	}
	if err := r.store.PullCardItem(ctx, cardID, "assignedTo", bson.M{"_id": targetID}); err != nil {
		return err
	}
	r.finishCardMutation(ctx, card.BoardID, cardID, domain.SectionAssignedTo, requesterID)
	return nil
}

// Delete removes one card.
func (r *Repository) Delete(ctx context.Context, requesterID, cardID bson.ObjectID) error {
	card, err := r.store.FindCard(ctx, cardID)
	if err != nil {
		return err
	}
	if err := r.gate.Authorize(ctx, card.BoardID, requesterID); err != nil {
		return err
	}
	if err := r.store.DeleteCard(ctx, cardID); err != nil {
		return err
	}
	r.store.EvictCards(ctx, card.BoardID)
	r.broadcast.CardsChanged(card.BoardID.Hex(), requesterID.Hex())
	return nil
}

// BatchReorder applies a drag-and-drop move as one logical unit: a single
// unordered bulk write over every item, exactly one cache invalidation and
// exactly one broadcast for the owning board. The requester is authorized
// against the first item's board; every other item must resolve to the same
// board or the whole batch is rejected.
func (r *Repository) BatchReorder(ctx context.Context, requesterID bson.ObjectID, items []domain.ReorderItem) error {
	if len(items) == 0 {
		return fmt.Errorf("empty batch: %w", domain.ErrValidation)
	}
	for _, it := range items {
		if !it.State.Valid() {
			return fmt.Errorf("unknown lane %q: %w", it.State, domain.ErrValidation)
		}
	}
	first, err := r.store.FindCard(ctx, items[0].CardID)
	if err != nil {
		return err
	}
	if err := r.gate.Authorize(ctx, first.BoardID, requesterID); err != nil {
		return err
	}
	for _, it := range items[1:] {
		card, err := r.store.FindCard(ctx, it.CardID)
		if err != nil {
			return err
		}
		if card.BoardID != first.BoardID {
			return fmt.Errorf("card %s belongs to another board: %w", it.CardID.Hex(), domain.ErrValidation)
		}
	}
	if err := r.store.BulkReorder(ctx, first.BoardID, items); err != nil {
		// No invalidation and no broadcast on failure; the caller retries
		// the whole batch.
		return err
	}
	r.store.EvictCards(ctx, first.BoardID)
	r.broadcast.CardsChanged(first.BoardID.Hex(), requesterID.Hex())
	return nil
}

func (r *Repository) finishCardMutation(ctx context.Context, boardID, cardID bson.ObjectID, section domain.CardSection, actorID bson.ObjectID) {
	r.store.EvictCards(ctx, boardID)
	r.broadcast.CardsChanged(boardID.Hex(), actorID.Hex())
	r.broadcast.CardChanged(boardID.Hex(), cardID.Hex(), section, actorID.Hex())
}
