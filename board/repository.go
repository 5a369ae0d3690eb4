// Package board owns the board document lifecycle and the membership gate
// every board and card mutation authorizes through.
package board

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"kanban-api/domain"
)

// Store is the cache-wrapped persistence surface the repository needs.
// Fetch* reads go through the read-through cache; the rest hit the store
// directly. Evict* drop cache keys after writes.
type Store interface {
	FetchBoard(ctx context.Context, boardID bson.ObjectID) (domain.Board, error)
	FetchUser(ctx context.Context, userID bson.ObjectID) (domain.UserSnapshot, error)
	FindUserByUsername(ctx context.Context, username string) (domain.UserSnapshot, error)
	InsertBoard(ctx context.Context, b domain.Board) (bson.ObjectID, error)
	PushMember(ctx context.Context, boardID bson.ObjectID, m domain.Member) error
	PullMember(ctx context.Context, boardID, userID bson.ObjectID) error
	SetMemberRole(ctx context.Context, boardID, userID bson.ObjectID, role domain.Role) error
	FindBoardsWithMember(ctx context.Context, userID bson.ObjectID) ([]domain.Board, error)
	DeleteBoardCascade(ctx context.Context, boardID bson.ObjectID) error
	EvictBoard(ctx context.Context, boardID bson.ObjectID)
	EvictCards(ctx context.Context, boardID bson.ObjectID)
}

// Repository is the only writer of board documents and of the board cache key.
type Repository struct {
	store Store
}

// NewRepository creates a board repository backed by the given store.
func NewRepository(store Store) *Repository {
	return &Repository{store: store}
}

// Authorize decides whether userID currently holds an active role on the
// board. It consults the cached board state at call time, never a snapshot
// captured earlier in the request. Returns ErrNotFound when the board does
// not exist and ErrUnauthorized when the membership entry is absent or
// still pending.
func (r *Repository) Authorize(ctx context.Context, boardID, userID bson.ObjectID) error {
	board, err := r.store.FetchBoard(ctx, boardID)
	if err != nil {
		return err
	}
	member, ok := board.Member(userID)
	if !ok || !member.Role.Active() {
		return fmt.Errorf("board %s: %w", boardID.Hex(), domain.ErrUnauthorized)
	}
	return nil
}

// GetByID returns the board through the read-through cache.
func (r *Repository) GetByID(ctx context.Context, boardID bson.ObjectID) (domain.Board, error) {
	return r.store.FetchBoard(ctx, boardID)
}

// Create inserts a board whose sole member is the creator. The cache is not
// pre-populated; the first read fills it.
func (r *Repository) Create(ctx context.Context, requesterID bson.ObjectID, title string) (bson.ObjectID, error) {
	if strings.TrimSpace(title) == "" {
		return bson.ObjectID{}, fmt.Errorf("empty title: %w", domain.ErrValidation)
	}
	creator, err := r.store.FetchUser(ctx, requesterID)
	if err != nil {
		return bson.ObjectID{}, err
	}
	b := domain.Board{
		Creator:        creator,
		Title:          title,
		LowercaseTitle: strings.ToLower(title),
		Members:        []domain.Member{{UserSnapshot: creator, Role: domain.RoleCreator}},
		CreationDate:   time.Now().UTC(),
	}
	return r.store.InsertBoard(ctx, b)
}

// AddMember invites targetUsername onto the board with a pending role. Only
// the creator may invite, and a user appears at most once in the member list.
func (r *Repository) AddMember(ctx context.Context, boardID, requesterID bson.ObjectID, targetUsername string) error {
	board, err := r.store.FetchBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if board.Creator.ID != requesterID {
		return fmt.Errorf("only the creator may invite: %w", domain.ErrUnauthorized)
	}
	target, err := r.store.FindUserByUsername(ctx, targetUsername)
	if err != nil {
		return err
	}
	if _, ok := board.Member(target.ID); ok {
		return fmt.Errorf("user already a member: %w", domain.ErrConflict)
	}
	if err := r.store.PushMember(ctx, boardID, domain.Member{UserSnapshot: target, Role: domain.RolePending}); err != nil {
		return err
	}
	r.store.EvictBoard(ctx, boardID)
	return nil
}

// RemoveMember pulls targetID's entry from the board. Permitted only when
// the requester is the creator removing someone else, or a non-creator
// removing themself.
func (r *Repository) RemoveMember(ctx context.Context, boardID, requesterID, targetID bson.ObjectID) error {
	board, err := r.store.FetchBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if _, ok := board.Member(requesterID); !ok {
		// Masks board existence from outsiders.
		return fmt.Errorf("board %s: %w", boardID.Hex(), domain.ErrNotFound)
	}
	creatorRemovingOther := requesterID == board.Creator.ID && targetID != requesterID
	selfRemoval := targetID == requesterID && targetID != board.Creator.ID
	if !creatorRemovingOther && !selfRemoval {
		return fmt.Errorf("removal not permitted: %w", domain.ErrUnauthorized)
	}
	if err := r.store.PullMember(ctx, boardID, targetID); err != nil {
		return err
	}
	r.store.EvictBoard(ctx, boardID)
	return nil
}

// AcceptPendingRole flips the requester's pending entry to an active one.
func (r *Repository) AcceptPendingRole(ctx context.Context, boardID, requesterID bson.ObjectID) error {
	board, err := r.store.FetchBoard(ctx, boardID)
	if err != nil {
		return err
	}
	member, ok := board.Member(requesterID)
	if !ok || member.Role != domain.RolePending {
		return fmt.Errorf("no pending invite: %w", domain.ErrNotFound)
	}
	if err := r.store.SetMemberRole(ctx, boardID, requesterID, domain.RoleUser); err != nil {
		return err
	}
	r.store.EvictBoard(ctx, boardID)
	return nil
}

// ListForUser returns the boards where the user holds an active role.
func (r *Repository) ListForUser(ctx context.Context, userID bson.ObjectID) ([]domain.Board, error) {
	boards, err := r.store.FindBoardsWithMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := []domain.Board{}
	for _, b := range boards {
		if member, ok := b.Member(userID); ok && member.Role.Active() {
			active = append(active, b)
		}
	}
	return active, nil
}

// ListPendingForUser returns invite summaries for boards where the user's
// entry is still pending.
func (r *Repository) ListPendingForUser(ctx context.Context, userID bson.ObjectID) ([]domain.PendingInvite, error) {
	boards, err := r.store.FindBoardsWithMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	invites := []domain.PendingInvite{}
	for _, b := range boards {
		member, ok := b.Member(userID)
		if !ok || member.Role != domain.RolePending {
			continue
		}
		invites = append(invites, domain.PendingInvite{
			BoardID: b.ID,
			Creator: b.Creator,
			Title:   b.Title,
			Member:  member,
		})
	}
	return invites, nil
}

// Delete removes the board and all its cards in one transaction. Non-creators
// get ErrNotFound rather than ErrUnauthorized so board existence is not
// revealed. Cache keys are dropped only after the transaction commits.
func (r *Repository) Delete(ctx context.Context, boardID, requesterID bson.ObjectID) error {
	board, err := r.store.FetchBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if board.Creator.ID != requesterID {
		return fmt.Errorf("board %s: %w", boardID.Hex(), domain.ErrNotFound)
	}
	if err := r.store.DeleteBoardCascade(ctx, boardID); err != nil {
		return err
	}
	r.store.EvictBoard(ctx, boardID)
	r.store.EvictCards(ctx, boardID)
	return nil
}
