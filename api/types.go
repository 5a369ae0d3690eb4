package api

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"kanban-api/domain"
)

// Boards abstracts the board repository for handlers.
type Boards interface {
	Create(ctx context.Context, requesterID bson.ObjectID, title string) (bson.ObjectID, error)
	ListForUser(ctx context.Context, userID bson.ObjectID) ([]domain.Board, error)
	ListPendingForUser(ctx context.Context, userID bson.ObjectID) ([]domain.PendingInvite, error)
	AddMember(ctx context.Context, boardID, requesterID bson.ObjectID, targetUsername string) error
	RemoveMember(ctx context.Context, boardID, requesterID, targetID bson.ObjectID) error
	AcceptPendingRole(ctx context.Context, boardID, requesterID bson.ObjectID) error
	Delete(ctx context.Context, boardID, requesterID bson.ObjectID) error
}

// Cards abstracts the card repository for handlers.
type Cards interface {
	GetByID(ctx context.Context, requesterID, cardID bson.ObjectID) (domain.Card, error)
	ListByBoard(ctx context.Context, requesterID, boardID bson.ObjectID) ([]domain.Card, error)
	Create(ctx context.Context, requesterID, boardID bson.ObjectID, title, description string, state domain.CardState) (domain.Card, error)
	UpdateTitle(ctx context.Context, requesterID, cardID bson.ObjectID, title string) error
	UpdateDescription(ctx context.Context, requesterID, cardID bson.ObjectID, description string) error
	AttachFile(ctx context.Context, requesterID, cardID bson.ObjectID, url string) (domain.Attachment, error)
	DeleteFile(ctx context.Context, requesterID, cardID bson.ObjectID, attachmentID string) error
	PostComment(ctx context.Context, requesterID, cardID bson.ObjectID, text string) (domain.Comment, error)
	DeleteComment(ctx context.Context, requesterID, cardID bson.ObjectID, commentID string) error
	AssignUser(ctx context.Context, requesterID, cardID, targetID bson.ObjectID) error
	UnassignUser(ctx context.Context, requesterID, cardID, targetID bson.ObjectID) error
	Delete(ctx context.Context, requesterID, cardID bson.ObjectID) error
	BatchReorder(ctx context.Context, requesterID bson.ObjectID, items []domain.ReorderItem) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

type createBoardRequest struct {
	Title string `json:"title"`
}

type boardIDRequest struct {
	BoardID string `json:"boardId"`
}

type addMemberRequest struct {
	BoardID  string `json:"boardId"`
	Username string `json:"userName"`
}

type removeMemberRequest struct {
	BoardID string `json:"boardId"`
	UserID  string `json:"userId"`
}

type createCardRequest struct {
	BoardID     string `json:"boardId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	State       string `json:"state"`
}

type updateTitleRequest struct {
	CardID string `json:"cardId"`
	Title  string `json:"title"`
}

type updateDescriptionRequest struct {
	CardID      string `json:"cardId"`
	Description string `json:"description"`
}

type attachFileRequest struct {
	CardID string `json:"cardId"`
	URL    string `json:"url"`
}

type deleteFileRequest struct {
	CardID       string `json:"cardId"`
	AttachmentID string `json:"attachmentId"`
}

type postCommentRequest struct {
	Comment string `json:"comment"`
}

type cardUserRequest struct {
	CardID string `json:"cardId"`
	UserID string `json:"userId"`
}

type reorderItemRequest struct {
	CardID            string `json:"cardId"`
	Index             int    `json:"index"`
	State             string `json:"state"`
	PreviousSource    string `json:"previousSource"`
	DestinationSource string `json:"destinationSource"`
}

type batchReorderRequest struct {
	Cards []reorderItemRequest `json:"cards"`
}

type boardIDResponse struct {
	BoardID string `json:"boardId"`
}

func parseID(hex string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return bson.ObjectID{}, fmt.Errorf("malformed id %q: %w", hex, domain.ErrValidation)
	}
	return id, nil
}
