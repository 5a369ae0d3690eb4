package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// CardState is the lane a card occupies on its board.
type CardState string

const (
	StateTodo       CardState = "TODO"
	StateInProgress CardState = "IN_PROGRESS"
	StateTesting    CardState = "TESTING"
	StateDone       CardState = "DONE"
)

// Valid reports whether s is one of the recognized lane tags. No transition
// policy is enforced server-side beyond this.
func (s CardState) Valid() bool {
	switch s {
	case StateTodo, StateInProgress, StateTesting, StateDone:
		return true
	}
	return false
}

// CardSection tags which part of a card a mutation touched, carried on the
// per-card change broadcast so clients can patch just that section.
type CardSection string

const (
	SectionTitle       CardSection = "TITLE"
	SectionDescription CardSection = "DESCRIPTION"
	SectionAttachment  CardSection = "ATTACHMENT"
	SectionAssignedTo  CardSection = "ASSIGNED_TO"
	SectionComments    CardSection = "COMMENTS"
)

// Comment is an embedded card comment.
type Comment struct {
	ID           string       `bson:"_id" json:"id"`
	Text         string       `bson:"comment" json:"comment"`
	Creator      UserSnapshot `bson:"creator" json:"creator"`
	CreationDate time.Time    `bson:"creationDate" json:"creationDate"`
}

// Attachment is an embedded file reference on a card.
type Attachment struct {
	ID           string       `bson:"_id" json:"id"`
	URL          string       `bson:"url" json:"url"`
	User         UserSnapshot `bson:"user" json:"user"`
	CreationDate time.Time    `bson:"creationDate" json:"creationDate"`
}

// Card is a unit of work on one board. Index orders cards within their
// (board, state) lane; new cards append at max(index)+1.
type Card struct {
	ID           bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	BoardID      bson.ObjectID  `bson:"boardId" json:"boardId"`
	Creator      UserSnapshot   `bson:"creator" json:"creator"`
	Title        string         `bson:"title" json:"title"`
	Description  string         `bson:"description" json:"description"`
	State        CardState      `bson:"state" json:"state"`
	Index        int            `bson:"index" json:"index"`
	AssignedTo   []UserSnapshot `bson:"assignedTo" json:"assignedTo"`
	Comments     []Comment      `bson:"comments" json:"comments"`
	Attachments  []Attachment   `bson:"attachments" json:"attachments"`
	CreationDate time.Time      `bson:"creationDate" json:"creationDate"`
}

// Assigned reports whether userID is currently assigned to the card.
func (c Card) Assigned(userID bson.ObjectID) bool {
	for _, u := range c.AssignedTo {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// ReorderItem is one entry of a drag-and-drop batch. PreviousSource and
// DestinationSource are advisory lane identifiers observed by the client;
// correctness does not depend on them.
type ReorderItem struct {
	CardID            bson.ObjectID `json:"cardId"`
	Index             int           `json:"index"`
	State             CardState     `json:"state"`
	PreviousSource    string        `json:"previousSource"`
	DestinationSource string        `json:"destinationSource"`
}
