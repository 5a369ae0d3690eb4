package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Role is a member's standing on a board.
type Role string

const (
	// RoleCreator is held by exactly one member, set at creation, never removable.
	RoleCreator Role = "CREATOR"
	// RolePending marks an invited member that has not accepted yet.
	RolePending Role = "PENDING"
	// RoleUser marks an invited member that accepted the invite.
	RoleUser Role = "USER"
)

// Valid reports whether r is one of the recognized role tags.
func (r Role) Valid() bool {
	switch r {
	case RoleCreator, RolePending, RoleUser:
		return true
	}
	return false
}

// Active reports whether r authorizes board and card mutations.
func (r Role) Active() bool {
	return r == RoleCreator || r == RoleUser
}

// Member is a user snapshot plus the role it holds on one board.
type Member struct {
	UserSnapshot `bson:",inline"`
	Role         Role `bson:"role" json:"role"`
}

// Board is a named collection of cards with a member list.
type Board struct {
	ID             bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Creator        UserSnapshot  `bson:"creator" json:"creator"`
	Title          string        `bson:"title" json:"title"`
	LowercaseTitle string        `bson:"lowercaseTitle" json:"-"`
	Members        []Member      `bson:"members" json:"members"`
	CreationDate   time.Time     `bson:"creationDate" json:"creationDate"`
}

// Member returns the entry for userID, if any. A user id appears at most
// once in the member list.
func (b Board) Member(userID bson.ObjectID) (Member, bool) {
	for _, m := range b.Members {
		if m.ID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// PendingInvite is the projection returned when listing boards a user has
// been invited to but not accepted.
type PendingInvite struct {
	BoardID bson.ObjectID `json:"boardId"`
	Creator UserSnapshot  `json:"creator"`
	Title   string        `json:"title"`
	Member  Member        `json:"member"`
}
