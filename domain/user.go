package domain

import "go.mongodb.org/mongo-driver/v2/bson"

// UserSnapshot is the denormalized copy of a user embedded into board and
// card documents at mutation time. A later username change does not update
// snapshots already written.
type UserSnapshot struct {
	ID       bson.ObjectID `bson:"_id" json:"id"`
	Username string        `bson:"username" json:"username"`
}
