package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"kanban-api/domain"
)

const (
	boardCollection = "board"
	cardCollection  = "card"
	userCollection  = "user"
)

// Store provides access to the board, card and user document collections.
type Store struct {
	client *mongo.Client
	boards *mongo.Collection
	cards  *mongo.Collection
	users  *mongo.Collection
}

// New connects to MongoDB and returns a Store bound to the given database.
func New(ctx context.Context, uri, database string) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetTimeout(time.Minute)
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(database)
	return &Store{
		client: client,
		boards: db.Collection(boardCollection),
		cards:  db.Collection(cardCollection),
		users:  db.Collection(userCollection),
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func storeErr(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
}

// FindBoard reads one board document by id.
func (s *Store) FindBoard(ctx context.Context, boardID bson.ObjectID) (domain.Board, error) {
	var b domain.Board
	if err := s.boards.FindOne(ctx, bson.M{"_id": boardID}).Decode(&b); err != nil {
		return domain.Board{}, storeErr("find board", err)
	}
	return b, nil
}

// InsertBoard inserts the board and returns its generated id.
func (s *Store) InsertBoard(ctx context.Context, b domain.Board) (bson.ObjectID, error) {
	res, err := s.boards.InsertOne(ctx, b)
	if err != nil {
		return bson.ObjectID{}, storeErr("insert board", err)
	}
	id, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return bson.ObjectID{}, fmt.Errorf("insert board: %w: unexpected id type %T", domain.ErrStoreUnavailable, res.InsertedID)
	}
	return id, nil
}

// PushMember appends a member entry to the board's member list.
func (s *Store) PushMember(ctx context.Context, boardID bson.ObjectID, m domain.Member) error {
	_, err := s.boards.UpdateOne(ctx,
		bson.M{"_id": boardID},
		bson.M{"$push": bson.M{"members": m}},
	)
	if err != nil {
		return storeErr("push member", err)
	}
	return nil
}

// PullMember removes the member entry for userID from the board.
func (s *Store) PullMember(ctx context.Context, boardID, userID bson.ObjectID) error {
	_, err := s.boards.UpdateOne(ctx,
		bson.M{"_id": boardID},
		bson.M{"$pull": bson.M{"members": bson.M{"_id": userID}}},
	)
	if err != nil {
		return storeErr("pull member", err)
	}
	return nil
}

// SetMemberRole flips the role of the board's member entry for userID.
func (s *Store) SetMemberRole(ctx context.Context, boardID, userID bson.ObjectID, role domain.Role) error {
	_, err := s.boards.UpdateOne(ctx,
		bson.M{"_id": boardID, "members._id": userID},
		bson.M{"$set": bson.M{"members.$.role": role}},
	)
	if err != nil {
		return storeErr("set member role", err)
	}
	return nil
}

// FindBoardsWithMember returns every board whose member list contains userID,
// regardless of role. Callers filter by role in memory.
func (s *Store) FindBoardsWithMember(ctx context.Context, userID bson.ObjectID) ([]domain.Board, error) {
	cur, err := s.boards.Find(ctx, bson.M{"members._id": userID})
	if err != nil {
		return nil, storeErr("find boards", err)
	}
	boards := []domain.Board{}
	if err := cur.All(ctx, &boards); err != nil {
		return nil, storeErr("find boards", err)
	}
	return boards, nil
}

// DeleteBoardCascade removes the board and every card on it inside one
// transaction. Either both deletes commit or neither does.
func (s *Store) DeleteBoardCascade(ctx context.Context, boardID bson.ObjectID) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return storeErr("start session", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		if _, err := s.boards.DeleteOne(ctx, bson.M{"_id": boardID}); err != nil {
			return nil, err
		}
		if _, err := s.cards.DeleteMany(ctx, bson.M{"boardId": boardID}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return storeErr("delete board cascade", err)
	}
	return nil
}

// FindCard reads one card document by id.
func (s *Store) FindCard(ctx context.Context, cardID bson.ObjectID) (domain.Card, error) {
	var c domain.Card
	if err := s.cards.FindOne(ctx, bson.M{"_id": cardID}).Decode(&c); err != nil {
		return domain.Card{}, storeErr("find card", err)
	}
	return c, nil
}

// FindCardsByBoard returns every card on the board.
func (s *Store) FindCardsByBoard(ctx context.Context, boardID bson.ObjectID) ([]domain.Card, error) {
	cur, err := s.cards.Find(ctx, bson.M{"boardId": boardID})
	if err != nil {
		return nil, storeErr("find cards", err)
	}
	cards := []domain.Card{}
	if err := cur.All(ctx, &cards); err != nil {
		return nil, storeErr("find cards", err)
	}
	return cards, nil
}

// NextCardIndex computes the append position for a new card in the
// (board, state) lane: highest index plus one, zero for an empty lane.
func (s *Store) NextCardIndex(ctx context.Context, boardID bson.ObjectID, state domain.CardState) (int, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "index", Value: -1}}).
		SetLimit(1)
	cur, err := s.cards.Find(ctx, bson.M{"boardId": boardID, "state": state}, opts)
	if err != nil {
		return 0, storeErr("next card index", err)
	}
	var top []domain.Card
	if err := cur.All(ctx, &top); err != nil {
		return 0, storeErr("next card index", err)
	}
	if len(top) == 0 {
		return 0, nil
	}
	return top[0].Index + 1, nil
}

// InsertCard inserts the card and returns its generated id.
func (s *Store) InsertCard(ctx context.Context, c domain.Card) (bson.ObjectID, error) {
	res, err := s.cards.InsertOne(ctx, c)
	if err != nil {
		return bson.ObjectID{}, storeErr("insert card", err)
	}
	id, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return bson.ObjectID{}, fmt.Errorf("insert card: %w: unexpected id type %T", domain.ErrStoreUnavailable, res.InsertedID)
	}
	return id, nil
}

// SetCardFields applies a targeted $set on one card.
func (s *Store) SetCardFields(ctx context.Context, cardID bson.ObjectID, fields map[string]any) error {
	_, err := s.cards.UpdateOne(ctx, bson.M{"_id": cardID}, bson.M{"$set": fields})
	if err != nil {
		return storeErr("set card fields", err)
	}
	return nil
}

// PushCardItem appends value to the named array field of one card.
func (s *Store) PushCardItem(ctx context.Context, cardID bson.ObjectID, field string, value any) error {
	_, err := s.cards.UpdateOne(ctx, bson.M{"_id": cardID}, bson.M{"$push": bson.M{field: value}})
	if err != nil {
		return storeErr("push card item", err)
	}
	return nil
}

// PullCardItem removes entries matching filter from the named array field.
func (s *Store) PullCardItem(ctx context.Context, cardID bson.ObjectID, field string, filter any) error {
	_, err := s.cards.UpdateOne(ctx, bson.M{"_id": cardID}, bson.M{"$pull": bson.M{field: filter}})
	if err != nil {
		return storeErr("pull card item", err)
	}
	return nil
}

// DeleteCard removes one card document.
func (s *Store) DeleteCard(ctx context.Context, cardID bson.ObjectID) error {
	res, err := s.cards.DeleteOne(ctx, bson.M{"_id": cardID})
	if err != nil {
		return storeErr("delete card", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete card: %w", domain.ErrNotFound)
	}
	return nil
}

// BulkReorder issues one unordered bulk write setting state and index for
// every item, matched on both card id and board id so a card from another
// board is never touched. An error on one item does not block the others.
func (s *Store) BulkReorder(ctx context.Context, boardID bson.ObjectID, items []domain.ReorderItem) error {
	models := make([]mongo.WriteModel, 0, len(items))
	for _, it := range items {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": it.CardID, "boardId": boardID}).
			SetUpdate(bson.M{"$set": bson.M{"state": it.State, "index": it.Index}}))
	}
	_, err := s.cards.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return storeErr("bulk reorder", err)
	}
	return nil
}

// FindUser reads one user document projected to its snapshot fields.
func (s *Store) FindUser(ctx context.Context, userID bson.ObjectID) (domain.UserSnapshot, error) {
	var u domain.UserSnapshot
	if err := s.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&u); err != nil {
		return domain.UserSnapshot{}, storeErr("find user", err)
	}
	return u, nil
}

// FindUserByUsername resolves a user snapshot by case-insensitive username.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (domain.UserSnapshot, error) {
	var u domain.UserSnapshot
	filter := bson.M{"lowercaseUsername": strings.ToLower(username)}
	if err := s.users.FindOne(ctx, filter).Decode(&u); err != nil {
		return domain.UserSnapshot{}, storeErr("find user by username", err)
	}
	return u, nil
}
