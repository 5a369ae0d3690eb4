package realtime

import (
	"errors"
	"io"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanban-api/domain"
)

type recordedEvent struct {
	event   string
	payload any
}

type recordingConn struct {
	events []recordedEvent
	err    error
}

func (c *recordingConn) Send(event string, payload any) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, recordedEvent{event: event, payload: payload})
	return nil
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestCardsChangedReachesBoardViewers(t *testing.T) {
	reg := NewRegistry(quietLogger())
	viewer := &recordingConn{}
	elsewhere := &recordingConn{}
	reg.JoinBoard(viewer, "u1", "b1")
	reg.JoinBoard(elsewhere, "u2", "b2")

	reg.CardsChanged("b1", "actor")

	require.Len(t, viewer.events, 1)
	assert.Equal(t, "b1_UPDATE", viewer.events[0].event)
	assert.Equal(t, cardsChangedPayload{Sender: "actor"}, viewer.events[0].payload)
	assert.Empty(t, elsewhere.events, "viewers of other boards must not receive the event")
}

func TestCardChangedCarriesSection(t *testing.T) {
	reg := NewRegistry(quietLogger())
	viewer := &recordingConn{}
	reg.JoinBoard(viewer, "u1", "b1")

	reg.CardChanged("b1", "c9", domain.SectionComments, "actor")

	require.Len(t, viewer.events, 1)
	assert.Equal(t, "c9_UPDATE", viewer.events[0].event)
	assert.Equal(t, cardChangedPayload{Sender: "actor", Section: domain.SectionComments}, viewer.events[0].payload)
}

func TestJoinBoardIsIdempotent(t *testing.T) {
	reg := NewRegistry(quietLogger())
	conn := &recordingConn{}
	reg.JoinBoard(conn, "u1", "b1")
	reg.JoinBoard(conn, "u1", "b1")

	reg.CardsChanged("b1", "actor")
	assert.Len(t, conn.events, 1, "duplicate join must not duplicate deliveries")
}

func TestJoinBoardMovesViewerBetweenBoards(t *testing.T) {
	reg := NewRegistry(quietLogger())
	conn := &recordingConn{}
	reg.JoinBoard(conn, "u1", "b1")
	reg.JoinBoard(conn, "u1", "b2")

	reg.CardsChanged("b1", "actor")
	assert.Empty(t, conn.events, "viewer left b1 and must not hear its events")

	reg.CardsChanged("b2", "actor")
	require.Len(t, conn.events, 1)
	assert.Equal(t, "b2_UPDATE", conn.events[0].event)
}

func TestDisconnectStopsDelivery(t *testing.T) {
	reg := NewRegistry(quietLogger())
	conn := &recordingConn{}
	reg.JoinBoard(conn, "u1", "b1")
	reg.Disconnect("u1")
	reg.Disconnect("u1") // second disconnect is a no-op

	reg.CardsChanged("b1", "actor")
	assert.Empty(t, conn.events)

	reg.mu.Lock()
	defer reg.mu.Unlock()
	assert.Empty(t, reg.boards, "empty boards must be dropped")
	assert.Empty(t, reg.userBoard)
}

func TestBroadcastToUnwatchedBoardIsNoop(t *testing.T) {
	reg := NewRegistry(quietLogger())
	assert.NotPanics(t, func() {
		reg.CardsChanged("nobody-home", "actor")
	})
}

func TestFailedDeliveryDoesNotAffectOthers(t *testing.T) {
	reg := NewRegistry(quietLogger())
	broken := &recordingConn{err: errors.New("connection reset")}
	healthy := &recordingConn{}
	reg.JoinBoard(broken, "u1", "b1")
	reg.JoinBoard(healthy, "u2", "b1")

	reg.CardsChanged("b1", "actor")

	assert.Empty(t, broken.events)
	require.Len(t, healthy.events, 1)
	assert.Equal(t, "b1_UPDATE", healthy.events[0].event)
}
