package api

import (
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"go.mongodb.org/mongo-driver/v2/bson"

	"kanban-api/domain"
)

const requestBodyMaxSize = 1 << 20

// Register wires up all API routes on the provided Echo instance. The ws
// handler is passed in so the transport gateway stays outside this package.
func Register(e *echo.Echo, boards Boards, cards Cards, auth Authenticator, ws echo.HandlerFunc, logger *log.Logger) {
	h := &handlers{boards: boards, cards: cards, auth: auth, logger: logger}

	b := e.Group("/api/board")
	b.POST("/create", h.createBoard)
	b.DELETE("/delete/:boardId", h.deleteBoard)
	b.GET("/get-all", h.listBoards)
	b.GET("/get-all-pending-role", h.listPendingInvites)
	b.PUT("/add-user", h.addMember)
	b.POST("/remove-user", h.removeMember)
	b.POST("/change-pending-role-to-user", h.acceptPendingRole)

	cg := e.Group("/api/card")
	cg.POST("/create", h.createCard)
	cg.GET("/get-by-id/:cardId", h.getCard)
	cg.GET("/get-by-board-id/:boardId", h.listCards)
	cg.PUT("/update-title", h.updateCardTitle)
	cg.PUT("/update-description", h.updateCardDescription)
	cg.PUT("/batch-update-index-and-state", h.batchReorder)
	cg.PUT("/attach-file", h.attachFile)
	cg.PUT("/delete-file", h.deleteFile)
	cg.PUT("/post-comment/:cardId", h.postComment)
	cg.DELETE("/delete-comment/:cardId/:commentId", h.deleteComment)
	cg.PUT("/assign-user", h.assignUser)
	cg.PUT("/unassign-user", h.unassignUser)
	cg.DELETE("/delete/:cardId", h.deleteCard)

	e.GET("/ws", ws)
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
}

type handlers struct {
	boards Boards
	cards  Cards
	auth   Authenticator
	logger *log.Logger
}

// requester resolves and parses the acting user's id. The second return is
// false when a response has already been written.
func (h *handlers) requester(c echo.Context) (bson.ObjectID, bool) {
	sub, err := h.auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		_ = c.String(http.StatusUnauthorized, err.Error())
		return bson.ObjectID{}, false
	}
	id, err := bson.ObjectIDFromHex(sub)
	if err != nil {
		_ = c.String(http.StatusUnauthorized, "malformed subject")
		return bson.ObjectID{}, false
	}
	return id, true
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func (h *handlers) createBoard(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	var req createBoardRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	boardID, err := h.boards.Create(c.Request().Context(), userID, req.Title)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, boardIDResponse{BoardID: boardID.Hex()})
}

func (h *handlers) deleteBoard(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	boardID, err := parseID(c.Param("boardId"))
	if err != nil {
		return writeError(c, err)
	}
	if err := h.boards.Delete(c.Request().Context(), boardID, userID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *handlers) listBoards(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	boards, err := h.boards.ListForUser(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, boards)
}

func (h *handlers) listPendingInvites(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	invites, err := h.boards.ListPendingForUser(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, invites)
}

func (h *handlers) addMember(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	var req addMemberRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	boardID, err := parseID(req.BoardID)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.boards.AddMember(c.Request().Context(), boardID, userID, req.Username); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *handlers) removeMember(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	var req removeMemberRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	boardID, err := parseID(req.BoardID)
	if err != nil {
		return writeError(c, err)
	}
	targetID, err := parseID(req.UserID)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.boards.RemoveMember(c.Request().Context(), boardID, userID, targetID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *handlers) acceptPendingRole(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	var req boardIDRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	boardID, err := parseID(req.BoardID)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.boards.AcceptPendingRole(c.Request().Context(), boardID, userID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *handlers) createCard(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	var req createCardRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	boardID, err := parseID(req.BoardID)
	if err != nil {
		return writeError(c, err)
	}
	card, err := h.cards.Create(c.Request().Context(), userID, boardID, req.Title, req.Description, domain.CardState(req.State))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, card)
}

func (h *handlers) getCard(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	cardID, err := parseID(c.Param("cardId"))
	if err != nil {
		return writeError(c, err)
	}
	card, err := h.cards.GetByID(c.Request().Context(), userID, cardID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, card)
}

func (h *handlers) listCards(c echo.Context) error {
	ctx := c.Request().Context()
	metrics, spanCtx := newCardListMetrics(ctx, h.logger)
	if spanCtx != nil {
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
	}
	var handlerErr error
	defer func() {
		metrics.Log(c.Response().Status, handlerErr)
	}()

	authStart := time.Now()
	userID, ok := h.requester(c)
	metrics.ObserveAuth(time.Since(authStart))
	if !ok {
		metrics.SetErrorStage("auth")
		return nil
	}
	boardID, err := parseID(c.Param("boardId"))
	if err != nil {
		metrics.SetErrorStage("invalid_board_id")
		handlerErr = err
		return writeError(c, err)
	}

	fetchStart := time.Now()
	cards, err := h.cards.ListByBoard(ctx, userID, boardID)
	metrics.ObserveFetch(time.Since(fetchStart))
	if err != nil {
		metrics.SetErrorStage("fetch")
		handlerErr = err
		return writeError(c, err)
	}
	metrics.SetCardsReturned(len(cards))

	encodeStart := time.Now()
	handlerErr = c.JSON(http.StatusOK, cards)
	metrics.ObserveEncode(time.Since(encodeStart))
	if handlerErr != nil {
		metrics.SetErrorStage("encode_response")
	}
	return handlerErr
}

func (h *handlers) updateCardTitle(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	var req updateTitleRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	cardID, err := parseID(req.CardID)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.cards.UpdateTitle(c.Request().Context(), userID, cardID, req.Title); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *handlers) updateCardDescription(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	var req updateDescriptionRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	cardID, err := parseID(req.CardID)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.cards.UpdateDescription(c.Request().Context(), userID, cardID, req.Description); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *handlers) batchReorder(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	var req batchReorderRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	items := make([]domain.ReorderItem, 0, len(req.Cards))
	for _, it := range req.Cards {
		cardID, err := parseID(it.CardID)
		if err != nil {
			return writeError(c, err)
		}
		items = append(items, domain.ReorderItem{
			CardID:            cardID,
			Index:             it.Index,
			State:             domain.CardState(it.State),
			PreviousSource:    it.PreviousSource,
			DestinationSource: it.DestinationSource,
		})
	}
	if err := h.cards.BatchReorder(c.Request().Context(), userID, items); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *handlers) attachFile(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	var req attachFileRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	cardID, err := parseID(req.CardID)
	if err != nil {
		return writeError(c, err)
	}
	attachment, err := h.cards.AttachFile(c.Request().Context(), userID, cardID, req.URL)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, attachment)
}

func (h *handlers) deleteFile(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	var req deleteFileRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	cardID, err := parseID(req.CardID)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.cards.DeleteFile(c.Request().Context(), userID, cardID, req.AttachmentID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *handlers) postComment(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	cardID, err := parseID(c.Param("cardId"))
	if err != nil {
		return writeError(c, err)
	}
	var req postCommentRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	comment, err := h.cards.PostComment(c.Request().Context(), userID, cardID, req.Comment)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, comment)
}

func (h *handlers) deleteComment(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	cardID, err := parseID(c.Param("cardId"))
	if err != nil {
		return writeError(c, err)
	}
	if err := h.cards.DeleteComment(c.Request().Context(), userID, cardID, c.Param("commentId")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *handlers) assignUser(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	var req cardUserRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	cardID, err := parseID(req.CardID)
	if err != nil {
		return writeError(c, err)
	}
	targetID, err := parseID(req.UserID)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.cards.AssignUser(c.Request().Context(), userID, cardID, targetID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *handlers) unassignUser(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	var req cardUserRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	cardID, err := parseID(req.CardID)
	if err != nil {
		return writeError(c, err)
	}
	targetID, err := parseID(req.UserID)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.cards.UnassignUser(c.Request().Context(), userID, cardID, targetID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *handlers) deleteCard(c echo.Context) error {
	userID, ok := h.requester(c)
	if !ok {
		return nil
	}
	cardID, err := parseID(c.Param("cardId"))
	if err != nil {
		return writeError(c, err)
	}
	if err := h.cards.Delete(c.Request().Context(), userID, cardID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusOK)
}
