package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

const requestBodyMaxSize = 1 << 20

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, board Board, creds CredentialVerifier, sessions *Sessions, logger *log.Logger) {
	e.POST("/api/auth/login", login(creds, sessions))
	e.GET("/api/cards", getCards(board, sessions))
	e.POST("/api/cards", createCard(board, sessions))
	e.PUT("/api/cards/:id", updateCard(board, sessions))
	e.PATCH("/api/cards/:id/move", moveCard(board, sessions, logger))
	e.GET("/healthz", healthz())
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Identity
	Token string `json:"token"`
}

type createCardRequest struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      domain.Status `json:"status"`
}

type updateCardRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type moveCardRequest struct {
	Status domain.Status `json:"status"`
	Order  *int          `json:"order"`
}

type boardResponse struct {
	Cards []domain.Card `json:"cards"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func login(creds CredentialVerifier, sessions *Sessions) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		identity, err := creds.Verify(req.Username, req.Password)
		if err != nil {
			return c.String(http.StatusUnauthorized, "invalid credentials")
		}
		token, err := sessions.Issue(identity)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to issue session")
		}
		return c.JSON(http.StatusOK, loginResponse{Identity: identity, Token: token})
	}
}

func getCards(board Board, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		cards, err := board.List(ctx)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, boardResponse{Cards: cards})
	}
}

func createCard(board Board, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req createCardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		card, err := board.Create(ctx, domain.CardFields{
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
		})
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusCreated, card)
	}
}

func updateCard(board Board, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req updateCardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		card, err := board.Update(ctx, c.Param("id"), domain.CardUpdate{
			Title:       req.Title,
			Description: req.Description,
		})
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(http.StatusOK, card)
	}
}

func moveCard(board Board, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newMoveRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		var req moveCardRequest
		if decodeErr := decodeBody(c, &req); decodeErr != nil {
			metrics.SetErrorStage("invalid_body")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}
		if req.Order == nil {
			metrics.SetErrorStage("missing_order")
			err = c.String(http.StatusBadRequest, "missing order")
			return err
		}

		moveStart := time.Now()
		cards, moveErr := board.Move(ctx, c.Param("id"), req.Status, *req.Order)
		metrics.ObserveMove(time.Since(moveStart))
		if moveErr != nil {
			metrics.SetErrorStage(errorStage(moveErr))
			err = writeDomainError(c, moveErr)
			return err
		}
		metrics.SetCardsReturned(len(cards))

		err = c.JSON(http.StatusOK, boardResponse{Cards: cards})
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeDomainError(c echo.Context, err error) error {
	var ve domain.ValidationError
	var nf domain.NotFoundError
	var conflict domain.ConflictError
	switch {
	case errors.As(err, &ve):
		return c.String(http.StatusBadRequest, ve.Error())
	case errors.As(err, &nf):
		return c.String(http.StatusNotFound, nf.Error())
	case errors.As(err, &conflict):
		return c.String(http.StatusConflict, conflict.Error())
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, err.Error())
}

func errorStage(err error) string {
	var ve domain.ValidationError
	var nf domain.NotFoundError
	var conflict domain.ConflictError
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &conflict):
		return "conflict"
	}
	return "storage"
}
