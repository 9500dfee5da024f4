package stream

import (
	"context"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"board-api/domain"
)

// Board serves the snapshot sent when an observer first connects.
type Board interface {
	List(ctx context.Context) ([]domain.Card, error)
}

type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Register wires up the stream endpoint on the given Echo instance.
func Register(e *echo.Echo, board Board, auth Authenticator, hub *Hub) {
	e.GET("/api/stream", streamBoard(board, auth, hub))
}

func streamBoard(board Board, auth Authenticator, hub *Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		// EventSource cannot set headers, so the token may arrive as a
		// query parameter instead.
		token := c.QueryParam("token")
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" && token != "" {
			authHeader = "Bearer " + token
		}
		if _, err := auth.UserIDFromAuthHeader(authHeader); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		ctx := c.Request().Context()

		// Subscribe before the snapshot so nothing published in between
		// is lost.
		_, events, cancel := hub.Subscribe()
		defer cancel()

		cards, err := board.List(ctx)
		if err != nil {
			c.Logger().Error(err)
			return err
		}
		data, err := sonic.Marshal(cards)
		if err != nil {
			c.Logger().Error(err)
			return err
		}
		if err := writeFrame(c.Response(), domain.EventCardMoved, data); err != nil {
			return nil
		}
		flusher.Flush()

		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				if err := writeFrame(c.Response(), ev.Name, ev.Payload); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func writeFrame(w io.Writer, name string, data []byte) error {
	if _, err := w.Write([]byte("event: " + name + "\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
