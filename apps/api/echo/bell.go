package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/zerlake/thesisai-philippines-sub009/core/notification"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type bellAPI struct {
	*server
}

func registerBellAPI(group *echo.Group, s *server) {
	api := &bellAPI{server: s}
	group.GET("", api.snapshot)
	group.POST("/read-all", api.readAll)
	group.GET("/ws", api.watch)
}

func (api *bellAPI) newBell(stream notification.Stream) *notification.Bell {
	return notification.NewBell(api.NotificationRepo, stream, api.Logger, notification.Options{Clock: api.Clock})
}

// mount returns a bell mounted for the authenticated user.
func (api *bellAPI) mount(ctx echo.Context, stream notification.Stream) (*notification.Bell, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return nil, err
	}
	bell := api.newBell(stream)
	if err = bell.Mount(ctx.Request().Context(), claims.Subject); err != nil {
		bell.Unmount()
		return nil, errors.Wrap(err, "mounting bell")
	}
	return bell, nil
}

func (api *bellAPI) snapshot(ctx echo.Context) error {
	bell, err := api.mount(ctx, nil)
	if err != nil {
		return err
	}
	defer bell.Unmount()
	return ctx.JSON(http.StatusOK, bell.Snapshot())
}

func (api *bellAPI) readAll(ctx echo.Context) error {
	bell, err := api.mount(ctx, nil)
	if err != nil {
		return err
	}
	defer bell.Unmount()

	if err = bell.MarkAllAsRead(ctx.Request().Context()); err != nil {
		return errors.Wrap(err, "marking bell items read")
	}
	return ctx.JSON(http.StatusOK, bell.Snapshot())
}

// watch pushes the bell snapshot over a websocket on every change, until the client goes away.
func (api *bellAPI) watch(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // Upgrade already replied
	}
	defer conn.Close()

	wsCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// only the latest snapshot matters to the client
	updates := make(chan notification.Snapshot, 1)
	push := func(snap notification.Snapshot) {
		for {
			select {
			case updates <- snap:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	}

	bell := api.newBell(api.Stream)
	remove := bell.OnChange(push)
	defer remove()
	defer bell.Unmount()

	if err = bell.Mount(wsCtx, claims.Subject); err != nil {
		api.Logger.Warn("bell: mounting", errors.Wrap(err, claims.Subject))
	}
	push(bell.Snapshot())

	if interval := api.Conf.Bell.PollInterval; interval > 0 {
		go bell.Poll(wsCtx, interval)
	}
	go api.readPump(conn, cancel)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-wsCtx.Done():
			return nil
		case snap := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err = conn.WriteJSON(snap); err != nil {
				return nil
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err = conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

// readPump discards client messages and cancels once the connection is closed.
func (api *bellAPI) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
