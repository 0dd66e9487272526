package echoapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/zerlake/thesisai-philippines-sub009/core/widget"
)

type (
	widgetResponse struct {
		Success   bool            `json:"success"`
		WidgetID  string          `json:"widgetId"`
		Data      json.RawMessage `json:"data"`
		Cached    bool            `json:"cached"`
		Valid     *bool           `json:"valid,omitempty"`
		Errors    []string        `json:"errors,omitempty"`
		Timestamp time.Time       `json:"timestamp"`
	}

	widgetUpdateRequest struct {
		Data     json.RawMessage `json:"data"`
		Settings json.RawMessage `json:"settings"`
	}

	widgetUpdateResponse struct {
		Success   bool            `json:"success"`
		WidgetID  string          `json:"widgetId"`
		Data      json.RawMessage `json:"data,omitempty"`
		Settings  json.RawMessage `json:"settings,omitempty"`
		Timestamp time.Time       `json:"timestamp"`
	}

	widgetClearResponse struct {
		Success   bool      `json:"success"`
		WidgetID  string    `json:"widgetId"`
		Cleared   bool      `json:"cleared"`
		Timestamp time.Time `json:"timestamp"`
	}
)

type widgetAPI struct {
	*server
}

func registerWidgetAPI(group *echo.Group, s *server) {
	api := &widgetAPI{server: s}
	group.GET("/:widgetId", api.get)
	group.POST("/:widgetId", api.update)
	group.DELETE("/:widgetId", api.clear)
}

func (api *widgetAPI) ttl() time.Duration {
	if ttl := api.Conf.Dashboard.SnapshotTTL; ttl > 0 {
		return ttl
	}
	return widget.SnapshotTTL
}

// widgetParams returns the authenticated user and the requested widget id.
func (api *widgetAPI) widgetParams(ctx echo.Context) (string, string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", "", err
	}
	widgetID := ctx.Param("widgetId")
	if !api.Registry.Has(widgetID) {
		return "", "", errUnknownWidget
	}
	return claims.Subject, widgetID, nil
}

func (api *widgetAPI) get(ctx echo.Context) error {
	userID, widgetID, err := api.widgetParams(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	now := api.Clock.Now().UTC()

	if ctx.QueryParam("refresh") != "true" {
		snap, err := api.WidgetStore.GetSnapshot(reqCtx, userID, widgetID)
		switch {
		case err == nil && snap.Fresh(now):
			return ctx.JSON(http.StatusOK, widgetResponse{
				Success:   true,
				WidgetID:  widgetID,
				Data:      snap.Data,
				Cached:    true,
				Timestamp: now,
			})
		case err != nil && !errors.Is(err, widget.ErrNotFound):
			api.Logger.Warn("reading widget snapshot", errors.Wrap(err, widgetID))
		}
	}

	data, err := api.WidgetSource(reqCtx, userID, widgetID)
	if err != nil {
		return errors.Wrapf(err, "producing %s data", widgetID)
	}

	res := api.Registry.Validate(widgetID, data)
	payload := res.Data
	if !res.Valid {
		payload = api.Registry.Coerce(widgetID, data)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encoding %s data", widgetID)
	}

	expiresAt := now.Add(api.ttl())
	snap := &widget.Snapshot{
		UserID:    userID,
		WidgetID:  widgetID,
		Data:      raw,
		ExpiresAt: &expiresAt,
		UpdatedAt: now,
	}
	if err = api.WidgetStore.SaveSnapshot(reqCtx, snap); err != nil {
		api.Logger.Error("saving widget snapshot", errors.Wrap(err, widgetID))
	}

	valid := res.Valid
	return ctx.JSON(http.StatusOK, widgetResponse{
		Success:   true,
		WidgetID:  widgetID,
		Data:      raw,
		Valid:     &valid,
		Errors:    res.Errors,
		Timestamp: now,
	})
}

func (api *widgetAPI) update(ctx echo.Context) error {
	userID, widgetID, err := api.widgetParams(ctx)
	if err != nil {
		return err
	}
	var body widgetUpdateRequest
	if err = ctx.Bind(&body); err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	now := api.Clock.Now().UTC()

	var data json.RawMessage
	if len(body.Data) > 0 && string(body.Data) != "null" {
		res := api.Registry.Validate(widgetID, []byte(body.Data))
		if !res.Valid {
			return errInvalidWidgetData(res.Errors)
		}
		if data, err = json.Marshal(res.Data); err != nil {
			return errors.Wrapf(err, "encoding %s data", widgetID)
		}
	}

	if len(body.Settings) > 0 && string(body.Settings) != "null" {
		settings := &widget.Settings{UserID: userID, WidgetID: widgetID, Settings: body.Settings, UpdatedAt: now}
		if err = api.WidgetStore.SaveSettings(reqCtx, settings); err != nil {
			api.Logger.Error("saving widget settings", errors.Wrap(err, widgetID))
			return echo.NewHTTPError(http.StatusInternalServerError, map[string]string{
				"error": "Failed to save settings",
				"code":  codeDBError,
			})
		}
	}

	if data != nil {
		expiresAt := now.Add(api.ttl())
		snap := &widget.Snapshot{UserID: userID, WidgetID: widgetID, Data: data, ExpiresAt: &expiresAt, UpdatedAt: now}
		if err = api.WidgetStore.SaveSnapshot(reqCtx, snap); err != nil {
			api.Logger.Error("saving widget snapshot", errors.Wrap(err, widgetID))
		}
	}

	return ctx.JSON(http.StatusOK, widgetUpdateResponse{
		Success:   true,
		WidgetID:  widgetID,
		Data:      data,
		Settings:  body.Settings,
		Timestamp: now,
	})
}

func (api *widgetAPI) clear(ctx echo.Context) error {
	userID, widgetID, err := api.widgetParams(ctx)
	if err != nil {
		return err
	}
	if err = api.WidgetStore.DeleteSnapshot(ctx.Request().Context(), userID, widgetID); err != nil {
		return errors.Wrapf(err, "clearing %s snapshot", widgetID)
	}
	return ctx.JSON(http.StatusOK, widgetClearResponse{
		Success:   true,
		WidgetID:  widgetID,
		Cleared:   true,
		Timestamp: api.Clock.Now().UTC(),
	})
}
