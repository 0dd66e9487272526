package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zerlake/thesisai-philippines-sub009/core/personalization"
)

func registerPersonalizationAPI(group *echo.Group, client *personalization.Client) {
	group.GET("/health", personalizationHealth(client))
}

func personalizationHealth(client *personalization.Client) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if client.HealthCheck(ctx.Request().Context()) {
			return ctx.JSON(http.StatusOK, echo.Map{"healthy": true})
		}
		return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"healthy": false})
	}
}
