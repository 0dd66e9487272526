package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/zerlake/thesisai-philippines-sub009/core"
	"github.com/zerlake/thesisai-philippines-sub009/core/apierr"
	"github.com/zerlake/thesisai-philippines-sub009/core/personalization"
)

// Error codes of the JSON error bodies.
const (
	codeAuthRequired    = "AUTH_REQUIRED"
	codeValidationError = "VALIDATION_ERROR"
	codeDBError         = "DB_ERROR"
	codeInternalError   = "INTERNAL_ERROR"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, echo.Map{"error": "Unauthorized", "code": codeAuthRequired})
	errUnknownWidget = echo.NewHTTPError(http.StatusBadRequest, echo.Map{
		"error":   "Validation error",
		"code":    codeValidationError,
		"details": echo.Map{"widget": "unknown"},
	})
)

func errInvalidWidgetData(errs []string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, echo.Map{
		"error":  "Validation error",
		"code":   codeValidationError,
		"errors": errs,
	})
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing || origErr.Code == http.StatusUnauthorized {
				code = http.StatusUnauthorized
				message = errUnauthorized.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = echo.Map{"error": "Validation error", "code": codeValidationError, "fields": fldErrs}
		case *core.ValidationError:
			code = http.StatusBadRequest
			if len(origErr.Fields) > 0 {
				message = echo.Map{"error": "Validation error", "code": codeValidationError, "fields": origErr.FieldMap()}
			} else {
				message = origErr.Error()
			}
		case *apierr.AppError:
			code = origErr.Status()
			message = echo.Map{"error": origErr.Error(), "kind": origErr.Kind}
		case *personalization.APIError:
			code = origErr.Status
			message = origErr.Message
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = echo.Map{"error": msg, "code": codeInternalError}

			args := []interface{}{errors.Wrap(err, msg)}
			if person, ok := contextPerson(ctx); ok {
				args = append(args, person)
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
