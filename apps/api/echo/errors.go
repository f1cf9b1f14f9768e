package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/content"
	"github.com/trezcool/codedays/core/coursework"
	"github.com/trezcool/codedays/core/user"
)

type errorPage struct {
	Code    int
	Status  string
	Message string
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler rendering our error page.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message string

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			if msg, ok := origErr.Message.(string); ok {
				message = msg
			}
		default:
			switch origErr {
			case user.ErrNotFound, content.ErrNotFound, coursework.ErrNotFound:
				code = http.StatusNotFound
				message = errNotFound.Message.(string)
			default: // any other error is a server error
				code = http.StatusInternalServerError
				message = "Something went wrong on our side. Please try again later."

				args := []interface{}{errors.Wrap(err, "request failed"), map[string]interface{}{
					"method": ctx.Request().Method,
					"path":   ctx.Request().URL.Path,
				}}
				if usr, ok := getContextUser(ctx); ok {
					args = append(args, usr)
				}
				logger.Error(http.StatusText(code), args...)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if message == "" {
			message = http.StatusText(code)
		}

		// Send response
		if ctx.Response().Committed {
			return
		}
		if ctx.Request().Method == http.MethodHead { // Issue #608
			err = ctx.NoContent(code)
		} else {
			err = ctx.Render(code, "error", &page{
				Title: http.StatusText(code),
				Data:  errorPage{Code: code, Status: http.StatusText(code), Message: message},
			})
			if err != nil {
				err = ctx.String(code, message)
			}
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}
