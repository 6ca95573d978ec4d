package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

var (
	errMissingToken = core.NewError(core.KindUnauthenticated, "Access token required")
	errRateLimited  = core.NewError(core.KindRateLimited, "Too many requests, slow down")

	kindStatus = map[core.Kind]int{
		core.KindDuplicateUser:      http.StatusBadRequest,
		core.KindInvalidCredentials: http.StatusUnauthorized,
		core.KindUnauthenticated:    http.StatusUnauthorized,
		core.KindInvalidToken:       http.StatusForbidden,
		core.KindNotFound:           http.StatusNotFound,
		core.KindForbidden:          http.StatusForbidden,
		core.KindCourseNotPublished: http.StatusBadRequest,
		core.KindAlreadyEnrolled:    http.StatusBadRequest,
		core.KindValidation:         http.StatusBadRequest,
		core.KindRateLimited:        http.StatusTooManyRequests,
	}
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Kind   core.Kind         `json:"kind,omitempty"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var resp ErrorResponse

		switch origErr := errors.Cause(err).(type) {
		case *core.Error:
			code = kindStatus[origErr.Kind]
			resp = ErrorResponse{Kind: origErr.Kind, Error: origErr.Message}
		case *echo.BindingError:
			code = http.StatusBadRequest
			resp = ErrorResponse{
				Kind:   core.KindValidation,
				Error:  "invalid input",
				Fields: map[string]string{origErr.Field: "invalid value"},
			}
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			if msg, ok := origErr.Message.(string); ok {
				resp.Error = msg
			} else {
				resp.Error = http.StatusText(code)
			}
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[fieldPath(vErr)] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			resp = ErrorResponse{Kind: core.KindValidation, Error: "invalid input", Fields: fldErrs}
		case *core.ValidationError:
			code = http.StatusBadRequest
			resp = ErrorResponse{Kind: core.KindValidation, Error: origErr.Error()}
			if origErr.Fields != nil {
				resp.Fields = make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					resp.Fields[fErr.Field] = fErr.Error
				}
			}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			resp.Error = msg

			var usr user.User
			if p, pErr := getContextPrincipal(ctx); pErr == nil {
				usr.ID = p.UserID
				usr.Role = p.Role
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			if ctx.Echo().Debug {
				resp.Error = err.Error()
			}

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}
		if code == 0 {
			code = http.StatusInternalServerError
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// fieldPath returns the JSON path of the field without the top struct name, e.g. "modules[0].title".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	for i := 0; i < len(ns); i++ {
		if ns[i] == '.' {
			return ns[i+1:]
		}
	}
	return fe.Field()
}
