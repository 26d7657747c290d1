// Package apierror defines the error taxonomy of the HTTP API and how each
// kind is rendered to clients.
//
// Client errors carry a stable machine-readable code and a description and
// are returned verbatim. Server errors are logged in full and reach the
// client only as their code; errors coming from a dependency (database,
// cipher, OS) are further downgraded to the generic internal code so upstream
// error text never leaks.
package apierror

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeFetchUpdaterRelease         Code = "fetch_updater_release"
	CodeFetchGameRelease            Code = "fetch_game_release"
	CodeNicknameEmpty               Code = "nickname_empty"
	CodeNicknameTooLong             Code = "nickname_toolong"
	CodeNicknameForbiddenCharacters Code = "nickname_forbidden_characters"
	CodeAuthenticationInvalidToken  Code = "authentication_invalid_token"
	CodeEmptyToken                  Code = "empty_token"
	CodeTokenGenerationFailed       Code = "token_generation_failed"
	CodeInvalidRequest              Code = "invalid_request"
	CodeInternal                    Code = "internal"
)

// Cause is the subsystem a server error originates from.
type Cause string

const (
	CauseDatabase Cause = "database"
	CauseInternal Cause = "internal"
)

// Kind selects the HTTP status and body shape of an error.
type Kind int

const (
	KindServerError Kind = iota + 1
	KindInvalidRequest
	KindPlatformNotFound
)

// InternalErrorDesc is the only description clients see for dependency
// failures.
const InternalErrorDesc = "an internal error occured, please retry later."

// Error is an API error.
type Error struct {
	Kind  Kind
	Cause Cause
	Code  Code
	Desc  string
	// Err is the dependency error behind a server error, if any. It is
	// logged, never sent.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServerError:
		if e.Err != nil {
			return fmt.Sprintf("%s error (%s): %v", e.Cause, e.Code, e.Err)
		}
		return fmt.Sprintf("%s error: %s", e.Cause, e.Code)
	case KindPlatformNotFound:
		return e.Desc
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Desc)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidRequest reports a client mistake.
func InvalidRequest(code Code, desc string) *Error {
	return &Error{Kind: KindInvalidRequest, Code: code, Desc: desc}
}

// PlatformNotFound reports that no build exists for the requested platform.
func PlatformNotFound(desc string) *Error {
	return &Error{Kind: KindPlatformNotFound, Desc: desc}
}

// Server reports a server failure whose code is meaningful to clients.
// err, which may be nil, is only logged.
func Server(cause Cause, code Code, err error) *Error {
	return &Error{Kind: KindServerError, Cause: cause, Code: code, Err: err}
}

// FromDatabase wraps a database failure.
func FromDatabase(err error) *Error {
	return &Error{Kind: KindServerError, Cause: CauseDatabase, Err: err}
}

// FromInternal wraps a failure of the process itself or of a library.
func FromInternal(err error) *Error {
	return &Error{Kind: KindServerError, Cause: CauseInternal, Err: err}
}

type requestErrorBody struct {
	Code Code   `json:"err_code"`
	Desc string `json:"err_desc"`
}

type platformErrorBody struct {
	Desc string `json:"err_desc"`
}

// Respond renders err and aborts the request. Errors that are not *Error are
// treated as internal failures.
func Respond(c *gin.Context, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = FromInternal(err)
	}

	switch apiErr.Kind {
	case KindInvalidRequest:
		slog.Debug("invalid request", "path", c.FullPath(), "err_code", apiErr.Code, "err_desc", apiErr.Desc)
		c.AbortWithStatusJSON(http.StatusBadRequest, requestErrorBody{Code: apiErr.Code, Desc: apiErr.Desc})

	case KindPlatformNotFound:
		slog.Info("platform not found", "path", c.FullPath(), "err_desc", apiErr.Desc)
		c.AbortWithStatusJSON(http.StatusNotFound, platformErrorBody{Desc: apiErr.Desc})

	default:
		attrs := []any{"path", c.FullPath(), "cause", apiErr.Cause}
		if apiErr.Code != "" {
			attrs = append(attrs, "err_code", apiErr.Code)
		}
		if apiErr.Err != nil {
			attrs = append(attrs, "error", apiErr.Err.Error())
		}
		slog.Error("server error", attrs...)

		body := requestErrorBody{Code: CodeInternal, Desc: InternalErrorDesc}
		if apiErr.Code != "" && apiErr.Code != CodeInternal {
			body = requestErrorBody{Code: apiErr.Code, Desc: string(apiErr.Code)}
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
	}
}
