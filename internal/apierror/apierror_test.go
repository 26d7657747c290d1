package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func respond(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Respond(c, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestRespond_InvalidRequest(t *testing.T) {
	w, body := respond(t, InvalidRequest(CodeNicknameEmpty, "Nickname cannot be empty"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]string{
		"err_code": "nickname_empty",
		"err_desc": "Nickname cannot be empty",
	}, body)
}

func TestRespond_PlatformNotFound(t *testing.T) {
	w, body := respond(t, PlatformNotFound("no updater or game binary release found for platform amiga"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, map[string]string{
		"err_desc": "no updater or game binary release found for platform amiga",
	}, body)
}

func TestRespond_ServerErrorWithCode(t *testing.T) {
	w, body := respond(t, Server(CauseInternal, CodeFetchGameRelease, errors.New("github: 502 bad gateway")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, map[string]string{
		"err_code": "fetch_game_release",
		"err_desc": "fetch_game_release",
	}, body)
}

func TestRespond_DependencyErrorsAreDowngraded(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"database", FromDatabase(errors.New(`pq: relation "players" does not exist`))},
		{"internal", FromInternal(errors.New("entropy source failed"))},
		{"plain error", errors.New("something unexpected")},
		{"explicit internal code", Server(CauseInternal, CodeInternal, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := respond(t, tt.err)

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, "internal", body["err_code"])
			assert.Equal(t, InternalErrorDesc, body["err_desc"])
			assert.NotContains(t, w.Body.String(), "players")
			assert.NotContains(t, w.Body.String(), "entropy")
		})
	}
}

func TestRespond_WrappedAPIError(t *testing.T) {
	err := fmt.Errorf("handler: %w", InvalidRequest(CodeEmptyToken, "empty token"))
	w, body := respond(t, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "empty_token", body["err_code"])
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := FromDatabase(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CauseDatabase, err.Cause)
	assert.Contains(t, err.Error(), "connection refused")
}
