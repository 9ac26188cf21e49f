package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Query string `json:"query"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		allowEmpty bool
		wantOK     bool
		wantQuery  string
	}{
		{"valid", `{"query":"대출"}`, false, true, "대출"},
		{"empty allowed", ``, true, true, ""},
		{"empty rejected", ``, false, false, ""},
		{"malformed", `{"query":`, false, false, ""},
		{"trailing data", `{"query":"a"}{"query":"b"}`, false, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var dst payload
			ok := Decode(rec, req, &dst, tt.allowEmpty)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantQuery, dst.Query)
				return
			}
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "bad_request", resp.Code)
			assert.Contains(t, resp.Error, "invalid JSON")
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	rec := httptest.NewRecorder()
	Created(rec, map[string]string{"id": "x"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"x"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	InternalError(rec, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("db password leaked"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}
