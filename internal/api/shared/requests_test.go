package shared

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Name  string `json:"name"  validate:"required"`
	Count int    `json:"count" validate:"gte=1,lte=10"`
}

type selfValidating struct {
	Valid bool `json:"valid"`
}

func (s selfValidating) Validate() error {
	if !s.Valid {
		return errors.New("not valid")
	}
	return nil
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
		anyErr  bool
	}{
		{name: "valid", body: `{"name":"a","count":2}`},
		{name: "empty", body: ``, wantErr: ErrEmptyBody},
		{name: "malformed", body: `{"name":`, anyErr: true},
		{name: "trailing data", body: `{"name":"a"} {"name":"b"}`, anyErr: true},
		{name: "unknown fields ignored", body: `{"name":"a","extra":true}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var v sampleRequest
			err := DecodeJSON(req, &v)
			switch {
			case tc.wantErr != nil:
				assert.ErrorIs(t, err, tc.wantErr)
			case tc.anyErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, "a", v.Name)
			}
		})
	}
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(sampleRequest{Name: "a", Count: 5}))
	assert.Error(t, ValidateRequest(sampleRequest{Count: 5}))
	assert.Error(t, ValidateRequest(sampleRequest{Name: "a", Count: 11}))

	assert.NoError(t, ValidateRequest(selfValidating{Valid: true}))
	assert.EqualError(t, ValidateRequest(selfValidating{}), "not valid")
}
