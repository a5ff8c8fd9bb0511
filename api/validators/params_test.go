package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
	"github.com/angelmondragon/tabkeeper-backend/pkg/pagination"
)

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+id.String(), nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("batchId", id.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := ParseUUIDParam(req, "batchId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(req, "paymentId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseOptionalUUIDQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/timeline", nil)
	got, err := ParseOptionalUUIDQuery(req, "user_id")
	require.NoError(t, err)
	assert.Nil(t, got)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/timeline?user_id=nope", nil)
	_, err = ParseOptionalUUIDQuery(req, "user_id")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseUUIDQuery(httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil), "product_id")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("amount", " 4.50 ")
	require.NoError(t, err)
	assert.Equal(t, "4.5", v.String())

	_, err = ParseAmount("amount", "four")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParsePageParams(t *testing.T) {
	cursor := pagination.EncodeCursor(pagination.Cursor{CreatedAt: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC), ID: uuid.New()})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments?limit=10&cursor="+url.QueryEscape(cursor), nil)
	limit, parsed, err := ParsePageParams(req)
	require.NoError(t, err)
	assert.Equal(t, 10, limit)
	require.NotNil(t, parsed)

	_, _, err = ParsePageParams(httptest.NewRequest(http.MethodGet, "/api/v1/payments?limit=1000", nil))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	type payload struct {
		UserID   string `json:"user_id" validate:"required,uuid"`
		Quantity int    `json:"quantity" validate:"required,min=1"`
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchases", strings.NewReader(`{"user_id":"x","quantity":0}`))
	var dest payload
	err := DecodeJSONBody(req, &dest)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "user_id")
	assert.Contains(t, details, "quantity")

	req = httptest.NewRequest(http.MethodPost, "/api/v1/purchases", strings.NewReader(`{"unknown":1}`))
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &dest), pkgerrors.CodeValidation))
}
