package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"aura/internal/types"
)

type stubNegotiator struct {
	dec     types.Decision
	err     error
	lastSig types.Signal
}

func (s *stubNegotiator) Execute(_ context.Context, sig types.Signal) (types.Decision, error) {
	s.lastSig = sig
	return s.dec, s.err
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/negotiate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNegotiate_Success(t *testing.T) {
	stub := &stubNegotiator{dec: types.Decision{
		Status:       types.StatusAccepted,
		FinalPrice:   60,
		SessionToken: "sess_req-1",
	}}
	h := New(stub, zap.NewNop()).Router()

	rec := post(t, h, `{"request_id":"req-1","item_id":"widget-001","bid_amount":60}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var dec types.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dec))
	assert.Equal(t, types.StatusAccepted, dec.Status)
	assert.Equal(t, 60.0, dec.FinalPrice)
	assert.Equal(t, "req-1", stub.lastSig.RequestID)
}

func TestNegotiate_AssignsRequestID(t *testing.T) {
	stub := &stubNegotiator{dec: types.Decision{Status: types.StatusRejected}}
	h := New(stub, zap.NewNop()).Router()

	rec := post(t, h, `{"item_id":"widget-001","bid_amount":30}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, stub.lastSig.RequestID)
}

func TestNegotiate_MalformedBody(t *testing.T) {
	h := New(&stubNegotiator{}, zap.NewNop()).Router()

	rec := post(t, h, `{"bid_amount": "not a number"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNegotiate_ErrorMapping(t *testing.T) {
	t.Run("invalid input is 400", func(t *testing.T) {
		h := New(&stubNegotiator{err: types.ErrInvalidInput}, zap.NewNop()).Router()
		rec := post(t, h, `{"item_id":"w","bid_amount":-1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown item is 404", func(t *testing.T) {
		h := New(&stubNegotiator{err: types.ErrItemNotFound}, zap.NewNop()).Router()
		rec := post(t, h, `{"item_id":"nope","bid_amount":10}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("warning with decision is 200", func(t *testing.T) {
		stub := &stubNegotiator{
			dec: types.Decision{Status: types.StatusAccepted, FinalPrice: 60},
			err: types.ErrPersistence,
		}
		h := New(stub, zap.NewNop()).Router()
		rec := post(t, h, `{"item_id":"w","bid_amount":60}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var dec types.Decision
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dec))
		assert.Equal(t, types.StatusAccepted, dec.Status)
	})

	t.Run("error without decision is 500", func(t *testing.T) {
		h := New(&stubNegotiator{err: types.ErrPersistence}, zap.NewNop()).Router()
		rec := post(t, h, `{"item_id":"w","bid_amount":60}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "persistence", "internal detail must not leak")
	})
}

func TestNegotiate_MethodNotAllowed(t *testing.T) {
	h := New(&stubNegotiator{}, zap.NewNop()).Router()

	req := httptest.NewRequest(http.MethodGet, "/negotiate", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := New(&stubNegotiator{}, zap.NewNop()).Router()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
