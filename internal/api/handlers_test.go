package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cobiozo/essential-gem-clone-sub008/internal/mailer"
)

type stubDispatcher struct {
	gotReq mailer.Request
	batch  *mailer.Batch
	err    error
}

func (s *stubDispatcher) Dispatch(ctx context.Context, req mailer.Request) (*mailer.Batch, error) {
	s.gotReq = req
	return s.batch, s.err
}

type stubProgress struct {
	snap *mailer.ProgressSnapshot
}

func (s *stubProgress) Snapshot(ctx context.Context, batchID uuid.UUID) (*mailer.ProgressSnapshot, error) {
	return s.snap, nil
}

func postDispatch(t *testing.T, h *Handlers, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/mailing/dispatch", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)
	return w
}

func TestHandleDispatchCustomContent(t *testing.T) {
	batch := &mailer.Batch{ID: uuid.New(), SentCount: 3, TotalCount: 3}
	batch.Attempts = []mailer.Attempt{
		{Email: "a@b.c", Status: mailer.StatusSent},
		{Email: "d@e.f", Status: mailer.StatusSent},
		{Email: "g@h.i", Status: mailer.StatusSent},
	}
	stub := &stubDispatcher{batch: batch}
	h := NewHandlers(stub, nil)

	w := postDispatch(t, h, `{"subject":"Witaj","html":"<p>x</p>","roles":["partner"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, float64(3), resp["sent_count"])
	assert.Equal(t, float64(3), resp["total_count"])
	assert.NotContains(t, resp, "errors")

	src, ok := stub.gotReq.Source.(mailer.Custom)
	require.True(t, ok, "source should decode as Custom")
	assert.Equal(t, "Witaj", src.Subject)
	assert.Equal(t, []string{"partner"}, stub.gotReq.Roles)
}

func TestHandleDispatchTemplateRef(t *testing.T) {
	tplID := uuid.New()
	stub := &stubDispatcher{batch: &mailer.Batch{ID: uuid.New(), SentCount: 1, TotalCount: 1}}
	h := NewHandlers(stub, nil)

	w := postDispatch(t, h, `{"template_id":"`+tplID.String()+`","roles":["leader"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	src, ok := stub.gotReq.Source.(mailer.TemplateRef)
	require.True(t, ok, "source should decode as TemplateRef")
	assert.Equal(t, tplID, src.ID)
}

func TestHandleDispatchInvalidTemplateID(t *testing.T) {
	h := NewHandlers(&stubDispatcher{}, nil)

	w := postDispatch(t, h, `{"template_id":"not-a-uuid","roles":["x"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDispatchConfigurationError(t *testing.T) {
	stub := &stubDispatcher{err: &mailer.ConfigurationError{Reason: "no active SMTP server configured"}}
	h := NewHandlers(stub, nil)

	w := postDispatch(t, h, `{"subject":"s","html":"<p>x</p>","roles":["partner"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "no active SMTP server")
}

func TestHandleDispatchTotalFailure(t *testing.T) {
	batch := &mailer.Batch{ID: uuid.New(), SentCount: 0, TotalCount: 2}
	batch.Attempts = []mailer.Attempt{
		{Email: "a@b.c", Status: mailer.StatusFailed, Error: "AUTH LOGIN rejected: 535 nope"},
		{Email: "d@e.f", Status: mailer.StatusFailed, Error: "AUTH LOGIN rejected: 535 nope"},
	}
	h := NewHandlers(&stubDispatcher{batch: batch}, nil)

	w := postDispatch(t, h, `{"subject":"s","html":"<p>x</p>","roles":["partner"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp dispatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Len(t, resp.Errors, 2)
}

func TestHandleBatchProgress(t *testing.T) {
	h := NewHandlers(&stubDispatcher{}, &stubProgress{
		snap: &mailer.ProgressSnapshot{Processed: 2, Sent: 1, Total: 5},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/mailing/batches/"+uuid.New().String(), nil)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var snap mailer.ProgressSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, 5, snap.Total)
}

func TestHandleBatchProgressUnknown(t *testing.T) {
	h := NewHandlers(&stubDispatcher{}, &stubProgress{})

	req := httptest.NewRequest(http.MethodGet, "/api/mailing/batches/"+uuid.New().String(), nil)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleHealth(t *testing.T) {
	h := NewHandlers(&stubDispatcher{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
