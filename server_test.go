package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/SaanjSulthana/hospitality-management-platform-sub009/workflow"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (r *countingInvalidator) InvalidateRange(ctx context.Context, orgId string, propertyId int, days []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil
}

func newPushRouter(subscriber *atomic.Pointer[workflow.ChangeSubscriber]) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	router := gin.New()
	router.POST("/pubsub/ledger", ledgerPushHandler(logger, subscriber))
	return router
}

func pushBody(t *testing.T, payload any) *bytes.Buffer {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	var envelope pushEnvelope
	envelope.Message.Data = data
	envelope.Message.ID = "push-msg-1"
	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return bytes.NewBuffer(body)
}

func TestLedgerPushHandler_BeforeSubscriberReady(t *testing.T) {
	var subscriber atomic.Pointer[workflow.ChangeSubscriber]
	router := newPushRouter(&subscriber)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/pubsub/ledger", pushBody(t, map[string]any{
		"event_type": "revenue_approved", "org_id": "org-1", "property_id": 3,
		"transaction_date": "2025-01-10",
	}))
	router.ServeHTTP(w, req)

	// 503 keeps the message on the bus until startup finishes.
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status before subscriber ready = %d, want 503", w.Code)
	}
}

func TestLedgerPushHandler_ProcessesAfterStore(t *testing.T) {
	var subscriber atomic.Pointer[workflow.ChangeSubscriber]
	router := newPushRouter(&subscriber)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	inv := &countingInvalidator{}
	subscriber.Store(&workflow.ChangeSubscriber{Logger: logger, Invalidator: inv})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/pubsub/ledger", pushBody(t, map[string]any{
		"event_type": "revenue_approved", "org_id": "org-1", "property_id": 3,
		"transaction_date": "2025-01-10",
	}))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if inv.calls != 1 {
		t.Fatalf("invalidations = %d, want 1", inv.calls)
	}
}

func TestLedgerPushHandler_MalformedPayloadAcks(t *testing.T) {
	var subscriber atomic.Pointer[workflow.ChangeSubscriber]
	router := newPushRouter(&subscriber)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	subscriber.Store(&workflow.ChangeSubscriber{Logger: logger, Invalidator: &countingInvalidator{}})

	var envelope pushEnvelope
	envelope.Message.Data = []byte("not json")
	envelope.Message.ID = "push-msg-2"
	body, _ := json.Marshal(envelope)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/pubsub/ledger", bytes.NewBuffer(body))
	router.ServeHTTP(w, req)

	// 2xx drops the message; redelivering garbage forever helps nobody.
	if w.Code != http.StatusNoContent {
		t.Fatalf("status for malformed payload = %d, want 204", w.Code)
	}
}
