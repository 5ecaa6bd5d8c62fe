package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"offer-parser/internal/ai"
	"offer-parser/internal/handler"
	"offer-parser/internal/logger"
	"offer-parser/internal/model"
	"offer-parser/internal/repository"
	"offer-parser/internal/repository/memory"
	"offer-parser/internal/router"
	"offer-parser/internal/schema"
	"offer-parser/internal/service"
	"offer-parser/internal/sse"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	echo      *echo.Echo
	store     *repository.Store
	extractor *ai.MockExtractor
	ingest    service.IngestService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	appLogger := logger.NewWithWriter(io.Discard)
	store := memory.NewStore()
	registry := schema.NewRegistry(store.Schemas)
	extractor := ai.NewMockExtractor()
	sseManager := sse.NewSSEManager(appLogger)
	t.Cleanup(sseManager.Close)

	records := service.NewRecordService(store.Emails, sseManager, appLogger)
	parser := service.NewParseService(store.Emails, records, registry, extractor, sseManager,
		service.ParseConfig{Concurrency: 2, CallTimeout: time.Second}, appLogger)
	correction := service.NewCorrectionService(records, appLogger)
	ingest := service.NewIngestService(store.Emails, store.Accounts, sseManager, appLogger)

	e := echo.New()
	emailHandler := handler.NewEmailHandler(records, ingest, sseManager, e.Logger)
	parsingHandler := handler.NewParsingHandler(records, parser, correction, registry, 10, e.Logger)
	accountHandler := handler.NewAccountHandler(ingest, e.Logger)
	router.SetupRoutes(e, emailHandler, parsingHandler, accountHandler, appLogger)

	return &testServer{echo: e, store: store, extractor: extractor, ingest: ingest}
}

func (s *testServer) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (s *testServer) addEmail(t *testing.T, subject string, status model.Status) *model.Email {
	t.Helper()

	email := model.NewEmail("acc-1", "<"+subject+"@x>", "promo@shop.example", "Shop", subject, "Offer body for "+subject, time.Now())
	email.Status = status
	require.NoError(t, s.store.Emails.Create(context.Background(), email))
	return email
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := srv.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestParseAndReviewFlow(t *testing.T) {
	srv := newTestServer(t)
	email := srv.addEmail(t, "spring-sale", model.StatusPending)

	srv.extractor.ExtractFunc = func(ctx context.Context, req service.ExtractRequest, s *model.Schema) (*service.ExtractResult, error) {
		return &service.ExtractResult{Document: model.Document{"company_name": "Shop", "offer_type": "discount"}, Model: "mock-model"}, nil
	}

	// Test reviewing before parsing is rejected
	rec, body := srv.do(t, http.MethodPost, "/api/parsing/review/"+email.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, body["error"], "mark_reviewed")

	// Test parse
	rec, body = srv.do(t, http.MethodPost, "/api/parsing/parse/"+email.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "parsed", body["status"])
	assert.Equal(t, "Shop", body["parsed_data"].(map[string]interface{})["company_name"])

	// Test correction
	rec, body = srv.do(t, http.MethodPost, "/api/parsing/correct/"+email.ID,
		`{"corrected_data":{"company_name":"Shop Ltd","offer_type":"discount"},"corrected_by":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reviewed", body["status"])
	assert.Len(t, body["correction_diff"], 1)

	// Test detail shows the correction
	rec, body = srv.do(t, http.MethodGet, "/api/emails/"+email.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Shop Ltd", body["display_data"].(map[string]interface{})["company_name"])
	assert.Equal(t, "Shop", body["parsed_data"].(map[string]interface{})["company_name"])

	// Test an empty correction is a bad request
	rec, _ = srv.do(t, http.MethodPost, "/api/parsing/correct/"+email.ID, `{"corrected_data":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Test unknown record
	rec, _ = srv.do(t, http.MethodPost, "/api/parsing/parse/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseFailureReturnsRecord(t *testing.T) {
	srv := newTestServer(t)
	email := srv.addEmail(t, "broken", model.StatusPending)

	srv.extractor.ExtractFunc = func(ctx context.Context, req service.ExtractRequest, s *model.Schema) (*service.ExtractResult, error) {
		return nil, service.TransientError(errors.New("upstream 503"))
	}

	rec, body := srv.do(t, http.MethodPost, "/api/parsing/parse/"+email.ID, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, true, body["transient"])
	assert.Equal(t, "failed", body["email"].(map[string]interface{})["status"])
}

func TestParseBatchEndpoint(t *testing.T) {
	srv := newTestServer(t)
	for _, subject := range []string{"a", "b", "c"} {
		srv.addEmail(t, subject, model.StatusPending)
	}
	srv.addEmail(t, "done", model.StatusParsed)

	rec, body := srv.do(t, http.MethodPost, "/api/parsing/parse-batch", `{"count":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["processed"])
	assert.Equal(t, float64(2), body["successful"])

	rec, body = srv.do(t, http.MethodPost, "/api/parsing/parse-batch", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["processed"])

	rec, _ = srv.do(t, http.MethodPost, "/api/parsing/parse-batch", `{"count":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = srv.do(t, http.MethodGet, "/api/emails/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(4), body["total"])
	assert.Equal(t, float64(4), body["by_status"].(map[string]interface{})["parsed"])
}

func TestListEmails(t *testing.T) {
	srv := newTestServer(t)
	srv.addEmail(t, "one", model.StatusPending)
	srv.addEmail(t, "two", model.StatusFailed)

	rec, body := srv.do(t, http.MethodGet, "/api/emails?status=failed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(20), body["page_size"])

	rec, _ = srv.do(t, http.MethodGet, "/api/emails?status=archived", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchemaEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec, body := srv.do(t, http.MethodGet, "/api/parsing/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["default"])

	rec, _ = srv.do(t, http.MethodPut, "/api/parsing/schema", `{"schema":{"company_name":{"type":"text"}}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = srv.do(t, http.MethodPut, "/api/parsing/schema", `{"schema":{"company_name":{"type":"string"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["default"])

	rec, body = srv.do(t, http.MethodGet, "/api/parsing/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["schema"], "company_name")
}

func TestAccountsAndImport(t *testing.T) {
	srv := newTestServer(t)

	rec, account := srv.do(t, http.MethodPost, "/api/accounts", `{"address":"deals@example.com","display_name":"Deals"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	accountID := account["id"].(string)

	raw := "From: Shop <promo@shop.example>\r\n" +
		"To: deals@example.com\r\n" +
		"Subject: Weekend sale\r\n" +
		"Message-Id: <sale-1@shop.example>\r\n" +
		"Date: Sat, 01 Mar 2025 09:00:00 +0000\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Everything 30% off until Sunday.\r\n"

	importMessage := func() (*httptest.ResponseRecorder, map[string]interface{}) {
		req := httptest.NewRequest(http.MethodPost, "/api/emails/import?account_id="+accountID, strings.NewReader(raw))
		req.Header.Set(echo.HeaderContentType, "message/rfc822")
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return rec, out
	}

	rec, body := importMessage()
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, body["created"])
	email := body["email"].(map[string]interface{})
	assert.Equal(t, "pending", email["status"])
	assert.Equal(t, "Weekend sale", email["subject"])

	// Test a re-import is deduplicated
	rec, body = importMessage()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["created"])

	rec, _ = srv.do(t, http.MethodPost, "/api/accounts", `{"address":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = srv.do(t, http.MethodDelete, "/api/accounts/"+accountID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, body = srv.do(t, http.MethodGet, "/api/emails", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["total"])
}

func TestForceFailEndpoint(t *testing.T) {
	srv := newTestServer(t)
	email := srv.addEmail(t, "stuck", model.StatusParsing)

	rec, body := srv.do(t, http.MethodPost, "/api/parsing/force-fail/"+email.ID, `{"reason":"worker crashed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "worker crashed", body["error_message"])

	rec, _ = srv.do(t, http.MethodPost, "/api/parsing/force-fail/"+email.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}
