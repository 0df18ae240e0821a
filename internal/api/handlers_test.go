package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/transfa/taxform-service/internal/app"
	"github.com/transfa/taxform-service/internal/domain"
	"github.com/transfa/taxform-service/internal/store"
)

type runnerStub struct {
	result app.RunResult
	err    error
	years  []int
}

func (s *runnerStub) RunYear(ctx context.Context, year int) (app.RunResult, error) {
	s.years = append(s.years, year)
	s.result.Year = year
	return s.result, s.err
}

type documentStoreStub struct {
	docs  map[string]*domain.LegalDocument
	saved []domain.RequestStatus
	data  []map[string]any
}

func docKey(accountID uuid.UUID, year int) string {
	return fmt.Sprintf("%s:%d", accountID, year)
}

func (s *documentStoreStub) FindAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	for _, doc := range s.docs {
		if doc.AccountID == accountID {
			return &domain.Account{ID: accountID}, nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (s *documentStoreStub) FindDocument(ctx context.Context, accountID uuid.UUID, year int) (*domain.LegalDocument, error) {
	doc, ok := s.docs[docKey(accountID, year)]
	if !ok {
		return nil, store.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *documentStoreStub) SaveStatus(ctx context.Context, accountID uuid.UUID, year int, status domain.RequestStatus, data map[string]any) (*domain.LegalDocument, error) {
	s.saved = append(s.saved, status)
	s.data = append(s.data, data)
	doc := s.docs[docKey(accountID, year)]
	doc.RequestStatus = status
	return doc, nil
}

const testInternalKey = "internal-key"

func newTestRouter(runner Runner, docs DocumentStore, secret string) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(runner, docs, secret, logger)
	return NewRouter(h, http.NotFoundHandler(), testInternalKey)
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHandleRunYear(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		path     string
		err      error
		wantCode int
	}{
		{name: "missing key", key: "", path: "/internal/tax-forms/2024/run", wantCode: http.StatusUnauthorized},
		{name: "bad year", key: testInternalKey, path: "/internal/tax-forms/abc/run", wantCode: http.StatusBadRequest},
		{name: "year zero", key: testInternalKey, path: "/internal/tax-forms/0/run", wantCode: http.StatusBadRequest},
		{name: "negative year", key: testInternalKey, path: "/internal/tax-forms/-1/run", wantCode: http.StatusBadRequest},
		{name: "locked", key: testInternalKey, path: "/internal/tax-forms/2024/run", err: app.ErrRunInProgress, wantCode: http.StatusConflict},
		{name: "failure", key: testInternalKey, path: "/internal/tax-forms/2024/run", err: errors.New("db down"), wantCode: http.StatusInternalServerError},
		{name: "ok", key: testInternalKey, path: "/internal/tax-forms/2024/run", wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &runnerStub{err: tt.err, result: app.RunResult{Eligible: 2, Requested: 2}}
			router := newTestRouter(runner, &documentStoreStub{}, "")

			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-Internal-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d (%s)", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantCode == http.StatusOK {
				var got app.RunResult
				if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if got.Year != 2024 || got.Requested != 2 {
					t.Fatalf("unexpected result: %+v", got)
				}
			}
		})
	}
}

func TestHandleGetDocument(t *testing.T) {
	accountID := uuid.New()
	docs := &documentStoreStub{docs: map[string]*domain.LegalDocument{
		docKey(accountID, 2024): {AccountID: accountID, Year: 2024, RequestStatus: domain.RequestStatusRequested},
	}}
	router := newTestRouter(&runnerStub{}, docs, "")

	req := httptest.NewRequest(http.MethodGet, "/internal/tax-forms/2024/accounts/"+accountID.String(), nil)
	req.Header.Set("X-Internal-API-Key", testInternalKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/internal/tax-forms/2023/accounts/"+accountID.String(), nil)
	req.Header.Set("X-Internal-API-Key", testInternalKey)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/internal/tax-forms/2024/accounts/"+uuid.NewString(), nil)
	req.Header.Set("X-Internal-API-Key", testInternalKey)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), store.ErrAccountNotFound.Error()) {
		t.Fatalf("expected account not found, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandleHelloWorksCallback(t *testing.T) {
	const secret = "shh"
	accountID := uuid.New()
	completed := `{"id":"inst_1","status":"completed","metadata":{"accountId":"` + accountID.String() + `","year":"2024"}}`
	pending := `{"id":"inst_1","status":"in_progress","metadata":{"accountId":"` + accountID.String() + `","year":"2024"}}`
	unknown := `{"id":"inst_2","status":"completed","metadata":{"accountId":"` + uuid.NewString() + `","year":"2024"}}`

	tests := []struct {
		name      string
		body      string
		signature string
		wantCode  int
		wantSaved bool
	}{
		{name: "bad signature", body: completed, signature: sign("other", completed), wantCode: http.StatusUnauthorized},
		{name: "missing signature", body: completed, signature: "", wantCode: http.StatusUnauthorized},
		{name: "unknown document", body: unknown, signature: sign(secret, unknown), wantCode: http.StatusNotFound},
		{name: "non terminal status", body: pending, signature: sign(secret, pending), wantCode: http.StatusOK},
		{name: "invalid json", body: "{", signature: sign(secret, "{"), wantCode: http.StatusBadRequest},
		{name: "completed", body: completed, signature: sign(secret, completed), wantCode: http.StatusOK, wantSaved: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := &documentStoreStub{docs: map[string]*domain.LegalDocument{
				docKey(accountID, 2024): {AccountID: accountID, Year: 2024, RequestStatus: domain.RequestStatusRequested},
			}}
			router := newTestRouter(&runnerStub{}, docs, secret)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/helloworks", strings.NewReader(tt.body))
			if tt.signature != "" {
				req.Header.Set(SignatureHeader, tt.signature)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d (%s)", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantSaved {
				if len(docs.saved) != 1 || docs.saved[0] != domain.RequestStatusReceived {
					t.Fatalf("expected RECEIVED to be saved, got %v", docs.saved)
				}
				callback := docs.data[0]["helloWorks"].(map[string]any)["callback"].(map[string]any)
				if callback["id"] != "inst_1" || callback["status"] != "completed" {
					t.Fatalf("unexpected callback data: %v", callback)
				}
			} else if len(docs.saved) != 0 {
				t.Fatalf("expected nothing saved, got %v", docs.saved)
			}
		})
	}
}

func TestIsValidSignature_NoSecretAcceptsAll(t *testing.T) {
	h := &Handler{}
	if !h.isValidSignature("", []byte("anything")) {
		t.Fatal("expected validation to be skipped without a secret")
	}
}
