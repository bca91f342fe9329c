package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/babel/internal/logger"
	"github.com/samcharles93/babel/internal/translate"
)

type testEngine struct {
	err error
}

func (e testEngine) Translate(ctx context.Context, sources []string) ([]translate.Translation, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([]translate.Translation, len(sources))
	for i, src := range sources {
		out[i] = translate.Translation{Text: "<" + src + ">", Score: -float32(i)}
	}
	return out, nil
}

func newTestEcho(engine Engine) *echo.Echo {
	e := echo.New()
	NewServer(engine, logger.Discard()).Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateTranslation(t *testing.T) {
	t.Parallel()

	e := newTestEcho(testEngine{})
	rec := doJSON(t, e, http.MethodPost, "/v1/translations", `{"sources":["hello","world"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}

	var resp TranslationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.ID, "tr_") {
		t.Fatalf("expected tr_ id, got %q", resp.ID)
	}
	if resp.Object != "translation.batch" {
		t.Fatalf("unexpected object: %q", resp.Object)
	}
	if len(resp.Translations) != 2 {
		t.Fatalf("expected 2 translations, got %d", len(resp.Translations))
	}
	if resp.Translations[0].Source != "hello" || resp.Translations[0].Text != "<hello>" {
		t.Fatalf("unexpected first translation: %+v", resp.Translations[0])
	}
}

func TestCreateTranslationValidation(t *testing.T) {
	t.Parallel()

	e := newTestEcho(testEngine{})

	rec := doJSON(t, e, http.MethodPost, "/v1/translations", `{"sources":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty sources: expected 400, got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "sources is required") {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/translations", `{"sources":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d body=%s", rec.Code, rec.Body.String())
	}

	big, _ := json.Marshal(TranslationRequest{Sources: make([]string, maxBatchSources+1)})
	rec = doJSON(t, e, http.MethodPost, "/v1/translations", string(big))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized batch: expected 400, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateTranslationEngineFailure(t *testing.T) {
	t.Parallel()

	e := newTestEcho(testEngine{err: errors.New("cache blew up")})
	rec := doJSON(t, e, http.MethodPost, "/v1/translations", `{"sources":["x"]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "cache blew up") {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	e := newTestEcho(testEngine{})
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health body: %s", rec.Body.String())
	}
}

func TestInvalidRequestSentinel(t *testing.T) {
	t.Parallel()

	err := validateRequest(TranslationRequest{})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
