package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (m *memoryStorage) PutObject(_ context.Context, bucket, key, _ string, r io.Reader, _ int64) error {
	if m.err != nil {
		return m.err
	}
	b, _ := io.ReadAll(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[bucket+"/"+key] = b
	return nil
}

func (m *memoryStorage) GetObject(context.Context, string, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}
func (m *memoryStorage) DeleteObject(context.Context, string, string) error { return nil }
func (m *memoryStorage) EnsureBucketExists(context.Context, string) error   { return nil }
func (m *memoryStorage) ValidateContentType(string) error                   { return nil }
func (m *memoryStorage) ValidateFileSize(int64) error                       { return nil }

type harness struct {
	router   *gin.Engine
	svc      *Service
	store    *fakeSources
	samples  *fakeSamples
	ingester *fakeIngester
	storage  *memoryStorage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	val := validator.New()
	if err := RegisterValidations(val); err != nil {
		t.Fatalf("RegisterValidations: %v", err)
	}

	h := &harness{store: newFakeSources(), samples: &fakeSamples{}, ingester: &fakeIngester{}, storage: &memoryStorage{}}
	log := logger.Nop()
	h.svc = NewService(h.store, h.ingester, h.samples, NewArchive(h.storage, "webhook-payloads", log), &recordingBus{},
		ListenerConfig{Interval: 2 * time.Millisecond, Timeout: time.Second}, log)
	t.Cleanup(h.svc.Shutdown)

	handler := NewHandler(h.svc, val)
	r := gin.New()
	r.POST("/api/v1/webhook/:sourceKey", APIKeyAuthMiddleware(h.store), handler.HandleDelivery)
	sources := r.Group("/api/v1/admin/webhook/sources")
	sources.POST("", handler.HandleCreateSource)
	sources.GET("", handler.HandleListSources)
	sources.DELETE("/:id", handler.HandleRevokeSource)
	sources.POST("/:id/listen", handler.HandleStartListening)
	sources.DELETE("/:id/listen", handler.HandleStopListening)
	sources.GET("/:id/mapping", handler.HandleGetMapping)
	sources.POST("/:id/mapping/confirm", handler.HandleConfirmMapping)
	h.router = r
	return h
}

func (h *harness) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) createSource(t *testing.T, key string) CreateSourceResponse {
	t.Helper()
	rec := h.do(http.MethodPost, "/api/v1/admin/webhook/sources", `{"sourceKey":"`+key+`","name":"RD Station"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create source status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp CreateSourceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestCreateSource(t *testing.T) {
	h := newHarness(t)
	resp := h.createSource(t, "rd-station")

	if !strings.HasPrefix(resp.Key, "whk_") || resp.KeyPrefix != resp.Key[:12] {
		t.Fatalf("key = %q prefix = %q", resp.Key, resp.KeyPrefix)
	}
	if resp.WebhookURL != "http://example.com/api/v1/webhook/rd-station" {
		t.Errorf("webhook url = %q", resp.WebhookURL)
	}
	if stored := h.store.get(resp.ID); stored.KeyHash != HashKey(resp.Key) {
		t.Error("only the key hash must be stored")
	}

	if rec := h.do(http.MethodPost, "/api/v1/admin/webhook/sources", `{"sourceKey":"rd-station","name":"again"}`, nil); rec.Code != http.StatusConflict {
		t.Errorf("duplicate source key status = %d, want 409", rec.Code)
	}
	if rec := h.do(http.MethodPost, "/api/v1/admin/webhook/sources", `{"sourceKey":"bad key!","name":"x"}`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid source key status = %d, want 400", rec.Code)
	}
}

func TestDeliveryIsStoredAndArchived(t *testing.T) {
	h := newHarness(t)
	src := h.createSource(t, "rd-station")

	body := `{"nome":"Ana","telefone":"(62) 99999-1234"}`
	rec := h.do(http.MethodPost, "/api/v1/webhook/rd-station", body, map[string]string{
		headerAPIKey:   src.Key,
		"CF-IPCountry": "BR",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	if h.ingester.last.EventType != "webhook_lead" || h.ingester.last.Source != "rd-station" {
		t.Fatalf("ingest params = %+v", h.ingester.last)
	}
	if string(h.ingester.last.Body) != body || h.ingester.last.GeoCountry != "BR" {
		t.Fatalf("body/geo not forwarded: %+v", h.ingester.last)
	}

	var resp DeliveryResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	wantKey := "webhook-payloads/rd-station/2024-05-10/" + resp.ID + ".json"
	if got, ok := h.storage.objects[wantKey]; !ok || !bytes.Equal(got, []byte(body)) {
		t.Fatalf("archive missing %s: %v", wantKey, h.storage.objects)
	}
}

func TestDeliverySucceedsWhenArchiveFails(t *testing.T) {
	h := newHarness(t)
	h.storage.err = errors.New("minio down")
	src := h.createSource(t, "rd-station")

	rec := h.do(http.MethodPost, "/api/v1/webhook/rd-station", `{"a":1}`, map[string]string{headerAPIKey: src.Key})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
}

func TestListenConfirmFlow(t *testing.T) {
	h := newHarness(t)
	src := h.createSource(t, "rd-station")
	base := "/api/v1/admin/webhook/sources/" + src.ID.String()

	h.samples.add(sampleEvent(sampleT0, `{"nome":"Ana","whatsapp":"62999991234","cidade":"Goiânia","empresa":"ACME"}`))

	if rec := h.do(http.MethodPost, base+"/listen", "", nil); rec.Code != http.StatusAccepted {
		t.Fatalf("listen status = %d body=%s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	var state MappingResponse
	for {
		rec := h.do(http.MethodGet, base+"/mapping", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("mapping status = %d", rec.Code)
		}
		state = MappingResponse{}
		_ = json.Unmarshal(rec.Body.Bytes(), &state)
		if state.Pending != nil && !state.Listening {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no pending mapping proposed: %+v", state)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if state.Active != nil || len(state.Pending.Entries) != 4 {
		t.Fatalf("state = %+v", state)
	}

	rec := h.do(http.MethodPost, base+"/mapping/confirm", `{"include":["empresa"],"fields":{"cidade":"message"}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d body=%s", rec.Code, rec.Body.String())
	}
	var active Mapping
	_ = json.Unmarshal(rec.Body.Bytes(), &active)
	keys := []string{}
	for _, e := range active.Entries {
		keys = append(keys, e.Key+"="+string(e.Field))
	}
	if strings.Join(keys, ",") != "nome=name,whatsapp=phone,cidade=message,empresa=name" {
		t.Fatalf("active entries = %v", keys)
	}

	stored := h.store.get(src.ID)
	if stored.PendingMapping != nil || stored.ActiveMapping == nil {
		t.Fatal("confirm must move the pending mapping to active")
	}

	if rec := h.do(http.MethodPost, base+"/mapping/confirm", `{}`, nil); rec.Code != http.StatusConflict {
		t.Errorf("second confirm status = %d, want 409", rec.Code)
	}
}

func TestConfirmRejectsUnknownField(t *testing.T) {
	h := newHarness(t)
	src := h.createSource(t, "rd-station")
	pending := Mapping{Entries: []MappingEntry{{Key: "nome", Field: "name", Required: true}}}
	_ = h.store.SetPendingMapping(context.Background(), src.ID, pending, sampleT0)

	rec := h.do(http.MethodPost, "/api/v1/admin/webhook/sources/"+src.ID.String()+"/mapping/confirm", `{"fields":{"nome":"nickname"}}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStopListening(t *testing.T) {
	h := newHarness(t)
	src := h.createSource(t, "rd-station")
	base := "/api/v1/admin/webhook/sources/" + src.ID.String()

	if rec := h.do(http.MethodDelete, base+"/listen", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("stop without listener status = %d, want 404", rec.Code)
	}
	if rec := h.do(http.MethodPost, base+"/listen", "", nil); rec.Code != http.StatusAccepted {
		t.Fatalf("listen status = %d", rec.Code)
	}
	if rec := h.do(http.MethodDelete, base+"/listen", "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("stop status = %d, want 204", rec.Code)
	}
}

func TestRevokedSourceCannotListenOrDeliver(t *testing.T) {
	h := newHarness(t)
	src := h.createSource(t, "rd-station")
	base := "/api/v1/admin/webhook/sources/" + src.ID.String()

	if rec := h.do(http.MethodDelete, base, "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("revoke status = %d", rec.Code)
	}
	if rec := h.do(http.MethodPost, base+"/listen", "", nil); rec.Code != http.StatusConflict {
		t.Errorf("listen on revoked source status = %d, want 409", rec.Code)
	}
	if rec := h.do(http.MethodPost, "/api/v1/webhook/rd-station", `{}`, map[string]string{headerAPIKey: src.Key}); rec.Code != http.StatusUnauthorized {
		t.Errorf("delivery with revoked key status = %d, want 401", rec.Code)
	}
}

func TestInvalidSourceID(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/api/v1/admin/webhook/sources/nope/mapping", "/api/v1/admin/webhook/sources/nope/listen"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "listen") {
			method = http.MethodPost
		}
		if rec := h.do(method, path, "", nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s %s status = %d, want 400", method, path, rec.Code)
		}
	}
	if rec := h.do(http.MethodGet, "/api/v1/admin/webhook/sources/00000000-0000-0000-0000-000000000001/mapping", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown source status = %d, want 404", rec.Code)
	}
}
