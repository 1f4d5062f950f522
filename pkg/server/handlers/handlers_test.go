package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mnohosten/diodb/pkg/diodb"
	"github.com/mnohosten/diodb/pkg/metrics"
)

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	db, err := diodb.Open(diodb.Config{
		DBDirectory:          t.TempDir(),
		BackgroundTaskMinGap: time.Millisecond,
		NumWorkerThreads:     1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, metrics.NewCollector())
}

func newTestRouter(h *Handlers) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/keys/{key}", func(r chi.Router) {
		r.Put("/", h.PutKey)
		r.Get("/", h.GetKey)
		r.Head("/", h.HeadKey)
		r.Delete("/", h.DeleteKey)
	})
	return r
}

func TestPutThenGetReturnsValue(t *testing.T) {
	h := newTestHandlers(t)
	r := newTestRouter(h)

	putReq := httptest.NewRequest(http.MethodPut, "/keys/alpha", bytes.NewBufferString("value-a"))
	putRec := httptest.NewRecorder()
	r.ServeHTTP(putRec, putReq)
	if putRec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200: %s", putRec.Code, putRec.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/keys/alpha", nil)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200: %s", getRec.Code, getRec.Body.String())
	}
	if !bytes.Contains(getRec.Body.Bytes(), []byte("dmFsdWUtYQ==")) {
		t.Fatalf("GET body missing base64 value: %s", getRec.Body.String())
	}
}

func TestGetMissingKeyReturns404(t *testing.T) {
	h := newTestHandlers(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/keys/absent", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteThenGetReturns404(t *testing.T) {
	h := newTestHandlers(t)
	r := newTestRouter(h)

	put := httptest.NewRequest(http.MethodPut, "/keys/beta", bytes.NewBufferString("x"))
	r.ServeHTTP(httptest.NewRecorder(), put)

	del := httptest.NewRequest(http.MethodDelete, "/keys/beta", nil)
	delRec := httptest.NewRecorder()
	r.ServeHTTP(delRec, del)
	if delRec.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d, want 200", delRec.Code)
	}

	get := httptest.NewRequest(http.MethodGet, "/keys/beta", nil)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, get)
	if getRec.Code != http.StatusNotFound {
		t.Fatalf("GET after DELETE status = %d, want 404", getRec.Code)
	}
}

func TestHeadReportsExistenceWithoutBody(t *testing.T) {
	h := newTestHandlers(t)
	r := newTestRouter(h)

	put := httptest.NewRequest(http.MethodPut, "/keys/gamma", bytes.NewBufferString("x"))
	r.ServeHTTP(httptest.NewRecorder(), put)

	head := httptest.NewRequest(http.MethodHead, "/keys/gamma", nil)
	headRec := httptest.NewRecorder()
	r.ServeHTTP(headRec, head)
	if headRec.Code != http.StatusOK {
		t.Fatalf("HEAD status = %d, want 200", headRec.Code)
	}
	if headRec.Body.Len() != 0 {
		t.Fatalf("HEAD body should be empty, got %q", headRec.Body.String())
	}

	missHead := httptest.NewRequest(http.MethodHead, "/keys/nope", nil)
	missRec := httptest.NewRecorder()
	r.ServeHTTP(missRec, missHead)
	if missRec.Code != http.StatusNotFound {
		t.Fatalf("HEAD missing status = %d, want 404", missRec.Code)
	}
}
