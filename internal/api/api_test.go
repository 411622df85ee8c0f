package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/qualitygate/internal/activity"
	"github.com/zulandar/qualitygate/internal/alert/alerttest"
	"github.com/zulandar/qualitygate/internal/db/dbtest"
	"github.com/zulandar/qualitygate/internal/defect"
	"github.com/zulandar/qualitygate/internal/imagestore"
	"github.com/zulandar/qualitygate/internal/inspection"
	"github.com/zulandar/qualitygate/internal/logging"
	"github.com/zulandar/qualitygate/internal/models"
	"github.com/zulandar/qualitygate/internal/product"
	"github.com/zulandar/qualitygate/internal/stats"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	router *gin.Engine
	db     *gorm.DB
	alerts *alerttest.Sink
	images *imagestore.Memory
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gdb := dbtest.Open(t)
	log := logging.Discard()
	acts := activity.NewStore(gdb)
	sink := &alerttest.Sink{}
	mem := imagestore.NewMemory()
	svc := Services{
		DB:          gdb,
		Products:    product.NewService(gdb, acts, log),
		Inspections: inspection.NewManager(inspection.Deps{DB: gdb, Alerts: sink, Activity: acts, Images: mem, Logger: log}),
		Defects:     defect.NewRegistry(defect.Deps{DB: gdb, Alerts: sink, Activity: acts, Images: mem, Logger: log}),
		Stats:       stats.NewAggregator(gdb, time.UTC),
		Activities:  acts,
		Images:      mem,
	}
	return &testAPI{
		router: NewRouter(StartOpts{Services: svc, Logger: log, MaxUploadMB: 5}),
		db:     gdb,
		alerts: sink,
		images: mem,
	}
}

type caller struct {
	id, role string
}

var (
	alice = caller{"u-alice", "inspector"}
	bob   = caller{"u-bob", "inspector"}
	boss  = caller{"u-boss", "manager"}
)

func (a *testAPI) do(t *testing.T, who caller, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if who.id != "" {
		req.Header.Set(HeaderUserID, who.id)
	}
	if who.role != "" {
		req.Header.Set(HeaderUserRole, who.role)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", w.Code, want, w.Body.String())
	}
}

// seed creates a product and an inspection owned by alice.
func (a *testAPI) seed(t *testing.T, total int) (models.Product, models.Inspection) {
	t.Helper()
	w := a.do(t, boss, http.MethodPost, "/api/products", map[string]string{"name": "Hinge", "sku": "H-1"})
	expectStatus(t, w, http.StatusCreated)
	p := decode[models.Product](t, w)

	w = a.do(t, alice, http.MethodPost, "/api/inspections", map[string]any{
		"productId": p.ID, "batchNumber": "LOT-9", "totalInspected": total,
	})
	expectStatus(t, w, http.StatusCreated)
	return p, decode[models.Inspection](t, w)
}

func TestActorHeaders(t *testing.T) {
	a := newTestAPI(t)
	expectStatus(t, a.do(t, caller{}, http.MethodGet, "/api/products", nil), http.StatusUnauthorized)
	expectStatus(t, a.do(t, caller{"u-1", "janitor"}, http.MethodGet, "/api/products", nil), http.StatusBadRequest)
	expectStatus(t, a.do(t, caller{"u-1", ""}, http.MethodGet, "/api/products", nil), http.StatusOK)
}

func TestHealthAndMetrics(t *testing.T) {
	a := newTestAPI(t)
	expectStatus(t, a.do(t, caller{}, http.MethodGet, "/healthz", nil), http.StatusOK)

	w := a.do(t, caller{}, http.MethodGet, "/metrics", nil)
	expectStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "qualitygate_inspection_defect_rate_percent") {
		t.Error("metrics output missing defect rate histogram")
	}
}

func TestProducts(t *testing.T) {
	a := newTestAPI(t)
	p, _ := a.seed(t, 10)

	w := a.do(t, boss, http.MethodPost, "/api/products", map[string]string{"name": "Other", "sku": "H-1"})
	expectStatus(t, w, http.StatusConflict)
	if got := decode[map[string]string](t, w); got["kind"] != "conflict" {
		t.Errorf("kind = %q", got["kind"])
	}

	expectStatus(t, a.do(t, boss, http.MethodGet, "/api/products/"+p.ID, nil), http.StatusOK)
	expectStatus(t, a.do(t, boss, http.MethodGet, "/api/products/prd-nope", nil), http.StatusNotFound)
	list := decode[[]models.Product](t, a.do(t, boss, http.MethodGet, "/api/products", nil))
	if len(list) != 1 {
		t.Errorf("products = %d", len(list))
	}
}

func TestInspectionLifecycle(t *testing.T) {
	a := newTestAPI(t)
	p, insp := a.seed(t, 20)

	for range 2 {
		w := a.do(t, alice, http.MethodPost, "/api/defects", map[string]any{
			"inspectionId": insp.ID, "productId": p.ID, "type": "crack", "severity": "critical",
		})
		expectStatus(t, w, http.StatusCreated)
	}

	w := a.do(t, alice, http.MethodPost, "/api/inspections/"+insp.ID+"/complete", nil)
	expectStatus(t, w, http.StatusOK)
	res := decode[inspection.CompletionResult](t, w)
	if res.Inspection.Status != models.InspectionFailed || res.DefectRate != 10 || !res.RateAlerted {
		t.Errorf("completion = %+v / %+v", res, res.Inspection)
	}
	if len(a.alerts.Critical()) != 2 || len(a.alerts.Rate()) != 1 {
		t.Errorf("alerts: critical=%d rate=%d", len(a.alerts.Critical()), len(a.alerts.Rate()))
	}

	w = a.do(t, alice, http.MethodPatch, "/api/inspections/"+insp.ID, map[string]any{"status": "completed"})
	expectStatus(t, w, http.StatusBadRequest)
	w = a.do(t, alice, http.MethodPatch, "/api/inspections/"+insp.ID, map[string]any{"notes": "rechecked"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[models.Inspection](t, w); got.Notes != "rechecked" {
		t.Errorf("notes = %q", got.Notes)
	}

	list := decode[[]models.Inspection](t, a.do(t, boss, http.MethodGet, "/api/inspections?status=failed", nil))
	if len(list) != 1 {
		t.Errorf("failed inspections = %d", len(list))
	}
	expectStatus(t, a.do(t, boss, http.MethodGet, "/api/inspections?limit=x", nil), http.StatusBadRequest)

	expectStatus(t, a.do(t, bob, http.MethodDelete, "/api/inspections/"+insp.ID, nil), http.StatusForbidden)
	expectStatus(t, a.do(t, boss, http.MethodDelete, "/api/inspections/"+insp.ID, nil), http.StatusNoContent)
	expectStatus(t, a.do(t, boss, http.MethodGet, "/api/inspections/"+insp.ID, nil), http.StatusNotFound)
	defects := decode[[]models.Defect](t, a.do(t, boss, http.MethodGet, "/api/defects?inspectionId="+insp.ID, nil))
	if len(defects) != 0 {
		t.Errorf("defects after cascade = %d", len(defects))
	}
}

func TestDefectEndpoints(t *testing.T) {
	a := newTestAPI(t)
	p, insp := a.seed(t, 100)

	w := a.do(t, alice, http.MethodPost, "/api/defects", map[string]any{
		"inspectionId": "ins-nope", "productId": p.ID, "type": "dent", "severity": "minor",
	})
	expectStatus(t, w, http.StatusNotFound)
	w = a.do(t, alice, http.MethodPost, "/api/defects", map[string]any{
		"inspectionId": insp.ID, "productId": p.ID, "type": "dent", "severity": "bad",
	})
	expectStatus(t, w, http.StatusBadRequest)

	w = a.do(t, alice, http.MethodPost, "/api/defects/bulk", map[string]any{"defects": []map[string]any{
		{"inspectionId": insp.ID, "productId": p.ID, "type": "dent", "severity": "minor"},
		{"inspectionId": "ins-nope", "productId": p.ID, "type": "dent", "severity": "minor"},
		{"inspectionId": insp.ID, "productId": p.ID, "type": "burr", "severity": "major"},
	}})
	expectStatus(t, w, http.StatusMultiStatus)
	bulk := decode[defect.BulkResult](t, w)
	if bulk.CreatedCount != 2 || bulk.ErrorCount != 1 || bulk.Errors[0].Index != 1 {
		t.Fatalf("bulk = %+v", bulk)
	}
	id := bulk.Data[0].ID

	w = a.do(t, alice, http.MethodPatch, "/api/defects/"+id, map[string]any{"measurements": `{"depth":1.5}`, "location": "edge"})
	expectStatus(t, w, http.StatusOK)
	d := decode[models.Defect](t, w)
	if string(d.Measurements) != `{"depth":1.5}` || d.Location != "edge" {
		t.Errorf("patched = %s / %q", d.Measurements, d.Location)
	}
	w = a.do(t, alice, http.MethodPatch, "/api/defects/"+id, map[string]any{"measurements": "not json", "location": "corner"})
	expectStatus(t, w, http.StatusOK)
	if d := decode[models.Defect](t, w); d.Location != "corner" || string(d.Measurements) != `{"depth":1.5}` {
		t.Errorf("malformed measurements patch = %s / %q", d.Measurements, d.Location)
	}

	w = a.do(t, boss, http.MethodPost, "/api/defects/"+id+"/resolve", map[string]string{"notes": "polished"})
	expectStatus(t, w, http.StatusOK)
	resolved := decode[models.Defect](t, w)
	if !resolved.IsResolved() || resolved.ResolvedBy != boss.id || resolved.ResolutionNotes != "polished" {
		t.Errorf("resolved = %+v", resolved)
	}
	expectStatus(t, a.do(t, boss, http.MethodPost, "/api/defects/"+id+"/resolve", nil), http.StatusOK)

	list := decode[[]models.Defect](t, a.do(t, boss, http.MethodGet, "/api/defects?status=resolved", nil))
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("resolved list = %+v", list)
	}

	expectStatus(t, a.do(t, bob, http.MethodDelete, "/api/defects/"+id, nil), http.StatusForbidden)
	expectStatus(t, a.do(t, alice, http.MethodDelete, "/api/defects/"+id, nil), http.StatusNoContent)
	expectStatus(t, a.do(t, alice, http.MethodGet, "/api/defects/"+id, nil), http.StatusNotFound)
}

func TestDefectStats(t *testing.T) {
	a := newTestAPI(t)
	p, insp := a.seed(t, 100)
	for _, sev := range []string{"minor", "minor", "critical"} {
		w := a.do(t, alice, http.MethodPost, "/api/defects", map[string]any{
			"inspectionId": insp.ID, "productId": p.ID, "type": "scratch", "severity": sev,
		})
		expectStatus(t, w, http.StatusCreated)
	}

	w := a.do(t, boss, http.MethodGet, "/api/stats/defects?productId="+p.ID, nil)
	expectStatus(t, w, http.StatusOK)
	rep := decode[stats.Report](t, w)
	if len(rep.BySeverity) != 2 || rep.BySeverity[0] != (stats.Count{Key: "critical", Count: 1}) {
		t.Errorf("bySeverity = %+v", rep.BySeverity)
	}

	expectStatus(t, a.do(t, boss, http.MethodGet, "/api/stats/defects?from=soon", nil), http.StatusBadRequest)
	expectStatus(t, a.do(t, boss, http.MethodGet, "/api/stats/defects?from=2026-02-02&to=2026-02-01", nil), http.StatusBadRequest)
}

func TestUploadAndServeImages(t *testing.T) {
	a := newTestAPI(t)
	_, insp := a.seed(t, 10)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range []string{"a.png", "b.png"} {
		part, err := mw.CreateFormFile(imagesField, name)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		part.Write([]byte("\x89PNG\r\n\x1a\n" + name))
	}
	mw.WriteField(flaggedField, "true")
	mw.WriteField(confidenceField, "0.87")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/inspections/"+insp.ID+"/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(HeaderUserID, alice.id)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	expectStatus(t, w, http.StatusOK)

	got := decode[models.Inspection](t, w)
	if len(got.Images) != 2 {
		t.Fatalf("images = %d", len(got.Images))
	}
	if !got.Images[0].Flagged || got.Images[0].Confidence != 0.87 {
		t.Errorf("first image analysis = %+v", got.Images[0])
	}
	if got.Images[1].Flagged || got.Images[1].Confidence != 0 {
		t.Errorf("second image analysis = %+v", got.Images[1])
	}

	w = a.do(t, caller{}, http.MethodGet, "/images/"+got.Images[0].StorageID, nil)
	expectStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	expectStatus(t, a.do(t, caller{}, http.MethodGet, "/images/missing", nil), http.StatusNotFound)
}

func TestUploadImages_BadAnalysis(t *testing.T) {
	a := newTestAPI(t)
	_, insp := a.seed(t, 10)

	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"flag not bool", map[string]string{flaggedField: "maybe"}},
		{"confidence not number", map[string]string{confidenceField: "high"}},
		{"confidence above one", map[string]string{confidenceField: "1.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			part, _ := mw.CreateFormFile(imagesField, "a.png")
			part.Write([]byte("\x89PNG\r\n\x1a\n"))
			for k, v := range tt.fields {
				mw.WriteField(k, v)
			}
			mw.Close()

			req := httptest.NewRequest(http.MethodPost, "/api/inspections/"+insp.ID+"/images", &body)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			req.Header.Set(HeaderUserID, alice.id)
			w := httptest.NewRecorder()
			a.router.ServeHTTP(w, req)
			expectStatus(t, w, http.StatusBadRequest)
		})
	}
}

func TestActivitiesAndEvents(t *testing.T) {
	a := newTestAPI(t)
	a.seed(t, 10)

	acts := decode[[]models.Activity](t, a.do(t, boss, http.MethodGet, "/api/activities?actorId="+alice.id, nil))
	if len(acts) != 1 || acts[0].Action != string(activity.InspectionCreated) {
		t.Errorf("activities = %+v", acts)
	}

	old := eventPollInterval
	eventPollInterval = 10 * time.Millisecond
	defer func() { eventPollInterval = old }()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set(HeaderUserID, boss.id)
	w := httptest.NewRecorder()
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	a.router.ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "event: connected") {
		t.Errorf("body = %q", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "event: activity") {
		t.Error("stream should only carry activities recorded after connecting")
	}
}

func TestEvents_FailsWhenTrailUnreadable(t *testing.T) {
	a := newTestAPI(t)
	a.seed(t, 10)
	if err := a.db.Migrator().DropTable(&models.Activity{}); err != nil {
		t.Fatalf("drop activities: %v", err)
	}

	w := a.do(t, boss, http.MethodGet, "/api/events", nil)
	expectStatus(t, w, http.StatusInternalServerError)
	if strings.Contains(w.Body.String(), "event:") {
		t.Errorf("stream started despite error: %q", w.Body.String())
	}
}
