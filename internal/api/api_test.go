package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/api/middleware"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/reconcile"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/repository"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/repository/memory"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/service"
)

type testServer struct {
	router *gin.Engine
	store  *repository.Store
	demand *memory.DemandStore
	locker *reconcile.LocalLocker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	demand := store.Demand.(*memory.DemandStore)
	demand.Seed(domain.DemandRecord{Week: 202601, Node: reconcile.DefaultNode, Account: "Beiersdorf", SKU: "SKU1",
		PlannedDemand: domain.Ptr(45.0), ListPrice: domain.Ptr(9990.0)})

	locker := reconcile.NewLocalLocker()
	engine := reconcile.NewEngine(store.Demand, store.Stock, reconcile.WithLocker(locker))
	services := &Services{
		Reconcile:   service.NewReconcileService(engine, store.Runs),
		Plan:        service.NewPlanService(store, nil, nil, reconcile.DefaultNode),
		StockImport: service.NewStockImportService(store.Stock, nil, nil, reconcile.DefaultCountry),
		Health:      service.NewHealthService(store.Demand, nil, nil),
	}
	return &testServer{
		router: NewRouter(services, nil),
		store:  store,
		demand: demand,
		locker: locker,
	}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return w, body
}

func jsonRequest(t *testing.T, method, path string, payload any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, path, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, body := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Fatal("missing request id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	w, _ = s.do(t, req)
	if got := w.Header().Get(middleware.RequestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}
}

func TestUploadSales(t *testing.T) {
	s := newTestServer(t)
	csv := "semana;cliente;seller_sku;total_vendido;precio_promedio\n202601;Beiersdorf;SKU1;49;0\n"

	w, body := s.do(t, uploadRequest(t, "/api/v1/sales/upload", "ventas.csv", csv, map[string]string{"week": "202601"}))
	if w.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}
	if body["updated"] != float64(1) || body["total"] != float64(1) {
		t.Fatalf("body = %v", body)
	}
	if !strings.HasPrefix(body["message"].(string), "Procesado: 1 actualizados") {
		t.Fatalf("message = %v", body["message"])
	}

	rec, _ := s.demand.Find(202601, reconcile.DefaultNode, "Beiersdorf", "SKU1")
	if domain.Float(rec.ActualSales) != 49 {
		t.Fatalf("actual_sales = %v", rec.ActualSales)
	}

	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/reconcile/runs?week=202601", nil))
	runs, _ := body["runs"].([]any)
	if w.Code != http.StatusOK || len(runs) != 1 {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}
}

func TestUploadSalesErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name      string
		req       *http.Request
		status    int
		errorType string
	}{
		{
			name:      "missing file",
			req:       uploadRequest(t, "/api/v1/sales/upload", "", "", map[string]string{"week": "202601"}),
			status:    http.StatusBadRequest,
			errorType: string(domain.ErrorTypeInvalidRequest),
		},
		{
			name:      "missing week",
			req:       uploadRequest(t, "/api/v1/sales/upload", "ventas.csv", "a,b\n1,2\n", nil),
			status:    http.StatusBadRequest,
			errorType: string(domain.ErrorTypeInvalidRequest),
		},
		{
			name:      "wrong extension",
			req:       uploadRequest(t, "/api/v1/sales/upload", "ventas.xlsx", "x", map[string]string{"week": "202601"}),
			status:    http.StatusOK,
			errorType: string(domain.ErrorTypeInvalidFileType),
		},
		{
			name:      "missing columns",
			req:       uploadRequest(t, "/api/v1/sales/upload", "ventas.csv", "semana,producto\n202601,SKU1\n", map[string]string{"week": "202601"}),
			status:    http.StatusOK,
			errorType: string(domain.ErrorTypeInvalidStruct),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := s.do(t, tt.req)
			if w.Code != tt.status || body["success"] != false || body["errorType"] != tt.errorType {
				t.Fatalf("status = %d, body = %v", w.Code, body)
			}
		})
	}
}

func TestUpdateStockWithoutSnapshot(t *testing.T) {
	s := newTestServer(t)
	if _, err := s.store.Stock.ReplaceSnapshot(context.Background(), "2025-12-22", reconcile.DefaultCountry,
		[]domain.StockSnapshot{{SKU: "SKU1", Stock: 3}}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	w, body := s.do(t, jsonRequest(t, http.MethodPost, "/api/v1/stock/update", map[string]any{"week": "202601"}))
	if w.Code != http.StatusOK || body["errorType"] != string(domain.ErrorTypeNoStockData) {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}
	if body["mondayDateISO"] != "2025-12-29" || body["mondayDateDMY"] != "29-12-2025" {
		t.Fatalf("body = %v", body)
	}
	if !reflect.DeepEqual(body["availableDates"], []any{"2025-12-22"}) {
		t.Fatalf("available dates = %v", body["availableDates"])
	}
}

func TestUpdateStock(t *testing.T) {
	s := newTestServer(t)
	if _, err := s.store.Stock.ReplaceSnapshot(context.Background(), "2025-12-29", reconcile.DefaultCountry,
		[]domain.StockSnapshot{{SKU: "SKU1", Stock: 3}}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	w, body := s.do(t, jsonRequest(t, http.MethodPost, "/api/v1/stock/update", map[string]any{"week": 202601, "nodo": reconcile.DefaultNode}))
	if w.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}
	if body["updated"] != float64(1) || body["mondayDate"] != "2025-12-29" {
		t.Fatalf("body = %v", body)
	}
	rec, _ := s.demand.Find(202601, reconcile.DefaultNode, "Beiersdorf", "SKU1")
	if domain.Float(rec.StartingStock) != 3 {
		t.Fatalf("starting_stock = %v", rec.StartingStock)
	}
}

func TestSweepOnBusyCohort(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	unlock, err := s.locker.Lock(ctx, 202601, reconcile.DefaultNode)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	w, body := s.do(t, jsonRequest(t, http.MethodPost, "/api/v1/reconcile/sweep", map[string]any{"week": 202601}))
	if w.Code != http.StatusConflict || body["errorType"] != string(domain.ErrorTypeCohortBusy) {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}

	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	w, body = s.do(t, jsonRequest(t, http.MethodPost, "/api/v1/reconcile/sweep", map[string]any{"week": 202601}))
	if w.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}
}

func TestSyncSalesRequiresCSV(t *testing.T) {
	s := newTestServer(t)
	w, body := s.do(t, jsonRequest(t, http.MethodPost, "/api/v1/sales/sync", map[string]any{"week": 202601}))
	if w.Code != http.StatusOK || body["success"] != false || body["requiresCSV"] != true {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}
}

func TestPlanEditsAndReport(t *testing.T) {
	s := newTestServer(t)

	edit := map[string]any{
		"user": "ana",
		"changes": []map[string]any{
			{"node": reconcile.DefaultNode, "account": "Beiersdorf", "sku": "SKU1", "week": 202601,
				"plannedDemand": 50, "appliedScenario": "Descuento_5"},
		},
	}
	req := jsonRequest(t, http.MethodPost, "/api/v1/plan", edit)
	req.Header.Set("User-Agent", "planner-test")
	w, body := s.do(t, req)
	if w.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}
	results, _ := body["results"].(map[string]any)
	if results["updated"] != float64(1) {
		t.Fatalf("results = %v", results)
	}

	history, _ := s.store.Audit.ListByWeek(context.Background(), 202601)
	if len(history) != 1 || domain.Str(history[0].UserAgent) != "planner-test" || history[0].IPAddress == nil {
		t.Fatalf("history = %+v", history)
	}

	w, body = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/plan?week=202601&node=Todos&account=Todos", nil))
	if w.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}
	rows, _ := body["data"].([]any)
	if len(rows) != 1 {
		t.Fatalf("data = %v", body["data"])
	}
	applied, _ := body["escenarios_aplicados"].(map[string]any)
	if len(applied) != 1 {
		t.Fatalf("applied = %v", applied)
	}

	w, body = s.do(t, jsonRequest(t, http.MethodPost, "/api/v1/plan", map[string]any{"user": "ana"}))
	if w.Code != http.StatusBadRequest || body["error"] != "Se requiere un array de cambios" {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}
}

func TestPlanDetail(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, httptest.NewRequest(http.MethodGet,
		"/api/v1/plan/detail?nodo=Mercadolibre_Chile&cuenta=Beiersdorf&sku_seller=SKU1&semana=202601", nil))
	detail, _ := body["detail"].(map[string]any)
	if w.Code != http.StatusOK || detail["plannedDemand"] != float64(45) {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}

	w, body = s.do(t, httptest.NewRequest(http.MethodGet,
		"/api/v1/plan/detail?node=Mercadolibre_Chile&account=Beiersdorf&sku=SKU1&week=202602", nil))
	if w.Code != http.StatusOK || body["detail"] != nil || body["message"] == nil {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}
}

func TestStockImportUpload(t *testing.T) {
	s := newTestServer(t)
	csv := "sku,stock,cliente\nSKU1,3,Beiersdorf\nSKU2,5,Nivea\n"

	w, body := s.do(t, uploadRequest(t, "/api/v1/stock/import", "stock.csv", csv, map[string]string{"date": "2025-12-29"}))
	if w.Code != http.StatusOK || body["total"] != float64(2) {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}
	rows, _ := s.store.Stock.ListByDate(context.Background(), "2025-12-29", reconcile.DefaultCountry)
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}

	w, body = s.do(t, uploadRequest(t, "/api/v1/stock/import", "", "", nil))
	if w.Code != http.StatusOK || body["errorType"] != string(domain.ErrorTypeConfig) {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}
}

func TestConnections(t *testing.T) {
	s := newTestServer(t)
	w, body := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/health/connections", nil))
	if w.Code != http.StatusOK || body["store"] != true || body["cache"] != false || body["salesSource"] != false {
		t.Fatalf("status = %d, body = %v", w.Code, body)
	}
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	origins, all := normalizeAllowedOrigins([]string{"https://a.cl, https://b.cl", " "})
	if all || !reflect.DeepEqual(origins, []string{"https://a.cl", "https://b.cl"}) {
		t.Fatalf("origins = %v, all = %v", origins, all)
	}
	if _, all := normalizeAllowedOrigins([]string{"*"}); !all {
		t.Fatal("wildcard must allow every origin")
	}
}
