package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/cache"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/drive"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/reconcile"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/repository"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/repository/memory"
)

const testNode = reconcile.DefaultNode

// recordingCache keeps reports in memory and remembers invalidations.
type recordingCache struct {
	mu          sync.Mutex
	reports     map[string]*domain.PlanReport
	sets        int
	invalidated []domain.Week
	all         bool
}

var _ cache.ReportCache = (*recordingCache)(nil)

func newRecordingCache() *recordingCache {
	return &recordingCache{reports: map[string]*domain.PlanReport{}}
}

func (c *recordingCache) key(week domain.Week, node, account string) string {
	return week.String() + "|" + node + "|" + account
}

func (c *recordingCache) Get(_ context.Context, week domain.Week, node, account string) (*domain.PlanReport, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reports[c.key(week, node, account)]
	return r, ok, nil
}

func (c *recordingCache) Set(_ context.Context, report *domain.PlanReport, node, account string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.reports[c.key(report.Week, node, account)] = report
	return nil
}

func (c *recordingCache) InvalidateWeek(_ context.Context, week domain.Week) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, week)
	return nil
}

func (c *recordingCache) InvalidateAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = true
	c.reports = map[string]*domain.PlanReport{}
	return nil
}

func (c *recordingCache) Ping(context.Context) error { return nil }

func (c *recordingCache) wasInvalidated(week domain.Week) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.invalidated {
		if w == week {
			return true
		}
	}
	return false
}

type fakeSalesSource struct {
	rows []domain.SalesRow
	err  error
}

func (f *fakeSalesSource) FetchSales(context.Context, domain.Week, string) ([]domain.SalesRow, error) {
	return f.rows, f.err
}
func (f *fakeSalesSource) Ping(context.Context) error { return f.err }
func (f *fakeSalesSource) Close() error               { return nil }

type fakeDrive struct {
	file *drive.File
	data string
}

func (f *fakeDrive) LatestStockFile(context.Context, string) (*drive.File, error) {
	if f.file == nil {
		return nil, drive.ErrNoStockFile
	}
	return f.file, nil
}

func (f *fakeDrive) DownloadFile(_ context.Context, _ string, w io.Writer) error {
	_, err := io.WriteString(w, f.data)
	return err
}

type reconcileFixture struct {
	store  *repository.Store
	demand *memory.DemandStore
	cache  *recordingCache
	svc    *ReconcileService
}

func newReconcileFixture(t *testing.T, engineOpts []reconcile.Option, opts ...ReconcileOption) *reconcileFixture {
	t.Helper()
	store := memory.NewStore()
	demand := store.Demand.(*memory.DemandStore)
	demand.Seed(domain.DemandRecord{Week: 202601, Node: testNode, Account: "Beiersdorf", SKU: "SKU1",
		PlannedDemand: domain.Ptr(45.0), ListPrice: domain.Ptr(9990.0)})

	rc := newRecordingCache()
	engine := reconcile.NewEngine(store.Demand, store.Stock, engineOpts...)
	opts = append([]ReconcileOption{WithReportCache(rc)}, opts...)
	return &reconcileFixture{
		store:  store,
		demand: demand,
		cache:  rc,
		svc:    NewReconcileService(engine, store.Runs, opts...),
	}
}

func TestUploadSalesTracksRun(t *testing.T) {
	f := newReconcileFixture(t, nil)
	ctx := context.Background()

	csv := "semana,cliente,seller_sku,total_vendido,precio_promedio\n" +
		"202601,Beiersdorf,SKU1,49,0\n" +
		"202601,Nivea,SKU9,3,1000\n"
	result, err := f.svc.UploadSales(ctx, 202601, "", "ventas.csv", []byte(csv))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if result.Updated != 1 || result.Inserted != 1 {
		t.Fatalf("result = %+v", result)
	}

	runs, err := f.svc.Runs(ctx, 202601, "", 0)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %+v", runs)
	}
	run := runs[0]
	if run.Status != domain.RunStatusCompleted || run.Source != SourceCSV || run.Pass != domain.PassSales {
		t.Fatalf("run = %+v", run)
	}
	if run.Node != testNode || run.Updated != 1 || run.Inserted != 1 || run.CompletedAt == nil {
		t.Fatalf("run = %+v", run)
	}
	if !f.cache.wasInvalidated(202601) {
		t.Fatal("report cache was not invalidated")
	}
}

func TestUploadSalesRejectsInput(t *testing.T) {
	f := newReconcileFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.UploadSales(ctx, 202600, "", "ventas.csv", []byte("x"))
	if pe, ok := domain.AsPassError(err); !ok || pe.Type != domain.ErrorTypeInvalidRequest {
		t.Fatalf("expected invalid_request, got %v", err)
	}
	_, err = f.svc.UploadSales(ctx, 202601, "", "ventas.xlsx", []byte("x"))
	if pe, ok := domain.AsPassError(err); !ok || pe.Type != domain.ErrorTypeInvalidFileType {
		t.Fatalf("expected invalid_file_type, got %v", err)
	}

	runs, _ := f.svc.Runs(ctx, 0, "", 0)
	if len(runs) != 0 {
		t.Fatalf("rejected uploads must not create runs: %+v", runs)
	}
}

func TestBusyCohortRecordsFailedRun(t *testing.T) {
	locker := reconcile.NewLocalLocker()
	f := newReconcileFixture(t, []reconcile.Option{reconcile.WithLocker(locker)})
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, 202601, testNode)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock(ctx)

	_, err = f.svc.Sweep(ctx, 202601, "")
	if pe, ok := domain.AsPassError(err); !ok || pe.Type != domain.ErrorTypeCohortBusy {
		t.Fatalf("expected cohort_busy, got %v", err)
	}

	runs, _ := f.svc.Runs(ctx, 202601, testNode, 5)
	if len(runs) != 1 || runs[0].Status != domain.RunStatusFailed || runs[0].ErrorMessage == nil {
		t.Fatalf("runs = %+v", runs)
	}
	if f.cache.wasInvalidated(202601) {
		t.Fatal("failed pass must not invalidate the cache")
	}
}

func TestSyncSales(t *testing.T) {
	ctx := context.Background()

	f := newReconcileFixture(t, nil)
	_, err := f.svc.SyncSales(ctx, 202601, "")
	pe, ok := domain.AsPassError(err)
	if !ok || pe.Type != domain.ErrorTypeConfig || pe.Details["requiresCSV"] != true {
		t.Fatalf("expected config_error with requiresCSV, got %v", err)
	}

	src := &fakeSalesSource{}
	f = newReconcileFixture(t, nil, WithSalesSource(src))
	_, err = f.svc.SyncSales(ctx, 202601, "")
	if pe, ok := domain.AsPassError(err); !ok || pe.Type != domain.ErrorTypeNoValidRecords {
		t.Fatalf("expected no_valid_records, got %v", err)
	}

	src.rows = []domain.SalesRow{{Week: 202601, Account: "Beiersdorf", SKU: "SKU1", Units: 40}}
	result, err := f.svc.SyncSales(ctx, 202601, "")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Updated != 1 {
		t.Fatalf("result = %+v", result)
	}
	runs, _ := f.svc.Runs(ctx, 202601, "", 0)
	if len(runs) != 1 || runs[0].Source != SourceMySQL {
		t.Fatalf("runs = %+v", runs)
	}
	rec, _ := f.demand.Find(202601, testNode, "Beiersdorf", "SKU1")
	if domain.Float(rec.ActualSales) != 40 {
		t.Fatalf("actual_sales = %v", rec.ActualSales)
	}
}

func newPlanFixture(t *testing.T) (*PlanService, *memory.DemandStore, *recordingCache, *repository.Store) {
	t.Helper()
	store := memory.NewStore()
	rc := newRecordingCache()
	return NewPlanService(store, rc, nil, testNode), store.Demand.(*memory.DemandStore), rc, store
}

func TestUploadPlan(t *testing.T) {
	svc, demand, rc, _ := newPlanFixture(t)
	ctx := context.Background()
	demand.Seed(domain.DemandRecord{Week: 202601, Node: testNode, Account: "Beiersdorf", SKU: "SKU1",
		PlannedDemand: domain.Ptr(5.0), ActualSales: domain.Ptr(3.0)})

	csv := "Semana,Cuenta,Sku_Seller,Pronóstico,Plan_demanda,PVP_PD\n" +
		"202601,Beiersdorf,SKU1,10,12,9990\n" +
		"202602,Beiersdorf,SKU2,1,2,500\n"
	result, err := svc.UploadPlan(ctx, 202601, "", "plan.csv", []byte(csv))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if result.Inserted != 1 || result.Updated != 1 || result.Total != 2 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v", result)
	}
	if result.Message() != "Plan cargado: 2 registros procesados (1 nuevos, 1 actualizados)" {
		t.Fatalf("message = %q", result.Message())
	}

	updated, _ := demand.Find(202601, testNode, "Beiersdorf", "SKU1")
	if domain.Float(updated.PlannedDemand) != 12 || domain.Float(updated.ActualSales) != 3 {
		t.Fatalf("updated = %+v", updated)
	}
	if _, ok := demand.Find(202602, testNode, "Beiersdorf", "SKU2"); !ok {
		t.Fatal("new plan row was not inserted")
	}
	if !rc.wasInvalidated(202601) || !rc.wasInvalidated(202602) {
		t.Fatalf("invalidated = %v", rc.invalidated)
	}
}

func TestUploadScenarios(t *testing.T) {
	svc, _, rc, store := newPlanFixture(t)
	ctx := context.Background()

	csv := "nodo;cuenta;sku_seller;escenario;cantidad_venta;precio_venta\n" +
		"Mercadolibre_Chile;Beiersdorf;SKU1;Descuento_5;12;9490\n" +
		"Mercadolibre_Chile;Beiersdorf;SKU1;Promo;1;1\n"
	result, err := svc.UploadScenarios(ctx, "escenarios.csv", []byte(csv))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if result.Inserted != 1 || result.TotalProcessed != 1 || len(result.LineErrors) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if !rc.all {
		t.Fatal("scenario upload must invalidate every cached report")
	}
	entries, _ := store.Scenarios.List(ctx)
	if len(entries) != 1 || entries[0].Quantity != 12 {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestReport(t *testing.T) {
	svc, demand, rc, store := newPlanFixture(t)
	ctx := context.Background()
	demand.Seed(
		domain.DemandRecord{Week: 202548, Node: testNode, Account: "Beiersdorf", SKU: "SKU1", ActualSales: domain.Ptr(5.0)},
		domain.DemandRecord{Week: 202552, Node: testNode, Account: "Beiersdorf", SKU: "SKU1", ActualSales: domain.Ptr(7.0)},
		domain.DemandRecord{Week: 202601, Node: testNode, Account: "Beiersdorf", SKU: "SKU1", PlannedDemand: domain.Ptr(10.0)},
		domain.DemandRecord{Week: 202603, Node: testNode, Account: "Beiersdorf", SKU: "SKU1", PlannedDemand: domain.Ptr(12.0),
			ListPrice: domain.Ptr(9990.0), Action: domain.Ptr("Subir")},
		domain.DemandRecord{Week: 202605, Node: testNode, Account: "Beiersdorf", SKU: "SKU1", PlannedDemand: domain.Ptr(14.0)},
		domain.DemandRecord{Week: 202606, Node: testNode, Account: "Beiersdorf", SKU: "SKU1", PlannedDemand: domain.Ptr(99.0)},
		domain.DemandRecord{Week: 202601, Node: "Falabella", Account: "Nivea", SKU: "SKU2", PlannedDemand: domain.Ptr(1.0)},
	)
	if err := store.Scenarios.Upsert(ctx, domain.ScenarioEntry{Node: testNode, Account: "Beiersdorf", SKU: "SKU1",
		Scenario: domain.ScenarioDiscount5, Quantity: 12, Price: 9490}); err != nil {
		t.Fatalf("scenario: %v", err)
	}
	older := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	for i, scenario := range []string{"Venta", "Descuento_5"} {
		entry := domain.AuditEntry{Node: testNode, Account: "Beiersdorf", SKU: "SKU1", Week: 202601,
			Field: "planned_demand", AppliedScenario: scenario, User: "ana", CreatedAt: older.Add(time.Duration(i) * time.Hour)}
		if err := store.Audit.Append(ctx, entry); err != nil {
			t.Fatalf("audit: %v", err)
		}
	}

	report, err := svc.Report(ctx, 202601, AllFilter, "Beiersdorf")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report.Rows) != 1 {
		t.Fatalf("rows = %+v", report.Rows)
	}
	row := report.Rows[0]
	wantSales := []domain.Week{202548, 202549, 202550, 202551, 202552}
	for i, w := range wantSales {
		if row.SalesWeeks[i] != w {
			t.Fatalf("sales weeks = %v", row.SalesWeeks)
		}
	}
	if row.PlanWeeks[0] != 202601 || row.PlanWeeks[4] != 202605 {
		t.Fatalf("plan weeks = %v", row.PlanWeeks)
	}
	if domain.Float(row.ActualSales[0]) != 5 || row.ActualSales[1] != nil || domain.Float(row.ActualSales[4]) != 7 {
		t.Fatalf("actual sales = %v", row.ActualSales)
	}
	if domain.Float(row.PlannedDemand[0]) != 10 || domain.Float(row.PlannedDemand[4]) != 14 {
		t.Fatalf("planned demand = %v", row.PlannedDemand)
	}
	if domain.Float(row.ListPrice2) != 9990 || domain.Str(row.Action2) != "Subir" || row.ListPrice4 != nil {
		t.Fatalf("row = %+v", row)
	}

	key := domain.ItemKey(testNode, "Beiersdorf", "SKU1")
	if report.ScenariosBySKU[key][domain.ScenarioDiscount5].Price != 9490 || report.TotalScenarios != 1 {
		t.Fatalf("scenarios = %+v", report.ScenariosBySKU)
	}
	if report.AppliedScenarios[key].Scenario != "Descuento_5" {
		t.Fatalf("applied = %+v", report.AppliedScenarios)
	}
	if len(report.Nodes) != 2 || report.Nodes[0] != "Falabella" || len(report.Accounts) != 2 {
		t.Fatalf("nodes = %v, accounts = %v", report.Nodes, report.Accounts)
	}

	if _, err := svc.Report(ctx, 202601, "", "Beiersdorf"); err != nil {
		t.Fatalf("cached report: %v", err)
	}
	if rc.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", rc.sets)
	}

	_, err = svc.Report(ctx, 201952, "", "")
	if pe, ok := domain.AsPassError(err); !ok || pe.Type != domain.ErrorTypeInvalidRequest {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}

func TestSaveChanges(t *testing.T) {
	svc, demand, rc, store := newPlanFixture(t)
	ctx := context.Background()
	demand.Seed(
		domain.DemandRecord{Week: 202601, Node: testNode, Account: "Beiersdorf", SKU: "SKU1",
			PlannedDemand: domain.Ptr(10.0), ListPrice: domain.Ptr(9990.0)},
		domain.DemandRecord{Week: 202601, Node: testNode, Account: "Beiersdorf", SKU: "SKU2",
			PlannedDemand: domain.Ptr(4.0), ListPrice: domain.Ptr(9990.0)},
	)

	req := EditRequest{
		User:      "ana",
		IPAddress: "10.0.0.1",
		Changes: []domain.PlanChange{
			{Node: testNode, Account: "Beiersdorf", SKU: "SKU1", Week: 202601,
				PlannedDemand: domain.Ptr(20.0), AppliedScenario: "Descuento_5"},
			{Node: testNode, Account: "Beiersdorf", SKU: "SKU1", Week: 202602, PlannedDemand: domain.Ptr(1.0)},
			{Node: testNode, Account: "Beiersdorf", Week: 202601, PlannedDemand: domain.Ptr(1.0)},
			{Node: testNode, Account: "Beiersdorf", SKU: "SKU1", Week: 202601},
			{Node: testNode, Account: "Beiersdorf", SKU: "SKU2", Week: 202601,
				ListPrice: domain.Ptr(8990.0), Action: domain.Ptr("Bajar")},
		},
	}
	result, err := svc.SaveChanges(ctx, req)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if result.Updated != 2 || len(result.Errors) != 2 {
		t.Fatalf("result = %+v", result)
	}
	if !hasError(result.Errors, "No existe registro para SKU1 semana 202602") ||
		!hasError(result.Errors, "Registro inválido") {
		t.Fatalf("errors = %v", result.Errors)
	}

	rec, _ := demand.Find(202601, testNode, "Beiersdorf", "SKU1")
	if domain.Float(rec.PlannedDemand) != 20 || domain.Float(rec.ListPrice) != 9990 {
		t.Fatalf("SKU1 = %+v", rec)
	}
	rec, _ = demand.Find(202601, testNode, "Beiersdorf", "SKU2")
	if domain.Float(rec.ListPrice) != 8990 || domain.Str(rec.Action) != "Bajar" {
		t.Fatalf("SKU2 = %+v", rec)
	}

	history, _ := store.Audit.ListByWeek(ctx, 202601)
	if len(history) != 2 {
		t.Fatalf("history = %+v", history)
	}
	var single, multiple *domain.AuditEntry
	for i := range history {
		if history[i].Field == domain.MultipleFields {
			multiple = &history[i]
		} else {
			single = &history[i]
		}
	}
	if single == nil || multiple == nil {
		t.Fatalf("history = %+v", history)
	}
	if single.SKU != "SKU1" || single.Field != string(domain.FieldPlannedDemand) ||
		domain.Str(single.OldValue) != "10" || domain.Str(single.NewValue) != "20" {
		t.Fatalf("single = %+v", single)
	}
	if single.AppliedScenario != "Descuento_5" || domain.Str(single.IPAddress) != "10.0.0.1" || single.User != "ana" {
		t.Fatalf("single = %+v", single)
	}
	if multiple.SKU != "SKU2" || multiple.Details == nil || multiple.AppliedScenario != string(domain.ScenarioManualOverride) {
		t.Fatalf("multiple = %+v", multiple)
	}
	if !rc.wasInvalidated(202601) {
		t.Fatal("report cache was not invalidated")
	}

	for _, bad := range []EditRequest{{User: "ana"}, {Changes: req.Changes[:1]}} {
		_, err := svc.SaveChanges(ctx, bad)
		if pe, ok := domain.AsPassError(err); !ok || pe.Type != domain.ErrorTypeInvalidRequest {
			t.Fatalf("expected invalid_request, got %v", err)
		}
	}
}

func TestSaveChangesMergesEditsOfOneWeek(t *testing.T) {
	svc, demand, _, store := newPlanFixture(t)
	ctx := context.Background()
	demand.Seed(domain.DemandRecord{Week: 202601, Node: testNode, Account: "Beiersdorf", SKU: "SKU1",
		PlannedDemand: domain.Ptr(10.0), ListPrice: domain.Ptr(9990.0)})

	result, err := svc.SaveChanges(ctx, EditRequest{
		User: "ana",
		Changes: []domain.PlanChange{
			{Node: testNode, Account: "Beiersdorf", SKU: "SKU1", Week: 202601, PlannedDemand: domain.Ptr(20.0)},
			{Node: testNode, Account: "Beiersdorf", SKU: "SKU1", Week: 202601, PlannedDemand: domain.Ptr(25.0),
				Action: domain.Ptr("Subir")},
			{Node: testNode, Account: "Beiersdorf", SKU: "SKU1", Week: 202553, PlannedDemand: domain.Ptr(1.0)},
		},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if result.Updated != 1 || len(result.Errors) != 1 || !hasError(result.Errors, "Semana inválida") {
		t.Fatalf("result = %+v", result)
	}

	rec, _ := demand.Find(202601, testNode, "Beiersdorf", "SKU1")
	if domain.Float(rec.PlannedDemand) != 25 || domain.Str(rec.Action) != "Subir" {
		t.Fatalf("record = %+v", rec)
	}
	history, _ := store.Audit.ListByWeek(ctx, 202601)
	if len(history) != 1 || history[0].Field != domain.MultipleFields {
		t.Fatalf("history = %+v", history)
	}
}

func TestSaveChangesAppliesCatalogScenario(t *testing.T) {
	svc, demand, _, store := newPlanFixture(t)
	ctx := context.Background()
	demand.Seed(
		domain.DemandRecord{Week: 202603, Node: testNode, Account: "Beiersdorf", SKU: "SKU1",
			PlannedDemand: domain.Ptr(10.0), ListPrice: domain.Ptr(9990.0)},
		domain.DemandRecord{Week: 202603, Node: testNode, Account: "Beiersdorf", SKU: "SKU2",
			PlannedDemand: domain.Ptr(10.0), ListPrice: domain.Ptr(9990.0)},
	)
	if err := store.Scenarios.Upsert(ctx, domain.ScenarioEntry{Node: testNode, Account: "Beiersdorf", SKU: "SKU1",
		Scenario: domain.ScenarioDiscount10, Quantity: 120, Price: 8990}); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}

	result, err := svc.SaveChanges(ctx, EditRequest{
		User:          "ana",
		ReferenceWeek: 202601,
		Changes: []domain.PlanChange{
			{Node: testNode, Account: "Beiersdorf", SKU: "SKU1", Week: 202603, AppliedScenario: "Descuento_10"},
			{Node: testNode, Account: "Beiersdorf", SKU: "SKU2", Week: 202603, AppliedScenario: "Descuento_10"},
		},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if result.Updated != 1 || len(result.Errors) != 1 || !hasError(result.Errors, "Escenario Descuento_10 no disponible para SKU2") {
		t.Fatalf("result = %+v", result)
	}

	rec, _ := demand.Find(202603, testNode, "Beiersdorf", "SKU1")
	if domain.Float(rec.PlannedDemand) != 120 || domain.Float(rec.ListPrice) != 8990 {
		t.Fatalf("record = %+v", rec)
	}
	untouched, _ := demand.Find(202603, testNode, "Beiersdorf", "SKU2")
	if domain.Float(untouched.PlannedDemand) != 10 {
		t.Fatalf("SKU2 = %+v", untouched)
	}
	history, _ := store.Audit.ListByWeek(ctx, 202603)
	if len(history) != 1 || history[0].AppliedScenario != "Descuento_10" {
		t.Fatalf("history = %+v", history)
	}
}

func hasError(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestDetail(t *testing.T) {
	svc, demand, _, _ := newPlanFixture(t)
	ctx := context.Background()
	demand.Seed(domain.DemandRecord{Week: 202601, Node: testNode, Account: "Beiersdorf", SKU: "SKU1",
		StartingStock: domain.Ptr(40.0), Availability: domain.Ptr(90.0)})

	detail, err := svc.Detail(ctx, testNode, "Beiersdorf", "SKU1", 202601)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail == nil || domain.Float(detail.StartingStock) != 40 || domain.Float(detail.Availability) != 90 {
		t.Fatalf("detail = %+v", detail)
	}

	missing, err := svc.Detail(ctx, testNode, "Beiersdorf", "SKU1", 202602)
	if err != nil || missing != nil {
		t.Fatalf("missing = %+v, %v", missing, err)
	}

	_, err = svc.Detail(ctx, testNode, "", "SKU1", 202601)
	if pe, ok := domain.AsPassError(err); !ok || pe.Type != domain.ErrorTypeInvalidRequest {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}

const stockCSV = "sku,stock,cliente,fecha\n" +
	"SKU1,3,Beiersdorf,29-12-2025\n" +
	"SKU2,4,Nivea,22-12-2025\n" +
	"SKU3,1,Nivea,29-12-2025\n"

func TestImportFileGroupsSnapshots(t *testing.T) {
	stock := memory.NewStockStore(domain.StockSnapshot{SKU: "OLD", Stock: 9, SnapshotDate: "29-12-2025", Country: "Chile"})
	svc := NewStockImportService(stock, nil, nil, "Chile")
	ctx := context.Background()

	result, err := svc.ImportFile(ctx, "stock.csv", []byte(stockCSV), "", "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	want := []SnapshotLoad{
		{Date: "22-12-2025", Country: "Chile", Rows: 1},
		{Date: "29-12-2025", Country: "Chile", Rows: 2},
	}
	if result.Total != 3 || len(result.Loads) != 2 || result.Loads[0] != want[0] || result.Loads[1] != want[1] {
		t.Fatalf("result = %+v", result)
	}

	rows, _ := stock.ListByDate(ctx, "29-12-2025", "Chile")
	if len(rows) != 2 {
		t.Fatalf("snapshot rows = %+v", rows)
	}
	for _, r := range rows {
		if r.SKU == "OLD" {
			t.Fatal("previous snapshot rows were not replaced")
		}
	}

	overridden, err := svc.ImportFile(ctx, "stock.csv", []byte(stockCSV), "2026-01-05", "Peru")
	if err != nil {
		t.Fatalf("import with override: %v", err)
	}
	if len(overridden.Loads) != 1 || overridden.Loads[0] != (SnapshotLoad{Date: "2026-01-05", Country: "Peru", Rows: 3}) {
		t.Fatalf("overridden = %+v", overridden.Loads)
	}

	_, err = svc.ImportFile(ctx, "stock.csv", []byte(stockCSV), "05/2026", "")
	if pe, ok := domain.AsPassError(err); !ok || pe.Type != domain.ErrorTypeInvalidRequest {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}

func TestImportFromDrive(t *testing.T) {
	ctx := context.Background()
	stock := memory.NewStockStore()

	_, err := NewStockImportService(stock, nil, nil, "Chile").ImportFromDrive(ctx, "folder", "", "")
	if pe, ok := domain.AsPassError(err); !ok || pe.Type != domain.ErrorTypeConfig {
		t.Fatalf("expected config_error, got %v", err)
	}

	src := &fakeDrive{file: &drive.File{ID: "f1", Name: "stock.csv"}, data: stockCSV}
	svc := NewStockImportService(stock, src, nil, "Chile")
	result, err := svc.ImportFromDrive(ctx, "Stock/Diario", "", "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.File != "stock.csv" || result.Total != 3 {
		t.Fatalf("result = %+v", result)
	}

	_, err = NewStockImportService(stock, &fakeDrive{}, nil, "Chile").ImportFromDrive(ctx, "folder", "", "")
	if !errors.Is(err, drive.ErrNoStockFile) {
		t.Fatalf("expected ErrNoStockFile, got %v", err)
	}
}

func TestConnections(t *testing.T) {
	store := memory.NewStore()
	status := NewHealthService(store.Demand, nil, nil).Connections(context.Background())
	if !status.Store || status.Cache || status.SalesSource {
		t.Fatalf("status = %+v", status)
	}

	status = NewHealthService(store.Demand, newRecordingCache(), &fakeSalesSource{}).Connections(context.Background())
	if !status.Store || !status.Cache || !status.SalesSource {
		t.Fatalf("status = %+v", status)
	}
}

func TestStoreReadFailureRecordsFailedRun(t *testing.T) {
	f := newReconcileFixture(t, nil)
	ctx := context.Background()
	reads := 0
	f.demand.FailSelect = func(domain.RecordFilter) error {
		reads++
		if reads == 2 {
			return errors.New("connection refused")
		}
		return nil
	}

	csv := "semana,cliente,seller_sku,total_vendido,precio_promedio\n202601,Beiersdorf,SKU1,49,0\n"
	if _, err := f.svc.UploadSales(ctx, 202601, "", "ventas.csv", []byte(csv)); err == nil {
		t.Fatal("expected the pass to fail")
	}
	f.demand.FailSelect = nil

	runs, _ := f.svc.Runs(ctx, 202601, testNode, 5)
	if len(runs) != 1 || runs[0].Status != domain.RunStatusFailed || runs[0].ErrorMessage == nil {
		t.Fatalf("runs = %+v", runs)
	}
	if f.cache.wasInvalidated(202601) {
		t.Fatal("failed pass must not invalidate the cache")
	}
}
