package storage

import (
	"context"
	"errors"
	"testing"
)

type recordingStorage struct {
	keys  []string
	types []string
	err   error
}

func (r *recordingStorage) ListObjects(context.Context, string) ([]ObjectInfo, error) { return nil, nil }

func (r *recordingStorage) UploadObject(_ context.Context, key string, _ []byte, ct string) error {
	if r.err != nil {
		return r.err
	}
	r.keys = append(r.keys, key)
	r.types = append(r.types, ct)
	return nil
}

func TestArchiveKey(t *testing.T) {
	tests := []struct {
		name, filename, want string
	}{
		{"plain", "ventas.csv", "uploads/sales/202601/abc-ventas.csv"},
		{"windows path", `C:\Users\plan\ventas.csv`, "uploads/sales/202601/abc-ventas.csv"},
		{"empty", "", "uploads/sales/202601/abc-upload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ArchiveKey(KindSales, 202601, "abc", tt.filename); got != tt.want {
				t.Fatalf("ArchiveKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArchiverStoresUpload(t *testing.T) {
	store := &recordingStorage{}
	a := NewArchiver(store)
	a.newID = func() string { return "fixed" }

	key := a.Archive(context.Background(), KindStock, 202601, "stock.xlsx", []byte("x"))
	if key != "uploads/stock/202601/fixed-stock.xlsx" || len(store.keys) != 1 {
		t.Fatalf("key = %q, stored = %v", key, store.keys)
	}
	if store.types[0] != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("content type = %s", store.types[0])
	}
}

func TestArchiverSwallowsFailures(t *testing.T) {
	a := NewArchiver(&recordingStorage{err: errors.New("bucket missing")})
	if key := a.Archive(context.Background(), KindSales, 202601, "ventas.csv", []byte("x")); key != "" {
		t.Fatalf("key = %q, want empty on failure", key)
	}
	if key := NewArchiver(nil).Archive(context.Background(), KindSales, 202601, "ventas.csv", nil); key != "" {
		t.Fatalf("noop archive returned %q", key)
	}
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{"https://s3.example.com/", false, "s3.example.com", true},
		{"http://minio:9000", true, "minio:9000", false},
		{"minio:9000", true, "minio:9000", true},
	}
	for _, tt := range tests {
		host, secure := splitEndpoint(tt.raw, tt.useSSL)
		if host != tt.wantHost || secure != tt.wantSecure {
			t.Errorf("splitEndpoint(%q) = %q, %v", tt.raw, host, secure)
		}
	}
}
