package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

// Upload kinds used as the second path segment of archive keys.
const (
	KindSales     = "sales"
	KindPlan      = "plan"
	KindScenarios = "scenarios"
	KindStock     = "stock"
)

// Archiver keeps a copy of every accepted upload. Failures are logged only.
type Archiver struct {
	store ObjectStorage
	newID func() string
}

func NewArchiver(store ObjectStorage) *Archiver {
	if store == nil {
		store = Noop{}
	}
	return &Archiver{store: store, newID: uuid.NewString}
}

// ArchiveKey builds uploads/<kind>/<week>/<id>-<filename>.
func ArchiveKey(kind string, week domain.Week, id, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return fmt.Sprintf("uploads/%s/%d/%s-%s", kind, int(week), id, name)
}

// Archive stores data and returns the key it used, or "" on failure.
func (a *Archiver) Archive(ctx context.Context, kind string, week domain.Week, filename string, data []byte) string {
	if _, ok := a.store.(Noop); ok {
		return ""
	}
	key := ArchiveKey(kind, week, a.newID(), filename)
	if err := a.store.UploadObject(ctx, key, data, contentType(filename)); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("upload archive failed")
		return ""
	}
	log.Debug().Str("key", key).Int("bytes", len(data)).Msg("upload archived")
	return key
}

func contentType(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
