package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/drive"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/ingest"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/repository"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/storage"
)

// DriveSource is the part of the Drive client used to fetch snapshots.
type DriveSource interface {
	LatestStockFile(ctx context.Context, folder string) (*drive.File, error)
	DownloadFile(ctx context.Context, fileID string, w io.Writer) error
}

var _ DriveSource = (*drive.Service)(nil)

// SnapshotLoad is one (date, country) group written by an import.
type SnapshotLoad struct {
	Date    string `json:"date"`
	Country string `json:"country"`
	Rows    int    `json:"rows"`
}

// StockImportResult summarises a stock snapshot import.
type StockImportResult struct {
	File       string         `json:"file"`
	Loads      []SnapshotLoad `json:"loads"`
	Total      int            `json:"total"`
	ArchiveKey string         `json:"archiveKey,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

// StockImportService loads stock snapshot files into stock_snapshots.
type StockImportService struct {
	stock   repository.StockSnapshotRepository
	drive   DriveSource
	archive *storage.Archiver
	country string
	now     func() time.Time
}

// NewStockImportService creates the service. driveSrc may be nil when
// Drive is not configured.
func NewStockImportService(stock repository.StockSnapshotRepository, driveSrc DriveSource, archive *storage.Archiver, country string) *StockImportService {
	if archive == nil {
		archive = storage.NewArchiver(nil)
	}
	return &StockImportService{stock: stock, drive: driveSrc, archive: archive, country: country, now: time.Now}
}

// ImportFile loads a CSV or XLSX snapshot. A non-empty date or country
// overrides the values carried by each row; rows without a country use the
// configured one.
func (s *StockImportService) ImportFile(ctx context.Context, filename string, data []byte, date, country string) (*StockImportResult, error) {
	start := s.now()
	if date != "" {
		if _, err := domain.ParseSnapshotDate(date); err != nil {
			return nil, &domain.PassError{
				Type:    domain.ErrorTypeInvalidRequest,
				Message: fmt.Sprintf("Fecha inválida %q. Formatos aceptados: YYYY-MM-DD o DD-MM-YYYY", date),
				Err:     err,
			}
		}
	}

	table, err := ingest.ReadTable(bytes.NewReader(data), filename)
	if err != nil {
		return nil, err
	}
	rows, err := ingest.StockFromTable(table, filename, date, country)
	if err != nil {
		return nil, err
	}

	groups := map[SnapshotLoad][]domain.StockSnapshot{}
	for _, row := range rows {
		if row.Country == "" {
			row.Country = s.country
		}
		key := SnapshotLoad{Date: row.SnapshotDate, Country: row.Country}
		groups[key] = append(groups[key], row)
	}

	keys := make([]SnapshotLoad, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Country != keys[j].Country {
			return keys[i].Country < keys[j].Country
		}
		return keys[i].Date < keys[j].Date
	})

	result := &StockImportResult{File: filename}
	for _, k := range keys {
		n, err := s.stock.ReplaceSnapshot(ctx, k.Date, k.Country, groups[k])
		if err != nil {
			return nil, fmt.Errorf("replace snapshot %s/%s: %w", k.Date, k.Country, err)
		}
		k.Rows = n
		result.Loads = append(result.Loads, k)
		result.Total += n
	}

	archiveWeek := domain.WeekOf(start)
	if t, err := domain.ParseSnapshotDate(keys[0].Date); err == nil {
		archiveWeek = domain.WeekOf(t)
	}
	result.ArchiveKey = s.archive.Archive(ctx, storage.KindStock, archiveWeek, filename, data)
	result.Duration = s.now().Sub(start)

	log.Info().
		Str("file", filename).
		Int("groups", len(result.Loads)).
		Int("count", result.Total).
		Dur("duration", result.Duration).
		Msg("stock snapshot imported")
	return result, nil
}

// ImportFromDrive loads the most recent CSV or XLSX file of a Drive folder.
func (s *StockImportService) ImportFromDrive(ctx context.Context, folder, date, country string) (*StockImportResult, error) {
	if s.drive == nil {
		return nil, domain.NewPassError(domain.ErrorTypeConfig, "Google Drive no está configurado (GOOGLE_DRIVE_CREDENTIALS_JSON)")
	}
	if folder == "" {
		return nil, domain.NewPassError(domain.ErrorTypeConfig, "No se indicó la carpeta de Drive (GOOGLE_DRIVE_STOCK_FOLDER)")
	}

	file, err := s.drive.LatestStockFile(ctx, folder)
	if err != nil {
		return nil, fmt.Errorf("find stock file in %s: %w", folder, err)
	}
	log.Info().Str("file", file.Name).Str("modified", file.ModifiedTime).Msg("downloading stock snapshot from drive")

	var buf bytes.Buffer
	if err := s.drive.DownloadFile(ctx, file.ID, &buf); err != nil {
		return nil, fmt.Errorf("download %s: %w", file.Name, err)
	}
	return s.ImportFile(ctx, file.Name, buf.Bytes(), date, country)
}
