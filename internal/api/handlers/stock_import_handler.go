package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/service"
)

type StockImportHandler struct {
	service     *service.StockImportService
	driveFolder string
}

// NewStockImportHandler creates the handler. driveFolder is used when a
// request carries no file.
func NewStockImportHandler(service *service.StockImportService, driveFolder string) *StockImportHandler {
	return &StockImportHandler{service: service, driveFolder: driveFolder}
}

// Import handles POST /stock/import. With a multipart file it loads that
// file; without one it pulls the latest file of the Drive folder.
func (h *StockImportHandler) Import(c *gin.Context) {
	date := firstValue(c, "date", "fecha")
	country := firstValue(c, "country", "pais")

	var (
		result *service.StockImportResult
		err    error
	)
	if _, ferr := c.FormFile("file"); ferr == nil {
		filename, data, rerr := readUpload(c)
		if rerr != nil {
			respondError(c, rerr)
			return
		}
		result, err = h.service.ImportFile(c.Request.Context(), filename, data, date, country)
	} else {
		folder := firstValue(c, "folder")
		if folder == "" {
			folder = h.driveFolder
		}
		result, err = h.service.ImportFromDrive(c.Request.Context(), folder, date, country)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"file":     result.File,
		"loads":    result.Loads,
		"total":    result.Total,
		"duration": domain.FormatSeconds(result.Duration),
		"message":  "Stock cargado correctamente",
	})
}
