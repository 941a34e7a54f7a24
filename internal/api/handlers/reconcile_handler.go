package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/service"
)

type ReconcileHandler struct {
	service *service.ReconcileService
}

func NewReconcileHandler(service *service.ReconcileService) *ReconcileHandler {
	return &ReconcileHandler{service: service}
}

// UploadSales handles POST /sales/upload (multipart: file, week, node).
func (h *ReconcileHandler) UploadSales(c *gin.Context) {
	filename, data, err := readUpload(c)
	if err != nil {
		respondError(c, err)
		return
	}
	week, err := parseWeek(c.PostForm("week"))
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.service.UploadSales(c.Request.Context(), week, firstValue(c, "node", "nodo"), filename, data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, salesResponse(result))
}

// SyncSales handles POST /sales/sync ({week, node}).
func (h *ReconcileHandler) SyncSales(c *gin.Context) {
	week, node, err := bindCohort(c)
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := h.service.SyncSales(c.Request.Context(), week, node)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, salesResponse(result))
}

// UpdateStock handles POST /stock/update ({week, node}).
func (h *ReconcileHandler) UpdateStock(c *gin.Context) {
	week, node, err := bindCohort(c)
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := h.service.UpdateStock(c.Request.Context(), week, node)
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{
		"success":     true,
		"updated":     result.Updated,
		"inserted":    result.Inserted,
		"notFound":    result.NotFound,
		"nullUpdated": result.NullUpdated,
		"calculated":  result.Calculated,
		"failed":      result.Failed,
		"totalStock":  result.TotalStock,
		"mondayDate":  result.MondayDate,
		"duration":    domain.FormatSeconds(result.Duration),
		"message":     result.Message(),
	}
	if msgs := result.ErrorMessages(); len(msgs) > 0 {
		body["errors"] = msgs
	}
	c.JSON(http.StatusOK, body)
}

// Sweep handles POST /reconcile/sweep ({week, node}).
func (h *ReconcileHandler) Sweep(c *gin.Context) {
	week, node, err := bindCohort(c)
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := h.service.Sweep(c.Request.Context(), week, node)
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{
		"success": true,
		"scanned": result.Scanned,
		"updated": result.Updated,
		"failed":  result.Failed,
		"message": fmt.Sprintf("Campos nulos completados en %d de %d registros", result.Updated, result.Scanned),
	}
	if msgs := result.ErrorMessages(); len(msgs) > 0 {
		body["errors"] = msgs
	}
	c.JSON(http.StatusOK, body)
}

// RelativeErrors handles POST /errors/relative ({week, node}).
func (h *ReconcileHandler) RelativeErrors(c *gin.Context) {
	week, node, err := bindCohort(c)
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := h.service.RelativeErrors(c.Request.Context(), week, node)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"processed": result.Processed,
		"avgError":  result.AvgError,
		"message":   fmt.Sprintf("Errores calculados para %d registros", result.Processed),
	})
}

// ListRuns handles GET /reconcile/runs?week=&node=&limit=.
func (h *ReconcileHandler) ListRuns(c *gin.Context) {
	var week domain.Week
	if raw := c.Query("week"); raw != "" {
		w, err := parseWeek(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		week = w
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	runs, err := h.service.Runs(c.Request.Context(), week, firstValue(c, "node", "nodo"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "runs": runs})
}

func salesResponse(result *domain.SalesResult) gin.H {
	body := gin.H{
		"success":      true,
		"updated":      result.Updated,
		"inserted":     result.Inserted,
		"noSales":      result.NoSales,
		"failed":       result.Failed,
		"total":        result.Total(),
		"recalculated": result.Recalculated,
		"duration":     domain.FormatSeconds(result.Duration),
		"details":      result.Details,
		"message":      result.Message(),
	}
	if msgs := result.ErrorMessages(); len(msgs) > 0 {
		body["errors"] = msgs
	}
	return body
}
