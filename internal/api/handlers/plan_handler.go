package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/service"
)

type PlanHandler struct {
	service *service.PlanService
}

func NewPlanHandler(service *service.PlanService) *PlanHandler {
	return &PlanHandler{service: service}
}

type reportResponse struct {
	Success bool `json:"success"`
	*domain.PlanReport
}

// UploadPlan handles POST /plan/upload (multipart: file, week, node).
func (h *PlanHandler) UploadPlan(c *gin.Context) {
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

	result, err := h.service.UploadPlan(c.Request.Context(), week, firstValue(c, "node", "nodo"), filename, data)
	if err != nil {
		respondError(c, err)
		return
	}
	body := gin.H{
		"success":  true,
		"inserted": result.Inserted,
		"updated":  result.Updated,
		"total":    result.Total,
		"details":  result.Details,
		"message":  result.Message(),
	}
	if len(result.Errors) > 0 {
		body["errors"] = result.Errors
	}
	c.JSON(http.StatusOK, body)
}

// UploadScenarios handles POST /scenarios/upload (multipart: file).
func (h *PlanHandler) UploadScenarios(c *gin.Context) {
	filename, data, err := readUpload(c)
	if err != nil {
		respondError(c, err)
		return
	}
	result, err := h.service.UploadScenarios(c.Request.Context(), filename, data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        result.Message(),
		"inserted":       result.Inserted,
		"lineErrors":     nonNil(result.LineErrors),
		"dbErrors":       nonNil(result.DBErrors),
		"totalProcessed": result.TotalProcessed,
		"details": gin.H{
			"lineErrors": len(result.LineErrors),
			"dbErrors":   len(result.DBErrors),
		},
	})
}

// Report handles GET /plan?week=&node=&account=.
func (h *PlanHandler) Report(c *gin.Context) {
	week, err := parseWeek(firstValue(c, "week", "semana"))
	if err != nil {
		respondError(c, err)
		return
	}
	report, err := h.service.Report(c.Request.Context(), week, firstValue(c, "node", "nodo"), firstValue(c, "account", "cuenta"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reportResponse{Success: true, PlanReport: report})
}

// SaveChanges handles POST /plan.
func (h *PlanHandler) SaveChanges(c *gin.Context) {
	var req service.EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, &domain.PassError{Type: domain.ErrorTypeInvalidRequest, Message: "Cuerpo de la solicitud inválido", Err: err})
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Request.UserAgent()
	}

	result, err := h.service.SaveChanges(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": len(result.Errors) == 0,
		"message": result.Message(),
		"results": result,
	})
}

// Detail handles GET /plan/detail?node=&account=&sku=&week=.
func (h *PlanHandler) Detail(c *gin.Context) {
	var week domain.Week
	if raw := firstValue(c, "week", "semana"); raw != "" {
		w, err := parseWeek(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		week = w
	}

	detail, err := h.service.Detail(c.Request.Context(),
		firstValue(c, "node", "nodo"),
		firstValue(c, "account", "cuenta"),
		firstValue(c, "sku", "sku_seller"),
		week)
	if err != nil {
		respondError(c, err)
		return
	}
	if detail == nil {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"detail":  nil,
			"message": "No se encontraron registros para esta publicación y semana",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "detail": detail})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
