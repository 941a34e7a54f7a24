package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
)

// MaxUploadBytes caps the size of an uploaded file.
const MaxUploadBytes = 32 << 20

// cohortRequest is the JSON body of the pass endpoints. The UI still sends
// "nodo" and may send the week as a string.
type cohortRequest struct {
	Week json.RawMessage `json:"week"`
	Node string          `json:"node"`
	Nodo string          `json:"nodo"`
}

func (r cohortRequest) node() string {
	if r.Node != "" {
		return r.Node
	}
	return r.Nodo
}

func bindCohort(c *gin.Context) (domain.Week, string, error) {
	var req cohortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return 0, "", &domain.PassError{Type: domain.ErrorTypeInvalidRequest, Message: "Cuerpo de la solicitud inválido", Err: err}
	}
	week, err := parseWeek(strings.Trim(string(req.Week), `"`))
	if err != nil {
		return 0, "", err
	}
	return week, strings.TrimSpace(req.node()), nil
}

func parseWeek(raw string) (domain.Week, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return 0, domain.NewPassError(domain.ErrorTypeInvalidRequest, "Semana no especificada")
	}
	week, err := domain.ParseWeek(raw)
	if err != nil {
		return 0, &domain.PassError{
			Type:    domain.ErrorTypeInvalidRequest,
			Message: "Semana inválida. Formato esperado: YYYYWW (ej: 202601)",
			Err:     err,
		}
	}
	return week, nil
}

// firstValue returns the first non-empty query or form value among keys.
func firstValue(c *gin.Context, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(c.Query(k)); v != "" {
			return v
		}
		if v := strings.TrimSpace(c.PostForm(k)); v != "" {
			return v
		}
	}
	return ""
}

func readUpload(c *gin.Context) (string, []byte, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, domain.NewPassError(domain.ErrorTypeInvalidRequest, "No se proporcionó archivo")
	}
	if fh.Size > MaxUploadBytes {
		return "", nil, domain.NewPassError(domain.ErrorTypeInvalidRequest,
			fmt.Sprintf("El archivo supera el máximo de %d MB", MaxUploadBytes>>20))
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return fh.Filename, data, nil
}

// respondError writes {success:false, error, errorType, ...details}.
// Expected failures keep status 200 so the UI can branch on errorType;
// bad requests get 400 and a held cohort 409.
func respondError(c *gin.Context, err error) {
	pe, ok := domain.AsPassError(err)
	if !ok {
		log.Error().Err(err).Str("path", c.FullPath()).Str("request_id", c.GetString("request_id")).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Error interno: " + err.Error()})
		return
	}

	body := gin.H{"success": false, "error": pe.Message, "errorType": pe.Type}
	for k, v := range pe.Details {
		body[k] = v
	}
	if pe.Err != nil {
		log.Warn().Err(pe.Err).Str("type", string(pe.Type)).Str("path", c.FullPath()).Msg(pe.Message)
	}
	c.JSON(passErrorStatus(pe.Type), body)
}

func passErrorStatus(t domain.ErrorType) int {
	switch t {
	case domain.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case domain.ErrorTypeCohortBusy:
		return http.StatusConflict
	default:
		return http.StatusOK
	}
}
