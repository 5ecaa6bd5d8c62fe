package handler

import (
	"net/http"
	"strconv"

	"offer-parser/internal/model"
	"offer-parser/internal/service"

	"github.com/labstack/echo/v4"
)

type ParsingHandler struct {
	recordService     service.RecordService
	parseService      service.ParseService
	correctionService service.CorrectionService
	schemaService     service.SchemaService
	defaultBatchSize  int
	logger            echo.Logger
}

func NewParsingHandler(
	recordService service.RecordService,
	parseService service.ParseService,
	correctionService service.CorrectionService,
	schemaService service.SchemaService,
	defaultBatchSize int,
	logger echo.Logger,
) *ParsingHandler {
	return &ParsingHandler{
		recordService:     recordService,
		parseService:      parseService,
		correctionService: correctionService,
		schemaService:     schemaService,
		defaultBatchSize:  defaultBatchSize,
		logger:            logger,
	}
}

// ParseEmail extracts one record with the active schema. A failed extraction
// answers 502 and still carries the failed record.
func (h *ParsingHandler) ParseEmail(c echo.Context) error {
	discard, _ := strconv.ParseBool(c.QueryParam("discard_correction"))

	email, err := h.parseService.ParseOne(c.Request().Context(), c.Param("id"), service.ParseOptions{
		DiscardCorrection: discard,
	})
	if err != nil {
		if email != nil {
			return c.JSON(errorStatus(err), map[string]interface{}{
				"error":     err.Error(),
				"transient": service.IsTransient(err),
				"email":     email,
			})
		}
		return errorJSON(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, email)
}

// ParseBatch runs the batch scheduler over pending and failed records
func (h *ParsingHandler) ParseBatch(c echo.Context) error {
	var req struct {
		Count int `json:"count"`
	}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "Invalid request body",
			})
		}
	}
	if req.Count < 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "count must be positive",
		})
	}
	if req.Count == 0 {
		req.Count = h.defaultBatchSize
	}

	job, err := h.parseService.RunBatch(c.Request().Context(), req.Count)
	if err != nil {
		return errorJSON(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, job)
}

func (h *ParsingHandler) MarkReviewed(c echo.Context) error {
	email, err := h.recordService.MarkReviewed(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, email)
}

// SaveCorrection stores a reviewer's document for a record
func (h *ParsingHandler) SaveCorrection(c echo.Context) error {
	var req struct {
		CorrectedData model.Document `json:"corrected_data"`
		CorrectedBy   string         `json:"corrected_by"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	email, err := h.correctionService.SaveCorrection(c.Request().Context(), c.Param("id"), req.CorrectedData, req.CorrectedBy)
	if err != nil {
		return errorJSON(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, email)
}

// ForceFail releases a record stuck in parsing
func (h *ParsingHandler) ForceFail(c echo.Context) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "Invalid request body",
			})
		}
	}

	email, err := h.recordService.ForceFail(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return errorJSON(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, email)
}

func (h *ParsingHandler) GetSchema(c echo.Context) error {
	active, err := h.schemaService.GetActive(c.Request().Context())
	if err != nil {
		return errorJSON(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, active)
}

// UpdateSchema swaps the active schema. Existing extractions are kept as they are.
func (h *ParsingHandler) UpdateSchema(c echo.Context) error {
	var req struct {
		Schema model.Document `json:"schema"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}
	if req.Schema == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "schema is required",
		})
	}

	active, err := h.schemaService.SetActive(c.Request().Context(), req.Schema)
	if err != nil {
		return errorJSON(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, active)
}
