package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"offer-parser/internal/intake"
	"offer-parser/internal/model"
	"offer-parser/internal/repository"
	"offer-parser/internal/service"
	"offer-parser/internal/sse"

	"github.com/labstack/echo/v4"
)

type EmailHandler struct {
	recordService service.RecordService
	ingestService service.IngestService
	sseManager    *sse.SSEManager
	logger        echo.Logger
}

func NewEmailHandler(recordService service.RecordService, ingestService service.IngestService, sseManager *sse.SSEManager, logger echo.Logger) *EmailHandler {
	return &EmailHandler{
		recordService: recordService,
		ingestService: ingestService,
		sseManager:    sseManager,
		logger:        logger,
	}
}

type emailListResponse struct {
	Emails   []*model.Email `json:"emails"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// emailDetail adds the document shown to reviewers: the correction when
// present, otherwise the extraction.
type emailDetail struct {
	*model.Email
	DisplayData model.Document `json:"display_data"`
}

// ListEmails returns one page of records, newest first
func (h *EmailHandler) ListEmails(c echo.Context) error {
	filter := repository.EmailFilter{
		AccountID: c.QueryParam("account_id"),
	}
	if s := c.QueryParam("status"); s != "" {
		status, err := model.ParseStatus(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
		}
		filter.Status = status
	}
	filter.Page, _ = strconv.Atoi(c.QueryParam("page"))
	filter.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))
	filter = filter.Normalize()

	emails, total, err := h.recordService.List(c.Request().Context(), filter)
	if err != nil {
		return errorJSON(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, emailListResponse{
		Emails:   emails,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
}

// GetStats returns the number of records per status
func (h *EmailHandler) GetStats(c echo.Context) error {
	counts, err := h.recordService.Stats(c.Request().Context())
	if err != nil {
		return errorJSON(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"total":     counts.Total(),
		"by_status": counts,
	})
}

func (h *EmailHandler) GetEmail(c echo.Context) error {
	email, err := h.recordService.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorJSON(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, emailDetail{Email: email, DisplayData: email.EffectiveData()})
}

// ImportEmail stores a raw RFC 822 message as a pending record
func (h *EmailHandler) ImportEmail(c echo.Context) error {
	accountID := c.QueryParam("account_id")
	if accountID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "account_id is required",
		})
	}

	msg, err := intake.ParseMessage(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	email, created, err := h.ingestService.Import(c.Request().Context(), accountID, msg)
	if err != nil {
		return errorJSON(c, h.logger, err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, map[string]interface{}{
		"email":   email,
		"created": created,
	})
}

// SSEEmailUpdates provides Server-Sent Events for real-time record updates
func (h *EmailHandler) SSEEmailUpdates(c echo.Context) error {
	// Set response headers for SSE
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")

	clientChannel := h.sseManager.AddClient()
	defer h.sseManager.RemoveClient(clientChannel)

	// Send initial connection confirmation
	initEvent := map[string]interface{}{
		"type": "connection",
		"data": map[string]string{
			"message": "Connected to email updates",
		},
		"time": time.Now().Unix(),
	}
	initJSON, _ := json.Marshal(initEvent)
	fmt.Fprintf(c.Response(), "data: %s\n\n", initJSON)
	c.Response().Flush()

	for {
		select {
		case eventData, ok := <-clientChannel:
			if !ok {
				return nil
			}
			fmt.Fprintf(c.Response(), "data: %s\n\n", eventData)
			c.Response().Flush()
		case <-c.Request().Context().Done():
			// Client disconnected
			return nil
		}
	}
}
