package handler

import (
	"net/http"

	"offer-parser/internal/service"

	"github.com/labstack/echo/v4"
)

type AccountHandler struct {
	ingestService service.IngestService
	logger        echo.Logger
}

func NewAccountHandler(ingestService service.IngestService, logger echo.Logger) *AccountHandler {
	return &AccountHandler{
		ingestService: ingestService,
		logger:        logger,
	}
}

func (h *AccountHandler) ListAccounts(c echo.Context) error {
	accounts, err := h.ingestService.ListAccounts(c.Request().Context())
	if err != nil {
		return errorJSON(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, accounts)
}

func (h *AccountHandler) CreateAccount(c echo.Context) error {
	var req struct {
		Address     string `json:"address"`
		DisplayName string `json:"display_name"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	account, err := h.ingestService.CreateAccount(c.Request().Context(), req.Address, req.DisplayName)
	if err != nil {
		return errorJSON(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, account)
}

// DeleteAccount removes an account and its email records
func (h *AccountHandler) DeleteAccount(c echo.Context) error {
	if err := h.ingestService.DeleteAccount(c.Request().Context(), c.Param("id")); err != nil {
		return errorJSON(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}
