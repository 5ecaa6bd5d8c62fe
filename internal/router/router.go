package router

import (
	"net/http"

	"offer-parser/internal/handler"
	"offer-parser/internal/logger"
	"offer-parser/internal/middleware"

	"github.com/labstack/echo/v4"
)

func SetupRoutes(
	e *echo.Echo,
	emailHandler *handler.EmailHandler,
	parsingHandler *handler.ParsingHandler,
	accountHandler *handler.AccountHandler,
	appLogger *logger.Logger,
) {
	e.Use(middleware.RequestLogger(appLogger))

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	api := e.Group("/api")

	// Email API routes
	api.GET("/emails", emailHandler.ListEmails)
	api.GET("/emails/stats", emailHandler.GetStats)
	api.GET("/emails/:id", emailHandler.GetEmail)
	api.POST("/emails/import", emailHandler.ImportEmail)

	// Extraction, review and schema routes
	parsing := api.Group("/parsing")
	parsing.POST("/parse/:id", parsingHandler.ParseEmail)
	parsing.POST("/parse-batch", parsingHandler.ParseBatch)
	parsing.POST("/review/:id", parsingHandler.MarkReviewed)
	parsing.POST("/correct/:id", parsingHandler.SaveCorrection)
	parsing.POST("/force-fail/:id", parsingHandler.ForceFail)
	parsing.GET("/schema", parsingHandler.GetSchema)
	parsing.PUT("/schema", parsingHandler.UpdateSchema)

	// Account API routes
	api.GET("/accounts", accountHandler.ListAccounts)
	api.POST("/accounts", accountHandler.CreateAccount)
	api.DELETE("/accounts/:id", accountHandler.DeleteAccount)

	// Real-time record updates via Server-Sent Events (SSE)
	api.GET("/events", emailHandler.SSEEmailUpdates)
}
