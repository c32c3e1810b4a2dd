package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"stocktracker/internal/model"
	"stocktracker/internal/service"
	"stocktracker/internal/transport/httpapi/middleware"
	"stocktracker/utils"
)

type PortfolioService interface {
	CreatePortfolio(ctx context.Context, name string) (model.Portfolio, error)
	GetPortfolios(ctx context.Context) ([]model.Portfolio, error)
	GetPortfolio(ctx context.Context, portfolioID string) (model.PortfolioDetail, error)
	DeletePortfolio(ctx context.Context, portfolioID string) error
	Buy(ctx context.Context, portfolioID, symbol string, shares, price decimal.Decimal, date *time.Time) (model.Position, model.Transaction, error)
	Sell(ctx context.Context, portfolioID, symbol string, shares, price decimal.Decimal, date *time.Time) (*model.Position, model.Transaction, error)
	ListTransactions(ctx context.Context, portfolioID string) ([]model.Transaction, error)
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
	GenerateReport(ctx context.Context, portfolioID string) ([]byte, string, error)
	ClearQuoteCache(ctx context.Context) error
}

type Controller struct {
	service PortfolioService
}

func NewController(service PortfolioService) *Controller {
	return &Controller{service: service}
}

func (ctrl *Controller) RegisterRoutes(router *gin.Engine) {
	router.Use(middleware.RequestID())

	api := router.Group("/api")
	{
		api.GET("/health", ctrl.Health)

		api.GET("/portfolios", ctrl.GetPortfolios)
		api.POST("/portfolios", ctrl.CreatePortfolio)
		api.GET("/portfolios/:id", ctrl.GetPortfolio)
		api.DELETE("/portfolios/:id", ctrl.DeletePortfolio)
		api.POST("/portfolios/:id/buy", ctrl.Buy)
		api.POST("/portfolios/:id/sell", ctrl.Sell)
		api.GET("/portfolios/:id/transactions", ctrl.ListTransactions)
		api.GET("/portfolios/:id/report", ctrl.GetReport)

		api.GET("/stocks/:symbol/quote", ctrl.GetQuote)
		api.POST("/cache/clear", ctrl.ClearCache)
	}
}

type createPortfolioRequest struct {
	Name string `json:"name"`
}

type orderRequest struct {
	Symbol string          `json:"symbol"`
	Shares decimal.Decimal `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Date   *time.Time      `json:"date"`
}

func (ctrl *Controller) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (ctrl *Controller) GetPortfolios(c *gin.Context) {
	portfolios, err := ctrl.service.GetPortfolios(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, portfolios)
}

func (ctrl *Controller) CreatePortfolio(c *gin.Context) {
	req := createPortfolioRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	portfolio, err := ctrl.service.CreatePortfolio(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, portfolio)
}

func (ctrl *Controller) GetPortfolio(c *gin.Context) {
	detail, err := ctrl.service.GetPortfolio(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

func (ctrl *Controller) DeletePortfolio(c *gin.Context) {
	if err := ctrl.service.DeletePortfolio(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Portfolio deleted"})
}

func (ctrl *Controller) Buy(c *gin.Context) {
	req := orderRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	position, transaction, err := ctrl.service.Buy(c.Request.Context(), c.Param("id"), req.Symbol, req.Shares, req.Price, req.Date)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"position":    position,
		"transaction": transaction,
	})
}

func (ctrl *Controller) Sell(c *gin.Context) {
	req := orderRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	position, transaction, err := ctrl.service.Sell(c.Request.Context(), c.Param("id"), req.Symbol, req.Shares, req.Price, req.Date)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"position":    position,
		"transaction": transaction,
	}
	if position == nil {
		resp["message"] = "Position closed"
	}

	c.JSON(http.StatusOK, resp)
}

func (ctrl *Controller) ListTransactions(c *gin.Context) {
	transactions, err := ctrl.service.ListTransactions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, transactions)
}

func (ctrl *Controller) GetReport(c *gin.Context) {
	fileBytes, fileExtension, err := ctrl.service.GenerateReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="portfolio_report`+fileExtension+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", fileBytes)
}

func (ctrl *Controller) GetQuote(c *gin.Context) {
	quote, err := ctrl.service.GetQuote(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

func (ctrl *Controller) ClearCache(c *gin.Context) {
	if err := ctrl.service.ClearQuoteCache(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared"})
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientShares):
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrInsufficientShares.Error()})
	default:
		rqID := utils.GetRequestIDFromCtx(c.Request.Context())
		slog.Error("internal error", slog.String("rqID", rqID), slog.String("err", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
