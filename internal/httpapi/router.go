package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
	"github.com/vladislavdragonenkov/orcamentos/internal/service/quotes"
)

// Lifecycle — операции движка жизненного цикла продаж.
type Lifecycle interface {
	ConfirmSale(ctx context.Context, quoteID int64, notes string) (domain.Sale, error)
	CancelSale(ctx context.Context, saleID int64, notes string) (domain.Sale, error)
	CancelInProcessQuote(ctx context.Context, quoteID int64, notes string) (domain.Sale, error)
}

// Queries — чтение смет и продаж.
type Queries interface {
	LoadQuoteWithParties(ctx context.Context, quoteID int64) (domain.QuoteAggregate, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	ListSalesByStatus(ctx context.Context, status domain.SaleStatus) ([]quotes.SaleWithQuote, error)
}

// Cleanup — каскадное удаление клиентов, продавцов и смет.
type Cleanup interface {
	DeleteCustomer(ctx context.Context, customerID int64) (int, error)
	DeleteSeller(ctx context.Context, sellerID int64) (int, error)
	DeleteQuote(ctx context.Context, quoteID int64) error
}

// Handler обслуживает JSON API /api.
type Handler struct {
	lifecycle Lifecycle
	queries   Queries
	cleanup   Cleanup
	logger    *log.Entry
}

// NewHandler собирает обработчики API.
func NewHandler(lifecycle Lifecycle, queries Queries, cleanup Cleanup, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Handler{
		lifecycle: lifecycle,
		queries:   queries,
		cleanup:   cleanup,
		logger:    logger,
	}
}

// NewRouter создаёт gin-роутер с маршрутами API, /healthz и логированием запросов.
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), allowAnyOrigin(), requestID(), requestLogger(h.logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/vendas", h.confirmSale)
		api.GET("/vendas", h.listSales)
		// gin требует одно имя wildcard на уровне /vendas/, поэтому статус приходит в :id.
		api.GET("/vendas/:id", h.listSalesByStatus)
		api.PUT("/vendas/:id/cancelar", h.cancelSale)

		api.GET("/orcamentos/:id", h.getQuote)
		api.PUT("/orcamentos/:id/cancelar-processo", h.cancelInProcessQuote)
		api.DELETE("/orcamentos/:id", h.deleteQuote)

		api.DELETE("/clientes/:id", h.deleteCustomer)
		api.DELETE("/vendedores/:id", h.deleteSeller)
	}

	return router
}
