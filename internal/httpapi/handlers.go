package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/orcamentos/internal/domain"
)

type confirmSaleRequest struct {
	QuoteID int64  `json:"orcamento_id" binding:"required,gt=0"`
	Notes   string `json:"observacoes"`
}

type notesRequest struct {
	Notes string `json:"observacoes"`
}

type deletePartyResponse struct {
	Message       string `json:"message"`
	DeletedQuotes int    `json:"orcamentosExcluidos"`
}

// POST /api/vendas
func (h *Handler) confirmSale(c *gin.Context) {
	var req confirmSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	sale, err := h.lifecycle.ConfirmSale(c.Request.Context(), req.QuoteID, req.Notes)
	if err != nil {
		h.writeError(c, "confirm_sale", err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

// PUT /api/vendas/:id/cancelar
func (h *Handler) cancelSale(c *gin.Context) {
	saleID, ok := pathID(c)
	if !ok {
		return
	}
	notes, ok := bindNotes(c)
	if !ok {
		return
	}

	sale, err := h.lifecycle.CancelSale(c.Request.Context(), saleID, notes)
	if err != nil {
		h.writeError(c, "cancel_sale", err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

// PUT /api/orcamentos/:id/cancelar-processo
func (h *Handler) cancelInProcessQuote(c *gin.Context) {
	quoteID, ok := pathID(c)
	if !ok {
		return
	}
	notes, ok := bindNotes(c)
	if !ok {
		return
	}

	sale, err := h.lifecycle.CancelInProcessQuote(c.Request.Context(), quoteID, notes)
	if err != nil {
		h.writeError(c, "cancel_in_process_quote", err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

// GET /api/vendas
func (h *Handler) listSales(c *gin.Context) {
	sales, err := h.queries.ListSales(c.Request.Context())
	if err != nil {
		h.writeError(c, "list_sales", err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

// GET /api/vendas/:status (faturada | cancelada)
func (h *Handler) listSalesByStatus(c *gin.Context) {
	status := domain.SaleStatus(c.Param("id"))
	if !status.Valid() {
		badRequest(c, fmt.Sprintf("unknown sale status %q", c.Param("id")))
		return
	}

	sales, err := h.queries.ListSalesByStatus(c.Request.Context(), status)
	if err != nil {
		h.writeError(c, "list_sales_by_status", err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

// GET /api/orcamentos/:id
func (h *Handler) getQuote(c *gin.Context) {
	quoteID, ok := pathID(c)
	if !ok {
		return
	}

	agg, err := h.queries.LoadQuoteWithParties(c.Request.Context(), quoteID)
	if err != nil {
		h.writeError(c, "get_quote", err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

// DELETE /api/orcamentos/:id
func (h *Handler) deleteQuote(c *gin.Context) {
	quoteID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.cleanup.DeleteQuote(c.Request.Context(), quoteID); err != nil {
		h.writeError(c, "delete_quote", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Orçamento excluído com sucesso"})
}

// DELETE /api/clientes/:id
func (h *Handler) deleteCustomer(c *gin.Context) {
	customerID, ok := pathID(c)
	if !ok {
		return
	}

	deleted, err := h.cleanup.DeleteCustomer(c.Request.Context(), customerID)
	if err != nil {
		h.writeError(c, "delete_customer", err)
		return
	}
	c.JSON(http.StatusOK, deletePartyResponse{Message: "Cliente excluído com sucesso", DeletedQuotes: deleted})
}

// DELETE /api/vendedores/:id
func (h *Handler) deleteSeller(c *gin.Context) {
	sellerID, ok := pathID(c)
	if !ok {
		return
	}

	deleted, err := h.cleanup.DeleteSeller(c.Request.Context(), sellerID)
	if err != nil {
		h.writeError(c, "delete_seller", err)
		return
	}
	c.JSON(http.StatusOK, deletePartyResponse{Message: "Vendedor excluído com sucesso", DeletedQuotes: deleted})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, fmt.Sprintf("invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

// bindNotes читает необязательное тело {"observacoes": "..."}; пустое тело допустимо.
func bindNotes(c *gin.Context) (string, bool) {
	var req notesRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, fmt.Sprintf("invalid request body: %v", err))
		return "", false
	}
	return req.Notes, true
}
