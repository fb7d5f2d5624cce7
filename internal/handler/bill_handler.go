package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fpp-api/internal/service"
	"github.com/noah-isme/fpp-api/pkg/response"
)

// BillHandler streams bill PDFs for completed requests.
type BillHandler struct {
	service *service.BillService
}

// NewBillHandler creates a new handler.
func NewBillHandler(svc *service.BillService) *BillHandler {
	return &BillHandler{service: svc}
}

// Download godoc
// @Summary Download bill PDF
// @Description The procurement bill; exists only after bill generation
// @Tags Requests
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id}/bill.pdf [get]
func (h *BillHandler) Download(c *gin.Context) {
	pdf, filename, err := h.service.RenderBill(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
