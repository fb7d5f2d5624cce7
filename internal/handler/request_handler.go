package handler

import (
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/fpp-api/internal/dto"
	"github.com/noah-isme/fpp-api/internal/service"
	appErrors "github.com/noah-isme/fpp-api/pkg/errors"
	"github.com/noah-isme/fpp-api/pkg/response"
	"github.com/noah-isme/fpp-api/pkg/storage"
)

// RequestHandler wires HTTP endpoints to the request lifecycle service.
type RequestHandler struct {
	service *service.RequestService
	metrics *service.MetricsService
	uploads *storage.LocalStorage
	logger  *zap.Logger
	maxSize int64
}

// NewRequestHandler creates a new handler. uploads receives all multipart
// files; maxSize caps a single uploaded file in bytes.
func NewRequestHandler(svc *service.RequestService, metrics *service.MetricsService, uploads *storage.LocalStorage, logger *zap.Logger, maxSize int64) *RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	return &RequestHandler{service: svc, metrics: metrics, uploads: uploads, logger: logger, maxSize: maxSize}
}

// Submit godoc
// @Summary Submit procurement request
// @Description Create a new PENDING request with the proof file (multipart)
// @Tags Requests
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param aadhaar formData string true "12 digit Aadhaar number"
// @Param contact formData string true "Contact number"
// @Param harvest_date formData string true "Harvest date (YYYY-MM-DD)"
// @Param proofFile formData file true "Harvest proof"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)

	proofPath, err := h.storeFormFile(c, "proofFile")
	if err != nil {
		response.Error(c, err)
		return
	}

	input := dto.SubmitRequestInput{
		Aadhaar:     c.PostForm("aadhaar"),
		Contact:     c.PostForm("contact"),
		HarvestDate: c.PostForm("harvest_date"),
		ProofFile:   proofPath,
	}

	request, err := h.service.Submit(c.Request.Context(), claims, input)
	if err != nil {
		h.discard(proofPath)
		response.Error(c, err)
		return
	}

	response.Created(c, request)
}

// ListMine godoc
// @Summary List own requests
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /requests/mine [get]
func (h *RequestHandler) ListMine(c *gin.Context) {
	requests, err := h.service.ListMine(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// ListVillage godoc
// @Summary List village requests
// @Description Every request in the acting VAO's village, newest first
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /requests/village [get]
func (h *RequestHandler) ListVillage(c *gin.Context) {
	requests, err := h.service.ListVillage(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// VillageSerials godoc
// @Summary Village serial board
// @Description Serial numbers already assigned in the caller's village
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /village/serials [get]
func (h *RequestHandler) VillageSerials(c *gin.Context) {
	entries, err := h.service.VillageSerials(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Approve godoc
// @Summary Approve request
// @Description Move PENDING to APPROVED and assign the next village serial
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/approve [post]
func (h *RequestHandler) Approve(c *gin.Context) {
	request, err := h.service.Approve(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	h.recordTransition("approve", err)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Reject godoc
// @Summary Reject request
// @Description Move PENDING to REJECTED with a mandatory reason
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body dto.RejectRequestInput true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/reject [post]
func (h *RequestHandler) Reject(c *gin.Context) {
	var input dto.RejectRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "rejection reason is required"))
		return
	}

	request, err := h.service.Reject(c.Request.Context(), claimsFromContext(c), c.Param("id"), input)
	h.recordTransition("reject", err)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// UploadFinalDocs godoc
// @Summary Upload final documents
// @Description Store the four-document bundle and move APPROVED to FINAL_DOCS_UPLOADED
// @Tags Requests
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param landDoc formData file true "Land ownership document"
// @Param aadhaarDoc formData file true "Aadhaar card"
// @Param bankDoc formData file true "Bank passbook"
// @Param truckSheet formData file true "Truck sheet"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/final-docs [post]
func (h *RequestHandler) UploadFinalDocs(c *gin.Context) {
	fields := []string{"landDoc", "aadhaarDoc", "bankDoc", "truckSheet"}
	stored := make(map[string]string, len(fields))
	for _, field := range fields {
		path, err := h.storeFormFile(c, field)
		if err != nil {
			for _, p := range stored {
				h.discard(p)
			}
			response.Error(c, err)
			return
		}
		stored[field] = path
	}

	input := dto.FinalDocsInput{
		LandDoc:    stored["landDoc"],
		AadhaarDoc: stored["aadhaarDoc"],
		BankDoc:    stored["bankDoc"],
		TruckSheet: stored["truckSheet"],
	}

	request, err := h.service.UploadFinalDocs(c.Request.Context(), claimsFromContext(c), c.Param("id"), input)
	h.recordTransition("upload_final_docs", err)
	if err != nil {
		for _, p := range stored {
			h.discard(p)
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// GenerateBill godoc
// @Summary Generate bill
// @Description Record the procurement quantity and complete the request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Param payload body dto.GenerateBillInput true "Paddy bag count"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /requests/{id}/bill [post]
func (h *RequestHandler) GenerateBill(c *gin.Context) {
	var input dto.GenerateBillInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bill payload"))
		return
	}

	request, err := h.service.GenerateBill(c.Request.Context(), claimsFromContext(c), c.Param("id"), input)
	h.recordTransition("generate_bill", err)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// FileLinks godoc
// @Summary Signed file links
// @Description Time-limited download tokens for every file stored on the request
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /requests/{id}/files [get]
func (h *RequestHandler) FileLinks(c *gin.Context) {
	links, err := h.service.FileLinks(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, links, nil)
}

// DownloadFile godoc
// @Summary Download a stored file
// @Description Serve the file referenced by a signed token
// @Tags Requests
// @Produce octet-stream
// @Param token path string true "Signed file token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /files/{token} [get]
func (h *RequestHandler) DownloadFile(c *gin.Context) {
	relPath, err := h.service.ResolveFileToken(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.File(h.uploads.Path(relPath))
}

// storeFormFile persists one multipart file under a collision-free name and
// returns its relative path.
func (h *RequestHandler) storeFormFile(c *gin.Context, field string) (string, error) {
	fileHeader, err := c.FormFile(field)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, field+" file is required")
	}
	if fileHeader.Size > h.maxSize {
		return "", appErrors.Clone(appErrors.ErrValidation, field+" exceeds the maximum file size")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read uploaded file")
	}
	defer func(src multipart.File) { _ = src.Close() }(src)

	name := storage.UniqueName(fileHeader.Filename)
	if _, err := h.uploads.SaveStream(name, src); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store uploaded file")
	}
	return name, nil
}

// discard removes an orphaned upload after a failed operation.
func (h *RequestHandler) discard(relPath string) {
	if relPath == "" {
		return
	}
	if err := h.uploads.Delete(relPath); err != nil {
		h.logger.Warn("failed to remove orphaned upload", zap.String("file", relPath), zap.Error(err))
	}
}

func (h *RequestHandler) recordTransition(action string, err error) {
	if h.metrics != nil {
		h.metrics.RecordTransition(action, err == nil)
	}
}
