package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/haventory/haventory-backend/internal/domain/docs"
	"github.com/haventory/haventory-backend/internal/http/response"
	"github.com/haventory/haventory-backend/internal/platform/apperr"
	"github.com/haventory/haventory-backend/internal/platform/ctxutil"
	"github.com/haventory/haventory-backend/internal/platform/logger"
	"github.com/haventory/haventory-backend/internal/services"
)

type DocumentHandler struct {
	log    *logger.Logger
	upload services.UploadService
	review services.ReviewService
}

func NewDocumentHandler(log *logger.Logger, upload services.UploadService, review services.ReviewService) *DocumentHandler {
	return &DocumentHandler{
		log:    log.With("handler", "DocumentHandler"),
		upload: upload,
		review: review,
	}
}

func callerID(c *gin.Context) (uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return uuid.Nil, false
	}
	return rd.UserID, true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondAppError(c, apperr.Validation("document_id_invalid", "id %q is not a uuid", c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}

// Upload accepts a multipart form: the artifact under "file" plus optional
// "link_kind"/"link_id" fields tying the document to inventory.
func (h *DocumentHandler) Upload(c *gin.Context) {
	ownerID, ok := callerID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.RespondAppError(c, apperr.Validation("file_required", "multipart field 'file' is required"))
		return
	}

	link := docs.Unlinked()
	if kind := strings.TrimSpace(c.PostForm("link_kind")); kind != "" && kind != string(docs.LinkNone) {
		target, err := uuid.Parse(strings.TrimSpace(c.PostForm("link_id")))
		if err != nil {
			response.RespondAppError(c, apperr.Validation("link_id_invalid", "link_id must be a uuid when link_kind is set"))
			return
		}
		link, err = docs.LinkedTo(docs.LinkKind(kind), target)
		if err != nil {
			response.RespondAppError(c, err)
			return
		}
	}

	f, err := fileHeader.Open()
	if err != nil {
		response.RespondAppError(c, apperr.Validation("artifact_unreadable", "opening upload: %v", err))
		return
	}
	defer f.Close()

	doc, err := h.upload.Upload(c.Request.Context(), services.UploadInput{
		OwnerID:     ownerID,
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Data:        f,
		Link:        link,
	})
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	ownerID, ok := callerID(c)
	if !ok {
		return
	}
	list, err := h.review.List(c.Request.Context(), ownerID)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"documents": list})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	ownerID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	doc, err := h.review.Get(c.Request.Context(), ownerID, id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, doc)
}

func (h *DocumentHandler) Confirm(c *gin.Context) {
	h.finalize(c, docs.StatusConfirmed)
}

func (h *DocumentHandler) Discard(c *gin.Context) {
	h.finalize(c, docs.StatusDiscarded)
}

func (h *DocumentHandler) finalize(c *gin.Context, to docs.ProcessingStatus) {
	ownerID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var doc *docs.Document
	var err error
	if to == docs.StatusConfirmed {
		doc, err = h.review.Confirm(c.Request.Context(), ownerID, id)
	} else {
		doc, err = h.review.Discard(c.Request.Context(), ownerID, id)
	}
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	ownerID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.review.Delete(c.Request.Context(), ownerID, id); err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": id})
}

type updateStatusRequest struct {
	Status     string `json:"status" binding:"required"`
	RetryCount *int   `json:"retry_count"`
}

func (h *DocumentHandler) UpdateStatus(c *gin.Context) {
	ownerID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAppError(c, apperr.Validation("status_request_invalid", "decoding body: %v", err))
		return
	}

	doc, err := h.review.UpdateStatus(c.Request.Context(), ownerID, id, docs.ProcessingStatus(req.Status), req.RetryCount)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, doc)
}

func (h *DocumentHandler) SignedURL(c *gin.Context) {
	ownerID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	url, err := h.review.SignedURL(c.Request.Context(), ownerID, id)
	if err != nil {
		response.RespondAppError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"url": url})
}
