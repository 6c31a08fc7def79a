package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-canvas-live/content-service/internal/audit"
	"github.com/weiawesome/wes-canvas-live/content-service/internal/domain"
	"github.com/weiawesome/wes-canvas-live/content-service/internal/service"
	"github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/middleware"
	"github.com/weiawesome/wes-canvas-live/pkg/response"
)

// Handler handles HTTP requests for content service.
type Handler struct {
	contentService service.ContentService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(contentService service.ContentService, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		contentService: contentService,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		documents := api.Group("/documents")
		{
			// Public routes
			documents.GET("/:room_id", h.GetDocument)

			// Protected routes
			documents.PUT("/:room_id", h.authMiddleware.RequireAuth(), h.SaveDocument)
		}

		boards := api.Group("/boards/:board_id/items")
		{
			// Public routes
			boards.GET("", h.ListItems)

			// Protected routes
			boards.PUT("/:item_id", h.authMiddleware.RequireAuth(), h.SaveItem)
			boards.DELETE("/:item_id", h.authMiddleware.RequireAuth(), h.DeleteItem)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// GetDocument retrieves a document snapshot.
func (h *Handler) GetDocument(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	roomID := c.Param("room_id")

	doc, err := h.contentService.GetDocument(ctx, roomID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to get document")
		response.InternalError(c, "failed to get document")
		return
	}

	response.Success(c, doc)
}

// SaveDocument writes a document guarded by the writer's last_modified.
func (h *Handler) SaveDocument(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	roomID := c.Param("room_id")

	var req domain.SaveDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind save document request")
		response.BadRequest(c, err.Error())
		return
	}

	doc, err := h.contentService.SaveDocument(ctx, userID, roomID, &req)
	if err != nil {
		if errors.Is(err, service.ErrDocumentConflict) {
			audit.Log(ctx, audit.ActionDocumentConflict, userID, roomID, "document write rejected")
			response.ConflictWithData(c, "DOCUMENT_CONFLICT", "document was modified by another writer, reload required", doc)
			return
		}
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to save document")
		response.InternalError(c, "failed to save document")
		return
	}

	audit.Log(ctx, audit.ActionSaveDocument, userID, roomID, "document saved")
	response.Success(c, doc)
}

// ListItems lists every item of a board.
func (h *Handler) ListItems(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	boardID := c.Param("board_id")

	items, err := h.contentService.ListItems(ctx, boardID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, boardID).Msg("failed to list items")
		response.InternalError(c, "failed to list items")
		return
	}

	response.Success(c, items)
}

// SaveItem overwrites an item.
func (h *Handler) SaveItem(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req domain.SaveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind save item request")
		response.BadRequest(c, err.Error())
		return
	}

	item, err := h.contentService.SaveItem(ctx, userID, req.ToItem(c.Param("board_id"), c.Param("item_id")))
	if err != nil {
		if errors.Is(err, service.ErrInvalidItem) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Str(log.FieldItemID, c.Param("item_id")).Msg("failed to save item")
		response.InternalError(c, "failed to save item")
		return
	}

	response.Success(c, item)
}

// DeleteItem removes an item.
func (h *Handler) DeleteItem(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	if userID == "" {
		response.Unauthorized(c, "unauthorized")
		return
	}

	boardID := c.Param("board_id")
	itemID := c.Param("item_id")

	if err := h.contentService.DeleteItem(ctx, userID, boardID, itemID); err != nil {
		if errors.Is(err, service.ErrItemNotFound) {
			response.NotFound(c, "item not found")
			return
		}
		l.Error().Err(err).Str(log.FieldItemID, itemID).Msg("failed to delete item")
		response.InternalError(c, "failed to delete item")
		return
	}

	audit.Log(ctx, audit.ActionDeleteItem, userID, boardID+"/"+itemID, "item deleted")
	response.Success(c, gin.H{"message": "item deleted"})
}
