package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mapster/mapster/backend/go-services/internal/document"
	"github.com/mapster/mapster/backend/go-services/internal/document/service"
	"github.com/mapster/mapster/backend/go-services/pkg/logger"
	"github.com/mapster/mapster/backend/go-services/pkg/middleware"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RegisterDocumentRoutes mounts the document and shape endpoints on an
// authenticated group (the group must run middleware.AccessAuthenticator).
func RegisterDocumentRoutes(r gin.IRouter, svc service.Service) {
	h := &handler{svc: svc}
	r.GET("/docs", h.listDocs)
	r.POST("/docs", h.createDoc)
	r.PATCH("/docs/:id", h.renameDoc)
	r.DELETE("/docs/:id", h.deleteDoc)
	r.POST("/docs/:id/export", h.exportDoc)
	r.GET("/docs/:id/export", h.downloadExport)

	r.GET("/docs/:id/shapes", h.listShapes)
	r.POST("/docs/:id/shapes", h.addShape)
	r.PATCH("/docs/:id/shapes/:shapeId", h.updateShape)
	r.DELETE("/docs/:id/shapes/:shapeId", h.deleteShape)
}

type handler struct {
	svc service.Service
}

type titleRequest struct {
	Title string `json:"title" binding:"required"`
}

// ids resolves the caller and the path ids; it writes the error response itself.
func ids(c *gin.Context, params ...string) (primitive.ObjectID, []primitive.ObjectID, bool) {
	user, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return user, nil, false
	}
	out := make([]primitive.ObjectID, 0, len(params))
	for _, p := range params {
		id, err := primitive.ObjectIDFromHex(c.Param(p))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return user, nil, false
		}
		out = append(out, id)
	}
	return user, out, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrExportUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "export storage is not available"})
	default:
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *handler) listDocs(c *gin.Context) {
	user, _, ok := ids(c)
	if !ok {
		return
	}
	list, err := h.svc.ListDocuments(c.Request.Context(), user)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handler) createDoc(c *gin.Context) {
	user, _, ok := ids(c)
	if !ok {
		return
	}
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.svc.CreateDocument(c.Request.Context(), user, req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *handler) renameDoc(c *gin.Context) {
	user, p, ok := ids(c, "id")
	if !ok {
		return
	}
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.svc.RenameDocument(c.Request.Context(), user, p[0], req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handler) deleteDoc(c *gin.Context) {
	user, p, ok := ids(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteDocument(c.Request.Context(), user, p[0]); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) exportDoc(c *gin.Context) {
	user, p, ok := ids(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.Export(c.Request.Context(), user, p[0])
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) downloadExport(c *gin.Context) {
	user, p, ok := ids(c, "id")
	if !ok {
		return
	}
	rc, err := h.svc.LatestExport(c.Request.Context(), user, p[0])
	if err != nil {
		writeError(c, err)
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, -1, "application/json", rc, nil)
}

func (h *handler) listShapes(c *gin.Context) {
	user, p, ok := ids(c, "id")
	if !ok {
		return
	}
	shapes, err := h.svc.ListShapes(c.Request.Context(), user, p[0])
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, shapes)
}

func (h *handler) addShape(c *gin.Context) {
	user, p, ok := ids(c, "id")
	if !ok {
		return
	}
	var s document.Shape
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.AddShape(c.Request.Context(), user, p[0], &s); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *handler) updateShape(c *gin.Context) {
	user, p, ok := ids(c, "id", "shapeId")
	if !ok {
		return
	}
	var patch document.ShapePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.svc.UpdateShape(c.Request.Context(), user, p[0], p[1], patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handler) deleteShape(c *gin.Context) {
	user, p, ok := ids(c, "id", "shapeId")
	if !ok {
		return
	}
	if err := h.svc.DeleteShape(c.Request.Context(), user, p[0], p[1]); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
