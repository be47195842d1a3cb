package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"image-discerner/internal/config"
	"image-discerner/internal/service"
)

type Handler struct {
	discernService *service.DiscernService
	config         *config.Config
	log            zerolog.Logger
}

func NewHandler(
	discernService *service.DiscernService,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		discernService: discernService,
		config:         cfg,
		log:            log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/healthz", h.health)

	public := r.Group("/api/v1")
	{
		public.POST("/analyze", h.analyze)
		public.POST("/aggregate", h.aggregate)
		public.GET("/identifiers", h.listIdentifiers)
		public.GET("/analyses", h.listAnalyses)
		public.GET("/analyses/:id", h.getAnalysis)
	}

	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.DELETE("/analyses", h.cleanupAnalyses)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"storage": h.config.Database.Enabled(),
	})
}

type analyzeRequest struct {
	ImageKey    string `json:"image_key"`
	ImageBase64 string `json:"image_base64"`
}

func (h *Handler) analyze(c *gin.Context) {
	maxBytes := h.config.HTTP.MaxUploadMB << 20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

	req, err := readAnalyzeRequest(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse(fmt.Sprintf("image exceeds %d MB", h.config.HTTP.MaxUploadMB)))
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	result, err := h.discernService.Analyze(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":      "ok",
		"analysis_id": result.ID,
		"persisted":   result.Persisted,
		"result":      result.Result,
		"hits":        result.Hits,
	})
}

// readAnalyzeRequest accepts a multipart upload in the "image" field or a
// JSON body carrying the image as base64.
func readAnalyzeRequest(c *gin.Context) (service.AnalyzeRequest, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("image")
		if err != nil {
			return service.AnalyzeRequest{}, fmt.Errorf("image file is required: %w", err)
		}
		f, err := fh.Open()
		if err != nil {
			return service.AnalyzeRequest{}, err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return service.AnalyzeRequest{}, err
		}
		key := c.PostForm("image_key")
		if key == "" {
			key = fh.Filename
		}
		return service.AnalyzeRequest{ImageKey: key, Data: data}, nil
	}

	var body analyzeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		return service.AnalyzeRequest{}, err
	}
	data, err := base64.StdEncoding.DecodeString(body.ImageBase64)
	if err != nil {
		return service.AnalyzeRequest{}, errors.New("image_base64 is not valid base64")
	}
	return service.AnalyzeRequest{ImageKey: body.ImageKey, Data: data}, nil
}

func (h *Handler) aggregate(c *gin.Context) {
	var bodies []json.RawMessage
	if err := c.ShouldBindJSON(&bodies); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("body must be a JSON array of two branch results"))
		return
	}

	result, err := h.discernService.AggregateBranches(c.Request.Context(), bodies)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) listIdentifiers(c *gin.Context) {
	value := strings.TrimSpace(c.Query("value"))
	if value == "" {
		c.JSON(http.StatusBadRequest, errorResponse("value parameter is required"))
		return
	}

	idents, err := h.discernService.FindIdentifiers(c.Request.Context(), value, c.Query("kind"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(idents))
}

func (h *Handler) listAnalyses(c *gin.Context) {
	var identifier *string
	if v := strings.TrimSpace(c.Query("identifier")); v != "" {
		identifier = &v
	}

	var from, to *string
	if f := strings.TrimSpace(c.Query("from")); f != "" {
		from = &f
	}
	if t := strings.TrimSpace(c.Query("to")); t != "" {
		to = &t
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	analyses, err := h.discernService.FindAnalyses(c.Request.Context(), identifier, from, to, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(analyses))
}

func (h *Handler) getAnalysis(c *gin.Context) {
	analysis, err := h.discernService.GetAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(analysis))
}

func (h *Handler) cleanupAnalyses(c *gin.Context) {
	days, err := strconv.Atoi(c.Query("older_than_days"))
	if err != nil || days < 1 {
		c.JSON(http.StatusBadRequest, errorResponse("older_than_days must be a positive integer"))
		return
	}

	deleted, err := h.discernService.CleanupOldAnalyses(c.Request.Context(), days)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"deleted_count": deleted,
	})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrProvider):
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("vision provider error")
		c.JSON(http.StatusBadGateway, errorResponse("vision provider failed"))
	case errors.Is(err, service.ErrStorageDisabled):
		c.JSON(http.StatusServiceUnavailable, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
