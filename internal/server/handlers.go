package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/silentapp/silent/internal/capture"
	"github.com/silentapp/silent/internal/gateway"
	"github.com/silentapp/silent/internal/imaging"
	"github.com/silentapp/silent/internal/upload"
)

// statusFor maps pipeline errors onto HTTP status codes. Backend problems
// surface as gateway errors (502/504) so the client can tell "our fault"
// from "their fault".
func statusFor(err error) int {
	var verr *upload.ValidationError
	var nerr *imaging.NormalizationError
	var aerr *capture.AcquireError
	switch {
	case errors.As(err, &verr), errors.As(err, &nerr):
		return http.StatusBadRequest
	case errors.As(err, &aerr):
		return http.StatusServiceUnavailable
	case errors.Is(err, capture.ErrNotStreaming):
		return http.StatusConflict
	case errors.Is(err, capture.ErrCaptureInFlight):
		return http.StatusTooManyRequests
	}
	if f := gateway.FailureOf(err); f != nil {
		if f.Kind == gateway.FailureTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) abortWithError(c *gin.Context, err error) {
	msg := err.Error()
	var aerr *capture.AcquireError
	if errors.As(err, &aerr) {
		msg = aerr.Guidance()
	}
	c.JSON(statusFor(err), gin.H{"success": false, "error": msg})
}

func (s *Server) handleServiceHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

func (s *Server) handleBackendHealth(c *gin.Context) {
	available := s.app.Gateway().IsAvailable(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"backend_available": available,
	})
}

func (s *Server) handleModels(c *gin.Context) {
	info, err := s.app.Gateway().ModelInfo(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleLoadModel(c *gin.Context) {
	lang, err := gateway.ParseLanguage(c.Param("dataset"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	info, err := s.app.Gateway().PreloadModel(c.Request.Context(), lang)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handlePredict(c *gin.Context) {
	header, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing image file"})
		return
	}
	file, err := readUpload(header)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unreadable image file"})
		return
	}

	pred, decision, err := s.app.TranslateUpload(c.Request.Context(), file)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"prediction": pred.Letter,
		"confidence": pred.Confidence,
		"dataset":    pred.Dataset,
		"accepted":   decision.Accepted,
		"reason":     decision.Reason,
		"text":       s.app.Sequence().Render(),
	})
}

func (s *Server) handlePredictBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing multipart form"})
		return
	}
	var files []upload.File
	for _, header := range form.File["images"] {
		f, err := readUpload(header)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unreadable image file"})
			return
		}
		files = append(files, f)
	}

	sum, items, verrs := s.app.RunBatch(c.Request.Context(), files)
	if len(verrs) > 0 {
		details := make([]gin.H, 0, len(verrs))
		for _, v := range verrs {
			details = append(details, gin.H{"name": v.Name, "reason": v.Reason})
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "errors": details})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"summary": sum,
		"items":   items,
		"text":    s.app.Sequence().Render(),
	})
}

func (s *Server) handleSequenceGet(c *gin.Context) {
	seq := s.app.Sequence()
	c.JSON(http.StatusOK, gin.H{
		"entries": seq.Entries(),
		"text":    seq.Render(),
		"stats":   seq.Stats(),
	})
}

func (s *Server) handleSequenceSpace(c *gin.Context) {
	entry := s.app.Sequence().InsertSpace()
	c.JSON(http.StatusOK, gin.H{
		"entry": entry,
		"text":  s.app.Sequence().Render(),
	})
}

func (s *Server) handleSequenceUndo(c *gin.Context) {
	undone := s.app.Sequence().Undo()
	c.JSON(http.StatusOK, gin.H{
		"undone": undone,
		"text":   s.app.Sequence().Render(),
	})
}

func (s *Server) handleSequenceClear(c *gin.Context) {
	s.app.Sequence().Clear()
	c.JSON(http.StatusOK, gin.H{"text": ""})
}

func (s *Server) handleLanguage(c *gin.Context) {
	var req struct {
		Language string `json:"language"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	lang, err := gateway.ParseLanguage(req.Language)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err := s.app.SetLanguage(lang); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "language": lang})
}

func (s *Server) handleCameraStart(c *gin.Context) {
	if err := s.app.Session().Start(); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.app.Session().Snapshot())
}

func (s *Server) handleCameraStop(c *gin.Context) {
	if err := s.app.Session().Stop(); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.app.Session().Snapshot())
}

func (s *Server) handleCameraCapture(c *gin.Context) {
	if err := s.app.Session().CaptureNow(); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.app.Session().Snapshot())
}

func (s *Server) handleCameraTimer(c *gin.Context) {
	var req struct {
		Seconds int `json:"seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	if err := s.app.Session().StartTimer(req.Seconds); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.app.Session().Snapshot())
}

func (s *Server) handleCameraAuto(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	if err := s.app.Session().SetAuto(req.Enabled); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.app.Session().Snapshot())
}

func (s *Server) handleCameraMirror(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	s.app.Session().SetMirrored(req.Enabled)
	c.JSON(http.StatusOK, s.app.Session().Snapshot())
}

func (s *Server) handleCameraStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.app.Status(c.Request.Context()))
}

// readUpload reads one multipart file fully into memory. Size limits are the
// validator's concern, not this helper's.
func readUpload(header *multipart.FileHeader) (upload.File, error) {
	f, err := header.Open()
	if err != nil {
		return upload.File{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return upload.File{}, err
	}
	return upload.File{Name: header.Filename, Data: data}, nil
}
