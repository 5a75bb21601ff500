package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"labelscan/models"
	"labelscan/pkg/analyzer"
	"labelscan/pkg/classify"
	"labelscan/pkg/ocr"
	"labelscan/pkg/store"
)

var (
	svc           *analyzer.Service
	classifyCache *classify.LRU
	// ocrSem bounds concurrent image analyses.
	ocrSem chan struct{}
)

func setupRoutes(r *gin.Engine) {
	r.POST("/login", loginHandler)
	r.POST("/refresh", refreshHandler)
	r.POST("/revoke_refresh", revokeRefreshHandler)
	r.GET("/health", healthHandler)
	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)
	authGroup.POST("/analyze", analyzeHandler)
	authGroup.GET("/analyses", listAnalysesHandler)
	authGroup.GET("/analyses/stats", analysisStatsHandler)
	authGroup.POST("/analyses/compare", compareAnalysesHandler)
	authGroup.GET("/analyses/:id", getAnalysisHandler)
	authGroup.DELETE("/analyses/:id", deleteAnalysisHandler)
}

func healthHandler(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if classifyCache != nil {
		resp["classification_cache"] = classifyCache.Stats()
	}
	c.JSON(http.StatusOK, resp)
}

type analyzeRequest struct {
	Type        string `json:"type" binding:"required,oneof=text image"`
	Content     string `json:"content" binding:"required"`
	ProductName string `json:"product_name"`
}

// analyzeHandler accepts either JSON ({type, content, product_name}, content
// being text or a base64 image) or a multipart form with a "file" photo.
func analyzeHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	ctx := c.Request.Context()

	var (
		res   *analyzer.Result
		err   error
		input string
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, ferr := c.FormFile("file")
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
			return
		}
		if file.Size > cfg.App.MaxImageBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		f, ferr := file.Open()
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
			return
		}
		img, derr := ocr.DecodeImage(f)
		f.Close()
		if derr != nil {
			respondFailure(c, derr)
			return
		}
		input = file.Filename
		res, err = withOCRSlot(ctx, func() (*analyzer.Result, error) {
			return svc.AnalyzeDecoded(ctx, img, c.PostForm("product_name"))
		})
	} else {
		var req analyzeRequest
		if berr := c.ShouldBindJSON(&req); berr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": berr.Error()})
			return
		}
		switch req.Type {
		case analyzer.SourceText:
			input = req.Content
			res, err = svc.AnalyzeText(ctx, req.Content, req.ProductName)
		case analyzer.SourceImage:
			if int64(len(req.Content))*3/4 > cfg.App.MaxImageBytes {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
				return
			}
			res, err = withOCRSlot(ctx, func() (*analyzer.Result, error) {
				return svc.AnalyzeImage(ctx, req.Content, req.ProductName)
			})
		}
	}
	if err != nil {
		logger.Info().Err(err).Str("request_id", c.GetString(requestIDKey)).Str("user", user.Username).Msg("analysis failed")
		respondFailure(c, err)
		return
	}

	id, err := svc.Save(ctx, user.ID, input, res)
	if err != nil {
		logger.Error().Err(err).Str("request_id", c.GetString(requestIDKey)).Msg("save analysis failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save analysis"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id, "result": res})
}

var errBusy = errors.New("too many image analyses in progress")

func withOCRSlot(ctx context.Context, fn func() (*analyzer.Result, error)) (*analyzer.Result, error) {
	select {
	case ocrSem <- struct{}{}:
		defer func() { <-ocrSem }()
		return fn()
	case <-ctx.Done():
		return nil, errBusy
	}
}

func respondFailure(c *gin.Context, err error) {
	if errors.Is(err, errBusy) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": gin.H{"kind": analyzer.KindServiceUnavailable, "reason": err.Error(), "retryable": true}})
		return
	}
	out := analyzer.NewOutcome(nil, err)
	c.JSON(statusFor(out.Failure.Kind), out)
}

// statusFor maps a failure kind onto an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case analyzer.KindValidation, analyzer.KindImageDecode, analyzer.KindNoTextExtracted:
		return http.StatusUnprocessableEntity
	case analyzer.KindTimeout:
		return http.StatusGatewayTimeout
	case analyzer.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case analyzer.KindMalformedResponse, analyzer.KindSchemaValidation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// listAnalysesHandler returns the latest analyses; admin sees all.
func listAnalysesHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	items, err := analyses.ListAnalyses(c.Request.Context(), store.Filter{UserID: user.ID, All: isAdmin(c)})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

// analysisStatsHandler returns the caller's statistics, optionally bounded
// with ?month=YYYY-MM. Admins may pass ?all=true.
func analysisStatsHandler(c *gin.Context) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	f := store.Filter{UserID: user.ID, All: isAdmin(c) && c.Query("all") == "true"}
	if m := c.Query("month"); m != "" {
		t, err := time.Parse("2006-01", m)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month format, expected YYYY-MM"})
			return
		}
		f.Since = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		f.Until = f.Since.AddDate(0, 1, 0)
	}
	st, err := analyses.Stats(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// loadOwnedAnalysis fetches :id and checks the caller owns it or is admin.
// It writes the error response itself.
func loadOwnedAnalysis(c *gin.Context, id string) (*models.Analysis, bool) {
	user, ok := getUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return nil, false
	}
	a, err := analyses.GetAnalysis(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	if !isAdmin(c) && a.UserID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	return a, true
}

func getAnalysisHandler(c *gin.Context) {
	a, ok := loadOwnedAnalysis(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, a)
}

func deleteAnalysisHandler(c *gin.Context) {
	a, ok := loadOwnedAnalysis(c, c.Param("id"))
	if !ok {
		return
	}
	if err := analyses.DeleteAnalysis(c.Request.Context(), a.PublicID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "analysis deleted"})
}

// compareAnalysesHandler compares exactly two analyses.
func compareAnalysesHandler(c *gin.Context) {
	var req struct {
		AnalysisIDs []string `json:"analysis_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.AnalysisIDs) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "select exactly 2 analyses to compare"})
		return
	}
	pair := make([]models.Analysis, 0, 2)
	for _, id := range req.AnalysisIDs {
		a, ok := loadOwnedAnalysis(c, id)
		if !ok {
			return
		}
		pair = append(pair, *a)
	}
	c.JSON(http.StatusOK, gin.H{"analyses": pair, "comparison": store.Compare(pair[0], pair[1])})
}
