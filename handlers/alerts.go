package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"attendance-insights-api/analytics"
	"attendance-insights-api/filter"
	"attendance-insights-api/metrics"
	"attendance-insights-api/models"
	"attendance-insights-api/services"

	"github.com/gin-gonic/gin"
)

type AlertsHandler struct {
	svc      *analytics.Service
	cache    *services.CacheService
	cacheTTL time.Duration
}

func NewAlertsHandler(svc *analytics.Service, cache *services.CacheService, cacheTTL time.Duration) *AlertsHandler {
	return &AlertsHandler{svc: svc, cache: cache, cacheTTL: cacheTTL}
}

// Register mounts the alert routes on g. Lookups accept both query
// parameters and the path form used by the dashboard.
func (h *AlertsHandler) Register(g *gin.RouterGroup) {
	g.POST("/prediction-insights", h.GetAnalysis)
	g.GET("/filter-options", h.GetFilterOptions)

	g.GET("/schools", h.GetSchools)
	g.GET("/schools/district/:district", h.GetSchools)
	g.GET("/grades", h.GetGrades)
	g.GET("/grades/district/:district/school/:school", h.GetGrades)
	g.GET("/grade-risks", h.GetGradeRisks)
	g.GET("/grade-risks/district/:district/school/:school", h.GetGradeRisks)
	g.GET("/school-risks", h.GetSchoolRisks)
	g.GET("/school-risks/district/:district", h.GetSchoolRisks)

	g.POST("/download/report/:reportType", h.DownloadReport)
	g.GET("/status", h.GetStatus)
}

// selector reads a path parameter, falling back to the query string.
func selector(c *gin.Context, name string) string {
	if v := c.Param(name); v != "" {
		return v
	}
	return c.Query(name)
}

// bindCriteria reads optional filter criteria from the body. An empty body
// selects every student.
func bindCriteria(c *gin.Context) (filter.Criteria, bool) {
	var crit filter.Criteria
	if c.Request.Body == nil {
		return crit, true
	}
	if err := c.ShouldBindJSON(&crit); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter criteria: " + err.Error()})
		return crit, false
	}
	return crit, true
}

// respondError maps service errors onto status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, analytics.ErrNotReady):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "data is still loading, try again shortly"})
	case errors.Is(err, analytics.ErrNoDataForFilters), errors.Is(err, analytics.ErrNoRowsForReport):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, analytics.ErrInvalidReportType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("request failed: %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *AlertsHandler) GetAnalysis(c *gin.Context) {
	crit, ok := bindCriteria(c)
	if !ok {
		return
	}

	version, err := h.svc.Version()
	if err != nil {
		respondError(c, err)
		return
	}
	cacheKey := fmt.Sprintf("analysis:v%d:%s:%s:%s", version, crit.District, crit.School, crit.Grade)

	var cached models.AnalysisResponse
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.KeyInsights != nil {
		metrics.ResponseCacheHits.Inc()
		c.JSON(http.StatusOK, cached)
		return
	}

	resp, err := h.svc.GetAnalysis(crit)
	if err != nil {
		respondError(c, err)
		return
	}
	go h.cache.Set(context.Background(), cacheKey, resp, h.cacheTTL)

	c.JSON(http.StatusOK, resp)
}

func (h *AlertsHandler) GetFilterOptions(c *gin.Context) {
	opts, err := h.svc.GetFilterOptions()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, opts)
}

func (h *AlertsHandler) GetSchools(c *gin.Context) {
	schools, err := h.svc.GetSchools(selector(c, "district"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, schools)
}

func (h *AlertsHandler) GetGrades(c *gin.Context) {
	grades, err := h.svc.GetGrades(selector(c, "district"), selector(c, "school"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, grades)
}

func (h *AlertsHandler) GetGradeRisks(c *gin.Context) {
	resp, err := h.svc.GetGradeRiskData(selector(c, "district"), selector(c, "school"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AlertsHandler) GetSchoolRisks(c *gin.Context) {
	resp, err := h.svc.GetSchoolRiskData(selector(c, "district"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AlertsHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Status())
}
