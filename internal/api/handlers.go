package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"athensenergy/server/config"
	"athensenergy/server/internal/analysis"
	"athensenergy/server/internal/database"
	"athensenergy/server/internal/geometry"
	"athensenergy/server/internal/ingest"
	"athensenergy/server/internal/models"
	"athensenergy/server/internal/observability"
	"athensenergy/server/internal/pipeline"
	"athensenergy/server/internal/queue"
	"athensenergy/server/internal/report"
)

const defaultRunLimit = 20

// Ingestor queues normalized listings for storage.
type Ingestor interface {
	Submit(records []models.PropertyRecord) (int, error)
}

type Handler struct {
	db       *database.Database
	analyses *analysis.Service
	ingestor Ingestor
	logger   *logrus.Logger
	blocks   *geometry.BlockMapper
}

// AnalysisRequest starts a run. Listings, when present, are analysed instead
// of the stored ones. Settings override the configured pipeline settings key
// by key.
type AnalysisRequest struct {
	Neighborhood string              `json:"neighborhood"`
	Listings     []ingest.RawListing `json:"listings"`
	Settings     json.RawMessage     `json:"settings"`
}

func NewHandler(db *database.Database, analyses *analysis.Service, ingestor Ingestor, locator geometry.Locator, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = observability.NewLogger("info", "json")
	}
	return &Handler{
		db:       db,
		analyses: analyses,
		ingestor: ingestor,
		logger:   logger,
		blocks:   geometry.NewBlockMapper(logger, locator),
	}
}

func (h *Handler) Health(c *gin.Context) {
	listings, err := h.db.CountListings()
	if err != nil {
		h.logger.WithError(err).Error("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "listings": listings})
}

// decodeListings accepts a JSON array or, with a text/csv content type, a CSV
// file with a header row.
func decodeListings(c *gin.Context) ([]ingest.RawListing, error) {
	if strings.HasPrefix(c.ContentType(), "text/csv") {
		return ingest.DecodeCSV(c.Request.Body)
	}
	return ingest.DecodeJSON(c.Request.Body)
}

func (h *Handler) IngestListings(c *gin.Context) {
	raws, err := decodeListings(c)
	if err != nil {
		h.logger.WithError(err).Warn("Rejected listing upload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records := ingest.NormalizeAll(raws)
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}

	accepted, err := h.ingestor.Submit(records)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		h.logger.WithError(err).WithField("accepted", accepted).Error("Failed to queue listings")
		c.JSON(status, gin.H{
			"error":    "Failed to queue listings",
			"accepted": accepted,
			"ids":      ids[:accepted],
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted, "ids": ids})
}

func (h *Handler) GetListings(c *gin.Context) {
	listings, err := h.db.GetListings(c.Query("neighborhood"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to get listings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get listings"})
		return
	}
	if listings == nil {
		listings = []models.PropertyRecord{}
	}
	c.JSON(http.StatusOK, listings)
}

// settingsFor overlays request settings onto the configured ones.
func (h *Handler) settingsFor(raw json.RawMessage) (config.Pipeline, error) {
	settings := h.analyses.Settings()
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return settings, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&settings); err != nil {
		return settings, err
	}
	return settings, nil
}

func (h *Handler) CreateAnalysis(c *gin.Context) {
	var req AnalysisRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	settings, err := h.settingsFor(req.Settings)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings: " + err.Error()})
		return
	}

	var result pipeline.Result
	if req.Listings != nil {
		result, err = h.analyses.Run(settings, ingest.NormalizeAll(req.Listings))
	} else {
		result, err = h.analyses.RunStoredWith(settings, req.Neighborhood)
	}
	if errors.Is(err, config.ErrInvalidConfig) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to run analysis")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run analysis"})
		return
	}

	c.JSON(http.StatusCreated, report.NewDocument(result))
}

func (h *Handler) ListAnalyses(c *gin.Context) {
	limit := defaultRunLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	runs, err := h.db.ListRuns(limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list analysis runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list analysis runs"})
		return
	}
	if runs == nil {
		runs = []models.RunSummary{}
	}
	c.JSON(http.StatusOK, runs)
}

// runError answers for a failed run lookup and reports whether it did.
func (h *Handler) runError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, database.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Analysis run not found"})
		return true
	}
	h.logger.WithError(err).WithField("run_id", c.Param("id")).Error("Failed to read analysis run")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read analysis run"})
	return true
}

func (h *Handler) GetAnalysis(c *gin.Context) {
	id := c.Param("id")
	run, err := h.db.GetRun(id)
	if h.runError(c, err) {
		return
	}
	groups, err := h.db.GetRunGroups(id)
	if h.runError(c, err) {
		return
	}

	summaries := make([]models.GroupSummary, len(groups))
	for i, g := range groups {
		summaries[i] = g.Summary
	}

	if c.Query("format") == "csv" {
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", "attachment; filename=groups-"+id+".csv")
		if err := report.WriteGroupsCSV(c.Writer, summaries); err != nil {
			h.logger.WithError(err).Error("Failed to write groups export")
		}
		return
	}

	if c.Query("members") == "true" {
		c.JSON(http.StatusOK, gin.H{"run": run, "groups": groups})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "groups": summaries})
}

func (h *Handler) GetRejections(c *gin.Context) {
	id := c.Param("id")
	rejections, err := h.db.GetRunRejections(id)
	if h.runError(c, err) {
		return
	}

	if flag := c.Query("flag"); flag != "" {
		filtered := make([]models.Rejection, 0, len(rejections))
		for _, rej := range rejections {
			if rej.Result.Has(models.Flag(strings.ToUpper(flag))) {
				filtered = append(filtered, rej)
			}
		}
		rejections = filtered
	}

	if c.Query("format") == "csv" {
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", "attachment; filename=rejections-"+id+".csv")
		if err := report.WriteRejectionsCSV(c.Writer, rejections); err != nil {
			h.logger.WithError(err).Error("Failed to write rejections export")
		}
		return
	}
	c.JSON(http.StatusOK, rejections)
}

func (h *Handler) GetBlocks(c *gin.Context) {
	id := c.Param("id")
	run, err := h.db.GetRun(id)
	if h.runError(c, err) {
		return
	}
	groups, err := h.db.GetRunGroups(id)
	if h.runError(c, err) {
		return
	}

	fc := h.blocks.FeatureCollection(run.ID, groups, run.StartedAt)
	c.Header("Content-Type", "application/geo+json")
	if err := report.WriteJSON(c.Writer, fc); err != nil {
		h.logger.WithError(err).Error("Failed to write block map")
	}
}
