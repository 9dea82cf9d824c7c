package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"

	"github.com/jengzang/records-cluster-go/internal/export"
	"github.com/jengzang/records-cluster-go/internal/models"
	"github.com/jengzang/records-cluster-go/internal/service"
	"github.com/jengzang/records-cluster-go/pkg/response"
)

// PNG preview limits
const (
	DefaultPreviewSize = 512
	MaxPreviewSize     = 4096
)

// ScanHandler handles HTTP requests for scan runs
type ScanHandler struct {
	service *service.ScanService
}

// NewScanHandler creates a new scan handler
func NewScanHandler(service *service.ScanService) *ScanHandler {
	return &ScanHandler{service: service}
}

// CreateScanRequest represents the request body for starting a scan
type CreateScanRequest struct {
	PointSetID string          `json:"point_set_id" binding:"required"`
	Strategy   string          `json:"strategy"` // besag_newell, gam
	Params     json.RawMessage `json:"params"`
}

// CreateScan starts a scan run in the background
// POST /api/v1/scans
func (h *ScanHandler) CreateScan(c *gin.Context) {
	var req CreateScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	run, err := h.service.CreateScan(service.CreateScanRequest{
		PointSetID: req.PointSetID,
		Strategy:   req.Strategy,
		Params:     req.Params,
		CreatedBy:  createdBy(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response.Accepted(c, run)
}

// GetScan retrieves a run with its status and summary
// GET /api/v1/scans/:id
func (h *ScanHandler) GetScan(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	run, err := h.service.GetRun(id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, run)
}

// ListScans retrieves runs, newest first
// GET /api/v1/scans
func (h *ScanHandler) ListScans(c *gin.Context) {
	filter := models.ScanRunFilter{
		PointSetID: c.Query("point_set_id"),
		Strategy:   c.Query("strategy"),
		Status:     c.Query("status"),
		Limit:      queryInt(c, "limit", 20),
		Offset:     queryInt(c, "offset", 0),
	}

	runs, err := h.service.ListRuns(filter)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"scans":  runs,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetClusters returns the clusters of a completed run as a GeoJSON
// FeatureCollection
// GET /api/v1/scans/:id/clusters?min_fitness=&bbox=minx,miny,maxx,maxy&limit=
func (h *ScanHandler) GetClusters(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var filter models.ClusterFilter
	if v := c.Query("min_fitness"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			response.BadRequest(c, "Invalid min_fitness")
			return
		}
		filter.MinFitness = f
	}
	if v := c.Query("bbox"); v != "" {
		bbox, err := parseBBox(v)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		filter.BBox = &bbox
	}
	filter.Limit = queryInt(c, "limit", 0)

	zones, err := h.service.Clusters(id, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteClusters(&buf, zones); err != nil {
		response.InternalError(c, err.Error())
		return
	}
	c.Data(http.StatusOK, "application/geo+json", buf.Bytes())
}

// GetRaster returns the density raster of a completed run. Rows run from
// north to south.
// GET /api/v1/scans/:id/raster
func (h *ScanHandler) GetRaster(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	info, err := h.service.RasterInfo(id)
	if err != nil {
		respondError(c, err)
		return
	}
	raster, err := h.service.Raster(id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"info": info,
		"data": raster.Data,
	})
}

// GetRasterPNG renders the density raster of a completed run
// GET /api/v1/scans/:id/raster.png?width=&height=
func (h *ScanHandler) GetRasterPNG(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	width := queryInt(c, "width", DefaultPreviewSize)
	height := queryInt(c, "height", DefaultPreviewSize)
	if width > MaxPreviewSize || height > MaxPreviewSize {
		response.BadRequest(c, fmt.Sprintf("image size is limited to %dx%d", MaxPreviewSize, MaxPreviewSize))
		return
	}

	img, err := h.service.RasterPNG(id, width, height)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", img)
}

// parseBBox reads "minx,miny,maxx,maxy".
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox needs 4 numbers, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid bbox value %q", p)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("bbox min exceeds max")
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
