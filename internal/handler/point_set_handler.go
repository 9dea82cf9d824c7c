package handler

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/records-cluster-go/internal/service"
	"github.com/jengzang/records-cluster-go/pkg/response"
)

// PointSetHandler handles HTTP requests for point sets
type PointSetHandler struct {
	service *service.PointSetService
}

// NewPointSetHandler creates a new point set handler
func NewPointSetHandler(service *service.PointSetService) *PointSetHandler {
	return &PointSetHandler{service: service}
}

// CreatePointSetRequest represents the request body for importing a point set
type CreatePointSetRequest struct {
	Name       string `json:"name" binding:"required"`
	Geographic bool   `json:"geographic"`
	// WeightProperty defaults to "weight"; an explicit "" counts features.
	WeightProperty *string         `json:"weight_property"`
	Population     json.RawMessage `json:"population" binding:"required"`
	Cases          json.RawMessage `json:"cases"`
}

// CreatePointSet imports population and case FeatureCollections
// POST /api/v1/point-sets
func (h *PointSetHandler) CreatePointSet(c *gin.Context) {
	var req CreatePointSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	weight := service.DefaultWeightProperty
	if req.WeightProperty != nil {
		weight = *req.WeightProperty
	}
	cases := req.Cases
	if len(cases) == 0 {
		cases = json.RawMessage(`{"type":"FeatureCollection","features":[]}`)
	}

	set, err := h.service.Import(service.ImportRequest{
		Name:           req.Name,
		Geographic:     req.Geographic,
		WeightProperty: weight,
		Population:     req.Population,
		Cases:          cases,
		CreatedBy:      createdBy(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, set)
}

// GetPointSet retrieves a point set by ID
// GET /api/v1/point-sets/:id
func (h *PointSetHandler) GetPointSet(c *gin.Context) {
	set, err := h.service.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, set)
}

// ListPointSets retrieves point sets, newest first
// GET /api/v1/point-sets
func (h *PointSetHandler) ListPointSets(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	sets, err := h.service.List(limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"point_sets": sets,
		"limit":      limit,
		"offset":     offset,
	})
}
