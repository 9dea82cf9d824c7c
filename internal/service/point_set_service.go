package service

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"github.com/jengzang/records-cluster-go/internal/hotspot"
	"github.com/jengzang/records-cluster-go/internal/models"
	"github.com/jengzang/records-cluster-go/internal/repository"
)

// DefaultWeightProperty is read when an import names no weight property.
const DefaultWeightProperty = "weight"

// ImportRequest holds two GeoJSON FeatureCollections and how to weigh them.
type ImportRequest struct {
	Name       string
	Geographic bool
	// WeightProperty is the numeric feature property to read. Empty weighs
	// every feature 1.
	WeightProperty string
	Population     json.RawMessage
	Cases          json.RawMessage
	CreatedBy      string
}

// PointSetService handles point set business logic
type PointSetService struct {
	repo *repository.PointSetRepository
}

// NewPointSetService creates a new point set service
func NewPointSetService(repo *repository.PointSetRepository) *PointSetService {
	return &PointSetService{repo: repo}
}

// LoadGeoJSON parses a FeatureCollection into a point index.
func LoadGeoJSON(data []byte, weightProperty, prefix string) (*hotspot.PointIndex, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s collection: %v", ErrInvalidInput, prefix, err)
	}
	return hotspot.LoadPoints(fc.Features, hotspot.WeightByName(weightProperty), prefix), nil
}

// Import stores a new point set. Features without a usable weight are
// dropped; at least one population point must remain.
func (s *PointSetService) Import(req ImportRequest) (*models.PointSet, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	population, err := LoadGeoJSON(req.Population, req.WeightProperty, models.RolePopulation)
	if err != nil {
		return nil, err
	}
	if population.Len() == 0 {
		return nil, fmt.Errorf("%w: no population feature has a positive %q", ErrInvalidInput, req.WeightProperty)
	}
	cases, err := LoadGeoJSON(req.Cases, req.WeightProperty, models.RoleCase)
	if err != nil {
		return nil, err
	}

	set := &models.PointSet{
		ID:             uuid.NewString(),
		Name:           req.Name,
		Geographic:     req.Geographic,
		WeightProperty: req.WeightProperty,
		PopulationCnt:  population.Len(),
		PopulationSum:  population.Sum(),
		CaseCnt:        cases.Len(),
		CaseSum:        cases.Sum(),
		Extent:         population.Bounds(),
		CreatedBy:      req.CreatedBy,
	}
	if cases.Len() > 0 {
		set.Extent = set.Extent.Union(cases.Bounds())
	}

	records := make([]models.PointRecord, 0, population.Len()+cases.Len())
	records = appendRecords(records, models.RolePopulation, population)
	records = appendRecords(records, models.RoleCase, cases)

	if err := s.repo.Create(set, records); err != nil {
		return nil, err
	}

	log.Printf("[PointSetService] imported %s: %d population (%.6g), %d cases (%.6g)",
		set.ID, set.PopulationCnt, set.PopulationSum, set.CaseCnt, set.CaseSum)
	return set, nil
}

func appendRecords(records []models.PointRecord, role string, idx *hotspot.PointIndex) []models.PointRecord {
	for _, p := range idx.Points() {
		records = append(records, models.PointRecord{
			Role:      role,
			FeatureID: p.ID,
			X:         p.X,
			Y:         p.Y,
			Weight:    p.Value,
		})
	}
	return records
}

// Get retrieves a point set by ID
func (s *PointSetService) Get(id string) (*models.PointSet, error) {
	return s.repo.GetByID(id)
}

// List retrieves point sets
func (s *PointSetService) List(limit, offset int) ([]*models.PointSet, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(limit, offset)
}
