package models

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/jengzang/records-cluster-go/internal/hotspot"
)

// Point roles
const (
	RolePopulation = "population"
	RoleCase       = "case"
)

// PointSet is an imported pair of population and case collections.
type PointSet struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Geographic     bool      `json:"geographic" db:"geographic"` // lon/lat degrees rather than projected units
	WeightProperty string    `json:"weight_property" db:"weight_property"`
	PopulationCnt  int       `json:"population_count" db:"population_count"`
	PopulationSum  float64   `json:"population_sum" db:"population_sum"`
	CaseCnt        int       `json:"case_count" db:"case_count"`
	CaseSum        float64   `json:"case_sum" db:"case_sum"`
	Extent         orb.Bound `json:"extent" db:"min_x,min_y,max_x,max_y"`
	CreatedBy      string    `json:"created_by,omitempty" db:"created_by"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// PointRecord is one stored weighted point.
type PointRecord struct {
	ID         int64   `json:"id" db:"id"`
	PointSetID string  `json:"point_set_id" db:"point_set_id"`
	Role       string  `json:"role" db:"role"`
	FeatureID  string  `json:"feature_id" db:"feature_id"`
	X          float64 `json:"x" db:"x"`
	Y          float64 `json:"y" db:"y"`
	Weight     float64 `json:"weight" db:"weight"`
}

// WeightedPoint converts the record for indexing.
func (r PointRecord) WeightedPoint() hotspot.WeightedPoint {
	return hotspot.WeightedPoint{ID: r.FeatureID, X: r.X, Y: r.Y, Value: r.Weight}
}
