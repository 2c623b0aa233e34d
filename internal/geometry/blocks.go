package geometry

import (
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/sirupsen/logrus"

	"athensenergy/server/internal/models"
)

// Locator places a neighborhood on the map. Groups whose members carry no
// coordinates are drawn at their neighborhood's point when one is set.
type Locator interface {
	LocateNeighborhood(neighborhood string) (orb.Point, error)
}

// BlockMapper turns analysed groups into map features.
type BlockMapper struct {
	logger  *logrus.Logger
	locator Locator
}

// NewBlockMapper creates a mapper. locator may be nil.
func NewBlockMapper(logger *logrus.Logger, locator Locator) *BlockMapper {
	return &BlockMapper{logger: logger, locator: locator}
}

// memberPoints returns the distinct member coordinates as lon/lat points.
func memberPoints(members []models.PropertyRecord) []orb.Point {
	seen := make(map[orb.Point]bool, len(members))
	points := make([]orb.Point, 0, len(members))
	for _, m := range members {
		if !m.HasCoordinates() {
			continue
		}
		p := orb.Point{*m.Longitude, *m.Latitude}
		if seen[p] {
			continue
		}
		seen[p] = true
		points = append(points, p)
	}
	return points
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// ConvexHull returns the closed counter-clockwise hull of points, or nil when
// the points do not span an area.
func ConvexHull(points []orb.Point) orb.Ring {
	if len(points) < 3 {
		return nil
	}

	sorted := make([]orb.Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i][0] != sorted[j][0] {
			return sorted[i][0] < sorted[j][0]
		}
		return sorted[i][1] < sorted[j][1]
	})

	// Monotone chain: lower hull, then upper hull.
	hull := make([]orb.Point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// hull is closed here: the last point repeats the first.
	if len(hull) < 4 {
		return nil
	}
	return orb.Ring(hull)
}

// neighborhoodOf returns the first neighborhood label among the members.
func neighborhoodOf(members []models.PropertyRecord) string {
	for _, m := range members {
		if nb := strings.TrimSpace(m.Neighborhood); nb != "" {
			return nb
		}
	}
	return ""
}

// locate falls back to the group's neighborhood point.
func (m *BlockMapper) locate(group models.StoredGroup) *geojson.Feature {
	if m.locator == nil {
		return nil
	}
	nb := neighborhoodOf(group.Members)
	if nb == "" {
		return nil
	}
	p, err := m.locator.LocateNeighborhood(nb)
	if err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"group_id":     group.Summary.GroupID,
			"neighborhood": nb,
		}).Warn("Could not locate neighborhood")
		return nil
	}
	feature := geojson.NewFeature(p)
	feature.Properties = geojson.Properties{
		"geometry_type": "neighborhood",
		"neighborhood":  nb,
	}
	return feature
}

// BlockFeature builds the feature for one group: the convex hull of its
// members when they span an area, otherwise the member points themselves.
// Groups without any coordinates are placed at their neighborhood when a
// locator is set, and yield nil otherwise.
func (m *BlockMapper) BlockFeature(group models.StoredGroup) *geojson.Feature {
	points := memberPoints(group.Members)

	var feature *geojson.Feature
	if len(points) == 0 {
		if feature = m.locate(group); feature == nil {
			return nil
		}
	} else if hull := ConvexHull(points); hull != nil {
		polygon := orb.Polygon{hull}
		centroid, _ := planar.CentroidArea(polygon)
		feature = geojson.NewFeature(polygon)
		feature.Properties = geojson.Properties{
			"geometry_type": "hull",
			"area_m2":       geo.Area(polygon),
			"centroid":      []float64{centroid[0], centroid[1]},
		}
	} else {
		feature = geojson.NewFeature(orb.MultiPoint(points))
		feature.Properties = geojson.Properties{
			"geometry_type": "points",
		}
	}

	s := group.Summary
	feature.ID = s.GroupID
	feature.Properties["group_id"] = s.GroupID
	feature.Properties["base_key"] = s.BaseKey
	feature.Properties["status"] = s.Status
	feature.Properties["member_count"] = s.MemberCount
	feature.Properties["point_count"] = len(points)
	feature.Properties["low_confidence"] = s.LowConfidence
	if s.WeightedMedianEnergyClass != nil {
		feature.Properties["weighted_median_energy_class"] = s.WeightedMedianEnergyClass.String()
	} else {
		feature.Properties["weighted_median_energy_class"] = nil
	}
	if s.Reason != "" {
		feature.Properties["reason"] = s.Reason
	}
	return feature
}

// FeatureCollection maps every locatable group of a run, in group order.
func (m *BlockMapper) FeatureCollection(runID string, groups []models.StoredGroup, generated time.Time) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	skipped := 0
	for _, g := range groups {
		feature := m.BlockFeature(g)
		if feature == nil {
			skipped++
			continue
		}
		fc.Append(feature)
	}

	fc.ExtraMembers = geojson.Properties{
		"metadata": map[string]interface{}{
			"run_id":      runID,
			"generated":   generated.UTC().Format(time.RFC3339),
			"blocks":      len(fc.Features),
			"unlocatable": skipped,
		},
	}

	if skipped > 0 {
		m.logger.WithFields(logrus.Fields{
			"run_id":  runID,
			"skipped": skipped,
		}).Debug("Groups without coordinates left off the block map")
	}
	return fc
}
