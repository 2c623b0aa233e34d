package grouping

import (
	"fmt"
	"sort"

	"athensenergy/server/config"
	"athensenergy/server/internal/models"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// KeyFunc maps a record to the base key of its group.
type KeyFunc func(models.PropertyRecord) string

// Strategy bundles a key function with an optional reordering applied to the
// records before grouping.
type Strategy struct {
	Name    string
	Key     KeyFunc
	Prepare func([]models.PropertyRecord) []models.PropertyRecord
}

// ByNeighborhood groups records by their normalized neighborhood.
func ByNeighborhood(r models.PropertyRecord) string {
	return r.NeighborhoodKey()
}

// ByGeoGrid groups records by the web-mercator tile containing their
// coordinates. Records without coordinates fall back to their neighborhood.
func ByGeoGrid(zoom int) KeyFunc {
	z := maptile.Zoom(zoom)
	return func(r models.PropertyRecord) string {
		if !r.HasCoordinates() {
			return ByNeighborhood(r)
		}
		t := maptile.At(orb.Point{*r.Longitude, *r.Latitude}, z)
		return fmt.Sprintf("tile/%d/%d/%d", t.Z, t.X, t.Y)
	}
}

// SortForBlocks returns a copy of records ordered by neighborhood, then floor
// area (missing last), then id. The sort is stable.
func SortForBlocks(records []models.PropertyRecord) []models.PropertyRecord {
	out := make([]models.PropertyRecord, len(records))
	copy(out, records)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ka, kb := a.NeighborhoodKey(), b.NeighborhoodKey(); ka != kb {
			return ka < kb
		}
		if a.HasArea() != b.HasArea() {
			return a.HasArea()
		}
		if a.HasArea() && *a.AreaSqm != *b.AreaSqm {
			return *a.AreaSqm < *b.AreaSqm
		}
		return a.ID < b.ID
	})
	return out
}

// StrategyFor resolves the configured grouping strategy.
func StrategyFor(settings config.Pipeline) (Strategy, error) {
	switch settings.GroupingStrategy {
	case config.StrategyNeighborhood:
		return Strategy{Name: config.StrategyNeighborhood, Key: ByNeighborhood}, nil
	case config.StrategyGrid:
		return Strategy{Name: config.StrategyGrid, Key: ByGeoGrid(settings.GridZoom)}, nil
	case config.StrategyChunked:
		return Strategy{Name: config.StrategyChunked, Key: ByNeighborhood, Prepare: SortForBlocks}, nil
	default:
		return Strategy{}, fmt.Errorf("%w: unknown grouping strategy %q", config.ErrInvalidConfig, settings.GroupingStrategy)
	}
}
