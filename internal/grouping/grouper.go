package grouping

import (
	"fmt"
	"strings"

	"athensenergy/server/config"
	"athensenergy/server/internal/models"
)

// UnassignedKey is used for records whose key function returns "".
const UnassignedKey = "unassigned"

// Grouper partitions records into bounded groups.
type Grouper struct {
	maxSize       int
	minConfidence int
}

func NewGrouper(settings config.Pipeline) *Grouper {
	return &Grouper{
		maxSize:       settings.MaxGroupSize,
		minConfidence: settings.MinGroupSizeForConfidence,
	}
}

// Group buckets records by key. Groups appear in order of the first record
// seen for each base key and members keep their input order. A key with more
// than the maximum group size is split into "key", "key#2", "key#3", ...
func (g *Grouper) Group(records []models.PropertyRecord, key KeyFunc) []models.Group {
	var order []string
	buckets := make(map[string][]models.PropertyRecord)

	for _, r := range records {
		k := strings.TrimSpace(key(r))
		if k == "" {
			k = UnassignedKey
		}
		if _, seen := buckets[k]; !seen {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], r)
	}

	maxSize := g.maxSize
	if maxSize < 1 {
		maxSize = len(records)
	}

	var groups []models.Group
	for _, k := range order {
		members := buckets[k]
		for i, start := 0, 0; start < len(members); i, start = i+1, start+maxSize {
			end := start + maxSize
			if end > len(members) {
				end = len(members)
			}
			chunk := members[start:end:end]
			groups = append(groups, models.Group{
				ID:            groupID(k, i),
				BaseKey:       k,
				Index:         i + 1,
				Members:       chunk,
				LowConfidence: len(chunk) < g.minConfidence,
			})
		}
	}
	return groups
}

// Apply runs the strategy's preparation step, if any, and groups the result.
func (g *Grouper) Apply(records []models.PropertyRecord, s Strategy) []models.Group {
	if s.Prepare != nil {
		records = s.Prepare(records)
	}
	return g.Group(records, s.Key)
}

func groupID(key string, i int) string {
	if i == 0 {
		return key
	}
	return fmt.Sprintf("%s#%d", key, i+1)
}
