package projection

import (
	"strings"

	"github.com/gearbase/geartrack/internal/models"
)

// Filter narrows a projection list by a case-insensitive substring match on
// the item name. A blank query returns the input unchanged, preserving its
// order. The input slice is never mutated.
func Filter(items []models.ItemProjection, query string) []models.ItemProjection {
	query = strings.TrimSpace(query)
	if query == "" {
		return items
	}

	needle := strings.ToLower(query)
	matched := make([]models.ItemProjection, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.ItemName), needle) {
			matched = append(matched, item)
		}
	}
	return matched
}

// FilterByStatus narrows a projection list to the given status, preserving order
func FilterByStatus(items []models.ItemProjection, status models.ItemStatus) []models.ItemProjection {
	matched := make([]models.ItemProjection, 0, len(items))
	for _, item := range items {
		if item.Status == status {
			matched = append(matched, item)
		}
	}
	return matched
}
