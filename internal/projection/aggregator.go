package projection

import (
	"sort"
	"time"

	"github.com/gearbase/geartrack/internal/models"
)

// UnknownHolderName is used for holders with no matching catalog user. The
// item is still out of the office, so the group is surfaced rather than
// dropped.
const UnknownHolderName = "Unknown user"

// Aggregator derives grouped views from a projector snapshot. It holds no
// state of its own: every method is a pure function of its arguments.
type Aggregator struct{}

// NewAggregator creates a new aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Counts partitions a snapshot by status. InOffice + CheckedOut always
// equals Total since every projection carries exactly one status.
func (a *Aggregator) Counts(snapshot []models.ItemProjection) models.StatusCounts {
	counts := models.StatusCounts{Total: len(snapshot)}
	for _, item := range snapshot {
		if item.Status == models.StatusCheckedOut {
			counts.CheckedOut++
		} else {
			counts.InOffice++
		}
	}
	return counts
}

// GroupByHolder groups checked-out items under the user currently holding
// them. Holders with nothing checked out are omitted. Holder ids with no
// matching catalog user keep their items under a placeholder display name.
// Items within a group are ordered by last event time descending, then item
// id ascending; groups by display name, then user id.
func (a *Aggregator) GroupByHolder(snapshot []models.ItemProjection, users map[string]models.User) []models.HolderGroup {
	byHolder := make(map[string][]models.ItemProjection)
	for _, item := range snapshot {
		if item.Status != models.StatusCheckedOut {
			continue
		}
		byHolder[item.HolderUserID] = append(byHolder[item.HolderUserID], item)
	}

	groups := make([]models.HolderGroup, 0, len(byHolder))
	for userID, items := range byHolder {
		sort.Slice(items, func(i, j int) bool {
			if !items[i].LastEventTimestamp.Equal(items[j].LastEventTimestamp) {
				return items[i].LastEventTimestamp.After(items[j].LastEventTimestamp)
			}
			return items[i].ItemID < items[j].ItemID
		})

		group := models.HolderGroup{
			UserID:   userID,
			UserName: UnknownHolderName,
			Items:    items,
		}
		if user, ok := users[userID]; ok {
			group.UserName = user.DisplayName
		} else if len(items) > 0 && items[0].HolderUserName != "" {
			// The log entry itself carried a name; prefer it over the placeholder.
			group.UserName = items[0].HolderUserName
		}
		groups = append(groups, group)
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].UserName != groups[j].UserName {
			return groups[i].UserName < groups[j].UserName
		}
		return groups[i].UserID < groups[j].UserID
	})

	return groups
}

// Overdue reports the checked-out items whose catalog due date lies strictly
// before now. Items without a due date are never overdue. The reference
// instant is an explicit argument so the result is deterministic.
func (a *Aggregator) Overdue(snapshot []models.ItemProjection, catalog map[string]models.Item, now time.Time) models.OverdueReport {
	report := models.OverdueReport{AsOf: now}

	for _, item := range snapshot {
		if item.Status != models.StatusCheckedOut {
			continue
		}
		entry, ok := catalog[item.ItemID]
		if !ok || entry.DueDate == nil {
			continue
		}
		if entry.DueDate.Before(now) {
			report.Items = append(report.Items, item)
		}
	}

	sort.Slice(report.Items, func(i, j int) bool {
		return report.Items[i].ItemID < report.Items[j].ItemID
	})

	report.Count = len(report.Items)
	report.ItemIDs = make([]string, 0, len(report.Items))
	for _, item := range report.Items {
		report.ItemIDs = append(report.ItemIDs, item.ItemID)
	}

	return report
}
