package projection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearbase/geartrack/internal/models"
)

func checkedOut(itemID, name, userID, userName string, at time.Time) models.ItemProjection {
	return models.ItemProjection{
		ItemID:             itemID,
		ItemName:           name,
		Status:             models.StatusCheckedOut,
		HolderUserID:       userID,
		HolderUserName:     userName,
		LastEventID:        1,
		LastEventTimestamp: at,
	}
}

func inOffice(itemID, name string, at time.Time) models.ItemProjection {
	return models.ItemProjection{
		ItemID:             itemID,
		ItemName:           name,
		Status:             models.StatusInOffice,
		LastEventID:        1,
		LastEventTimestamp: at,
	}
}

func TestCountsPartitionInvariant(t *testing.T) {
	a := NewAggregator()

	snapshots := [][]models.ItemProjection{
		nil,
		{inOffice("A", "Tripod", baseTime)},
		{
			checkedOut("A", "Tripod", "u1", "Ada", baseTime),
			checkedOut("B", "Camera", "u2", "Grace", baseTime),
			inOffice("C", "Drone", baseTime),
		},
	}

	for _, snapshot := range snapshots {
		counts := a.Counts(snapshot)
		assert.Equal(t, counts.Total, counts.InOffice+counts.CheckedOut)
		assert.Equal(t, len(snapshot), counts.Total)
	}

	counts := a.Counts(snapshots[2])
	assert.Equal(t, 2, counts.CheckedOut)
	assert.Equal(t, 1, counts.InOffice)
}

func TestGroupByHolderOmitsEmptyGroups(t *testing.T) {
	a := NewAggregator()

	snapshot := []models.ItemProjection{
		inOffice("A", "Tripod", baseTime),
		inOffice("B", "Camera", baseTime),
	}

	groups := a.GroupByHolder(snapshot, nil)
	assert.Empty(t, groups)
}

func TestGroupByHolderNeverReturnsEmptyItemList(t *testing.T) {
	a := NewAggregator()

	users := map[string]models.User{
		"u1": {UserID: "u1", DisplayName: "Ada"},
		"u9": {UserID: "u9", DisplayName: "Idle"}, // holds nothing
	}
	snapshot := []models.ItemProjection{
		checkedOut("A", "Tripod", "u1", "Ada", baseTime),
		inOffice("B", "Camera", baseTime),
	}

	groups := a.GroupByHolder(snapshot, users)
	require.Len(t, groups, 1)
	assert.Equal(t, "u1", groups[0].UserID)
	assert.NotEmpty(t, groups[0].Items)
}

func TestGroupByHolderItemOrdering(t *testing.T) {
	a := NewAggregator()

	snapshot := []models.ItemProjection{
		checkedOut("C", "Drone", "u1", "Ada", baseTime.Add(time.Minute)),
		checkedOut("A", "Tripod", "u1", "Ada", baseTime.Add(2*time.Minute)),
		checkedOut("B", "Camera", "u1", "Ada", baseTime.Add(time.Minute)),
	}

	groups := a.GroupByHolder(snapshot, nil)
	require.Len(t, groups, 1)

	// Newest first, item id breaks the tie between B and C.
	ids := []string{groups[0].Items[0].ItemID, groups[0].Items[1].ItemID, groups[0].Items[2].ItemID}
	assert.Equal(t, []string{"A", "B", "C"}, ids)
}

func TestGroupByHolderUnknownUserPlaceholder(t *testing.T) {
	a := NewAggregator()

	snapshot := []models.ItemProjection{
		{
			ItemID:             "A",
			ItemName:           "Tripod",
			Status:             models.StatusCheckedOut,
			HolderUserID:       "ghost",
			LastEventID:        1,
			LastEventTimestamp: baseTime,
		},
	}

	// No catalog match and no name on the entry: the out-of-office fact is
	// still surfaced, keyed by the raw holder id.
	groups := a.GroupByHolder(snapshot, map[string]models.User{})
	require.Len(t, groups, 1)
	assert.Equal(t, "ghost", groups[0].UserID)
	assert.Equal(t, UnknownHolderName, groups[0].UserName)
	require.Len(t, groups[0].Items, 1)
}

func TestGroupByHolderPrefersCatalogName(t *testing.T) {
	a := NewAggregator()

	users := map[string]models.User{
		"u1": {UserID: "u1", DisplayName: "Ada Lovelace"},
	}
	snapshot := []models.ItemProjection{
		checkedOut("A", "Tripod", "u1", "ada l.", baseTime),
	}

	groups := a.GroupByHolder(snapshot, users)
	require.Len(t, groups, 1)
	assert.Equal(t, "Ada Lovelace", groups[0].UserName)
}

func TestGroupByHolderGroupOrderDeterministic(t *testing.T) {
	a := NewAggregator()

	users := map[string]models.User{
		"u1": {UserID: "u1", DisplayName: "Grace"},
		"u2": {UserID: "u2", DisplayName: "Ada"},
	}
	snapshot := []models.ItemProjection{
		checkedOut("A", "Tripod", "u1", "Grace", baseTime),
		checkedOut("B", "Camera", "u2", "Ada", baseTime),
	}

	groups := a.GroupByHolder(snapshot, users)
	require.Len(t, groups, 2)
	assert.Equal(t, "Ada", groups[0].UserName)
	assert.Equal(t, "Grace", groups[1].UserName)
}

func TestOverdueBoundary(t *testing.T) {
	a := NewAggregator()
	due := baseTime.Add(72 * time.Hour)

	catalog := map[string]models.Item{
		"C": {ItemID: "C", DisplayName: "Drone", DueDate: &due},
	}
	snapshot := []models.ItemProjection{
		checkedOut("C", "Drone", "u1", "Ada", baseTime),
	}

	before := a.Overdue(snapshot, catalog, due.Add(-time.Second))
	assert.Zero(t, before.Count)
	assert.Empty(t, before.ItemIDs)

	after := a.Overdue(snapshot, catalog, due.Add(time.Second))
	assert.Equal(t, 1, after.Count)
	assert.Equal(t, []string{"C"}, after.ItemIDs)

	// Exactly at the due date the item is not yet overdue.
	at := a.Overdue(snapshot, catalog, due)
	assert.Zero(t, at.Count)
}

func TestOverdueIgnoresItemsWithoutDueDate(t *testing.T) {
	a := NewAggregator()

	catalog := map[string]models.Item{
		"A": {ItemID: "A", DisplayName: "Tripod"}, // no due date
	}
	snapshot := []models.ItemProjection{
		checkedOut("A", "Tripod", "u1", "Ada", baseTime),
		checkedOut("B", "Camera", "u2", "Grace", baseTime), // not in catalog
	}

	report := a.Overdue(snapshot, catalog, baseTime.Add(1000*time.Hour))
	assert.Zero(t, report.Count)
}

func TestOverdueIgnoresReturnedItems(t *testing.T) {
	a := NewAggregator()
	due := baseTime.Add(-time.Hour)

	catalog := map[string]models.Item{
		"A": {ItemID: "A", DisplayName: "Tripod", DueDate: &due},
	}
	snapshot := []models.ItemProjection{
		inOffice("A", "Tripod", baseTime),
	}

	report := a.Overdue(snapshot, catalog, baseTime)
	assert.Zero(t, report.Count)
}

func TestOverdueDeterministic(t *testing.T) {
	a := NewAggregator()
	due := baseTime.Add(time.Hour)
	now := baseTime.Add(2 * time.Hour)

	catalog := map[string]models.Item{
		"A": {ItemID: "A", DisplayName: "Tripod", DueDate: &due},
	}
	snapshot := []models.ItemProjection{
		checkedOut("A", "Tripod", "u1", "Ada", baseTime),
	}

	first := a.Overdue(snapshot, catalog, now)
	second := a.Overdue(snapshot, catalog, now)
	assert.Equal(t, first, second)
}
