package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/audit"
	"github.com/iota-uz/autoassign/modules/assignment/infrastructure/persistence"
	"github.com/iota-uz/autoassign/pkg/composables"
)

func uptr(v uint) *uint { return &v }

func TestInmemAuditRepository_ListOrderAndFilters(t *testing.T) {
	repo := persistence.NewInmemAuditRepository()
	tenantID := uuid.New()
	ctx := composables.WithTenantID(context.Background(), tenantID)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rows := []*audit.Audit{
		{RecordType: audit.RecordLead, RecordID: "1", AssignedUserID: uptr(1), AssignmentType: audit.TypeRoundRobin, CreatedAt: base},
		{RecordType: audit.RecordLead, RecordID: "2", AssignedUserID: uptr(2), AssignmentType: audit.TypeRoundRobin, CreatedAt: base},
		{RecordType: audit.RecordDeal, RecordID: "3", AssignmentType: audit.TypeDefault, CreatedAt: base.Add(time.Minute)},
	}
	for _, a := range rows {
		require.NoError(t, repo.Create(ctx, a))
	}

	other := composables.WithTenantID(context.Background(), uuid.New())
	require.NoError(t, repo.Create(other, &audit.Audit{RecordType: audit.RecordLead, RecordID: "x", AssignmentType: audit.TypeManual}))

	list, err := repo.List(ctx, &audit.FindParams{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "3", list[0].RecordID)
	require.Equal(t, "2", list[1].RecordID, "ties break on id descending")
	require.Equal(t, "1", list[2].RecordID)

	list, err = repo.List(ctx, &audit.FindParams{VisibleUserIDs: []uint{1}})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "3", list[0].RecordID)
	require.Equal(t, "1", list[1].RecordID)

	count, err := repo.Count(ctx, &audit.FindParams{RecordType: audit.RecordLead})
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	page, err := repo.List(ctx, &audit.FindParams{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "2", page[0].RecordID)

	stats, err := repo.Stats(ctx, nil)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.Total)
	require.EqualValues(t, 1, stats.Unassigned)
	require.EqualValues(t, 2, stats.ByType[audit.TypeRoundRobin])
}

func TestInmemAuditRepository_StatsPutsUnassignedLast(t *testing.T) {
	repo := persistence.NewInmemAuditRepository()
	ctx := composables.WithTenantID(context.Background(), uuid.New())

	for i, user := range []*uint{nil, nil, nil, uptr(4), uptr(4), uptr(2)} {
		require.NoError(t, repo.Create(ctx, &audit.Audit{
			RecordType:     audit.RecordLead,
			RecordID:       string(rune('a' + i)),
			AssignedUserID: user,
			AssignmentType: audit.TypeRoundRobin,
		}))
	}

	stats, err := repo.Stats(ctx, nil)
	require.NoError(t, err)
	require.Len(t, stats.ByUser, 3)
	require.Equal(t, uint(4), *stats.ByUser[0].UserID)
	require.EqualValues(t, 2, stats.ByUser[0].Count)
	require.Equal(t, uint(2), *stats.ByUser[1].UserID)
	require.Nil(t, stats.ByUser[2].UserID)
	require.EqualValues(t, 3, stats.ByUser[2].Count)
}
