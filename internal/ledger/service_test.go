package ledger

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sitestock/sitestock/internal/shared"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type memoryLedgerRepo struct {
	entries []Entry
}

func (r *memoryLedgerRepo) Insert(ctx context.Context, entry Entry) (Entry, error) {
	entry.ID = fmt.Sprintf("e-%d", len(r.entries)+1)
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *memoryLedgerRepo) Totals(ctx context.Context, projectID string) ([]MaterialBalance, error) {
	byMaterial := make(map[string]*MaterialBalance)
	for _, e := range r.entries {
		if e.ProjectID != projectID {
			continue
		}
		b, ok := byMaterial[e.MaterialID]
		if !ok {
			b = &MaterialBalance{MaterialID: e.MaterialID, MaterialName: e.MaterialName, Unit: e.Unit}
			byMaterial[e.MaterialID] = b
		}
		if e.Movement == MovementIn {
			b.TotalIn = b.TotalIn.Add(e.Qty)
		} else {
			b.TotalOut = b.TotalOut.Add(e.Qty)
		}
	}
	var out []MaterialBalance
	for _, b := range byMaterial {
		b.Balance = b.TotalIn.Sub(b.TotalOut)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterialName < out[j].MaterialName })
	return out, nil
}

func (r *memoryLedgerRepo) ListByProject(ctx context.Context, projectID string, limit, offset int) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryLedgerRepo) ProjectIDs(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, e := range r.entries {
		if !seen[e.ProjectID] {
			seen[e.ProjectID] = true
			out = append(out, e.ProjectID)
		}
	}
	return out, nil
}

func entry(projectID, materialID, name string, movement Movement, qty string) Entry {
	return Entry{
		ProjectID:    projectID,
		MaterialID:   materialID,
		MaterialName: name,
		Movement:     movement,
		Qty:          d(qty),
		Unit:         "bags",
		Source:       SourceAdjustment,
	}
}

func TestAppendValidation(t *testing.T) {
	svc := NewService(&memoryLedgerRepo{}, nil, nil, 0)
	ctx := context.Background()

	cases := []struct {
		name  string
		entry Entry
	}{
		{"missing project", entry("", "m1", "Cement", MovementIn, "5")},
		{"missing material", entry("p1", "", "Cement", MovementIn, "5")},
		{"zero qty", entry("p1", "m1", "Cement", MovementIn, "0")},
		{"negative qty", entry("p1", "m1", "Cement", MovementIn, "-2")},
		{"bad movement", Entry{ProjectID: "p1", MaterialID: "m1", Movement: "SIDEWAYS", Qty: d("1"), Source: SourceUsage}},
		{"bad source", Entry{ProjectID: "p1", MaterialID: "m1", Movement: MovementIn, Qty: d("1"), Source: "theft"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Append(ctx, tc.entry)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestBalanceIsOrderIndependent(t *testing.T) {
	movements := []Entry{
		entry("p1", "m1", "Cement", MovementIn, "100"),
		entry("p1", "m1", "Cement", MovementOut, "30"),
		entry("p1", "m1", "Cement", MovementIn, "20"),
		entry("p1", "m1", "Cement", MovementOut, "15"),
	}

	balanceAfter := func(order []int) decimal.Decimal {
		repo := &memoryLedgerRepo{}
		svc := NewService(repo, nil, nil, 0)
		for _, i := range order {
			_, err := svc.Append(context.Background(), movements[i])
			require.NoError(t, err)
		}
		balances, err := svc.Balance(context.Background(), "p1")
		require.NoError(t, err)
		require.Len(t, balances, 1)
		return balances[0].Balance
	}

	forward := balanceAfter([]int{0, 1, 2, 3})
	shuffled := balanceAfter([]int{3, 1, 0, 2})
	require.True(t, forward.Equal(d("75")), "balance = %s", forward)
	require.True(t, forward.Equal(shuffled))
}

func TestBalanceSortedByMaterialName(t *testing.T) {
	repo := &memoryLedgerRepo{}
	svc := NewService(repo, nil, nil, 0)
	ctx := context.Background()

	for _, e := range []Entry{
		entry("p1", "m2", "Steel", MovementIn, "10"),
		entry("p1", "m1", "Cement", MovementIn, "5"),
		entry("p1", "m3", "Bricks", MovementIn, "500"),
	} {
		_, err := svc.Append(ctx, e)
		require.NoError(t, err)
	}
	balances, err := svc.Balance(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, balances, 3)
	require.Equal(t, "Bricks", balances[0].MaterialName)
	require.Equal(t, "Cement", balances[1].MaterialName)
	require.Equal(t, "Steel", balances[2].MaterialName)
}

func TestAlertThresholds(t *testing.T) {
	ctx := context.Background()

	build := func(in, out string) []Alert {
		repo := &memoryLedgerRepo{}
		svc := NewService(repo, nil, nil, 0)
		if in != "0" {
			_, err := svc.Append(ctx, entry("p1", "m1", "Cement", MovementIn, in))
			require.NoError(t, err)
		}
		_, err := svc.Append(ctx, entry("p1", "m1", "Cement", MovementOut, out))
		require.NoError(t, err)
		alerts, err := svc.Alerts(ctx, "p1")
		require.NoError(t, err)
		return alerts
	}

	// Usage at 125 versus supply 100 exceeds the 1.2 factor.
	alerts := build("100", "125")
	require.Len(t, alerts, 1)
	require.Equal(t, AlertUsageExceedsSupply, alerts[0].Reason)

	// 119 of 100 is within the overage tolerance but still overdrawn.
	alerts = build("100", "119")
	require.Len(t, alerts, 1)
	require.Equal(t, AlertNegativeBalance, alerts[0].Reason)

	// Exactly at the threshold is not an overage.
	alerts = build("100", "120")
	require.Len(t, alerts, 1)
	require.Equal(t, AlertNegativeBalance, alerts[0].Reason)

	// Healthy stock raises nothing.
	alerts = build("100", "40")
	require.Empty(t, alerts)
}

func TestAlertsAccumulateAcrossEntries(t *testing.T) {
	ctx := context.Background()
	repo := &memoryLedgerRepo{}
	svc := NewService(repo, nil, nil, 0)

	steps := []Entry{
		entry("p1", "m1", "Cement", MovementIn, "100"),
		entry("p1", "m1", "Cement", MovementIn, "200"),
		entry("p1", "m1", "Cement", MovementOut, "125"),
	}
	for _, e := range steps {
		_, err := svc.Append(ctx, e)
		require.NoError(t, err)
	}
	alerts, err := svc.Alerts(ctx, "p1")
	require.NoError(t, err)
	require.Empty(t, alerts, "125 of 300 supplied is within tolerance")

	// Total out 365 > 300 * 1.2.
	_, err = svc.Append(ctx, entry("p1", "m1", "Cement", MovementOut, "240"))
	require.NoError(t, err)
	alerts, err = svc.Alerts(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, AlertUsageExceedsSupply, alerts[0].Reason)
}

func TestAppendDefaultsRefKind(t *testing.T) {
	repo := &memoryLedgerRepo{}
	svc := NewService(repo, nil, nil, 0)

	created, err := svc.Append(context.Background(), entry("p1", "m1", "Cement", MovementIn, "5"))
	require.NoError(t, err)
	require.Equal(t, RefNone, created.RefKind)
	require.False(t, created.CreatedAt.IsZero())
}
