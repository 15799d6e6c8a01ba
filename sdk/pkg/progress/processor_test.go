package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChenBigdata421/jxt-progress/sdk/pkg/tenant/tenanttest"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestProcessor_FirstUpdateLeavesTimespent(t *testing.T) {
	db, _ := tenanttest.NewTenant(t)
	tenanttest.SeedProgress(t, db, "42", "m1", 10, 120)

	res, err := NewProcessor().Apply(context.Background(), db, "42", Event{
		ModuleID: "m1", Timestamp: t0, CurrentProgress: 35.5,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.False(t, res.TimeAccounted)

	current, spent := tenanttest.Progress(t, db, "42", "m1")
	assert.Equal(t, 35.5, current)
	assert.Equal(t, 120.0, spent)
}

func TestProcessor_SecondUpdateAddsDelta(t *testing.T) {
	db, _ := tenanttest.NewTenant(t)
	tenanttest.SeedProgress(t, db, "42", "m1", 0, 100)
	p := NewProcessor()

	last := t0
	res, err := p.Apply(context.Background(), db, "42", Event{
		ModuleID: "m1", Timestamp: t0.Add(12500 * time.Millisecond), CurrentProgress: 50,
	}, &last)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, res.TimeAccounted)
	assert.Equal(t, 12.5, res.DeltaSeconds)

	current, spent := tenanttest.Progress(t, db, "42", "m1")
	assert.Equal(t, 50.0, current)
	assert.InDelta(t, 112.5, spent, 1e-9)
}

func TestProcessor_SkipsWithoutProgressRow(t *testing.T) {
	db, _ := tenanttest.NewTenant(t)
	tenanttest.SeedModule(t, db, "m1")
	tenanttest.SeedProgress(t, db, "7", "m2", 5, 5)
	p := NewProcessor()
	last := t0

	tests := []struct {
		name   string
		user   string
		module string
	}{
		{name: "module without user row", user: "42", module: "m1"},
		{name: "unknown module", user: "42", module: "missing"},
		{name: "other user's module", user: "42", module: "m2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Apply(context.Background(), db, tt.user, Event{
				ModuleID: tt.module, Timestamp: t0.Add(time.Minute), CurrentProgress: 99,
			}, &last)
			require.NoError(t, err)
			assert.Equal(t, OutcomeSkipped, res.Outcome)
		})
	}

	current, spent := tenanttest.Progress(t, db, "7", "m2")
	assert.Equal(t, 5.0, current)
	assert.Equal(t, 5.0, spent)

	var rows int64
	require.NoError(t, db.Model(&ModuleProgress{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows, "no row is ever inserted")
}

func TestProcessor_NegativeDelta(t *testing.T) {
	db, _ := tenanttest.NewTenant(t)
	tenanttest.SeedProgress(t, db, "42", "m1", 0, 100)
	tenanttest.SeedProgress(t, db, "43", "m1", 0, 100)
	last := t0

	res, err := NewProcessor().Apply(context.Background(), db, "42", Event{
		ModuleID: "m1", Timestamp: t0.Add(-4 * time.Second), CurrentProgress: 1,
	}, &last)
	require.NoError(t, err)
	assert.Equal(t, -4.0, res.DeltaSeconds)
	_, spent := tenanttest.Progress(t, db, "42", "m1")
	assert.Equal(t, 96.0, spent, "applied uncorrected by default")

	res, err = NewProcessor(WithClampNegativeDelta(true)).Apply(context.Background(), db, "43", Event{
		ModuleID: "m1", Timestamp: t0.Add(-4 * time.Second), CurrentProgress: 1,
	}, &last)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.DeltaSeconds)
	_, spent = tenanttest.Progress(t, db, "43", "m1")
	assert.Equal(t, 100.0, spent)
}

func TestProcessor_DatabaseError(t *testing.T) {
	db, _ := tenanttest.NewTenant(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = NewProcessor().Apply(context.Background(), db, "42", Event{ModuleID: "m1", Timestamp: t0}, nil)
	assert.Error(t, err)
}

func TestDeltaSeconds(t *testing.T) {
	assert.Equal(t, 1.5, DeltaSeconds(t0, t0.Add(1500*time.Millisecond)))
	assert.Equal(t, 0.0, DeltaSeconds(t0, t0.Add(999*time.Microsecond)), "millisecond precision")
	assert.Equal(t, -2.0, DeltaSeconds(t0, t0.Add(-2*time.Second)))
}
