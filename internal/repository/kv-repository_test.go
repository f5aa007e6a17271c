package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/SundayYogurt/clearance_service/internal/domain"
	"github.com/SundayYogurt/clearance_service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVStudentRepository_UpsertTwiceKeepsOneRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewKVStudentProfileRepository(testutil.NewMemoryKV())

	first := domain.NewStudentProfile("", "Ada Obi", "Ada@Example.com", "080", time.Now())
	require.NoError(t, repo.Upsert(ctx, &first))
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "ada@example.com", first.Email)

	second := domain.NewStudentProfile("", "Ada Obi", "ada@example.com", "080", time.Now())
	second.NokName = "Kin"
	require.NoError(t, repo.Upsert(ctx, &second))

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, "Kin", all[0].NokName)
	assert.Equal(t, first.ID, second.ID, "caller sees the stored record")
}

func TestKVStudentRepository_PaidIsMonotonic(t *testing.T) {
	ctx := context.Background()
	repo := NewKVStudentProfileRepository(testutil.NewMemoryKV())

	p := domain.NewStudentProfile("", "Ada Obi", "ada@example.com", "080", time.Now())
	p.MarkPaid("77", time.Now())
	require.NoError(t, repo.Upsert(ctx, &p))

	stale := domain.NewStudentProfile("", "Ada Obi", "ada@example.com", "080", time.Now())
	require.NoError(t, repo.Upsert(ctx, &stale))

	got, err := repo.FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, "77", got.PaymentReference)
}

func TestKVStudentRepository_NotFoundAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewKVStudentProfileRepository(testutil.NewMemoryKV())

	_, err := repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)

	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		p := domain.NewStudentProfile("", "X Y", email, "080", time.Now())
		require.NoError(t, repo.Upsert(ctx, &p))
	}
	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a@x.com", all[0].Email)
	assert.Equal(t, "c@x.com", all[2].Email)

	byID, err := repo.FindByID(ctx, all[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", byID.Email)
}

func TestKVStudentRepository_ConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	repo := NewKVStudentProfileRepository(testutil.NewMemoryKV())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := domain.NewStudentProfile("", "Ada Obi", "ada@example.com", "080", time.Now())
			assert.NoError(t, repo.Upsert(ctx, &p))
		}()
	}
	wg.Wait()

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestKVSettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewKVSettingsRepository(testutil.NewMemoryKV())

	_, err := repo.Get(ctx)
	assert.ErrorIs(t, err, domain.ErrSettingsNotInitialized)

	defaults := domain.SystemSettings{SessionYear: "2025/2026", ClearanceFee: 99000, Currency: "NGN", PaymentsEnabled: true}
	s, err := repo.EnsureInitialized(ctx, defaults)
	require.NoError(t, err)
	assert.Equal(t, int64(99000), s.ClearanceFee)

	s.ClearanceFee = 120000
	require.NoError(t, repo.Save(ctx, s))

	// a second initialization does not overwrite saved values
	again, err := repo.EnsureInitialized(ctx, defaults)
	require.NoError(t, err)
	assert.Equal(t, int64(120000), again.ClearanceFee)

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(domain.SettingsID), got.ID)
}

func TestKVAuditRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewKVAuditRepository(testutil.NewMemoryKV())

	for _, action := range []string{domain.AuditPaymentConfirmed, domain.AuditSubmitted} {
		require.NoError(t, repo.Record(ctx, &domain.AuditLog{Actor: "a@x.com", Action: action, Entity: "student_profile"}))
	}
	logs, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.AuditSubmitted, logs[0].Action)
	assert.Equal(t, uint(2), logs[0].ID)
}
