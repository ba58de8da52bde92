package triggers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"church-automation/internal/common/errors"
	"church-automation/internal/common/logging"
	"church-automation/internal/hours"
	"church-automation/internal/models"
	"church-automation/internal/testutil"
)

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func TestMemberServiceRecord(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	store := testutil.NewMockStorage()
	processor := &recordingProcessor{}
	svc := NewMemberService(store, processor, hours.FixedClock{Instant: now}, logging.NewDefaultLogger())

	member, err := svc.Record(context.Background(), models.Member{
		ChurchID: "church-1",
		Name:     "Ana Torres",
		Email:    "ana@example.com",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, member.ID)
	assert.True(t, member.IsActive)
	assert.Equal(t, now, member.JoinedAt)

	stored, err := store.ListMembers(context.Background(), "church-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	events := processor.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.TriggerMemberJoined, events[0].Type)
	assert.Equal(t, member.ID, events[0].EntityID)
	assert.Equal(t, "Ana Torres", events[0].Payload["name"])
	assert.Equal(t, "ana@example.com", events[0].Payload["email"])
}

func TestMemberServiceRecordValidation(t *testing.T) {
	store := testutil.NewMockStorage()
	processor := &recordingProcessor{}
	svc := NewMemberService(store, processor, nil, logging.NewDefaultLogger())

	_, err := svc.Record(context.Background(), models.Member{Name: "Ana"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

	_, err = svc.Record(context.Background(), models.Member{ChurchID: "church-1", Name: "  "})
	require.Error(t, err)
	assert.Empty(t, processor.Events())
}

func TestMemberDatesSource_Emit(t *testing.T) {
	// Sweep day is March 10th.
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	store := testutil.NewMockStorage()
	ctx := context.Background()

	birthdayToday := &models.Member{
		ID: "m-1", ChurchID: "church-1", Name: "Pedro Gomez",
		Email:     "pedro@example.com",
		BirthDate: datePtr(1990, time.March, 10),
		IsActive:  true,
	}
	birthdayOtherDay := &models.Member{
		ID: "m-2", ChurchID: "church-1", Name: "Lucia Ruiz",
		BirthDate: datePtr(1985, time.July, 2),
		IsActive:  true,
	}
	anniversaryToday := &models.Member{
		ID: "m-3", ChurchID: "church-2", Name: "Diego Silva",
		AnniversaryDate: datePtr(2016, time.March, 10),
		IsActive:        true,
	}
	inactive := &models.Member{
		ID: "m-4", ChurchID: "church-1", Name: "Gone Away",
		BirthDate: datePtr(1990, time.March, 10),
		IsActive:  false,
	}
	for _, m := range []*models.Member{birthdayToday, birthdayOtherDay, anniversaryToday, inactive} {
		require.NoError(t, store.CreateMember(ctx, m))
	}

	processor := &recordingProcessor{}
	source := NewMemberDatesSource(store, processor, hours.FixedClock{Instant: now}, logging.NewDefaultLogger())
	assert.Equal(t, "member_dates", source.Name())

	require.NoError(t, source.Emit(ctx))

	events := processor.Events()
	require.Len(t, events, 2)

	assert.Equal(t, models.TriggerBirthday, events[0].Type)
	assert.Equal(t, "church-1", events[0].ChurchID)
	assert.Equal(t, "m-1", events[0].EntityID)
	assert.Equal(t, "Pedro Gomez", events[0].Payload["name"])
	assert.Equal(t, "pedro@example.com", events[0].Payload["email"])
	assert.Equal(t, "1990-03-10", events[0].Payload["birth_date"])

	assert.Equal(t, models.TriggerAnniversary, events[1].Type)
	assert.Equal(t, "church-2", events[1].ChurchID)
	assert.Equal(t, "m-3", events[1].EntityID)
	assert.Equal(t, "wedding", events[1].Payload["kind"])
	assert.Equal(t, 10, events[1].Payload["years"])
}

func TestMemberDatesSource_EmitNothingDue(t *testing.T) {
	now := time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)
	store := testutil.NewMockStorage()
	require.NoError(t, store.CreateMember(context.Background(), &models.Member{
		ID: "m-1", ChurchID: "church-1", Name: "Pedro Gomez",
		BirthDate: datePtr(1990, time.March, 10),
		IsActive:  true,
	}))

	processor := &recordingProcessor{}
	source := NewMemberDatesSource(store, processor, hours.FixedClock{Instant: now}, logging.NewDefaultLogger())

	require.NoError(t, source.Emit(context.Background()))
	assert.Empty(t, processor.Events())
}

func TestMemberDatesSource_EmitPropagatesStoreFailure(t *testing.T) {
	store := testutil.NewMockStorage()
	store.ErrorOnMethod["ListMembersWithBirthday"] = assert.AnError

	processor := &recordingProcessor{}
	source := NewMemberDatesSource(store, processor, nil, logging.NewDefaultLogger())

	require.Error(t, source.Emit(context.Background()))
	assert.Empty(t, processor.Events())
}
