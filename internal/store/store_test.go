package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-softwarelab/common/pkg/optional"
	"github.com/go-softwarelab/common/pkg/slogx"
	"github.com/stretchr/testify/require"

	"example.com/trainingsync/internal/domain"
)

var testNow = time.Date(2024, 3, 20, 15, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *MemoryMedium) {
	t.Helper()
	medium := NewMemoryMedium()
	seq := 0
	st := New(medium,
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("tmp-%d", seq)
		}),
		WithLogger(slogx.SilentLogger()),
	)
	return st, medium
}

func gymSession(name string) NewRecord {
	return NewRecord{
		ActivityType: domain.ActivityGymSession,
		Date:         "2024-02-14",
		Time:         optional.Some("20:00"),
		Fields:       domain.Fields{"name": json.RawMessage(fmt.Sprintf("%q", name))},
	}
}

func TestAddAssignsPendingRecord(t *testing.T) {
	ctx := context.Background()
	st, medium := newTestStore(t)

	r, err := st.Add(ctx, gymSession("Leg Day"))
	require.NoError(t, err)
	require.Equal(t, "tmp-1", r.ID)
	require.Equal(t, domain.SyncStatusPending, r.SyncStatus)
	require.Equal(t, testNow, r.CreatedAt)
	require.Equal(t, testNow, r.UpdatedAt)
	require.True(t, r.SyncedAt.IsEmpty())
	require.Equal(t, 1, medium.Writes())

	all, err := st.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, r.ID, all[0].ID)
}

func TestAddRejectsUnknownActivityType(t *testing.T) {
	st, medium := newTestStore(t)

	_, err := st.Add(context.Background(), NewRecord{ActivityType: "yoga", Date: "2024-02-14"})
	require.ErrorIs(t, err, domain.ErrUnknownActivityType)
	require.Zero(t, medium.Writes())
}

func TestUpdateForcesPending(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	r, err := st.Add(ctx, gymSession("Leg Day"))
	require.NoError(t, err)
	_, err = st.MarkSynced(ctx, r.ID)
	require.NoError(t, err)

	updated, found, err := st.Update(ctx, r.ID, Patch{
		Fields: domain.Fields{"bodyweight": json.RawMessage(`72.5`)},
	})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, domain.SyncStatusPending, updated.SyncStatus)
	require.True(t, updated.SyncedAt.IsPresent(), "synced-at survives edits so the next sync is an update")
	name, _ := updated.Fields.String("name")
	require.Equal(t, "Leg Day", name)
	require.Equal(t, json.RawMessage(`72.5`), updated.Fields["bodyweight"])
}

func TestUpdateUnknownIDReportsFalse(t *testing.T) {
	st, medium := newTestStore(t)

	_, found, err := st.Update(context.Background(), "missing", Patch{})
	require.NoError(t, err)
	require.False(t, found)
	require.Zero(t, medium.Writes())
}

func TestRemoveQueuesDeleteOnlyWhenRemoteCopyMayExist(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	pending, err := st.Add(ctx, gymSession("Pending"))
	require.NoError(t, err)
	synced, err := st.Add(ctx, gymSession("Synced"))
	require.NoError(t, err)
	failed, err := st.Add(ctx, gymSession("Failed"))
	require.NoError(t, err)

	_, err = st.MarkSynced(ctx, synced.ID)
	require.NoError(t, err)
	_, err = st.MarkError(ctx, failed.ID)
	require.NoError(t, err)

	for _, id := range []string{pending.ID, synced.ID, failed.ID} {
		removed, err := st.Remove(ctx, id)
		require.NoError(t, err)
		require.True(t, removed)
	}

	removed, err := st.Remove(ctx, "missing")
	require.NoError(t, err)
	require.False(t, removed)

	deletes, err := st.PendingDeletes(ctx)
	require.NoError(t, err)
	require.Len(t, deletes, 2)
	require.Equal(t, synced.ID, deletes[0].ID)
	require.Equal(t, domain.ActivityGymSession, deletes[0].ActivityType.MustGet())
	require.Equal(t, failed.ID, deletes[1].ID)

	all, err := st.All(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestRemoveEditedSyncedRecordStillQueuesDelete(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	r, err := st.Add(ctx, gymSession("Leg Day"))
	require.NoError(t, err)
	_, err = st.MarkSynced(ctx, r.ID)
	require.NoError(t, err)
	_, _, err = st.Update(ctx, r.ID, Patch{Fields: domain.Fields{"notes": json.RawMessage(`"heavy"`)}})
	require.NoError(t, err)

	_, err = st.Remove(ctx, r.ID)
	require.NoError(t, err)

	deletes, err := st.PendingDeletes(ctx)
	require.NoError(t, err)
	require.Len(t, deletes, 1)
}

func TestListPendingAndByType(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	a, err := st.Add(ctx, gymSession("A"))
	require.NoError(t, err)
	b, err := st.Add(ctx, gymSession("B"))
	require.NoError(t, err)
	c, err := st.Add(ctx, NewRecord{ActivityType: domain.ActivityFingerboarding, Date: "2024-01-01"})
	require.NoError(t, err)

	_, err = st.MarkSynced(ctx, a.ID)
	require.NoError(t, err)
	_, err = st.MarkError(ctx, b.ID)
	require.NoError(t, err)

	pending, err := st.ListPending(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{b.ID, c.ID}, ids(pending))

	count, err := st.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	gym, err := st.ListByType(ctx, domain.ActivityGymSession)
	require.NoError(t, err)
	require.Equal(t, []string{a.ID, b.ID}, ids(gym))
}

func TestRewriteIDKeepsEveryOtherField(t *testing.T) {
	ctx := context.Background()
	st, medium := newTestStore(t)

	r, err := st.Add(ctx, gymSession("Leg Day"))
	require.NoError(t, err)
	before, err := json.Marshal(withID(r, ""))
	require.NoError(t, err)
	writes := medium.Writes()

	require.NoError(t, st.RewriteID(ctx, r.ID, "2024-02-14_20-00_Leg_Day"))
	require.Equal(t, writes+1, medium.Writes())

	_, found, err := st.Get(ctx, r.ID)
	require.NoError(t, err)
	require.False(t, found)

	rewritten, found, err := st.Get(ctx, "2024-02-14_20-00_Leg_Day")
	require.NoError(t, err)
	require.True(t, found)
	after, err := json.Marshal(withID(rewritten, ""))
	require.NoError(t, err)
	require.JSONEq(t, string(before), string(after))
}

func TestRewriteIDRefusesConflicts(t *testing.T) {
	ctx := context.Background()
	st, medium := newTestStore(t)

	a, err := st.Add(ctx, gymSession("A"))
	require.NoError(t, err)
	b, err := st.Add(ctx, gymSession("B"))
	require.NoError(t, err)
	writes := medium.Writes()

	err = st.RewriteID(ctx, a.ID, b.ID)
	require.ErrorIs(t, err, domain.ErrIDConflict)
	err = st.RewriteID(ctx, "missing", "anything")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Equal(t, writes, medium.Writes())

	all, err := st.All(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{a.ID, b.ID}, ids(all))
}

func TestConfirmRewritesAndMarksSynced(t *testing.T) {
	ctx := context.Background()
	st, medium := newTestStore(t)

	r, err := st.Add(ctx, gymSession("Leg Day"))
	require.NoError(t, err)
	writes := medium.Writes()

	require.NoError(t, st.Confirm(ctx, r.ID, "remote-1"))
	require.Equal(t, writes+1, medium.Writes(), "rewrite and mark happen in one write")

	confirmed, found, err := st.Get(ctx, "remote-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, domain.SyncStatusSynced, confirmed.SyncStatus)
	require.Equal(t, testNow, confirmed.SyncedAt.MustGet())
}

func TestBatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	st, medium := newTestStore(t)

	boom := errors.New("boom")
	err := st.Batch(ctx, func(tx *Tx) error {
		if _, err := tx.Add(gymSession("A")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Zero(t, medium.Writes())

	all, err := st.All(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestMediumFailuresPropagate(t *testing.T) {
	ctx := context.Background()
	st, medium := newTestStore(t)

	medium.FailWrites(errors.New("quota exceeded"))
	_, err := st.Add(ctx, gymSession("A"))
	require.ErrorIs(t, err, domain.ErrLocalStorage)
	require.ErrorContains(t, err, "quota exceeded")

	medium.FailWrites(nil)
	medium.FailReads(errors.New("disk gone"))
	_, err = st.All(ctx)
	require.ErrorIs(t, err, domain.ErrLocalStorage)
}

func TestCorruptBlobIsNotSilentlyDropped(t *testing.T) {
	st, medium := newTestStore(t)
	medium.Seed(RecordsKey, []byte(`{not json`))

	_, err := st.All(context.Background())
	require.ErrorIs(t, err, domain.ErrLocalStorage)
}

func TestReadsLegacyUnversionedBlobs(t *testing.T) {
	ctx := context.Background()
	st, medium := newTestStore(t)

	medium.Seed(RecordsKey, []byte(`[
		{"id":"abc","activityType":"indoor_climb","date":"2024-03-20","location":"Gym A",
		 "createdAt":"2024-03-20T14:30:00Z","updatedAt":"2024-03-20T14:30:00Z",
		 "syncStatus":"synced","syncedAt":"2024-03-20T14:31:00Z"}
	]`))
	medium.Seed(PendingDeletesKey, []byte(`["old-1","old-2"]`))

	all, err := st.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	location, _ := all[0].Fields.String("location")
	require.Equal(t, "Gym A", location)

	deletes, err := st.PendingDeletes(ctx)
	require.NoError(t, err)
	require.Len(t, deletes, 2)
	require.True(t, deletes[0].ActivityType.IsEmpty())

	_, err = st.Remove(ctx, "abc")
	require.NoError(t, err)

	var env struct {
		Version int               `json:"version"`
		Deletes []json.RawMessage `json:"deletes"`
	}
	require.NoError(t, json.Unmarshal(medium.Raw(PendingDeletesKey), &env))
	require.Equal(t, SchemaVersion, env.Version)
	require.Len(t, env.Deletes, 3)
	require.JSONEq(t, `{"id":"old-1"}`, string(env.Deletes[0]))
	require.JSONEq(t, `{"id":"abc","activityType":"indoor_climb"}`, string(env.Deletes[2]))
}

func TestRejectsNewerSchemaVersion(t *testing.T) {
	st, medium := newTestStore(t)
	medium.Seed(RecordsKey, []byte(`{"version":99,"records":[]}`))

	_, err := st.All(context.Background())
	require.ErrorIs(t, err, domain.ErrLocalStorage)
	require.ErrorContains(t, err, "newer than supported")
}

func TestLastPullCursor(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t)

	cursor, err := st.LastPull(ctx)
	require.NoError(t, err)
	require.True(t, cursor.IsEmpty())

	mark := time.Date(2024, 3, 21, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.Batch(ctx, func(tx *Tx) error {
		tx.SetLastPull(mark)
		return nil
	}))

	cursor, err = st.LastPull(ctx)
	require.NoError(t, err)
	require.True(t, mark.Equal(cursor.MustGet()))
}

func ids(records []domain.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func withID(r domain.Record, id string) domain.Record {
	r.ID = id
	return r
}

func TestDeviceIDIsGeneratedOnce(t *testing.T) {
	ctx := context.Background()
	st, medium := newTestStore(t)

	id, err := st.DeviceID(ctx)
	require.NoError(t, err)
	require.Equal(t, "tmp-1", id)
	require.JSONEq(t, `{"version":1,"deviceId":"tmp-1"}`, string(medium.Raw(DeviceIDKey)))

	reopened := New(medium, WithIDGenerator(func() string { return "other" }), WithLogger(slogx.SilentLogger()))
	again, err := reopened.DeviceID(ctx)
	require.NoError(t, err)
	require.Equal(t, id, again, "id survives a restart")
}

func TestDeviceIDStorageFailure(t *testing.T) {
	ctx := context.Background()
	st, medium := newTestStore(t)
	medium.FailWrites(errors.New("quota exceeded"))

	_, err := st.DeviceID(ctx)
	require.ErrorIs(t, err, domain.ErrLocalStorage)
}
