package domain

import (
	"encoding/json"
	"testing"

	"github.com/go-softwarelab/common/pkg/optional"
	"github.com/stretchr/testify/require"
)

func TestDeriveID(t *testing.T) {
	cases := []struct {
		name          string
		date          string
		clock         string
		discriminator string
		want          string
	}{
		{"spaces", "2024-03-20", "14:30", "Secret Gym", "2024-03-20_14-30_Secret_Gym"},
		{"area and crag", "2024-05-15", "09:00", "Peak District_Stanage Edge", "2024-05-15_09-00_Peak_District_Stanage_Edge"},
		{"punctuation", "2024-06-01", "10:00", "O'Brien's Wall (B)", "2024-06-01_10-00_O_Brien_s_Wall__B_"},
		{"only first colon", "2024-06-01", "10:00:30", "X", "2024-06-01_10-00:30_X"},
		{"empty discriminator", "2024-06-01", "10:00", "", "2024-06-01_10-00_"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveID(tc.date, tc.clock, tc.discriminator))
			require.Equal(t, tc.want, DeriveID(tc.date, tc.clock, tc.discriminator))
		})
	}
}

func TestRecordKeyPerActivityType(t *testing.T) {
	cases := []struct {
		name   string
		record Record
		want   string
	}{
		{
			name:   "indoor prefers custom location",
			record: record(ActivityIndoorClimb, "2024-03-20", "14:30", map[string]any{"location": "Gym A", "customLocation": "Secret Gym"}),
			want:   "2024-03-20_14-30_Secret_Gym",
		},
		{
			name:   "indoor falls back to location",
			record: record(ActivityIndoorClimb, "2024-03-20", "14:30", map[string]any{"location": "Gym B"}),
			want:   "2024-03-20_14-30_Gym_B",
		},
		{
			name:   "outdoor joins area and crag",
			record: record(ActivityOutdoorClimb, "2024-05-15", "09:00", map[string]any{"area": "Peak District", "crag": "Stanage Edge"}),
			want:   "2024-05-15_09-00_Peak_District_Stanage_Edge",
		},
		{
			name:   "fingerboarding is fixed",
			record: record(ActivityFingerboarding, "2024-01-01", "18:00", map[string]any{"location": "Home"}),
			want:   "2024-01-01_18-00_Fingerboarding",
		},
		{
			name:   "competition prefers custom venue",
			record: record(ActivityCompetition, "2024-06-01", "10:00", map[string]any{"venue": "Other", "customVenue": "Olympics"}),
			want:   "2024-06-01_10-00_Olympics",
		},
		{
			name:   "gym uses workout name",
			record: record(ActivityGymSession, "2024-02-14", "20:00", map[string]any{"name": "Leg Day"}),
			want:   "2024-02-14_20-00_Leg_Day",
		},
		{
			name:   "missing time defaults to noon",
			record: record(ActivityGymSession, "2024-02-14", "", map[string]any{"name": "Leg Day"}),
			want:   "2024-02-14_12-00_Leg_Day",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RecordKey(tc.record)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestRecordKeyRejectsUnknownType(t *testing.T) {
	_, err := RecordKey(record("yoga", "2024-02-14", "", nil))
	require.ErrorIs(t, err, ErrUnknownActivityType)
}

func record(activityType ActivityType, date, clock string, fields map[string]any) Record {
	r := Record{
		ID:           "local",
		ActivityType: activityType,
		Date:         date,
		SyncStatus:   SyncStatusPending,
		Fields:       make(Fields),
	}
	if clock != "" {
		r.Time = optional.Some(clock)
	}
	for key, value := range fields {
		raw, err := json.Marshal(value)
		if err != nil {
			panic(err)
		}
		r.Fields[key] = raw
	}
	return r
}
