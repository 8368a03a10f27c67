// Package domain defines the records tracked by the sync engine and the rules that identify them.
package domain

import (
	"time"

	"github.com/go-softwarelab/common/pkg/optional"
)

// ActivityType discriminates the kind of training session a record describes.
type ActivityType string

const (
	ActivityIndoorClimb    ActivityType = "indoor_climb"
	ActivityOutdoorClimb   ActivityType = "outdoor_climb"
	ActivityFingerboarding ActivityType = "fingerboarding"
	ActivityCompetition    ActivityType = "competition"
	ActivityGymSession     ActivityType = "gym_session"
)

var activityTypes = []ActivityType{
	ActivityIndoorClimb,
	ActivityOutdoorClimb,
	ActivityFingerboarding,
	ActivityCompetition,
	ActivityGymSession,
}

// ActivityTypes returns the closed set of known activity types in catalog order.
func ActivityTypes() []ActivityType {
	out := make([]ActivityType, len(activityTypes))
	copy(out, activityTypes)
	return out
}

// Valid reports whether t is one of the known activity types.
func (t ActivityType) Valid() bool {
	for _, known := range activityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// SyncStatus represents how a local record relates to its remote copy.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusError   SyncStatus = "error"
)

// Record is one logged training session as known to this device.
type Record struct {
	ID           string
	ActivityType ActivityType
	Date         string
	Time         optional.Value[string]
	CreatedAt    time.Time
	UpdatedAt    time.Time
	SyncStatus   SyncStatus
	SyncedAt     optional.Value[time.Time]
	Fields       Fields
}

// NeedsSync reports whether the record has local state the remote store has not confirmed.
func (r Record) NeedsSync() bool {
	return r.SyncStatus == SyncStatusPending || r.SyncStatus == SyncStatusError
}

// Clone returns a copy that shares no mutable state with r.
func (r Record) Clone() Record {
	r.Fields = r.Fields.Clone()
	return r
}
