package domain

// SameSession reports whether a and b describe the same real-world session.
// Every check is an exact match and a missing value never matches, so the
// predicate errs towards keeping two records rather than merging distinct ones.
func SameSession(a, b Record) bool {
	if a.ActivityType != b.ActivityType || a.Date == "" || a.Date != b.Date {
		return false
	}

	switch a.ActivityType {
	case ActivityIndoorClimb:
		return sameString(a, b, "location") && sameString(a, b, "climbingType")
	case ActivityOutdoorClimb:
		return sameString(a, b, "area") && sameString(a, b, "crag")
	case ActivityCompetition:
		return sameString(a, b, "venue") && sameString(a, b, "type")
	case ActivityFingerboarding:
		return sameString(a, b, "location")
	case ActivityGymSession:
		return sameString(a, b, "name") && sameLength(a, b, "exercises")
	default:
		return false
	}
}

func sameString(a, b Record, key string) bool {
	left, ok := a.Fields.String(key)
	if !ok {
		return false
	}
	right, ok := b.Fields.String(key)
	return ok && left == right
}

func sameLength(a, b Record, key string) bool {
	left, ok := a.Fields.Len(key)
	if !ok {
		return false
	}
	right, ok := b.Fields.Len(key)
	return ok && left == right
}
