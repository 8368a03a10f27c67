package domain

import (
	"fmt"
	"strings"
)

// DefaultTime is used for key derivation when a record carries no clock time.
const DefaultTime = "12:00"

// DeriveID builds the human-readable key used when a record is first created remotely.
// The result is deterministic so it doubles as an idempotency key for the remote upsert.
func DeriveID(date, clock, discriminator string) string {
	var b strings.Builder
	b.Grow(len(date) + len(clock) + len(discriminator) + 2)
	b.WriteString(date)
	b.WriteByte('_')
	b.WriteString(strings.Replace(clock, ":", "-", 1))
	b.WriteByte('_')
	for _, r := range discriminator {
		if isASCIIAlnum(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Discriminator returns the field that distinguishes same-day sessions of the record's type.
func Discriminator(r Record) (string, error) {
	switch r.ActivityType {
	case ActivityIndoorClimb:
		if custom, ok := r.Fields.String("customLocation"); ok {
			return custom, nil
		}
		location, _ := r.Fields.String("location")
		return location, nil
	case ActivityOutdoorClimb:
		area, _ := r.Fields.String("area")
		crag, _ := r.Fields.String("crag")
		return area + "_" + crag, nil
	case ActivityFingerboarding:
		return "Fingerboarding", nil
	case ActivityCompetition:
		if custom, ok := r.Fields.String("customVenue"); ok {
			return custom, nil
		}
		venue, _ := r.Fields.String("venue")
		return venue, nil
	case ActivityGymSession:
		name, _ := r.Fields.String("name")
		return name, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownActivityType, r.ActivityType)
	}
}

// RecordKey derives the creation key for r, falling back to DefaultTime when no time is set.
func RecordKey(r Record) (string, error) {
	discriminator, err := Discriminator(r)
	if err != nil {
		return "", err
	}
	return DeriveID(r.Date, r.Time.OrElse(DefaultTime), discriminator), nil
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
