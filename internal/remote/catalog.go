package remote

import (
	"fmt"

	"example.com/trainingsync/internal/domain"
)

// Category binds an activity type to the remote collection holding it.
type Category struct {
	ActivityType domain.ActivityType
	Collection   string
}

var catalog = []Category{
	{ActivityType: domain.ActivityIndoorClimb, Collection: "Indoor_Climbs"},
	{ActivityType: domain.ActivityOutdoorClimb, Collection: "Outdoor_Climbs"},
	{ActivityType: domain.ActivityFingerboarding, Collection: "Fingerboarding"},
	{ActivityType: domain.ActivityCompetition, Collection: "Competitions"},
	{ActivityType: domain.ActivityGymSession, Collection: "Gym_Sessions"},
}

// Categories returns every known category in a stable order.
func Categories() []Category {
	out := make([]Category, len(catalog))
	copy(out, catalog)
	return out
}

// CollectionFor returns the collection that stores records of activityType.
func CollectionFor(activityType domain.ActivityType) (string, error) {
	for _, category := range catalog {
		if category.ActivityType == activityType {
			return category.Collection, nil
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrUnknownActivityType, activityType)
}
