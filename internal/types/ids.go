package types

import (
	"time"

	"github.com/google/uuid"
)

// GuardID identifies one guarded value across logs and persisted history.
// UUIDv7 keeps history rows for successive guards clustered by creation time.
type GuardID string

// NewGuardID generates a UUIDv7 guard identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewGuardID() GuardID {
	return GuardID(uuid.Must(uuid.NewV7()).String())
}

// ParseGuardID validates and converts a string to GuardID.
func ParseGuardID(s string) (GuardID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return GuardID(s), nil
}

// GuardIDTime extracts the creation time embedded in a UUIDv7 guard ID.
// Returns zero time for invalid IDs; caller should check IsZero().
func GuardIDTime(id GuardID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
