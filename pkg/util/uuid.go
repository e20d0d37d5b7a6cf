package util

import "github.com/google/uuid"

// NewV4 returns a random (v4) UUID string, used for collections-manifest
// log-correlation handles (§6(f), SPEC_FULL supplemented feature
// "Collections manifest UUID formatting"). The HELLO client identity does
// not use it.
func NewV4() string {
	return uuid.New().String()
}

// ParseUUID round-trips a UUID string back into its 16 raw bytes,
// exercising the uuid_from_string(uuid_to_string(u)) == u property (§8).
func ParseUUID(s string) ([16]byte, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, err
	}
	return u, nil
}
