package utils

import "github.com/google/uuid"

const canonicalIDLength = 36

// GenerateID returns a random UUID in canonical form. Offers and their
// history events are keyed by these.
func GenerateID() string {
	return uuid.New().String()
}

// IsValidID reports whether id has the canonical form GenerateID produces.
// Braced and urn:uuid: spellings are rejected so an offer has a single URL.
func IsValidID(id string) bool {
	if len(id) != canonicalIDLength {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
