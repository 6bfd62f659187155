package schema

import "fmt"

// AttemptStorageKey is the key of one submission attempt of a bundle. Attempt ids are
// ulids, so a prefix scan returns attempts in the order they were made.
func AttemptStorageKey(bundleHash, id string) []byte {
	return []byte(fmt.Sprintf("a:%s:%s", bundleHash, id))
}

// AttemptStoragePrefix returns the prefix of every attempt of a bundle
func AttemptStoragePrefix(bundleHash string) []byte {
	return []byte(fmt.Sprintf("a:%s:", bundleHash))
}
