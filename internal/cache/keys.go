package cache

import "fmt"

const (
	requestKeyPattern = "request:%d"
	userKeyPattern    = "user:%d"
)

// RequestKey is the cache key of a request snapshot.
func RequestKey(requestID uint) string {
	return fmt.Sprintf(requestKeyPattern, requestID)
}

// UserKey is the cache key of a user profile.
func UserKey(userID uint) string {
	return fmt.Sprintf(userKeyPattern, userID)
}
