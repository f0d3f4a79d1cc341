package queue

import "fmt"

// StreamName returns the Redis stream name carrying keyword collection
// submissions for a given tenant/project scope.
func StreamName(scope string) string {
	return fmt.Sprintf("keywordintel-stream:%s", scope)
}
