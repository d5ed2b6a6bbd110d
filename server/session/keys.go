package session

import "fmt"

// AnalyticsUserKey is the cache key for a user's aggregate summary.
func AnalyticsUserKey(userID int32) string {
	return fmt.Sprintf("analytics:user:%d", userID)
}

// AnalyticsOrgKey is the cache key for an organization's aggregate summary.
func AnalyticsOrgKey(organizationID string) string {
	return "analytics:org:" + organizationID
}
