package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// TelemetryKey returns the hash key accumulating a learner's telemetry for one assessment
func (r *CacheKeyStruct) TelemetryKey(assessmentID, userID string) string {
	return fmt.Sprintf("user:%s:assessment:%s:telemetry", userID, assessmentID)
}

// UserStatsKey returns the cache key for a learner's computed progress stats
func (r *CacheKeyStruct) UserStatsKey(userID string) string {
	return fmt.Sprintf("user:%s:progress_stats", userID)
}

// UserStatsGenerationKey returns the counter bumped whenever a learner's stats go stale
func (r *CacheKeyStruct) UserStatsGenerationKey(userID string) string {
	return fmt.Sprintf("user:%s:progress_stats:gen", userID)
}

// ProgressLockKey returns the serialization key for one (user, playlist) document
func (r *CacheKeyStruct) ProgressLockKey(userID, playlistID string) string {
	return fmt.Sprintf("user:%s:playlist:%s", userID, playlistID)
}

var CacheKey = NewCacheKeyStruct()
