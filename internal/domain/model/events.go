package model

import "time"

// Bus topics the engine coordinates on.
const (
	TopicResourceVisible = "resourceVisible"
	TopicResourceLoaded  = "resourceLoaded"
	TopicResourceError   = "resourceError"
	TopicNetworkChanged  = "networkChanged"
	TopicPause           = "pause"
	TopicResume          = "resume"
)

// VisibilityChange announces that a watched resource entered the viewport.
type VisibilityChange struct {
	ID string
}

// LoadResult announces a successful load.
type LoadResult struct {
	ID      string
	Elapsed time.Duration
}

// LoadFailure announces retry exhaustion for a resource.
type LoadFailure struct {
	ID         string
	RetryCount int
}

// NetworkChange announces that the profiler reclassified the connection.
type NetworkChange struct {
	Class NetworkClass
}
