package models

// Suspicion reasons reported by the activity detector
const (
	SuspicionRapidRequests     = "rapid_requests"
	SuspicionDistributedAttack = "distributed_attack"
	SuspicionAutomatedTraffic  = "automated_traffic"
)

// SuspicionReport is the outcome of observing a request
type SuspicionReport struct {
	Suspicious bool
	Reasons    []string
}
