package models

// SecurityStats exposes current store sizes for operational dashboards
type SecurityStats struct {
	RateWindows        int `json:"rateWindows"`
	Penalties          int `json:"penalties"`
	LockoutRecords     int `json:"lockoutRecords"`
	ActiveLockouts     int `json:"activeLockouts"`
	BlacklistedTokens  int `json:"blacklistedTokens"`
	Sessions           int `json:"sessions"`
	ActiveSessions     int `json:"activeSessions"`
	MonitoredEndpoints int `json:"monitoredEndpoints"`
	ActivitySamples    int `json:"activitySamples"`
}
