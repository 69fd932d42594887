package domain

// LinkingMetrics is the admin-facing snapshot of the linking workflow's
// aggregate counters.
type LinkingMetrics struct {
	SessionsStarted   int64   `json:"sessions_started"`
	SessionsCompleted int64   `json:"sessions_completed"`
	UnitsLinked       int64   `json:"units_linked"`
	UnitsFailed       int64   `json:"units_failed"`
	LinkSuccessRate   float64 `json:"link_success_rate"`
	CompletionRate    float64 `json:"completion_rate"`
}
