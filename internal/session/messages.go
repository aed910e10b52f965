package session

const (
	reportTitle             = "Telehealth session compliance report"
	reportSessionLabel      = "Session"
	reportPeriodLabel       = "Period"
	reportActorsLabel       = "Actors"
	reportEventCountLabel   = "Events"
	reportEmptyTimeline     = "(no audit events recorded)"
	reportUnknownPeriodText = "unknown"
)
