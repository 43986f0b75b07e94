package sequencer

import "time"

type (
	// Alert is a diagnostic message queued on the model for whoever drives
	// the engine to display; failed sample loads and refused preprocessing
	// jobs end up here.
	Alert struct {
		Name     string
		Priority AlertPriority
		Message  string
		Duration time.Duration
	}

	AlertPriority int
)

const (
	None AlertPriority = iota
	Info
	Warning
	Error
)

const defaultAlertDuration = 3 * time.Second
