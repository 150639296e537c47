// internal/server/room/scheduler.go
package room

import "time"

// Timer est un appel différé annulable
type Timer interface {
	Stop() bool
}

// Scheduler planifie les appels différés des salles
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler s'appuie sur time.AfterFunc
type RealScheduler struct{}

// AfterFunc planifie f après d
func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
