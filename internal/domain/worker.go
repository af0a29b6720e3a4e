package domain

import "time"

// WorkerRegistration is published by a worker for as long as it is alive.
type WorkerRegistration struct {
	UUID         string
	Addr         string
	SolveID      string
	RegisteredAt time.Time
}
