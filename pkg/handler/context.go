package handler

// DI for all handlers.

import (
	"context"
)

// Pinger is the part of the store the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

type LoadContext struct {
	Store Pinger
	Jobs  *LoadJobManager
}
