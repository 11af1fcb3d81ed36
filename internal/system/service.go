package system

import "context"

// Service is one unit of the engine's lifecycle: the manager starts services
// in registration order and stops them in reverse. Start must return once the
// service is running; long-running work belongs in goroutines it owns.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NoopService gives a purely synchronous component a named slot in the
// lifecycle without any background work.
type NoopService struct {
	ServiceName string
}

func (s NoopService) Name() string                { return s.ServiceName }
func (s NoopService) Start(context.Context) error { return nil }
func (s NoopService) Stop(context.Context) error  { return nil }
