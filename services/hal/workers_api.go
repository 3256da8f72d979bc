// services/hal/workers_api.go
package hal

import "context"

// BusWorker is the narrow contract the service relies on.
type BusWorker interface {
	Submit(job) bool
	Start(ctx context.Context)
}

// NewBusWorker adapts the concrete constructor to the interface.
func NewBusWorker(cfg WorkerConfig, sink chan<- Result) BusWorker {
	return newBusWorker(cfg, sink)
}
