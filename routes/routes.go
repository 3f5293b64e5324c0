package routes

import "shepsigrad-server/services"

// Wiring shared by the handlers. Configure is called once from main with
// the services built over the live storage; tests construct their own.
var (
	engine   *services.LifecycleEngine
	payments *services.PaymentOrchestrator
	fanout   *services.Fanout
	hub      *services.Hub
)

func Configure(e *services.LifecycleEngine, p *services.PaymentOrchestrator, f *services.Fanout, h *services.Hub) {
	engine = e
	payments = p
	fanout = f
	hub = h
}
