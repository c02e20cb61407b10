package contracts

import "github.com/julienschmidt/httprouter"

// Handler mounts a group of routes on a router.
type Handler interface {
	RegisterRoutes(*httprouter.Router)
}

// Group mounts its handlers in order. Route conflicts panic at startup, as
// httprouter does for a single handler.
type Group []Handler

func (g Group) RegisterRoutes(r *httprouter.Router) {
	for _, h := range g {
		h.RegisterRoutes(r)
	}
}
