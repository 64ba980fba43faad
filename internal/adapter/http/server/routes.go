package server

import (
	"github.com/Temutjin2k/dispatch-core/internal/adapter/http/handler"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// setupRoutes wires the dispatch core's single route table: ride
// requests and driver self-service behind one mux, one auth gate.
func (a *API) setupRoutes(rideHandler *handler.Ride, driverHandler *handler.Driver) {
	health := handler.NewHealth(serviceName, a.log)
	a.mux.HandleFunc("GET /health", health.HealthCheck)
	a.mux.Handle("GET /metrics", promhttp.Handler())
	a.mux.HandleFunc("/swagger/", httpSwagger.Handler(httpSwagger.InstanceName(serviceName)))

	a.setupRideRoutes(rideHandler)
	a.setupDriverRoutes(driverHandler)
}

func (a *API) setupRideRoutes(h *handler.Ride) {
	a.mux.Handle("POST /rides", a.m.RequireRoles(h.CreateRide, types.RolePassenger))
	a.mux.Handle("GET /rides", a.m.RequireRoles(h.ListMyRides, types.RolePassenger))
	a.mux.Handle("GET /rides/{ride_id}", a.m.RequireRoles(h.GetRide, types.RolePassenger, types.RoleDriver, types.RoleAdmin))
	a.mux.Handle("POST /rides/{ride_id}/cancel", a.m.RequireRoles(h.CancelRide, types.RolePassenger))
}

func (a *API) setupDriverRoutes(h *handler.Driver) {
	a.mux.Handle("POST /drivers/{driver_id}/online", a.m.RequireRoles(h.GoOnline, types.RoleDriver))
	a.mux.Handle("POST /drivers/{driver_id}/offline", a.m.RequireRoles(h.GoOffline, types.RoleDriver))
	a.mux.Handle("POST /drivers/{driver_id}/location", a.m.RequireRoles(h.UpdateLocation, types.RoleDriver))
	a.mux.Handle("GET /drivers/{driver_id}/offers", a.m.RequireRoles(h.ListOffers, types.RoleDriver))
	a.mux.Handle("POST /drivers/{driver_id}/offers/{offer_id}/accept", a.m.RequireRoles(h.AcceptOffer, types.RoleDriver))
	a.mux.Handle("GET /drivers/{driver_id}/rides", a.m.RequireRoles(h.ListRides, types.RoleDriver))
	a.mux.Handle("POST /drivers/{driver_id}/rides/{ride_id}/advance", a.m.RequireRoles(h.AdvanceRide, types.RoleDriver))
	a.mux.Handle("POST /drivers/{driver_id}/rides/{ride_id}/cancel", a.m.RequireRoles(h.CancelRide, types.RoleDriver))
	a.mux.HandleFunc("GET /ws/drivers/{driver_id}", h.HandleWS)
}
