package httpserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/http/handlers"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	Dispense *handlers.DispenseHandler
	Status   *handlers.StatusHandlers
	Notify   *handlers.NotifyHandler
	Accounts *handlers.AccountHandlers
	DeviceWS http.HandlerFunc
	Registry *prometheus.Registry
}

// NewRouter wires the HTTP routes.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/device/ws", deps.DeviceWS)

	mux.Handle("/api/v1/vendor/notify", method(http.MethodPost, deps.Notify))

	mux.Handle("/api/v1/dispense",
		method(http.MethodPost, middleware.Chain(deps.Dispense, authMiddleware)))
	mux.Handle("/api/v1/account/balance",
		method(http.MethodGet, middleware.Chain(http.HandlerFunc(deps.Accounts.Balance), authMiddleware)))
	mux.Handle("/api/v1/devices/",
		method(http.MethodGet, http.HandlerFunc(deps.Status.DeviceStatus)))
	mux.Handle("/api/v1/orders/",
		method(http.MethodGet, http.HandlerFunc(deps.Status.OrderStatus)))

	return mux
}

func method(expected string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
