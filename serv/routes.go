package serv

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	routeData   = "/api/v1/data"
	healthRoute = "/health"
)

// routesHandler is the main handler for all routes
func routesHandler(s1 *HttpService, mux chi.Router) (http.Handler, error) {
	mux.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer)
		r.Use(requestID)

		// Healthcheck API
		r.Method(http.MethodGet, healthRoute, healthCheckHandler(s1))

		// Data API
		r.Method(http.MethodPost, routeData, currentDataHandler(s1))
		r.Method(http.MethodOptions, routeData, currentDataHandler(s1))
	})

	return setServerHeader(mux), nil
}

// currentDataHandler serves each request through the chain of the current
// service so a config reload also changes CORS, compression and limits
func currentDataHandler(s1 *HttpService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := s1.load()
		if r.Method == http.MethodOptions && len(s.conf.AllowedOrigins) == 0 {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.dataChain(s1).ServeHTTP(w, r)
	})
}

// dataChain builds the data route middleware once per service
func (s *dataService) dataChain(s1 *HttpService) http.Handler {
	s.chainOnce.Do(func() {
		var h http.Handler = dataHandler(s1)
		h = rateLimiter(s1, h)
		h = compressHandler(s.conf, h)
		h = corsHandler(s.conf, h)
		for i := len(s.wrap) - 1; i >= 0; i-- {
			h = s.wrap[i](h)
		}
		s.chain = h
	})
	return s.chain
}
