package web

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ShepherdCMS/shepherd-app/shepherd/api"
	"github.com/ShepherdCMS/shepherd-app/shepherd/constants"
	"github.com/ShepherdCMS/shepherd-app/shepherd/health"
	"github.com/ShepherdCMS/shepherd-app/shepherd/logging"
	"github.com/ShepherdCMS/shepherd-app/shepherd/monitoring"
	"github.com/ShepherdCMS/shepherd-app/shepherd/responseutils"
)

// NewAPIRouter serves the import endpoints under /api/v1 plus the root
// health and version endpoints.
func NewAPIRouter(h *api.Handler, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	m := monitoring.GetMonitor()
	r.Use(middleware.RequestID, logging.NewStructuredLogger(), logging.NewTransactionID, SecurityHeader, ConnectionClose)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post(m.WrapHandler("/imports", h.StartImport))
		r.Get(m.WrapHandler("/imports", h.ListJobs))
		r.Get(m.WrapHandler("/imports/template", h.Template))
		r.Get(m.WrapHandler("/imports/{jobID}", h.JobStatus))
		r.Get(m.WrapHandler("/imports/{jobID}/errors", h.JobErrors))
		r.Delete(m.WrapHandler("/imports/{jobID}", h.DeleteJob))
	})
	r.Get(m.WrapHandler("/_version", getVersion))
	r.Get(m.WrapHandler("/_health", healthCheck(db)))
	return r
}

// NewHTTPRouter pushes plain-HTTP traffic over to HTTPS.
func NewHTTPRouter() http.Handler {
	r := chi.NewRouter()
	m := monitoring.GetMonitor()
	r.Use(ConnectionClose)
	r.With(logging.NewStructuredLogger()).Get(m.WrapHandler("/*", func(w http.ResponseWriter, req *http.Request) {
		url := "https://" + req.Host + req.URL.String()
		http.Redirect(w, req, url, http.StatusMovedPermanently)
	}))
	return r
}

/*
	swagger:route GET /_version metadata getVersion

	Get API version

	Returns the version of the API that is currently running. Note that this endpoint is **not** prefixed with the base path (e.g. /api/v1).

	Produces:
	- application/json

	Schemes: http, https

	Responses:
		200: VersionResponse
*/
func getVersion(w http.ResponseWriter, r *http.Request) {
	respMap := make(map[string]string)
	respMap["version"] = constants.Version
	responseutils.WriteJSON(w, http.StatusOK, respMap)
}

/*
	swagger:route GET /_health metadata healthCheck

	Get service health

	Reports whether the service can reach its database. Note that this endpoint is **not** prefixed with the base path (e.g. /api/v1).

	Produces:
	- application/json

	Schemes: http, https

	Responses:
		200: HealthResponse
		502: HealthResponse
*/
func healthCheck(db *sql.DB) http.HandlerFunc {
	checker := health.NewHealthChecker(db)
	return func(w http.ResponseWriter, r *http.Request) {
		m := make(map[string]string)

		status := http.StatusOK
		if _, ok := checker.IsDatabaseOK(); ok {
			m["database"] = "ok"
		} else {
			m["database"] = "error"
			status = http.StatusBadGateway
		}

		responseutils.WriteJSON(w, status, m)
	}
}
