// Package httptransport is the thin HTTP layer over the custody services. It
// decodes requests, names the actor from the X-Actor-ID header and maps
// domain errors onto status codes; it holds no business rules.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custodian/pkg/platform/httputil"
	"custodian/pkg/platform/middleware/metadata"
	"custodian/pkg/platform/middleware/requesttime"
	"custodian/pkg/platform/retry"
)

// Services are the domain entry points the router exposes.
type Services struct {
	Assets    AssetService
	Seals     SealService
	Kits      KitService
	Manifests ManifestService
	Custody   CustodyService
	Audits    AuditService
}

// FormDefaults fill omitted fields of a form generation request.
type FormDefaults struct {
	RequiredSignatures int
	ExpirationDays     int
}

// Options tune the router. Zero values fall back to sensible defaults.
type Options struct {
	Logger         *slog.Logger
	Gatherer       prometheus.Gatherer
	Retry          retry.Policy
	RequestTimeout time.Duration
	Forms          FormDefaults
	// MaxScanBytes bounds uploaded form scans.
	MaxScanBytes int64
	// Now overrides the request clock in tests.
	Now func() time.Time
	// Checks are probed by /healthz; any failure reports 503.
	Checks map[string]func(context.Context) error
}

func (o Options) clock() func(http.Handler) http.Handler {
	if o.Now != nil {
		return requesttime.MiddlewareWithClock(o.Now)
	}
	return requesttime.Middleware
}

// Handler carries the services and transport settings shared by every route.
type Handler struct {
	svc     Services
	logger  *slog.Logger
	retry   retry.Policy
	forms   FormDefaults
	maxScan int64
}

// NewRouter wires the /v1 API plus /healthz and /metrics.
func NewRouter(svc Services, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxScanBytes == 0 {
		opts.MaxScanBytes = 10 << 20
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	h := &Handler{svc: svc, logger: opts.Logger, retry: opts.Retry, forms: opts.Forms, maxScan: opts.MaxScanBytes}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(metadata.ClientMetadata)
	r.Use(requestID)
	r.Use(opts.clock())
	r.Use(accessLog(opts.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		body := map[string]string{"status": "ok"}
		status := http.StatusOK
		for name, check := range opts.Checks {
			if err := check(req.Context()); err != nil {
				opts.Logger.WarnContext(req.Context(), "health check failed", "check", name, "error", err)
				body[name] = "unavailable"
				body["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		httputil.WriteJSON(w, status, body)
	})
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(opts.RequestTimeout))
		h.registerAssets(r)
		h.registerSeals(r)
		h.registerKits(r)
		h.registerManifests(r)
		h.registerCustody(r)
		h.registerAudits(r)
	})
	return r
}
