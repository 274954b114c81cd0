package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/bughunt/internal/auth"
	"github.com/onnwee/bughunt/internal/game"
	"github.com/onnwee/bughunt/internal/middleware"
	"github.com/onnwee/bughunt/internal/stream"
	"github.com/onnwee/bughunt/internal/upload"
)

// RouterConfig carries everything the HTTP surface depends on. Optional
// parts may be left nil.
type RouterConfig struct {
	Game        *game.Game
	Broadcaster *stream.StateBroadcaster

	// Auth guards admin routes; nil leaves them open.
	Auth *auth.JWTService

	Images        ImageProcessor
	ObjectStore   ObjectStore     // nil returns images as data URIs
	Uploads       *upload.Service // nil disables presigned uploads
	MaxImageBytes int64

	Health HealthHandlersConfig

	RateLimitStore middleware.RateLimitStore
	GlobalLimit    middleware.RateLimitConfig
	AdminLimit     middleware.RateLimitConfig
	ClickLimit     middleware.RateLimitConfig
	Metrics        *middleware.Metrics

	// Gatherer serves /metrics; nil omits the endpoint.
	Gatherer prometheus.Gatherer

	AllowedOrigins []string
	ServiceName    string
	Logger         *slog.Logger
}

// NewRouter builds the complete handler: routes plus the middleware chain
// RequestID, Logging, Tracing, HTTPMetrics, CORS and the global rate limit.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := cfg.RateLimitStore
	if store == nil {
		store = middleware.NewInMemoryRateLimitStore()
	}
	if cfg.GlobalLimit.RequestsPerWindow == 0 {
		cfg.GlobalLimit = middleware.DefaultGlobalLimit()
	}
	if cfg.AdminLimit.RequestsPerWindow == 0 {
		cfg.AdminLimit = middleware.DefaultAdminLimit()
	}
	if cfg.ClickLimit.RequestsPerWindow == 0 {
		cfg.ClickLimit = middleware.ClickLimit(120)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "bughunt-api"
	}

	gameH := NewGameHandlers(cfg.Game)
	sceneH := NewSceneHandlers(cfg.Game)
	regionH := NewRegionHandlers(cfg.Game)
	healthH := NewHealthHandlers(cfg.Health)
	uploadH := NewUploadHandlers(cfg.Uploads)

	clickLimit := middleware.RateLimiter(store, cfg.ClickLimit, middleware.IPKeyFunc(), cfg.Metrics)
	requireAdmin := auth.RequireAdmin(cfg.Auth, logger)
	adminLimit := middleware.RateLimiter(store, cfg.AdminLimit, middleware.SubjectKeyFunc(), cfg.Metrics)
	admin := func(h http.HandlerFunc) http.Handler {
		return requireAdmin(adminLimit(h))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthH.Health)
	mux.HandleFunc("GET /ready", healthH.Ready)
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// Player
	mux.HandleFunc("GET /api/state", gameH.State)
	mux.HandleFunc("GET /api/scenes", gameH.ListScenes)
	mux.HandleFunc("GET /api/bugs", gameH.ListBugs)
	mux.HandleFunc("POST /api/play/scene", gameH.SelectScene)
	mux.HandleFunc("POST /api/play/bug", gameH.SelectBug)
	mux.Handle("POST /api/play/click", clickLimit(http.HandlerFunc(gameH.Click)))
	mux.HandleFunc("POST /api/play/advance", gameH.Advance)
	mux.HandleFunc("POST /api/play/intro/dismiss", gameH.DismissIntro)
	if cfg.Broadcaster != nil {
		eventH := NewEventHandlers(cfg.Game, cfg.Broadcaster, cfg.AllowedOrigins)
		mux.HandleFunc("GET /api/events", eventH.Subscribe)
	}

	// Admin
	mux.Handle("POST /api/admin/mode", admin(gameH.ToggleAdmin))
	mux.Handle("POST /api/scenes", admin(sceneH.CreateScene))
	mux.Handle("PATCH /api/scenes/{id}", admin(sceneH.UpdateScene))
	mux.Handle("DELETE /api/scenes/{id}", admin(sceneH.DeleteScene))
	mux.Handle("POST /api/scenes/{id}/bugs", admin(sceneH.CreateBug))
	mux.Handle("PATCH /api/bugs/{id}", admin(sceneH.UpdateBug))
	mux.Handle("DELETE /api/bugs/{id}", admin(sceneH.DeleteBug))

	mux.Handle("POST /api/admin/region/start", admin(regionH.Start))
	mux.Handle("POST /api/admin/region/edit/{bugID}", admin(regionH.Edit))
	mux.Handle("POST /api/admin/region/points", admin(regionH.AddPoint))
	mux.Handle("POST /api/admin/region/undo", admin(regionH.Undo))
	mux.Handle("POST /api/admin/region/cancel", admin(regionH.Cancel))
	mux.Handle("POST /api/admin/region/commit", admin(regionH.Commit))

	if cfg.Images != nil {
		imageH := NewImageHandlers(cfg.Images, cfg.ObjectStore, cfg.MaxImageBytes)
		mux.Handle("POST /api/admin/images", admin(imageH.Upload))
	}
	mux.Handle("POST /api/admin/uploads/sign", admin(uploadH.SignUpload))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeErrorCode(w, r, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	})

	var handler http.Handler = mux
	handler = middleware.RateLimiter(store, cfg.GlobalLimit, middleware.IPKeyFunc(), cfg.Metrics)(handler)
	handler = middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowedOrigins))(handler)
	if cfg.Metrics != nil {
		handler = middleware.HTTPMetrics(cfg.Metrics)(handler)
	}
	handler = middleware.Tracing(cfg.ServiceName)(handler)
	handler = middleware.Logging(logger)(handler)
	return middleware.RequestID(handler)
}
