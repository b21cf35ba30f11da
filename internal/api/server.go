// Package api exposes the attendance service over HTTP.
package api

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"presensi/internal/attendance"
	"presensi/internal/auth"
	"presensi/internal/httpmiddleware"
)

// Service is the attendance behaviour the HTTP layer needs.
type Service interface {
	RegisterDevice(ctx context.Context, deviceID string) error
	CheckIn(ctx context.Context, nisn, deviceID, status string) (attendance.Record, bool, error)
	ListRecords(ctx context.Context, f attendance.RecordFilter) ([]attendance.Record, error)
	Summary(ctx context.Context, date, class string) (attendance.Summary, error)
	ListStudents(ctx context.Context, class string) ([]attendance.Student, error)
	GetStudent(ctx context.Context, nisn string) (attendance.Student, error)
	UpsertStudent(ctx context.Context, s attendance.Student) (attendance.Student, error)
	Preview(ctx context.Context, nisn, status, clock, date string) (attendance.Preview, error)
}

// TokenStore records issued refresh tokens.
type TokenStore interface {
	SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error
}

// Options configures the HTTP server.
type Options struct {
	SigningKey      string
	Issuer          string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	AdminDeviceIDs  []string
	RateLimitPerMin int
	// Health maps a dependency name to its probe.
	Health map[string]func(ctx context.Context) bool
}

// Server holds the handlers' dependencies.
type Server struct {
	svc    Service
	tokens TokenStore
	opts   Options
}

// New creates a Server. tokens may be nil.
func New(svc Service, tokens TokenStore, opts Options) *Server {
	return &Server{svc: svc, tokens: tokens, opts: opts}
}

// Router builds the gin engine with middleware and routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.health)
	r.POST("/v1/devices/register", s.rateLimit(httpmiddleware.ByClientIP), s.registerDevice)

	v1 := r.Group("/v1", auth.DeviceAuth(s.opts.SigningKey, s.opts.Issuer), s.rateLimit(httpmiddleware.ByDevice))
	v1.POST("/checkins", s.checkIn)
	v1.GET("/records", s.listRecords)
	v1.GET("/summary", s.summary)
	v1.POST("/notifications/preview", s.preview)

	// the roster carries guardian contacts
	roster := v1.Group("/students", auth.RequireRole(auth.RoleAdmin))
	roster.GET("", s.listStudents)
	roster.GET("/:nisn", s.getStudent)
	roster.PUT("/:nisn", s.upsertStudent)
	return r
}

// rateLimit returns a limiter keyed by key, or a pass-through when limiting is off.
func (s *Server) rateLimit(key httpmiddleware.KeyFunc) gin.HandlerFunc {
	if s.opts.RateLimitPerMin <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return httpmiddleware.NewLimiter(s.opts.RateLimitPerMin, s.opts.RateLimitPerMin).Middleware(key)
}

func (s *Server) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, probe := range s.opts.Health {
		ok := probe(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func (s *Server) roleFor(deviceID string) string {
	if slices.Contains(s.opts.AdminDeviceIDs, deviceID) {
		return auth.RoleAdmin
	}
	return auth.RoleScanner
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
