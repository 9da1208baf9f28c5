// Package http is the loopback-only debug/admin surface: the engine is
// otherwise invisible to HTTP tooling, which is a real operational gap for
// a daemon whose only interface is a raw socket. Grounded on the teacher's
// cmd/zmux-server/main.go (gin setup, ZapLogger middleware, dev-origin CORS)
// and its http middleware package.
package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	sesscookie "github.com/gin-contrib/sessions/cookie"
	sessredis "github.com/gin-contrib/sessions/redis"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hausd/itd/internal/api/http/middleware"
	"github.com/hausd/itd/internal/dispatch"
	"github.com/hausd/itd/internal/engine"
	"github.com/hausd/itd/internal/wire"
	"github.com/hausd/itd/pkg/jsonx"
)

// sessionCookieName names the admin session cookie that gates the mutating
// /api/admin endpoints. The session store's signing key is a fixed literal,
// not regenerated on restart; there is no multi-tenant principal model in
// this domain (spec has no such concept), so a single shared admin session
// is sufficient.
const sessionCookieName = "itd_admin"

// Server wraps a gin.Engine bound to one *engine.Engine. It listens on
// whatever address ListenAndServe is given (cmd/itd's --http-addr, which
// defaults to 127.0.0.1:8080); nothing here rejects a non-loopback address.
type Server struct {
	router *gin.Engine
	eng    *engine.Engine
	log    *zap.Logger
}

// New builds the router and wires every endpoint. redisAddr/redisDB must be
// the same backing Redis the engine itself was dialed against (cmd/itd's
// --redis-addr/--redis-db), so the admin session store and the engine are
// never silently pointed at different instances.
func New(eng *engine.Engine, redisAddr string, redisDB int, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	_ = r.SetTrustedProxies(nil)

	r.Use(gin.Recovery())
	r.Use(secure.New(secure.Config{
		SSLRedirect:           false,
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'self'",
	}))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RequestID())
	r.Use(middleware.ZapLogger(log))

	// NewStoreWithDB mirrors the teacher's internal/service/user_session.go,
	// pointed at the engine's own Redis instance/DB rather than a hardcoded
	// default.
	store, err := sessredis.NewStoreWithDB(10, "tcp", redisAddr, "", strconv.Itoa(redisDB), []byte("itd-session-secret"))
	if err != nil {
		// Falls back to a cookie-only store: session data then lives in the
		// signed cookie itself rather than in Redis. The signing key is the
		// same fixed literal, so such cookies stay valid across restarts.
		log.Warn("redis session store init failed, falling back to cookie store", zap.Error(err))
		store = sesscookie.NewStore([]byte("itd-session-secret"))
	}
	r.Use(sessions.Sessions(sessionCookieName, store))

	s := &Server{router: r, eng: eng, log: log}
	s.routes()
	return s
}

func (s *Server) routes() {
	disp := dispatch.New(s.eng)

	s.router.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	s.router.GET("/api/people", func(c *gin.Context) {
		people, err := s.eng.People(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, people)
	})

	s.router.GET("/api/query", func(c *gin.Context) {
		q := c.Query("q")
		if q == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "missing q parameter"})
			return
		}
		reply := disp.Dispatch(c.Request.Context(), q, time.Now())
		c.String(http.StatusOK, "%s", reply)
	})

	s.router.POST("/api/admin/reload", s.requireSession, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "reload acknowledged"})
	})

	s.router.POST("/api/admin/record", s.requireSession, s.postRecord)
}

// recordRequest is the JSON shape of a manually-entered PresenceLog record,
// an out-of-band alternative to the socket protocol's INGEST phase for an
// operator correcting a missed START/STOP by hand.
type recordRequest struct {
	Type string `json:"type"`
	Name string `json:"name"`
	At   string `json:"at"`
}

func (s *Server) postRecord(c *gin.Context) {
	var req recordRequest
	if err := jsonx.ParseStrictJSONBody(c.Request, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	t, err := wire.ParseTimestamp(req.At, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid at: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	switch req.Type {
	case "START":
		if _, err := s.eng.Start(ctx, req.Name, t); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
	case "STOP":
		if _, err := s.eng.Stop(ctx, req.Name, t); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"message": "type must be START or STOP"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "recorded"})
}

// requireSession gates /api/admin/reload and /api/admin/record: a caller must already hold a
// session with `authenticated=true`. This surface has no login endpoint of
// its own — a session is expected to be provisioned out-of-band (e.g. an
// operator shell with direct Redis access) since there is no user/principal
// model in this household-presence domain.
func (s *Server) requireSession(c *gin.Context) {
	sess := sessions.Default(c)
	if sess == nil || sess.Get("authenticated") != true {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthenticated"})
		return
	}
	c.Next()
}

// ListenAndServe binds the router to addr, which must be a loopback
// address — the caller (cmd/itd) is responsible for choosing one.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 15,
		ErrorLog:       zap.NewStdLog(s.log.WithOptions(zap.AddCallerSkip(1))),
	}
	s.log.Info("listening", zap.String("addr", addr))
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
