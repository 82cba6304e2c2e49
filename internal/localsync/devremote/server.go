package devremote

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/aatrooox/localsync/internal/clock"
)

// Options configures a Server. The zero value is usable.
type Options struct {
	// Token, when set, is required as "Authorization: Bearer <token>".
	Token string

	// Prefix is the route prefix tables are mounted under. Defaults to "/api".
	Prefix string

	Clock  clock.Clock
	Logger *log.Logger
}

// Server serves a Store over HTTP.
type Server struct {
	*Store

	token  string
	prefix string
	logger *log.Logger
	engine *gin.Engine
}

// New creates a server with an empty store.
func New(opts *Options) *Server {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	prefix := "/" + strings.Trim(opts.Prefix, "/")
	if prefix == "/" {
		prefix = "/api"
	}

	s := &Server{
		Store:  NewStore(opts.Clock),
		token:  strings.TrimSpace(opts.Token),
		prefix: prefix,
		logger: logger,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Prefix returns the route prefix; BaseURL for clients is host + prefix.
func (s *Server) Prefix() string {
	return s.prefix
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group(s.prefix)
	api.Use(s.auth())
	{
		api.GET("/:table", s.list)
		api.GET("/:table/:id", s.get)
		api.POST("/:table", s.create)
		api.PUT("/:table/:id", s.update)
		api.DELETE("/:table/:id", s.remove)
	}
	return r
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}
		h := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(h), "bearer ") || strings.TrimSpace(h[7:]) != s.token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// faulted aborts the request if an injected fault fires.
func (s *Server) faulted(c *gin.Context, body Record) bool {
	status := s.check(c.Request.Method, c.Param("table"), c.Param("id"), body)
	if status == 0 {
		return false
	}
	c.AbortWithStatusJSON(status, gin.H{"error": "injected failure"})
	return true
}

func (s *Server) list(c *gin.Context) {
	if s.faulted(c, nil) {
		return
	}

	q := Query{Equals: map[string]string{}}
	for key, vals := range c.Request.URL.Query() {
		if len(vals) == 0 {
			continue
		}
		switch key {
		case "limit":
			q.Limit = parseInt(vals[0])
		case "offset":
			q.Offset = parseInt(vals[0])
		case "search":
			q.Search = vals[0]
		default:
			q.Equals[key] = vals[0]
		}
	}
	c.JSON(http.StatusOK, s.List(c.Param("table"), q))
}

func (s *Server) get(c *gin.Context) {
	if s.faulted(c, nil) {
		return
	}
	rec, ok := s.Get(c.Param("table"), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) create(c *gin.Context) {
	var body Record
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if s.faulted(c, body) {
		return
	}
	rec := s.Create(c.Param("table"), body)
	s.logger.Printf("Created %s/%v", c.Param("table"), rec["id"])
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) update(c *gin.Context) {
	var body Record
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if s.faulted(c, body) {
		return
	}
	rec, ok := s.Update(c.Param("table"), c.Param("id"), body)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) remove(c *gin.Context) {
	if s.faulted(c, nil) {
		return
	}
	if !s.Delete(c.Param("table"), c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func parseInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
