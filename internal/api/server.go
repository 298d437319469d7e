package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router *gin.Engine
}

func NewServer(
	taskAPI *TaskAPI,
	logger *zap.Logger,
) *Server {
	s := &Server{}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(ErrorHandlingMiddleware(logger))
	s.router.Use(Cors())

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	taskAPI.BindAll(s.router)

	return s
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
