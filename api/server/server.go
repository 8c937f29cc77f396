package server

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/photon-storage/go-common/log"

	"github.com/gamevault/escrow-core/api/service"
)

// Server defines an instance of a server that handles read requests
// from marketplace frontends and other third-party consumers.
type Server struct {
	port   int
	engine *gin.Engine
}

// New returns a new instance of the server.
func New(port int, service *service.Service) *Server {
	server := &Server{
		port:   port,
		engine: gin.Default(),
	}

	server.registerRouter(service)
	return server
}

func (s *Server) registerRouter(service *service.Service) {
	s.engine.Use(handleError())
	g := s.engine.Group("market/v1")

	g.GET("ping", s.handle(service.Ping))
	g.GET("escrow", s.handle(service.Escrow))
	g.GET("escrows", s.handle(service.Escrows))
	g.GET("verify", s.handle(service.VerifyTransfer))
	g.GET("inventory/has", s.handle(service.HasItem))
	g.GET("inventory/count", s.handle(service.ItemCount))
	g.POST("baseline", s.handle(service.CorrectBaseline))
	g.GET("stats", s.handle(service.Stats))
}

// Run the server.
func (s *Server) Run() {
	if err := s.engine.Run(fmt.Sprintf(":%d", s.port)); err != nil {
		log.Error("run the server failed", "error", err)
		os.Exit(1)
	}
}
