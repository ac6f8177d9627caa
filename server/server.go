// Package server exposes read-only index queries over HTTP.
package server

import (
	"context"

	"dbx/config"
	"dbx/flatfile"
	"dbx/logger"
	"dbx/registry"
	"dbx/server/routes"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Server struct {
	app     *fiber.App
	handler *routes.Handler
	listen  string
	logger  *zap.Logger
}

func New(cfg *config.Config, formats *registry.Registry[flatfile.Format], log *zap.Logger) (*Server, error) {
	log = logger.OrNop(log)
	h, err := routes.NewHandler(cfg, formats, log)
	if err != nil {
		return nil, err
	}
	app := fiber.New(fiber.Config{
		AppName:               "dbx",
		DisableStartupMessage: true,
	})
	routes.SetupRoutes(app, h)
	return &Server{app: app, handler: h, listen: cfg.Server.Listen, logger: log}, nil
}

// App is the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until the server is shut down.
func (s *Server) Listen() error {
	s.logger.Info("listening", zap.String("addr", s.listen))
	return s.app.Listen(s.listen)
}

// Shutdown stops accepting requests, waits for the active ones and closes
// every open index.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.handler.Close()
	return err
}

// Close releases the indexes without touching the listener.
func (s *Server) Close() {
	s.handler.Close()
}
