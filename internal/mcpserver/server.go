// Package mcpserver exposes the notification inbox to agents over MCP (SSE
// transport), so an agent can notify the user without a hook.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"claudeview/internal/notify"
)

// Service provides an MCP server backed by the inbox.
type Service struct {
	server  *server.MCPServer
	inbox   *notify.Inbox
	port    int
	version string
	logger  *zap.Logger
}

// NewService creates the MCP server and registers its tools.
func NewService(port int, version string, inbox *notify.Inbox, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		inbox:   inbox,
		port:    port,
		version: version,
		logger:  logger,
	}

	mcpServer := server.NewMCPServer(
		"claudeview",
		version,
		server.WithToolCapabilities(true),
	)
	mcpServer.AddTool(CreateNotifyUserTool(), s.handleNotifyUser)
	mcpServer.AddTool(CreateUnreadSummaryTool(), s.handleUnreadSummary)
	s.server = mcpServer
	return s
}

// Port returns the port the SSE server listens on.
func (s *Service) Port() int {
	return s.port
}

// Run serves SSE until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	sseServer := server.NewSSEServer(s.server,
		server.WithBaseURL(fmt.Sprintf("http://localhost:%d", s.port)),
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           sseServer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("mcp sse server started", zap.Int("port", s.port))
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("mcp server: %w", err)
	case <-ctx.Done():
		// SSE streams never go idle, so close rather than drain
		s.logger.Info("shutting down mcp sse server")
		return httpServer.Close()
	}
}
