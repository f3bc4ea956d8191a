package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/abdhe/chat-router/pkg/proxy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC and HTTP servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadServices("")
		if err != nil {
			return err
		}
		return serve(s)
	},
}

func serve(s *services) error {
	log := s.log
	log.Info("Starting Chat Router...")

	sink := s.openSink()
	if sink != nil {
		defer sink.Close()
	}

	handler := proxy.NewHandler(proxy.Config{
		Router: s.router,
		App:    s.app,
		Sink:   sink,
		Logger: log,
	})

	// -------------------------------------------------------------------------
	// Start gRPC server
	// -------------------------------------------------------------------------
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(s.cfg.MaxRecvMsgSize),
	)
	proxy.RegisterChatRouterServer(grpcServer, proxy.NewGRPCServer(handler))
	reflection.Register(grpcServer)

	grpcLis, err := net.Listen("tcp", ":"+s.cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen on gRPC port %s: %w", s.cfg.GRPCPort, err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Infof("gRPC server listening on :%s", s.cfg.GRPCPort)
		if err := grpcServer.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Start HTTP server (SSE, metrics, health)
	// -------------------------------------------------------------------------
	httpServer := &http.Server{
		Addr:              ":" + s.cfg.HTTPPort,
		Handler:           proxy.NewHTTPHandler(handler, s.cfg.CORSAllowOrigins...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("HTTP server listening on :%s", s.cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Graceful shutdown
	// -------------------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Infof("Received signal %v, shutting down...", sig)
	case runErr = <-errCh:
		log.WithError(runErr).Error("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	// Streams in flight end when their clients disconnect or the timeout hits.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown")
	}
	log.Info("HTTP server stopped")

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}
	log.Info("gRPC server stopped")

	log.Info("Chat Router shut down successfully")
	return runErr
}
