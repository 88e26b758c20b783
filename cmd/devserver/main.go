package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mediabridge/mediabridge/common/config"
	"github.com/mediabridge/mediabridge/common/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	log.Info("dev server starting")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8089"
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	server := NewServer(cfg.Upload, log)
	server.Register(e)

	go func() {
		addr := fmt.Sprintf(":%s", port)
		log.Info("dev server listening", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down dev server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("dev server stopped")
}
