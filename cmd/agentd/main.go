// agentd hosts the monitoring-agent module behind a small HTTP surface so
// host-agent integrations evaluate poll/echo keys over loopback instead of
// loading a native plugin.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/pollerkit/pollctl/internal/agent"
	"github.com/pollerkit/pollctl/internal/logging"
	"github.com/pollerkit/pollctl/internal/observability"
)

var startedAt = time.Now()

type evalRequest struct {
	Key    string   `json:"key" binding:"required"`
	Params []string `json:"params"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agentd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logging.ConfigureRuntime()

	configPath := flag.String("config", "/etc/pollctl/agent.toml", "module configuration file")
	listenAddr := flag.String("listen", "127.0.0.1:10124", "HTTP listen address")
	flag.Parse()

	module := agent.NewModule()
	if err := module.Init(*configPath); err != nil {
		return err
	}
	defer func() {
		if err := module.Uninit(); err != nil {
			log.Warn().Err(err).Msg("module uninit")
		}
	}()
	observability.RegisterMetrics()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(startedAt).String(),
			"service": "agentd",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/eval", func(c *gin.Context) {
		var req evalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
			return
		}
		result, err := module.Eval(c.Request.Context(), req.Key, req.Params)
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, agent.ErrUnknownKey) || errors.Is(err, agent.ErrBadParams) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "result": result})
	})

	srv := &http.Server{Addr: *listenAddr, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", *listenAddr).Msg("agentd serving")
		errCh <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
