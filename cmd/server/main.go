package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sevag-tafnakaji/sol-broker/internal/config"
	"github.com/sevag-tafnakaji/sol-broker/internal/logx"
	"github.com/sevag-tafnakaji/sol-broker/internal/server"
)

func main() {
	addr := flag.String("a", "", "listen address (overrides config/default hostname)")
	port := flag.String("p", "", "listen port (overrides config/default port)")
	confPath := flag.String("c", "", "path to configuration file")
	verbose := flag.Bool("v", false, "raise log level to DEBUG")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus /metrics on, e.g. :9090 (disabled if empty)")
	flag.Parse()

	cfg, err := config.Load(*confPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sol-broker: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyCLI(*addr, *port, *verbose)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "sol-broker: %v\n", err)
		os.Exit(1)
	}

	log := logx.New(cfg.LogLevel)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Infof("metrics listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}

	srv := server.New(cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Infof("shutting down")
		cancel()
	}()

	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		log.Errorf("broker stopped: %v", err)
		os.Exit(1)
	}
}
