package main

import (
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmgateway/internal/applog"
	"llmgateway/internal/config"
	"llmgateway/internal/dispatcher"
	"llmgateway/internal/health"
	"llmgateway/internal/loadbalancer"
	"llmgateway/internal/modelmanager"
)

func main() {
	if err := godotenv.Load(); err != nil {
		applog.Info("main", nil, "no .env file loaded (%v), using process environment", err)
	}

	configPath := os.Getenv("GATEWAY_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		applog.Fatal("main", map[string]string{"path": configPath}, "failed to load configuration: %v", err)
	}

	bootstrapClient := &http.Client{Timeout: cfg.HealthCheck.Timeout()}
	models := modelmanager.New(bootstrapClient)
	checker := health.New(cfg.HealthCheck, cfg.RequiredModel)

	lb, err := loadbalancer.New(cfg, checker)
	if err != nil {
		applog.Fatal("main", nil, "failed to construct load balancer: %v", err)
	}

	if err := models.EnsureModelOnAllEndpoints(lb.Endpoints(), cfg.RequiredModel); err != nil {
		applog.Error("main", map[string]string{"model": cfg.RequiredModel}, "bootstrap model check failed: %v", err)
	}

	healthyAtBoot := 0
	for _, ep := range lb.Endpoints() {
		if ep.IsHealthy() {
			healthyAtBoot++
		}
	}
	if healthyAtBoot == 0 {
		applog.Fatal("main", nil, "no healthy endpoint after bootstrap, exiting")
	}

	proxyClient := &http.Client{Timeout: 0}
	d := dispatcher.New(lb, models, proxyClient, cfg.RequiredModel)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", d)

	applog.Info("main", map[string]string{"addr": cfg.ListenAddr, "strategy": cfg.Strategy}, "gateway listening")

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil {
		applog.Fatal("main", nil, "server exited: %v", err)
	}
}
