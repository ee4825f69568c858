package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	swap_common "github.com/p2p-org/faceswap/x/common"
	"github.com/p2p-org/faceswap/x/faceswap"
	"github.com/p2p-org/faceswap/x/imgnormalizer"
	"github.com/p2p-org/faceswap/x/shopify"
	"github.com/p2p-org/faceswap/x/swapcache"
	"github.com/p2p-org/faceswap/x/swapper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func main() {
	swap_common.InitConfig()
	log.SetLevel(log.DebugLevel)
	var ctx = context.Background()

	if viper.GetBool(swap_common.PprofEnabledFlag) {
		go func() {
			log.Println(http.ListenAndServe(viper.GetString(swap_common.PprofHostPortFlag), nil))
		}()
	}

	cfg := swap_common.ReadSwapServiceConfig(swap_common.DefaultConfigName, swap_common.DefaultConfigPath)

	metrics := swap_common.NewPrometheusSwapMetrics("faceswap")
	service := faceswap.NewSwapService(
		cfg,
		imgnormalizer.NewImageNormalizer(cfg),
		swapcache.NewResultCache(cfg.CacheCapacity, cfg.CacheTTL()),
		swapper.NewInvoker(cfg, swapper.NewGradioWorker(cfg), metrics),
		shopify.NewClient(cfg),
		metrics,
	)
	if err := service.EnsureStorageDirs(); err != nil {
		log.Fatalf("failed to create storage dirs: %v", err)
	}

	if viper.GetBool(swap_common.PrometheusEnabledFlag) {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(viper.GetString(swap_common.PrometheusHostPortFlag), nil); err != nil {
				log.Fatalf("failed to run prometheus: %v", err)
			}
		}()
	}

	router := mux.NewRouter()
	service.RegisterRoutes(router)

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSAllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)

	srv := http.Server{
		Handler: corsHandler(router),
		Addr:    cfg.ListenAddr,
		// swap requests may ride out the whole retry budget before a
		// response is written
		WriteTimeout:      300 * time.Second,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		err := swap_common.WaitInterrupted(ctx)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Errorf("failed to shutdown server: %v", shutdownErr)
		}
		return err
	})
	wg.Go(func() error {
		log.Infof("starting face swap server on %s", cfg.ListenAddr)
		defer log.Info("stopping face swap server")
		return srv.ListenAndServe()
	})

	if err := wg.Wait(); err != nil {
		log.Fatalf("face swap server stopped: %v", err)
	}
}
