package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fpang/funny-booth/internal/auth"
	"github.com/fpang/funny-booth/internal/booth"
	"github.com/fpang/funny-booth/internal/camera"
	"github.com/fpang/funny-booth/internal/chat"
	"github.com/fpang/funny-booth/internal/config"
	"github.com/fpang/funny-booth/internal/logging"
	"github.com/fpang/funny-booth/internal/metrics"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// commitHash is set at build time via -ldflags.
var commitHash string

// CLI flags
var (
	portFlag        string
	textModelFlag   string
	imageModelFlag  string
	validateKeyFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "booth-web",
	Short: "HTTP server for the funny photo booth",
	Long: `Booth Web serves the photo booth session API. The browser owns the webcam
and reports camera events and captured frames; the server runs the session
state machine and the Gemini describe-then-render pipeline.

Examples:
  booth-web
  booth-web --port 9090
  booth-web --image-model imagen-4.0-generate-001`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVar(&portFlag, "port", "", "Port to listen on (overrides PORT)")
	rootCmd.Flags().StringVar(&textModelFlag, "text-model", "", "Gemini model that describes the photo")
	rootCmd.Flags().StringVar(&imageModelFlag, "image-model", "", "Imagen model that renders the prompt")
	rootCmd.Flags().BoolVar(&validateKeyFlag, "validate-key", false, "Check the API key with a test request at startup")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	initStart := time.Now()
	// .env is loaded before logging.Init so it can set BOOTH_LOG_LEVEL.
	envErr := godotenv.Load()
	logging.Init()
	if envErr != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}
	metrics.SetService("booth-web")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if portFlag != "" {
		cfg.Port = portFlag
	}
	if textModelFlag != "" {
		cfg.TextModel = textModelFlag
	}
	if imageModelFlag != "" {
		cfg.ImageModel = imageModelFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiKey := auth.ResolveAPIKey()
	models, err := chat.NewModels(ctx, apiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	if validateKeyFlag && apiKey != "" {
		if err := auth.ValidateAPIKey(ctx, models, cfg.TextModel, cfg.MetricsNamespace); err != nil {
			log.Fatal().Err(err).Msg("Invalid API key")
		}
		log.Info().Msg("API key validated")
	}

	generator, err := chat.NewGenerator(models, chat.Options{
		TextModel:        cfg.TextModel,
		ImageModel:       cfg.ImageModel,
		MetricsNamespace: cfg.MetricsNamespace,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create generator")
	}

	registry := booth.NewRegistry(camera.Remote{}, generator, cfg.SessionTTL)
	go registry.Run(ctx, sweepInterval(cfg.SessionTTL))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(newServer(ctx, registry, cfg.GenerateTimeout)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logging.NewStartupLogger("booth-web").
		CommitHash(commitHash).
		Model("describe", cfg.TextModel).
		Model("render", cfg.ImageModel).
		Feature("apiKey", apiKey != "").
		Feature("keyValidation", validateKeyFlag).
		Config("port", cfg.Port).
		Config("sessionTTL", cfg.SessionTTL.String()).
		Config("generateTimeout", cfg.GenerateTimeout.String()).
		Config("metricsNamespace", cfg.MetricsNamespace).
		InitDuration(time.Since(initStart)).
		Log()

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("Starting web server")
	fmt.Printf("\n  Funny Booth API: http://localhost:%s\n\n", cfg.Port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server stopped")
}

// sweepInterval checks for idle sessions a few times per TTL, at most once a minute.
func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}
