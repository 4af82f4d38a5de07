package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fpang/funny-booth/internal/booth"
	"github.com/fpang/funny-booth/internal/camera"
	"github.com/fpang/funny-booth/internal/chat"
	"github.com/fpang/funny-booth/internal/cli"
	"github.com/fpang/funny-booth/internal/config"
	"github.com/fpang/funny-booth/internal/logging"
	"github.com/fpang/funny-booth/internal/metrics"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// CLI flags
var (
	imageFlag       string
	outFlag         string
	textModelFlag   string
	imageModelFlag  string
	validateKeyFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "booth-cli",
	Short: "Turn a photo into a funny AI-generated portrait",
	Long: `Booth CLI runs one pass through the photo booth using an image file as the
camera. Gemini describes the person in the photo with one absurd twist, and
Imagen renders that description as a square JPEG.

Examples:
  booth-cli --image me.jpg --out funny.jpg
  booth-cli -i me.png --image-model imagen-4.0-generate-001
  booth-cli  # Interactive mode - prompts for the photo`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&imageFlag, "image", "i", "", "Photo to use as the captured frame")
	rootCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Where to write the generated JPEG (default: <image>-funny.jpg)")
	rootCmd.Flags().StringVar(&textModelFlag, "text-model", "", "Gemini model that describes the photo")
	rootCmd.Flags().StringVar(&imageModelFlag, "image-model", "", "Imagen model that renders the prompt")
	rootCmd.Flags().BoolVar(&validateKeyFlag, "validate-key", false, "Check the API key with a test request first")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMain is the main execution logic called by Cobra.
func runMain(cmd *cobra.Command, args []string) {
	envErr := godotenv.Load()
	logging.Init()
	if envErr != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}
	metrics.SetService("booth-cli")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if textModelFlag != "" {
		cfg.TextModel = textModelFlag
	}
	if imageModelFlag != "" {
		cfg.ImageModel = imageModelFlag
	}

	imagePath := imageFlag
	if imagePath == "" {
		imagePath = cli.PromptForImagePath(os.Stdin, os.Stdout)
	}
	imagePath, err = cli.ResolveImagePath(imagePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid photo")
	}
	outPath := outFlag
	if outPath == "" {
		outPath = defaultOutPath(imagePath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GenerateTimeout)
	defer cancel()

	models := cli.InitModels(ctx, cfg.TextModel, cfg.MetricsNamespace, validateKeyFlag)
	generator, err := chat.NewGenerator(models, chat.Options{
		TextModel:        cfg.TextModel,
		ImageModel:       cfg.ImageModel,
		MetricsNamespace: cfg.MetricsNamespace,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create generator")
	}

	logging.NewStartupLogger("booth-cli").
		Model("describe", cfg.TextModel).
		Model("render", cfg.ImageModel).
		Feature("keyValidation", validateKeyFlag).
		Config("image", imagePath).
		Config("out", outPath).
		Log()

	start := time.Now()
	result, err := runBooth(ctx, camera.File{Path: imagePath}, generator)
	if err != nil {
		cli.Fail(err, "Generation failed")
	}

	if err := os.WriteFile(outPath, result.Generated.Data, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", outPath).Msg("Failed to write generated image")
	}

	fmt.Println()
	fmt.Printf("  Funny portrait saved: %s (%s, %s)\n\n",
		outPath, cli.FormatSize(len(result.Generated.Data)), time.Since(start).Round(100*time.Millisecond))
}

// runBooth drives one session from start to result with device as the camera.
func runBooth(ctx context.Context, device camera.Device, pipeline booth.Pipeline) (booth.Result, error) {
	sess := booth.NewSession("cli", device, pipeline)
	defer sess.Reset()

	if err := sess.Start(ctx); err != nil {
		return booth.Result{}, err
	}
	st, err := sess.Await(ctx, booth.PhaseCameraOn, booth.PhaseError)
	if err != nil {
		return booth.Result{}, err
	}
	if failed, ok := st.(booth.Failed); ok {
		return booth.Result{}, errors.New(failed.Message)
	}

	log.Info().Msg("Capturing frame")
	if err := sess.Capture(ctx); err != nil {
		return booth.Result{}, err
	}
	if err := sess.Generate(ctx); err != nil {
		return booth.Result{}, err
	}

	result, ok := sess.State().(booth.Result)
	if !ok {
		return booth.Result{}, fmt.Errorf("unexpected session phase %s", sess.State().Phase())
	}
	return result, nil
}

// defaultOutPath places the output next to the input: me.jpg → me-funny.jpg.
func defaultOutPath(imagePath string) string {
	ext := filepath.Ext(imagePath)
	return imagePath[:len(imagePath)-len(ext)] + "-funny.jpg"
}
