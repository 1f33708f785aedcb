package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelserve/internal/archive"
	"modelserve/internal/common/fsutil"
	"modelserve/internal/config"
	"modelserve/internal/device"
	"modelserve/internal/httpapi"
	"modelserve/internal/registry"
	"modelserve/internal/sanitize"
)

// errStaticDirNotFound makes the process exit with -1 before anything is loaded.
var errStaticDirNotFound = errors.New("static dir not found")

const (
	shutdownTimeout = 5 * time.Second
	// shutdownGrace is left at the end of shutdownTimeout for stopped
	// predictions to send their 503.
	shutdownGrace = time.Second
)

func newServeCmd(stderr io.Writer, reg *registry.Registry) *cobra.Command {
	def := config.Default()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load a model archive and serve predictions",
		Example: "  modelserve serve --archive-path model.tar.gz --predictor linear_classifier --field-name features\n" +
			"  modelserve serve --config serve.yaml -p 9000",
		Args: cobra.NoArgs,
	}
	f := cmd.Flags()
	// -h is the host shorthand, so help is long-form only.
	f.StringP("host", "h", def.Host, "interface to serve the demo on")
	f.IntP("port", "p", def.Port, "port to serve the demo on")
	f.Bool("help", false, "help for serve")
	f.String("archive-path", "", "path to trained archive file (required)")
	f.String("predictor", "", "name of predictor (required)")
	f.String("weights-file", "", "a path that overrides which weights file to use")
	f.Int("cuda-device", def.CUDADevice, "id of GPU to use (if any)")
	f.StringP("overrides", "o", "", "a JSON structure used to override the experiment configuration")
	f.String("static-dir", "", "serve index.html and assets from this directory instead of the generated form")
	f.String("title", def.Title, "change the default page title")
	f.StringArray("field-name", nil, "field names to include in the demo (repeatable)")
	f.String("config", "", "config file (.yaml, .yml, .json, .toml); explicit flags win")
	f.String("log-level", httpapi.DefaultLogLevel(), "log level: debug|info|warn|error (defaults "+httpapi.LogLevelEnv+" or info)")
	f.String("log-format", def.LogFormat, "log format: json|console")
	f.StringArray("keep-output-key", nil, "return only these top-level keys of every prediction (repeatable)")
	f.StringArray("drop-output-key", nil, "remove this top-level key from every prediction (repeatable)")
	f.Int64("max-body-bytes", def.MaxBodyBytes, "maximum accepted request body size")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := configFromFlags(cmd)
		if err != nil {
			return err
		}
		logger := httpapi.NewLogger(stderr, cfg.LogLevel, cfg.LogFormat)
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, reg, logger, nil)
	}
	return cmd
}

// configFromFlags layers explicitly set flags over the optional config file
// and the defaults.
func configFromFlags(cmd *cobra.Command) (config.Config, error) {
	f := cmd.Flags()
	cfg := config.Default()
	if path, _ := f.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if !f.Changed("log-level") && (cfg.LogLevel == "" || cfg.LogLevel == config.DefaultLogLevel) {
		cfg.LogLevel, _ = f.GetString("log-level")
	}

	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	str("archive-path", &cfg.ArchivePath)
	str("predictor", &cfg.Predictor)
	str("weights-file", &cfg.WeightsFile)
	str("overrides", &cfg.Overrides)
	str("static-dir", &cfg.StaticDir)
	str("title", &cfg.Title)
	str("host", &cfg.Host)
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	if f.Changed("cuda-device") {
		cfg.CUDADevice, _ = f.GetInt("cuda-device")
	}
	if f.Changed("port") {
		cfg.Port, _ = f.GetInt("port")
	}
	if f.Changed("field-name") {
		cfg.FieldNames, _ = f.GetStringArray("field-name")
	}
	if f.Changed("keep-output-key") {
		cfg.KeepOutputKey, _ = f.GetStringArray("keep-output-key")
	}
	if f.Changed("drop-output-key") {
		cfg.DropOutputKey, _ = f.GetStringArray("drop-output-key")
	}
	if f.Changed("max-body-bytes") {
		cfg.MaxBodyBytes, _ = f.GetInt64("max-body-bytes")
	}
	return cfg, cfg.Validate()
}

// serve loads the model described by cfg and serves it until ctx is done.
// ready, when non-nil, receives the bound address once the listener is up.
func serve(ctx context.Context, cfg config.Config, reg *registry.Registry, logger zerolog.Logger, ready func(net.Addr)) error {
	if cfg.StaticDir != "" {
		dir, err := fsutil.Resolve(cfg.StaticDir)
		if err != nil || !fsutil.IsDir(dir) {
			logger.Error().Str("static_dir", cfg.StaticDir).Msg("static dir does not exist")
			return fmt.Errorf("%w: %s", errStaticDirNotFound, cfg.StaticDir)
		}
		cfg.StaticDir = dir
	}
	if err := device.Check(cfg.CUDADevice); err != nil {
		return err
	}
	arch, err := archive.Load(cfg.ArchivePath, archive.Options{WeightsFile: cfg.WeightsFile, Overrides: cfg.Overrides})
	if err != nil {
		return fmt.Errorf("load archive: %w", err)
	}
	defer func() { _ = arch.Close() }()
	pred, err := reg.FromArchive(arch, cfg.Predictor, cfg.CUDADevice)
	if err != nil {
		return err
	}

	predictions, stopPredictions := context.WithCancel(context.Background())
	defer stopPredictions()
	sanitizer := sanitize.Chain(
		sanitize.KeepKeys(cfg.KeepOutputKey...),
		sanitize.DropKeys(cfg.DropOutputKey...),
	)
	handler := httpapi.NewMux(pred, httpapi.Options{
		Title:        cfg.Title,
		FieldNames:   cfg.FieldNames,
		StaticDir:    cfg.StaticDir,
		Sanitizer:    sanitizer,
		Logger:       &logger,
		MaxBodyBytes: cfg.MaxBodyBytes,
		BaseContext:  predictions,
	})
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info().
		Str("predictor", cfg.Predictor).
		Str("archive", cfg.ArchivePath).
		Msgf("Model loaded, serving demo on http://%s", ln.Addr())
	if ready != nil {
		ready(ln.Addr())
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	logger.Info().Dur("timeout", shutdownTimeout).Msg("shutting down, draining in-flight requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	giveUp := time.AfterFunc(shutdownTimeout-shutdownGrace, stopPredictions)
	defer giveUp.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	logger.Info().Msg("server stopped")
	return nil
}
