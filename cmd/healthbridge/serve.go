package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/healthbridge/healthbridge/internal/app"
	"github.com/healthbridge/healthbridge/internal/config"
	"github.com/healthbridge/healthbridge/internal/gesture"
	"github.com/healthbridge/healthbridge/internal/publish"
	"github.com/healthbridge/healthbridge/internal/server"
	"github.com/healthbridge/healthbridge/internal/store"
	"github.com/healthbridge/healthbridge/internal/translate"
	"github.com/healthbridge/healthbridge/internal/tray"
)

const shutdownTimeout = 10 * time.Second

var (
	serveCamera bool
	serveTray   bool
	serveAddr   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, optionally, the live camera pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("camera") {
			cfg.Camera.Enabled = serveCamera
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		return runServe(cmd.Context(), cfg, serveTray)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveCamera, "camera", false, "start the live camera pipeline")
	serveCmd.Flags().BoolVar(&serveTray, "tray", false, "show the menu bar controls")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cfg *config.Config, withTray bool) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	translator, err := newTranslator(ctx, cfg)
	if err != nil {
		return err
	}

	var publisher app.Publisher
	if cfg.Redis.Addr != "" {
		p, err := publish.New(cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer p.Close()
		publisher = p
		log.Info().Str("addr", cfg.Redis.Addr).Str("stream", p.Stream()).Msg("Publishing translations to redis")
	}

	selection, err := cfg.SelectionDefault()
	if err != nil {
		return err
	}
	policy, err := translate.ParsePolicy(cfg.Translate.Policy)
	if err != nil {
		return err
	}

	hub := server.NewHub()
	a := app.New(app.Config{
		Store:              st,
		Translator:         translator,
		DetectorConfig:     cfg.Detector,
		CameraConfig:       cfg.Camera.Config,
		Segment:            cfg.Segment,
		Confidence:         cfg.Confidence,
		Selection:          selection,
		Policy:             policy,
		TranslateTimeout:   cfg.Translate.Timeout,
		HistoryLimit:       cfg.Store.HistoryLimit,
		HookDir:            cfg.Hooks.Dir,
		HookTimeout:        cfg.Hooks.Timeout,
		LowConfidenceScore: cfg.Hooks.LowConfidenceScore,
		Events:             hub,
		Publisher:          publisher,
	})
	defer a.Close()

	if err := a.DiscoverHooks(); err != nil {
		log.Warn().Err(err).Msg("Failed to discover hooks")
	}

	if cfg.Camera.Enabled {
		if err := a.Start(); err != nil {
			// The API stays up; /api/health reports the fault.
			log.Error().Err(err).Msg("Live pipeline failed to start")
		}
	}

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir(cfg.DataDir)
	}
	if staticDir != "" {
		log.Info().Str("dir", staticDir).Msg("Serving static files")
	}

	srvCfg := server.Config{
		StaticDir:     staticDir,
		Store:         st,
		Translator:    a,
		Confidence:    cfg.Confidence,
		Selection:     a.SelectionConfig,
		DefaultPreset: gesture.Preset(cfg.Selection.Preset),
		Events:        hub,
		Pipeline:      a,
	}
	if cfg.Camera.Enabled {
		srvCfg.Preview = a
	}
	httpServer := server.New(srvCfg).HTTPServer(cfg.Server.Addr)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if withTray {
		ctx = runTray(ctx, a, cfg.Server.Addr)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newTranslator(ctx context.Context, cfg *config.Config) (translate.Translator, error) {
	switch cfg.Translate.Provider {
	case config.ProviderStub:
		log.Warn().Str("text", cfg.Translate.StubText).Msg("Using stub translator")
		return translate.NewStubTranslator(cfg.Translate.StubText), nil
	default:
		t, err := translate.NewGeminiTranslator(ctx, cfg.Translate.Gemini)
		if err != nil {
			return nil, fmt.Errorf("failed to create translator: %w", err)
		}
		return t, nil
	}
}

// runTray shows the menu bar controls. systray owns the main thread until
// Quit, so the returned context is cancelled when the tray exits.
func runTray(ctx context.Context, a *app.App, addr string) context.Context {
	ctx, cancel := context.WithCancel(ctx)

	t := tray.New()
	t.SetEnabled(a.Running())
	t.OnToggle(a.SetEnabled)
	t.OnSettings(func() {
		openBrowser(settingsURL(addr))
	})
	t.OnQuit(cancel)
	a.OnResult(t.SetLast)

	go func() {
		<-ctx.Done()
		// SIGINT while the tray owns the main thread.
		t.Quit()
	}()

	t.Run()
	cancel()
	return ctx
}

func settingsURL(addr string) string {
	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host + "/"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Failed to open browser")
	}
}
