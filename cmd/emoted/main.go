package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/rcarmo/go-emote/internal/assets"
	"github.com/rcarmo/go-emote/internal/config"
	"github.com/rcarmo/go-emote/internal/display"
	"github.com/rcarmo/go-emote/internal/logging"
	"github.com/rcarmo/go-emote/internal/panel"
	"github.com/rcarmo/go-emote/internal/playback"
	"github.com/rcarmo/go-emote/internal/preview"
	"github.com/rcarmo/go-emote/web"
)

const (
	appName    = "go-emote"
	appVersion = "v0.4.0"
)

type cliArgs struct {
	configFile string
	assets     string
	logLevel   string
	emotion    string
	host       string
	port       string
	spi        bool
	spiPort    string
	dcPin      string
	preview    bool
}

func parseFlags(argv []string) (cliArgs, string, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configFlag := fs.String("config", "", "YAML board profile")
	assetsFlag := fs.String("assets", "", "asset pack path")
	logLevelFlag := fs.String("log-level", "", "log level (debug, info, warn, error)")
	emotionFlag := fs.String("emotion", "", "emotion shown at start")
	hostFlag := fs.String("host", "", "preview server host")
	portFlag := fs.String("port", "", "preview server port")
	spiFlag := fs.Bool("spi", false, "drive an SPI panel")
	spiPortFlag := fs.String("spi-port", "", "SPI port name")
	dcPinFlag := fs.String("dc-pin", "", "panel data/command GPIO")
	previewFlag := fs.Bool("preview", false, "serve the websocket preview")
	helpFlag := fs.Bool("help", false, "show help")
	versionFlag := fs.Bool("version", false, "show version")

	if err := fs.Parse(argv); err != nil {
		return cliArgs{}, "", err
	}

	if *helpFlag {
		return cliArgs{}, "help", nil
	}
	if *versionFlag {
		return cliArgs{}, "version", nil
	}

	return cliArgs{
		configFile: strings.TrimSpace(*configFlag),
		assets:     strings.TrimSpace(*assetsFlag),
		logLevel:   strings.TrimSpace(*logLevelFlag),
		emotion:    strings.TrimSpace(*emotionFlag),
		host:       strings.TrimSpace(*hostFlag),
		port:       strings.TrimSpace(*portFlag),
		spi:        *spiFlag,
		spiPort:    strings.TrimSpace(*spiPortFlag),
		dcPin:      strings.TrimSpace(*dcPinFlag),
		preview:    *previewFlag,
	}, "", nil
}

func main() {
	args, action, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		showHelp()
		os.Exit(2)
	}

	switch action {
	case "help":
		showHelp()
		return
	case "version":
		showVersion()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, args); err != nil {
		logging.Error("%v", err)
		os.Exit(1)
	}
}

func loadOptions(args cliArgs) config.LoadOptions {
	return config.LoadOptions{
		ConfigFile:     args.configFile,
		AssetPack:      args.assets,
		DefaultEmotion: args.emotion,
		LogLevel:       args.logLevel,
		Host:           args.host,
		Port:           args.port,
		EnablePreview:  args.preview,
		EnableSPI:      args.spi,
		SPIPort:        args.spiPort,
		SPIDCPin:       args.dcPin,
	}
}

func setupLogging(cfg config.LoggingConfig) {
	logging.SetLevelFromString(cfg.Level)
	logging.Default().SetFormatFromString(cfg.Format)
}

func loadAssets(path string) (*assets.Memory, error) {
	if path == "" {
		logging.Warn("no asset pack configured, playback stays idle")
		return assets.NewMemory(), nil
	}
	store, err := assets.OpenPack(path)
	if err != nil {
		return nil, err
	}
	logging.Info("loaded %d assets from %s", store.Len(), path)
	return store, nil
}

// outputs is every panel the compositor streams to, plus what must be
// released on shutdown.
type outputs struct {
	panel   panel.Panel
	hub     *preview.Hub
	closers []io.Closer
}

func (o *outputs) Close() {
	if o.hub != nil {
		o.hub.Close()
	}
	for _, c := range o.closers {
		if err := c.Close(); err != nil {
			logging.Warn("close: %v", err)
		}
	}
}

func openOutputs(cfg *config.Config) (*outputs, error) {
	var o outputs
	var panels panel.Multi

	if cfg.Preview.Enabled {
		o.hub = preview.NewHub(preview.Options{
			AllowedOrigins: cfg.Preview.AllowedOrigins,
			MaxClients:     cfg.Preview.MaxClients,
		})
		fb := panel.NewFramebuffer(cfg.Display.Width, cfg.Display.Height)
		fb.OnFrame = o.hub.Publish
		panels = append(panels, fb)
	}

	if cfg.Panel.SPIEnabled {
		spi, closer, err := panel.OpenSPI(panel.HostConfig{
			Port:     cfg.Panel.SPIPort,
			DCPin:    cfg.Panel.DCPin,
			ResetPin: cfg.Panel.ResetPin,
			SpeedHz:  cfg.Panel.SpeedHz,
			Panel: panel.SPIConfig{
				Width:     cfg.Display.Width,
				Height:    cfg.Display.Height,
				XOffset:   cfg.Panel.XOffset,
				YOffset:   cfg.Panel.YOffset,
				MemAccess: byte(cfg.Panel.MemAccess),
				SwapBytes: cfg.Panel.SwapBytes,
			},
		})
		if err != nil {
			o.Close()
			return nil, pkgerrors.Wrap(err, "open spi panel")
		}
		o.closers = append(o.closers, closer)
		if err := spi.Init(); err != nil {
			o.Close()
			return nil, pkgerrors.Wrap(err, "init spi panel")
		}
		panels = append(panels, spi)
	}

	switch len(panels) {
	case 0:
		logging.Warn("no panel or preview enabled, frames are discarded")
		o.panel = panel.NewFramebuffer(cfg.Display.Width, cfg.Display.Height)
	case 1:
		o.panel = panels[0]
	default:
		o.panel = panels
	}
	return &o, nil
}

func createServer(cfg *config.Config, hub *preview.Hub) (*http.Server, error) {
	static, err := web.DistFS()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "preview page")
	}
	addr := net.JoinHostPort(cfg.Preview.Host, cfg.Preview.Port)
	return preview.NewServer(addr, hub, static, logging.Named("preview")), nil
}

func run(ctx context.Context, args cliArgs) error {
	cfg, err := config.LoadWithOverrides(loadOptions(args))
	if err != nil {
		return pkgerrors.Wrap(err, "load config")
	}
	setupLogging(cfg.Logging)

	store, err := loadAssets(cfg.Assets.Pack)
	if err != nil {
		return err
	}

	out, err := openOutputs(cfg)
	if err != nil {
		return err
	}
	defer out.Close()

	ctrl, err := display.New(display.Options{
		Config: cfg,
		Store:  store,
		Panel:  out.panel,
	})
	if err != nil {
		return err
	}
	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	defer ctrl.Close()

	serverErr := make(chan error, 1)
	var server *http.Server
	if out.hub != nil {
		server, err = createServer(cfg, out.hub)
		if err != nil {
			return err
		}
		go func() {
			logging.Info("preview on http://%s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return pkgerrors.Wrap(err, "preview server")
	}

	logging.Info("shutting down")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Warn("preview shutdown: %v", err)
		}
	}
	return nil
}

func showHelp() {
	fmt.Println(appName)
	fmt.Println("USAGE: emoted [options]")
	fmt.Println("OPTIONS:")
	fmt.Println("  -config      YAML board profile")
	fmt.Println("  -assets      Asset pack (.epak) to play from")
	fmt.Println("  -emotion     Emotion shown at start (default neutral)")
	fmt.Println("  -log-level   Set log level (debug, info, warn, error)")
	fmt.Println("  -spi         Drive an SPI panel")
	fmt.Println("  -spi-port    SPI port name (default SPI0.0)")
	fmt.Println("  -dc-pin      Panel data/command GPIO (default GPIO25)")
	fmt.Println("  -preview     Serve the websocket preview")
	fmt.Println("  -host        Preview listen host (default 127.0.0.1)")
	fmt.Println("  -port        Preview listen port (default 8080)")
	fmt.Println("  -version     Show version information")
	fmt.Println("  -help        Show this help message")
	fmt.Println("ENVIRONMENT VARIABLES: EMOTE_CONFIG, ASSETS_PACK, DISPLAY_WIDTH, DISPLAY_HEIGHT, SPRITE_FILTER, PREVIEW_ENABLED, LOG_LEVEL")
	fmt.Printf("EMOTIONS: %s\n", strings.Join(playback.EmotionNames(), ", "))
	fmt.Println("EXAMPLES: emoted -assets emotes.epak -preview -port 8080")
}

func showVersion() {
	fmt.Printf("%s %s\n", appName, appVersion)
	fmt.Println("Built with Go", time.Now().Year())
	fmt.Println("Format: AAF (RLE, Huffman, JPEG blocks)")
}
