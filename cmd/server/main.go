package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-photostrip-server/config"
	"go-photostrip-server/internal/camera"
	"go-photostrip-server/internal/compositing"
	"go-photostrip-server/internal/filter"
	"go-photostrip-server/internal/frame"
	"go-photostrip-server/internal/loader"
	"go-photostrip-server/internal/photo"
	"go-photostrip-server/internal/relay"
	"go-photostrip-server/internal/server"
	"go-photostrip-server/internal/session"
	"go-photostrip-server/internal/strip"
	"go-photostrip-server/logger"
)

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	flag.Parse()

	fmt.Println("================================================================================")
	fmt.Println("📸 Photo Strip Server")
	fmt.Println("================================================================================")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	log.Printf("✅ Configuration loaded from %s", *cfgPath)
	log.Printf("   Camera: %s (%s facing)", cfg.Camera.Device, cfg.Camera.FacingMode)
	log.Printf("   JPEG quality: strip %d, capture %d", cfg.Output.JPEGQuality, cfg.Output.CaptureQuality)

	// Frame layouts
	log.Println("\n🖼️  Loading frame layouts...")
	frames, err := frame.LoadRegistry(cfg.FramesFile)
	if err != nil {
		log.Fatalf("❌ Failed to load frames: %v", err)
	}
	log.Printf("✅ %d frame layouts available", len(frames.List()))

	// Rendering pipeline
	engine := filter.NewEngine(filter.GiftBackend{Serial: cfg.Filter.Serial}, filter.Options{
		Timeout:      ms(cfg.Filter.TimeoutMs),
		PollInterval: ms(cfg.Filter.PollIntervalMs),
	})
	fonts := compositing.NewFontBook(cfg.Fonts.Files)
	compositor := compositing.NewCompositor(engine, fonts, cfg.Output.JPEGQuality)
	log.Printf("✅ Compositor initialized (%d filters, %d fonts)", len(filter.Names()), len(fonts.IDs()))
	ldr := loader.New(cfg.Render.LoaderWorkers)

	var bufferedLog *logger.BufferedLogger
	if cfg.Logging.BufferedLogging {
		bufferedLog = logger.NewBufferedLogger(logger.Options{
			AutoFlush:     cfg.Logging.AutoFlush,
			FlushInterval: ms(cfg.Logging.FlushIntervalMs),
			SampleRate:    cfg.Logging.SampleRate,
		})
		defer bufferedLog.Stop()
		log.Printf("✅ Buffered logging enabled (sample_rate=%d, auto_flush=%v)",
			cfg.Logging.SampleRate, cfg.Logging.AutoFlush)
	}

	// Camera and capture session
	dev, err := newDevice(cfg.Camera)
	if err != nil {
		log.Fatalf("❌ Failed to configure camera: %v", err)
	}
	mode, _ := photo.ParseFacingMode(cfg.Camera.FacingMode)
	ctl := session.NewController(dev, session.Options{
		Timings: session.Timings{
			ReadyGrace:     ms(cfg.Session.ReadyGraceMs),
			CaptureDelay:   ms(cfg.Session.CaptureDelayMs),
			ReacquireDelay: ms(cfg.Session.ReacquireDelayMs),
			Tick:           ms(cfg.Session.TickMs),
		},
		FacingMode:     mode,
		JPEGQuality:    cfg.Output.CaptureQuality,
		CaptureTimeout: ms(cfg.Session.CaptureTimeoutMs),
	})
	defer ctl.Close()
	log.Printf("✅ Capture session ready (%s camera)", cfg.Camera.Device)

	deps := server.Deps{
		Frames:     frames,
		Session:    ctl,
		Compositor: compositor,
		Loader:     ldr,
		Render: strip.Options{
			Debounce:    ms(cfg.Render.DebounceMs),
			NoticeTTL:   ms(cfg.Render.NoticeTTLMs),
			StatsWindow: cfg.Render.StatsWindow,
		},
		Logger:         bufferedLog,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}

	if cfg.Relay.URL != "" {
		rc := relay.NewHTTPClient(relay.Options{
			BaseURL: cfg.Relay.URL,
			Timeout: time.Duration(cfg.Relay.TimeoutSec) * time.Second,
			Expiry:  time.Duration(cfg.Relay.ExpiryMin) * time.Minute,
		})
		deps.Uploader = rc
		deps.Messenger = rc
		log.Printf("✅ Relay enabled: %s", cfg.Relay.URL)
	} else {
		log.Println("⚠️  No relay configured, sharing and contact are disabled")
	}

	// gRPC health
	if cfg.Server.GRPCPort != "" {
		deps.Health = server.NewHealth(cfg.Server)
		lis, err := net.Listen("tcp", config.Addr(cfg.Server.GRPCPort))
		if err != nil {
			log.Fatalf("❌ Failed to listen for health checks: %v", err)
		}
		go func() {
			if err := deps.Health.Serve(lis); err != nil {
				log.Printf("❌ Health server stopped: %v", err)
			}
		}()
		log.Printf("✅ gRPC health service on %s", config.Addr(cfg.Server.GRPCPort))
	}

	srv := server.New(deps)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go srv.Run(ctx)

	httpServer := &http.Server{
		Addr:              config.Addr(cfg.Server.HTTPPort),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("\n🌐 Photo strip server listening on %s\n", httpServer.Addr)
	fmt.Println("   Endpoints:")
	fmt.Println("      • REST API under /api")
	fmt.Println("      • Live session events on /ws")
	fmt.Println("      • Strip download at /api/strip.jpg")
	fmt.Println("\n✅ Ready to accept connections!")
	fmt.Println("================================================================================")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("❌ Failed to serve: %v", err)
		}
	case <-ctx.Done():
	}

	log.Println("\n🛑 Shutting down...")
	if deps.Health != nil {
		deps.Health.Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  HTTP shutdown: %v", err)
	}
	srv.Close()
	log.Println("✅ Server stopped")
}

// newDevice builds the configured camera backend.
func newDevice(cfg config.CameraConfig) (camera.Device, error) {
	switch cfg.Device {
	case "testpattern":
		return camera.TestPatternDevice{}, nil
	case "v4l2":
		paths, err := byFacingMode(cfg.V4L2)
		if err != nil {
			return nil, err
		}
		return &camera.V4L2Device{Paths: paths, Buffers: cfg.Buffers, TimeoutSec: cfg.TimeoutSec}, nil
	case "mjpeg":
		sources, err := byFacingMode(cfg.MJPEG)
		if err != nil {
			return nil, err
		}
		return &camera.MJPEGDevice{Sources: sources, StaleAfter: ms(cfg.StaleMs)}, nil
	}
	return nil, fmt.Errorf("unknown camera device %q", cfg.Device)
}

func byFacingMode(m map[string]string) (map[photo.FacingMode]string, error) {
	out := make(map[photo.FacingMode]string, len(m))
	for k, v := range m {
		mode, err := photo.ParseFacingMode(k)
		if err != nil {
			return nil, err
		}
		out[mode] = v
	}
	return out, nil
}
