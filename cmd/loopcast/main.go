//go:build linux

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edirooss/loopcast/internal/changelog"
	"github.com/edirooss/loopcast/internal/config"
	"github.com/edirooss/loopcast/internal/http/handler"
	mw "github.com/edirooss/loopcast/internal/http/middleware"
	"github.com/edirooss/loopcast/internal/infrastructure/configstore"
	"github.com/edirooss/loopcast/internal/infrastructure/processmgr"
	"github.com/edirooss/loopcast/internal/metrics"
	"github.com/edirooss/loopcast/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 2 << 30
	maxUploads    = 2
)

func main() {
	configPath := parseFlags()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Create Zap logger
	log := buildLogger(cfg.IsDev())
	defer log.Sync()
	log = log.Named("main")

	if err := cfg.EnsureDirs(); err != nil {
		log.Fatal("data directory setup failed", zap.String("data_dir", cfg.DataDir), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Configuration store
	var (
		store     configstore.Store
		fileStore *configstore.FileStore
	)
	switch cfg.Store {
	case config.StoreRedis:
		rc := configstore.NewRedisClient(log, cfg.RedisAddress, cfg.RedisDB)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			log.Fatal("redis unreachable", zap.String("addr", cfg.RedisAddress), zap.Error(err))
		}
		store = configstore.NewRedisStore(log, rc)
	default:
		fileStore = configstore.NewFileStore(log, cfg.ConfigDir())
		if err := fileStore.Seed(ctx); err != nil {
			log.Fatal("seeding config files failed", zap.String("dir", cfg.ConfigDir()), zap.Error(err))
		}
		store = fileStore
	}

	lib := configstore.NewLibrary(log, cfg.MediaDir())
	changes := changelog.New(log, cfg.ChangelogPath())
	settingssvc := service.NewSettingsService(log, store, changes)
	mediasvc := service.NewMediaService(log, store, lib, changes)

	// Stream log sink, optionally mirrored to disk
	var mirror io.Writer
	if p := cfg.StreamLogPath(); p != "" {
		f, err := processmgr.OpenMirror(p)
		if err != nil {
			log.Warn("stream log mirror disabled", zap.String("path", p), zap.Error(err))
		} else {
			defer f.Close()
			mirror = f
		}
	}
	streamLog := processmgr.NewLogBuffer(cfg.LogLines, mirror)

	m := metrics.New()
	sup := service.NewSupervisor(log, service.StreamConfig{SettingsService: settingssvc, MediaService: mediasvc}, streamLog,
		service.SupervisorConfig{
			Binary:       cfg.FFmpegPath,
			ManifestPath: cfg.ManifestPath(),
			CheckMedia:   cfg.CheckMedia,
			StopTimeout:  cfg.StopTimeout,
			ReapOrphans:  cfg.ReapOrphans,
			Restart: service.RestartPolicy{
				Delay:       cfg.RestartDelay,
				MaxRestarts: cfg.MaxRestarts,
				Backoff:     cfg.RestartBackoff,
			},
		},
		service.WithRecorder(m),
	)
	streamLog.Append("Stream engine initialized")

	// Hand edits to settings.json/media.json take effect on a running stream
	if cfg.WatchConfig && fileStore != nil {
		w, err := configstore.NewWatcher(log, fileStore.Dir(), []string{configstore.SettingsFile, configstore.MediaFile}, func(name string) {
			if !sup.Status().Streaming() {
				return
			}
			log.Info("config changed while streaming; restarting", zap.String("file", name))
			rctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := sup.Restart(rctx); err != nil {
				log.Error("restart after config change failed", zap.Error(err))
			}
		})
		if err != nil {
			log.Warn("config watcher disabled", zap.Error(err))
		} else {
			go w.Run(ctx)
			defer func() { w.Close(); <-w.Done() }()
		}
	}

	// Create Gin router
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = zap.NewStdLog(log.Named("gin")).Writer()
	r := gin.New()
	{
		r.Use(gin.Recovery())
		r.Use(mw.RequestID())

		if cfg.IsDev() { // local dashboard dev server
			r.Use(cors.New(cors.Config{
				AllowOrigins:  []string{"http://localhost:5173", "http://localhost:3000", "http://127.0.0.1:3000"},
				AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowHeaders:  []string{mw.RequestIDHeader, "Content-Type"},
				ExposeHeaders: []string{mw.RequestIDHeader},
				MaxAge:        12 * time.Hour,
			}))
		} else { // behind a TLS-terminating proxy
			r.SetTrustedProxies([]string{"127.0.0.1"})
			r.Use(secure.New(secure.Config{
				SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
				FrameDeny:          true,
				ContentTypeNosniff: true,
			}))
		}

		r.Use(metrics.RequestMiddleware(m))
		r.Use(accessLog(log.Named("http")))
	}

	// Register route handlers
	{
		r.GET("/api/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
		r.GET("/metrics", gin.WrapH(m.Handler(func() {
			st := sup.Status()
			m.SetState(string(st.State))
			m.SetUptime(st.UptimeSeconds)
		})))

		api := r.Group("/api", mw.MaxBodySize(maxJSONBody))
		{
			streamhndlr := handler.NewStreamHandler(log, sup)
			api.POST("/stream/start", streamhndlr.Start)
			api.POST("/stream/stop", streamhndlr.Stop)
			api.POST("/stream/restart", streamhndlr.Restart)
			api.GET("/stream/status", streamhndlr.Status)
			api.GET("/stream/logs", streamhndlr.Logs)
		}
		{
			settingshndlr := handler.NewSettingsHandler(log, settingssvc)
			api.GET("/settings", settingshndlr.Get)
			api.POST("/settings", settingshndlr.Save)
		}
		{
			mediahndlr := handler.NewMediaHandler(log, mediasvc)
			api.GET("/media", mediahndlr.List)
			api.POST("/media/selection", mediahndlr.SaveSelection)
			api.POST("/media/loop", mediahndlr.SetLoop)
			api.DELETE("/media", mediahndlr.Delete)

			// uploads bypass the JSON body cap
			r.POST("/api/media/upload", mw.LimitConcurrentRequests(maxUploads), mw.MaxBodySize(maxUploadBody), mediahndlr.Upload)
		}
		{
			changeloghndlr := handler.NewChangelogHandler(log, changes)
			api.GET("/changelog", changeloghndlr.List)
			api.POST("/changelog", changeloghndlr.Add)
		}
	}

	httpsrv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           r,
		ReadHeaderTimeout: 2 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info("running HTTP server", zap.String("addr", httpsrv.Addr), zap.String("store", cfg.Store))
		if err := httpsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpsrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := sup.Shutdown(shutdownCtx); err != nil {
		log.Warn("encoder shutdown", zap.Error(err))
	}
	log.Info("server closed")
}

// parseFlags handles -v/--version (print build metadata and exit) and
// returns the -config path.
func parseFlags() string {
	v := flag.Bool("v", false, "print version and exit")
	flag.BoolVar(v, "version", false, "print version and exit")
	path := flag.String("config", "", "config file (default $LOOPCAST_CONFIG or "+config.DefaultPath+")")
	flag.Parse()

	if *v {
		fmt.Printf("loopcast %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildDate)
		os.Exit(0)
	}
	return *path
}

// accessLog is a Gin middleware that records HTTP request/response details with Zap after handling.
func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("request_id", mw.GetRequestID(c)),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		if err := errors.Join(errs...); err != nil {
			fields = append(fields, zap.Error(err))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		case route == "/metrics" || route == "/api/stream/status" || route == "/api/stream/logs":
			log.Debug("request", fields...) // polled by the dashboard
		default:
			log.Info("request", fields...)
		}
	}
}

func buildLogger(dev bool) *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	if dev {
		logConfig.Level.SetLevel(zap.DebugLevel)
	} else {
		logConfig.Level.SetLevel(zap.InfoLevel)
	}
	return zap.Must(logConfig.Build())
}
