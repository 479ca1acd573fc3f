// Command pluginhost runs the plugin framework core: event bus, lifecycle
// manager, dependency resolver, installer, and introspection server.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sssolid/qorzen-sub001/internal/config"
	"github.com/sssolid/qorzen-sub001/internal/depgraph"
	"github.com/sssolid/qorzen-sub001/internal/event"
	"github.com/sssolid/qorzen-sub001/internal/host"
	"github.com/sssolid/qorzen-sub001/internal/installer"
	"github.com/sssolid/qorzen-sub001/internal/lifecycle"
	"github.com/sssolid/qorzen-sub001/internal/mainthread"
	"github.com/sssolid/qorzen-sub001/internal/repository"
	"github.com/sssolid/qorzen-sub001/internal/security"
	"github.com/sssolid/qorzen-sub001/internal/server"
	"github.com/sssolid/qorzen-sub001/internal/store"
	"github.com/sssolid/qorzen-sub001/internal/vault"
	"github.com/sssolid/qorzen-sub001/internal/verify"
	"github.com/sssolid/qorzen-sub001/internal/ws"
)

const coreVersion = "1.0.0"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(coreVersion)
		return
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(coreVersion)
		os.Exit(0)
	}

	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("plugin host starting", zap.String("version", coreVersion))
	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded", zap.String("component", "config"), zap.String("source", f))
	} else {
		logger.Warn("no configuration file found, using defaults", zap.String("component", "config"))
	}

	dbPath := viperCfg.GetString("database.dsn")
	if dbPath == "" {
		dbPath = "plugins.db"
	}
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("database initialized", zap.String("component", "database"), zap.String("path", dbPath))

	if err := db.CheckVersion(context.Background(), coreVersion); err != nil {
		logger.Fatal("database version check failed", zap.Error(err), zap.String("binary_version", coreVersion))
	}

	mt := mainthread.New(64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mt.Run(ctx)

	busCfg := event.Config{
		MaxQueueSize:    viperCfg.GetInt("event_bus_manager.max_queue_size"),
		PublishTimeout:  time.Duration(viperCfg.GetFloat64("event_bus_manager.publish_timeout") * float64(time.Second)),
		ThreadPoolSize:  viperCfg.GetInt("event_bus_manager.thread_pool_size"),
	}
	bus := event.NewBus(logger.Named("event"), busCfg, mt)
	if err := bus.Start(); err != nil {
		logger.Fatal("failed to start event bus", zap.Error(err))
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = bus.Shutdown(shutdownCtx)
	}()
	logger.Info("event bus started", zap.String("component", "event"))

	lc := lifecycle.New(logger.Named("lifecycle"), mt)
	resolver := depgraph.NewResolver(logger.Named("depgraph"))

	signingKey := loadOrGenerateSigningKey(viperCfg, logger)
	defer vault.ZeroBytes(signingKey)
	verifier := verify.New(signingKey, viperCfg.GetString("plugins.verification_issuer"))

	pluginsDir := viperCfg.GetString("plugins.dir")
	in := installer.New(logger.Named("installer"), db, resolver, lc, verifier, pluginsDir, coreVersion)

	repoMgr := repository.NewManager()
	if url := viperCfg.GetString("repository.default.url"); url != "" {
		defaultRepo := repository.NewHTTPRepository(repository.Config{
			Name:    "default",
			BaseURL: url,
			APIKey:  viperCfg.GetString("repository.default.api_key"),
		})
		repoMgr.Add("default", defaultRepo)
		in.AddRepository("default", defaultRepo)
	}

	addr := fmt.Sprintf("%s:%d", viperCfg.GetString("server.host"), viperCfg.GetInt("server.port"))
	loggerFactory := config.NewZapLoggerFactory(logger)

	srv := server.New(addr, db, lc, logger.Named("server"), nil, viperCfg.GetBool("server.dev_mode"))

	// wsHub/wsRelay are the UI Integration transport: plugin UI mutations
	// (menus, toolbars, dock widgets, pages) broadcast to connected browser
	// shells over WebSocket, and a shell's user actions relay back into the
	// plugin's registered callbacks.
	wsHub := ws.NewHub(logger.Named("ws"))
	wsRelay := ws.NewRelay(wsHub, logger.Named("ws"))
	clientTokens := security.NewClientTokenValidator(signingKey)
	wsHandler := ws.NewHandler(clientTokens, bus, wsHub, wsRelay, logger.Named("ws"))
	wsHandler.RegisterRoutes(srv.Mux())
	logger.Info("websocket UI transport mounted", zap.String("path", "/api/v1/ws/events"))

	// hostBuilder mints a Host for each plugin once it is Discovered and
	// ready for Initialize; an embedding application registers its plugin
	// factories on in (installer.RegisterFactory) before calling Install,
	// then uses hostBuilder.ForPlugin + lc.Initialize to bring it up.
	hostBuilder := &host.Builder{
		Config:    cfg,
		Loggers:   loggerFactory,
		Bus:       bus,
		Resolver:  lc,
		Database:  db,
		APIServer: srv,
		UI:        wsRelay,
		DataDir:   pluginsDir,
	}
	logger.Info("host builder ready", zap.String("plugins_dir", hostBuilder.DataDir))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()
	logger.Info("introspection server listening", zap.String("addr", addr))

	order, err := in.GetLoadingOrder(context.Background())
	if err != nil {
		logger.Warn("failed to compute plugin loading order", zap.Error(err))
	} else {
		logger.Info("plugin loading order computed", zap.Strings("order", order))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during HTTP server shutdown", zap.Error(err))
	}
	logger.Info("plugin host stopped")
}

// loadOrGenerateSigningKey resolves the manifest-signature secret. When
// plugins.signing_key_file and QORZEN_SIGNING_PASSPHRASE are both set, the
// key is kept sealed at rest behind a passphrase-derived key-encryption-key
// (internal/security.SigningKeyProtector) rather than sitting on disk in the
// clear: an existing sealed file is unsealed, or a freshly generated key is
// sealed and written to it. With no sealed-key file configured, it falls
// back to reading plugins.signing_secret directly or generating an ephemeral
// key that will not survive a restart.
func loadOrGenerateSigningKey(v interface{ GetString(string) string }, logger *zap.Logger) []byte {
	keyFile := v.GetString("plugins.signing_key_file")
	passphrase := os.Getenv("QORZEN_SIGNING_PASSPHRASE")

	if keyFile != "" && passphrase != "" {
		if data, err := os.ReadFile(keyFile); err == nil {
			var protector security.SigningKeyProtector
			if err := json.Unmarshal(data, &protector); err != nil {
				logger.Fatal("sealed signing key file is corrupt", zap.String("path", keyFile), zap.Error(err))
			}
			key, err := protector.Unseal(passphrase)
			if err != nil {
				logger.Fatal("failed to unseal signing key", zap.String("path", keyFile), zap.Error(err))
			}
			logger.Info("unsealed manifest signing key", zap.String("path", keyFile))
			return key
		}

		key := generateSigningKey(logger)
		protector, err := security.Seal(passphrase, key)
		if err != nil {
			logger.Fatal("failed to seal signing key", zap.Error(err))
		}
		data, err := json.Marshal(protector)
		if err != nil {
			logger.Fatal("failed to marshal sealed signing key", zap.Error(err))
		}
		if err := os.WriteFile(keyFile, data, 0o600); err != nil {
			logger.Fatal("failed to write sealed signing key", zap.String("path", keyFile), zap.Error(err))
		}
		logger.Info("generated and sealed a new manifest signing key", zap.String("path", keyFile))
		return key
	}

	if secret := v.GetString("plugins.signing_secret"); secret != "" {
		return []byte(secret)
	}

	logger.Warn("using auto-generated manifest signing secret (set plugins.signing_key_file plus QORZEN_SIGNING_PASSPHRASE, or plugins.signing_secret, to persist verification across restarts)")
	return generateSigningKey(logger)
}

func generateSigningKey(logger *zap.Logger) []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		logger.Fatal("failed to generate signing secret", zap.Error(err))
	}
	return []byte(hex.EncodeToString(b))
}
