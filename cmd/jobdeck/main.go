package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"jobdeck/internal/config"
	"jobdeck/internal/events"
	"jobdeck/internal/extract"
	"jobdeck/internal/httpapi"
	"jobdeck/internal/notify"
	"jobdeck/internal/pipeline"
	"jobdeck/internal/scheduler"
	"jobdeck/internal/secrets"
	"jobdeck/internal/store"
)

// configExtractor builds the chat extractor from the live config on every
// call, so PUT /config changes to endpoint/model/timeout apply to the next
// run without a restart.
type configExtractor struct {
	cfgVal *atomic.Value // config.Config
}

func (e *configExtractor) Extract(ctx context.Context, in extract.EmailContext) ([]extract.Candidate, error) {
	cfg := e.cfgVal.Load().(config.Config)
	impl := &extract.ChatExtractor{
		Endpoint: cfg.Extractor.Endpoint,
		Model:    cfg.Extractor.Model,
		APIKey:   os.Getenv(cfg.Extractor.APIKeyEnv),
		Source:   "email",
		Timeout:  time.Duration(cfg.Extractor.TimeoutSeconds) * time.Second,
	}
	return impl.Extract(ctx, in)
}

// configNotifier reads the live config per notification and goes quiet when
// telegram is disabled.
type configNotifier struct {
	cfgVal *atomic.Value // config.Config
}

func (n *configNotifier) Notify(ctx context.Context, chatID string, job notify.JobSummary) error {
	cfg := n.cfgVal.Load().(config.Config)
	if !cfg.Telegram.Enabled {
		return nil
	}
	tg := &notify.Telegram{BotToken: os.Getenv(cfg.Telegram.BotTokenEnv)}
	return tg.Notify(ctx, chatID, job)
}

func main() {
	// Data dir: use env if provided, else local folder.
	dataDir := os.Getenv("JOBDECK_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatal(err)
	}

	// Single instance per data dir. Two daemons sharing one sqlite file
	// would fight over the mailbox and double-dispose messages.
	lock := flock.New(filepath.Join(dataDir, "jobdeck.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("instance lock: %v", err)
	}
	if !locked {
		log.Fatalf("another jobdeck instance is already using %s", dataDir)
	}
	defer lock.Unlock()

	userCfgPath, err := config.EnsureUserConfig(dataDir)
	if err != nil {
		log.Fatalf("config bootstrap failed: %v", err)
	}

	// Load config and keep it reloadable.
	var cfgVal atomic.Value // stores config.Config
	loadCfg := func() (config.Config, error) {
		return config.Load(userCfgPath)
	}
	cfg, err := loadCfg()
	if err != nil {
		log.Fatalf("config load failed (%s): %v", userCfgPath, err)
	}
	cfg, v := config.NormalizeAndValidate(cfg)
	for _, warn := range v.Warnings {
		log.Printf("[config] %s", warn)
	}
	if len(v.Errors) > 0 {
		log.Fatalf("config invalid (%s): %v", userCfgPath, v.Errors)
	}
	cfgVal.Store(cfg)

	dbPath := filepath.Join(dataDir, "jobdeck.db")
	db, err := store.Open(dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.SeedSystemStages(ctx, db); err != nil {
		log.Fatalf("seed stages: %v", err)
	}

	hub := events.NewHub()

	runner := &pipeline.Runner{
		DB:     db,
		CfgVal: &cfgVal,
		Connect: pipeline.DialMailbox(func(c config.Config) (string, error) {
			return secrets.GetIMAPPassword(secrets.IMAPKeyringAccount(c))
		}),
		Extractor: &configExtractor{cfgVal: &cfgVal},
		Notifier:  &configNotifier{cfgVal: &cfgVal},
		Hub:       hub,
	}

	go scheduler.Every(ctx, func() time.Duration {
		c := cfgVal.Load().(config.Config)
		return time.Duration(c.Pipeline.IntervalMinutes) * time.Minute
	}, "pipeline", func(ctx context.Context) error {
		_, err := runner.RunOnce(ctx)
		if errors.Is(err, pipeline.ErrAlreadyRunning) {
			return nil
		}
		return err
	})

	mux := httpapi.NewMux(httpapi.Deps{
		DB:          db,
		Hub:         hub,
		Runner:      runner,
		CfgVal:      &cfgVal,
		UserCfgPath: userCfgPath,
		LoadCfg:     loadCfg,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.App.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("jobdeck listening on http://%s (db=%s)", addr, dbPath)

	srv := &http.Server{
		Handler: httpapi.Chain(mux,
			httpapi.RequestID,
			httpapi.AccessLog,
			httpapi.Recover,
			httpapi.Cors,
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	log.Printf("jobdeck stopped")
}
