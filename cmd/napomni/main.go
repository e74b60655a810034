package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"napomni/internal/advisory"
	"napomni/internal/ai"
	"napomni/internal/analytics"
	"napomni/internal/api"
	"napomni/internal/calendar"
	"napomni/internal/circuitbreaker"
	"napomni/internal/config"
	"napomni/internal/leaderelection"
	"napomni/internal/lifecycle"
	"napomni/internal/metrics"
	"napomni/internal/normalizer"
	"napomni/internal/notifier"
	"napomni/internal/reconciler"
	"napomni/internal/scheduler"
	"napomni/internal/service"
	"napomni/internal/store/postgres"
	"napomni/internal/temporal"
	"napomni/internal/transport/channel"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`napomni - natural-language event and reminder engine

Usage:
  napomni <command>

Commands:
  serve      Start the resolution service, scheduler and notifier
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL              PostgreSQL connection string (required)
  WEBHOOK_URL               Notification endpoint URL (required)
  WEBHOOK_SECRET            HMAC signing secret for notifications
  REDIS_ADDR                Redis address for usage analytics (optional)
  HTTP_ADDR                 HTTP server address (default: ":8080")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")
  NOTIFIER_DRAIN_TIMEOUT    Notifier reminder drain timeout (default: "30s")
  DUEBUS_BUFFER_SIZE        Due-reminder bus buffer size (default: "100")

  SCHEDULER_MAX_WAKE        Max scheduler sleep between wakes (default: "1m")
  SCHEDULER_RETRY_INTERVAL  Retry delay after a failed fire (default: "15s")
  SWEEP_SCHEDULE            Event state sweep cron expression (default: "* * * * *")

  DEFAULT_TIMEZONE          Timezone for first-contact users (default: "Europe/Moscow")
  DEFAULT_REMINDER_OFFSETS  Fallback reminder offsets (default: "15m")
  SAME_DAY_CUTOFF           Bare-weekday same-day cutoff, e.g. "18h" (default: unset)
  DEFAULT_EVENT_DURATION    Duration when an utterance gives only a start (default: "1h")
  PAST_HORIZON              Slack behind now before a start is rejected (default: "5m")
  FUTURE_HORIZON            How far ahead a start may lie (default: "8784h")
  MAX_EVENT_DURATION        Longest allowed event span (default: "24h")
  BACKGROUND_TIMEOUT        Timeout for advisory and calendar background work (default: "30s")

  OPENAI_API_KEY            Enables voice transcription and advisory notes
  CALDAV_URL                Enables calendar mirroring
  CALDAV_USERNAME           CalDAV basic-auth user
  CALDAV_PASSWORD           CalDAV basic-auth password

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")

  RECONCILE_ENABLED         Enable stuck-reminder reconciler (default: "false")
  RECONCILE_INTERVAL        How often to scan for stuck reminders (default: "5m")
  RECONCILE_THRESHOLD       Age before a due reminder is stuck (default: "15m")
  RECONCILE_BATCH_SIZE      Max rescues per cycle (default: "100")

  LEADER_LOCK_KEY           Advisory lock key shared by all instances
  LEADER_RETRY_INTERVAL     Follower acquisition retry interval (default: "5s")
  LEADER_HEARTBEAT_INTERVAL Leader connection heartbeat (default: "2s")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Printf("napomni: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}

	store := postgres.New(db)

	var metricsSink *metrics.PrometheusSink
	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("napomni: metrics enabled (path=%s)", cfg.MetricsPath)
	} else {
		log.Println("napomni: METRICS_ENABLED not set; metrics disabled")
	}

	bus := channel.NewDueBus(cfg.DueBusBufferSize)

	sched := scheduler.New(
		scheduler.Config{
			MaxWake:       cfg.SchedulerMaxWake,
			RetryInterval: cfg.SchedulerRetryInterval,
		},
		store,
		bus,
	)
	if metricsSink != nil {
		sched = sched.WithMetrics(metricsSink)
	}

	notif := notifier.New(store, notifier.NewHTTPSender(), notifier.Endpoint{
		URL:     cfg.WebhookURL,
		Secret:  cfg.WebhookSecret,
		Timeout: cfg.WebhookTimeout,
	}).WithDrainTimeout(cfg.NotifierDrainTimeout)
	if metricsSink != nil {
		notif = notif.WithMetrics(metricsSink)
	}
	if cfg.CircuitBreakerThreshold > 0 {
		notif = notif.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
	}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		notif = notif.WithAnalytics(analytics.NewRedisSink(redisClient, analytics.DefaultConfig()))
		log.Printf("napomni: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("napomni: REDIS_ADDR not set; analytics disabled")
	}

	resolver := temporal.New(temporal.Config{
		DefaultDuration: cfg.DefaultEventDuration,
		Policy:          temporal.Policy{SameDayCutoff: cfg.SameDayCutoff},
	})

	norm := normalizer.New(normalizer.Config{
		PastHorizon:   cfg.PastHorizon,
		FutureHorizon: cfg.FutureHorizon,
		MaxDuration:   cfg.MaxEventDuration,
	})

	svc := service.New(
		service.Config{
			DefaultTimezone:   cfg.DefaultTimezone,
			DefaultOffsets:    cfg.DefaultReminderOffsets,
			BackgroundTimeout: cfg.BackgroundTimeout,
		},
		store,
		sched,
		resolver,
		norm,
	)
	if metricsSink != nil {
		svc = svc.WithMetrics(metricsSink)
	}

	if cfg.OpenAIAPIKey != "" {
		aiConfig := ai.DefaultConfig()
		aiConfig.APIKey = cfg.OpenAIAPIKey
		aiConfig.BaseURL = cfg.OpenAIBaseURL
		if cfg.OpenAIChatModel != "" {
			aiConfig.ChatModel = cfg.OpenAIChatModel
		}
		if cfg.OpenAIEmbeddingModel != "" {
			aiConfig.EmbeddingModel = cfg.OpenAIEmbeddingModel
		}
		if cfg.OpenAITranscribeModel != "" {
			aiConfig.TranscribeModel = cfg.OpenAITranscribeModel
		}
		provider := ai.New(aiConfig)

		augmenter := advisory.New(
			advisory.Config{Timeout: cfg.AdvisoryTimeout},
			advisory.NewVectorRetriever(provider, store),
			advisory.NewChatGenerator(provider),
			store,
		)
		if metricsSink != nil {
			augmenter = augmenter.WithMetrics(metricsSink)
		}

		svc = svc.WithTranscriber(provider).WithAugmenter(augmenter)
		log.Println("napomni: voice transcription and advisory notes enabled")
	} else {
		log.Println("napomni: OPENAI_API_KEY not set; voice and advisory disabled")
	}

	if cfg.CalDAVURL != "" {
		svc = svc.WithCalendar(calendar.NewClient(calendar.Config{
			BaseURL:  cfg.CalDAVURL,
			Username: cfg.CalDAVUsername,
			Password: cfg.CalDAVPassword,
			Timeout:  cfg.CalDAVTimeout,
		}))
		log.Printf("napomni: calendar mirroring enabled (url=%s)", cfg.CalDAVURL)
	} else {
		log.Println("napomni: CALDAV_URL not set; calendar mirroring disabled")
	}

	apiHandler := api.NewHandler(svc).WithHealthChecker(db)

	mux := http.NewServeMux()
	if cfg.MetricsEnabled {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}
	mux.Handle("/", apiHandler)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("napomni: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("napomni: http server error: %v", err)
		}
	}()

	// The notifier runs on every instance; only the leader schedules,
	// reconciles and sweeps, so followers drain an empty bus.
	notifierCtx, cancelNotifier := context.WithCancel(context.Background())
	var notifierWg sync.WaitGroup
	notifierWg.Add(1)
	go func() {
		defer notifierWg.Done()
		notif.Run(notifierCtx, bus.Channel())
	}()

	sweeper := lifecycle.New(lifecycle.Config{Schedule: cfg.SweepSchedule}, store)

	var recon *reconciler.Reconciler
	if cfg.ReconcileEnabled {
		recon = reconciler.New(
			reconciler.Config{
				Interval:  cfg.ReconcileInterval,
				Threshold: cfg.ReconcileThreshold,
				BatchSize: cfg.ReconcileBatchSize,
			},
			store,
			bus,
		)
		log.Printf("napomni: reconciler enabled (interval=%s, threshold=%s, batch=%d)",
			cfg.ReconcileInterval, cfg.ReconcileThreshold, cfg.ReconcileBatchSize)
	} else {
		log.Println("napomni: RECONCILE_ENABLED not set; reconciler disabled")
	}

	// Leader duties start on election and stop when leadership is lost.
	var dutiesWg sync.WaitGroup
	onElected := func(ctx context.Context) {
		dutiesWg.Add(1)
		go func() {
			defer dutiesWg.Done()
			if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("napomni: scheduler exited: %v", err)
			}
		}()
		dutiesWg.Add(1)
		go func() {
			defer dutiesWg.Done()
			if err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("napomni: lifecycle sweeper exited: %v", err)
			}
		}()
		if recon != nil {
			dutiesWg.Add(1)
			go func() {
				defer dutiesWg.Done()
				recon.Run(ctx)
			}()
		}
	}
	onDemoted := func() {
		dutiesWg.Wait()
	}

	elector := leaderelection.New(db, cfg.LeaderLockKey,
		cfg.LeaderRetryInterval, cfg.LeaderHeartbeatInterval,
		onElected, onDemoted)
	if metricsSink != nil {
		elector = elector.WithMetrics(metricsSink)
	}

	electionCtx, cancelElection := context.WithCancel(context.Background())
	var electionWg sync.WaitGroup
	electionWg.Add(1)
	go func() {
		defer electionWg.Done()
		elector.Run(electionCtx)
	}()

	log.Printf("napomni: started (http=%s, max_wake=%s)", cfg.HTTPAddr, cfg.SchedulerMaxWake)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("napomni: received signal %v, shutting down", received)

	// Phase 1: Resign leadership (stops scheduler, sweeper, reconciler)
	log.Println("napomni: resigning leadership...")
	cancelElection()
	electionWg.Wait()
	log.Println("napomni: leader duties stopped")

	// Phase 2: Stop notifier (drains buffered reminders before returning)
	log.Println("napomni: stopping notifier (draining reminders)...")
	cancelNotifier()
	notifierWg.Wait()
	log.Println("napomni: notifier stopped")

	// Phase 3: Wait for in-flight background work (advisory, calendar)
	log.Println("napomni: waiting for background work...")
	svc.Wait()

	// Phase 4: Stop HTTP server with graceful shutdown
	log.Println("napomni: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("napomni: http server shutdown error: %v", err)
	}
	log.Println("napomni: http server stopped")

	log.Println("napomni: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("napomni version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
