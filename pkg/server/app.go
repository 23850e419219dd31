package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"FieldPulse/internal/domain/repository"
	"FieldPulse/pkg/config"
	xhttp "FieldPulse/pkg/http"
	pkgkafka "FieldPulse/pkg/kafka"
	applogger "FieldPulse/pkg/logger"
	"FieldPulse/pkg/queue"
)

// App encapsulates the application lifecycle: the HTTP surface, the Kafka
// record intake, and the storage and publishing backends behind the pipeline.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	store      repository.SnapshotStore
	pub        repository.Publisher
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	handler    xhttp.Handler
	fbQueue    *queue.RedisQueue
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies. consumer and kh are
// nil when Kafka intake is disabled; fbQueue is nil when Redis is disabled.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	store repository.SnapshotStore,
	pub repository.Publisher,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	handler xhttp.Handler,
	fbQueue *queue.RedisQueue,
) *App {
	return &App{
		cfg:      cfg,
		l:        l,
		store:    store,
		pub:      pub,
		consumer: consumer,
		kh:       kh,
		handler:  handler,
		fbQueue:  fbQueue,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.store.Init(ctx); err != nil {
		a.l.Error("storage init failed", applogger.Error(err))
		return err
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	if a.fbQueue != nil {
		if err := a.fbQueue.Start(); err != nil {
			a.l.Error("feedback queue start error", applogger.Error(err))
			return err
		}
		a.l.Info("feedback queue started")
	}

	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(ctx); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.l.Info("kafka consumer started",
			applogger.String("topic", a.kh.Topic()),
			applogger.Strings("brokers", a.cfg.Kafka.Brokers),
		)
	}

	a.l.Info("pipeline ready",
		applogger.Strings("symbols", a.cfg.Pipeline.Symbols),
		applogger.Duration("bucket", a.cfg.Pipeline.Bucket),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	// Stop intake first so no bucket starts mid-shutdown.
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.fbQueue != nil {
		if err := a.fbQueue.Stop(shutdownCtx); err != nil {
			a.l.Warn("feedback queue stop error", applogger.Error(err))
		}
	}

	if err := a.pub.Close(); err != nil {
		a.l.Warn("publisher close error", applogger.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.l.Warn("storage close error", applogger.Error(err))
	}

	a.l.Info("shutdown complete")
	return nil
}
