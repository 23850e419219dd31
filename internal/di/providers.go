package di

import (
	"fmt"

	"FieldPulse/internal/domain/repository"
	"FieldPulse/internal/handler/api"
	internalrepo "FieldPulse/internal/repository"
	"FieldPulse/internal/services/geometry"
	"FieldPulse/internal/services/statespace"
	"FieldPulse/internal/services/swarm"
	"FieldPulse/internal/usecase"
	"FieldPulse/pkg/cache"
	pkgch "FieldPulse/pkg/clickhouse"
	"FieldPulse/pkg/config"
	xhttp "FieldPulse/pkg/http"
	pkgkafka "FieldPulse/pkg/kafka"
	applogger "FieldPulse/pkg/logger"
	"FieldPulse/pkg/metrics"
	"FieldPulse/pkg/queue"
	"FieldPulse/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client. Table creation happens
// in the store's Init during app startup.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideCache creates the latest-snapshot cache: Redis when enabled,
// process-local otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	c, err := cache.NewRedisCache(
		cache.WithAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithAuth(cfg.Redis.Password, cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideStore creates the snapshot store: ClickHouse behind a latest-value
// cache.
func ProvideStore(chClient *pkgch.Client, c cache.Service, cfg *config.Config, l *applogger.Logger) repository.SnapshotStore {
	ch := internalrepo.NewCHSnapshotStore(chClient, cfg.ClickHouse.Database)
	ch.SetLogger(l)
	cached := internalrepo.NewCachedSnapshotStore(ch, c, cfg.Redis.TTL)
	cached.SetLogger(l)
	return cached
}

// ProvideKafkaProducer creates a Kafka producer, nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithProducerTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePublisher creates the snapshot publisher.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.SnapshotsTopic)
}

// ProvideKafkaConsumer creates a Kafka consumer, nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideSchema loads the versioned feature schema.
func ProvideSchema(cfg *config.Config) (statespace.FeatureSchema, error) {
	return statespace.LoadSchema(cfg.Pipeline.SchemaPath)
}

// ProvideNormalizer creates the state normalizer.
func ProvideNormalizer(schema statespace.FeatureSchema, l *applogger.Logger) *statespace.Normalizer {
	n := statespace.NewNormalizer(schema)
	n.SetLogger(l)
	return n
}

// ProvideProjector creates the geometry projector from the configured basis.
func ProvideProjector(cfg *config.Config) (*geometry.Projector, error) {
	basis, err := geometry.LoadBasis(cfg.Pipeline.BasisPath)
	if err != nil {
		return nil, err
	}
	return geometry.NewProjector(basis, cfg.Pipeline.Bucket), nil
}

// ProvideRoster creates the default agent roster.
func ProvideRoster() *swarm.Roster {
	return swarm.DefaultRoster()
}

// ProvideAggregator creates the swarm aggregator.
func ProvideAggregator(roster *swarm.Roster, l *applogger.Logger) *swarm.Aggregator {
	a := swarm.NewAggregator(roster)
	a.SetLogger(l)
	return a
}

// ProvideSymbolLocks creates the per-symbol serialization shared by the
// pipeline and the feedback loop.
func ProvideSymbolLocks() *usecase.SymbolLocks {
	return usecase.NewSymbolLocks()
}

// ProvidePipeline creates the bucket pipeline.
func ProvidePipeline(
	store repository.SnapshotStore,
	pub repository.Publisher,
	m repository.Metrics,
	normalizer *statespace.Normalizer,
	projector *geometry.Projector,
	aggregator *swarm.Aggregator,
	roster *swarm.Roster,
	schema statespace.FeatureSchema,
	locks *usecase.SymbolLocks,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.Pipeline {
	p := usecase.NewPipeline(store, pub, m, normalizer, projector, aggregator, roster, schema.Window, cfg.Pipeline.Bucket, locks)
	p.SetLogger(l)
	return p
}

// ProvideFeedbackLoop creates the weight adaptation loop.
func ProvideFeedbackLoop(store repository.SnapshotStore, m repository.Metrics, roster *swarm.Roster, locks *usecase.SymbolLocks, l *applogger.Logger) *usecase.FeedbackLoop {
	f := usecase.NewFeedbackLoop(store, m, roster, locks)
	f.SetLogger(l)
	return f
}

// ProvideFeedbackJob creates the deferred feedback evaluation job.
func ProvideFeedbackJob(feedback *usecase.FeedbackLoop, store repository.SnapshotStore, cfg *config.Config) *usecase.FeedbackJob {
	return usecase.NewFeedbackJob(feedback, store, cfg.Pipeline.FeedbackHorizon, cfg.Pipeline.Bucket)
}

// ProvideFeedbackQueue creates the Redis job queue carrying deferred
// feedback, nil when Redis is disabled (feedback then runs only via replay).
func ProvideFeedbackQueue(cfg *config.Config, l *applogger.Logger, job *usecase.FeedbackJob) *queue.RedisQueue {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    2,
		RetryLimit: 5,
		RetryDelay: cfg.Pipeline.Bucket / 2,
	}, client, queue.ModeProducerConsumer)
	q.RegisterJob(job)
	return q
}

// ProvideRecordsHandler creates the Kafka intake handler, nil when Kafka is
// disabled (records then arrive only via the HTTP intake).
func ProvideRecordsHandler(pipe *usecase.Pipeline, m repository.Metrics, cfg *config.Config, l *applogger.Logger) pkgkafka.MessageHandler {
	if !cfg.Kafka.Enabled {
		return nil
	}
	h := usecase.NewKafkaRecordsHandler(cfg.Kafka.RecordsTopic, pipe, m)
	h.SetLogger(l)
	return h
}

// ProvideHTTPHandler creates the read API handler.
func ProvideHTTPHandler(l *applogger.Logger, store repository.SnapshotStore, pipe *usecase.Pipeline) xhttp.Handler {
	return api.NewSnapshotsEchoHandler(l, store, pipe)
}

// ProvideApp creates the application server and attaches the feedback
// scheduler to the pipeline when the queue is available.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	store repository.SnapshotStore,
	pub repository.Publisher,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	handler xhttp.Handler,
	pipe *usecase.Pipeline,
	q *queue.RedisQueue,
) *server.App {
	if q != nil {
		pipe.SetScheduler(q, cfg.Pipeline.FeedbackHorizon)
	}
	return server.New(cfg, l, store, pub, consumer, kh, handler, q)
}
