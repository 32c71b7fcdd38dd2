package service

type Config struct {
	DatabaseUri             string  `envconfig:"DATABASE_URI" required:"true"`
	DatabaseMaxConns        int     `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	DatabaseMaxIdleConns    int     `envconfig:"DATABASE_MAX_IDLE_CONNS" default:"5"`
	DatabaseConnMaxLifetime int     `envconfig:"DATABASE_CONN_MAX_LIFETIME" default:"1800"` // 30 minutes
	SentryDSN               string  `envconfig:"SENTRY_DSN"`
	SentryTracesSampleRate  float64 `envconfig:"SENTRY_TRACES_SAMPLE_RATE"`
	LogFilePath             string  `envconfig:"LOG_FILE_PATH"`
	AdminToken              string  `envconfig:"ADMIN_TOKEN"`
	Host                    string  `envconfig:"HOST" default:"localhost:3000"`
	Port                    int     `envconfig:"PORT" default:"3000"`
	DefaultRateLimit        int     `envconfig:"DEFAULT_RATE_LIMIT" default:"10"`
	StrictRateLimit         int     `envconfig:"STRICT_RATE_LIMIT" default:"10"`
	BurstRateLimit          int     `envconfig:"BURST_RATE_LIMIT" default:"1"`
	EnablePrometheus        bool    `envconfig:"ENABLE_PROMETHEUS" default:"false"`
	PrometheusPort          int     `envconfig:"PROMETHEUS_PORT" default:"9092"`
	WebhookUrl              string  `envconfig:"WEBHOOK_URL"`

	StoragePath string `envconfig:"STORAGE_PATH" default:"./deliverables"`

	EngineWorkers        int `envconfig:"ENGINE_WORKERS" default:"4"`
	EngineQueueSize      int `envconfig:"ENGINE_QUEUE_SIZE" default:"64"`
	EngineRetryAttempts  int `envconfig:"ENGINE_RETRY_ATTEMPTS" default:"3"`
	GenerationTimeout    int `envconfig:"GENERATION_TIMEOUT" default:"300"`      // seconds, 5 minutes
	SweepInterval        int `envconfig:"SWEEP_INTERVAL" default:"300"`          // seconds, 5 minutes
	SweepStalenessAge    int `envconfig:"SWEEP_STALENESS_AGE" default:"900"`     // seconds, 15 minutes
	SweepMaxReadmissions int `envconfig:"SWEEP_MAX_READMISSIONS" default:"3"`

	RabbitMQUri                      string `envconfig:"RABBITMQ_URI"`
	RabbitMQInvoiceExchange          string `envconfig:"RABBITMQ_INVOICE_EXCHANGE" default:"deliveryhub_invoice"`
	RabbitMQPaymentExchange          string `envconfig:"RABBITMQ_PAYMENT_EXCHANGE" default:"chain_payment"`
	RabbitMQPaymentConsumerQueueName string `envconfig:"RABBITMQ_PAYMENT_CONSUMER_QUEUE_NAME" default:"chain_payment_consumer"`
}
