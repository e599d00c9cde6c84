package configuration

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/autoassign/pkg/logging"
)

const Production = "production"

const (
	CursorBackendPostgres = "postgres"
	CursorBackendRedis    = "redis"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"autoassign"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type RedisOptions struct {
	URL      string `env:"REDIS_URL" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"autoassign"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Addr    string `env:"PROMETHEUS_METRICS_ADDR" envDefault:"localhost:9464"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type AuthzOptions struct {
	ModelPath      string `env:"AUTHZ_MODEL_PATH" envDefault:"config/access/model.conf"`
	PolicyPath     string `env:"AUTHZ_POLICY_PATH" envDefault:"config/access/policy.csv"`
	FlagConfigPath string `env:"AUTHZ_FLAG_CONFIG" envDefault:"config/access/authz_flags.yaml"`
	Mode           string `env:"AUTHZ_MODE" envDefault:"shadow"`
}

// AssignmentOptions tune the assignment engine.
type AssignmentOptions struct {
	AuditMaxAttempts     int           `env:"ASSIGNMENT_AUDIT_MAX_ATTEMPTS" envDefault:"3"`
	AuditRetryBackoff    time.Duration `env:"ASSIGNMENT_AUDIT_RETRY_BACKOFF" envDefault:"50ms"`
	AuditRetryMaxBackoff time.Duration `env:"ASSIGNMENT_AUDIT_RETRY_MAX_BACKOFF" envDefault:"1s"`
	ScopedCursorBackend  string        `env:"ASSIGNMENT_SCOPED_CURSOR_BACKEND" envDefault:"postgres"`
	DefaultAutoEnabled   bool          `env:"ASSIGNMENT_DEFAULT_AUTO_ENABLED" envDefault:"true"`
	DefaultRoundRobin    bool          `env:"ASSIGNMENT_DEFAULT_ROUND_ROBIN" envDefault:"true"`
	DefaultTeamScoping   bool          `env:"ASSIGNMENT_DEFAULT_TEAM_SCOPING" envDefault:"false"`
	RuleCacheTTL         time.Duration `env:"ASSIGNMENT_RULE_CACHE_TTL" envDefault:"30s"`
	ExportMaxRows        int           `env:"ASSIGNMENT_EXPORT_MAX_ROWS" envDefault:"50000"`
	OutboxEnabled        bool          `env:"ASSIGNMENT_OUTBOX_ENABLED" envDefault:"true"`
}

func (a *AssignmentOptions) Validate() error {
	if a.AuditMaxAttempts < 1 {
		return fmt.Errorf("ASSIGNMENT_AUDIT_MAX_ATTEMPTS must be at least 1, got %d", a.AuditMaxAttempts)
	}
	if a.AuditRetryBackoff < 0 || a.AuditRetryMaxBackoff < 0 {
		return fmt.Errorf("assignment audit backoff must be non-negative")
	}
	if a.ExportMaxRows < 1 {
		return fmt.Errorf("ASSIGNMENT_EXPORT_MAX_ROWS must be positive, got %d", a.ExportMaxRows)
	}
	backend := strings.ToLower(strings.TrimSpace(a.ScopedCursorBackend))
	if backend == "" {
		backend = CursorBackendPostgres
	}
	switch backend {
	case CursorBackendPostgres, CursorBackendRedis:
	default:
		return fmt.Errorf("invalid ASSIGNMENT_SCOPED_CURSOR_BACKEND=%q (expected postgres|redis)", a.ScopedCursorBackend)
	}
	a.ScopedCursorBackend = backend
	return nil
}

type Configuration struct {
	Database      DatabaseOptions
	Redis         RedisOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	Authz         AuthzOptions
	Assignment    AssignmentOptions

	MigrationsDir    string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	PageSize         int    `env:"PAGE_SIZE" envDefault:"25"`
	MaxPageSize      int    `env:"MAX_PAGE_SIZE" envDefault:"100"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`

	// Empty path logs to stdout only.
	LogPath string `env:"LOG_PATH" envDefault:""`

	// RLS enforcement mode (disabled/enforce).
	RLSEnforce string `env:"RLS_ENFORCE" envDefault:"disabled"`

	logFile io.Closer
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func (c *Configuration) RLSEnforced() bool {
	return c.RLSEnforce == "enforce"
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.validate(); err != nil {
		return err
	}

	if c.LogPath == "" {
		c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	} else {
		f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
		if err != nil {
			return err
		}
		c.logFile = f
		c.logger = logger
	}

	c.Database.Opts = c.Database.ConnectionString()
	return nil
}

func (c *Configuration) validate() error {
	if err := c.Assignment.Validate(); err != nil {
		return fmt.Errorf("assignment configuration error: %w", err)
	}
	if c.PageSize < 1 || c.MaxPageSize < c.PageSize {
		return fmt.Errorf("invalid paging: PAGE_SIZE=%d MAX_PAGE_SIZE=%d", c.PageSize, c.MaxPageSize)
	}
	if err := c.validateAuthzMode(); err != nil {
		return err
	}
	return c.validateRLS()
}

func (c *Configuration) validateAuthzMode() error {
	mode := strings.ToLower(strings.TrimSpace(c.Authz.Mode))
	switch mode {
	case "disabled", "shadow", "enforce":
	default:
		return fmt.Errorf("invalid AUTHZ_MODE=%q (expected disabled|shadow|enforce)", c.Authz.Mode)
	}
	c.Authz.Mode = mode
	return nil
}

func (c *Configuration) validateRLS() error {
	mode := strings.ToLower(strings.TrimSpace(c.RLSEnforce))
	if mode == "" {
		mode = "disabled"
	}
	switch mode {
	case "disabled", "enforce":
	default:
		return fmt.Errorf("invalid RLS_ENFORCE=%q (expected disabled|enforce)", c.RLSEnforce)
	}

	if mode == "enforce" && strings.EqualFold(strings.TrimSpace(c.Database.User), "postgres") {
		return fmt.Errorf("RLS_ENFORCE=enforce requires a non-superuser DB_USER (postgres will bypass RLS)")
	}

	c.RLSEnforce = mode
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
