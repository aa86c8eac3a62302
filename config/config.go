package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/snapflowio/pgsnap/schema"
	"github.com/snapflowio/pgsnap/slot"
	"github.com/snapflowio/pgsnap/snapshotter"
)

type Config struct {
	ServerName string         `yaml:"server_name"`
	Host       string         `yaml:"host"`
	Port       int            `yaml:"port"`
	Username   string         `yaml:"username"`
	Password   string         `yaml:"password"`
	Database   string         `yaml:"database"`
	Capture    CaptureConfig  `yaml:"capture"`
	Slot       slot.Config    `yaml:"slot"`
	Snapshot   SnapshotConfig `yaml:"snapshot"`
	Offset     OffsetConfig   `yaml:"offset"`
	Metrics    MetricsConfig  `yaml:"metrics"`
	Logger     LoggerConfig   `yaml:"logger"`
	DebugMode  bool           `yaml:"debug_mode"`
}

type LoggerConfig struct {
	LogLevel logrus.Level `yaml:"log_level"`
}

// CaptureConfig narrows the tables a run captures. Names are schema-qualified
// ("schema.table"); an empty include list captures every non-system table.
type CaptureConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

func (c CaptureConfig) Filter() schema.TableFilter {
	return schema.NewFilter(c.Include, c.Exclude)
}

type SnapshotConfig struct {
	Mode            snapshotter.Mode  `yaml:"mode"`
	LockTimeout     time.Duration     `yaml:"lock_timeout"`
	SelectOverrides map[string]string `yaml:"select_overrides"`
	Regular         RegularConfig     `yaml:"regular"`
}

// RegularConfig re-runs the snapshot on a cron schedule, for deployments that
// re-export whole tables periodically instead of streaming forever.
type RegularConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

type OffsetConfig struct {
	Storage string `yaml:"storage"`
	DSN     string `yaml:"dsn"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

const (
	OffsetStoragePostgres = "postgres"
	OffsetStorageMemory   = "memory"
)

type Option func(*Config)

func NewConfig(opts ...Option) *Config {
	c := &Config{}
	for _, opt := range opts {
		opt(c)
	}
	c.SetDefault()
	return c
}

// Load reads a YAML config file and applies defaults. Validation is left to
// the caller so a loaded config can still be adjusted programmatically.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	c.SetDefault()
	return c, nil
}

func WithDSN(dsn string) Option {
	return func(c *Config) {
		parsedURL, err := url.Parse(dsn)
		if err != nil {
			return
		}

		c.Host = parsedURL.Hostname()
		if parsedURL.Port() != "" {
			port := 5432
			if _, err := fmt.Sscanf(parsedURL.Port(), "%d", &port); err == nil {
				c.Port = port
			}
		}

		if parsedURL.User != nil {
			c.Username = parsedURL.User.Username()
			if password, ok := parsedURL.User.Password(); ok {
				c.Password = password
			}
		}

		c.Database = strings.TrimPrefix(parsedURL.Path, "/")
	}
}

func WithHost(host string) Option {
	return func(c *Config) {
		c.Host = host
	}
}

func WithPort(port int) Option {
	return func(c *Config) {
		c.Port = port
	}
}

func WithUsername(username string) Option {
	return func(c *Config) {
		c.Username = username
	}
}

func WithPassword(password string) Option {
	return func(c *Config) {
		c.Password = password
	}
}

func WithDatabase(database string) Option {
	return func(c *Config) {
		c.Database = database
	}
}

func WithServerName(serverName string) Option {
	return func(c *Config) {
		c.ServerName = serverName
	}
}

func WithCapture(capture CaptureConfig) Option {
	return func(c *Config) {
		c.Capture = capture
	}
}

func WithLogLevel(level logrus.Level) Option {
	return func(c *Config) {
		c.Logger.LogLevel = level
	}
}

func WithDebugMode(enabled bool) Option {
	return func(c *Config) {
		c.DebugMode = enabled
	}
}

func WithSlot(slotConfig slot.Config) Option {
	return func(c *Config) {
		c.Slot = slotConfig
	}
}

func WithSnapshot(snapshotConfig SnapshotConfig) Option {
	return func(c *Config) {
		c.Snapshot = snapshotConfig
	}
}

func WithOffset(offsetConfig OffsetConfig) Option {
	return func(c *Config) {
		c.Offset = offsetConfig
	}
}

func WithMetrics(metricsConfig MetricsConfig) Option {
	return func(c *Config) {
		c.Metrics = metricsConfig
	}
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", url.QueryEscape(c.Username), url.QueryEscape(c.Password), c.Host, c.Port, c.Database)
}

func (c *Config) ReplicationDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?replication=database", url.QueryEscape(c.Username), url.QueryEscape(c.Password), c.Host, c.Port, c.Database)
}

func (c *Config) DSNWithoutSSL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", url.QueryEscape(c.Username), url.QueryEscape(c.Password), c.Host, c.Port, c.Database)
}

// OffsetDSN is the connection string of the offset store. It defaults to the
// captured database so offsets live next to the data they describe.
func (c *Config) OffsetDSN() string {
	if c.Offset.DSN != "" {
		return c.Offset.DSN
	}

	return c.DSN()
}

func (c *Config) SetDefault() {
	if c.Port == 0 {
		c.Port = 5432
	}

	if c.ServerName == "" {
		c.ServerName = c.Database
	}

	if c.Snapshot.Mode == "" {
		c.Snapshot.Mode = snapshotter.ModeInitial
	}

	if c.Snapshot.LockTimeout == 0 {
		c.Snapshot.LockTimeout = 10 * time.Second
	}

	if c.Snapshot.Regular.Enabled && c.Snapshot.Regular.Schedule == "" {
		c.Snapshot.Regular.Schedule = "@daily"
	}

	if c.Offset.Storage == "" {
		c.Offset.Storage = OffsetStoragePostgres
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}

	if c.Logger.LogLevel == 0 {
		c.Logger.LogLevel = logrus.InfoLevel
	}
}

func (c *Config) Validate() error {
	var err error
	if isEmpty(c.Host) {
		err = errors.Join(err, errors.New("host cannot be empty"))
	}

	if isEmpty(c.Username) {
		err = errors.Join(err, errors.New("username cannot be empty"))
	}

	if isEmpty(c.Password) {
		err = errors.Join(err, errors.New("password cannot be empty"))
	}

	if isEmpty(c.Database) {
		err = errors.Join(err, errors.New("database cannot be empty"))
	}

	if isEmpty(c.ServerName) {
		err = errors.Join(err, errors.New("server_name cannot be empty"))
	}

	if _, mErr := snapshotter.ForMode(c.Snapshot.Mode, false); mErr != nil {
		err = errors.Join(err, mErr)
	}

	if c.Snapshot.LockTimeout < 0 {
		err = errors.Join(err, errors.New("snapshot.lock_timeout cannot be negative"))
	}

	if c.Snapshot.Regular.Enabled && isEmpty(c.Snapshot.Regular.Schedule) {
		err = errors.Join(err, errors.New("snapshot.regular.schedule cannot be empty when regular snapshots are enabled"))
	}

	switch c.Offset.Storage {
	case OffsetStoragePostgres, OffsetStorageMemory:
	default:
		err = errors.Join(err, fmt.Errorf("offset.storage must be %q or %q", OffsetStoragePostgres, OffsetStorageMemory))
	}

	if c.Slot.Name != "" {
		if cErr := c.Slot.Validate(); cErr != nil {
			err = errors.Join(err, cErr)
		}
	}

	if c.Metrics.Enabled && isEmpty(c.Metrics.Addr) {
		err = errors.Join(err, errors.New("metrics.addr cannot be empty when metrics are enabled"))
	}

	return err
}

func (c *Config) Print() {
	cfg := *c
	cfg.Password = "*******"
	fmt.Printf("Config: Host=%s Port=%d Database=%s Username=%s ServerName=%s SnapshotMode=%s\n",
		cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.ServerName, cfg.Snapshot.Mode)
}

func isEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}
