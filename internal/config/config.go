// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"distributed-bnb/internal/convergence"
	"distributed-bnb/internal/dispatcher"
	"distributed-bnb/internal/domain"
	"distributed-bnb/internal/problem/knapsack"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Checkpoint backends.
const (
	BackendNone   = "none"
	BackendEtcd   = "etcd"
	BackendSQLite = "sqlite"
)

// Item is one configured knapsack item of the demo worker.
type Item struct {
	Name   string  `mapstructure:"name" validate:"required"`
	Weight float64 `mapstructure:"weight" validate:"gt=0"`
	Value  float64 `mapstructure:"value" validate:"gte=0"`
}

// Config holds the configuration of both binaries.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	EtcdEndpoints     []string      `mapstructure:"etcd_endpoints" validate:"required,min=1,dive,required"`
	EtcdTimeout       time.Duration `mapstructure:"etcd_timeout" validate:"gt=0"`
	GrpcListenAddr    string        `mapstructure:"grpc_listen_addr" validate:"required"`
	HttpListenAddr    string        `mapstructure:"http_listen_addr" validate:"required"`
	DispatcherAddr    string        `mapstructure:"dispatcher_addr" validate:"omitempty,hostname_port"`
	AdvertiseAddr     string        `mapstructure:"advertise_addr" validate:"omitempty,hostname_port"`
	WorkerUUID        string        `mapstructure:"worker_uuid" validate:"omitempty,uuid"`
	LeaderElectionTTL time.Duration `mapstructure:"leader_election_ttl" validate:"gte=1s"`

	SolveID             string        `mapstructure:"solve_id" validate:"required,max=128,excludesall=/"`
	WorkerCount         int           `mapstructure:"worker_count" validate:"gt=0"`
	Sense               string        `mapstructure:"sense" validate:"sense"`
	QueueStrategy       string        `mapstructure:"queue_strategy" validate:"strategy"`
	NodeLimit           int64         `mapstructure:"node_limit" validate:"gte=0"`
	TimeLimit           time.Duration `mapstructure:"time_limit" validate:"gte=0"`
	AbsoluteGap         float64       `mapstructure:"absolute_gap" validate:"gte=0"`
	RelativeGap         float64       `mapstructure:"relative_gap" validate:"gte=0"`
	ComparisonTolerance float64       `mapstructure:"comparison_tolerance" validate:"gte=0"`
	BoundStop           *float64      `mapstructure:"bound_stop"`

	CheckpointBackend  string `mapstructure:"checkpoint_backend" validate:"oneof=none etcd sqlite"`
	CheckpointSchedule string `mapstructure:"checkpoint_schedule" validate:"omitempty,cron"`
	SqlitePath         string `mapstructure:"sqlite_path" validate:"required_if=CheckpointBackend sqlite"`
	Resume             bool   `mapstructure:"resume"`

	NotifyURL     string        `mapstructure:"notify_url" validate:"omitempty,url"`
	NotifyRetries int           `mapstructure:"notify_retries" validate:"gte=0"`
	NotifyBackoff time.Duration `mapstructure:"notify_backoff" validate:"gte=0"`

	LogLevel    string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogInterval time.Duration `mapstructure:"log_interval" validate:"gte=0"`

	KnapsackCapacity float64 `mapstructure:"knapsack_capacity" validate:"gte=0"`
	KnapsackItems    []Item  `mapstructure:"knapsack_items" validate:"dive"`
}

// Load reads config.yaml from paths (default ./configs and .), applies
// BNB_-prefixed environment overrides and validates the result.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./configs", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("BNB")
	v.AutomaticEnv()
	// no default, so AutomaticEnv alone would never surface it
	_ = v.BindEnv("bound_stop")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config: %v", domain.ErrInvalidConfig, err)
		}
		// no file: defaults and environment only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config: %v", domain.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("etcd_endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd_timeout", "5s")
	v.SetDefault("grpc_listen_addr", ":50051")
	v.SetDefault("http_listen_addr", ":8080")
	v.SetDefault("dispatcher_addr", "")
	v.SetDefault("advertise_addr", "")
	v.SetDefault("worker_uuid", "")
	v.SetDefault("leader_election_ttl", "10s")
	v.SetDefault("solve_id", "knapsack-demo")
	v.SetDefault("worker_count", 1)
	v.SetDefault("sense", "maximize")
	v.SetDefault("queue_strategy", string(domain.StrategyBound))
	v.SetDefault("node_limit", 0)
	v.SetDefault("time_limit", "0s")
	v.SetDefault("absolute_gap", convergence.DefaultAbsoluteGap)
	v.SetDefault("relative_gap", convergence.DefaultRelativeGap)
	v.SetDefault("comparison_tolerance", 0)
	v.SetDefault("checkpoint_backend", BackendNone)
	v.SetDefault("checkpoint_schedule", "@every 30s")
	v.SetDefault("sqlite_path", "./data/bnb.db")
	v.SetDefault("resume", false)
	v.SetDefault("notify_retries", 3)
	v.SetDefault("notify_backoff", "2s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_interval", "5s")
	v.SetDefault("knapsack_capacity", 0)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	validate := validator.New()

	_ = validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		_, err := parser.Parse(fl.Field().String())
		return err == nil
	})

	_ = validate.RegisterValidation("sense", func(fl validator.FieldLevel) bool {
		_, ok := domain.ParseSense(fl.Field().String())
		return ok
	})

	_ = validate.RegisterValidation("strategy", func(fl validator.FieldLevel) bool {
		s := domain.Strategy(fl.Field().String())
		for _, known := range domain.Strategies {
			if s == known {
				return true
			}
		}
		return false
	})

	return validate
}

// Validate checks every field; all failures are reported together.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(msgs, "; "))
}

// SenseValue returns the parsed optimization sense.
func (c *Config) SenseValue() domain.Sense {
	s, _ := domain.ParseSense(c.Sense)
	return s
}

// Checker builds the convergence checker shared by dispatcher and workers.
func (c *Config) Checker() (*convergence.Checker, error) {
	opts := []convergence.Option{
		convergence.WithAbsoluteGap(c.AbsoluteGap),
		convergence.WithRelativeGap(c.RelativeGap),
		convergence.WithComparisonTolerance(c.ComparisonTolerance),
	}
	if c.BoundStop != nil {
		opts = append(opts, convergence.WithBoundStop(*c.BoundStop))
	}
	return convergence.New(c.SenseValue(), opts...)
}

// DispatcherOptions turns the solve settings into dispatcher options. A zero
// node or time limit means no limit.
func (c *Config) DispatcherOptions(checker domain.ConvergenceChecker) dispatcher.Options {
	opts := dispatcher.Options{
		BestObjective: checker.InfeasibleObjective(),
		Strategy:      domain.Strategy(c.QueueStrategy),
		Checker:       checker,
		LogInterval:   c.LogInterval,
	}
	if c.NodeLimit > 0 {
		limit := c.NodeLimit
		opts.NodeLimit = &limit
	}
	if c.TimeLimit > 0 {
		limit := c.TimeLimit
		opts.TimeLimit = &limit
	}
	return opts
}

// AdvertiseAddress is the gRPC address the elected dispatcher publishes to
// workers. Without advertise_addr it is derived from grpc_listen_addr, with
// the host name filled in when the listener binds every interface.
func (c *Config) AdvertiseAddress() string {
	if c.AdvertiseAddr != "" {
		return c.AdvertiseAddr
	}
	host, port, err := net.SplitHostPort(c.GrpcListenAddr)
	if err != nil {
		return c.GrpcListenAddr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		if host, err = os.Hostname(); err != nil {
			host = "localhost"
		}
	}
	return net.JoinHostPort(host, port)
}

// SlogLevel maps log_level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Knapsack builds the demo problem, falling back to the built-in instance
// when no items are configured.
func (c *Config) Knapsack() (*knapsack.Problem, error) {
	if len(c.KnapsackItems) == 0 {
		return knapsack.New(knapsack.DemoItems())
	}
	items := make([]knapsack.Item, len(c.KnapsackItems))
	for i, it := range c.KnapsackItems {
		items[i] = knapsack.Item{Name: it.Name, Weight: it.Weight, Value: it.Value}
	}
	return knapsack.New(c.KnapsackCapacity, items)
}
