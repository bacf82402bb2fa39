package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendTables = "tables"
	BackendMongo  = "mongo"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds everything the service needs at startup. It is built once in
// main and handed to constructors.
type Config struct {
	Port int

	Backend          string
	ConnectionString string
	TasksTable       string
	MongoDatabase    string
	MongoCollection  string

	RedisURL string
	CacheTTL time.Duration

	EventsQueue           string
	QueueConnectionString string
	EventsChannel         string

	Debug     bool
	LogFormat string
	TraceLog  bool
}

type configFile struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		Backend          string `yaml:"backend"`
		ConnectionString string `yaml:"connection_string"`
		TasksTable       string `yaml:"tasks_table"`
		MongoDatabase    string `yaml:"mongo_database"`
		MongoCollection  string `yaml:"mongo_collection"`
	} `yaml:"storage"`
	Cache struct {
		Redis string `yaml:"redis"`
		TTL   string `yaml:"ttl"`
	} `yaml:"cache"`
	Events struct {
		Queue            string `yaml:"queue"`
		ConnectionString string `yaml:"connection_string"`
		Channel          string `yaml:"channel"`
	} `yaml:"events"`
	Log struct {
		Debug  bool   `yaml:"debug"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Trace struct {
		Log bool `yaml:"log"`
	} `yaml:"trace"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:            3000,
		TasksTable:      "tasks",
		MongoDatabase:   "tasks",
		MongoCollection: "tasks",
		CacheTTL:        30 * time.Second,
		EventsChannel:   "tasks",
		LogFormat:       LogFormatText,
	}
}

// Load builds a Config from defaults, the optional YAML file at path and the
// environment, in that order of precedence. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := applyFile(&cfg, raw); err != nil {
				return Config{}, err
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = BackendFor(cfg.ConnectionString)
	}
	if cfg.QueueConnectionString == "" && cfg.Backend == BackendTables {
		cfg.QueueConnectionString = cfg.ConnectionString
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if f.Server.Port != 0 {
		cfg.Port = f.Server.Port
	}
	cfg.Backend = nonEmpty(f.Storage.Backend, cfg.Backend)
	cfg.ConnectionString = nonEmpty(f.Storage.ConnectionString, cfg.ConnectionString)
	cfg.TasksTable = nonEmpty(f.Storage.TasksTable, cfg.TasksTable)
	cfg.MongoDatabase = nonEmpty(f.Storage.MongoDatabase, cfg.MongoDatabase)
	cfg.MongoCollection = nonEmpty(f.Storage.MongoCollection, cfg.MongoCollection)
	cfg.RedisURL = nonEmpty(f.Cache.Redis, cfg.RedisURL)
	if f.Cache.TTL != "" {
		d, err := time.ParseDuration(f.Cache.TTL)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid cache.ttl %q", f.Cache.TTL)
		}
		cfg.CacheTTL = d
	}
	cfg.EventsQueue = nonEmpty(f.Events.Queue, cfg.EventsQueue)
	cfg.QueueConnectionString = nonEmpty(f.Events.ConnectionString, cfg.QueueConnectionString)
	cfg.EventsChannel = nonEmpty(f.Events.Channel, cfg.EventsChannel)
	cfg.Debug = cfg.Debug || f.Log.Debug
	cfg.LogFormat = nonEmpty(f.Log.Format, cfg.LogFormat)
	cfg.TraceLog = cfg.TraceLog || f.Trace.Log
	return nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = n
	}
	cfg.ConnectionString = envOrDefault("STORAGE_CONNECTION_STRING", envOrDefault("MONGO_URI", cfg.ConnectionString))
	cfg.Backend = envOrDefault("STORAGE_BACKEND", cfg.Backend)
	cfg.TasksTable = envOrDefault("TASKS_TABLE", cfg.TasksTable)
	cfg.MongoDatabase = envOrDefault("MONGO_DATABASE", cfg.MongoDatabase)
	cfg.MongoCollection = envOrDefault("MONGO_COLLECTION", cfg.MongoCollection)
	cfg.RedisURL = envOrDefault("REDIS_CONNECTION_STRING", cfg.RedisURL)
	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid CACHE_TTL %q", v)
		}
		cfg.CacheTTL = d
	}
	cfg.EventsQueue = envOrDefault("TASK_EVENTS_QUEUE", cfg.EventsQueue)
	cfg.QueueConnectionString = envOrDefault("QUEUE_CONNECTION_STRING", cfg.QueueConnectionString)
	cfg.EventsChannel = envOrDefault("TASK_UPDATES_CHANNEL", cfg.EventsChannel)
	cfg.Debug = envBool("DEBUG", cfg.Debug)
	cfg.LogFormat = strings.ToLower(envOrDefault("LOG_FORMAT", cfg.LogFormat))
	cfg.TraceLog = envBool("TRACE_LOG", cfg.TraceLog)
	return nil
}

// Validate rejects values the service cannot start with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Backend {
	case "", BackendMemory, BackendTables, BackendMongo:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// BackendFor picks a backend from the shape of a connection string. An empty
// string yields no backend.
func BackendFor(connStr string) string {
	s := strings.TrimSpace(connStr)
	switch {
	case s == "":
		return ""
	case strings.HasPrefix(s, "mongodb://"), strings.HasPrefix(s, "mongodb+srv://"):
		return BackendMongo
	default:
		return BackendTables
	}
}

func nonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	if v, err := strconv.ParseBool(raw); err == nil {
		return v
	}
	switch strings.ToLower(raw) {
	case "yes":
		return true
	case "no":
		return false
	default:
		return fallback
	}
}
