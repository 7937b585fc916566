package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/timetable-extractor/constants"
)

// Config holds all application configuration
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Server      ServerConfig      `yaml:"server"`
	Providers   ProviderConfig    `yaml:"providers"`
	OCR         OCRConfig         `yaml:"ocr"`
	Vision      VisionConfig      `yaml:"vision"`
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Structuring StructuringConfig `yaml:"structuring"`
	Semantic    SemanticConfig    `yaml:"semantic"`
	Queue       QueueConfig       `yaml:"queue"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Log         LogConfig         `yaml:"log"`
}

// DatabaseConfig holds database-related configuration. An empty DSN selects the in-memory job store.
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
}

// ProviderConfig holds credentials and endpoints shared by vision, LLM and embedding clients.
type ProviderConfig struct {
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OllamaHost      string `yaml:"ollama_host"`
	AWSRegion       string `yaml:"aws_region"`
}

// OCRConfig holds local OCR configuration
type OCRConfig struct {
	Pdftotext           string `yaml:"pdftotext"`
	Pdftoppm            string `yaml:"pdftoppm"`
	Tesseract           string `yaml:"tesseract"`
	TesseractLang       string `yaml:"tesseract_lang"`
	DPI                 int    `yaml:"dpi"`
	MaxPages            int    `yaml:"max_pages"`
	PSM                 int    `yaml:"psm"`
	HeicConverter       string `yaml:"heic_converter"`
	TessdataDir         string `yaml:"tessdata_dir"`
	ArtifactCacheDir    string `yaml:"artifact_cache_dir"`
	EnableTSVConfidence bool   `yaml:"enable_tsv_confidence"`
}

// VisionConfig holds the ordered provider chain and per-provider models.
type VisionConfig struct {
	Providers      []string      `yaml:"providers"`
	OpenAIModel    string        `yaml:"openai_model"`
	AnthropicModel string        `yaml:"anthropic_model"`
	OllamaModel    string        `yaml:"ollama_model"`
	BedrockModel   string        `yaml:"bedrock_model"`
	MaxTokens      int           `yaml:"max_tokens"`
	Timeout        time.Duration `yaml:"timeout"`
}

// LLMConfig holds structuring model configuration
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// EmbeddingConfig holds embedding configuration. Provider "none" disables embeddings.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// StructuringConfig holds chunking and sanitize behavior for the extraction agent.
type StructuringConfig struct {
	ChunkThreshold  int    `yaml:"chunk_threshold"`
	TopK            int    `yaml:"top_k"`
	LinesPerChunk   int    `yaml:"lines_per_chunk"`
	LenientSanitize bool   `yaml:"lenient_sanitize"`
	Query           string `yaml:"query"`
}

// SemanticConfig holds validation thresholds.
type SemanticConfig struct {
	DuplicateThreshold  float64  `yaml:"duplicate_threshold"`
	Neighbors           int      `yaml:"neighbors"`
	GapThresholdMinutes int      `yaml:"gap_threshold_minutes"`
	SchoolDays          []string `yaml:"school_days"`
	DayStart            string   `yaml:"day_start"`
	DayEnd              string   `yaml:"day_end"`
	Refine              bool     `yaml:"refine"`
}

// QueueConfig holds worker pool, admission and retry configuration.
type QueueConfig struct {
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	WindowJobs    int           `yaml:"window_jobs"`
	Window        time.Duration `yaml:"window"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BackoffBase   time.Duration `yaml:"backoff_base"`
	BackoffMax    time.Duration `yaml:"backoff_max"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
	Retention     time.Duration `yaml:"retention"`
	PurgeInterval time.Duration `yaml:"purge_interval"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// IngestConfig holds directory watching for the daemon. No directories disables it.
type IngestConfig struct {
	WatchDirs   []string      `yaml:"watch_dirs"`
	InitialScan bool          `yaml:"initial_scan"`
	SkipHidden  bool          `yaml:"skip_hidden"`
	Debounce    time.Duration `yaml:"debounce"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the built-in defaults before file and env overrides.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxConns:        20,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{GRPCAddr: ":8080"},
		Providers: ProviderConfig{
			OllamaHost: "http://localhost:11434",
			AWSRegion:  "us-east-1",
		},
		OCR: OCRConfig{
			TesseractLang:       "eng",
			DPI:                 300,
			PSM:                 6,
			HeicConverter:       "magick",
			ArtifactCacheDir:    "./tmp",
			EnableTSVConfidence: true,
		},
		Vision: VisionConfig{
			Providers:      []string{"openai", "anthropic", "bedrock", "ollama"},
			OpenAIModel:    "gpt-4o",
			AnthropicModel: "claude-3-5-sonnet-latest",
			OllamaModel:    "llava",
			BedrockModel:   "anthropic.claude-3-5-sonnet-20240620-v1:0",
			MaxTokens:      4096,
			Timeout:        90 * time.Second,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 4096,
			Timeout:   60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
		Structuring: StructuringConfig{
			ChunkThreshold:  2000,
			TopK:            5,
			LinesPerChunk:   12,
			LenientSanitize: true,
			Query:           "weekly class timetable with days, lesson times, subjects, rooms and class groups",
		},
		Semantic: SemanticConfig{
			DuplicateThreshold:  0.95,
			Neighbors:           3,
			GapThresholdMinutes: 120,
			SchoolDays:          []string{"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY"},
			DayStart:            "08:00",
			DayEnd:              "16:00",
			Refine:              true,
		},
		Queue: QueueConfig{
			Workers:       3,
			QueueSize:     256,
			WindowJobs:    10,
			Window:        60 * time.Second,
			MaxAttempts:   3,
			BackoffBase:   2 * time.Second,
			BackoffMax:    30 * time.Second,
			JobTimeout:    10 * time.Minute,
			Retention:     24 * time.Hour,
			PurgeInterval: 10 * time.Minute,
			ShutdownGrace: 30 * time.Second,
		},
		Ingest: IngestConfig{
			InitialScan: true,
			SkipHidden:  true,
			Debounce:    500 * time.Millisecond,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig starts from defaults, applies the YAML file named by TIMETABLE_CONFIG
// (if any), then environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv("TIMETABLE_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read "+path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)
	c.Database.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)

	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)

	c.Providers.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.Providers.OpenAIAPIKey)
	c.Providers.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", c.Providers.AnthropicAPIKey)
	c.Providers.OllamaHost = getEnv("OLLAMA_HOST", c.Providers.OllamaHost)
	c.Providers.AWSRegion = getEnv("AWS_REGION", c.Providers.AWSRegion)

	c.OCR.Pdftotext = getEnv("PDFTOTEXT_BIN", c.OCR.Pdftotext)
	c.OCR.Pdftoppm = getEnv("PDFTOPPM_BIN", c.OCR.Pdftoppm)
	c.OCR.Tesseract = getEnv("TESSERACT_BIN", c.OCR.Tesseract)
	c.OCR.TesseractLang = getEnv("TESSERACT_LANG", c.OCR.TesseractLang)
	c.OCR.DPI = getEnvAsInt("OCR_DPI", c.OCR.DPI)
	c.OCR.MaxPages = getEnvAsInt("OCR_MAX_PAGES", c.OCR.MaxPages)
	c.OCR.PSM = getEnvAsInt("TESSERACT_PSM", c.OCR.PSM)
	c.OCR.HeicConverter = getEnv("HEIC_CONVERTER", c.OCR.HeicConverter)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.ArtifactCacheDir = getEnv("ARTIFACT_CACHE_DIR", c.OCR.ArtifactCacheDir)
	c.OCR.EnableTSVConfidence = getEnvAsBool("OCR_TSV_CONFIDENCE", c.OCR.EnableTSVConfidence)

	c.Vision.Providers = getEnvAsList("VISION_PROVIDERS", c.Vision.Providers)
	c.Vision.OpenAIModel = getEnv("VISION_OPENAI_MODEL", c.Vision.OpenAIModel)
	c.Vision.AnthropicModel = getEnv("VISION_ANTHROPIC_MODEL", c.Vision.AnthropicModel)
	c.Vision.OllamaModel = getEnv("VISION_OLLAMA_MODEL", c.Vision.OllamaModel)
	c.Vision.BedrockModel = getEnv("VISION_BEDROCK_MODEL", c.Vision.BedrockModel)
	c.Vision.MaxTokens = getEnvAsInt("VISION_MAX_TOKENS", c.Vision.MaxTokens)
	c.Vision.Timeout = getEnvAsDuration("VISION_TIMEOUT", c.Vision.Timeout)

	c.LLM.Provider = getEnv("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Model = getEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.Temperature = getEnvAsFloat("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.MaxTokens = getEnvAsInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Timeout = getEnvAsDuration("LLM_TIMEOUT", c.LLM.Timeout)

	c.Embedding.Provider = getEnv("EMBED_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = getEnv("EMBED_MODEL", c.Embedding.Model)
	c.Embedding.Dimension = getEnvAsInt("EMBED_DIMENSION", c.Embedding.Dimension)

	c.Structuring.ChunkThreshold = getEnvAsInt("CHUNK_THRESHOLD", c.Structuring.ChunkThreshold)
	c.Structuring.TopK = getEnvAsInt("CHUNK_TOP_K", c.Structuring.TopK)
	c.Structuring.LinesPerChunk = getEnvAsInt("CHUNK_LINES", c.Structuring.LinesPerChunk)
	c.Structuring.LenientSanitize = getEnvAsBool("LLM_LENIENT_SANITIZE", c.Structuring.LenientSanitize)

	c.Semantic.DuplicateThreshold = getEnvAsFloat("DUPLICATE_THRESHOLD", c.Semantic.DuplicateThreshold)
	c.Semantic.Neighbors = getEnvAsInt("DUPLICATE_NEIGHBORS", c.Semantic.Neighbors)
	c.Semantic.GapThresholdMinutes = getEnvAsInt("GAP_THRESHOLD_MINUTES", c.Semantic.GapThresholdMinutes)
	c.Semantic.SchoolDays = getEnvAsList("SCHOOL_DAYS", c.Semantic.SchoolDays)
	c.Semantic.DayStart = getEnv("SCHOOL_DAY_START", c.Semantic.DayStart)
	c.Semantic.DayEnd = getEnv("SCHOOL_DAY_END", c.Semantic.DayEnd)
	c.Semantic.Refine = getEnvAsBool("REFINE_ENABLED", c.Semantic.Refine)

	c.Queue.Workers = getEnvAsInt("QUEUE_WORKERS", c.Queue.Workers)
	c.Queue.QueueSize = getEnvAsInt("QUEUE_SIZE", c.Queue.QueueSize)
	c.Queue.WindowJobs = getEnvAsInt("QUEUE_WINDOW_JOBS", c.Queue.WindowJobs)
	c.Queue.Window = getEnvAsDuration("QUEUE_WINDOW", c.Queue.Window)
	c.Queue.MaxAttempts = getEnvAsInt("QUEUE_MAX_ATTEMPTS", c.Queue.MaxAttempts)
	c.Queue.BackoffBase = getEnvAsDuration("QUEUE_BACKOFF_BASE", c.Queue.BackoffBase)
	c.Queue.BackoffMax = getEnvAsDuration("QUEUE_BACKOFF_MAX", c.Queue.BackoffMax)
	c.Queue.JobTimeout = getEnvAsDuration("QUEUE_JOB_TIMEOUT", c.Queue.JobTimeout)
	c.Queue.Retention = getEnvAsDuration("QUEUE_RETENTION", c.Queue.Retention)
	c.Queue.PurgeInterval = getEnvAsDuration("QUEUE_PURGE_INTERVAL", c.Queue.PurgeInterval)
	c.Queue.ShutdownGrace = getEnvAsDuration("QUEUE_SHUTDOWN_GRACE", c.Queue.ShutdownGrace)

	c.Ingest.WatchDirs = getEnvAsList("WATCH_DIRS", c.Ingest.WatchDirs)
	c.Ingest.InitialScan = getEnvAsBool("WATCH_INITIAL_SCAN", c.Ingest.InitialScan)
	c.Ingest.SkipHidden = getEnvAsBool("WATCH_SKIP_HIDDEN", c.Ingest.SkipHidden)
	c.Ingest.Debounce = getEnvAsDuration("WATCH_DEBOUNCE", c.Ingest.Debounce)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var knownVisionProviders = map[string]struct{}{
	"openai": {}, "anthropic": {}, "ollama": {}, "bedrock": {},
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	for _, p := range c.Vision.Providers {
		if _, ok := knownVisionProviders[p]; !ok {
			return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown vision provider %q", p), ErrInvalidInput)
		}
	}
	if c.Queue.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "QUEUE_WORKERS must be positive", ErrInvalidInput)
	}
	if c.Queue.MaxAttempts <= 0 {
		return NewAppError("CONFIG_ERROR", "QUEUE_MAX_ATTEMPTS must be positive", ErrInvalidInput)
	}
	if c.Queue.WindowJobs <= 0 || c.Queue.Window <= 0 {
		return NewAppError("CONFIG_ERROR", "admission window must be positive", ErrInvalidInput)
	}
	if c.Semantic.DuplicateThreshold <= 0 || c.Semantic.DuplicateThreshold > 1 {
		return NewAppError("CONFIG_ERROR", "DUPLICATE_THRESHOLD must be in (0, 1]", ErrInvalidInput)
	}
	start, err := constants.MinutesSinceMidnight(c.Semantic.DayStart)
	if err != nil {
		return NewAppError("CONFIG_ERROR", "SCHOOL_DAY_START", err)
	}
	end, err := constants.MinutesSinceMidnight(c.Semantic.DayEnd)
	if err != nil {
		return NewAppError("CONFIG_ERROR", "SCHOOL_DAY_END", err)
	}
	if end <= start {
		return NewAppError("CONFIG_ERROR", "SCHOOL_DAY_END must be after SCHOOL_DAY_START", ErrInvalidInput)
	}
	for _, d := range c.Semantic.SchoolDays {
		if _, ok := constants.ParseDay(d); !ok {
			return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown school day %q", d), ErrInvalidInput)
		}
	}
	return nil
}
