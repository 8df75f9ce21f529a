package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration. It is built once by Load and
// treated as read-only afterwards.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	S3         S3Config
	Log        LogConfig
	CORS       CORSConfig
	Pipeline   PipelineConfig
	Confidence ConfidenceConfig
	Preprocess PreprocessConfig
	Backends   BackendsConfig
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// PipelineConfig holds the recognition pipeline defaults. Requests may
// override the backend list, mode, timeouts and minimum confidence.
type PipelineConfig struct {
	Backends           []string      `mapstructure:"backends"`
	Mode               string        `mapstructure:"mode"`
	MaxParallel        int           `mapstructure:"max_parallel"`
	BackendTimeout     time.Duration `mapstructure:"backend_timeout"`
	Deadline           time.Duration `mapstructure:"deadline"`
	MinConfidence      float64       `mapstructure:"min_confidence"`
	MinTokenConfidence float64       `mapstructure:"min_token_confidence"`
	OverlapIoU         float64       `mapstructure:"overlap_iou"`
	ShrinkFactor       float64       `mapstructure:"shrink_factor"`
	MaxUploadMB        int64         `mapstructure:"max_upload_mb"`
}

// ConfidenceConfig holds the confidence formula weights. The four weights are
// normalized at scoring time; LocaleBonus is in points.
type ConfidenceConfig struct {
	BackendWeight      float64  `mapstructure:"backend_weight"`
	ExtractionWeight   float64  `mapstructure:"extraction_weight"`
	ValidationWeight   float64  `mapstructure:"validation_weight"`
	SpatialWeight      float64  `mapstructure:"spatial_weight"`
	LocaleBonus        float64  `mapstructure:"locale_bonus"`
	SpatialSensitivity float64  `mapstructure:"spatial_sensitivity"`
	ExpectedFields     []string `mapstructure:"expected_fields"`
}

// PreprocessConfig holds image normalization settings.
type PreprocessConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	Deskew          bool    `mapstructure:"deskew"`
	Denoise         bool    `mapstructure:"denoise"`
	Contrast        bool    `mapstructure:"contrast"`
	Rescale         bool    `mapstructure:"rescale"`
	TargetDPI       int     `mapstructure:"target_dpi"`
	MaxPixels       int     `mapstructure:"max_pixels"`
	MaxSkewDegrees  float64 `mapstructure:"max_skew_degrees"`
	SkewStepDegrees float64 `mapstructure:"skew_step_degrees"`
}

// BackendProviderConfig holds settings for a single vision LLM backend.
type BackendProviderConfig struct {
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model"`
	Endpoint     string `mapstructure:"endpoint"`
	TimeoutSecs  int    `mapstructure:"timeout_secs"`
}

// TesseractConfig holds settings for the Tesseract backends.
type TesseractConfig struct {
	Languages      []string `mapstructure:"languages"`
	PoolSize       int      `mapstructure:"pool_size"`
	TessdataPrefix string   `mapstructure:"tessdata_prefix"`
	BinaryPath     string   `mapstructure:"binary_path"`
	PageSegMode    int      `mapstructure:"psm"`
}

// BackendsConfig groups the per-backend settings.
type BackendsConfig struct {
	Tesseract    TesseractConfig
	TesseractCLI TesseractConfig
	Claude       BackendProviderConfig
	Gemini       BackendProviderConfig
	OpenAI       BackendProviderConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds AWS S3 settings.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional config file and environment
// variables with the DOCSCAN_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if path := os.Getenv("DOCSCAN_CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if os.Getenv("DOCSCAN_CONFIG_FILE") != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                        "DOCSCAN_SERVER_PORT",
		"server.read_timeout":                "DOCSCAN_SERVER_READ_TIMEOUT",
		"server.write_timeout":               "DOCSCAN_SERVER_WRITE_TIMEOUT",
		"server.environment":                 "DOCSCAN_SERVER_ENVIRONMENT",
		"db.host":                            "DOCSCAN_DB_HOST",
		"db.port":                            "DOCSCAN_DB_PORT",
		"db.user":                            "DOCSCAN_DB_USER",
		"db.password":                        "DOCSCAN_DB_PASSWORD",
		"db.name":                            "DOCSCAN_DB_NAME",
		"db.sslmode":                         "DOCSCAN_DB_SSLMODE",
		"db.max_open":                        "DOCSCAN_DB_MAX_OPEN",
		"db.max_idle":                        "DOCSCAN_DB_MAX_IDLE",
		"s3.region":                          "DOCSCAN_S3_REGION",
		"s3.bucket":                          "DOCSCAN_S3_BUCKET",
		"s3.endpoint":                        "DOCSCAN_S3_ENDPOINT",
		"s3.access_key":                      "DOCSCAN_S3_ACCESS_KEY",
		"s3.secret_key":                      "DOCSCAN_S3_SECRET_KEY",
		"log.level":                          "DOCSCAN_LOG_LEVEL",
		"log.format":                         "DOCSCAN_LOG_FORMAT",
		"cors.allowed_origins":               "DOCSCAN_CORS_ALLOWED_ORIGINS",
		"pipeline.backends":                  "DOCSCAN_PIPELINE_BACKENDS",
		"pipeline.mode":                      "DOCSCAN_PIPELINE_MODE",
		"pipeline.max_parallel":              "DOCSCAN_PIPELINE_MAX_PARALLEL",
		"pipeline.backend_timeout":           "DOCSCAN_PIPELINE_BACKEND_TIMEOUT",
		"pipeline.deadline":                  "DOCSCAN_PIPELINE_DEADLINE",
		"pipeline.min_confidence":            "DOCSCAN_PIPELINE_MIN_CONFIDENCE",
		"pipeline.min_token_confidence":      "DOCSCAN_PIPELINE_MIN_TOKEN_CONFIDENCE",
		"pipeline.overlap_iou":               "DOCSCAN_PIPELINE_OVERLAP_IOU",
		"pipeline.shrink_factor":             "DOCSCAN_PIPELINE_SHRINK_FACTOR",
		"pipeline.max_upload_mb":             "DOCSCAN_PIPELINE_MAX_UPLOAD_MB",
		"confidence.backend_weight":          "DOCSCAN_CONFIDENCE_BACKEND_WEIGHT",
		"confidence.extraction_weight":       "DOCSCAN_CONFIDENCE_EXTRACTION_WEIGHT",
		"confidence.validation_weight":       "DOCSCAN_CONFIDENCE_VALIDATION_WEIGHT",
		"confidence.spatial_weight":          "DOCSCAN_CONFIDENCE_SPATIAL_WEIGHT",
		"confidence.locale_bonus":            "DOCSCAN_CONFIDENCE_LOCALE_BONUS",
		"confidence.spatial_sensitivity":     "DOCSCAN_CONFIDENCE_SPATIAL_SENSITIVITY",
		"confidence.expected_fields":         "DOCSCAN_CONFIDENCE_EXPECTED_FIELDS",
		"preprocess.enabled":                 "DOCSCAN_PREPROCESS_ENABLED",
		"preprocess.target_dpi":              "DOCSCAN_PREPROCESS_TARGET_DPI",
		"preprocess.max_pixels":              "DOCSCAN_PREPROCESS_MAX_PIXELS",
		"backends.tesseract.languages":       "DOCSCAN_BACKENDS_TESSERACT_LANGUAGES",
		"backends.tesseract.pool_size":       "DOCSCAN_BACKENDS_TESSERACT_POOL_SIZE",
		"backends.tesseract.tessdata_prefix": "DOCSCAN_BACKENDS_TESSERACT_TESSDATA_PREFIX",
		"backends.tesseract_cli.binary_path": "DOCSCAN_BACKENDS_TESSERACT_CLI_BINARY_PATH",
		"backends.tesseract_cli.languages":   "DOCSCAN_BACKENDS_TESSERACT_CLI_LANGUAGES",
		"backends.claude.api_key":            "DOCSCAN_BACKENDS_CLAUDE_API_KEY",
		"backends.claude.default_model":      "DOCSCAN_BACKENDS_CLAUDE_DEFAULT_MODEL",
		"backends.gemini.api_key":            "DOCSCAN_BACKENDS_GEMINI_API_KEY",
		"backends.gemini.default_model":      "DOCSCAN_BACKENDS_GEMINI_DEFAULT_MODEL",
		"backends.openai.api_key":            "DOCSCAN_BACKENDS_OPENAI_API_KEY",
		"backends.openai.default_model":      "DOCSCAN_BACKENDS_OPENAI_DEFAULT_MODEL",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Platform PORT wins unless DOCSCAN_SERVER_PORT is set explicitly.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("DOCSCAN_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Region:    v.GetString("s3.region"),
		Bucket:    v.GetString("s3.bucket"),
		Endpoint:  v.GetString("s3.endpoint"),
		AccessKey: v.GetString("s3.access_key"),
		SecretKey: v.GetString("s3.secret_key"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: listValue(v, "cors.allowed_origins"),
	}
	cfg.Pipeline = PipelineConfig{
		Backends:           listValue(v, "pipeline.backends"),
		Mode:               v.GetString("pipeline.mode"),
		MaxParallel:        v.GetInt("pipeline.max_parallel"),
		BackendTimeout:     v.GetDuration("pipeline.backend_timeout"),
		Deadline:           v.GetDuration("pipeline.deadline"),
		MinConfidence:      v.GetFloat64("pipeline.min_confidence"),
		MinTokenConfidence: v.GetFloat64("pipeline.min_token_confidence"),
		OverlapIoU:         v.GetFloat64("pipeline.overlap_iou"),
		ShrinkFactor:       v.GetFloat64("pipeline.shrink_factor"),
		MaxUploadMB:        v.GetInt64("pipeline.max_upload_mb"),
	}
	cfg.Confidence = ConfidenceConfig{
		BackendWeight:      v.GetFloat64("confidence.backend_weight"),
		ExtractionWeight:   v.GetFloat64("confidence.extraction_weight"),
		ValidationWeight:   v.GetFloat64("confidence.validation_weight"),
		SpatialWeight:      v.GetFloat64("confidence.spatial_weight"),
		LocaleBonus:        v.GetFloat64("confidence.locale_bonus"),
		SpatialSensitivity: v.GetFloat64("confidence.spatial_sensitivity"),
		ExpectedFields:     listValue(v, "confidence.expected_fields"),
	}
	cfg.Preprocess = PreprocessConfig{
		Enabled:         v.GetBool("preprocess.enabled"),
		Deskew:          v.GetBool("preprocess.deskew"),
		Denoise:         v.GetBool("preprocess.denoise"),
		Contrast:        v.GetBool("preprocess.contrast"),
		Rescale:         v.GetBool("preprocess.rescale"),
		TargetDPI:       v.GetInt("preprocess.target_dpi"),
		MaxPixels:       v.GetInt("preprocess.max_pixels"),
		MaxSkewDegrees:  v.GetFloat64("preprocess.max_skew_degrees"),
		SkewStepDegrees: v.GetFloat64("preprocess.skew_step_degrees"),
	}
	cfg.Backends = BackendsConfig{
		Tesseract:    tesseractConfig(v, "backends.tesseract"),
		TesseractCLI: tesseractConfig(v, "backends.tesseract_cli"),
		Claude:       providerConfig(v, "backends.claude"),
		Gemini:       providerConfig(v, "backends.gemini"),
		OpenAI:       providerConfig(v, "backends.openai"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "180s")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "docscan")
	v.SetDefault("db.password", "docscan_secret")
	v.SetDefault("db.name", "docscan_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// S3 defaults
	v.SetDefault("s3.region", "eu-central-1")
	v.SetDefault("s3.bucket", "docscan-inbox")
	v.SetDefault("s3.endpoint", "")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Pipeline defaults
	v.SetDefault("pipeline.backends", "pdftext,tesseract,tesseract_cli")
	v.SetDefault("pipeline.mode", "sequential")
	v.SetDefault("pipeline.max_parallel", 3)
	v.SetDefault("pipeline.backend_timeout", "30s")
	v.SetDefault("pipeline.deadline", "120s")
	v.SetDefault("pipeline.min_confidence", 70.0)
	v.SetDefault("pipeline.min_token_confidence", 0.6)
	v.SetDefault("pipeline.overlap_iou", 0.3)
	v.SetDefault("pipeline.shrink_factor", 0.5)
	v.SetDefault("pipeline.max_upload_mb", 25)

	// Confidence defaults
	v.SetDefault("confidence.backend_weight", 0.35)
	v.SetDefault("confidence.extraction_weight", 0.30)
	v.SetDefault("confidence.validation_weight", 0.20)
	v.SetDefault("confidence.spatial_weight", 0.15)
	v.SetDefault("confidence.locale_bonus", 5.0)
	v.SetDefault("confidence.spatial_sensitivity", 4.0)
	v.SetDefault("confidence.expected_fields", "")

	// Preprocess defaults
	v.SetDefault("preprocess.enabled", true)
	v.SetDefault("preprocess.deskew", true)
	v.SetDefault("preprocess.denoise", true)
	v.SetDefault("preprocess.contrast", true)
	v.SetDefault("preprocess.rescale", true)
	v.SetDefault("preprocess.target_dpi", 300)
	v.SetDefault("preprocess.max_pixels", 40_000_000)
	v.SetDefault("preprocess.max_skew_degrees", 5.0)
	v.SetDefault("preprocess.skew_step_degrees", 0.25)

	// Backend defaults
	v.SetDefault("backends.tesseract.languages", "pol,eng")
	v.SetDefault("backends.tesseract.pool_size", 2)
	v.SetDefault("backends.tesseract.tessdata_prefix", "")
	v.SetDefault("backends.tesseract.psm", 3)
	v.SetDefault("backends.tesseract_cli.languages", "pol,eng")
	v.SetDefault("backends.tesseract_cli.binary_path", "tesseract")
	v.SetDefault("backends.tesseract_cli.psm", 3)
	v.SetDefault("backends.claude.default_model", "claude-sonnet-4-20250514")
	v.SetDefault("backends.claude.timeout_secs", 120)
	v.SetDefault("backends.gemini.default_model", "gemini-2.0-flash")
	v.SetDefault("backends.gemini.timeout_secs", 120)
	v.SetDefault("backends.openai.default_model", "gpt-4o")
	v.SetDefault("backends.openai.timeout_secs", 120)
}

func tesseractConfig(v *viper.Viper, prefix string) TesseractConfig {
	return TesseractConfig{
		Languages:      listValue(v, prefix+".languages"),
		PoolSize:       v.GetInt(prefix+".pool_size"),
		TessdataPrefix: v.GetString(prefix+".tessdata_prefix"),
		BinaryPath:     v.GetString(prefix+".binary_path"),
		PageSegMode:    v.GetInt(prefix+".psm"),
	}
}

func providerConfig(v *viper.Viper, prefix string) BackendProviderConfig {
	return BackendProviderConfig{
		APIKey:       v.GetString(prefix+".api_key"),
		DefaultModel: v.GetString(prefix+".default_model"),
		Endpoint:     v.GetString(prefix+".endpoint"),
		TimeoutSecs:  v.GetInt(prefix+".timeout_secs"),
	}
}

// listValue accepts both YAML lists and comma-separated strings.
func listValue(v *viper.Viper, key string) []string {
	raw := v.GetStringSlice(key)
	if len(raw) == 1 {
		return splitList(raw[0])
	}
	var out []string
	for _, s := range raw {
		out = append(out, splitList(s)...)
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	p := c.Pipeline
	if len(p.Backends) == 0 {
		return errors.New("config: pipeline.backends must list at least one backend")
	}
	if p.Mode != "sequential" && p.Mode != "parallel" {
		return fmt.Errorf("config: pipeline.mode must be sequential or parallel, got %q", p.Mode)
	}
	if p.MaxParallel < 1 {
		return fmt.Errorf("config: pipeline.max_parallel must be >= 1, got %d", p.MaxParallel)
	}
	if p.BackendTimeout <= 0 || p.Deadline <= 0 {
		return errors.New("config: pipeline timeouts must be positive")
	}
	if p.MinConfidence < 0 || p.MinConfidence > 100 {
		return fmt.Errorf("config: pipeline.min_confidence must be within [0,100], got %v", p.MinConfidence)
	}
	if p.ShrinkFactor <= 0 || p.ShrinkFactor >= 1 {
		return fmt.Errorf("config: pipeline.shrink_factor must be within (0,1), got %v", p.ShrinkFactor)
	}
	return c.Confidence.Validate()
}

// Validate checks that the weights are usable.
func (c *ConfidenceConfig) Validate() error {
	weights := []float64{c.BackendWeight, c.ExtractionWeight, c.ValidationWeight, c.SpatialWeight}
	var sum float64
	for _, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("config: confidence weights must be finite and non-negative, got %v", w)
		}
		sum += w
	}
	if sum == 0 {
		return errors.New("config: at least one confidence weight must be positive")
	}
	if c.LocaleBonus < 0 || c.LocaleBonus > 100 {
		return fmt.Errorf("config: confidence.locale_bonus must be within [0,100], got %v", c.LocaleBonus)
	}
	return nil
}

// DefaultConfidence returns the default confidence weighting.
func DefaultConfidence() ConfidenceConfig {
	return ConfidenceConfig{
		BackendWeight:      0.35,
		ExtractionWeight:   0.30,
		ValidationWeight:   0.20,
		SpatialWeight:      0.15,
		LocaleBonus:        5,
		SpatialSensitivity: 4,
	}
}

// DefaultPreprocess returns the default preprocessing settings.
func DefaultPreprocess() PreprocessConfig {
	return PreprocessConfig{
		Enabled:         true,
		Deskew:          true,
		Denoise:         true,
		Contrast:        true,
		Rescale:         true,
		TargetDPI:       300,
		MaxPixels:       40_000_000,
		MaxSkewDegrees:  5,
		SkewStepDegrees: 0.25,
	}
}
