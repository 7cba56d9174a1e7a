package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var ErrMissingModel = errors.New("no generation model configured")

type Config struct {
	LogLevel string         `yaml:"log_level"`
	LLM      LLMConfig      `yaml:"llm"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	RAG      RAGConfig      `yaml:"rag"`
	VectorDB VectorDBConfig `yaml:"vector_db"`
	Storage  StorageConfig  `yaml:"storage"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Scraper  ScraperConfig  `yaml:"scraper"`
}

// LLMConfig is shared by the generation and the embedding model.
type LLMConfig struct {
	Provider      string   `yaml:"provider"`
	BaseURL       string   `yaml:"base_url"`
	Key           string   `yaml:"key"`
	Model         string   `yaml:"model"`
	AllowedModels []string `yaml:"allowed_models"`
	Temperature   float64  `yaml:"temperature"`
	TopP          float64  `yaml:"top_p"`
	TopK          int      `yaml:"top_k"`
	RepeatPenalty float64  `yaml:"repeat_penalty"`
	MaxTokens     int      `yaml:"max_tokens"`
}

type RAGConfig struct {
	K              int      `yaml:"k"`
	FetchK         int      `yaml:"fetch_k"`
	LambdaMult     *float64 `yaml:"lambda_mult"`
	MaxChars       int      `yaml:"max_chars"`
	MinTruncate    int      `yaml:"min_truncate"`
	ChunkSize      int      `yaml:"chunk_size"`
	ChunkOverlap   int      `yaml:"chunk_overlap"`
	MinChunkLength int      `yaml:"min_chunk_length"`
	DefaultMode    string   `yaml:"default_mode"`
	EncryptionKey  string   `yaml:"encryption_key"`
}

// Lambda is the MMR relevance weight clamped to [0, 1]. Zero picks purely for
// diversity; unset means DefaultLambdaMult.
func (r RAGConfig) Lambda() float64 {
	if r.LambdaMult == nil {
		return DefaultLambdaMult
	}
	return min(max(*r.LambdaMult, 0), 1)
}

type VectorDBConfig struct {
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	InMemory   bool   `yaml:"in_memory"`
	Compress   bool   `yaml:"compress"`
}

type StorageConfig struct {
	Driver       string `yaml:"driver"`
	ResultsFile  string `yaml:"results_file"`
	FeedbackFile string `yaml:"feedback_file"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AdminPassword  string   `yaml:"admin_password"`
}

type ScraperConfig struct {
	OutDir     string        `yaml:"out_dir"`
	Wait       time.Duration `yaml:"wait"`
	Timeout    time.Duration `yaml:"timeout"`
	ControlURL string        `yaml:"control_url"`
	Headless   *bool         `yaml:"headless"`
	UserAgent  string        `yaml:"user_agent"`
}

const (
	DefaultK              = 2
	DefaultFetchK         = 5
	DefaultLambdaMult     = 0.5
	DefaultMaxChars       = 1500
	DefaultMinTruncate    = 200
	DefaultChunkSize      = 1500
	DefaultChunkOverlap   = 200
	DefaultMinChunkLength = 150
)

// LoadConfig reads the YAML file at path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("path", path).Msg("Config file not found, using defaults")
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "debug"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "ollama"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "http://localhost:11434"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "my-finetuned"
	}
	if len(c.LLM.AllowedModels) == 0 {
		c.LLM.AllowedModels = []string{c.LLM.Model, "llama3.2"}
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.TopP == 0 {
		c.LLM.TopP = 0.9
	}
	if c.LLM.TopK == 0 {
		c.LLM.TopK = 35
	}
	if c.LLM.RepeatPenalty == 0 {
		c.LLM.RepeatPenalty = 1.15
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 450
	}

	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = "ollama"
	}
	if c.EmbedLLM.BaseURL == "" {
		c.EmbedLLM.BaseURL = c.LLM.BaseURL
	}
	if c.EmbedLLM.Model == "" {
		c.EmbedLLM.Model = "nomic-embed-text"
	}

	if c.RAG.K == 0 {
		c.RAG.K = DefaultK
	}
	if c.RAG.FetchK == 0 {
		c.RAG.FetchK = DefaultFetchK
	}
	if c.RAG.LambdaMult == nil {
		lambda := DefaultLambdaMult
		c.RAG.LambdaMult = &lambda
	}
	if c.RAG.MaxChars == 0 {
		c.RAG.MaxChars = DefaultMaxChars
	}
	if c.RAG.MinTruncate == 0 {
		c.RAG.MinTruncate = DefaultMinTruncate
	}
	if c.RAG.ChunkSize == 0 || c.RAG.ChunkOverlap == 0 {
		c.RAG.ChunkSize = DefaultChunkSize
		c.RAG.ChunkOverlap = DefaultChunkOverlap
	}
	if c.RAG.MinChunkLength == 0 {
		c.RAG.MinChunkLength = DefaultMinChunkLength
	}
	if c.RAG.DefaultMode == "" {
		c.RAG.DefaultMode = "strict"
	}

	if c.VectorDB.Path == "" {
		c.VectorDB.Path = "./finance_db"
	}
	if c.VectorDB.Collection == "" {
		c.VectorDB.Collection = "finance_knowledge"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "json"
	}
	if c.Storage.ResultsFile == "" {
		c.Storage.ResultsFile = "data/test_results.json"
	}
	if c.Storage.FeedbackFile == "" {
		c.Storage.FeedbackFile = "data/user_feedback.json"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:8080", "http://localhost:3000"}
	}

	if c.Scraper.OutDir == "" {
		c.Scraper.OutDir = "pdfs"
	}
	if c.Scraper.Wait == 0 {
		c.Scraper.Wait = 15 * time.Second
	}
	if c.Scraper.Timeout == 0 {
		c.Scraper.Timeout = time.Minute
	}
	if c.Scraper.Headless == nil {
		headless := true
		c.Scraper.Headless = &headless
	}
}

// ApplyEnv lets the environment override secrets and the model choice.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("FINLIT_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("FINLIT_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("FINLIT_LLM_KEY"); v != "" {
		c.LLM.Key = v
	}
	if v := os.Getenv("FINLIT_ADMIN_PASSWORD"); v != "" {
		c.Server.AdminPassword = v
	}
	if v := os.Getenv("FINLIT_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
}

// ModelAllowed reports whether name may be selected for a session.
func (c *LLMConfig) ModelAllowed(name string) bool {
	for _, m := range c.AllowedModels {
		if m == name {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	if c.LLM.Model == "" {
		return ErrMissingModel
	}
	if c.RAG.MinTruncate >= c.RAG.MaxChars {
		return fmt.Errorf("rag.min_truncate (%d) must be below rag.max_chars (%d)", c.RAG.MinTruncate, c.RAG.MaxChars)
	}
	if l := c.RAG.LambdaMult; l != nil && (*l < 0 || *l > 1) {
		return fmt.Errorf("rag.lambda_mult (%g) must be between 0 and 1", *l)
	}
	if c.RAG.K > c.RAG.FetchK {
		return fmt.Errorf("rag.k (%d) must not exceed rag.fetch_k (%d)", c.RAG.K, c.RAG.FetchK)
	}
	switch c.Storage.Driver {
	case "json", "postgres":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
