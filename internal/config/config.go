package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Knowledge KnowledgeConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port  int
	Token string
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

// KnowledgeConfig tunes the learned-knowledge feedback loop.
type KnowledgeConfig struct {
	// SimilarityThreshold is the minimum cosine similarity for an
	// embedding-based match.
	SimilarityThreshold float64
	// LexicalThreshold is the minimum Jaccard word-overlap for the
	// lexical fallback.
	LexicalThreshold float64
	// LexicalPenalty is multiplied into the combined score of
	// lexical-fallback matches.
	LexicalPenalty float64
	// MaxMatches caps how many matches are rendered into the learned
	// context block.
	MaxMatches int
	// NoteKindPolicy is "permissive" (unknown note kinds accepted as
	// generic annotations) or "strict" (rejected at the boundary).
	NoteKindPolicy string
	// EmbedTimeout bounds every embedding call made by the feedback loop.
	EmbedTimeout time.Duration
}

type RetrievalConfig struct {
	TopK         int
	ChunkSize    int
	ChunkOverlap int
}

type LogConfig struct {
	Level string
}

const (
	NoteKindPolicyPermissive = "permissive"
	NoteKindPolicyStrict     = "strict"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "mistral-nemo",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Knowledge: KnowledgeConfig{
			SimilarityThreshold: 0.75,
			LexicalThreshold:    0.6,
			LexicalPenalty:      0.8,
			MaxMatches:          3,
			NoteKindPolicy:      NoteKindPolicyPermissive,
			EmbedTimeout:        10 * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK:         5,
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".expertmind"
	}
	return filepath.Join(home, ".expertmind")
}

// Load builds the configuration from defaults, an optional .env file in the
// working directory, and EXPERTMIND_* environment variables (highest
// precedence).
func Load() (Config, error) {
	// Missing .env is fine; only report real read errors.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return loadFromEnv(os.Getenv)
}

func loadFromEnv(getenv func(string) string) (Config, error) {
	cfg := defaults()

	if v := getenv("EXPERTMIND_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parsing EXPERTMIND_PORT: %w", err)
		}
		cfg.Server.Port = p
	}
	if v := getenv("EXPERTMIND_API_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := getenv("EXPERTMIND_OLLAMA_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := getenv("EXPERTMIND_CHAT_MODEL"); v != "" {
		cfg.Ollama.ChatModel = v
	}
	if v := getenv("EXPERTMIND_EMBED_MODEL"); v != "" {
		cfg.Ollama.EmbedModel = v
	}
	if v := getenv("EXPERTMIND_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := getenv("EXPERTMIND_NOTE_KIND_POLICY"); v != "" {
		if v != NoteKindPolicyPermissive && v != NoteKindPolicyStrict {
			return Config{}, fmt.Errorf("invalid EXPERTMIND_NOTE_KIND_POLICY %q (want %q or %q)", v, NoteKindPolicyPermissive, NoteKindPolicyStrict)
		}
		cfg.Knowledge.NoteKindPolicy = v
	}
	if v := getenv("EXPERTMIND_EMBED_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parsing EXPERTMIND_EMBED_TIMEOUT: %w", err)
		}
		cfg.Knowledge.EmbedTimeout = d
	}
	if v := getenv("EXPERTMIND_TOP_K"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parsing EXPERTMIND_TOP_K: %w", err)
		}
		cfg.Retrieval.TopK = k
	}
	if v := getenv("EXPERTMIND_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if cfg.Server.Token == "" {
		return Config{}, fmt.Errorf("missing required config: API token. Set it via EXPERTMIND_API_TOKEN or a .env file")
	}

	return cfg, nil
}
