// Package narrator parses narrator command flags and launches the narrator
// service.
package narrator

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/louisbranch/storyroom/internal/platform/config"
	"github.com/louisbranch/storyroom/internal/platform/otel"
	"github.com/louisbranch/storyroom/internal/platform/timeouts"
	server "github.com/louisbranch/storyroom/internal/services/narrator/app"
	"github.com/louisbranch/storyroom/internal/services/narrator/llm"
)

// Config holds narrator command configuration.
type Config struct {
	Port             int    `env:"NARRATOR_PORT" envDefault:"8090"`
	DBPath           string `env:"NARRATOR_DB_PATH" envDefault:"data/narrator.db"`
	SeedPath         string `env:"SEED_PATH"`
	SystemPromptPath string `env:"NARRATOR_SYSTEM_PROMPT_PATH"`
	LLM              llm.EnvConfig
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The narrator gRPC port (turns and health)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.SeedPath, "seed", cfg.SeedPath, "YAML seed file applied at startup")
	fs.StringVar(&cfg.SystemPromptPath, "system-prompt", cfg.SystemPromptPath, "File overriding the narrator system prompt")
	fs.StringVar(&cfg.LLM.Model, "model", cfg.LLM.Model, "Chat model name")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the narrator service.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "narrator")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	prompt, err := LoadSystemPrompt(cfg.SystemPromptPath)
	if err != nil {
		return err
	}
	return server.Run(ctx, server.Config{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		DBPath:       cfg.DBPath,
		SeedPath:     cfg.SeedPath,
		LLM:          cfg.LLM.OpenAI(),
		SystemPrompt: prompt,
	})
}

// LoadSystemPrompt reads a prompt override. An empty path yields "", which
// selects the built-in prompt.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	return string(data), nil
}
