// Package mcp parses rules MCP command flags and serves the rules tools over
// stdio.
package mcp

import (
	"context"
	"flag"
	"log"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/storyroom/internal/platform/config"
	"github.com/louisbranch/storyroom/internal/platform/otel"
	"github.com/louisbranch/storyroom/internal/platform/timeouts"
	"github.com/louisbranch/storyroom/internal/services/narrator/rules"
	"github.com/louisbranch/storyroom/internal/services/narrator/rulesmcp"
	"github.com/louisbranch/storyroom/internal/services/narrator/storage/sqlite"
)

// Config holds MCP command configuration.
type Config struct {
	DBPath string `env:"NARRATOR_DB_PATH" envDefault:"data/narrator.db"`
	RoomID string `env:"MCP_ROOM_ID"`
	// Seed fixes the dice sequence when non-zero.
	Seed int64 `env:"MCP_DICE_SEED"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.RoomID, "room", cfg.RoomID, "Default room for tool calls")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Fixed dice seed (0 for random)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run serves the rules MCP server over stdio.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "mcp")
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

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	rng, err := newRNG(cfg.Seed)
	if err != nil {
		return err
	}
	srv, err := rulesmcp.New(store, rng, cfg.RoomID)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, &sdkmcp.StdioTransport{})
}

func newRNG(seed int64) (rules.RNG, error) {
	if seed != 0 {
		return rules.NewSeededRNG(seed), nil
	}
	return rules.NewRNG()
}
