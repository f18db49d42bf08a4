// Package playtest drives one narrator room from the terminal: each input
// line is an action for the selected player, and a turn runs once the gate
// lets the round advance.
package playtest

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/storyroom/internal/platform/config"
	"github.com/louisbranch/storyroom/internal/platform/otel"
	"github.com/louisbranch/storyroom/internal/platform/timeouts"
	server "github.com/louisbranch/storyroom/internal/services/narrator/app"
	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/services/narrator/llm"
	"github.com/louisbranch/storyroom/internal/services/narrator/rules"
	"github.com/louisbranch/storyroom/internal/services/narrator/seed"
	"github.com/louisbranch/storyroom/internal/services/narrator/session"
	"github.com/louisbranch/storyroom/internal/services/narrator/storage/sqlite"
)

// Config holds playtest command configuration.
type Config struct {
	DBPath   string `env:"PLAYTEST_DB_PATH" envDefault:"data/playtest.db"`
	SeedPath string `env:"SEED_PATH"`
	RoomID   string `env:"PLAYTEST_ROOM_ID" envDefault:"tavern"`
	UserID   string `env:"PLAYTEST_USER_ID"`
	// DiceSeed fixes the dice sequence when non-zero.
	DiceSeed int64 `env:"PLAYTEST_DICE_SEED"`
	LLM      llm.EnvConfig
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.SeedPath, "seed", cfg.SeedPath, "YAML seed file applied before play")
	fs.StringVar(&cfg.RoomID, "room", cfg.RoomID, "Room to play in")
	fs.StringVar(&cfg.UserID, "user", cfg.UserID, "Member to act as first (defaults to the first member)")
	fs.Int64Var(&cfg.DiceSeed, "dice-seed", cfg.DiceSeed, "Fixed dice seed (0 for random)")
	fs.StringVar(&cfg.LLM.Model, "model", cfg.LLM.Model, "Chat model name")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens the store, applies the seed and plays until in is exhausted or
// ctx ends.
func Run(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	shutdown, err := otel.Setup(ctx, "playtest")
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

	client, err := llm.NewOpenAIClient(cfg.LLM.OpenAI())
	if err != nil {
		return err
	}
	return run(ctx, cfg, client, in, out)
}

func run(ctx context.Context, cfg Config, client llm.Client, in io.Reader, out io.Writer) error {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.SeedPath != "" {
		f, err := seed.Load(cfg.SeedPath)
		if err != nil {
			return err
		}
		if err := seed.Apply(ctx, store, f); err != nil {
			return fmt.Errorf("apply seed: %w", err)
		}
	}

	runtime, err := server.NewRuntime(server.RuntimeConfig{
		Store: store,
		LLM:   client,
		NewRNG: func() (rules.RNG, error) {
			if cfg.DiceSeed != 0 {
				return rules.NewSeededRNG(cfg.DiceSeed), nil
			}
			return rules.NewRNG()
		},
	})
	if err != nil {
		return err
	}
	room, err := runtime.Room(ctx, cfg.RoomID)
	if err != nil {
		return err
	}
	members, err := store.ListMembers(ctx, cfg.RoomID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return fmt.Errorf("room %s has no members; seed one first", cfg.RoomID)
	}

	p := &player{room: room, members: members, render: newRenderer(out)}
	if err := p.selectMember(cfg.UserID); err != nil {
		return err
	}
	return p.loop(ctx, in)
}

// player is the terminal loop state.
type player struct {
	room    *session.Coordinator
	members []game.Member
	current game.Member
	pending []game.PlayerAction
	render  *renderer
}

func (p *player) selectMember(ref string) error {
	if ref == "" {
		p.current = p.members[0]
		return nil
	}
	for _, m := range p.members {
		if m.UserID == ref || strings.EqualFold(m.Username, ref) {
			p.current = m
			return nil
		}
	}
	return fmt.Errorf("no member %q", ref)
}

func (p *player) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	p.render.system(fmt.Sprintf("room %s, %d members. /as <name>, /status, /quit", p.room.RoomID(), len(p.members)))
	for {
		p.render.promptFor(p.current.Actor())
		if !scanner.Scan() {
			fmt.Fprintln(p.render.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/status":
			p.status()
			continue
		case strings.HasPrefix(line, "/as "):
			if err := p.selectMember(strings.TrimSpace(strings.TrimPrefix(line, "/as "))); err != nil {
				p.render.errorf("%v", err)
			}
			continue
		}

		if err := p.submit(ctx, line); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// submit queues the current member's action, replacing any earlier one this
// round, and runs the turn once the gate allows.
func (p *player) submit(ctx context.Context, text string) error {
	if !p.room.CanAct(p.current.UserID, p.current.CharacterID) {
		p.render.errorf("%s cannot act right now", p.current.Actor())
		p.render.gate(p.room.GateStatus())
		return nil
	}
	action := game.PlayerAction{
		UserID:        p.current.UserID,
		Username:      p.current.Username,
		CharacterID:   p.current.CharacterID,
		CharacterName: p.current.CharacterName,
		Text:          text,
		Timestamp:     time.Now(),
	}
	replaced := false
	for i, queued := range p.pending {
		if queued.UserID == action.UserID {
			p.pending[i] = action
			replaced = true
		}
	}
	if !replaced {
		p.pending = append(p.pending, action)
	}

	if !p.room.CanAdvance(p.pending, len(p.members)) {
		p.render.system(fmt.Sprintf("waiting for other players (%d/%d)", len(p.pending), len(p.members)))
		return nil
	}

	actions := p.pending
	p.pending = nil
	turn := p.room.ProcessTurn(ctx, actions)
	defer turn.Close()
	for e := range turn.Events() {
		p.render.event(e)
	}
	if err := turn.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.render.errorf("turn failed: %v", err)
	}
	return nil
}

func (p *player) status() {
	p.render.system(fmt.Sprintf("mode: %s", p.room.Mode()))
	p.render.gate(p.room.GateStatus())
	state := p.room.State()
	for _, id := range state.CharacterIDs() {
		c := state.Characters[id]
		line := fmt.Sprintf("%s: %d HP", id, c.CurrentHP)
		if c.TempHP > 0 {
			line += fmt.Sprintf(" +%d temp", c.TempHP)
		}
		for _, condition := range c.Conditions {
			line += ", " + condition.Name
		}
		p.render.system(line)
	}
}
