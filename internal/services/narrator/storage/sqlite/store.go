package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/louisbranch/storyroom/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/services/narrator/storage"
	"github.com/louisbranch/storyroom/internal/services/narrator/storage/sqlite/migrations"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Store provides SQLite-backed persistence for narrator records.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var (
	_ storage.TemplateStore  = (*Store)(nil)
	_ storage.RosterStore    = (*Store)(nil)
	_ storage.RoomStateStore = (*Store)(nil)
)

// Open opens a SQLite store at the provided path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.db.PingContext(ctx)
}

type templateRow struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	Class         string `db:"class"`
	Race          string `db:"race"`
	Level         int    `db:"level"`
	AbilityScores string `db:"ability_scores_json"`
	MaxHP         int    `db:"max_hp"`
	ArmorClass    int    `db:"armor_class"`
	Background    string `db:"background"`
}

func (r templateRow) template() (game.CharacterTemplate, error) {
	t := game.CharacterTemplate{
		ID:         r.ID,
		Name:       r.Name,
		Class:      r.Class,
		Race:       r.Race,
		Level:      r.Level,
		MaxHP:      r.MaxHP,
		ArmorClass: r.ArmorClass,
		Background: r.Background,
	}
	if err := json.Unmarshal([]byte(r.AbilityScores), &t.AbilityScores); err != nil {
		return game.CharacterTemplate{}, fmt.Errorf("decode ability scores for %s: %w", r.ID, err)
	}
	return t, nil
}

const templateColumns = `id, name, class, race, level, ability_scores_json, max_hp, armor_class, background`

// PutTemplate inserts or replaces a character template.
func (s *Store) PutTemplate(ctx context.Context, template game.CharacterTemplate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(template.ID) == "" {
		return fmt.Errorf("template id is required")
	}
	if strings.TrimSpace(template.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	scores := template.AbilityScores
	if scores == nil {
		scores = game.AbilityScores{}
	}
	encoded, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("encode ability scores: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO character_templates (
	id, name, class, race, level, ability_scores_json, max_hp, armor_class, background, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	class = excluded.class,
	race = excluded.race,
	level = excluded.level,
	ability_scores_json = excluded.ability_scores_json,
	max_hp = excluded.max_hp,
	armor_class = excluded.armor_class,
	background = excluded.background,
	updated_at = excluded.updated_at
`,
		template.ID,
		template.Name,
		template.Class,
		template.Race,
		template.Level,
		string(encoded),
		template.MaxHP,
		template.ArmorClass,
		template.Background,
		toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("put template: %w", err)
	}
	return nil
}

// GetTemplate fetches a template by id.
func (s *Store) GetTemplate(ctx context.Context, id string) (game.CharacterTemplate, error) {
	if err := ctx.Err(); err != nil {
		return game.CharacterTemplate{}, err
	}
	var row templateRow
	err := s.db.GetContext(ctx, &row, `SELECT `+templateColumns+` FROM character_templates WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return game.CharacterTemplate{}, storage.ErrNotFound
	}
	if err != nil {
		return game.CharacterTemplate{}, fmt.Errorf("get template: %w", err)
	}
	return row.template()
}

// ListTemplates returns every template ordered by name.
func (s *Store) ListTemplates(ctx context.Context) ([]game.CharacterTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []templateRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+templateColumns+` FROM character_templates ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	templates := make([]game.CharacterTemplate, 0, len(rows))
	for _, row := range rows {
		t, err := row.template()
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, nil
}

type memberRow struct {
	UserID        string `db:"user_id"`
	Username      string `db:"username"`
	CharacterID   string `db:"character_id"`
	CharacterName string `db:"character_name"`
}

// PutMember adds or updates a room member. The first join time is kept.
func (s *Store) PutMember(ctx context.Context, roomID string, member game.Member) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(roomID) == "" {
		return fmt.Errorf("room id is required")
	}
	if strings.TrimSpace(member.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO room_members (room_id, user_id, username, character_id, character_name, joined_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(room_id, user_id) DO UPDATE SET
	username = excluded.username,
	character_id = excluded.character_id,
	character_name = excluded.character_name
`,
		roomID,
		member.UserID,
		member.Username,
		member.CharacterID,
		member.CharacterName,
		toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("put member: %w", err)
	}
	return nil
}

// ListMembers returns a room's members in join order.
func (s *Store) ListMembers(ctx context.Context, roomID string) ([]game.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []memberRow
	err := s.db.SelectContext(ctx, &rows, `
SELECT user_id, username, character_id, character_name
FROM room_members
WHERE room_id = ?
ORDER BY joined_at, user_id
`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	members := make([]game.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, game.Member(row))
	}
	return members, nil
}

// RemoveMember deletes a room member.
func (s *Store) RemoveMember(ctx context.Context, roomID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM room_members WHERE room_id = ? AND user_id = ?`, roomID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SaveRoomState stores a JSON snapshot of the room's game state.
func (s *Store) SaveRoomState(ctx context.Context, state *game.GameState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state == nil || strings.TrimSpace(state.RoomID) == "" {
		return fmt.Errorf("room id is required")
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode room state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO room_states (room_id, state_json, updated_at) VALUES (?, ?, ?)
ON CONFLICT(room_id) DO UPDATE SET
	state_json = excluded.state_json,
	updated_at = excluded.updated_at
`, state.RoomID, string(encoded), toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("save room state: %w", err)
	}
	return nil
}

// LoadRoomState returns the last saved snapshot for roomID.
func (s *Store) LoadRoomState(ctx context.Context, roomID string) (*game.GameState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT state_json FROM room_states WHERE room_id = ?`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load room state: %w", err)
	}
	state := game.NewGameState(roomID)
	if err := json.Unmarshal([]byte(raw), state); err != nil {
		return nil, fmt.Errorf("decode room state: %w", err)
	}
	if state.Characters == nil {
		state.Characters = make(map[string]*game.CharacterState)
	}
	if state.Overlays == nil {
		state.Overlays = make(map[string]game.CharacterOverlay)
	}
	if state.World.Flags == nil {
		state.World.Flags = make(map[string]bool)
	}
	return state, nil
}
