// Package postgres provides PostgreSQL-backed message and profile
// stores. Embeddings are stored as JSON text; similarity is computed in
// memory by the retrieval layer.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/lib/pq"

	"github.com/recollect-ai/recollect-go/pkg/profile"
	"github.com/recollect-ai/recollect-go/pkg/storage"
)

// Config contains PostgreSQL connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Store implements storage.MessageStore and profile.Store on PostgreSQL.
type Store struct {
	db   *sql.DB
	node *snowflake.Node
}

// NewStore connects to PostgreSQL and initializes the schema.
func NewStore(cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("postgres: config is required")
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("postgres: id generator: %w", err)
	}

	s := &Store{db: db, node: node}
	if err := s.initTables(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initTables(ctx context.Context) error {
	const messages = `
		CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			task_id INTEGER NOT NULL,
			is_user BOOLEAN NOT NULL,
			content TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			embedding TEXT,
			importance_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			consolidation_g DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			recall_count INTEGER NOT NULL DEFAULT 0,
			last_recall_at TIMESTAMPTZ,
			emotional_salience DOUBLE PRECISION NOT NULL DEFAULT 0.0
		)`
	const messagesIdx = `
		CREATE INDEX IF NOT EXISTS idx_chat_messages_user_task
		ON chat_messages (user_id, task_id)`
	const profiles = `
		CREATE TABLE IF NOT EXISTS user_profiles (
			user_id TEXT PRIMARY KEY,
			profile TEXT NOT NULL,
			last_consolidated_task_id INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL
		)`

	for _, query := range []string{messages, messagesIdx, profiles} {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("postgres: init tables: %w", err)
		}
	}
	return nil
}

// Append records a new utterance.
func (s *Store) Append(ctx context.Context, userID string, taskID int, content string, isUser bool) (*storage.Message, error) {
	msg := &storage.Message{
		ID:              s.node.Generate().String(),
		UserID:          userID,
		TaskID:          taskID,
		IsUser:          isUser,
		Content:         content,
		Timestamp:       time.Now().UTC(),
		ImportanceScore: 0.5,
		ConsolidationG:  1.0,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages
			(id, user_id, task_id, is_user, content, timestamp,
			 importance_score, consolidation_g, recall_count, emotional_salience)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 0.0)`,
		msg.ID, msg.UserID, msg.TaskID, msg.IsUser, msg.Content,
		msg.Timestamp, msg.ImportanceScore, msg.ConsolidationG)
	if err != nil {
		return nil, fmt.Errorf("postgres: append: %w", err)
	}
	return msg, nil
}

const selectColumns = `
	id, user_id, task_id, is_user, content, timestamp, embedding,
	importance_score, consolidation_g, recall_count, last_recall_at,
	emotional_salience`

// ListBeforeTask returns the user's messages from tasks before taskID.
func (s *Store) ListBeforeTask(ctx context.Context, userID string, taskID int) ([]*storage.Message, error) {
	return s.query(ctx, `
		SELECT `+selectColumns+`
		FROM chat_messages
		WHERE user_id = $1 AND task_id < $2
		ORDER BY task_id, timestamp, id`, userID, taskID)
}

// ListForTask returns one session's messages.
func (s *Store) ListForTask(ctx context.Context, userID string, taskID int) ([]*storage.Message, error) {
	return s.query(ctx, `
		SELECT `+selectColumns+`
		FROM chat_messages
		WHERE user_id = $1 AND task_id = $2
		ORDER BY timestamp, id`, userID, taskID)
}

// ListAll returns every message of the user.
func (s *Store) ListAll(ctx context.Context, userID string) ([]*storage.Message, error) {
	return s.query(ctx, `
		SELECT `+selectColumns+`
		FROM chat_messages
		WHERE user_id = $1
		ORDER BY task_id, timestamp, id`, userID)
}

// ListWithEmbeddings returns the user's vectorized messages, excluding
// the given task. A negative excludeTaskID excludes nothing.
func (s *Store) ListWithEmbeddings(ctx context.Context, userID string, excludeTaskID int) ([]*storage.Message, error) {
	if excludeTaskID < 0 {
		return s.query(ctx, `
			SELECT `+selectColumns+`
			FROM chat_messages
			WHERE user_id = $1 AND embedding IS NOT NULL AND embedding != ''
			ORDER BY task_id, timestamp, id`, userID)
	}
	return s.query(ctx, `
		SELECT `+selectColumns+`
		FROM chat_messages
		WHERE user_id = $1 AND task_id != $2
		  AND embedding IS NOT NULL AND embedding != ''
		ORDER BY task_id, timestamp, id`, userID, excludeTaskID)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*storage.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query messages: %w", err)
	}
	defer rows.Close()

	var out []*storage.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan messages: %w", err)
	}
	return out, nil
}

func scanMessage(rows *sql.Rows) (*storage.Message, error) {
	var (
		msg          storage.Message
		embedding    sql.NullString
		lastRecallAt sql.NullTime
	)
	err := rows.Scan(&msg.ID, &msg.UserID, &msg.TaskID, &msg.IsUser, &msg.Content,
		&msg.Timestamp, &embedding, &msg.ImportanceScore, &msg.ConsolidationG,
		&msg.RecallCount, &lastRecallAt, &msg.EmotionalSalience)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan message: %w", err)
	}

	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &msg.Embedding); err != nil {
			return nil, fmt.Errorf("postgres: decode embedding: %w", err)
		}
	}
	if lastRecallAt.Valid {
		t := lastRecallAt.Time
		msg.LastRecallAt = &t
	}
	return &msg, nil
}

// UpdateMetadata applies a partial update to one message in a single
// UPDATE statement.
func (s *Store) UpdateMetadata(ctx context.Context, messageID string, update *storage.MetadataUpdate) (bool, error) {
	if update == nil || update.IsZero() {
		return false, nil
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Embedding != nil {
		data, err := json.Marshal(update.Embedding)
		if err != nil {
			return false, fmt.Errorf("postgres: encode embedding: %w", err)
		}
		add("embedding", string(data))
	}
	if update.ImportanceScore != nil {
		add("importance_score", *update.ImportanceScore)
	}
	if update.EmotionalSalience != nil {
		add("emotional_salience", *update.EmotionalSalience)
	}
	if update.ConsolidationG != nil {
		add("consolidation_g", *update.ConsolidationG)
	}
	if update.RecallCount != nil {
		add("recall_count", *update.RecallCount)
	}
	if update.LastRecallAt != nil {
		add("last_recall_at", *update.LastRecallAt)
	}

	args = append(args, messageID)
	query := fmt.Sprintf("UPDATE chat_messages SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("postgres: update metadata: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: update metadata: %w", err)
	}
	return affected > 0, nil
}

// GetProfile returns the user's profile, or an empty skeleton.
func (s *Store) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	var (
		data       string
		lastTaskID int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT profile, last_consolidated_task_id
		FROM user_profiles WHERE user_id = $1`, userID).Scan(&data, &lastTaskID)
	if err == sql.ErrNoRows {
		return profile.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get profile: %w", err)
	}

	p := profile.New()
	if err := json.Unmarshal([]byte(data), p); err != nil {
		return nil, fmt.Errorf("postgres: decode profile: %w", err)
	}
	p.LastConsolidatedTaskID = lastTaskID
	return p, nil
}

// SaveProfile persists the profile and the task it was consolidated from.
func (s *Store) SaveProfile(ctx context.Context, userID string, p *profile.Profile, lastTaskID int) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("postgres: encode profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, profile, last_consolidated_task_id, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			profile = EXCLUDED.profile,
			last_consolidated_task_id = EXCLUDED.last_consolidated_task_id,
			updated_at = EXCLUDED.updated_at`,
		userID, string(data), lastTaskID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: save profile: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
