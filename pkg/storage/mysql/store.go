// Package mysql provides MySQL-backed message and profile stores,
// compatible with MySQL-protocol databases. Embeddings are stored as
// JSON text; similarity is computed in memory by the retrieval layer.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/go-sql-driver/mysql"

	"github.com/recollect-ai/recollect-go/pkg/profile"
	"github.com/recollect-ai/recollect-go/pkg/storage"
)

// Config contains MySQL connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// Store implements storage.MessageStore and profile.Store on MySQL.
type Store struct {
	db   *sql.DB
	node *snowflake.Node
}

// NewStore connects to MySQL and initializes the schema.
func NewStore(cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mysql: config is required")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("mysql: id generator: %w", err)
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
			id VARCHAR(32) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			task_id INT NOT NULL,
			is_user TINYINT(1) NOT NULL,
			content TEXT NOT NULL,
			timestamp DATETIME(6) NOT NULL,
			embedding LONGTEXT,
			importance_score DOUBLE NOT NULL DEFAULT 0.5,
			consolidation_g DOUBLE NOT NULL DEFAULT 1.0,
			recall_count INT NOT NULL DEFAULT 0,
			last_recall_at DATETIME(6),
			emotional_salience DOUBLE NOT NULL DEFAULT 0.0,
			INDEX idx_chat_messages_user_task (user_id, task_id)
		)`
	const profiles = `
		CREATE TABLE IF NOT EXISTS user_profiles (
			user_id VARCHAR(255) PRIMARY KEY,
			profile LONGTEXT NOT NULL,
			last_consolidated_task_id INT NOT NULL DEFAULT 0,
			updated_at DATETIME(6) NOT NULL
		)`

	for _, query := range []string{messages, profiles} {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("mysql: init tables: %w", err)
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0.0)`,
		msg.ID, msg.UserID, msg.TaskID, msg.IsUser, msg.Content,
		msg.Timestamp, msg.ImportanceScore, msg.ConsolidationG)
	if err != nil {
		return nil, fmt.Errorf("mysql: append: %w", err)
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
		WHERE user_id = ? AND task_id < ?
		ORDER BY task_id, timestamp, id`, userID, taskID)
}

// ListForTask returns one session's messages.
func (s *Store) ListForTask(ctx context.Context, userID string, taskID int) ([]*storage.Message, error) {
	return s.query(ctx, `
		SELECT `+selectColumns+`
		FROM chat_messages
		WHERE user_id = ? AND task_id = ?
		ORDER BY timestamp, id`, userID, taskID)
}

// ListAll returns every message of the user.
func (s *Store) ListAll(ctx context.Context, userID string) ([]*storage.Message, error) {
	return s.query(ctx, `
		SELECT `+selectColumns+`
		FROM chat_messages
		WHERE user_id = ?
		ORDER BY task_id, timestamp, id`, userID)
}

// ListWithEmbeddings returns the user's vectorized messages, excluding
// the given task. A negative excludeTaskID excludes nothing.
func (s *Store) ListWithEmbeddings(ctx context.Context, userID string, excludeTaskID int) ([]*storage.Message, error) {
	if excludeTaskID < 0 {
		return s.query(ctx, `
			SELECT `+selectColumns+`
			FROM chat_messages
			WHERE user_id = ? AND embedding IS NOT NULL AND embedding != ''
			ORDER BY task_id, timestamp, id`, userID)
	}
	return s.query(ctx, `
		SELECT `+selectColumns+`
		FROM chat_messages
		WHERE user_id = ? AND task_id != ?
		  AND embedding IS NOT NULL AND embedding != ''
		ORDER BY task_id, timestamp, id`, userID, excludeTaskID)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*storage.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mysql: query messages: %w", err)
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
		return nil, fmt.Errorf("mysql: scan messages: %w", err)
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
		return nil, fmt.Errorf("mysql: scan message: %w", err)
	}

	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &msg.Embedding); err != nil {
			return nil, fmt.Errorf("mysql: decode embedding: %w", err)
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
	if update.Embedding != nil {
		data, err := json.Marshal(update.Embedding)
		if err != nil {
			return false, fmt.Errorf("mysql: encode embedding: %w", err)
		}
		sets = append(sets, "embedding = ?")
		args = append(args, string(data))
	}
	if update.ImportanceScore != nil {
		sets = append(sets, "importance_score = ?")
		args = append(args, *update.ImportanceScore)
	}
	if update.EmotionalSalience != nil {
		sets = append(sets, "emotional_salience = ?")
		args = append(args, *update.EmotionalSalience)
	}
	if update.ConsolidationG != nil {
		sets = append(sets, "consolidation_g = ?")
		args = append(args, *update.ConsolidationG)
	}
	if update.RecallCount != nil {
		sets = append(sets, "recall_count = ?")
		args = append(args, *update.RecallCount)
	}
	if update.LastRecallAt != nil {
		sets = append(sets, "last_recall_at = ?")
		args = append(args, *update.LastRecallAt)
	}

	args = append(args, messageID)
	result, err := s.db.ExecContext(ctx,
		"UPDATE chat_messages SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return false, fmt.Errorf("mysql: update metadata: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mysql: update metadata: %w", err)
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
		FROM user_profiles WHERE user_id = ?`, userID).Scan(&data, &lastTaskID)
	if err == sql.ErrNoRows {
		return profile.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("mysql: get profile: %w", err)
	}

	p := profile.New()
	if err := json.Unmarshal([]byte(data), p); err != nil {
		return nil, fmt.Errorf("mysql: decode profile: %w", err)
	}
	p.LastConsolidatedTaskID = lastTaskID
	return p, nil
}

// SaveProfile persists the profile and the task it was consolidated from.
func (s *Store) SaveProfile(ctx context.Context, userID string, p *profile.Profile, lastTaskID int) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("mysql: encode profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, profile, last_consolidated_task_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			profile = VALUES(profile),
			last_consolidated_task_id = VALUES(last_consolidated_task_id),
			updated_at = VALUES(updated_at)`,
		userID, string(data), lastTaskID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mysql: save profile: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
