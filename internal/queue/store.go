package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/chesschain/gasreld/pkg/logging"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("queue: not found")

// Config holds store connection settings.
type Config struct {
	DSN string
}

// Store provides durable queue storage and the views the eligibility engine
// reads from, backed by Postgres so that claim_next can use
// SELECT ... FOR UPDATE SKIP LOCKED across multiple dispatcher processes.
type Store struct {
	db  *sql.DB
	log *logging.Logger
}

// New opens the store's Postgres connection pool and ensures the schema exists.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, log: logging.GetDefault().Component("queue")}

	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB, for components (like tests) that need
// direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transaction_queue (
		id                  TEXT PRIMARY KEY,
		kind                TEXT NOT NULL,
		actor               TEXT,
		player_sui_address  TEXT,
		game_ref            TEXT,
		player_ref          TEXT,
		status              TEXT NOT NULL,
		payload             JSONB NOT NULL DEFAULT '{}',
		error               TEXT,
		retries             INTEGER NOT NULL DEFAULT 0,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at        TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_queue_status_actor_created ON transaction_queue(status, actor, created_at);
	CREATE INDEX IF NOT EXISTS idx_queue_player ON transaction_queue(player_sui_address);
	CREATE INDEX IF NOT EXISTS idx_queue_created ON transaction_queue(created_at);

	CREATE TABLE IF NOT EXISTS games (
		ref        TEXT PRIMARY KEY,
		object_id  TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS players (
		ref                   TEXT PRIMARY KEY,
		actor                 TEXT NOT NULL UNIQUE,
		first_move_at         TIMESTAMPTZ,
		first_game_created_at TIMESTAMPTZ,
		victories             INTEGER NOT NULL DEFAULT 0,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS rewards (
		player_ref TEXT NOT NULL,
		badge_type TEXT NOT NULL,
		object_id  TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (player_ref, badge_type)
	);

	-- The queue table is a work queue, not a history log: Worker.DrainActor
	-- deletes a row once its intent has completed, so these views cannot
	-- depend on a completed transaction_queue row still existing by the
	-- time anything reads them. first_move_at/first_game_created_at/
	-- victories on players are the durable signal, written by the
	-- processor before the triggering row is deleted. Despite their
	-- names, these views hold the actors who HAVE cleared the
	-- corresponding milestone: the eligibility engine treats presence in
	-- the view as the grant signal, so a brand-new actor with a NULL
	-- timestamp must be absent, not present.
	CREATE OR REPLACE VIEW vw_users_no_first_game AS
		SELECT actor, ref AS player_ref
		FROM players
		WHERE first_move_at IS NOT NULL;

	CREATE OR REPLACE VIEW vw_users_no_first_game_created AS
		SELECT actor, ref AS player_ref
		FROM players
		WHERE first_game_created_at IS NOT NULL;

	CREATE OR REPLACE VIEW vw_users_victories AS
		SELECT actor, victories AS wins
		FROM players
		WHERE victories > 0;
	`

	_, err := s.db.Exec(schema)
	return err
}

// Enqueue inserts a new queue row. For MintBadge, callers MUST call
// ExistsActiveMintBadge before calling Enqueue; the unique id constraint is
// the only guard Enqueue itself provides.
func (s *Store) Enqueue(ctx context.Context, in *Intent) error {
	payload, err := MarshalPayload(in.Payload)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transaction_queue (
			id, kind, actor, player_sui_address, game_ref, player_ref, status, payload, retries, created_at, updated_at
		) VALUES ($1, $2, $3, $3, $4, $5, $6, $7, 0, now(), now())
	`, in.ID, string(in.Kind), in.Actor, nullable(in.GameRef), nullable(in.PlayerRef), string(in.Status), payload)
	if err != nil {
		return fmt.Errorf("enqueue intent %s: %w", in.ID, err)
	}
	return nil
}

// ExistsActiveMintBadge reports whether a MintBadge row for the given
// (actor, player_ref, badge_type) already exists in {Pending, Processing, Completed}.
func (s *Store) ExistsActiveMintBadge(ctx context.Context, actor, playerRef, badgeType string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transaction_queue
			WHERE kind = 'MintBadge'
			  AND actor = $1
			  AND player_ref = $2
			  AND payload->>'badge_type' = $3
			  AND status IN ('Pending', 'Processing', 'Completed')
		)
	`, actor, playerRef, badgeType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate mint badge: %w", err)
	}
	return exists, nil
}

// ClaimNext atomically selects the oldest Pending row for actor and
// transitions it to Processing under a row lock, skipping rows locked by
// other dispatchers. Returns ErrNotFound if no row qualifies.
func (s *Store) ClaimNext(ctx context.Context, actor string) (*Intent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim_next begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, kind, actor, game_ref, player_ref, status, payload, error, retries, created_at, updated_at, processed_at
		FROM transaction_queue
		WHERE actor = $1 AND status = 'Pending'
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`, actor)

	intent, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim_next scan: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE transaction_queue SET status = 'Processing', updated_at = now() WHERE id = $1
	`, intent.ID); err != nil {
		return nil, fmt.Errorf("claim_next update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim_next commit: %w", err)
	}

	intent.Status = StatusProcessing
	return intent, nil
}

// ListActiveActors returns distinct actors with at least one Pending row,
// ordered by the timestamp of that actor's oldest Pending row, bounded by limit.
func (s *Store) ListActiveActors(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT actor FROM (
			SELECT actor, MIN(created_at) AS oldest
			FROM transaction_queue
			WHERE status = 'Pending' AND actor IS NOT NULL
			GROUP BY actor
		) s
		ORDER BY oldest ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list_active_actors: %w", err)
	}
	defer rows.Close()

	var actors []string
	for rows.Next() {
		var actor string
		if err := rows.Scan(&actor); err != nil {
			return nil, fmt.Errorf("list_active_actors scan: %w", err)
		}
		actors = append(actors, actor)
	}
	return actors, rows.Err()
}

// MarkCompleted sets status Completed and stamps processed_at.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transaction_queue SET status = 'Completed', processed_at = now(), updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark_completed %s: %w", id, err)
	}
	return nil
}

// MarkFailed sets status Failed, records the error, and stamps processed_at.
func (s *Store) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transaction_queue SET status = 'Failed', error = $2, processed_at = now(), updated_at = now() WHERE id = $1
	`, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark_failed %s: %w", id, err)
	}
	return nil
}

// RequeuePending returns a row to Pending after a retriable failure.
func (s *Store) RequeuePending(ctx context.Context, id, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transaction_queue SET status = 'Pending', error = $2, updated_at = now() WHERE id = $1
	`, id, errMsg)
	if err != nil {
		return fmt.Errorf("requeue_pending %s: %w", id, err)
	}
	return nil
}

// IncrementRetries atomically adds one to the row's retry counter.
func (s *Store) IncrementRetries(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transaction_queue SET retries = retries + 1, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("increment_retries %s: %w", id, err)
	}
	return nil
}

// Delete hard-deletes a queue row.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transaction_queue WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// SetGameObjectID idempotently upserts the games row's object_id.
func (s *Store) SetGameObjectID(ctx context.Context, gameRef, objectID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO games (ref, object_id, created_at) VALUES ($1, $2, now())
		ON CONFLICT (ref) DO UPDATE SET object_id = excluded.object_id
	`, gameRef, objectID)
	if err != nil {
		return fmt.Errorf("set_game_object_id %s: %w", gameRef, err)
	}
	return nil
}

// UpsertReward inserts the reward row if missing, else updates object_id and
// touches updated_at.
func (s *Store) UpsertReward(ctx context.Context, playerRef, badgeType, objectID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rewards (player_ref, badge_type, object_id, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (player_ref, badge_type) DO UPDATE SET
			object_id = excluded.object_id,
			updated_at = now()
	`, playerRef, badgeType, objectID)
	if err != nil {
		return fmt.Errorf("upsert_reward %s/%s: %w", playerRef, badgeType, err)
	}
	return nil
}

// ListWaitingForGame returns all rows in WaitingForParentId for gameRef.
func (s *Store) ListWaitingForGame(ctx context.Context, gameRef string) ([]*Intent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, actor, game_ref, player_ref, status, payload, error, retries, created_at, updated_at, processed_at
		FROM transaction_queue
		WHERE game_ref = $1 AND status = 'WaitingForParentId'
		ORDER BY created_at ASC
	`, gameRef)
	if err != nil {
		return nil, fmt.Errorf("list_waiting_for_game %s: %w", gameRef, err)
	}
	defer rows.Close()

	var out []*Intent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("list_waiting_for_game scan: %w", err)
		}
		out = append(out, intent)
	}
	return out, rows.Err()
}

// UnblockWaiting sets payload.game_object_id and transitions status to Pending.
func (s *Store) UnblockWaiting(ctx context.Context, id, objectID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE transaction_queue
		SET status = 'Pending',
		    payload = jsonb_set(payload, '{game_object_id}', to_jsonb($2::text)),
		    updated_at = now()
		WHERE id = $1
	`, id, objectID)
	if err != nil {
		return fmt.Errorf("unblock_waiting %s: %w", id, err)
	}
	return nil
}

// GCOld deletes rows with status in {Completed, Failed} older than 24 hours.
func (s *Store) GCOld(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM transaction_queue
		WHERE status IN ('Completed', 'Failed') AND created_at < now() - interval '24 hours'
	`)
	if err != nil {
		return 0, fmt.Errorf("gc_old: %w", err)
	}
	return result.RowsAffected()
}

// ReclaimStuck resets rows stuck in Processing older than the given duration
// back to Pending. Not called automatically by the dispatcher; exposed as an
// operator-invoked repair path, since silently resurrecting a submission of
// unknown chain outcome could double-submit.
func (s *Store) ReclaimStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE transaction_queue
		SET status = 'Pending', updated_at = now()
		WHERE status = 'Processing' AND updated_at < now() - ($1 || ' seconds')::interval
	`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("reclaim_stuck: %w", err)
	}
	return result.RowsAffected()
}

// PlayerRefForActor resolves an actor's player_ref. Returns ErrNotFound if the
// actor has no player record.
func (s *Store) PlayerRefForActor(ctx context.Context, actor string) (string, error) {
	var ref string
	err := s.db.QueryRowContext(ctx, `SELECT ref FROM players WHERE actor = $1`, actor).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("player_ref_for_actor %s: %w", actor, err)
	}
	return ref, nil
}

// UpsertPlayer ensures a players row exists linking ref to actor. Called by
// intake whenever an incoming request carries a player_ref, since the
// eligibility views and PlayerRefForActor both key off this table.
func (s *Store) UpsertPlayer(ctx context.Context, ref, actor string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (ref, actor) VALUES ($1, $2)
		ON CONFLICT (actor) DO NOTHING
	`, ref, actor)
	if err != nil {
		return fmt.Errorf("upsert_player %s/%s: %w", ref, actor, err)
	}
	return nil
}

// RecordFirstMove durably marks playerRef as having completed a MakeMove, so
// vw_users_no_first_game reflects it even after the triggering queue row is
// deleted. Idempotent: only the first call sets the timestamp.
func (s *Store) RecordFirstMove(ctx context.Context, playerRef string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE players SET first_move_at = now() WHERE ref = $1 AND first_move_at IS NULL
	`, playerRef)
	if err != nil {
		return fmt.Errorf("record_first_move %s: %w", playerRef, err)
	}
	return nil
}

// RecordGameCreated durably marks playerRef as having created a game, so
// vw_users_no_first_game_created reflects it even after the triggering queue
// row is deleted. Idempotent: only the first call sets the timestamp.
func (s *Store) RecordGameCreated(ctx context.Context, playerRef string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE players SET first_game_created_at = now() WHERE ref = $1 AND first_game_created_at IS NULL
	`, playerRef)
	if err != nil {
		return fmt.Errorf("record_game_created %s: %w", playerRef, err)
	}
	return nil
}

// RecordVictory increments playerRef's durable win counter, so
// vw_users_victories reflects it even after the triggering queue row is
// deleted. Called once per completed EndGame whose payload names playerRef's
// actor as the winner, never for the reporting actor alone.
func (s *Store) RecordVictory(ctx context.Context, playerRef string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE players SET victories = victories + 1 WHERE ref = $1
	`, playerRef)
	if err != nil {
		return fmt.Errorf("record_victory %s: %w", playerRef, err)
	}
	return nil
}

// InNoFirstGame reports whether actor is present in vw_users_no_first_game.
func (s *Store) InNoFirstGame(ctx context.Context, actor string) (bool, error) {
	return s.existsInView(ctx, "vw_users_no_first_game", actor)
}

// InNoFirstGameCreated reports whether actor is present in vw_users_no_first_game_created.
func (s *Store) InNoFirstGameCreated(ctx context.Context, actor string) (bool, error) {
	return s.existsInView(ctx, "vw_users_no_first_game_created", actor)
}

func (s *Store) existsInView(ctx context.Context, view, actor string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE actor = $1)`, view,
	), actor).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query %s for %s: %w", view, actor, err)
	}
	return exists, nil
}

// VictoriesTotal returns the actor's win count from vw_users_victories.
func (s *Store) VictoriesTotal(ctx context.Context, actor string) (int, error) {
	var wins int
	err := s.db.QueryRowContext(ctx, `SELECT wins FROM vw_users_victories WHERE actor = $1`, actor).Scan(&wins)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("victories_total %s: %w", actor, err)
	}
	return wins, nil
}

// RewardBadgeTypes returns the set of badge types already granted to playerRef.
func (s *Store) RewardBadgeTypes(ctx context.Context, playerRef string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT badge_type FROM rewards WHERE player_ref = $1`, playerRef)
	if err != nil {
		return nil, fmt.Errorf("reward_badge_types %s: %w", playerRef, err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var badgeType string
		if err := rows.Scan(&badgeType); err != nil {
			return nil, fmt.Errorf("reward_badge_types scan: %w", err)
		}
		set[badgeType] = true
	}
	return set, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*Intent, error) {
	var (
		in           Intent
		kind, status string
		gameRef      sql.NullString
		playerRef    sql.NullString
		errMsg       sql.NullString
		payload      []byte
		processedAt  sql.NullTime
	)

	if err := row.Scan(
		&in.ID, &kind, &in.Actor, &gameRef, &playerRef, &status, &payload, &errMsg,
		&in.Retries, &in.CreatedAt, &in.UpdatedAt, &processedAt,
	); err != nil {
		return nil, err
	}

	in.Kind = Kind(kind)
	in.Status = Status(status)
	in.GameRef = gameRef.String
	in.PlayerRef = playerRef.String
	in.Error = errMsg.String
	if processedAt.Valid {
		t := processedAt.Time
		in.ProcessedAt = &t
	}

	p, err := UnmarshalPayload(payload)
	if err != nil {
		return nil, err
	}
	in.Payload = p

	return &in, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
