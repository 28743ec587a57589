package store

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/cwrk-planet/room-chat/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const pgUniqueViolation = "23505"

type PostgresConfig struct {
	DSN               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ApplicationName   string // пусто: не устанавливать
}

type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore создаёт пул, проверяет Ping() и применяет схему.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if cfg.ApplicationName != "" {
		if pc.ConnConfig.RuntimeParams == nil {
			pc.ConnConfig.RuntimeParams = map[string]string{}
		}
		pc.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}

	s := &PostgresStore{db: pool}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) CreateRoom(ctx context.Context, room *domain.Room) error {
	cmd, err := s.db.Exec(ctx, `
		INSERT INTO rooms (key, name, owner_id, members, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO NOTHING`,
		string(room.Key), room.Name, string(room.OwnerID), membersToText(room.Members), room.CreatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) GetRoom(ctx context.Context, key domain.RoomKey) (*domain.Room, error) {
	row := s.db.QueryRow(ctx,
		`SELECT key, name, owner_id, members, created_at FROM rooms WHERE key=$1`, string(key))
	rm, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rm, nil
}

func (s *PostgresStore) PutRoom(ctx context.Context, room *domain.Room) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rooms (key, name, owner_id, members, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET members = EXCLUDED.members, name = EXCLUDED.name`,
		string(room.Key), room.Name, string(room.OwnerID), membersToText(room.Members), room.CreatedAt)
	return err
}

func (s *PostgresStore) DeleteRoom(ctx context.Context, key domain.RoomKey) error {
	cmd, err := s.db.Exec(ctx, `DELETE FROM rooms WHERE key=$1`, string(key))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListRoomsByOwner(ctx context.Context, owner domain.UserID) ([]domain.Room, error) {
	rows, err := s.db.Query(ctx, `
		SELECT key, name, owner_id, members, created_at
		FROM rooms
		WHERE owner_id=$1
		ORDER BY created_at ASC, key ASC`, string(owner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Room, 0)
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rm)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(u.ID), u.Username, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return mapPgErr(err)
}

func (s *PostgresStore) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return s.getUser(ctx, `SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE id=$1`, string(id))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.getUser(ctx, `SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE username=$1`, username)
}

func (s *PostgresStore) UpdateUser(ctx context.Context, u *domain.User) error {
	cmd, err := s.db.Exec(ctx, `
		UPDATE users SET username=$2, email=$3, password_hash=$4, updated_at=$5
		WHERE id=$1`,
		string(u.ID), u.Username, u.Email, u.PasswordHash, u.UpdatedAt)
	if err != nil {
		return mapPgErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) getUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var u domain.User
	var id string
	err := s.db.QueryRow(ctx, query, arg).
		Scan(&id, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.ID = domain.UserID(id)
	return &u, nil
}

func scanRoom(row pgx.Row) (*domain.Room, error) {
	var (
		rm      domain.Room
		key     string
		owner   string
		members []string
	)
	if err := row.Scan(&key, &rm.Name, &owner, &members, &rm.CreatedAt); err != nil {
		return nil, err
	}
	rm.Key = domain.RoomKey(key)
	rm.OwnerID = domain.UserID(owner)
	rm.Members = make([]domain.UserID, 0, len(members))
	for _, m := range members {
		rm.Members = append(rm.Members, domain.UserID(m))
	}
	return &rm, nil
}

func membersToText(members []domain.UserID) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, string(m))
	}
	return out
}

func mapPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrAlreadyExists
	}
	return err
}
