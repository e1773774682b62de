package account

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
)

//go:embed schema.sql
var schema string

// PostgresStore is the Store backed by a pgx connection pool.
type PostgresStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{DB: pool}
}

// Migrate creates the tables if they are missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCalendarSources(ctx context.Context, userID string) ([]CalendarSource, error) {
	q := `SELECT calendar_id, user_id, summary, is_hidden, access_role, is_primary
	      FROM calendar_sources WHERE user_id=$1 ORDER BY is_primary DESC, calendar_id`
	rows, err := s.DB.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CalendarSource
	for rows.Next() {
		var src CalendarSource
		var role string
		if err := rows.Scan(&src.CalendarID, &src.OwnerUserID, &src.Summary,
			&src.IsHidden, &role, &src.IsPrimary); err != nil {
			return nil, err
		}
		src.AccessRole = AccessRole(role)
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListContacts(ctx context.Context, userID string) ([]Contact, error) {
	q := `SELECT display_name, email, calendar_id FROM contacts WHERE user_id=$1 ORDER BY id`
	rows, err := s.DB.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.DisplayName, &c.Email, &c.CalendarID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetAvailabilityTemplate(ctx context.Context, userID string) (*AvailabilityTemplate, error) {
	q := `SELECT weekdays, day_start_minutes, day_end_minutes, timezone, updated_at
	      FROM availability_templates WHERE user_id=$1`
	var (
		days       []int32
		start, end int
		tpl        AvailabilityTemplate
	)
	err := s.DB.QueryRow(ctx, q, userID).Scan(&days, &start, &end, &tpl.Timezone, &tpl.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		tpl.Weekdays = append(tpl.Weekdays, time.Weekday(d))
	}
	tpl.DayStart = time.Duration(start) * time.Minute
	tpl.DayEnd = time.Duration(end) * time.Minute
	return &tpl, nil
}

func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	q := `SELECT id, email, display_name FROM users WHERE lower(email)=lower($1) LIMIT 1`
	var u User
	err := s.DB.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.DisplayName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) UpsertUser(ctx context.Context, u User) error {
	q := `INSERT INTO users (id, email, display_name) VALUES ($1,$2,$3)
	      ON CONFLICT (id) DO UPDATE SET email=EXCLUDED.email,
	        display_name=COALESCE(NULLIF(EXCLUDED.display_name, ''), users.display_name)`
	_, err := s.DB.Exec(ctx, q, u.ID, u.Email, u.DisplayName)
	return err
}

// ReplaceCalendarSources swaps the user's linked calendars in one transaction;
// calendars missing from sources are unlinked.
func (s *PostgresStore) ReplaceCalendarSources(ctx context.Context, userID string, sources []CalendarSource) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM calendar_sources WHERE user_id=$1`, userID); err != nil {
		return err
	}
	q := `INSERT INTO calendar_sources (user_id, calendar_id, summary, is_hidden, access_role, is_primary)
	      VALUES ($1,$2,$3,$4,$5,$6)`
	for _, src := range sources {
		if _, err := tx.Exec(ctx, q, userID, src.CalendarID, src.Summary,
			src.IsHidden, string(src.AccessRole), src.IsPrimary); err != nil {
			return fmt.Errorf("link calendar %s: %w", src.CalendarID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) SetAvailabilityTemplate(ctx context.Context, userID string, tpl AvailabilityTemplate) error {
	days := make([]int32, len(tpl.Weekdays))
	for i, d := range tpl.Weekdays {
		days[i] = int32(d)
	}
	q := `INSERT INTO availability_templates
	      (user_id, weekdays, day_start_minutes, day_end_minutes, timezone, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6)
	      ON CONFLICT (user_id) DO UPDATE SET
	          weekdays=EXCLUDED.weekdays,
	          day_start_minutes=EXCLUDED.day_start_minutes,
	          day_end_minutes=EXCLUDED.day_end_minutes,
	          timezone=EXCLUDED.timezone,
	          updated_at=EXCLUDED.updated_at`
	_, err := s.DB.Exec(ctx, q, userID, days,
		int(tpl.DayStart/time.Minute), int(tpl.DayEnd/time.Minute),
		tpl.Timezone, time.Now().UTC())
	return err
}

func (s *PostgresStore) AddContact(ctx context.Context, userID string, c Contact) error {
	if c.Email != "" {
		q := `UPDATE contacts SET display_name=$1, calendar_id=$2
		      WHERE user_id=$3 AND lower(email)=lower($4)`
		res, err := s.DB.Exec(ctx, q, c.DisplayName, c.CalendarID, userID, c.Email)
		if err != nil {
			return err
		}
		if res.RowsAffected() > 0 {
			return nil
		}
	}
	q := `INSERT INTO contacts (user_id, display_name, email, calendar_id) VALUES ($1,$2,$3,$4)`
	_, err := s.DB.Exec(ctx, q, userID, c.DisplayName, c.Email, c.CalendarID)
	return err
}

func (s *PostgresStore) SaveToken(ctx context.Context, userID string, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	q := `INSERT INTO oauth_tokens (user_id, token, updated_at) VALUES ($1,$2,$3)
	      ON CONFLICT (user_id) DO UPDATE SET token=EXCLUDED.token, updated_at=EXCLUDED.updated_at`
	_, err = s.DB.Exec(ctx, q, userID, raw, time.Now().UTC())
	return err
}

func (s *PostgresStore) GetToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	var raw []byte
	err := s.DB.QueryRow(ctx, `SELECT token FROM oauth_tokens WHERE user_id=$1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

var _ Store = (*PostgresStore)(nil)
