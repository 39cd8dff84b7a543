package tracker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"shopping-agent/internal/common/database"
	apperrors "shopping-agent/internal/common/errors"
)

const (
	StatusActive    = "active"
	StatusCompleted = "completed"

	sessionListLimit = 20
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tracking_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_query TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP,
		interval_minutes INTEGER,
		status TEXT DEFAULT 'active'
	)`,
	`CREATE TABLE IF NOT EXISTS price_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER REFERENCES tracking_sessions(id),
		timestamp TIMESTAMP NOT NULL,
		retailer TEXT,
		product_url TEXT,
		base_price REAL,
		tax REAL,
		shipping REAL,
		total_price REAL,
		cashback_info TEXT,
		credit_card_info TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS price_alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER REFERENCES tracking_sessions(id),
		retailer TEXT,
		old_price REAL,
		new_price REAL,
		change_percent REAL,
		timestamp TIMESTAMP NOT NULL
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS tracking_sessions (
		id BIGSERIAL PRIMARY KEY,
		product_query TEXT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		interval_minutes INTEGER,
		status TEXT DEFAULT 'active'
	)`,
	`CREATE TABLE IF NOT EXISTS price_records (
		id BIGSERIAL PRIMARY KEY,
		session_id BIGINT REFERENCES tracking_sessions(id),
		timestamp TIMESTAMPTZ NOT NULL,
		retailer TEXT,
		product_url TEXT,
		base_price DOUBLE PRECISION,
		tax DOUBLE PRECISION,
		shipping DOUBLE PRECISION,
		total_price DOUBLE PRECISION,
		cashback_info TEXT,
		credit_card_info TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS price_alerts (
		id BIGSERIAL PRIMARY KEY,
		session_id BIGINT REFERENCES tracking_sessions(id),
		retailer TEXT,
		old_price DOUBLE PRECISION,
		new_price DOUBLE PRECISION,
		change_percent DOUBLE PRECISION,
		timestamp TIMESTAMPTZ NOT NULL
	)`,
}

// Session is a row of tracking_sessions.
type Session struct {
	ID              int64      `json:"id"`
	ProductQuery    string     `json:"product_query"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	IntervalMinutes int        `json:"interval_minutes"`
	Status          string     `json:"status"`
}

// RetailerStats aggregates one retailer's totals within a session.
type RetailerStats struct {
	Retailer string  `json:"retailer"`
	Checks   int     `json:"checks"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Avg      float64 `json:"avg"`
}

// SessionListing is a row of the session list with its record count.
type SessionListing struct {
	Session
	Records int `json:"records"`
}

// Store persists sessions, price records and alerts.
type Store struct {
	db *database.SQLClient
}

func NewStore(db *database.SQLClient) *Store {
	return &Store{db: db}
}

// Migrate creates the tables for the client's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.db.Dialect == database.DialectPostgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return apperrors.NewQueryExecutionFailedError("migrate", err)
		}
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, query string, intervalMinutes int, start time.Time) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO tracking_sessions (product_query, start_time, interval_minutes, status)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		query, start.UTC(), intervalMinutes, StatusActive,
	).Scan(&id)
	if err != nil {
		return 0, apperrors.NewDatabaseInsertFailedError("tracking_sessions", err)
	}
	return id, nil
}

func (s *Store) CompleteSession(ctx context.Context, id int64, end time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE tracking_sessions SET end_time = ?, status = ? WHERE id = ?`,
		end.UTC(), StatusCompleted, id,
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("complete_session", err)
	}
	return nil
}

func (s *Store) Session(ctx context.Context, id int64) (*Session, error) {
	var (
		sess     Session
		end      sql.NullTime
		interval sql.NullInt64
		status   sql.NullString
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, product_query, start_time, end_time, interval_minutes, status
		 FROM tracking_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.ProductQuery, &sess.StartTime, &end, &interval, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewSessionNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get_session", err)
	}
	if end.Valid {
		sess.EndTime = &end.Time
	}
	sess.IntervalMinutes = int(interval.Int64)
	sess.Status = status.String
	return &sess, nil
}

// SaveRecords inserts the records of one check in a single transaction.
func (s *Store) SaveRecords(ctx context.Context, sessionID int64, at time.Time, records []PriceRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.NewDatabaseInsertFailedError("price_records", err)
	}
	defer tx.Rollback()

	stmt := s.db.Rebind(`INSERT INTO price_records
		(session_id, timestamp, retailer, product_url, base_price, tax, shipping, total_price, cashback_info, credit_card_info)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, r := range records {
		if _, err := tx.ExecContext(ctx, stmt,
			sessionID, at.UTC(), r.Retailer, r.ProductURL,
			r.BasePrice, r.Tax, r.Shipping, r.TotalPrice,
			r.CashbackInfo, r.CreditCardInfo,
		); err != nil {
			return 0, apperrors.NewDatabaseInsertFailedError("price_records", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.NewDatabaseInsertFailedError("price_records", err)
	}
	return len(records), nil
}

// RecentTotals returns up to the two most recent totals per retailer, newest first.
func (s *Store) RecentTotals(ctx context.Context, sessionID int64) (map[string][]float64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT retailer, total_price FROM price_records
		 WHERE session_id = ? ORDER BY id DESC`, sessionID)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("recent_totals", err)
	}
	defer rows.Close()

	out := make(map[string][]float64)
	for rows.Next() {
		var (
			retailer string
			total    float64
		)
		if err := rows.Scan(&retailer, &total); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("recent_totals", err)
		}
		if len(out[retailer]) < 2 {
			out[retailer] = append(out[retailer], total)
		}
	}
	return out, rows.Err()
}

func (s *Store) InsertAlert(ctx context.Context, a Alert) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO price_alerts (session_id, retailer, old_price, new_price, change_percent, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.Retailer, a.OldPrice, a.NewPrice, a.ChangePercent, a.Timestamp.UTC(),
	)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError("price_alerts", err)
	}
	return nil
}

// RetailerStats groups a session's records by retailer, cheapest first.
func (s *Store) RetailerStats(ctx context.Context, sessionID int64) ([]RetailerStats, error) {
	rows, err := s.db.Query(ctx,
		`SELECT retailer, COUNT(*) AS check_count, MIN(total_price) AS min_price,
		        MAX(total_price) AS max_price, AVG(total_price) AS avg_price
		 FROM price_records WHERE session_id = ?
		 GROUP BY retailer ORDER BY min_price ASC, retailer ASC`, sessionID)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("retailer_stats", err)
	}
	defer rows.Close()

	var out []RetailerStats
	for rows.Next() {
		var st RetailerStats
		if err := rows.Scan(&st.Retailer, &st.Checks, &st.Min, &st.Max, &st.Avg); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("retailer_stats", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) AlertCount(ctx context.Context, sessionID int64) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM price_alerts WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
		return 0, apperrors.NewQueryExecutionFailedError("alert_count", err)
	}
	return n, nil
}

// Alerts returns a session's alerts oldest first.
func (s *Store) Alerts(ctx context.Context, sessionID int64) ([]Alert, error) {
	rows, err := s.db.Query(ctx,
		`SELECT retailer, old_price, new_price, change_percent, timestamp
		 FROM price_alerts WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("alerts", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		a := Alert{SessionID: sessionID}
		if err := rows.Scan(&a.Retailer, &a.OldPrice, &a.NewPrice, &a.ChangePercent, &a.Timestamp); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("alerts", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PriceHistory returns each retailer's totals oldest first, retailers in name order.
func (s *Store) PriceHistory(ctx context.Context, sessionID int64) ([]string, map[string][]float64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT retailer, total_price FROM price_records
		 WHERE session_id = ? ORDER BY retailer ASC, id ASC`, sessionID)
	if err != nil {
		return nil, nil, apperrors.NewQueryExecutionFailedError("price_history", err)
	}
	defer rows.Close()

	var order []string
	history := make(map[string][]float64)
	for rows.Next() {
		var (
			retailer string
			total    float64
		)
		if err := rows.Scan(&retailer, &total); err != nil {
			return nil, nil, apperrors.NewQueryExecutionFailedError("price_history", err)
		}
		if _, seen := history[retailer]; !seen {
			order = append(order, retailer)
		}
		history[retailer] = append(history[retailer], total)
	}
	return order, history, rows.Err()
}

// ListSessions returns the newest sessions with their record counts.
func (s *Store) ListSessions(ctx context.Context) ([]SessionListing, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, product_query, start_time, status,
		        (SELECT COUNT(*) FROM price_records WHERE session_id = tracking_sessions.id) AS records
		 FROM tracking_sessions ORDER BY id DESC LIMIT ?`, sessionListLimit)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list_sessions", err)
	}
	defer rows.Close()

	var out []SessionListing
	for rows.Next() {
		var (
			l      SessionListing
			status sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.ProductQuery, &l.StartTime, &status, &l.Records); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("list_sessions", err)
		}
		l.Status = status.String
		out = append(out, l)
	}
	return out, rows.Err()
}
