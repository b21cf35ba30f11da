package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository persists the roster, attendance records and delivery logs in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

// UpsertDevice ensures a scanner device record exists.
func (r *Repository) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id)
		VALUES ($1)
		ON CONFLICT (device_id) DO NOTHING
	`, deviceID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (device_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, deviceID, token, expiresAt)
	return err
}

const studentColumns = `nisn, name, class, telegram_id, whatsapp_number, preferred_channel, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (Student, error) {
	var s Student
	err := row.Scan(&s.NISN, &s.Name, &s.Class, &s.TelegramID, &s.WhatsAppNumber, &s.PreferredChannel, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// GetStudent returns a roster entry, or nil when the NISN is unknown.
func (r *Repository) GetStudent(ctx context.Context, nisn string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE nisn = $1`, nisn)
	s, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// UpsertStudent creates or replaces a roster entry.
func (r *Repository) UpsertStudent(ctx context.Context, s Student) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (nisn, name, class, telegram_id, whatsapp_number, preferred_channel)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (nisn) DO UPDATE SET
			name = EXCLUDED.name,
			class = EXCLUDED.class,
			telegram_id = EXCLUDED.telegram_id,
			whatsapp_number = EXCLUDED.whatsapp_number,
			preferred_channel = EXCLUDED.preferred_channel,
			updated_at = NOW()
	`, s.NISN, s.Name, s.Class, s.TelegramID, s.WhatsAppNumber, s.PreferredChannel)
	return err
}

// ListStudents returns the roster, optionally limited to one class.
func (r *Repository) ListStudents(ctx context.Context, class string) ([]Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students`
	var args []any
	if class != "" {
		query += ` WHERE class = $1`
		args = append(args, class)
	}
	query += ` ORDER BY class, name`
	return r.queryStudents(ctx, query, args...)
}

// StudentsWithoutRecord returns roster entries with no attendance record on date.
func (r *Repository) StudentsWithoutRecord(ctx context.Context, date string) ([]Student, error) {
	return r.queryStudents(ctx, `
		SELECT `+studentColumns+` FROM students s
		WHERE NOT EXISTS (
			SELECT 1 FROM attendance_records a WHERE a.nisn = s.nisn AND a.att_date = $1
		)
		ORDER BY class, name
	`, date)
}

func (r *Repository) queryStudents(ctx context.Context, query string, args ...any) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// SetTelegramID stores a guardian chat id. A student already linked to a
// different chat is left unchanged and ErrTelegramLinked is returned.
func (r *Repository) SetTelegramID(ctx context.Context, nisn, chatID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students SET telegram_id = $2, updated_at = NOW()
		WHERE nisn = $1 AND (telegram_id = '' OR telegram_id = $2)
	`, nisn, chatID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM students WHERE nisn = $1)`, nisn).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrStudentNotFound
	}
	return ErrTelegramLinked
}

const recordColumns = `id, nisn, status, att_date, att_time, device_id, created_at`

func scanRecord(row scanner) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.NISN, &rec.Status, &rec.Date, &rec.Time, &rec.DeviceID, &rec.CreatedAt)
	return rec, err
}

// RecordForDate returns the student's record on date, or nil.
func (r *Repository) RecordForDate(ctx context.Context, nisn, date string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE nisn = $1 AND att_date = $2`, nisn, date)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// InsertRecord writes a new record. It returns ErrDuplicateRecord when the
// student already has one for that date.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, nisn, status, att_date, att_time, device_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (nisn, att_date) DO NOTHING
		RETURNING created_at
	`, rec.ID, rec.NISN, rec.Status, rec.Date, rec.Time, rec.DeviceID)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrDuplicateRecord
		}
		return Record{}, err
	}
	return rec, nil
}

// GetRecord returns a single record by id.
func (r *Repository) GetRecord(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM attendance_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// ListRecords returns records with basic filters, newest first.
func (r *Repository) ListRecords(ctx context.Context, f RecordFilter) ([]Record, error) {
	query, args := listRecordsQuery(f)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// listRecordsQuery builds the filtered, paginated records query with
// positional placeholders numbered in argument order.
func listRecordsQuery(f RecordFilter) (string, []any) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := `SELECT a.id, a.nisn, a.status, a.att_date, a.att_time, a.device_id, a.created_at
		FROM attendance_records a JOIN students s ON s.nisn = a.nisn`
	args := []any{}
	clauses := []string{}
	if f.Date != "" {
		args = append(args, f.Date)
		clauses = append(clauses, "a.att_date = $"+strconv.Itoa(len(args)))
	}
	if f.Class != "" {
		args = append(args, f.Class)
		clauses = append(clauses, "s.class = $"+strconv.Itoa(len(args)))
	}
	if f.NISN != "" {
		args = append(args, f.NISN)
		clauses = append(clauses, "a.nisn = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY a.att_date DESC, a.att_time DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	return query, append(args, f.Limit, f.Offset)
}

// CountByStatus returns record counts per status token on date.
func (r *Repository) CountByStatus(ctx context.Context, date, class string) (map[string]int, error) {
	query := `SELECT a.status, COUNT(*) FROM attendance_records a JOIN students s ON s.nisn = a.nisn WHERE a.att_date = $1`
	args := []any{date}
	if class != "" {
		query += ` AND s.class = $2`
		args = append(args, class)
	}
	query += ` GROUP BY a.status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// SaveDelivery stores the outcome of one notification dispatch.
func (r *Repository) SaveDelivery(ctx context.Context, d Delivery) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_logs (id, record_id, channel, telegram, whatsapp)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), d.RecordID, string(d.Channel), d.Result.Telegram, d.Result.WhatsApp)
	return err
}
