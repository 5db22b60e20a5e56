package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditRecord is one accepted status write: who set which device to what,
// and when. Append-only.
type AuditRecord struct {
	ID        string          `json:"id"`
	DeviceID  string          `json:"device_id"`
	Status    json.RawMessage `json:"status"`
	Username  string          `json:"username"`
	CreatedAt time.Time       `json:"created_at"`
}

// AuditFilter controls which audit records to return.
type AuditFilter struct {
	DeviceID string // optional: filter by device
	Username string // optional: filter by author
	Limit    int    // default 50, max 200
	Offset   int    // pagination offset
}

// AuditListResult contains paginated audit records.
type AuditListResult struct {
	Records []AuditRecord `json:"records"`
	Total   int           `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

// AuditRepository defines the interface for the audit trail.
type AuditRepository interface {
	Create(ctx context.Context, record *AuditRecord) error
	List(ctx context.Context, filter AuditFilter) (*AuditListResult, error)
}

// SQLiteAuditRepository stores audit records in SQLite.
type SQLiteAuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new SQLite-backed audit repository.
func NewAuditRepository(db *sql.DB) *SQLiteAuditRepository {
	return &SQLiteAuditRepository{db: db}
}

// Create inserts a new audit record. The ID and CreatedAt are generated if empty.
func (r *SQLiteAuditRepository) Create(ctx context.Context, record *AuditRecord) error {
	if record.ID == "" {
		record.ID = "aud-" + uuid.NewString()[:8]
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_records (id, device_id, status, username, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		record.ID, record.DeviceID, statusText(record.Status), record.Username,
		record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}

	return nil
}

// List returns audit records matching the filter, most recent first.
func (r *SQLiteAuditRepository) List(ctx context.Context, filter AuditFilter) (*AuditListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for audit queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Username != "" {
		conditions = append(conditions, "username = ?")
		args = append(args, filter.Username)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE clause is assembled from fixed fragments with ? placeholders —
	// no user input reaches the SQL string.
	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_records %s", where) //nolint:gosec // G201: fragments are constant
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit records: %w", err)
	}

	listQuery := fmt.Sprintf(
		"SELECT id, device_id, status, username, created_at FROM audit_records %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		where,
	) //nolint:gosec // G201: fragments are constant
	listArgs := append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, fmt.Errorf("listing audit records: %w", err)
	}
	defer rows.Close()

	records := []AuditRecord{}
	for rows.Next() {
		var rec AuditRecord
		var status sql.NullString
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &status, &rec.Username, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		if status.Valid {
			rec.Status = json.RawMessage(status.String)
		} else {
			rec.Status = json.RawMessage("null")
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit records: %w", err)
	}

	return &AuditListResult{
		Records: records,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
