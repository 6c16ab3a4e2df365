package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/dealgate/dealgate/internal/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS inbound_sources (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			name TEXT NOT NULL,
			entry_board_id TEXT NOT NULL,
			entry_stage_id TEXT NOT NULL,
			secret TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS outbound_endpoints (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT NOT NULL,
			events TEXT NOT NULL DEFAULT '[]',
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS inbound_records (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL REFERENCES inbound_sources(id) ON DELETE CASCADE,
			external_event_id TEXT,
			deal_id TEXT NOT NULL DEFAULT '',
			rejection_reason TEXT NOT NULL DEFAULT '',
			received_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS outbound_events (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			occurred_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS outbound_deliveries (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL REFERENCES outbound_events(id) ON DELETE CASCADE,
			endpoint_id TEXT NOT NULL REFERENCES outbound_endpoints(id) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'pending',
			attempt_count INTEGER NOT NULL DEFAULT 0,
			next_attempt_at DATETIME,
			last_error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS outbound_attempts (
			id TEXT PRIMARY KEY,
			delivery_id TEXT NOT NULL REFERENCES outbound_deliveries(id) ON DELETE CASCADE,
			attempt_number INTEGER NOT NULL,
			status_code INTEGER NOT NULL DEFAULT 0,
			response_body TEXT NOT NULL DEFAULT '',
			latency_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_inbound_sources_org ON inbound_sources(org_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outbound_endpoints_org ON outbound_endpoints(org_id)`,
		// The idempotency key. Rejection rows keep the event id for
		// observability but must not block a corrected retry.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_inbound_records_dedup
			ON inbound_records(source_id, external_event_id)
			WHERE external_event_id IS NOT NULL AND rejection_reason = ''`,
		`CREATE INDEX IF NOT EXISTS idx_inbound_records_source ON inbound_records(source_id, received_at)`,
		`CREATE INDEX IF NOT EXISTS idx_outbound_events_org ON outbound_events(org_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_outbound_deliveries_event ON outbound_deliveries(endpoint_id, event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outbound_deliveries_due ON outbound_deliveries(status, next_attempt_at)
			WHERE status IN ('pending', 'failed')`,
		`CREATE INDEX IF NOT EXISTS idx_outbound_attempts_delivery ON outbound_attempts(delivery_id)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// --- Inbound sources ---

func (s *SQLiteStore) CreateInboundSource(ctx context.Context, src *models.InboundSource) error {
	active := 0
	if src.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_sources (id, org_id, name, entry_board_id, entry_stage_id, secret, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.OrgID, src.Name, src.EntryBoardID, src.EntryStageID, src.Secret, active, src.CreatedAt, src.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) scanSource(row interface{ Scan(...interface{}) error }) (*models.InboundSource, error) {
	var src models.InboundSource
	var active int
	err := row.Scan(&src.ID, &src.OrgID, &src.Name, &src.EntryBoardID, &src.EntryStageID,
		&src.Secret, &active, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return nil, err
	}
	src.Active = active == 1
	return &src, nil
}

const sourceColumns = `id, org_id, name, entry_board_id, entry_stage_id, secret, active, created_at, updated_at`

func (s *SQLiteStore) GetInboundSource(ctx context.Context, id string) (*models.InboundSource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM inbound_sources WHERE id = ?`, id)
	src, err := s.scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return src, err
}

func (s *SQLiteStore) GetActiveInboundSource(ctx context.Context, orgID string) (*models.InboundSource, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM inbound_sources WHERE org_id = ? AND active = 1 ORDER BY created_at DESC LIMIT 1`, orgID)
	src, err := s.scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return src, err
}

func (s *SQLiteStore) ListInboundSources(ctx context.Context, orgID string) ([]models.InboundSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM inbound_sources WHERE org_id = ? ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []models.InboundSource
	for rows.Next() {
		src, err := s.scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

func (s *SQLiteStore) UpdateInboundSource(ctx context.Context, src *models.InboundSource) error {
	active := 0
	if src.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE inbound_sources SET name = ?, entry_board_id = ?, entry_stage_id = ?, active = ?, updated_at = ? WHERE id = ?`,
		src.Name, src.EntryBoardID, src.EntryStageID, active, time.Now().UTC(), src.ID,
	)
	return err
}

func (s *SQLiteStore) DeleteInboundSource(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM inbound_sources WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) SetInboundSourceActive(ctx context.Context, id string, active bool) error {
	a := 0
	if active {
		a = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE inbound_sources SET active = ?, updated_at = ? WHERE id = ?`, a, time.Now().UTC(), id)
	return err
}

func (s *SQLiteStore) UpdateInboundSourceSecret(ctx context.Context, id, secret string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE inbound_sources SET secret = ?, updated_at = ? WHERE id = ?`, secret, time.Now().UTC(), id)
	return err
}

// --- Outbound endpoints ---

func (s *SQLiteStore) CreateOutboundEndpoint(ctx context.Context, ep *models.OutboundEndpoint) error {
	events, _ := json.Marshal(ep.Events)
	active := 0
	if ep.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbound_endpoints (id, org_id, name, url, secret, events, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.OrgID, ep.Name, ep.URL, ep.Secret, string(events), active, ep.CreatedAt, ep.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) scanEndpoint(row interface{ Scan(...interface{}) error }) (*models.OutboundEndpoint, error) {
	var ep models.OutboundEndpoint
	var events string
	var active int
	err := row.Scan(&ep.ID, &ep.OrgID, &ep.Name, &ep.URL, &ep.Secret, &events, &active, &ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(events), &ep.Events)
	ep.Active = active == 1
	return &ep, nil
}

const endpointColumns = `id, org_id, name, url, secret, events, active, created_at, updated_at`

func (s *SQLiteStore) GetOutboundEndpoint(ctx context.Context, id string) (*models.OutboundEndpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+endpointColumns+` FROM outbound_endpoints WHERE id = ?`, id)
	ep, err := s.scanEndpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ep, err
}

func (s *SQLiteStore) GetOutboundEndpointForOrg(ctx context.Context, orgID string) (*models.OutboundEndpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+endpointColumns+` FROM outbound_endpoints WHERE org_id = ? ORDER BY created_at DESC LIMIT 1`, orgID)
	ep, err := s.scanEndpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ep, err
}

func (s *SQLiteStore) ListOutboundEndpoints(ctx context.Context, orgID string) ([]models.OutboundEndpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+endpointColumns+` FROM outbound_endpoints WHERE org_id = ? ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []models.OutboundEndpoint
	for rows.Next() {
		ep, err := s.scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, *ep)
	}
	return endpoints, rows.Err()
}

func (s *SQLiteStore) UpdateOutboundEndpoint(ctx context.Context, ep *models.OutboundEndpoint) error {
	events, _ := json.Marshal(ep.Events)
	active := 0
	if ep.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbound_endpoints SET name = ?, url = ?, events = ?, active = ?, updated_at = ? WHERE id = ?`,
		ep.Name, ep.URL, string(events), active, time.Now().UTC(), ep.ID,
	)
	return err
}

func (s *SQLiteStore) DeleteOutboundEndpoint(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM outbound_endpoints WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) SetOutboundEndpointActive(ctx context.Context, id string, active bool) error {
	a := 0
	if active {
		a = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbound_endpoints SET active = ?, updated_at = ? WHERE id = ?`, a, time.Now().UTC(), id)
	return err
}

func (s *SQLiteStore) UpdateOutboundEndpointSecret(ctx context.Context, id, secret string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbound_endpoints SET secret = ?, updated_at = ? WHERE id = ?`, secret, time.Now().UTC(), id)
	return err
}

// --- Inbound ledger ---

func (s *SQLiteStore) ClaimInboundEvent(ctx context.Context, rec *models.InboundRecord) error {
	var eventID interface{}
	if rec.ExternalEventID != "" {
		eventID = rec.ExternalEventID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_records (id, source_id, external_event_id, deal_id, rejection_reason, received_at)
		 VALUES (?, ?, ?, ?, '', ?)`,
		rec.ID, rec.SourceID, eventID, rec.DealID, rec.ReceivedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateEvent
	}
	return err
}

func (s *SQLiteStore) GetInboundRecord(ctx context.Context, sourceID, externalEventID string) (*models.InboundRecord, error) {
	var rec models.InboundRecord
	var eventID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source_id, external_event_id, deal_id, rejection_reason, received_at
		 FROM inbound_records
		 WHERE source_id = ? AND external_event_id = ? AND rejection_reason = ''`,
		sourceID, externalEventID,
	).Scan(&rec.ID, &rec.SourceID, &eventID, &rec.DealID, &rec.RejectionReason, &rec.ReceivedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.ExternalEventID = eventID.String
	return &rec, nil
}

func (s *SQLiteStore) CompleteInboundRecord(ctx context.Context, id, dealID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE inbound_records SET deal_id = ? WHERE id = ?`, dealID, id)
	return err
}

func (s *SQLiteStore) ReleaseInboundClaim(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM inbound_records WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) RecordInboundRejection(ctx context.Context, rec *models.InboundRecord) error {
	var eventID interface{}
	if rec.ExternalEventID != "" {
		eventID = rec.ExternalEventID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_records (id, source_id, external_event_id, deal_id, rejection_reason, received_at)
		 VALUES (?, ?, ?, '', ?, ?)`,
		rec.ID, rec.SourceID, eventID, rec.RejectionReason, rec.ReceivedAt,
	)
	return err
}

func (s *SQLiteStore) ListInboundRecords(ctx context.Context, sourceID string, limit, offset int) ([]models.InboundRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_id, external_event_id, deal_id, rejection_reason, received_at
		 FROM inbound_records WHERE source_id = ? ORDER BY received_at DESC LIMIT ? OFFSET ?`,
		sourceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.InboundRecord
	for rows.Next() {
		var rec models.InboundRecord
		var eventID sql.NullString
		if err := rows.Scan(&rec.ID, &rec.SourceID, &eventID, &rec.DealID, &rec.RejectionReason, &rec.ReceivedAt); err != nil {
			return nil, err
		}
		rec.ExternalEventID = eventID.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// --- Outbound ledger ---

func (s *SQLiteStore) CreateOutboundEvent(ctx context.Context, ev *models.OutboundEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbound_events (id, org_id, event_type, payload, occurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.OrgID, ev.EventType, string(ev.Payload), ev.OccurredAt, ev.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) GetOutboundEvent(ctx context.Context, id string) (*models.OutboundEvent, error) {
	var ev models.OutboundEvent
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, org_id, event_type, payload, occurred_at, created_at FROM outbound_events WHERE id = ?`, id,
	).Scan(&ev.ID, &ev.OrgID, &ev.EventType, &payload, &ev.OccurredAt, &ev.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	ev.Payload = []byte(payload)
	return &ev, err
}

func (s *SQLiteStore) CreateDelivery(ctx context.Context, d *models.OutboundDelivery) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbound_deliveries (id, event_id, endpoint_id, status, attempt_count, next_attempt_at, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.EventID, d.EndpointID, d.Status, d.AttemptCount, d.NextAttemptAt, d.LastError, d.CreatedAt, d.UpdatedAt,
	)
	return err
}

const deliveryColumns = `id, event_id, endpoint_id, status, attempt_count, next_attempt_at, last_error, created_at, updated_at`

func (s *SQLiteStore) scanDelivery(row interface{ Scan(...interface{}) error }) (*models.OutboundDelivery, error) {
	var d models.OutboundDelivery
	err := row.Scan(&d.ID, &d.EventID, &d.EndpointID, &d.Status, &d.AttemptCount,
		&d.NextAttemptAt, &d.LastError, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *SQLiteStore) GetDelivery(ctx context.Context, id string) (*models.OutboundDelivery, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM outbound_deliveries WHERE id = ?`, id)
	d, err := s.scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *SQLiteStore) UpdateDelivery(ctx context.Context, d *models.OutboundDelivery) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbound_deliveries SET status = ?, attempt_count = ?, next_attempt_at = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		d.Status, d.AttemptCount, d.NextAttemptAt, d.LastError, time.Now().UTC(), d.ID,
	)
	return err
}

func (s *SQLiteStore) GetDueDeliveries(ctx context.Context, limit int) ([]models.OutboundDelivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deliveryColumns+`
		 FROM outbound_deliveries
		 WHERE status IN ('pending', 'failed') AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at ASC LIMIT ?`,
		time.Now().UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []models.OutboundDelivery
	for rows.Next() {
		d, err := s.scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, *d)
	}
	return deliveries, rows.Err()
}

func (s *SQLiteStore) ListDeliveries(ctx context.Context, orgID string, limit, offset int) ([]models.OutboundDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.event_id, d.endpoint_id, d.status, d.attempt_count, d.next_attempt_at, d.last_error, d.created_at, d.updated_at
		 FROM outbound_deliveries d JOIN outbound_events e ON d.event_id = e.id
		 WHERE e.org_id = ? ORDER BY d.created_at DESC LIMIT ? OFFSET ?`,
		orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []models.OutboundDelivery
	for rows.Next() {
		d, err := s.scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, *d)
	}
	return deliveries, rows.Err()
}

func (s *SQLiteStore) CreateAttempt(ctx context.Context, a *models.Attempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbound_attempts (id, delivery_id, attempt_number, status_code, response_body, latency_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DeliveryID, a.AttemptNumber, a.StatusCode, a.ResponseBody, a.LatencyMs, a.Error, a.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) GetAttemptsByDelivery(ctx context.Context, deliveryID string) ([]models.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, delivery_id, attempt_number, status_code, response_body, latency_ms, error, created_at
		 FROM outbound_attempts WHERE delivery_id = ? ORDER BY attempt_number`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []models.Attempt
	for rows.Next() {
		var a models.Attempt
		if err := rows.Scan(&a.ID, &a.DeliveryID, &a.AttemptNumber, &a.StatusCode, &a.ResponseBody, &a.LatencyMs, &a.Error, &a.CreatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// --- Stats ---

func (s *SQLiteStore) GetStats(ctx context.Context, orgID string) (*Stats, error) {
	stats := &Stats{}

	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inbound_records r JOIN inbound_sources src ON r.source_id = src.id
		 WHERE src.org_id = ? AND r.rejection_reason = ''`, orgID).Scan(&stats.InboundAccepted)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inbound_records r JOIN inbound_sources src ON r.source_id = src.id
		 WHERE src.org_id = ? AND r.rejection_reason != ''`, orgID).Scan(&stats.InboundRejected)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbound_events WHERE org_id = ?`, orgID).Scan(&stats.OutboundEvents)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbound_deliveries d JOIN outbound_events e ON d.event_id = e.id
		 WHERE e.org_id = ?`, orgID).Scan(&stats.TotalDeliveries)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbound_deliveries d JOIN outbound_events e ON d.event_id = e.id
		 WHERE e.org_id = ? AND d.status = 'delivered'`, orgID).Scan(&stats.DeliveredCount)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbound_deliveries d JOIN outbound_events e ON d.event_id = e.id
		 WHERE e.org_id = ? AND d.status IN ('pending', 'failed')`, orgID).Scan(&stats.PendingCount)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbound_deliveries d JOIN outbound_events e ON d.event_id = e.id
		 WHERE e.org_id = ? AND d.status = 'exhausted'`, orgID).Scan(&stats.ExhaustedCount)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inbound_sources WHERE org_id = ? AND active = 1`, orgID).Scan(&stats.ActiveSources)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbound_endpoints WHERE org_id = ? AND active = 1`, orgID).Scan(&stats.ActiveEndpoints)

	if stats.TotalDeliveries > 0 {
		stats.DeliveryRate = float64(stats.DeliveredCount) / float64(stats.TotalDeliveries) * 100
	}

	return stats, nil
}
