package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/quill-api/internal/domain"
	"github.com/phrazzld/quill-api/internal/platform/logger"
	"github.com/phrazzld/quill-api/internal/store"
)

const ticketColumns = `id, user_id, subject, description, category, status, admin_response, created_at, updated_at`

// PostgresTicketStore implements the store.TicketStore interface.
type PostgresTicketStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTicketStore creates a new PostgreSQL implementation of the TicketStore interface.
func NewPostgresTicketStore(db store.DBTX, logger *slog.Logger) *PostgresTicketStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTicketStore{
		db:     db,
		logger: logger.With(slog.String("component", "ticket_store")),
	}
}

var _ store.TicketStore = (*PostgresTicketStore)(nil)

// WithTx implements store.TicketStore.WithTx
func (s *PostgresTicketStore) WithTx(tx *sql.Tx) store.TicketStore {
	return &PostgresTicketStore{db: tx, logger: s.logger}
}

// Create implements store.TicketStore.Create
func (s *PostgresTicketStore) Create(ctx context.Context, t *domain.SupportTicket) error {
	if err := t.Validate(); err != nil {
		return err
	}
	query := `INSERT INTO support_tickets (` + ticketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.UserID, t.Subject, t.Description, t.Category, t.Status, t.AdminResponse, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: user %s not found", store.ErrInvalidEntity, t.UserID)
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create support ticket",
			slog.String("ticket_id", t.ID.String()),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return nil
}

// GetByID implements store.TicketStore.GetByID
func (s *PostgresTicketStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.SupportTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM support_tickets WHERE id = $1`
	t, err := scanTicket(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTicketNotFound
		}
		return nil, MapError(err)
	}
	return t, nil
}

// Update implements store.TicketStore.Update
func (s *PostgresTicketStore) Update(ctx context.Context, t *domain.SupportTicket) error {
	if err := t.Validate(); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE support_tickets SET status = $1, admin_response = $2, updated_at = $3 WHERE id = $4`,
		t.Status, t.AdminResponse, t.UpdatedAt, t.ID)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrTicketNotFound)
}

// ListByUser implements store.TicketStore.ListByUser
func (s *PostgresTicketStore) ListByUser(ctx context.Context, userID uuid.UUID, page store.Page) ([]*domain.SupportTicket, error) {
	page = page.Normalize()
	return s.query(ctx, `SELECT `+ticketColumns+` FROM support_tickets
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, page.Limit, page.Offset)
}

// List implements store.TicketStore.List
func (s *PostgresTicketStore) List(
	ctx context.Context,
	status *domain.TicketStatus,
	page store.Page,
) ([]*domain.SupportTicket, error) {
	page = page.Normalize()
	if status != nil {
		return s.query(ctx, `SELECT `+ticketColumns+` FROM support_tickets
			WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, *status, page.Limit, page.Offset)
	}
	return s.query(ctx, `SELECT `+ticketColumns+` FROM support_tickets
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, page.Limit, page.Offset)
}

func (s *PostgresTicketStore) query(ctx context.Context, query string, args ...any) ([]*domain.SupportTicket, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tickets := make([]*domain.SupportTicket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, MapError(err)
		}
		tickets = append(tickets, t)
	}
	return tickets, MapError(rows.Err())
}

func scanTicket(row rowScanner) (*domain.SupportTicket, error) {
	var t domain.SupportTicket
	var category, status string
	err := row.Scan(&t.ID, &t.UserID, &t.Subject, &t.Description, &category, &status,
		&t.AdminResponse, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Category = domain.TicketCategory(category)
	t.Status = domain.TicketStatus(status)
	return &t, nil
}
