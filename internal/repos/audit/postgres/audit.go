package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fastprodman/escrowcore/internal/repos/audit"
	"github.com/google/uuid"
)

var _ audit.Audit = (*auditRepo)(nil)

type auditRepo struct{ db *sql.DB }

func New(db *sql.DB) *auditRepo {
	return &auditRepo{db: db}
}

func (r *auditRepo) Append(tx *sql.Tx, f *audit.Fact) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.Metadata == nil {
		f.Metadata = map[string]any{}
	}

	meta, err := json.Marshal(f.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	err = tx.QueryRow(`
		INSERT INTO audit_facts (id, actor_kind, actor_id, action, entity_type, entity_id, amount, currency, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, f.ID, f.ActorKind, f.ActorID, f.Action, f.EntityType, f.EntityID, f.Amount, f.Currency, meta).
		Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit fact: %w", err)
	}

	return nil
}

func (r *auditRepo) List(ctx context.Context, filter audit.Filter) ([]*audit.Fact, error) {
	var (
		conds []string
		args  []any
	)

	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		conds = append(conds, fmt.Sprintf("entity_type = $%d", len(args)))
	}
	if filter.EntityID != 0 {
		args = append(args, filter.EntityID)
		conds = append(conds, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if filter.ActorKind != "" {
		args = append(args, filter.ActorKind)
		conds = append(conds, fmt.Sprintf("actor_kind = $%d", len(args)))
	}

	query := `
		SELECT id, actor_kind, actor_id, action, entity_type, entity_id, amount, currency, metadata, created_at
		FROM audit_facts
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit facts: %w", err)
	}
	defer rows.Close()

	var out []*audit.Fact
	for rows.Next() {
		var (
			f    audit.Fact
			meta []byte
		)
		err := rows.Scan(&f.ID, &f.ActorKind, &f.ActorID, &f.Action, &f.EntityType,
			&f.EntityID, &f.Amount, &f.Currency, &meta, &f.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		if err := json.Unmarshal(meta, &f.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		out = append(out, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit facts: %w", err)
	}

	return out, nil
}
