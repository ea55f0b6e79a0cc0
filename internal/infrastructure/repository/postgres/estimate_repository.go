package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

const estimateColumns = `id, project_id, map_id, name, measurement_ids, items, subtotal, tax_rate, tax_amount, total,
	currency, created_by, created_at, updated_at`

type EstimateRepository struct {
	db *sql.DB
}

func NewEstimateRepository(db *sql.DB) *EstimateRepository {
	return &EstimateRepository{db: db}
}

func (r *EstimateRepository) Create(ctx context.Context, e *domain.CostEstimate) error {
	idsJSON, itemsJSON, err := marshalEstimateLists(e)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO cost_estimates (`+estimateColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		e.ID, e.ProjectID, e.MapID, e.Name, idsJSON, itemsJSON, e.Subtotal, e.TaxRate, e.TaxAmount, e.Total,
		e.Currency, e.CreatedBy, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return missingMap(e)
		}
		return fmt.Errorf("create estimate: %w", err)
	}
	return nil
}

func (r *EstimateRepository) Update(ctx context.Context, e *domain.CostEstimate) error {
	idsJSON, itemsJSON, err := marshalEstimateLists(e)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE cost_estimates
SET map_id = $2, name = $3, measurement_ids = $4, items = $5, subtotal = $6, tax_rate = $7,
	tax_amount = $8, total = $9, currency = $10, updated_at = $11
WHERE id = $1
`, e.ID, e.MapID, e.Name, idsJSON, itemsJSON, e.Subtotal, e.TaxRate, e.TaxAmount, e.Total, e.Currency, e.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return missingMap(e)
		}
		return fmt.Errorf("update estimate: %w", err)
	}
	n, err := rowsAffected(result, "update estimate")
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("estimate", e.ID)
	}
	return nil
}

func (r *EstimateRepository) GetByID(ctx context.Context, id string) (*domain.CostEstimate, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+estimateColumns+` FROM cost_estimates WHERE id = $1`, id)
	e, err := scanEstimate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("estimate", id)
		}
		return nil, fmt.Errorf("get estimate by id: %w", err)
	}
	return &e, nil
}

func (r *EstimateRepository) ListByProject(ctx context.Context, projectID string) ([]domain.CostEstimate, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+estimateColumns+`
FROM cost_estimates
WHERE project_id = $1
ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list estimates: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CostEstimate, 0)
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan estimate: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate estimates: %w", err)
	}
	return out, nil
}

func (r *EstimateRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cost_estimates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete estimate: %w", err)
	}
	n, err := rowsAffected(result, "delete estimate")
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("estimate", id)
	}
	return nil
}

// missingMap reports a map_id that no longer resolves, e.g. deleted between
// the use case check and the write.
func missingMap(e *domain.CostEstimate) error {
	id := ""
	if e.MapID != nil {
		id = *e.MapID
	}
	return domain.NotFound("map", id)
}

func marshalEstimateLists(e *domain.CostEstimate) ([]byte, []byte, error) {
	ids := e.MeasurementIDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal measurement ids: %w", err)
	}
	items := e.Items
	if items == nil {
		items = []domain.CostItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal items: %w", err)
	}
	return idsJSON, itemsJSON, nil
}

func scanEstimate(row rowScanner) (domain.CostEstimate, error) {
	var (
		e        domain.CostEstimate
		mapID    sql.NullString
		idsRaw   []byte
		itemsRaw []byte
	)
	err := row.Scan(
		&e.ID, &e.ProjectID, &mapID, &e.Name, &idsRaw, &itemsRaw, &e.Subtotal, &e.TaxRate, &e.TaxAmount, &e.Total,
		&e.Currency, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return domain.CostEstimate{}, err
	}
	if mapID.Valid {
		id := mapID.String
		e.MapID = &id
	}
	if err := json.Unmarshal(idsRaw, &e.MeasurementIDs); err != nil {
		return domain.CostEstimate{}, fmt.Errorf("unmarshal measurement ids: %w", err)
	}
	if err := json.Unmarshal(itemsRaw, &e.Items); err != nil {
		return domain.CostEstimate{}, fmt.Errorf("unmarshal items: %w", err)
	}
	return e, nil
}
