package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

const measurementColumns = `id, map_id, project_id, type, points, height, value, unit, display_value,
	calibration_version, label, created_by, created_at`

type MeasurementRepository struct {
	db *sql.DB
}

func NewMeasurementRepository(db *sql.DB) *MeasurementRepository {
	return &MeasurementRepository{db: db}
}

// CreateIfCurrent holds a share lock on the map row while checking that it
// is still ready and at the calibration version m was computed under.
// Recalibration takes the same row FOR UPDATE, so the two serialize.
func (r *MeasurementRepository) CreateIfCurrent(ctx context.Context, m *domain.Measurement) error {
	pointsJSON, err := json.Marshal(m.Points)
	if err != nil {
		return fmt.Errorf("marshal points: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin measurement tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var (
		status  string
		version int
	)
	err = tx.QueryRowContext(ctx, `SELECT status, calibration_version FROM maps WHERE id = $1 FOR SHARE`, m.MapID).
		Scan(&status, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("map", m.MapID)
		}
		return fmt.Errorf("lock map: %w", err)
	}
	if domain.MapStatus(status) != domain.MapStatusReady {
		return &domain.ConflictError{
			Reason:  domain.ConflictMapNotReady,
			Message: fmt.Sprintf("map %s is %s", m.MapID, status),
			Status:  domain.MapStatus(status),
		}
	}
	if version != m.CalibrationVersionAtCreation {
		return &domain.ConflictError{
			Reason:         domain.ConflictStaleCalibration,
			Message:        fmt.Sprintf("map %s was recalibrated to version %d", m.MapID, version),
			CurrentVersion: version,
		}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO measurements (`+measurementColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		m.ID, m.MapID, m.ProjectID, string(m.Type), pointsJSON, m.Height, m.Value, m.Unit, m.DisplayValue,
		m.CalibrationVersionAtCreation, m.Label, m.CreatedBy, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert measurement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit measurement: %w", err)
	}
	return nil
}

func (r *MeasurementRepository) GetByID(ctx context.Context, id string) (*domain.Measurement, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+measurementColumns+` FROM measurements WHERE id = $1`, id)
	m, err := scanMeasurement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("measurement", id)
		}
		return nil, fmt.Errorf("scan measurement: %w", err)
	}
	return &m, nil
}

func (r *MeasurementRepository) ListByMap(ctx context.Context, mapID string) ([]domain.Measurement, error) {
	return r.list(ctx, `WHERE map_id = $1`, mapID)
}

func (r *MeasurementRepository) ListByProject(ctx context.Context, projectID string) ([]domain.Measurement, error) {
	return r.list(ctx, `WHERE project_id = $1`, projectID)
}

func (r *MeasurementRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.Measurement, error) {
	if len(ids) == 0 {
		return []domain.Measurement{}, nil
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("marshal ids: %w", err)
	}
	return r.list(ctx, `WHERE id IN (SELECT jsonb_array_elements_text($1::jsonb))`, idsJSON)
}

func (r *MeasurementRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM measurements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete measurement: %w", err)
	}
	n, err := rowsAffected(result, "delete measurement")
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("measurement", id)
	}
	return nil
}

func (r *MeasurementRepository) list(ctx context.Context, where string, arg interface{}) ([]domain.Measurement, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+measurementColumns+`
FROM measurements
`+where+`
ORDER BY created_at, id`, arg)
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Measurement, 0)
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate measurements: %w", err)
	}
	return out, nil
}

func scanMeasurement(row rowScanner) (domain.Measurement, error) {
	var (
		m         domain.Measurement
		kind      string
		pointsRaw []byte
		height    sql.NullFloat64
	)
	err := row.Scan(
		&m.ID, &m.MapID, &m.ProjectID, &kind, &pointsRaw, &height, &m.Value, &m.Unit, &m.DisplayValue,
		&m.CalibrationVersionAtCreation, &m.Label, &m.CreatedBy, &m.CreatedAt,
	)
	if err != nil {
		return domain.Measurement{}, err
	}
	m.Type = domain.MeasurementType(kind)
	if err := json.Unmarshal(pointsRaw, &m.Points); err != nil {
		return domain.Measurement{}, fmt.Errorf("unmarshal points: %w", err)
	}
	if height.Valid {
		h := height.Float64
		m.Height = &h
	}
	return m, nil
}
