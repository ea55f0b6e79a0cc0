package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

const mapColumns = `id, project_id, name, filename, file_type, file_size, mime_type, storage_path, status, error_message,
	metadata, scale, calibration_version, version, uploaded_by, created_at, updated_at, calibrated_at`

type MapRepository struct {
	db *sql.DB
}

func NewMapRepository(db *sql.DB) *MapRepository {
	return &MapRepository{db: db}
}

// Create stores m with the next version for its (project, name). A racing
// insert for the same version surfaces as a duplicate_version conflict.
func (r *MapRepository) Create(ctx context.Context, m *domain.Map) error {
	metadataJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
INSERT INTO maps (
	id, project_id, name, filename, file_type, file_size, mime_type, storage_path, status, error_message,
	metadata, calibration_version, version, uploaded_by, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,
	(SELECT COALESCE(MAX(version), 0) + 1 FROM maps WHERE project_id = $2 AND name = $3),
	$13,$14,$15
)
RETURNING version
`,
		m.ID, m.ProjectID, m.Name, m.Filename, string(m.File.Type), m.File.Size, m.File.MimeType, m.File.StoragePath,
		string(m.Status), m.Error, metadataJSON, m.CalibrationVersion, m.UploadedBy, m.CreatedAt, m.UpdatedAt,
	).Scan(&m.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ConflictError{
				Reason:  domain.ConflictDuplicateVersion,
				Message: fmt.Sprintf("map %q in project %s was uploaded concurrently", m.Name, m.ProjectID),
			}
		}
		return fmt.Errorf("insert map: %w", err)
	}
	return nil
}

func (r *MapRepository) GetByID(ctx context.Context, id string) (*domain.Map, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mapColumns+` FROM maps WHERE id = $1`, id)
	m, err := scanMap(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("map", id)
		}
		return nil, fmt.Errorf("scan map: %w", err)
	}
	return &m, nil
}

func (r *MapRepository) ListByProject(ctx context.Context, projectID, name string) ([]domain.Map, error) {
	query := `SELECT ` + mapColumns + `
FROM maps
WHERE project_id = $1
`
	args := []interface{}{projectID}
	if name != "" {
		query += "AND name = $2\n"
		args = append(args, name)
	}
	query += "ORDER BY name, version DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list maps: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Map, 0)
	for rows.Next() {
		m, err := scanMap(rows)
		if err != nil {
			return nil, fmt.Errorf("scan map: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate maps: %w", err)
	}
	return out, nil
}

func (r *MapRepository) LatestByName(ctx context.Context, projectID, name string) (*domain.Map, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mapColumns+`
FROM maps
WHERE project_id = $1 AND name = $2
ORDER BY version DESC
LIMIT 1
`, projectID, name)
	m, err := scanMap(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "latest map by name", fmt.Errorf("no map %q in project %s", name, projectID))
		}
		return nil, fmt.Errorf("scan map: %w", err)
	}
	return &m, nil
}

func (r *MapRepository) SaveFile(ctx context.Context, id string, file domain.FileDescriptor) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE maps
SET file_size = $2, mime_type = $3, storage_path = $4, updated_at = $5
WHERE id = $1
`, id, file.Size, file.MimeType, file.StoragePath, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save map file: %w", err)
	}
	n, err := rowsAffected(result, "save map file")
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("map", id)
	}
	return nil
}

// UpdateStatus is a compare-and-set on the current status.
func (r *MapRepository) UpdateStatus(ctx context.Context, id string, from, to domain.MapStatus, errMessage string) error {
	if !from.CanTransitionTo(to) {
		return &domain.ConflictError{
			Reason:  domain.ConflictInvalidTransition,
			Message: fmt.Sprintf("map status cannot move from %s to %s", from, to),
			Status:  from,
		}
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE maps
SET status = $3, error_message = $4, updated_at = $5
WHERE id = $1 AND status = $2
`, id, string(from), string(to), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update map status: %w", err)
	}
	n, err := rowsAffected(result, "update map status")
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var current string
	if err := r.db.QueryRowContext(ctx, `SELECT status FROM maps WHERE id = $1`, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("map", id)
		}
		return fmt.Errorf("read map status: %w", err)
	}
	return &domain.ConflictError{
		Reason:  domain.ConflictInvalidTransition,
		Message: fmt.Sprintf("map %s is %s, expected %s", id, current, from),
		Status:  domain.MapStatus(current),
	}
}

func (r *MapRepository) SaveMetadata(ctx context.Context, id string, meta domain.MapMetadata) error {
	metadataJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE maps
SET metadata = $2, updated_at = $3
WHERE id = $1
`, id, metadataJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save map metadata: %w", err)
	}
	n, err := rowsAffected(result, "save map metadata")
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("map", id)
	}
	return nil
}

// Recalibrate locks the map row, lets decide inspect the map and its
// measurement count, then deletes measurements if asked, stores the scale
// and bumps calibration_version. All of it commits or none of it does.
func (r *MapRepository) Recalibrate(
	ctx context.Context,
	id string,
	scale domain.Scale,
	decide domain.CalibrationDecision,
) (*domain.CalibrationResult, error) {
	const op = "recalibrate map"
	scaleJSON, err := json.Marshal(scale)
	if err != nil {
		return nil, fmt.Errorf("marshal scale: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin recalibration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := scanMap(tx.QueryRowContext(ctx, `SELECT `+mapColumns+` FROM maps WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("map", id)
		}
		return nil, fmt.Errorf("lock map: %w", err)
	}

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements WHERE map_id = $1`, id).Scan(&existing); err != nil {
		return nil, fmt.Errorf("count measurements: %w", err)
	}

	deleteExisting, err := decide(&current, existing)
	if err != nil {
		return nil, err
	}

	result := &domain.CalibrationResult{MapID: id, Scale: scale, ScaleFactor: scale.ScaleFactor}
	if deleteExisting {
		res, err := tx.ExecContext(ctx, `DELETE FROM measurements WHERE map_id = $1`, id)
		if err != nil {
			return nil, txFailed(op, fmt.Errorf("delete measurements: %w", err))
		}
		deleted, err := rowsAffected(res, "delete measurements")
		if err != nil {
			return nil, txFailed(op, err)
		}
		result.DeletedMeasurements = &deleted
	}

	now := time.Now().UTC()
	err = tx.QueryRowContext(ctx, `
UPDATE maps
SET scale = $2, calibration_version = calibration_version + 1, calibrated_at = $3, updated_at = $3
WHERE id = $1
RETURNING calibration_version
`, id, scaleJSON, now).Scan(&result.CalibrationVersion)
	if err != nil {
		return nil, txFailed(op, fmt.Errorf("update scale: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, txFailed(op, fmt.Errorf("commit: %w", err))
	}
	result.CalibratedAt = now
	return result, nil
}

// DeleteCascade removes the map's measurements, detaches cost estimates
// and deletes the map row in one transaction.
func (r *MapRepository) DeleteCascade(ctx context.Context, id string) (domain.MapDeletion, error) {
	const op = "delete map"
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.MapDeletion{}, fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var out domain.MapDeletion
	res, err := tx.ExecContext(ctx, `DELETE FROM measurements WHERE map_id = $1`, id)
	if err != nil {
		return domain.MapDeletion{}, txFailed(op, fmt.Errorf("delete measurements: %w", err))
	}
	if out.DeletedMeasurements, err = rowsAffected(res, "delete measurements"); err != nil {
		return domain.MapDeletion{}, txFailed(op, err)
	}

	res, err = tx.ExecContext(ctx, `UPDATE cost_estimates SET map_id = NULL, updated_at = $2 WHERE map_id = $1`, id, time.Now().UTC())
	if err != nil {
		return domain.MapDeletion{}, txFailed(op, fmt.Errorf("detach estimates: %w", err))
	}
	if out.DetachedEstimates, err = rowsAffected(res, "detach estimates"); err != nil {
		return domain.MapDeletion{}, txFailed(op, err)
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM maps WHERE id = $1`, id)
	if err != nil {
		return domain.MapDeletion{}, txFailed(op, fmt.Errorf("delete map row: %w", err))
	}
	n, err := rowsAffected(res, "delete map row")
	if err != nil {
		return domain.MapDeletion{}, txFailed(op, err)
	}
	if n == 0 {
		return domain.MapDeletion{}, domain.NotFound("map", id)
	}

	if err := tx.Commit(); err != nil {
		return domain.MapDeletion{}, txFailed(op, fmt.Errorf("commit: %w", err))
	}
	return out, nil
}

func scanMap(row rowScanner) (domain.Map, error) {
	var (
		m            domain.Map
		fileType     string
		status       string
		metadataRaw  []byte
		scaleRaw     []byte
		calibratedAt sql.NullTime
	)
	err := row.Scan(
		&m.ID, &m.ProjectID, &m.Name, &m.Filename, &fileType, &m.File.Size, &m.File.MimeType, &m.File.StoragePath,
		&status, &m.Error, &metadataRaw, &scaleRaw, &m.CalibrationVersion, &m.Version, &m.UploadedBy,
		&m.CreatedAt, &m.UpdatedAt, &calibratedAt,
	)
	if err != nil {
		return domain.Map{}, err
	}
	m.File.Type = domain.FileType(fileType)
	m.Status = domain.MapStatus(status)
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &m.Metadata); err != nil {
			return domain.Map{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(scaleRaw) > 0 && string(scaleRaw) != "null" {
		var scale domain.Scale
		if err := json.Unmarshal(scaleRaw, &scale); err != nil {
			return domain.Map{}, fmt.Errorf("unmarshal scale: %w", err)
		}
		m.Scale = &scale
	}
	if calibratedAt.Valid {
		t := calibratedAt.Time
		m.CalibratedAt = &t
	}
	return m, nil
}
