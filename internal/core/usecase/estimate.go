package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/plan-takeoff/internal/core/costing"
	"github.com/kirillkom/plan-takeoff/internal/core/domain"
	"github.com/kirillkom/plan-takeoff/internal/core/ports"
)

const defaultSuggestionName = "Takeoff estimate"

type EstimateUseCase struct {
	repo            ports.EstimateRepository
	maps            ports.MapRepository
	measurements    ports.MeasurementRepository
	rules           ports.CostRuleProvider
	exporter        ports.EstimateExporter
	defaultCurrency string
	now             func() time.Time
}

func NewEstimateUseCase(
	repo ports.EstimateRepository,
	maps ports.MapRepository,
	measurements ports.MeasurementRepository,
	rules ports.CostRuleProvider,
	exporter ports.EstimateExporter,
	defaultCurrency string,
) *EstimateUseCase {
	if strings.TrimSpace(defaultCurrency) == "" {
		defaultCurrency = "USD"
	}
	return &EstimateUseCase{
		repo:            repo,
		maps:            maps,
		measurements:    measurements,
		rules:           rules,
		exporter:        exporter,
		defaultCurrency: defaultCurrency,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (uc *EstimateUseCase) Create(ctx context.Context, actor domain.Actor, e domain.CostEstimate) (*domain.CostEstimate, error) {
	now := uc.now()
	e.ID = uuid.NewString()
	e.CreatedBy = actor.UserID
	e.CreatedAt = now
	e.UpdatedAt = now

	prepared, err := uc.prepare(ctx, e)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.Create(ctx, &prepared); err != nil {
		return nil, fmt.Errorf("create estimate: %w", err)
	}
	return &prepared, nil
}

// Update applies a partial change and recalculates every derived total.
func (uc *EstimateUseCase) Update(ctx context.Context, actor domain.Actor, id string, patch domain.EstimatePatch) (*domain.CostEstimate, error) {
	const op = "update estimate"
	current, err := uc.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanModify(current.CreatedBy) {
		return nil, domain.WrapError(domain.ErrForbidden, op, fmt.Errorf("user %q may not update estimate %s", actor.UserID, id))
	}

	next := *current
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.MapID != nil {
		next.MapID = patch.MapID
	}
	if patch.MeasurementIDs != nil {
		next.MeasurementIDs = *patch.MeasurementIDs
	}
	if patch.Items != nil {
		next.Items = *patch.Items
	}
	if patch.TaxRate != nil {
		next.TaxRate = *patch.TaxRate
	}
	if patch.Currency != nil {
		next.Currency = *patch.Currency
	}
	next.UpdatedAt = uc.now()

	prepared, err := uc.prepare(ctx, next)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.Update(ctx, &prepared); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &prepared, nil
}

func (uc *EstimateUseCase) GetByID(ctx context.Context, id string) (*domain.CostEstimate, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.Validationf("get estimate", "estimate id is required")
	}
	return uc.repo.GetByID(ctx, id)
}

func (uc *EstimateUseCase) ListByProject(ctx context.Context, projectID string) ([]domain.CostEstimate, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, domain.Validationf("list estimates", "project id is required")
	}
	return uc.repo.ListByProject(ctx, projectID)
}

func (uc *EstimateUseCase) Delete(ctx context.Context, actor domain.Actor, id string) error {
	const op = "delete estimate"
	current, err := uc.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanModify(current.CreatedBy) {
		return domain.WrapError(domain.ErrForbidden, op, fmt.Errorf("user %q may not delete estimate %s", actor.UserID, id))
	}
	if err := uc.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (uc *EstimateUseCase) ProjectTotals(ctx context.Context, projectID string) (domain.ProjectTotals, error) {
	estimates, err := uc.ListByProject(ctx, projectID)
	if err != nil {
		return domain.ProjectTotals{}, err
	}
	return costing.ProjectTotals(projectID, estimates), nil
}

// CalculateFromMeasurements runs a rule table over a project's measurements
// and returns the resulting estimate, storing it when req.Persist is set.
func (uc *EstimateUseCase) CalculateFromMeasurements(ctx context.Context, actor domain.Actor, req domain.SuggestRequest) (*domain.Suggestion, error) {
	const op = "calculate from measurements"
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		return nil, domain.Validationf(op, "project id is required")
	}

	rules, err := uc.resolveRules(ctx, req.Rules)
	if err != nil {
		return nil, err
	}
	measurements, err := uc.selectMeasurements(ctx, projectID, req)
	if err != nil {
		return nil, err
	}
	items, err := costing.SuggestItems(rules, measurements)
	if err != nil {
		return nil, domain.WrapError(domain.ErrValidation, op, err)
	}

	ids := make([]string, 0, len(measurements))
	for _, m := range measurements {
		ids = append(ids, m.ID)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultSuggestionName
	}
	estimate := domain.CostEstimate{
		ProjectID:      projectID,
		Name:           name,
		MeasurementIDs: ids,
		Items:          items,
		TaxRate:        req.TaxRate,
		Currency:       req.Currency,
	}
	if mapID := strings.TrimSpace(req.MapID); mapID != "" {
		estimate.MapID = &mapID
	}

	if req.Persist {
		created, err := uc.Create(ctx, actor, estimate)
		if err != nil {
			return nil, err
		}
		return &domain.Suggestion{Estimate: *created, MeasurementsEvaluated: len(measurements), Persisted: true}, nil
	}

	preview, err := uc.prepare(ctx, estimate)
	if err != nil {
		return nil, err
	}
	return &domain.Suggestion{Estimate: preview, MeasurementsEvaluated: len(measurements)}, nil
}

// Export writes the estimate as a report to w.
func (uc *EstimateUseCase) Export(ctx context.Context, id string, w io.Writer) (*domain.CostEstimate, error) {
	e, err := uc.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if uc.exporter == nil {
		return nil, domain.WrapError(domain.ErrTemporary, "export estimate", errors.New("no exporter configured"))
	}
	recalculated := costing.Recalc(*e)
	if err := uc.exporter.Export(recalculated, w); err != nil {
		return nil, fmt.Errorf("export estimate: %w", err)
	}
	return &recalculated, nil
}

// prepare normalizes caller fields, validates them and recalculates totals.
func (uc *EstimateUseCase) prepare(ctx context.Context, e domain.CostEstimate) (domain.CostEstimate, error) {
	e.ProjectID = strings.TrimSpace(e.ProjectID)
	e.Name = strings.TrimSpace(e.Name)
	e.Currency = costing.NormalizeCurrency(e.Currency, uc.defaultCurrency)
	if e.MapID != nil && strings.TrimSpace(*e.MapID) == "" {
		e.MapID = nil
	}
	if e.MeasurementIDs == nil {
		e.MeasurementIDs = []string{}
	}
	if e.Items == nil {
		e.Items = []domain.CostItem{}
	}
	if err := costing.Validate(e); err != nil {
		return domain.CostEstimate{}, err
	}
	if e.MapID != nil {
		mapID := strings.TrimSpace(*e.MapID)
		e.MapID = &mapID
		if err := uc.requireProjectMap(ctx, e.ProjectID, mapID); err != nil {
			return domain.CostEstimate{}, err
		}
	}
	return costing.Recalc(e), nil
}

// requireProjectMap resolves the map an estimate points at.
func (uc *EstimateUseCase) requireProjectMap(ctx context.Context, projectID, mapID string) error {
	m, err := uc.maps.GetByID(ctx, mapID)
	if err != nil {
		return err
	}
	if m.ProjectID != projectID {
		return domain.Validationf("resolve estimate map", "map %s belongs to another project", mapID)
	}
	return nil
}

func (uc *EstimateUseCase) resolveRules(ctx context.Context, supplied []domain.CostRule) ([]domain.CostRule, error) {
	const op = "resolve cost rules"
	rules := supplied
	if len(rules) == 0 {
		if uc.rules == nil {
			return nil, domain.Validationf(op, "no cost rules supplied or configured")
		}
		configured, err := uc.rules.Rules(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		rules = configured
	}
	if err := costing.ValidateRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (uc *EstimateUseCase) selectMeasurements(ctx context.Context, projectID string, req domain.SuggestRequest) ([]domain.Measurement, error) {
	const op = "select measurements"
	mapID := strings.TrimSpace(req.MapID)

	var (
		measurements []domain.Measurement
		err          error
	)
	switch {
	case len(req.MeasurementIDs) > 0:
		measurements, err = uc.measurements.ListByIDs(ctx, req.MeasurementIDs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if missing := missingIDs(req.MeasurementIDs, measurements); len(missing) > 0 {
			return nil, domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("measurements %s", strings.Join(missing, ", ")))
		}
	case mapID != "":
		measurements, err = uc.measurements.ListByMap(ctx, mapID)
	default:
		measurements, err = uc.measurements.ListByProject(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, m := range measurements {
		if m.ProjectID != projectID {
			return nil, domain.Validationf(op, "measurement %s belongs to another project", m.ID)
		}
		if mapID != "" && m.MapID != mapID {
			return nil, domain.Validationf(op, "measurement %s belongs to another map", m.ID)
		}
	}
	return measurements, nil
}

func missingIDs(requested []string, found []domain.Measurement) []string {
	seen := make(map[string]struct{}, len(found))
	for _, m := range found {
		seen[m.ID] = struct{}{}
	}
	var missing []string
	for _, id := range requested {
		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
