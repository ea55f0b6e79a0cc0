// Package mcpadapter exposes takeoff operations as MCP tools so agents can
// calibrate maps, draw measurements and price them.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
	"github.com/kirillkom/plan-takeoff/internal/core/ports"
)

const (
	serverName    = "plan-takeoff"
	serverVersion = "1.0.0"
)

type Services struct {
	Calibrator   ports.Calibrator
	Measurements ports.MeasurementService
	Estimates    ports.EstimateService
}

// Tools binds the services to tool handlers. Every call runs as Actor.
type Tools struct {
	svc    Services
	actor  domain.Actor
	logger *slog.Logger
}

func NewTools(svc Services, actor domain.Actor, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{svc: svc, actor: actor, logger: logger}
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTool(calibrateMapTool(), tools.calibrateMap)
	s.AddTool(createMeasurementTool(), tools.createMeasurement)
	s.AddTool(projectCostSummaryTool(), tools.projectCostSummary)
	s.AddTool(suggestCostItemsTool(), tools.suggestCostItems)
	return s
}

func calibrateMapTool() mcp.Tool {
	return mcp.NewTool("calibrate_map",
		mcp.WithDescription("Set the real-world scale of a map from a known pixel distance. Fails with measurements_exist unless force is true."),
		mcp.WithString("mapId", mcp.Required(), mcp.Description("Map id")),
		mcp.WithNumber("pixelDistance", mcp.Required(), mcp.Description("Distance between the reference points in pixels")),
		mcp.WithNumber("realDistance", mcp.Required(), mcp.Description("Real distance between the reference points")),
		mcp.WithString("unit", mcp.Required(), mcp.Description("Length unit of realDistance"), mcp.Enum("m", "ft", "in", "cm", "mm")),
		mcp.WithBoolean("force", mcp.Description("Recalibrate and delete existing measurements")),
	)
}

func createMeasurementTool() mcp.Tool {
	return mcp.NewTool("create_measurement",
		mcp.WithDescription("Measure a distance, perimeter, area, volume or angle on a calibrated map from pixel points."),
		mcp.WithString("mapId", mcp.Required()),
		mcp.WithString("type", mcp.Required(), mcp.Enum("distance", "perimeter", "area", "volume", "angle")),
		mcp.WithArray("points", mcp.Required(),
			mcp.Description("Pixel coordinates in drawing order"),
			mcp.Items(map[string]any{
				"type":     "object",
				"required": []string{"x", "y"},
				"properties": map[string]any{
					"x": map[string]any{"type": "number"},
					"y": map[string]any{"type": "number"},
				},
			}),
		),
		mcp.WithString("unit", mcp.Description("Display unit, defaults to meters")),
		mcp.WithNumber("height", mcp.Description("Extrusion height in meters, volume only")),
		mcp.WithNumber("calibrationVersion", mcp.Description("Expected calibration version of the map")),
		mcp.WithString("label"),
	)
}

func projectCostSummaryTool() mcp.Tool {
	return mcp.NewTool("project_cost_summary",
		mcp.WithDescription("Grand total and per-category totals across all estimates of a project."),
		mcp.WithString("projectId", mcp.Required()),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func suggestCostItemsTool() mcp.Tool {
	return mcp.NewTool("suggest_cost_items",
		mcp.WithDescription("Turn a project's measurements into priced cost items using the configured cost rules."),
		mcp.WithString("projectId", mcp.Required()),
		mcp.WithString("mapId", mcp.Description("Only use measurements of this map")),
		mcp.WithArray("measurementIds", mcp.WithStringItems()),
		mcp.WithNumber("taxRate", mcp.Description("Tax percentage, 0 to 100")),
		mcp.WithString("currency"),
		mcp.WithBoolean("persist", mcp.Description("Store the suggestion as a new estimate")),
	)
}

func (t *Tools) calibrateMap(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var cmd domain.CalibrateCommand
	if err := req.BindArguments(&cmd); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	mapID, err := req.RequireString("mapId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cmd.MapID = mapID
	result, err := t.svc.Calibrator.Calibrate(ctx, cmd)
	return t.respond("calibrate_map", result, err)
}

func (t *Tools) createMeasurement(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var cmd domain.MeasureCommand
	if err := req.BindArguments(&cmd); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	mapID, err := req.RequireString("mapId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cmd.MapID = mapID
	m, err := t.svc.Measurements.Create(ctx, t.actor, cmd)
	return t.respond("create_measurement", m, err)
}

func (t *Tools) projectCostSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := req.RequireString("projectId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	totals, err := t.svc.Estimates.ProjectTotals(ctx, projectID)
	return t.respond("project_cost_summary", totals, err)
}

func (t *Tools) suggestCostItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in domain.SuggestRequest
	if err := req.BindArguments(&in); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}
	projectID, err := req.RequireString("projectId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in.ProjectID = projectID
	suggestion, err := t.svc.Estimates.CalculateFromMeasurements(ctx, t.actor, in)
	return t.respond("suggest_cost_items", suggestion, err)
}

// respond renders domain failures as tool errors; only encoding problems
// surface as protocol errors.
func (t *Tools) respond(tool string, value any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		t.logger.Warn("mcp_tool_failed", "tool", tool, "error", err)
		if conflict, ok := domain.AsConflict(err); ok {
			raw, _ := json.Marshal(conflict)
			return mcp.NewToolResultError(string(raw)), nil
		}
		return mcp.NewToolResultError(errorText(err)), nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func errorText(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrForbidden):
		return err.Error()
	case errors.Is(err, domain.ErrTemporary):
		return "temporarily unavailable, retry later"
	default:
		return "internal error"
	}
}
