package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/RefactorForge/internal/adapter/otel"
	"github.com/Strob0t/RefactorForge/internal/domain/refactor"
	"github.com/Strob0t/RefactorForge/internal/logger"
	"github.com/Strob0t/RefactorForge/internal/service"
)

// registerTools registers all refactoring tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.planTool("rename.plan", "Plan a rename of a symbol, file, directory, parameter, type, or module", s.handleRenamePlan),
		s.planTool("move.plan", "Plan moving a symbol or consolidating files", s.handleMovePlan),
		s.planTool("extract.plan", "Plan extracting a function, variable, constant, type alias, interface, class, or module", s.handleExtractPlan),
		s.planTool("inline.plan", "Plan inlining a variable, function, constant, or type alias", s.handleInlinePlan),
		s.planTool("reorder.plan", "Plan reordering parameters, imports, members, or statements", s.handleReorderPlan),
		s.planTool("transform.plan", "Plan a structural transform such as to_async or to_arrow_function", s.handleTransformPlan),
		s.planTool("delete.plan", "Plan deleting unused imports, dead code, or files", s.handleDeletePlan),
		s.applyTool(),
		s.healthTool(),
	)
}

func (s *Server) planTool(name, description string, handler mcpserver.ToolHandlerFunc) mcpserver.ServerTool {
	tool := mcplib.NewTool(name,
		mcplib.WithDescription(description),
		mcplib.WithObject("args", mcplib.Required(), mcplib.Description("family-specific plan arguments")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: withRequestID(name, handler)}
}

func (s *Server) applyTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("workspace.apply_edit",
		mcplib.WithDescription("Validate and atomically apply a previously generated plan"),
		mcplib.WithObject("args", mcplib.Required(), mcplib.Description("{plan_id} or {plan}")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: withRequestID("workspace.apply_edit", s.handleApplyEdit)}
}

// withRequestID stamps a request id into the context so every log line a
// handler produces can be correlated to one tool call.
func withRequestID(tool string, handler mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		ctx = logger.WithRequestID(ctx, uuid.NewString())
		slog.Debug("tool call", "tool", tool, "request_id", logger.RequestID(ctx))
		return handler(ctx, req)
	}
}

func (s *Server) healthTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("health_check",
		mcplib.WithDescription("Report server status and the language server pool"),
		mcplib.WithBoolean("include_details", mcplib.Description("include per-client detail")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleHealthCheck}
}

// decodeArgs re-marshals the tool's "args" object into the typed request,
// rejecting unknown fields so schema drift surfaces as InvalidRequest.
func decodeArgs[T any](req mcplib.CallToolRequest, out *T) error {
	args := req.GetArguments()
	inner, ok := args["args"]
	if !ok {
		return refactor.NewError(refactor.KindInvalidRequest, "missing args object")
	}
	raw, err := json.Marshal(inner)
	if err != nil {
		return refactor.WrapError(refactor.KindInvalidRequest, err, "encode args")
	}
	dec := json.NewDecoder(jsonReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return refactor.WrapError(refactor.KindInvalidRequest, err, "invalid arguments")
	}
	return nil
}

// planOutcome renders a plan (or a taxonomy error) into the MCP envelope.
func (s *Server) planOutcome(plan *refactor.Plan, err error) (*mcplib.CallToolResult, error) {
	if err != nil {
		return errorResult(err), nil
	}
	if s.deps.Plans != nil && !plan.DryRun {
		s.deps.Plans.Put(plan)
	}
	data, mErr := json.Marshal(plan)
	if mErr != nil {
		return errorResult(refactor.WrapError(refactor.KindInternal, mErr, "encode plan")), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleRenamePlan(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Planner == nil {
		return mcplib.NewToolResultError("planner not configured"), nil
	}
	ctx, span := otel.StartToolCallSpan(ctx, "rename.plan")
	defer span.End()

	var args service.RenameRequest
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err), nil
	}
	plan, err := s.deps.Planner.PlanRename(ctx, args)
	return s.planOutcome(plan, err)
}

func (s *Server) handleMovePlan(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Planner == nil {
		return mcplib.NewToolResultError("planner not configured"), nil
	}
	ctx, span := otel.StartToolCallSpan(ctx, "move.plan")
	defer span.End()

	var args service.MoveRequest
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err), nil
	}
	plan, err := s.deps.Planner.PlanMove(ctx, args)
	return s.planOutcome(plan, err)
}

func (s *Server) handleExtractPlan(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Planner == nil {
		return mcplib.NewToolResultError("planner not configured"), nil
	}
	ctx, span := otel.StartToolCallSpan(ctx, "extract.plan")
	defer span.End()

	var args service.ExtractRequest
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err), nil
	}
	plan, err := s.deps.Planner.PlanExtract(ctx, args)
	return s.planOutcome(plan, err)
}

func (s *Server) handleInlinePlan(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Planner == nil {
		return mcplib.NewToolResultError("planner not configured"), nil
	}
	ctx, span := otel.StartToolCallSpan(ctx, "inline.plan")
	defer span.End()

	var args service.InlineRequest
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err), nil
	}
	plan, err := s.deps.Planner.PlanInline(ctx, args)
	return s.planOutcome(plan, err)
}

func (s *Server) handleReorderPlan(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Planner == nil {
		return mcplib.NewToolResultError("planner not configured"), nil
	}
	ctx, span := otel.StartToolCallSpan(ctx, "reorder.plan")
	defer span.End()

	var args service.ReorderRequest
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err), nil
	}
	plan, err := s.deps.Planner.PlanReorder(ctx, args)
	return s.planOutcome(plan, err)
}

func (s *Server) handleTransformPlan(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Planner == nil {
		return mcplib.NewToolResultError("planner not configured"), nil
	}
	ctx, span := otel.StartToolCallSpan(ctx, "transform.plan")
	defer span.End()

	var args service.TransformRequest
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err), nil
	}
	plan, err := s.deps.Planner.PlanTransform(ctx, args)
	return s.planOutcome(plan, err)
}

func (s *Server) handleDeletePlan(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Planner == nil {
		return mcplib.NewToolResultError("planner not configured"), nil
	}
	ctx, span := otel.StartToolCallSpan(ctx, "delete.plan")
	defer span.End()

	var args service.DeleteRequest
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err), nil
	}
	plan, err := s.deps.Planner.PlanDelete(ctx, args)
	return s.planOutcome(plan, err)
}

// applyArgs is the argument shape of workspace.apply_edit.
type applyArgs struct {
	PlanID string         `json:"plan_id,omitempty"`
	Plan   *refactor.Plan `json:"plan,omitempty"`
}

func (s *Server) handleApplyEdit(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Applier == nil {
		return mcplib.NewToolResultError("applier not configured"), nil
	}
	_, span := otel.StartToolCallSpan(ctx, "workspace.apply_edit")
	defer span.End()

	var args applyArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err), nil
	}

	plan := args.Plan
	if plan == nil && args.PlanID != "" && s.deps.Plans != nil {
		if stored, ok := s.deps.Plans.Get(args.PlanID); ok {
			plan = stored
		}
	}
	if plan == nil {
		return errorResult(refactor.NewError(refactor.KindInvalidRequest, "no plan or known plan_id supplied")), nil
	}

	result, err := s.deps.Applier.Apply(plan)
	if err != nil {
		return errorResult(err), nil
	}

	payload := map[string]any{
		"applied_files": result.Applied,
		"warnings":      plan.Warnings,
	}
	data, mErr := json.Marshal(payload)
	if mErr != nil {
		return errorResult(refactor.WrapError(refactor.KindInternal, mErr, "encode result")), nil
	}
	return toolResultJSON(string(data)), nil
}

// healthArgs is the argument shape of health_check.
type healthArgs struct {
	IncludeDetails bool `json:"include_details,omitempty"`
}

func (s *Server) handleHealthCheck(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	var args healthArgs
	if raw := req.GetArguments(); raw != nil {
		if v, ok := raw["include_details"].(bool); ok {
			args.IncludeDetails = v
		}
	}

	payload := map[string]any{
		"status":  "ok",
		"name":    s.cfg.Name,
		"version": s.cfg.Version,
	}
	if s.deps.Pool != nil {
		clients := s.deps.Pool.Clients()
		payload["pool_size"] = len(clients)
		if args.IncludeDetails {
			payload["clients"] = clients
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return errorResult(refactor.WrapError(refactor.KindInternal, err, "encode health")), nil
	}
	return toolResultJSON(string(data)), nil
}

// errorResult renders a taxonomy error into the tool error envelope:
// {code, message, details}.
func errorResult(err error) *mcplib.CallToolResult {
	envelope := map[string]any{
		"code":    string(refactor.KindOf(err)),
		"message": err.Error(),
	}
	var re *refactor.Error
	if refactorErrorAs(err, &re) && len(re.Details) > 0 {
		envelope["details"] = re.Details
	}
	data, mErr := json.Marshal(envelope)
	if mErr != nil {
		return mcplib.NewToolResultError(err.Error())
	}
	return mcplib.NewToolResultError(string(data))
}
