package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/workforce-ai/meter/pkg/meter"
	"github.com/workforce-ai/meter/pkg/models"
	"github.com/workforce-ai/meter/pkg/plan"
)

type userArgs struct {
	UserID string `json:"user_id"`
}

type statsArgs struct {
	UserID string `json:"user_id"`
	Since  string `json:"since"`
}

type auditSearchArgs struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
	Since  string `json:"since"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"meter_usage_report":   handleUsageReport,
	"meter_upgrade_advice": handleUpgradeAdvice,
	"meter_plans":          handlePlans,
	"meter_stats":          handleStats,
	"meter_cache_stats":    handleCacheStats,
	"meter_audit_search":   handleAuditSearch,
}

var userIDProperty = Property{Type: "string", Description: "The user (account) ID"}

var sinceProperty = Property{
	Type:        "string",
	Description: "Start date in YYYY-MM-DD format (optional, defaults to start of the billing month)",
}

var allTools = []ToolDefinition{
	{
		Name:        "meter_usage_report",
		Description: "Show the current billing period's token usage per provider against the user's plan limits.",
		InputSchema: ObjectSchema{
			Type:       "object",
			Required:   []string{"user_id"},
			Properties: map[string]Property{"user_id": userIDProperty},
		},
	},
	{
		Name:        "meter_upgrade_advice",
		Description: "Say whether the user should be prompted to upgrade, why, and to which tier.",
		InputSchema: ObjectSchema{
			Type:       "object",
			Required:   []string{"user_id"},
			Properties: map[string]Property{"user_id": userIDProperty},
		},
	},
	{
		Name:        "meter_plans",
		Description: "List subscription tiers with their token limits and prices.",
		InputSchema: ObjectSchema{Type: "object", Properties: map[string]Property{}},
	},
	{
		Name:        "meter_stats",
		Description: "Show stored token usage grouped by user and provider.",
		InputSchema: ObjectSchema{
			Type: "object",
			Properties: map[string]Property{
				"user_id": {Type: "string", Description: "Filter by user (optional, omit for all users)"},
				"since":   sinceProperty,
			},
		},
	},
	{
		Name:        "meter_cache_stats",
		Description: "Show report cache statistics (entries, hits, misses, hit rate).",
		InputSchema: ObjectSchema{Type: "object", Properties: map[string]Property{}},
	},
	{
		Name:        "meter_audit_search",
		Description: "Search past evaluations and the upgrade prompts they produced.",
		InputSchema: ObjectSchema{
			Type: "object",
			Properties: map[string]Property{
				"user_id": {Type: "string", Description: "Filter by user (optional)"},
				"reason": {
					Type:        "string",
					Description: "Filter by prompt reason (optional)",
					Enum:        []string{string(models.ReasonNearLimit), string(models.ReasonAtLimit)},
				},
				"since": {Type: "string", Description: "Start date in YYYY-MM-DD format (optional)"},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func evaluate(ctx context.Context, s *Server, raw json.RawMessage) (*models.Evaluation, *ToolCallResult) {
	var args userArgs
	if err := decodeArgs(raw, &args); err != nil {
		r := errorResult("Invalid arguments: " + err.Error())
		return nil, &r
	}
	if args.UserID == "" {
		r := errorResult("user_id is required")
		return nil, &r
	}
	eval, err := s.deps.Evaluator.Evaluate(ctx, args.UserID)
	if err != nil {
		r := errorResult(describeError(err))
		return nil, &r
	}
	return eval, nil
}

func describeError(err error) string {
	var ute *plan.UnknownTierError
	switch {
	case errors.As(err, &ute):
		return "The account has an unrecognised plan tier: " + ute.Tier
	case errors.Is(err, meter.ErrNoPlan):
		return "No plan is on record for this user."
	default:
		return "Error computing usage: " + err.Error()
	}
}

func handleUsageReport(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	eval, fail := evaluate(ctx, s, raw)
	if fail != nil {
		return *fail
	}
	return textResult(formatReport(eval))
}

func handleUpgradeAdvice(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	eval, fail := evaluate(ctx, s, raw)
	if fail != nil {
		return *fail
	}
	return textResult(formatRecommendation(eval.Recommendation))
}

func handlePlans(_ context.Context, _ *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatPlans(plan.All()))
}

func handleStats(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.deps.Summaries == nil {
		return textResult("Usage statistics are not available for this store.")
	}
	var args statsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	since := models.MonthlyPeriod(time.Now()).Start
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		since = t
	}
	rows, err := s.deps.Summaries.Summary(ctx, args.UserID, since)
	if err != nil {
		return errorResult("Error fetching stats: " + err.Error())
	}
	return textResult(formatSummary(rows))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.deps.Cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleAuditSearch(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.deps.Audit == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}

	opts := models.AuditQueryOpts{
		UserID: args.UserID,
		Reason: models.UpgradeReason(args.Reason),
		Limit:  50,
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.deps.Audit.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}
