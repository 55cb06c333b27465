package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers all wallet bot tools on the MCP server.
func RegisterTools(s *server.MCPServer, client *Client) {
	s.AddTool(gomcp.NewTool("walletbot_status",
		gomcp.WithDescription("Get current wallet bot status: scheduler state, current cycle progress, current wallet, last cycle totals and next cycle time."),
	), statusHandler(client))

	s.AddTool(gomcp.NewTool("walletbot_health",
		gomcp.WithDescription("Quick health check for the wallet bot. Checks RPC node connectivity."),
	), healthHandler(client))

	s.AddTool(gomcp.NewTool("walletbot_cycles",
		gomcp.WithDescription("List past cycles with operation totals (paginated, newest first)."),
		gomcp.WithNumber("limit",
			gomcp.Description("Max results to return (default: 10, max: 100)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Results offset for pagination (default: 0)"),
		),
	), cyclesHandler(client))

	s.AddTool(gomcp.NewTool("walletbot_cycle_detail",
		gomcp.WithDescription("Get every operation outcome for one cycle by ID."),
		gomcp.WithString("id",
			gomcp.Required(),
			gomcp.Description("Cycle ID"),
		),
	), cycleDetailHandler(client))
}

func statusHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/v1/status")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Wallet bot unreachable: %v\n\nIs the bot running? Check WALLETBOT_URL.", err)), nil
		}
		return gomcp.NewToolResultText(formatStatus(raw)), nil
	}
}

func healthHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/ready")
		if err != nil {
			// /ready answers 503 with the failing checks in the body.
			if len(raw) > 0 && json.Valid(raw) {
				return gomcp.NewToolResultText(formatHealth(raw)), nil
			}
			return gomcp.NewToolResultError(fmt.Sprintf("Wallet bot unhealthy: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatHealth(raw)), nil
	}
}

func cyclesHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		offset := req.GetInt("offset", 0)
		path := fmt.Sprintf("/v1/cycles?limit=%d&offset=%d", limit, offset)

		raw, err := client.Get(ctx, path)
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Cycle history failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatCycles(raw)), nil
	}
}

func cycleDetailHandler(client *Client) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil || id == "" {
			return gomcp.NewToolResultError("id is required"), nil
		}
		raw, err := client.Get(ctx, "/v1/cycles/"+url.PathEscape(id))
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Cycle detail failed: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatCycleDetail(raw)), nil
	}
}

// Response formatting functions

func formatStatus(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing status: %v", err)
	}

	lines := joinLines(
		section("Wallet Bot Status"),
		kv("State", getStr(m, "state")),
		kv("Cycles Run", formatNumber(getNum(m, "cyclesRun"))),
		kv("Uptime", formatSeconds(getNum(m, "uptimeSec"))),
		kv("Next Cycle", formatTime(getStr(m, "nextCycleAt"))),
	)

	if cur, ok := m["currentCycle"].(map[string]any); ok {
		lines += "\n\n" + joinLines(
			section("Current Cycle"),
			kv("ID", getStr(cur, "id")),
			kv("Started", formatTime(getStr(cur, "startedAt"))),
			kv("Wallets", fmt.Sprintf("%s / %s", formatNumber(getNum(cur, "walletsProcessed")), formatNumber(getNum(cur, "walletCount")))),
			kv("Current Wallet", getStr(m, "currentWallet")),
			formatTotals(cur),
		)
	}

	if last, ok := m["lastCycle"].(map[string]any); ok {
		lines += "\n\n" + joinLines(
			section("Last Cycle"),
			kv("ID", getStr(last, "id")),
			kv("Status", getStr(last, "status")),
			kv("Started", formatTime(getStr(last, "startedAt"))),
			kv("Completed", formatTime(getStr(last, "completedAt"))),
			kv("Wallets", formatNumber(getNum(last, "walletsProcessed"))),
			formatTotals(last),
			errorLine(last),
		)
	}

	return lines
}

func formatTotals(c map[string]any) string {
	return joinLines(
		kv("Succeeded", formatNumber(getNum(c, "operationsSucceeded"))),
		kv("Failed", formatNumber(getNum(c, "operationsFailed"))),
		kv("Skipped", formatNumber(getNum(c, "operationsSkipped"))),
	)
}

func errorLine(c map[string]any) string {
	if e := getStr(c, "errorMessage"); e != "" {
		return kv("Error", e)
	}
	return ""
}

func formatHealth(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing health: %v", err)
	}

	ready, _ := m["ready"].(bool)
	state := "READY"
	if !ready {
		state = "NOT READY"
	}

	lines := section("Wallet Bot Health: " + state)

	if checks, ok := m["checks"].([]any); ok {
		for _, c := range checks {
			if check, ok := c.(map[string]any); ok {
				name := getStr(check, "name")
				status := getStr(check, "status")
				latencyMs := getNum(check, "latency_ms")
				errMsg := getStr(check, "error")
				line := fmt.Sprintf("  %-15s %s (%dms)", name, status, int64(latencyMs))
				if errMsg != "" {
					line += " - " + errMsg
				}
				lines += "\n" + line
			}
		}
	}

	return lines
}

func formatCycles(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing cycles: %v", err)
	}

	lines := joinLines(
		section("Cycle History"),
		kv("Total Cycles", formatNumber(getNum(m, "total"))),
	) + "\n\n"

	cycles, ok := m["cycles"].([]any)
	if !ok || len(cycles) == 0 {
		lines += "No cycles found."
		return lines
	}

	for _, c := range cycles {
		cycle, ok := c.(map[string]any)
		if !ok {
			continue
		}
		lines += fmt.Sprintf("### %s\n", getStr(cycle, "id"))
		lines += joinLines(
			kv("Status", getStr(cycle, "status")),
			kv("Started", formatTime(getStr(cycle, "startedAt"))),
			kv("Wallets", formatNumber(getNum(cycle, "walletsProcessed"))),
			formatTotals(cycle),
			errorLine(cycle),
		)
		lines += "\n\n"
	}

	return lines
}

func formatCycleDetail(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing cycle detail: %v", err)
	}

	cycle, ok := m["cycle"].(map[string]any)
	if !ok {
		return "Cycle not found"
	}

	lines := joinLines(
		section("Cycle: "+getStr(cycle, "id")),
		kv("Status", getStr(cycle, "status")),
		kv("Started", formatTime(getStr(cycle, "startedAt"))),
		kv("Completed", formatTime(getStr(cycle, "completedAt"))),
		kv("Wallets", fmt.Sprintf("%s / %s", formatNumber(getNum(cycle, "walletsProcessed")), formatNumber(getNum(cycle, "walletCount")))),
		formatTotals(cycle),
		errorLine(cycle),
	)

	ops, _ := m["operations"].([]any)
	if len(ops) == 0 {
		return lines + "\n\nNo operations recorded."
	}

	lines += "\n\n" + section("Operations")
	for _, o := range ops {
		op, ok := o.(map[string]any)
		if !ok {
			continue
		}
		line := fmt.Sprintf("  [%d] %s  %-18s %-9s attempts=%d",
			int64(getNum(op, "walletIndex")), shortAddr(getStr(op, "wallet")),
			getStr(op, "operation"), getStr(op, "status"), int64(getNum(op, "attempts")))
		if hashes, ok := op["txHashes"].([]any); ok && len(hashes) > 0 {
			line += fmt.Sprintf(" txs=%d", len(hashes))
		}
		if e := getStr(op, "error"); e != "" {
			line += " - " + e
		}
		lines += "\n" + line
	}

	return lines
}

// shortAddr abbreviates a hex address as 0x1234...abcd.
func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// Helper functions
func getStr(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getNum(m map[string]any, key string) float64 {
	if v, ok := m[key]; ok {
		if n, ok := v.(float64); ok {
			return n
		}
	}
	return 0
}
