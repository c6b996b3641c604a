package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tablezoo/tablezoo/game/service"
)

// Client is a thin MCP server that proxies to the REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates an MCP client that calls the REST API at baseURL.
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	c.initMCPServer()
	return c
}

// GetMCPServer returns the underlying MCP server for serving.
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"tablezoo game sessions",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`tablezoo - multiplayer game sessions over MCP

Sessions move through lobby -> started -> finished. Create a session, have
every player join and toggle ready, then start it. Moves are JSON blobs in
the game type's own format; the session tells you whose move is awaited in
next_to_move. All tools that act as a player need a user_id.`),
	)
	c.registerTools()
}

func sessionArg() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session id",
	}
}

func userArg() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Acting user id",
	}
}

func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new game session in the lobby",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"game_type": map[string]interface{}{
					"type":        "string",
					"description": "Registered game type key, e.g. fivedice",
				},
				"visibility": map[string]interface{}{
					"type":        "string",
					"description": "public or private (default private)",
				},
			},
			Required: []string{"game_type"},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List sessions (public projections)",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get one session as seen by a viewer (hidden info redacted while the game runs)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionArg(),
				"user_id":    userArg(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleGetSession)

	for _, t := range []struct {
		name, desc, path string
	}{
		{"join_session", "Join a lobby session as a player", "join"},
		{"open_session", "Mark a joined player online again", "open"},
		{"watch_session", "Spectate a running session", "watch"},
		{"leave_session", "Leave a lobby or finished session", "leave"},
		{"close_session", "Drop online presence without leaving", "close"},
		{"toggle_ready", "Toggle the player's ready flag", "ready"},
	} {
		t := t
		c.mcpServer.AddTool(mcp.Tool{
			Name:        t.name,
			Description: t.desc,
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"session_id": sessionArg(),
					"user_id":    userArg(),
				},
				Required: []string{"session_id", "user_id"},
			},
		}, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return c.handleUserAction(request, t.path)
		})
	}

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "start_game",
		Description: "Start a lobby session once enough players are ready",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionArg(),
			},
			Required: []string{"session_id"},
		},
	}, c.handleStartGame)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "make_move",
		Description: "Make a move; the move payload is game-type specific JSON",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionArg(),
				"user_id":    userArg(),
				"move": map[string]interface{}{
					"type":        "object",
					"description": "Move payload in the game type's format",
				},
			},
			Required: []string{"session_id", "user_id", "move"},
		},
	}, c.handleMakeMove)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "user_stats",
		Description: "Cumulative games played and won for a user",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": userArg(),
			},
			Required: []string{"user_id"},
		},
	}, c.handleUserStats)
}

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	gameType, _ := args["game_type"].(string)
	visibility, _ := args["visibility"].(string)

	body := map[string]string{"game_type": gameType}
	if visibility != "" {
		body["visibility"] = visibility
	}

	var view service.SessionView
	if err := c.apiCall("POST", "/api/sessions", "", body, &view); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created session %d (%s, %d-%d players)",
		view.ID, view.GameType, view.MinPlayers, view.MaxPlayers)), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                      `json:"count"`
		Sessions []service.SessionSummary `json:"sessions"`
	}
	if err := c.apiCall("GET", "/api/sessions", "", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Sessions (%d):\n", response.Count)
	for _, s := range response.Sessions {
		result += fmt.Sprintf("- %d: %s [%s] %d/%d players\n",
			s.ID, s.GameType, s.State, s.PlayerCount, s.MaxPlayers)
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)
	user, _ := args["user_id"].(string)

	var view json.RawMessage
	if err := c.apiCall("GET", "/api/sessions/"+sessionID, user, nil, &view); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(view)), nil
}

func (c *Client) handleUserAction(request mcp.CallToolRequest, path string) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)
	user, _ := args["user_id"].(string)

	var view service.SessionView
	if err := c.apiCall("POST", fmt.Sprintf("/api/sessions/%s/%s", sessionID, path), user, struct{}{}, &view); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session %d: state=%s players=%v next=%v",
		view.ID, view.State, view.Players, view.NextToMove)), nil
}

func (c *Client) handleStartGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)

	var view service.SessionView
	if err := c.apiCall("POST", fmt.Sprintf("/api/sessions/%s/start", sessionID), "", struct{}{}, &view); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session %d started; next to move: %v",
		view.ID, view.NextToMove)), nil
}

func (c *Client) handleMakeMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	sessionID, _ := args["session_id"].(string)
	user, _ := args["user_id"].(string)

	move, err := json.Marshal(args["move"])
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode move: %v", err)), nil
	}

	var view service.SessionView
	body := map[string]json.RawMessage{"move": move}
	if err := c.apiCall("POST", fmt.Sprintf("/api/sessions/%s/move", sessionID), user, body, &view); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if view.State == "finished" {
		return mcp.NewToolResultText(fmt.Sprintf("Move accepted; game finished. Final state: %s", string(view.GameData))), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Move accepted; next to move: %v", view.NextToMove)), nil
}

func (c *Client) handleUserStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	user, _ := args["user_id"].(string)

	var stats service.UserStatsView
	if err := c.apiCall("GET", "/api/users/"+user+"/stats", "", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %d played, %d won",
		stats.UserID, stats.GamesPlayed, stats.GamesWon)), nil
}

// apiCall performs an HTTP request against the REST API, sending user as
// the X-User-ID identity when set.
func (c *Client) apiCall(method, path, user string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
