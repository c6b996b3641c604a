// Command bot is an automated fivedice player. Pointed at a running server
// it joins a session, readies up, and plays its turns until the game
// finishes. Useful for soaking the API and for filling seats during manual
// testing.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

type sessionView struct {
	ID         int64           `json:"id"`
	State      string          `json:"state"`
	Players    []string        `json:"players"`
	NextToMove []string        `json:"next_to_move"`
	GameData   json.RawMessage `json:"game_data"`
}

type gameBlob struct {
	Cups map[string]struct {
		Dice    []int `json:"dice"`
		Rerolls int   `json:"rerolls"`
		Stood   bool  `json:"stood"`
		Place   int   `json:"place"`
	} `json:"cups"`
}

type client struct {
	baseURL string
	user    string
	http    *http.Client
}

func newClient(baseURL, user string) *client {
	return &client{
		baseURL: baseURL,
		user:    user,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *client) do(method, path string, body any, out *sessionView) error {
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
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", c.user)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *client) createSession() (int64, error) {
	var view sessionView
	err := c.do("POST", "/api/sessions", map[string]string{
		"game_type":  "fivedice",
		"visibility": "public",
	}, &view)
	return view.ID, err
}

func (c *client) action(id int64, verb string) (*sessionView, error) {
	var view sessionView
	err := c.do("POST", fmt.Sprintf("/api/sessions/%d/%s", id, verb), struct{}{}, &view)
	return &view, err
}

func (c *client) get(id int64) (*sessionView, error) {
	var view sessionView
	err := c.do("GET", fmt.Sprintf("/api/sessions/%d", id), nil, &view)
	return &view, err
}

func (c *client) move(id int64, move any) (*sessionView, error) {
	var view sessionView
	err := c.do("POST", fmt.Sprintf("/api/sessions/%d/move", id), map[string]any{"move": move}, &view)
	return &view, err
}

// pickMove keeps dice showing keepAt or better and rerolls the rest; once
// nothing is worth rerolling (or the budget ran out) it stands.
func pickMove(view *sessionView, user string, keepAt, rerollRounds int) any {
	var blob gameBlob
	if err := json.Unmarshal(view.GameData, &blob); err != nil {
		return map[string]string{"action": "stand"}
	}
	cup, ok := blob.Cups[user]
	if !ok || cup.Rerolls >= rerollRounds {
		return map[string]string{"action": "stand"}
	}
	keep := []int{}
	for i, d := range cup.Dice {
		if d >= keepAt {
			keep = append(keep, i)
		}
	}
	if len(keep) == len(cup.Dice) {
		return map[string]string{"action": "stand"}
	}
	return map[string]any{"action": "reroll", "keep": keep}
}

func isMyTurn(view *sessionView, user string) bool {
	for _, id := range view.NextToMove {
		if id == user {
			return true
		}
	}
	return false
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	sessionID := flag.Int64("session", 0, "session to join; 0 creates a new one")
	user := flag.String("user", "bot", "user id to play as")
	interval := flag.Duration("interval", 500*time.Millisecond, "poll interval")
	keepAt := flag.Int("keep-at", 4, "keep dice showing this value or better")
	rerollRounds := flag.Int("reroll-rounds", 2, "engine reroll budget, used to decide when to stand")
	flag.Parse()

	c := newClient(*baseURL, *user)

	id := *sessionID
	if id == 0 {
		created, err := c.createSession()
		if err != nil {
			log.Fatalf("create session: %v", err)
		}
		id = created
		log.Printf("created session %d", id)
	}

	if _, err := c.action(id, "join"); err != nil {
		log.Printf("join: %v (continuing, may already be seated)", err)
	}
	if _, err := c.action(id, "ready"); err != nil {
		log.Fatalf("ready: %v", err)
	}
	log.Printf("playing session %d as %s", id, *user)

	for {
		view, err := c.get(id)
		if err != nil {
			log.Fatalf("get session: %v", err)
		}

		switch view.State {
		case "finished":
			var blob gameBlob
			if err := json.Unmarshal(view.GameData, &blob); err == nil {
				if cup, ok := blob.Cups[*user]; ok {
					log.Printf("game over, placed %d", cup.Place)
				}
			}
			return
		case "started":
			if isMyTurn(view, *user) {
				move := pickMove(view, *user, *keepAt, *rerollRounds)
				if _, err := c.move(id, move); err != nil {
					log.Fatalf("move: %v", err)
				}
				log.Printf("played %v", move)
				continue
			}
		}

		time.Sleep(*interval)
	}
}
