// Command inspect reads a tablezoo sqlite store and prints human-readable
// summaries: the session list, one session's full record, or a user's
// standings. It is an offline admin tool; it never mutates the store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/tablezoo/tablezoo/game/store"
)

func main() {
	dbFlag := &cli.StringFlag{
		Name:  "db",
		Value: "tablezoo.db",
		Usage: "Path to the sqlite store",
	}

	cmd := &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a tablezoo session store",
		Commands: []*cli.Command{
			{
				Name:   "sessions",
				Usage:  "List all sessions, newest first",
				Flags:  []cli.Flag{dbFlag},
				Action: listSessions,
			},
			{
				Name:      "session",
				Usage:     "Print one session's full record as JSON",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{dbFlag},
				Action:    showSession,
			},
			{
				Name:      "standings",
				Usage:     "Print a user's cumulative counters",
				ArgsUsage: "<user-id>",
				Flags:     []cli.Flag{dbFlag},
				Action:    showStandings,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func listSessions(ctx context.Context, cmd *cli.Command) error {
	db, err := openStore(cmd.String("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := db.List(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%-6s %-12s %-10s %-9s %s\n", "ID", "GAME", "STATE", "PLAYERS", "CREATED")
	for _, s := range sessions {
		fmt.Printf("%-6d %-12s %-10s %2d/%-6d %s\n",
			s.ID, s.GameType, s.State, len(s.Players), s.MaxPlayers,
			s.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func showSession(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: inspect session <id>")
	}
	id, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid session id %q", cmd.Args().First())
	}

	db, err := openStore(cmd.String("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	sess, err := db.Load(ctx, id)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func showStandings(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("usage: inspect standings <user-id>")
	}

	db, err := openStore(cmd.String("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.User(ctx, cmd.Args().First())
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d played, %d won\n", stats.UserID, stats.GamesPlayed, stats.GamesWon)
	return nil
}

func openStore(path string) (*store.SQLite, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store %s: %w", path, err)
	}
	return store.OpenSQLite(path)
}
