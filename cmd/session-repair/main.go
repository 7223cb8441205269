// Command session-repair scans an OpenCode storage directory for sessions
// corrupted by invalid thinking block signatures (typically caused by
// switching models mid-session) and repairs them by removing the offending
// messages, with a file backup taken before anything is deleted.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/hexmos/session-repair/internal/config"
	"github.com/hexmos/session-repair/internal/repair"
	"github.com/hexmos/session-repair/internal/scan"
	"github.com/hexmos/session-repair/internal/storage"
)

func main() {
	app := &cli.App{
		Name:  "session-repair",
		Usage: "scan and repair sessions corrupted by invalid thinking block signatures",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a session-repair.toml config file",
				EnvVars: []string{"SESSIONREPAIR_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "storage",
				Usage:   "storage root (overrides config)",
				EnvVars: []string{"SESSIONREPAIR_STORAGE_DIR"},
			},
			&cli.StringFlag{
				Name:    "backup-dir",
				Usage:   "backup directory (overrides config)",
				EnvVars: []string{"SESSIONREPAIR_STORAGE_BACKUP_DIR"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable verbose output",
				EnvVars: []string{"SESSIONREPAIR_VERBOSE"},
			},
		},
		Before: func(c *cli.Context) error {
			level := zerolog.InfoLevel
			if c.Bool("verbose") {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).
				With().Timestamp().Logger()
			return nil
		},
		CommandNotFound: func(c *cli.Context, command string) {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
			cli.ShowAppHelp(c)
			os.Exit(1)
		},
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list all corrupted sessions",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Usage:   "emit the corrupted-session report as JSON",
						EnvVars: []string{"SESSIONREPAIR_JSON"},
					},
				},
				Action: runList,
			},
			{
				Name:      "fix",
				Usage:     "repair a corrupted session (or all of them)",
				ArgsUsage: "<session-or-message-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "repair every corrupted session",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "show what would be done without making changes",
					},
				},
				Action: runFix,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newStore builds the storage handle from config plus flag overrides.
func newStore(c *cli.Context) (*storage.Store, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if dir := c.String("storage"); dir != "" {
		cfg.Storage.Dir = dir
	}
	if dir := c.String("backup-dir"); dir != "" {
		cfg.Storage.BackupDir = dir
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return storage.New(cfg.Storage.Dir, cfg.Storage.BackupDir), nil
}

// sessionGroup is one corrupted session with its records, in scan order.
type sessionGroup struct {
	SessionID string            `json:"session_id"`
	Title     string            `json:"session_title"`
	Position  *storage.Position `json:"position,omitempty"`
	Records   []scan.Record     `json:"messages"`
}

// groupBySession folds scan records into per-session groups, preserving the
// scanner's newest-first ordering of first appearance. The group's position
// comes from its newest record.
func groupBySession(records []scan.Record) []*sessionGroup {
	byID := map[string]*sessionGroup{}
	var groups []*sessionGroup
	for _, rec := range records {
		g, ok := byID[rec.SessionID]
		if !ok {
			g = &sessionGroup{
				SessionID: rec.SessionID,
				Title:     rec.SessionTitle,
				Position:  rec.Position,
			}
			byID[rec.SessionID] = g
			groups = append(groups, g)
		}
		g.Records = append(g.Records, rec)
	}
	return groups
}

func runList(c *cli.Context) error {
	store, err := newStore(c)
	if err != nil {
		return err
	}

	fmt.Println("\nScanning for corrupted sessions...")

	records, err := scan.NewScanner(store).Scan()
	if err != nil {
		return err
	}

	groups := groupBySession(records)

	if c.Bool("json") {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(groups)
	}

	if len(groups) == 0 {
		fmt.Println("No corrupted sessions found.")
		return nil
	}

	fmt.Printf("\nFound %d corrupted message(s):\n", len(records))
	fmt.Println(strings.Repeat("-", 100))

	repairer := repair.NewRepairer(store)
	for i, g := range groups {
		fmt.Printf("\n[%d] Session: %s\n", i+1, g.Title)
		fmt.Printf("    Session ID: %s\n", g.SessionID)
		fmt.Printf("    Corrupted Messages: %d\n", len(g.Records))

		for _, rec := range g.Records {
			fmt.Printf("\n    - Message: %s\n", rec.MessageID)
			fmt.Printf("      Time: %s\n", rec.TimeString)
			fmt.Printf("      Model: %s/%s\n", rec.ProviderID, rec.ModelID)
			fmt.Printf("      Error: %s\n", rec.ErrorText)
		}

		preview, err := repairer.Repair(g.SessionID, g.Position, true)
		switch {
		case errors.Is(err, repair.ErrNothingToRepair):
			fmt.Println("\n    Fix: nothing to remove")
		case err != nil:
			fmt.Printf("\n    Fix: could not compute removal set: %v\n", err)
		default:
			fmt.Printf("\n    Fix: remove %d message(s) and %d part(s)\n",
				len(preview.RemovedMessageIDs), preview.RemovedPartCount)
			if preview.LowConfidence {
				fmt.Println("    Note: target chosen by fallback; error position was missing or out of range")
			}
		}
	}

	fmt.Println("\n" + strings.Repeat("-", 100))
	fmt.Println("\nTo fix a specific session, run:")
	fmt.Println("  session-repair fix <session_id>")
	fmt.Println("\nTo fix all corrupted sessions, run:")
	fmt.Println("  session-repair fix --all")
	fmt.Println("\nAdd --dry-run to see what would be done without making changes.")
	return nil
}

func runFix(c *cli.Context) error {
	target := c.Args().First()
	if target == "" && !c.Bool("all") {
		return cli.Exit("please specify a session/message ID or --all", 1)
	}

	store, err := newStore(c)
	if err != nil {
		return err
	}

	records, err := scan.NewScanner(store).Scan()
	if err != nil {
		return err
	}
	groups := groupBySession(records)
	if len(groups) == 0 {
		fmt.Println("No corrupted sessions found.")
		return nil
	}

	type fixTarget struct {
		group *sessionGroup
		pos   *storage.Position
	}
	var toFix []fixTarget
	if c.Bool("all") {
		for _, g := range groups {
			toFix = append(toFix, fixTarget{group: g, pos: g.Position})
		}
		fmt.Printf("\nFixing all %d corrupted session(s)...\n", len(toFix))
	} else {
		if g, pos := matchTarget(groups, target); g != nil {
			toFix = append(toFix, fixTarget{group: g, pos: pos})
		} else {
			fmt.Fprintf(os.Stderr, "Error: no corrupted session or message found matching %q\n", target)
			fmt.Fprintln(os.Stderr, "\nAvailable corrupted sessions:")
			for _, g := range groups {
				fmt.Fprintf(os.Stderr, "  - %s (%s)\n", g.SessionID, g.Title)
			}
			return cli.Exit("", 1)
		}
	}

	dryRun := c.Bool("dry-run")
	if dryRun {
		fmt.Println("\n[DRY RUN] No changes will be made.")
	}

	repairer := repair.NewRepairer(store)
	for _, ft := range toFix {
		g := ft.group
		fmt.Printf("\nProcessing session: %s\n", g.Title)
		fmt.Printf("  Session ID: %s\n", g.SessionID)

		result, err := repairer.Repair(g.SessionID, ft.pos, dryRun)
		if err != nil {
			fmt.Println("  Status: FAILED")
			fmt.Printf("  Error: %v\n", err)
			continue
		}

		if dryRun {
			fmt.Println("  Status: WOULD SUCCEED")
		} else {
			fmt.Println("  Status: SUCCESS")
		}
		fmt.Printf("  Messages removed: %d\n", len(result.RemovedMessageIDs))
		for _, id := range result.RemovedMessageIDs {
			fmt.Printf("    - %s\n", id)
		}
		fmt.Printf("  Parts removed: %d\n", result.RemovedPartCount)
		if result.LowConfidence {
			fmt.Println("  Note: target chosen by fallback; error position was missing or out of range")
		}
		for _, fd := range result.FailedDeletes {
			fmt.Printf("  Could not delete: %s (%s)\n", fd.Path, fd.Err)
		}
		if result.BackupDir != "" {
			fmt.Printf("  Backup saved to: %s\n", result.BackupDir)
		}
	}

	if !dryRun {
		fmt.Println("\n" + strings.Repeat("=", 60))
		fmt.Println("Repair complete!")
		fmt.Println("Please restart OpenCode to see the changes.")
		fmt.Println(strings.Repeat("=", 60))
	}
	return nil
}

// matchTarget resolves a session by ID or substring, then falls back to
// matching a corrupted message ID the same way. A session match repairs with
// the session's newest reported position; a message match repairs with that
// message's own position, since different records of one session can report
// different positions.
func matchTarget(groups []*sessionGroup, target string) (*sessionGroup, *storage.Position) {
	for _, g := range groups {
		if g.SessionID == target || strings.Contains(g.SessionID, target) {
			return g, g.Position
		}
	}
	for _, g := range groups {
		for _, rec := range g.Records {
			if rec.MessageID == target || strings.Contains(rec.MessageID, target) {
				return g, rec.Position
			}
		}
	}
	return nil, nil
}
