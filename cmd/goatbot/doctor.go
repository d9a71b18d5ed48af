package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"goatbot/internal/config"
	"goatbot/internal/instagram"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your GoatBot installation",
		Long: `Verifies that GoatBot's configuration, account sessions, database, and
dashboard port are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("GoatBot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'goatbot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("1 check(s) failed")
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Accounts and session files
			enabled := 0
			for _, acct := range cfg.Accounts {
				if acct.Disabled {
					printWarn("Account: "+acct.Username, "disabled")
					warned++
					continue
				}
				enabled++
				session, err := instagram.LoadSession(acct.SessionFile)
				if err != nil {
					printFail("Account: "+acct.Username, err.Error())
					failed++
					continue
				}
				printPass("Account: "+acct.Username, fmt.Sprintf("session for user %s", session.UserID))
				passed++
			}
			if enabled == 0 {
				printFail("Accounts", "no enabled accounts configured")
				failed++
			}

			// 4. Admin list
			if len(cfg.Bot.AdminIDs) == 0 {
				printWarn("Admins", "no bot admins configured; role-2 commands are unreachable")
				warned++
			} else {
				printPass("Admins", fmt.Sprintf("%d configured", len(cfg.Bot.AdminIDs)))
				passed++
			}

			// 5. Database writable
			if err := checkDatabase(cfg.Store.DBPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", cfg.Store.DBPath)
				passed++
			}

			// 6. Command manifest parses
			if cfg.Commands.ManifestPath != "" {
				if _, err := os.Stat(cfg.Commands.ManifestPath); err != nil {
					printFail("Command manifest", fmt.Sprintf("not found: %s", cfg.Commands.ManifestPath))
					failed++
				} else {
					printPass("Command manifest", cfg.Commands.ManifestPath)
					passed++
				}
			}

			// 7. Dashboard port free
			if cfg.Dashboard.Enabled {
				if err := checkPort(cfg.Dashboard.Port); err != nil {
					printWarn("Dashboard port", fmt.Sprintf("port %d may be in use: %v", cfg.Dashboard.Port, err))
					warned++
				} else {
					printPass("Dashboard port", fmt.Sprintf(":%d available", cfg.Dashboard.Port))
					passed++
				}
			}

			// 8. Log file writable
			if cfg.Logging.File != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.Logging.File)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running GoatBot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nGoatBot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! GoatBot is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-24s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-24s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-24s %s\n", check, detail)
}
