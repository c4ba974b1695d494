package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"deskbot/internal/config"
	"deskbot/internal/policy"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your deskbot installation",
		Long: `Verifies that deskbot's configuration, policy rules, database, and
capture tooling are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("deskbot doctor v%s\n\n", version)

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'deskbot init' to create a default configuration.\n")
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
				return nil
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Policy rules load
			rules, err := policy.LoadRules(cfg.Policy.RulesPath)
			if err != nil {
				printFail("Policy rules", err.Error())
				failed++
			} else {
				source := cfg.Policy.RulesPath
				if source == "" {
					source = "built-in"
				}
				printPass("Policy rules", fmt.Sprintf("%d rules (%s)", len(rules), source))
				passed++
			}

			// 4. Database writable
			dbPath := cfg.Memory.DBPath
			if dbPath == "" {
				dbPath = filepath.Join(config.DefaultConfigDir(), "deskbot.db")
			}
			if err := checkDatabase(dbPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", dbPath)
				passed++
			}

			// 5. Model API key
			if cfg.Model.APIKey == "" {
				printWarn("Model API key", "not set; model requests will fail")
				warned++
			} else {
				printPass("Model API key", "configured")
				passed++
			}

			// 6. Capture tooling for this platform
			for _, tool := range captureTools() {
				if _, err := exec.LookPath(tool.binary); err != nil {
					if tool.required {
						printFail("Capture: "+tool.binary, tool.hint)
						failed++
					} else {
						printWarn("Capture: "+tool.binary, tool.hint)
						warned++
					}
				} else {
					printPass("Capture: "+tool.binary, "found")
					passed++
				}
			}

			// 7. Metrics port
			if cfg.Metrics.Enabled {
				if err := checkAddr(cfg.Metrics.Listen); err != nil {
					printWarn("Metrics listen", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Listen, err))
					warned++
				} else {
					printPass("Metrics listen", cfg.Metrics.Listen)
					passed++
				}
			}

			// 8. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running deskbot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\ndeskbot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! deskbot is ready to run.\n")
			}
			return nil
		},
	}
}

type captureTool struct {
	binary   string
	required bool
	hint     string
}

func captureTools() []captureTool {
	var tools []captureTool
	switch runtime.GOOS {
	case "linux":
		tools = append(tools,
			captureTool{"wmctrl", true, "install wmctrl for window enumeration"},
			captureTool{"import", true, "install ImageMagick for window capture"},
			captureTool{"xdotool", false, "install xdotool to detect the active window"},
		)
	case "darwin":
		tools = append(tools,
			captureTool{"screencapture", true, "screencapture should ship with macOS"},
			captureTool{"osascript", true, "osascript should ship with macOS"},
		)
	case "windows":
		tools = append(tools,
			captureTool{"powershell", true, "PowerShell is required for window enumeration and capture"},
		)
	}
	tools = append(tools, captureTool{"tesseract", false, "install tesseract to enable OCR on captures"})
	return tools
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

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-22s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-22s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-22s %s\n", check, detail)
}
