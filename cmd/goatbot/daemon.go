package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"
)

const launchdLabel = "com.goatbot.run"

// servicePlan feeds the launchd/systemd templates. The service runs out of
// the config directory so godotenv finds .env and relative session-file
// paths in the config resolve.
type servicePlan struct {
	Exec    string
	Config  string
	WorkDir string
	Label   string
}

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install GoatBot as a user service (launchd/systemd)",
		Long:  "Writes a launchd agent or systemd user unit that runs 'goatbot run' on login and restarts it on failure.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return installService()
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the GoatBot user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return uninstallService()
		},
	}
}

func buildPlan() (servicePlan, error) {
	execPath, err := os.Executable()
	if err != nil {
		return servicePlan{}, fmt.Errorf("cannot determine executable path: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return servicePlan{}, fmt.Errorf("cannot determine home directory: %w", err)
	}
	return servicePlan{
		Exec:    execPath,
		Config:  resolveConfigPath(),
		WorkDir: filepath.Join(home, ".goatbot"),
		Label:   launchdLabel,
	}, nil
}

func servicePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"), nil
	case "linux":
		return filepath.Join(home, ".config", "systemd", "user", "goatbot.service"), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
	}
}

func installService() error {
	plan, err := buildPlan()
	if err != nil {
		return err
	}
	path, err := servicePath()
	if err != nil {
		return err
	}

	var tmpl *template.Template
	switch runtime.GOOS {
	case "darwin":
		tmpl = launchdTmpl
	default:
		tmpl = systemdTmpl
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, plan); err != nil {
		return fmt.Errorf("render service file: %w", err)
	}

	// Session files and .env are credentials; keep the work dir private.
	if err := os.MkdirAll(plan.WorkDir, 0o700); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return err
	}

	fmt.Printf("Service installed: %s\n", path)
	fmt.Printf("Working directory: %s (place .env and session files here)\n", plan.WorkDir)
	switch runtime.GOOS {
	case "darwin":
		fmt.Printf("Start:  launchctl load %s\n", path)
		fmt.Printf("Stop:   launchctl unload %s\n", path)
		fmt.Printf("Logs:   %s\n", filepath.Join(plan.WorkDir, "goatbot.log"))
	default:
		fmt.Println("Start:  systemctl --user daemon-reload && systemctl --user enable --now goatbot")
		fmt.Println("Stop:   systemctl --user stop goatbot")
		fmt.Println("Logs:   journalctl --user -u goatbot -f")
	}
	return nil
}

func uninstallService() error {
	path, err := servicePath()
	if err != nil {
		return err
	}
	if runtime.GOOS == "linux" {
		fmt.Println("If the service is running: systemctl --user disable --now goatbot")
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("No service installed at %s\n", path)
			return nil
		}
		return fmt.Errorf("remove service file: %w", err)
	}
	fmt.Printf("Service removed: %s\n", path)
	return nil
}

// KeepAlive restarts only on failure: a clean exit (launchctl unload, or an
// operator stopping the bot) stays stopped. ThrottleInterval spaces out
// restarts after repeated session failures.
var launchdTmpl = template.Must(template.New("launchd").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Exec}}</string>
        <string>run</string>
        <string>--config</string>
        <string>{{.Config}}</string>
    </array>
    <key>WorkingDirectory</key>
    <string>{{.WorkDir}}</string>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <dict>
        <key>SuccessfulExit</key>
        <false/>
    </dict>
    <key>ThrottleInterval</key>
    <integer>30</integer>
    <key>ProcessType</key>
    <string>Background</string>
    <key>StandardErrorPath</key>
    <string>{{.WorkDir}}/goatbot.log</string>
</dict>
</plist>
`))

// Logs go to the journal; RestartSec keeps restarts after session failures
// from hitting the API back to back.
var systemdTmpl = template.Must(template.New("systemd").Parse(`[Unit]
Description=GoatBot Instagram DM bot
After=network-online.target
Wants=network-online.target

[Service]
ExecStart={{.Exec}} run --config {{.Config}}
WorkingDirectory={{.WorkDir}}
EnvironmentFile=-{{.WorkDir}}/.env
Restart=on-failure
RestartSec=30
StandardOutput=journal
StandardError=journal

[Install]
WantedBy=default.target
`))
