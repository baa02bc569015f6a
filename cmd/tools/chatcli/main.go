package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/zhouzirui/support-desk/client/internal/config"
	"github.com/zhouzirui/support-desk/client/internal/service/backend"
	"github.com/zhouzirui/support-desk/client/internal/service/chat"
	"github.com/zhouzirui/support-desk/client/internal/service/choice"
	"github.com/zhouzirui/support-desk/client/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatcli: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env 可选，缺失时直接使用系统环境变量
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("配置加载失败: %w", err)
	}

	var (
		backendURL string
		contact    string
		timeout    time.Duration
		logFile    string
		altScreen  bool
	)

	flagSet := pflag.NewFlagSet("chatcli", pflag.ContinueOnError)
	flagSet.StringVar(&backendURL, "backend", cfg.Backend.BaseURL, "support backend base URL")
	flagSet.StringVar(&contact, "contact", "", "email address to start with (skips the prompt)")
	flagSet.DurationVar(&timeout, "timeout", cfg.Backend.Timeout, "timeout for each backend call")
	flagSet.StringVar(&logFile, "log-file", "chatcli.log", "write logs to this file; empty discards them")
	flagSet.BoolVar(&altScreen, "alt-screen", true, "run in the terminal's alternate screen")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if timeout < time.Second {
		return fmt.Errorf("invalid --timeout %s: must be at least 1s", timeout)
	}

	// Log lines would corrupt the TUI, so they go to a file.
	closeLog, err := redirectLog(logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	client := backend.New(backendURL, timeout)
	parser := choice.New(cfg.Protocol.StartMarker, cfg.Protocol.EndMarker, cfg.Protocol.FieldDelimiter)
	svc := chat.NewService(client, chat.WithParser(parser), chat.WithTimeout(timeout))

	ws := svc.NewWorkspace("terminal")
	model := tui.New(ws, tui.Options{Contact: contact, Timeout: timeout})

	opts := []tea.ProgramOption{}
	if altScreen {
		opts = append(opts, tea.WithAltScreen())
	}

	log.Printf("[chatcli] starting against %s", client.BaseURL())
	if _, err := tea.NewProgram(model, opts...).Run(); err != nil {
		return fmt.Errorf("terminal client: %w", err)
	}
	return nil
}

func redirectLog(path string) (func(), error) {
	if path == "" {
		log.SetOutput(io.Discard)
		return func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetOutput(f)
	return func() { _ = f.Close() }, nil
}
