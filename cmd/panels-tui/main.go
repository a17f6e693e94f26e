// Command panels-tui renders the chat panels in a terminal.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/onnwee/chat-panels/tui"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/view/ws", "view WebSocket URL")
	logFile := flag.String("log", "", "write debug logs to this file")
	flag.Parse()

	// The alt screen owns stdout, so logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if *logFile != "" {
		f, err := tea.LogToFile(*logFile, "panels-tui")
		if err != nil {
			log.Fatalf("open log file: %v", err)
		}
		defer func() { _ = f.Close() }()
		logOut = f
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug})))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	client, err := tui.Dial(ctx, *serverURL)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = client.Close() }()

	p := tea.NewProgram(tui.NewModel(client, client.Receive()), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}
