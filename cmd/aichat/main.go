package main

import (
	"flag"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/qiongqiongyuren/co2yuan3/internal/client"
	"github.com/qiongqiongyuren/co2yuan3/internal/tui"
)

func main() {
	_ = godotenv.Load()

	defaultURL := client.DefaultURL
	if v := os.Getenv("AISERVICE_URL"); v != "" {
		defaultURL = v
	}
	url := flag.String("url", defaultURL, "Base URL of the query service")
	timeout := flag.Duration("timeout", 150*time.Second, "Per-question request timeout")
	flag.Parse()

	c := client.New(*url, *timeout)
	m := tui.New(c, *url, *timeout)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
}
