// Package main provides the reelbox control CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/reelbox/internal/api/connect"
	"github.com/osa030/reelbox/internal/app/diagnostics"
)

var (
	app    = kingpin.New("reelboxctl", "reelbox control client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Control token (or set REELBOX_CONTROL_TOKEN env)").Envar("REELBOX_CONTROL_TOKEN").String()

	// signal command
	signalCmd  = app.Command("signal", "Deliver a lifecycle signal")
	signalName = signalCmd.Arg("name", "Signal name (start, resume, pause, stop or the full form)").Required().String()

	// status command
	statusCmd = app.Command("status", "Show controller status")

	// watch command
	watchCmd     = app.Command("watch", "Stream lifecycle notifications")
	watchHistory = watchCmd.Flag("history", "Replay recorded notifications first").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)
	ctx := context.Background()

	switch command {
	case signalCmd.FullCommand():
		if *token == "" {
			fmt.Println("Error: control token is required (use --token or REELBOX_CONTROL_TOKEN env)")
			os.Exit(1)
		}
		sendSignal(ctx, client, *signalName)
	case statusCmd.FullCommand():
		status(ctx, client)
	case watchCmd.FullCommand():
		watch(ctx, client, *watchHistory)
	}
}

func sendSignal(ctx context.Context, client *apiconnect.Client, name string) {
	resp, err := client.Signal(ctx, name)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Signal %s delivered\n", resp.Signal)
	printStatus(&resp.Status)
}

func status(ctx context.Context, client *apiconnect.Client) {
	resp, err := client.Status(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	printStatus(resp)
}

func printStatus(s *apiconnect.StatusResponse) {
	fmt.Println("\n=== CONTROLLER STATUS ===")
	fmt.Printf("State: %s\n", s.State)
	if s.SessionID != "" {
		fmt.Printf("Session ID: %s\n", s.SessionID)
	}
	if s.LastPlaybackState != "" {
		fmt.Printf("Playback: %s\n", s.LastPlaybackState)
	}
	fmt.Printf("Media: %s (%s)\n", s.MediaURI, s.MimeType)
	fmt.Println("\nResume:")
	fmt.Printf("  Media Index: %d\n", s.Resume.MediaIndex)
	fmt.Printf("  Position: %s\n", time.Duration(s.Resume.PositionMillis)*time.Millisecond)
	fmt.Printf("  Auto Play: %v\n", s.Resume.AutoPlay)
	fmt.Println("\nPolicy:")
	fmt.Printf("  Mode: %s\n", s.Policy)
	fmt.Printf("  Platform Version: %d (threshold %d)\n", s.PlatformVersion, s.Threshold)
}

func watch(ctx context.Context, client *apiconnect.Client, history bool) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Watching lifecycle notifications (Ctrl+C to stop)...")
	err := client.Watch(ctx, history, func(n *diagnostics.Notification) error {
		printNotification(n)
		return nil
	})
	if err != nil {
		fmt.Printf("Stream error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\nUnsubscribed")
}

func printNotification(n *diagnostics.Notification) {
	fmt.Printf("\n[Sequence: %d] %s %s", n.SequenceNo, n.Time.Format(time.TimeOnly), n.Type)
	if n.SessionID != "" {
		fmt.Printf(" session=%s", n.SessionID)
	}
	if n.PlaybackState != "" {
		fmt.Printf(" playback=%s", n.PlaybackState)
	}
	if n.Resume != nil {
		fmt.Printf(" index=%d position=%dms auto_play=%v", n.Resume.MediaIndex, n.Resume.PositionMillis, n.Resume.AutoPlay)
	}
	if n.Error != "" {
		fmt.Printf(" error=%q", n.Error)
	}
	fmt.Println()
}
