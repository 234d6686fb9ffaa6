package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"queueline/internal/config"
	"queueline/internal/models"
	"queueline/internal/observer"
)

func main() {
	config.LoadEnv()

	apiURL := flag.String("api", envOr("QUEUELINE_API_URL", "http://localhost:8080"), "booking-service base URL")
	realtimeURL := flag.String("realtime", envOr("QUEUELINE_REALTIME_URL", "ws://localhost:8085/realtime/websocket"), "realtime websocket URL; empty to poll only")
	entryID := flag.String("entry", "", "queue entry id to watch")
	poll := flag.Duration("poll", 3*time.Second, "polling interval while the realtime channel is down")
	flag.Parse()

	if *entryID == "" {
		fmt.Fprintln(os.Stderr, "usage: queue-watch -entry <entry_id> [-api URL] [-realtime URL]")
		os.Exit(2)
	}

	var subscriber observer.Subscriber
	if *realtimeURL != "" {
		subscriber = observer.WebsocketSubscriber{URL: *realtimeURL}
	}
	alerter := observer.Alerter{
		Notifier: observer.WriterNotifier{W: os.Stdout},
		Sound:    observer.Bell{W: os.Stdout},
	}

	o := observer.New(*entryID, observer.HTTPFetcher{BaseURL: *apiURL}, subscriber, alerter, observer.Options{
		PollInterval: *poll,
		OnView:       printView,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := o.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("watch error: %v", err)
	}
}

func printView(v observer.View) {
	switch {
	case v.Live:
		fmt.Printf("%s  status=%s position=%d ahead=%d wait~%dmin\n", time.Now().Format("15:04:05"), v.Status, v.Position, v.PeopleAhead, v.EstimatedWaitMinutes)
	case models.IsEntryTerminal(v.Status):
		fmt.Printf("%s  status=%s (final)\n", time.Now().Format("15:04:05"), v.Status)
	default:
		fmt.Printf("%s  status=%s last position=%d\n", time.Now().Format("15:04:05"), v.Status, v.Position)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
