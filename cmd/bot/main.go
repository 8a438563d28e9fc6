package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attendbot/internal/app"
	"attendbot/internal/config"
	"attendbot/internal/creds"
	"attendbot/internal/schedule"
	"attendbot/internal/tui"
)

func main() {
	var cfgPath string
	var bindSecret string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config json")
	flag.StringVar(&bindSecret, "bind-secret", "", "store the authenticator TOTP secret in the configured backend and exit")
	flag.Parse()

	if bindSecret != "" {
		cfg, err := config.NewConfigManager(cfgPath).Load()
		if err != nil {
			fmt.Println("fatal:", err)
			os.Exit(1)
		}
		if err := creds.NewStore(cfg.Creds).BindSecret(bindSecret); err != nil {
			fmt.Println("fatal:", err)
			os.Exit(1)
		}
		fmt.Println("authenticator secret bound")
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		if errors.Is(err, schedule.ErrEmptyCalendar) {
			fmt.Println("nothing to do:", err)
			os.Exit(0)
		}
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	reason := app.StopSignal
	if m, ok := a.UI(); ok {
		// The TUI blocks until the quit key, scheduler exhaustion, or a
		// cancelled context.
		if err := tui.Run(ctx, m); err != nil {
			fmt.Println("tui:", err)
		}
		if a.Latch().IsSet() {
			reason = app.StopUserExit
		}
	} else {
		select {
		case <-ctx.Done():
		case <-a.Latch().Done():
			reason = app.StopExhausted
		case <-a.Done():
		}
	}

	if a.Err() != nil {
		reason = app.StopFatal
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := a.Err(); err != nil {
		if errors.Is(err, config.ErrConfig) {
			fmt.Println("fatal:", err)
		} else {
			fmt.Println("error:", err)
		}
		os.Exit(1)
	}
}
