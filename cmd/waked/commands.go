package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"waketimer/internal/app"
	"waketimer/internal/config"
	"waketimer/internal/storage"
	logx "waketimer/pkg/logx"
)

const stopTimeout = 10 * time.Second

func run(ctx *cli.Context) error {
	a, err := app.NewApp(ctx.String("config"))
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	if err := a.Start(context.Background()); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	var reason app.StopReason
	select {
	case sig := <-sigs:
		reason = stopReason(sig)
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		return err
	}
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

func stopReason(sig os.Signal) app.StopReason {
	switch sig {
	case os.Interrupt:
		return app.StopSIGINT
	case syscall.SIGTERM:
		return app.StopSIGTERM
	default:
		return app.StopUnknown
	}
}

func check(ctx *cli.Context) error {
	path := ctx.String("config")
	cfg, err := config.NewManager(path).Load()
	if err != nil {
		return err
	}
	if err := config.ValidateSource(cfg, logx.Nop()); err != nil {
		return err
	}
	specs, err := cfg.EnabledTimers()
	if err != nil {
		return err
	}

	out := ctx.App.Writer
	fmt.Fprintf(out, "%s: ok (power %s, storage %s)\n", path, sourceName(cfg), cfg.StorageDriver())
	if len(specs) == 0 {
		fmt.Fprintln(out, "no timers enabled")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tINTERVAL\tDELAY\tTIMEOUT\tCOMMAND")
	for _, s := range specs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%q\n", s.Name, s.Interval, s.Delay, orNone(s.Timeout), s.Command)
	}
	return tw.Flush()
}

func history(ctx *cli.Context) error {
	cfg, err := config.NewManager(ctx.String("config")).Load()
	if err != nil {
		return err
	}
	store, err := app.OpenStore(cfg, logx.Nop())
	if errors.Is(err, storage.ErrDisabled) {
		return errors.New("journal disabled (storage.driver is none)")
	}
	if err != nil {
		return err
	}
	defer store.Close()

	rounds, err := store.Rounds(context.Background(), ctx.String("timer"), ctx.Int("limit"))
	if err != nil {
		return err
	}
	out := ctx.App.Writer
	if len(rounds) == 0 {
		fmt.Fprintln(out, "no rounds recorded")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tTIMER\tTOOK\tINVOKED\tFAILED\tNEXT\tERROR")
	for _, r := range rounds {
		next := "-"
		if r.NextWait > 0 {
			next = r.NextWait.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			r.Started.Local().Format(time.DateTime), r.Timer, r.Duration.Round(time.Millisecond),
			r.Invoked, r.Subscribers, r.Failures, next, r.Error)
	}
	return tw.Flush()
}

func sourceName(cfg *config.Config) string {
	if cfg.Power.Source == "" {
		return "auto"
	}
	return cfg.Power.Source
}

func orNone(d time.Duration) string {
	if d <= 0 {
		return "none"
	}
	return d.String()
}
