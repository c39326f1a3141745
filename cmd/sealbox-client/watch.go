package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/target/sealbox/internal/domain/model"
)

const (
	defaultWatchBudget   = 30 * time.Second
	defaultWatchInterval = time.Second
)

type statusOptions struct {
	JobID  string
	Server string
}

func parseStatusFlags(args []string) (statusOptions, error) {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts statusOptions
	fs.StringVar(&opts.JobID, "job", "", "Job identifier returned by submit (required)")
	fs.StringVar(&opts.Server, "server", "", "Gateway base URL (overrides SEALBOX_SERVER)")

	if err := fs.Parse(args); err != nil {
		return statusOptions{}, err
	}
	if opts.JobID == "" {
		return statusOptions{}, errors.New("--job is required")
	}

	return opts, nil
}

func runStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseStatusFlags(args)
	if err != nil {
		return err
	}

	view, err := fetchStatus(cmdCtx.Ctx, cmdCtx, opts.Server, opts.JobID)
	if err != nil {
		return err
	}
	return renderStatus(os.Stdout, view)
}

type watchOptions struct {
	JobID    string
	Server   string
	Budget   time.Duration
	Interval time.Duration
}

func parseWatchFlags(args []string) (watchOptions, error) {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts watchOptions
	fs.StringVar(&opts.JobID, "job", "", "Job identifier returned by submit (required)")
	fs.StringVar(&opts.Server, "server", "", "Gateway base URL (overrides SEALBOX_SERVER)")
	fs.DurationVar(&opts.Budget, "budget", defaultWatchBudget, "Maximum time to wait for a terminal status")
	fs.DurationVar(&opts.Interval, "interval", defaultWatchInterval, "Delay between polls")

	if err := fs.Parse(args); err != nil {
		return watchOptions{}, err
	}
	if opts.JobID == "" {
		return watchOptions{}, errors.New("--job is required")
	}
	if opts.Budget <= 0 {
		return watchOptions{}, errors.New("--budget must be positive")
	}
	if opts.Interval <= 0 {
		return watchOptions{}, errors.New("--interval must be positive")
	}

	return opts, nil
}

func runWatch(cmdCtx *commandContext, args []string) error {
	opts, err := parseWatchFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Budget)
	defer cancel()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		view, err := fetchStatus(ctx, cmdCtx, opts.Server, opts.JobID)
		if err != nil {
			if ctx.Err() != nil {
				return budgetExhausted(opts)
			}
			return err
		}
		if view.Status.Terminal() {
			return renderStatus(os.Stdout, view)
		}

		cmdCtx.Logger.Info("job still in flight", "job_id", opts.JobID, "status", view.Status)
		select {
		case <-ctx.Done():
			return budgetExhausted(opts)
		case <-ticker.C:
		}
	}
}

func budgetExhausted(opts watchOptions) error {
	return fmt.Errorf("job %s did not reach a terminal status within %s", opts.JobID, opts.Budget)
}

func fetchStatus(ctx context.Context, cmdCtx *commandContext, server, jobID string) (model.StatusView, error) {
	target := resolveServerURL(server) + "/status/" + url.PathEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return model.StatusView{}, err
	}

	resp, err := cmdCtx.Client.Do(req)
	if err != nil {
		return model.StatusView{}, fmt.Errorf("status request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			cmdCtx.Logger.Warn("close response body failed", "error", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return model.StatusView{}, decodeAPIError(resp)
	}

	var view model.StatusView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return model.StatusView{}, fmt.Errorf("decode status response: %w", err)
	}
	return view, nil
}

func renderStatus(out io.Writer, view model.StatusView) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writef(tw, "JOB\t%s\n", view.ID); err != nil {
		return err
	}
	if err := writef(tw, "STATUS\t%s\n", view.Status); err != nil {
		return err
	}
	if view.Error != "" {
		if err := writef(tw, "ERROR\t%s\n", view.Error); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if view.Result == nil {
		return nil
	}
	pretty, err := json.MarshalIndent(view.Result, "", "  ")
	if err != nil {
		return fmt.Errorf("render result: %w", err)
	}
	return writef(out, "%s\n", pretty)
}
