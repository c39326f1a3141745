// Command sealbox-client drives the submission pipeline from the client
// side: it encrypts a payload locally, submits the ciphertext, and polls the
// job until a redacted result comes back.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/target/sealbox/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Client *http.Client
}

const (
	defaultServerURL   = "http://localhost:8080"
	defaultHTTPTimeout = 30 * time.Second
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Client: &http.Client{Timeout: defaultHTTPTimeout},
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"submit": {
			name:        "submit",
			description: "Encrypt a file, transport-encode it, and submit it for processing",
			run:         runSubmit,
		},
		"status": {
			name:        "status",
			description: "Fetch the current status of a submitted job",
			run:         runStatus,
		},
		"watch": {
			name:        "watch",
			description: "Poll a job until it finishes or the wait budget runs out",
			run:         runWatch,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: sealbox-client <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	for _, c := range commands() {
		if err := writef(os.Stdout, "  %-10s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	if err := writef(os.Stdout, "\nThe gateway address comes from --server or SEALBOX_SERVER (default %s).\n", defaultServerURL); err != nil {
		return err
	}
	return nil
}

// resolveServerURL picks the gateway base URL: explicit flag, then the
// SEALBOX_SERVER environment variable, then the local default.
func resolveServerURL(explicit string) string {
	if explicit != "" {
		return strings.TrimRight(explicit, "/")
	}
	if env := os.Getenv("SEALBOX_SERVER"); env != "" {
		return strings.TrimRight(env, "/")
	}
	return defaultServerURL
}

// apiError is the gateway's error body.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// decodeAPIError turns a non-2xx response into a readable error. The body is
// expected to be the gateway's JSON error shape; anything else degrades to
// the raw status.
func decodeAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(body) == 0 {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var apiErr apiError
	if jsonErr := json.Unmarshal(body, &apiErr); jsonErr != nil || apiErr.Code == "" {
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if apiErr.Field != "" {
		return fmt.Errorf("%s (%s, field %s)", apiErr.Error, apiErr.Code, apiErr.Field)
	}
	return fmt.Errorf("%s (%s)", apiErr.Error, apiErr.Code)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}
