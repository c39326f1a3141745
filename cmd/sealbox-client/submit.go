package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/target/sealbox/internal/adapters/devcrypt"
	"github.com/target/sealbox/internal/domain/encctx"
	"github.com/target/sealbox/internal/transcode"
)

type submitOptions struct {
	File      string
	Key       string
	Context   string
	Type      string
	Filename  string
	Server    string
	Multipart bool
}

func parseSubmitFlags(args []string) (submitOptions, error) {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts submitOptions
	fs.StringVar(&opts.File, "file", "", "Path of the payload to submit (required)")
	fs.StringVar(&opts.Key, "key", "",
		"Seal the payload with AES-256-GCM before submission; 64 hex chars are used raw, anything else is hashed. "+
			"The gateway's content gate applies to the bytes as submitted")
	fs.StringVar(&opts.Context, "context", "", "Encryption context as a JSON object of string values")
	fs.StringVar(&opts.Type, "type", "application/octet-stream", "Declared content type of the payload")
	fs.StringVar(&opts.Filename, "filename", "", "Filename to report (defaults to the file's base name)")
	fs.StringVar(&opts.Server, "server", "", "Gateway base URL (overrides SEALBOX_SERVER)")
	fs.BoolVar(&opts.Multipart, "multipart", false, "Submit as multipart/form-data instead of JSON")

	if err := fs.Parse(args); err != nil {
		return submitOptions{}, err
	}

	if opts.File == "" {
		return submitOptions{}, errors.New("--file is required")
	}
	if opts.Filename == "" {
		opts.Filename = filepath.Base(opts.File)
	}

	return opts, nil
}

func runSubmit(cmdCtx *commandContext, args []string) error {
	opts, err := parseSubmitFlags(args)
	if err != nil {
		return err
	}

	payload, encCtx, err := preparePayload(&opts)
	if err != nil {
		return err
	}

	req, err := buildSubmitRequest(cmdCtx.Ctx, &opts, payload, encCtx)
	if err != nil {
		return err
	}

	resp, err := cmdCtx.Client.Do(req)
	if err != nil {
		return fmt.Errorf("submit request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			cmdCtx.Logger.Warn("close response body failed", "error", cerr)
		}
	}()

	if resp.StatusCode != http.StatusAccepted {
		return decodeAPIError(resp)
	}

	var accepted struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return fmt.Errorf("decode submit response: %w", err)
	}

	cmdCtx.Logger.Info("submission accepted", "job_id", accepted.JobID, "status", accepted.Status)
	return writef(os.Stdout, "%s\n", accepted.JobID)
}

// preparePayload reads the file and seals it when a key is provided.
func preparePayload(opts *submitOptions) ([]byte, map[string]string, error) {
	raw, err := os.ReadFile(opts.File)
	if err != nil {
		return nil, nil, fmt.Errorf("read payload: %w", err)
	}

	var encCtx map[string]string
	if opts.Context != "" {
		if err := json.Unmarshal([]byte(opts.Context), &encCtx); err != nil {
			return nil, nil, fmt.Errorf("parse --context: %w", err)
		}
	}

	if opts.Key == "" {
		return raw, encCtx, nil
	}

	sealer, err := devcrypt.NewAESGCM(deriveKey(opts.Key))
	if err != nil {
		return nil, nil, fmt.Errorf("prepare cipher: %w", err)
	}
	// Bind the context exactly as the gateway will store it, so the consumer
	// decrypts under the same bytes it authenticates against.
	sealed, err := sealer.Encrypt(raw, encctx.Validate(encCtx))
	if err != nil {
		return nil, nil, fmt.Errorf("seal payload: %w", err)
	}
	return sealed, encCtx, nil
}

// deriveKey mirrors the gateway's key derivation so both ends agree on the
// AES key bytes: a 64-char hex key is used raw, anything else is hashed.
func deriveKey(key string) []byte {
	if raw, err := hex.DecodeString(key); err == nil && len(raw) == 32 {
		return raw
	}
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

func buildSubmitRequest(
	ctx context.Context,
	opts *submitOptions,
	payload []byte,
	encCtx map[string]string,
) (*http.Request, error) {
	target := resolveServerURL(opts.Server) + "/upload"
	if opts.Multipart {
		return buildMultipartRequest(ctx, target, opts, payload, encCtx)
	}
	return buildJSONRequest(ctx, target, opts, payload, encCtx)
}

// jsonSubmission mirrors the gateway's application/json upload body.
type jsonSubmission struct {
	Payload      string            `json:"payload"`
	Filename     string            `json:"filename"`
	DeclaredType string            `json:"declaredType"`
	Context      map[string]string `json:"context,omitempty"`
}

func buildJSONRequest(
	ctx context.Context,
	target string,
	opts *submitOptions,
	payload []byte,
	encCtx map[string]string,
) (*http.Request, error) {
	body, err := json.Marshal(jsonSubmission{
		Payload:      transcode.Encode(payload),
		Filename:     opts.Filename,
		DeclaredType: opts.Type,
		Context:      encCtx,
	})
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func buildMultipartRequest(
	ctx context.Context,
	target string,
	opts *submitOptions,
	payload []byte,
	encCtx map[string]string,
) (*http.Request, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, opts.Filename))
	partHeader.Set("Content-Type", opts.Type)
	part, err := mw.CreatePart(partHeader)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}

	if len(encCtx) > 0 {
		ctxJSON, err := json.Marshal(encCtx)
		if err != nil {
			return nil, fmt.Errorf("encode context field: %w", err)
		}
		if err := mw.WriteField("context", string(ctxJSON)); err != nil {
			return nil, fmt.Errorf("write context field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}
