package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modelserve/internal/archive"
	"modelserve/internal/config"
	"modelserve/internal/predictor"
	"modelserve/internal/registry"
	"modelserve/pkg/types"
)

const linearWeights = `{"labels":["neg","pos"],"weights":[[-1,0],[1,0]],"bias":[0,0]}`

func writeArchiveDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"model":{"input_field":"features"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "weights.bin"), []byte(linearWeights), 0o644); err != nil {
		t.Fatalf("write weights: %v", err)
	}
	return dir
}

func parseServe(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	cmd := newServeCmd(io.Discard, registry.Default())
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return configFromFlags(cmd)
}

func TestServeFlagDefaults(t *testing.T) {
	t.Setenv("MODELSERVE_LOG_LEVEL", "")
	cfg, err := parseServe(t, "--archive-path", "model.tar.gz", "--predictor", "linear_classifier")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.Host != "127.0.0.1" || cfg.Port != 8000 || cfg.CUDADevice != -1 {
		t.Fatalf("unexpected listen defaults: %+v", cfg)
	}
	if cfg.Title != "AllenNLP Demo" || cfg.Overrides != "" || cfg.StaticDir != "" || len(cfg.FieldNames) != 0 {
		t.Fatalf("unexpected page defaults: %+v", cfg)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected log defaults: %+v", cfg)
	}
}

func TestServeShorthandsAndRepeatables(t *testing.T) {
	cfg, err := parseServe(t,
		"--archive-path", "m", "--predictor", "p",
		"-h", "0.0.0.0", "-p", "9001", "-o", `{"a":1}`,
		"--field-name", "premise", "--field-name", "hypothesis",
		"--drop-output-key", "logits",
		"--keep-output-key", "label", "--keep-output-key", "logits",
	)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != 9001 || cfg.Overrides != `{"a":1}` {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if strings.Join(cfg.FieldNames, ",") != "premise,hypothesis" || strings.Join(cfg.DropOutputKey, ",") != "logits" ||
		strings.Join(cfg.KeepOutputKey, ",") != "label,logits" {
		t.Fatalf("unexpected repeatables: %+v", cfg)
	}
}

func TestServeRequiresArchiveAndPredictor(t *testing.T) {
	_, err := parseServe(t)
	if err == nil || !strings.Contains(err.Error(), "--archive-path") || !strings.Contains(err.Error(), "--predictor") {
		t.Fatalf("expected both required flags reported, got %v", err)
	}
}

func TestConfigFileLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.yaml")
	body := "archive_path: from-file\npredictor: linear_classifier\nport: 9100\ntitle: File Title\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := parseServe(t, "--config", path, "--title", "Flag Title")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.ArchivePath != "from-file" || cfg.Port != 9100 {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Title != "Flag Title" {
		t.Fatalf("explicit flag should win, got %q", cfg.Title)
	}
	if cfg.Host != "127.0.0.1" {
		t.Fatalf("default host lost: %q", cfg.Host)
	}
}

func TestRunMissingStaticDirExitsMinusOne(t *testing.T) {
	var stderr bytes.Buffer
	code := run([]string{
		"serve", "--archive-path", filepath.Join(t.TempDir(), "never-read.tar.gz"),
		"--predictor", "linear_classifier",
		"--static-dir", filepath.Join(t.TempDir(), "nope"),
		"--port", "0",
	}, io.Discard, &stderr)
	if code != -1 {
		t.Fatalf("exit code=%d want -1 (stderr=%s)", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "static dir") {
		t.Fatalf("stderr should mention the static dir: %s", stderr.String())
	}
}

func TestRunStartupErrorsExitOne(t *testing.T) {
	dir := writeArchiveDir(t)
	cases := map[string][]string{
		"unknown predictor": {"serve", "--archive-path", dir, "--predictor", "bidaf", "--port", "0"},
		"bad overrides":     {"serve", "--archive-path", dir, "--predictor", "linear_classifier", "-o", "{", "--port", "0"},
		"missing archive":   {"serve", "--archive-path", filepath.Join(dir, "absent"), "--predictor", "linear_classifier", "--port", "0"},
		"missing flags":     {"serve"},
	}
	for name, args := range cases {
		var stderr bytes.Buffer
		if code := run(args, io.Discard, &stderr); code != 1 {
			t.Fatalf("%s: exit code=%d want 1 (stderr=%s)", name, code, stderr.String())
		}
	}
}

func TestPredictorsCommand(t *testing.T) {
	var stdout bytes.Buffer
	if code := run([]string{"predictors"}, &stdout, io.Discard); code != 0 {
		t.Fatalf("exit code=%d", code)
	}
	if got := strings.Fields(stdout.String()); strings.Join(got, ",") != "linear_classifier,onnx" {
		t.Fatalf("unexpected listing %q", stdout.String())
	}
}

func TestServeUntilCanceled(t *testing.T) {
	cfg := config.Default()
	cfg.ArchivePath = writeArchiveDir(t)
	cfg.Predictor = registry.LinearClassifier
	cfg.Port = 0
	cfg.FieldNames = []string{"features"}
	cfg.DropOutputKey = []string{"logits"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	var logs bytes.Buffer
	go func() {
		done <- serve(ctx, cfg, registry.Default(), zerolog.New(&logs), func(a net.Addr) { addrCh <- a })
	}()

	var addr net.Addr
	select {
	case addr = <-addrCh:
	case err := <-done:
		t.Fatalf("serve returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not start")
	}

	resp, err := http.Post("http://"+addr.String()+"/predict", "application/json", strings.NewReader(`{"features":[0,3]}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["label"] != "pos" {
		t.Fatalf("label=%v", out["label"])
	}
	if _, ok := out["logits"]; ok {
		t.Fatalf("logits should have been dropped: %v", out)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not stop")
	}
	if !strings.Contains(logs.String(), "Model loaded, serving demo on http://") {
		t.Fatalf("startup line missing: %s", logs.String())
	}
}

// slowPredictor answers after a fixed delay unless its context ends first.
type slowPredictor struct {
	delay   time.Duration
	started chan struct{}
}

func (p *slowPredictor) PredictJSON(ctx context.Context, in types.JSONDict) (any, error) {
	close(p.started)
	select {
	case <-time.After(p.delay):
		return map[string]any{"done": true}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *slowPredictor) PredictBatchJSON(ctx context.Context, ins []types.JSONDict) ([]any, error) {
	return predictor.PredictEach(ctx, p, ins)
}

func TestServeDrainsInFlightPredictionOnShutdown(t *testing.T) {
	slow := &slowPredictor{delay: 300 * time.Millisecond, started: make(chan struct{})}
	reg := registry.New()
	if err := reg.Register("slow", func(*archive.Archive, int) (predictor.Predictor, error) { return slow, nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	cfg := config.Default()
	cfg.ArchivePath = writeArchiveDir(t)
	cfg.Predictor = "slow"
	cfg.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, reg, zerolog.Nop(), func(a net.Addr) { addrCh <- a })
	}()
	var addr net.Addr
	select {
	case addr = <-addrCh:
	case err := <-done:
		t.Fatalf("serve returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not start")
	}

	go func() {
		<-slow.started
		cancel()
	}()
	resp, err := http.Post("http://"+addr.String()+"/predict", "application/json", strings.NewReader(`{"a":"x"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"done":true}` {
		t.Fatalf("in-flight request not drained: %d %q", resp.StatusCode, body)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not stop")
	}
}
