package e2e

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"modelserve/internal/archive"
	"modelserve/internal/httpapi"
	"modelserve/internal/registry"
	"modelserve/internal/sanitize"
)

// sentimentWeights scores two features: the second pushes towards "pos".
const sentimentWeights = `{"labels":["neg","pos"],"weights":[[1,-1],[-1,1]],"bias":[0,0]}`

// writeArchiveTarGz packs files into a gzip tar under a temp dir.
func writeArchiveTarGz(t *testing.T, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", name, err)
		}
		if _, err := io.WriteString(tw, body); err != nil {
			t.Fatalf("tar body %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	p := filepath.Join(t.TempDir(), "model.tar.gz")
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return p
}

// newServerForArchive loads the archive the way the serve command does and
// returns a test server for it.
func newServerForArchive(t *testing.T, path, overrides string, opts httpapi.Options) *httptest.Server {
	t.Helper()
	a, err := archive.Load(path, archive.Options{Overrides: overrides})
	if err != nil {
		t.Fatalf("load archive: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	p, err := registry.Default().FromArchive(a, registry.LinearClassifier, -1)
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	if opts.Sanitizer == nil {
		opts.Sanitizer = sanitize.DropKeys("logits")
	}
	srv := httptest.NewServer(httpapi.NewMux(p, opts))
	t.Cleanup(srv.Close)
	return srv
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader([]byte(payload)))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
