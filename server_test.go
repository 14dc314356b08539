package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testWebConfig() WebConfig {
	// port 0 picks a free port, the bound address is taken from the listener
	return WebConfig{Address: "127.0.0.1", Port: 0, MaxConnections: defaultMaxConnections}
}

// mirrorTree creates a directory shaped like a checked out index
func mirrorTree(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "cr", "at"), 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"config.json":                      `{"dl":"https://example.com/api/v1/crates"}`,
		filepath.Join("cr", "at", "crate"): `{"name":"crate","vers":"1.0.0"}`,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func startTestServer(t *testing.T, root string) (*staticServer, string, chan error) {
	t.Helper()

	srv := newStaticServer(testWebConfig(), root, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ln, err := srv.listen()
	if err != nil {
		t.Fatalf("listen() error = %v", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.serve(ln)
	}()

	return srv, "http://" + ln.Addr().String(), serveErr
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("unable to read response body err:%v", err)
	}
	return resp.StatusCode, string(body)
}

func TestStaticServer_serveFiles(t *testing.T) {
	root := mirrorTree(t)
	srv, base, serveErr := startTestServer(t, root)

	status, body := get(t, base+"/config.json")
	if status != http.StatusOK {
		t.Errorf("GET /config.json status = %d, want %d", status, http.StatusOK)
	}
	if !strings.Contains(body, "example.com") {
		t.Errorf("GET /config.json body = %q, want file content", body)
	}

	status, body = get(t, base+"/cr/at/crate")
	if status != http.StatusOK {
		t.Errorf("GET /cr/at/crate status = %d, want %d", status, http.StatusOK)
	}
	if !strings.Contains(body, `"vers":"1.0.0"`) {
		t.Errorf("GET /cr/at/crate body = %q, want file content", body)
	}

	status, _ = get(t, base+"/no/such/crate")
	if status != http.StatusNotFound {
		t.Errorf("GET /no/such/crate status = %d, want %d", status, http.StatusNotFound)
	}

	shutdownTestServer(t, srv, serveErr)
}

func TestStaticServer_directoryListing(t *testing.T) {
	root := mirrorTree(t)
	srv, base, serveErr := startTestServer(t, root)

	// directories without an index document are listed
	status, body := get(t, base+"/")
	if status != http.StatusOK {
		t.Errorf("GET / status = %d, want %d", status, http.StatusOK)
	}
	for _, entry := range []string{"config.json", "cr/"} {
		if !strings.Contains(body, entry) {
			t.Errorf("GET / body does not list %q:\n%s", entry, body)
		}
	}

	status, body = get(t, base+"/cr/at/")
	if status != http.StatusOK {
		t.Errorf("GET /cr/at/ status = %d, want %d", status, http.StatusOK)
	}
	if !strings.Contains(body, "crate") {
		t.Errorf("GET /cr/at/ body does not list the crate file:\n%s", body)
	}

	shutdownTestServer(t, srv, serveErr)
}

func shutdownTestServer(t *testing.T, srv *staticServer, serveErr chan error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.shutdown(ctx); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}

	// a clean shutdown is reported as nil
	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("serve() error = %v, want nil after shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve() did not return after shutdown")
	}
}

func TestStaticServer_listenError(t *testing.T) {
	srv := newStaticServer(WebConfig{Address: "127.0.0.1", Port: 70000, MaxConnections: 1}, t.TempDir(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := srv.listen(); err == nil {
		t.Fatal("listen() expected error for out of range port")
	}
}
