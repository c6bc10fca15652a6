package updates

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/credstore"
)

const bundle = "console.log('v2')"

type fakeServer struct {
	*httptest.Server
	manifest  Manifest
	directive string
	headers   http.Header
}

func newServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest", func(w http.ResponseWriter, r *http.Request) {
		f.headers = r.Header.Clone()
		mw := multipart.NewWriter(w)
		w.Header().Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())
		name, body := "manifest", any(f.manifest)
		if f.directive != "" {
			name, body = "directive", map[string]string{"type": f.directive}
		}
		part, _ := mw.CreatePart(textproto.MIMEHeader{
			"Content-Disposition": {`inline; name="` + name + `"`},
			"Content-Type":        {"application/json"},
		})
		_ = json.NewEncoder(part).Encode(body)
		_ = mw.Close()
	})
	mux.HandleFunc("/bundle.js", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(bundle))
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)

	sum := sha256.Sum256([]byte(bundle))
	f.manifest = Manifest{
		ID:             "0754dad0-d200-d634-113c-ef1f26106028",
		RuntimeVersion: "1.0.0",
		LaunchAsset: Asset{
			Key:           "bundle",
			Hash:          base64.RawURLEncoding.EncodeToString(sum[:]),
			ContentType:   "application/javascript",
			FileExtension: ".js",
			URL:           f.URL + "/bundle.js",
		},
	}
	return f
}

func newClient(t *testing.T, f *fakeServer) *Client {
	t.Helper()
	cfg := Config{URL: f.URL + "/manifest", RuntimeVersion: "1.0.0", Platform: "ios", Channel: "production", Dir: t.TempDir()}
	return New(cfg, credstore.NewMemoryKV(), f.Client(), nil)
}

func TestCheckDownloadApply(t *testing.T) {
	f := newServer(t)
	c := newClient(t, f)
	ctx := context.Background()

	info, err := c.Check(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !info.Available || info.Pending || info.Manifest.ID != f.manifest.ID {
		t.Fatalf("unexpected info %+v", info)
	}
	if f.headers.Get("expo-runtime-version") != "1.0.0" || f.headers.Get("expo-platform") != "ios" ||
		f.headers.Get("expo-protocol-version") != "1" || f.headers.Get("expo-channel-name") != "production" {
		t.Fatalf("protocol headers missing: %v", f.headers)
	}
	if f.headers.Get("expo-current-update-id") != "" {
		t.Fatalf("embedded launch has no current update id")
	}

	path, err := c.Download(ctx, info.Manifest)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if b, err := os.ReadFile(path); err != nil || string(b) != bundle {
		t.Fatalf("launch asset not written: %v %q", err, b)
	}
	if info, _ = c.Check(ctx); !info.Pending {
		t.Fatalf("downloaded update should be pending")
	}

	applied, err := c.Apply()
	if err != nil || !applied {
		t.Fatalf("apply: %v %v", applied, err)
	}
	cur := c.Current()
	if cur.UpdateID != f.manifest.ID || cur.EmbeddedLaunch || cur.Path != path {
		t.Fatalf("unexpected current %+v", cur)
	}

	info, err = c.Check(ctx)
	if err != nil || info.Available {
		t.Fatalf("running update should not be offered again: %+v %v", info, err)
	}
	if f.headers.Get("expo-current-update-id") != f.manifest.ID {
		t.Fatalf("current update id not sent")
	}
	if applied, _ := c.Apply(); applied {
		t.Fatalf("nothing left to apply")
	}
}

func TestDownloadRejectsHashMismatch(t *testing.T) {
	f := newServer(t)
	c := newClient(t, f)
	m := f.manifest
	m.LaunchAsset.Hash = "not-the-hash"

	if _, err := c.Download(context.Background(), &m); !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected hash mismatch, got %v", err)
	}
	if applied, _ := c.Apply(); applied {
		t.Fatalf("rejected download must not be pending")
	}
}

func TestDirectiveMeansNoUpdate(t *testing.T) {
	f := newServer(t)
	f.directive = "noUpdateAvailable"
	c := newClient(t, f)

	info, err := c.Check(context.Background())
	if err != nil || info.Available || info.Manifest != nil {
		t.Fatalf("unexpected info %+v %v", info, err)
	}
	if reload, err := c.Sync(context.Background()); err != nil || reload {
		t.Fatalf("sync without update: %v %v", reload, err)
	}
}

func TestNoContentAndServerErrors(t *testing.T) {
	status := http.StatusNoContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	c := New(Config{URL: srv.URL}, credstore.NewMemoryKV(), srv.Client(), nil)

	if info, err := c.Check(context.Background()); err != nil || info.Available {
		t.Fatalf("204 means no update: %+v %v", info, err)
	}
	status = http.StatusInternalServerError
	if _, err := c.Check(context.Background()); err == nil {
		t.Fatalf("expected server error")
	}
}

func TestSyncDownloadsOnce(t *testing.T) {
	f := newServer(t)
	c := newClient(t, f)

	reload, err := c.Sync(context.Background())
	if err != nil || !reload {
		t.Fatalf("sync: %v %v", reload, err)
	}
	if reload, err = c.Sync(context.Background()); err != nil || !reload {
		t.Fatalf("pending update still needs a reload: %v %v", reload, err)
	}
}

func TestDisabledWithoutURL(t *testing.T) {
	c := New(Config{}, credstore.NewMemoryKV(), nil, nil)
	if cur := c.Current(); cur.UpdateID != "dev" || cur.Channel != "development" || !cur.EmbeddedLaunch {
		t.Fatalf("unexpected dev info %+v", cur)
	}
	if info, err := c.Check(context.Background()); err != nil || info.Available {
		t.Fatalf("disabled check: %+v %v", info, err)
	}
	if _, err := c.Sync(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}
