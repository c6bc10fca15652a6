// Package updates talks to an Expo Updates server (protocol version 1): it
// checks for a newer bundle, downloads its launch asset and promotes a
// downloaded bundle to the one the next launch runs.
package updates

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-app-core/internal/credstore"
)

const (
	keyCurrent = "@updates:current"
	keyPending = "@updates:pending"
)

var (
	ErrDisabled     = errors.New("updates are disabled")
	ErrHashMismatch = errors.New("launch asset hash mismatch")
)

type Config struct {
	URL            string
	RuntimeVersion string
	Platform       string
	Channel        string
	Dir            string
}

type Asset struct {
	Key           string `json:"key"`
	Hash          string `json:"hash,omitempty"`
	ContentType   string `json:"contentType"`
	FileExtension string `json:"fileExtension,omitempty"`
	URL           string `json:"url"`
}

type Manifest struct {
	ID             string         `json:"id"`
	CreatedAt      time.Time      `json:"createdAt"`
	RuntimeVersion string         `json:"runtimeVersion"`
	LaunchAsset    Asset          `json:"launchAsset"`
	Assets         []Asset        `json:"assets"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Info is the outcome of a check.
type Info struct {
	Available bool      `json:"isUpdateAvailable"`
	Pending   bool      `json:"isUpdatePending"`
	Manifest  *Manifest `json:"manifest,omitempty"`
}

// Current describes the bundle the app runs.
type Current struct {
	UpdateID       string    `json:"updateId"`
	Channel        string    `json:"channel"`
	RuntimeVersion string    `json:"runtimeVersion"`
	CreatedAt      time.Time `json:"createdAt"`
	EmbeddedLaunch bool      `json:"isEmbeddedLaunch"`
	Path           string    `json:"path,omitempty"`
}

type Client struct {
	cfg    Config
	kv     credstore.KV
	http   *http.Client
	logger *zap.SugaredLogger
	now    func() time.Time
}

func New(cfg Config, kv credstore.KV, hc *http.Client, logger *zap.SugaredLogger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{cfg: cfg, kv: kv, http: hc, logger: logger, now: time.Now}
}

func (c *Client) enabled() bool { return c.cfg.URL != "" }

// Current returns the running bundle. Without an updates URL this is the
// development placeholder.
func (c *Client) Current() Current {
	if !c.enabled() {
		return Current{UpdateID: "dev", Channel: "development", RuntimeVersion: "dev", CreatedAt: c.now(), EmbeddedLaunch: true}
	}
	if cur, ok := c.load(keyCurrent); ok {
		return cur
	}
	return Current{Channel: c.cfg.Channel, RuntimeVersion: c.cfg.RuntimeVersion, EmbeddedLaunch: true}
}

// Check asks the server for the newest bundle compatible with this runtime.
func (c *Client) Check(ctx context.Context) (Info, error) {
	if !c.enabled() {
		c.logger.Debug("updates disabled, skipping check")
		return Info{}, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return Info{}, err
	}
	req.Header.Set("Accept", "multipart/mixed,application/expo+json,application/json")
	req.Header.Set("expo-protocol-version", "1")
	req.Header.Set("expo-platform", c.cfg.Platform)
	req.Header.Set("expo-runtime-version", c.cfg.RuntimeVersion)
	if c.cfg.Channel != "" {
		req.Header.Set("expo-channel-name", c.cfg.Channel)
	}
	cur := c.Current()
	if cur.UpdateID != "" {
		req.Header.Set("expo-current-update-id", cur.UpdateID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Info{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return Info{}, nil
	}
	if resp.StatusCode >= 300 {
		return Info{}, fmt.Errorf("updates server: %s", resp.Status)
	}
	m, err := readManifest(resp)
	if err != nil || m == nil {
		return Info{}, err
	}
	info := Info{Manifest: m, Available: m.ID != cur.UpdateID}
	if p, ok := c.load(keyPending); ok && p.UpdateID == m.ID {
		info.Pending = true
	}
	c.logger.Infow("update check", "update_id", m.ID, "available", info.Available, "pending", info.Pending)
	return info, nil
}

// readManifest accepts a multipart answer (manifest, directive and extensions
// parts) or a bare JSON manifest. A nil manifest means no update.
func readManifest(resp *http.Response) (*Manifest, error) {
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("updates server content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		var m Manifest
		if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
			return nil, fmt.Errorf("decode manifest: %w", err)
		}
		return &m, nil
	}

	mr := multipart.NewReader(resp.Body, params["boundary"])
	var m *Manifest
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return m, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read update part: %w", err)
		}
		_, dp, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		switch dp["name"] {
		case "manifest":
			m = &Manifest{}
			if err := json.NewDecoder(part).Decode(m); err != nil {
				return nil, fmt.Errorf("decode manifest: %w", err)
			}
		case "directive":
			var d struct {
				Type string `json:"type"`
			}
			if err := json.NewDecoder(part).Decode(&d); err != nil {
				return nil, fmt.Errorf("decode directive: %w", err)
			}
			// noUpdateAvailable and rollBackToEmbedded both leave the current bundle in place
			return nil, nil
		}
	}
}

// Download fetches the manifest's launch asset into Dir and records it as
// the pending bundle. The asset hash (base64url SHA-256) is verified when
// the manifest carries one.
func (c *Client) Download(ctx context.Context, m *Manifest) (string, error) {
	if !c.enabled() {
		return "", ErrDisabled
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.LaunchAsset.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("download launch asset: %s", resp.Status)
	}

	dir := filepath.Join(c.cfg.Dir, m.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".asset-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), resp.Body); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if want := m.LaunchAsset.Hash; want != "" && base64.RawURLEncoding.EncodeToString(h.Sum(nil)) != want {
		return "", ErrHashMismatch
	}
	path := filepath.Join(dir, assetName(m.LaunchAsset))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}

	pending := Current{UpdateID: m.ID, Channel: c.cfg.Channel, RuntimeVersion: m.RuntimeVersion, CreatedAt: m.CreatedAt, Path: path}
	if err := c.save(keyPending, pending); err != nil {
		return "", err
	}
	c.logger.Infow("update downloaded", "update_id", m.ID, "path", path)
	return path, nil
}

func assetName(a Asset) string {
	name := a.Key
	if name == "" {
		name = "bundle"
	}
	if ext := strings.TrimPrefix(a.FileExtension, "."); ext != "" {
		name += "." + ext
	}
	return name
}

// Apply promotes the pending bundle to current; the next launch runs it.
// It reports whether there was anything to apply.
func (c *Client) Apply() (bool, error) {
	p, ok := c.load(keyPending)
	if !ok {
		return false, nil
	}
	if err := c.save(keyCurrent, p); err != nil {
		return false, err
	}
	if err := c.kv.Delete(keyPending); err != nil {
		return false, err
	}
	c.logger.Infow("update applied", "update_id", p.UpdateID)
	return true, nil
}

// Sync checks and downloads in one go. needsReload is true when a new
// bundle is waiting for Apply.
func (c *Client) Sync(ctx context.Context) (needsReload bool, err error) {
	if !c.enabled() {
		return false, ErrDisabled
	}
	info, err := c.Check(ctx)
	if err != nil || !info.Available {
		return false, err
	}
	if info.Pending {
		return true, nil
	}
	if _, err := c.Download(ctx, info.Manifest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) load(key string) (Current, bool) {
	raw, ok, err := c.kv.Get(key)
	if err != nil || !ok {
		return Current{}, false
	}
	var cur Current
	if err := json.Unmarshal([]byte(raw), &cur); err != nil {
		c.logger.Warnw("discarding unreadable update record", "key", key, "err", err)
		return Current{}, false
	}
	return cur, true
}

func (c *Client) save(key string, cur Current) error {
	b, err := json.Marshal(cur)
	if err != nil {
		return err
	}
	return c.kv.Set(key, string(b))
}
