// Package vault publishes committed generations and capture evidence to an
// object store over plain authenticated HTTP PUTs. The bucket layout keeps a
// dated archive per artifact kind plus a live registry mirror at the root:
//
//	registry_history/YYYY/MM/registry_<run_id>.json
//	raw_html/YYYY/MM/raw_html_<run_id>.html
//	full_screenshot/YYYY/MM/screenshot_<run_id>.png
//	registry.json  (always the latest committed generation)
//
// Publication is best-effort by contract: the caller has already committed.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"time"

	"librarian/internal/census/differ"
	"librarian/internal/census/domain"
	"librarian/internal/log"
	"librarian/internal/presentation"
)

const uploadTimeout = 2 * time.Minute

// mirrorKey is the live root mirror object.
const mirrorKey = "registry.json"

// Client uploads artifacts to the vault bucket.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	now     func() time.Time
}

// New creates a vault client. An empty baseURL yields a disabled client
// whose PublishRun is a no-op.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: uploadTimeout},
		now:     time.Now,
	}
}

// Enabled reports whether the client has a destination configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// PublishRun uploads the committed registry (dated archive plus live
// mirror) and the run's evidence files. Evidence files are removed locally
// after a successful upload; the vault is their archive.
func (c *Client) PublishRun(ctx context.Context, reg *domain.Registry, snap domain.Snapshot, delta differ.Delta) error {
	if !c.Enabled() {
		log.Debug(log.CatVault, "vault disabled, skipping publication", "run_id", snap.RunID)
		return nil
	}

	doc := presentation.NewRegistryDocument(reg, c.now())
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: marshal registry: %w", err)
	}

	datePath := c.now().Format("2006/01")
	archiveKey := fmt.Sprintf("registry_history/%s/registry_%s.json", datePath, snap.RunID)
	if err := c.put(ctx, archiveKey, "application/json", payload); err != nil {
		return err
	}
	if err := c.put(ctx, mirrorKey, "application/json", payload); err != nil {
		return err
	}

	c.uploadEvidence(ctx, snap.EvidenceHTML, fmt.Sprintf("raw_html/%s", datePath), "text/html")
	c.uploadEvidence(ctx, snap.EvidenceShot, fmt.Sprintf("full_screenshot/%s", datePath), "image/png")

	log.Info(log.CatVault, "publication complete",
		"run_id", snap.RunID, "archive", archiveKey, "delta", delta.Summary())
	return nil
}

// uploadEvidence ships one local evidence file and deletes it on success.
// Missing or failed files are logged and skipped.
func (c *Client) uploadEvidence(ctx context.Context, localPath, folder, contentType string) {
	if localPath == "" {
		return
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		log.Warn(log.CatVault, "evidence file unreadable", "path", localPath, "error", err.Error())
		return
	}

	key := path.Join(folder, path.Base(localPath))
	if err := c.put(ctx, key, contentType, data); err != nil {
		log.ErrorErr(log.CatVault, "evidence upload failed", err, "key", key)
		return
	}
	if err := os.Remove(localPath); err != nil {
		log.Warn(log.CatVault, "evidence cleanup failed", "path", localPath, "error", err.Error())
	}
}

func (c *Client) put(ctx context.Context, key, contentType string, body []byte) error {
	url := c.baseURL + "/" + key
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("vault: build request for %s: %w", key, err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vault: put %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("vault: put %s: status %d: %s", key, resp.StatusCode, snippet)
	}
	return nil
}
