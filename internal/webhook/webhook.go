// Package webhook posts signed notifications to a configured URL when a
// sync push lands new events. Receivers verify authenticity with the
// shared HMAC secret.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Payload is the webhook POST body describing one sync push.
type Payload struct {
	UserID            string `json:"user_id"`
	DeviceID          string `json:"device_id"`
	Inserted          int    `json:"inserted"`
	Duplicates        int    `json:"duplicates"`
	Rejected          int    `json:"rejected"`
	LastAckedSequence *int64 `json:"last_acked_sequence"`
	Timestamp         string `json:"timestamp"`
}

// NewPayload builds a Payload for one ingested push, stamped with the
// current time.
func NewPayload(userID, deviceID string, inserted, duplicates, rejected int, lastAcked *int64) Payload {
	return Payload{
		UserID:            userID,
		DeviceID:          deviceID,
		Inserted:          inserted,
		Duplicates:        duplicates,
		Rejected:          rejected,
		LastAckedSequence: lastAcked,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
	}
}

// Dispatch performs a synchronous HTTP POST to the webhook URL.
// Returns nil on success (2xx status).
func Dispatch(url, secret string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "replog-webhook/1")

	unixTS := fmt.Sprintf("%d", time.Now().Unix())
	req.Header.Set("X-Replog-Timestamp", unixTS)

	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(unixTS))
		mac.Write([]byte("."))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))
		req.Header.Set("X-Replog-Signature", "sha256="+sig)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// Notifier dispatches webhooks in the background so sync responses never
// wait on a receiver. A nil Notifier is valid and does nothing.
type Notifier struct {
	url    string
	secret string
	log    *slog.Logger
	wg     sync.WaitGroup
}

// NewNotifier returns a Notifier for url, or nil when url is empty.
func NewNotifier(url, secret string, log *slog.Logger) *Notifier {
	if url == "" {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{url: url, secret: secret, log: log}
}

// Notify posts p without blocking the caller. Delivery is at-most-once;
// a failed POST is logged and dropped.
func (n *Notifier) Notify(p Payload) {
	if n == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := Dispatch(n.url, n.secret, p); err != nil {
			n.log.Warn("webhook dispatch failed", "err", err)
		}
	}()
}

// Close waits for in-flight dispatches to finish.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
