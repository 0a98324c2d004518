package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultNtfyURL is the public ntfy server.
const DefaultNtfyURL = "https://ntfy.sh"

// Ntfy publishes the notification body to an ntfy topic.
type Ntfy struct {
	endpoint string
	tags     string
	client   *http.Client
}

// NewNtfy returns nil when topic is empty.
func NewNtfy(baseURL, topic string, tags []string, client *http.Client) *Ntfy {
	topic = strings.Trim(strings.TrimSpace(topic), "/")
	if topic == "" {
		return nil
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultNtfyURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	var clean []string
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	return &Ntfy{
		endpoint: strings.TrimRight(baseURL, "/") + "/" + topic,
		tags:     strings.Join(clean, ","),
		client:   client,
	}
}

func (n *Ntfy) Name() string { return "ntfy" }

func (n *Ntfy) Notify(ctx context.Context, note Notification) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(Body(note)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", SummaryLine(note))
	if n.tags != "" {
		req.Header.Set("Tags", n.tags)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy status %d", resp.StatusCode)
	}
	return nil
}
