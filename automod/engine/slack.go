package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zeppelin-bot/zeppelin/util"
)

// Posts bot alerts to a Slack "incoming webhook". These go to bot operators, not guild moderators.
type SlackNotifier struct {
	WebhookURL string
	Client     *http.Client
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		WebhookURL: webhookURL,
		Client:     util.RobustHTTPClient(nil),
	}
}

type slackWebhookBody struct {
	Text string `json:"text"`
}

func formatSlackAlert(guildID, msg string) string {
	return fmt.Sprintf("⚠️ Automod Alert ⚠️\nGuild: `%s`\n%s\n", guildID, msg)
}

func (n *SlackNotifier) BotAlert(ctx context.Context, guildID, msg string) error {
	body, err := json.Marshal(slackWebhookBody{Text: formatSlackAlert(guildID, msg)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	defer resp.Body.Close()

	// slack answers a plain "ok" on success
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(respBody)) != "ok" {
		return fmt.Errorf("slack webhook: status=%d body=%q", resp.StatusCode, respBody)
	}
	return nil
}
