package liveapi

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/sensit/sensit/internal/types"
	"github.com/tidwall/gjson"
)

type slackTokenVerifier struct {
	client *http.Client
	base   string
}

func newSlackToken(client *http.Client) *slackTokenVerifier {
	return &slackTokenVerifier{client: client, base: "https://slack.com"}
}

func (s *slackTokenVerifier) Family() string { return "slack_token" }

func (s *slackTokenVerifier) Verify(ctx context.Context, secret types.Secret, _ PairIndex) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/api/auth.test", nil)
	if err != nil {
		return Indeterminate(err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+secret.Value)

	resp, err := s.client.Do(req)
	if err != nil {
		return Indeterminate(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return Indeterminate("unexpected HTTP " + resp.Status)
	}
	// Slack answers 200 for both outcomes; ok distinguishes them.
	if gjson.GetBytes(body, "ok").Bool() {
		return Outcome{
			Validity: types.ValidityActive,
			Details: map[string]string{
				"team": gjson.GetBytes(body, "team").String(),
				"user": gjson.GetBytes(body, "user").String(),
			},
		}
	}
	return Outcome{
		Validity: types.ValidityRevoked,
		Details:  map[string]string{"error": gjson.GetBytes(body, "error").String()},
	}
}

type slackWebhookVerifier struct {
	client *http.Client
}

func newSlackWebhook(client *http.Client) *slackWebhookVerifier {
	return &slackWebhookVerifier{client: client}
}

func (s *slackWebhookVerifier) Family() string { return "slack_webhook" }

// Verify pings the webhook with a short fixed notice. This is the one
// verifier whose check is visible to the workspace that owns the hook.
func (s *slackWebhookVerifier) Verify(ctx context.Context, secret types.Secret, _ PairIndex) Outcome {
	payload := strings.NewReader(`{"text":"sensit validation test (please ignore)"}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, secret.Value, payload)
	if err != nil {
		return Indeterminate(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Indeterminate(err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	switch resp.StatusCode {
	case http.StatusOK:
		return Outcome{Validity: types.ValidityActive, Details: map[string]string{"type": "webhook"}}
	case http.StatusNotFound, http.StatusForbidden, http.StatusGone:
		return Outcome{Validity: types.ValidityRevoked, Details: map[string]string{"http_status": resp.Status}}
	}
	return Indeterminate("unexpected HTTP " + resp.Status)
}
