package liveapi

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/sensit/sensit/internal/types"
	"github.com/tidwall/gjson"
)

type stripeVerifier struct {
	client *http.Client
	base   string
}

func newStripe(client *http.Client) *stripeVerifier {
	return &stripeVerifier{client: client, base: "https://api.stripe.com"}
}

func (s *stripeVerifier) Family() string { return "stripe" }

// Verify reads the account balance, the cheapest authenticated call the
// API offers.
func (s *stripeVerifier) Verify(ctx context.Context, secret types.Secret, _ PairIndex) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/v1/balance", nil)
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

	switch resp.StatusCode {
	case http.StatusOK:
		mode := "test"
		if strings.HasPrefix(secret.Value, "sk_live_") {
			mode = "live"
		}
		return Outcome{
			Validity: types.ValidityActive,
			Details: map[string]string{
				"mode":     mode,
				"currency": gjson.GetBytes(body, "available.0.currency").String(),
			},
		}
	case http.StatusUnauthorized:
		return Outcome{Validity: types.ValidityRevoked, Details: map[string]string{"http_status": "401"}}
	}
	return Indeterminate("unexpected HTTP " + resp.Status)
}
