package liveapi

import (
	"context"
	"io"
	"net/http"

	"github.com/sensit/sensit/internal/types"
	"github.com/tidwall/gjson"
)

type twilioVerifier struct {
	client *http.Client
	base   string
}

func newTwilio(client *http.Client) *twilioVerifier {
	return &twilioVerifier{client: client, base: "https://api.twilio.com"}
}

func (t *twilioVerifier) Family() string { return "twilio" }

// Verify fetches the account resource. Twilio auth needs the SID and the
// auth token together; whichever of the two this secret is, the partner
// credential comes from the pair index of the same scan run.
func (t *twilioVerifier) Verify(ctx context.Context, secret types.Secret, pairs PairIndex) Outcome {
	sid, token := secret.Value, ""
	switch secret.Type {
	case "twilio_account_sid":
		tok, ok := pairs.First("twilio_auth_token")
		if !ok {
			return Indeterminate("no auth token candidate found in the same scan")
		}
		token = tok
	case "twilio_auth_token":
		token = secret.Value
		s, ok := pairs.First("twilio_account_sid")
		if !ok {
			return Indeterminate("no account SID candidate found in the same scan")
		}
		sid = s
	default:
		return Indeterminate("unsupported twilio signature " + secret.Type)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/2010-04-01/Accounts/"+sid+".json", nil)
	if err != nil {
		return Indeterminate(err.Error())
	}
	req.SetBasicAuth(sid, token)

	resp, err := t.client.Do(req)
	if err != nil {
		return Indeterminate(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch resp.StatusCode {
	case http.StatusOK:
		return Outcome{
			Validity: types.ValidityActive,
			Details: map[string]string{
				"friendly_name": gjson.GetBytes(body, "friendly_name").String(),
				"account_status": gjson.GetBytes(body, "status").String(),
			},
		}
	case http.StatusUnauthorized:
		return Outcome{Validity: types.ValidityRevoked, Details: map[string]string{"http_status": "401"}}
	}
	return Indeterminate("unexpected HTTP " + resp.Status)
}
