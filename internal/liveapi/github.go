package liveapi

import (
	"context"
	"io"
	"net/http"

	"github.com/sensit/sensit/internal/types"
	"github.com/tidwall/gjson"
)

type githubVerifier struct {
	client *http.Client
	base   string
}

func newGitHub(client *http.Client) *githubVerifier {
	return &githubVerifier{client: client, base: "https://api.github.com"}
}

func (g *githubVerifier) Family() string { return "github" }

// Verify performs an identity lookup with the token. A 200 proves the
// token is live; a 401 proves it is not; anything else is indeterminate.
func (g *githubVerifier) Verify(ctx context.Context, secret types.Secret, _ PairIndex) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.base+"/user", nil)
	if err != nil {
		return Indeterminate(err.Error())
	}
	req.Header.Set("Authorization", "token "+secret.Value)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := g.client.Do(req)
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
				"username": gjson.GetBytes(body, "login").String(),
				"user_id":  gjson.GetBytes(body, "id").Raw,
				"scopes":   resp.Header.Get("X-OAuth-Scopes"),
			},
		}
	case http.StatusUnauthorized:
		return Outcome{Validity: types.ValidityRevoked, Details: map[string]string{"http_status": "401"}}
	}
	return Indeterminate("unexpected HTTP " + resp.Status)
}
