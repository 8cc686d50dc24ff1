package session

import (
	"net/http"
)

// authTransport is the request pipeline decorator: it injects the bearer
// token on the way out and resolves 401s by refreshing and replaying on
// the way back. Call sites never deal with token expiry themselves.
type authTransport struct {
	session *Manager
	// base is the underlying transport; nil means http.DefaultTransport.
	base http.RoundTripper
}

func (t *authTransport) transport() http.RoundTripper {
	if t.base != nil {
		return t.base
	}
	return http.DefaultTransport
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token := t.session.AccessToken()

	resp, err := t.transport().RoundTrip(t.withBearer(req, token))
	if err != nil {
		return nil, err
	}

	// Refresh-and-replay applies only when a token was present at send
	// time; an anonymous 401 is the caller's problem.
	if resp.StatusCode != http.StatusUnauthorized || token == "" {
		return resp, nil
	}

	newToken, refreshErr := t.session.refreshAccessToken(token)
	if refreshErr != nil {
		// Session is torn down; the original unauthorized response is
		// propagated to the caller.
		return resp, nil
	}

	replay, ok := t.replayable(req)
	if !ok {
		return resp, nil
	}

	resp.Body.Close()
	return t.transport().RoundTrip(t.withBearer(replay, newToken))
}

// withBearer clones req with the Authorization header set. The original
// request is never mutated, per the RoundTripper contract.
func (t *authTransport) withBearer(req *http.Request, token string) *http.Request {
	out := req.Clone(req.Context())
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out
}

// replayable rebuilds the request for a second attempt. Requests with a
// consumed one-shot body cannot be replayed.
func (t *authTransport) replayable(req *http.Request) (*http.Request, bool) {
	out := req.Clone(req.Context())
	if req.Body == nil {
		return out, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	out.Body = body
	return out, true
}
