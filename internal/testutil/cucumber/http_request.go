package cucumber

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cucumber/godog"
)

// HTTP client steps. Each scenario user gets a browser-like session: the
// captured response of the last request, plus headers staged for the next.
func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^the path prefix is "([^"]*)"$`, s.setPathPrefix)
		ctx.Step(`^I (GET|POST|PUT|DELETE|PATCH|OPTION) path "([^"]*)"$`, s.requestWithoutBody)
		ctx.Step(`^I (GET|POST|PUT|DELETE|PATCH|OPTION) path "([^"]*)" with json body:$`, s.requestWithJSONBody)
		ctx.Step(`^I call (GET) "([^"]*)" expecting binary$`, s.requestBinary)
		ctx.Step(`^I call (GET) "([^"]*)" expecting binary without authentication$`, s.requestBinaryAnonymous)
		ctx.Step(`^I call (GET) "([^"]*)" expecting binary without authentication with header "([^"]*)" = "(.*)"$`, s.requestBinaryAnonymousWithHeader)
		ctx.Step(`^I set the "([^"]*)" header to "([^"]*)"$`, s.stageHeader)
	})
}

func (s *TestScenario) setPathPrefix(prefix string) error {
	s.PathPrefix = prefix
	return nil
}

func (s *TestScenario) requestWithoutBody(method, path string) error {
	return s.doRequest(method, path, nil)
}

func (s *TestScenario) requestWithJSONBody(method, path string, body *godog.DocString) error {
	return s.doRequest(method, path, body)
}

func (s *TestScenario) requestBinary(method, path string) error {
	s.Session().Header.Set("Accept", "*/*")
	return s.doRequest(method, path, nil)
}

func (s *TestScenario) requestBinaryAnonymous(method, path string) error {
	return s.anonymously(func() error {
		return s.requestBinary(method, path)
	})
}

func (s *TestScenario) requestBinaryAnonymousWithHeader(method, path, name, value string) error {
	return s.anonymously(func() error {
		expanded, err := s.Expand(value)
		if err != nil {
			return err
		}
		s.Session().Header.Set(name, strings.ReplaceAll(expanded, `\"`, `"`))
		return s.requestBinary(method, path)
	})
}

// anonymously drops both the staged Authorization header and the scenario's
// current user for the duration of one request.
func (s *TestScenario) anonymously(send func() error) error {
	session := s.Session()
	session.Header.Del("Authorization")
	saved := session.TestUser
	session.TestUser = nil
	defer func() { session.TestUser = saved }()
	return send()
}

func (s *TestScenario) stageHeader(name, value string) error {
	expanded, err := s.Expand(value)
	if err != nil {
		return err
	}
	s.Session().Header.Set(name, expanded)
	return nil
}

// doRequest sends one request for the current user's session and captures
// the full response body. Any previous response is discarded first, even
// when this request fails.
func (s *TestScenario) doRequest(method, path string, body *godog.DocString) error {
	session := s.Session()
	target, err := s.requestURL(path)
	if err != nil {
		return err
	}

	var payload io.Reader = http.NoBody
	if body != nil {
		expanded, err := s.Expand(body.Content)
		if err != nil {
			return err
		}
		payload = strings.NewReader(expanded)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, target, payload)
	if err != nil {
		return err
	}
	s.attachHeaders(req, session)

	if session.Resp != nil {
		_ = session.Resp.Body.Close()
	}
	session.Resp = nil
	session.SetRespBytes(nil)

	resp, err := session.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	session.Resp = resp
	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	session.SetRespBytes(respBytes)
	return nil
}

// requestURL expands ${vars} in path. Absolute URLs (capability links stored
// from earlier responses) pass through untouched; everything else resolves
// against the suite's API base plus the scenario's path prefix.
func (s *TestScenario) requestURL(path string) (string, error) {
	expanded, err := s.Expand(path)
	if err != nil {
		return "", err
	}
	if u, err := url.Parse(expanded); err == nil && u.Scheme != "" {
		return expanded, nil
	}
	return s.Suite.APIURL + s.PathPrefix + expanded, nil
}

// attachHeaders moves the staged headers onto the request. Most are
// one-shot; Authorization and Accept-Language persist for the rest of the
// scenario, the way a browser would resend them.
func (s *TestScenario) attachHeaders(req *http.Request, session *TestSession) {
	req.Header = session.Header
	session.Header = http.Header{}

	if auth := req.Header.Get("Authorization"); auth != "" {
		session.Header.Set("Authorization", auth)
	} else if session.TestUser != nil && session.TestUser.Subject != "" {
		req.Header.Set("Authorization", "Bearer "+session.TestUser.Subject)
	}
	if lang := req.Header.Get("Accept-Language"); lang != "" {
		session.Header.Set("Accept-Language", lang)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
}
