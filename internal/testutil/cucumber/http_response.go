package cucumber

import (
	"fmt"
	"strings"

	"github.com/cucumber/godog"
	"github.com/itchyny/gojq"
)

// Response assertion steps. JSON bodies are compared structurally through
// JSONMustMatch/JSONMustContain; scalar checks go through gojq selectors.
func init() {
	StepModules = append(StepModules, func(ctx *godog.ScenarioContext, s *TestScenario) {
		ctx.Step(`^the response code should be (\d+)$`, s.responseCodeIs)
		ctx.Step(`^the response should match json:$`, s.responseMatchesJSON)
		ctx.Step(`^the response should contain json:$`, s.responseContainsJSON)
		ctx.Step(`^the response should contain "([^"]*)"$`, s.responseContainsText)
		ctx.Step(`^I store the "([^"]*)" selection from the response as \${([^}]*)}$`, s.storeSelection)
		ctx.Step(`^the "(.*)" selection from the response should match "([^"]*)"$`, s.selectionMatches)
		ctx.Step(`^the response header "([^"]*)" should match "([^"]*)"$`, s.responseHeaderMatches)
		ctx.Step(`^the response header "([^"]*)" should start with "([^"]*)"$`, s.responseHeaderStartsWith)
		ctx.Step(`^I store the response header "([^"]*)" as \${([^}]*)}$`, s.storeResponseHeader)
		ctx.Step(`^\${([^}]*)} is not empty$`, s.variableIsNotEmpty)
	})
}

func (s *TestScenario) responseCodeIs(expected int) error {
	session := s.Session()
	if session.Resp == nil {
		return fmt.Errorf("no HTTP response available")
	}
	if session.Resp.StatusCode != expected {
		return fmt.Errorf("want status %d, got %d, body: %s", expected, session.Resp.StatusCode, string(session.RespBytes))
	}
	return nil
}

func (s *TestScenario) responseMatchesJSON(expected *godog.DocString) error {
	session := s.Session()
	if len(session.RespBytes) == 0 {
		return fmt.Errorf("empty response from server, expected a json body")
	}
	return s.JSONMustMatch(string(session.RespBytes), expected.Content, true)
}

func (s *TestScenario) responseContainsJSON(expected *godog.DocString) error {
	session := s.Session()
	if len(session.RespBytes) == 0 {
		return fmt.Errorf("empty response from server, expected a json body")
	}
	return s.JSONMustContain(string(session.RespBytes), expected.Content, true)
}

func (s *TestScenario) responseContainsText(expected string) error {
	body := string(s.Session().RespBytes)
	if !strings.Contains(body, expected) {
		return fmt.Errorf("response does not contain %q, body: %s", expected, body)
	}
	return nil
}

func (s *TestScenario) storeSelection(selector, name string) error {
	value, err := s.selectOne(selector)
	if err != nil {
		return err
	}
	s.Variables[name] = value
	return nil
}

func (s *TestScenario) selectionMatches(selector, expected string) error {
	value, err := s.selectOne(selector)
	if err != nil {
		return err
	}
	expected, err = s.Expand(expected)
	if err != nil {
		return err
	}
	actual := "null"
	if value != nil {
		actual = fmt.Sprintf("%v", value)
	}
	if actual != expected {
		return fmt.Errorf("selection %s: want %q, got %q", selector, expected, actual)
	}
	return nil
}

func (s *TestScenario) responseHeaderMatches(header, expected string) error {
	session := s.Session()
	expanded, err := s.Expand(expected)
	if err != nil {
		return err
	}
	if actual := session.Resp.Header.Get(header); actual != expanded {
		return fmt.Errorf("response header %q: want %q, got %q, body:\n%s", header, expanded, actual, string(session.RespBytes))
	}
	return nil
}

func (s *TestScenario) responseHeaderStartsWith(header, prefix string) error {
	session := s.Session()
	expanded, err := s.Expand(prefix)
	if err != nil {
		return err
	}
	if actual := session.Resp.Header.Get(header); !strings.HasPrefix(actual, expanded) {
		return fmt.Errorf("response header %q does not start with %q, got %q", header, expanded, actual)
	}
	return nil
}

func (s *TestScenario) storeResponseHeader(header, name string) error {
	session := s.Session()
	if session.Resp == nil {
		return fmt.Errorf("no HTTP response available")
	}
	s.Variables[name] = session.Resp.Header.Get(header)
	return nil
}

func (s *TestScenario) variableIsNotEmpty(name string) error {
	value, err := s.Resolve(name)
	if err != nil {
		return err
	}
	if value == nil || value == "" {
		return fmt.Errorf("variable ${%s} is empty", name)
	}
	return nil
}

// selectOne runs a gojq selector over the last JSON response body and
// returns the first result.
func (s *TestScenario) selectOne(selector string) (interface{}, error) {
	doc, err := s.Session().RespJSON()
	if err != nil {
		return nil, err
	}
	query, err := gojq.Parse(selector)
	if err != nil {
		return nil, err
	}
	if value, found := query.Run(doc).Next(); found {
		return value, nil
	}
	return nil, fmt.Errorf("no node matches selector: %s", selector)
}
