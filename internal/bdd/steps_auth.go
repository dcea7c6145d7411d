package bdd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/consulta/advisor-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

// testUserPassword is the password every BDD-registered user gets. Login
// scenarios that need the password reference it as ${password}.
const testUserPassword = "s3cret-pa55word"

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		a := &authSteps{s: s}
		ctx.Step(`^I am authenticated as user "([^"]*)"$`, a.iAmAuthenticatedAsUser)
		ctx.Step(`^I am authenticated as user "([^"]*)" with business type "([^"]*)"$`, a.iAmAuthenticatedAsUserWithBusinessType)
		ctx.Step(`^I authenticate as user "([^"]*)"$`, a.iAmAuthenticatedAsUser)
		ctx.Step(`^I am not authenticated$`, a.iAmNotAuthenticated)

		ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
			s.Variables["password"] = testUserPassword
			return ctx, nil
		})
	})
}

type authSteps struct {
	s *cucumber.TestScenario
}

func (a *authSteps) iAmAuthenticatedAsUser(name string) error {
	return a.register(name, "")
}

func (a *authSteps) iAmAuthenticatedAsUserWithBusinessType(name, businessType string) error {
	return a.register(name, businessType)
}

// register creates the account through the public API and captures the session
// token as the user's bearer subject. Idempotent within a scenario: a second
// mention of the same name just switches the current user.
func (a *authSteps) register(name, businessType string) error {
	a.s.Suite.Mu.Lock()
	existing := a.s.Users[name]
	a.s.Suite.Mu.Unlock()
	if existing != nil {
		a.s.CurrentUser = name
		return nil
	}

	body := map[string]string{
		"email":    name + "@example.com",
		"password": testUserPassword,
	}
	if businessType != "" {
		body["business_type"] = businessType
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	// A plain client keeps registration out of the scenario session, so
	// response assertions still see the scenario's own last request.
	resp, err := http.Post(a.s.Suite.APIURL+"/api/auth/register", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("register %s: unexpected status %d: %s", name, resp.StatusCode, respBody)
	}

	var parsed struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("register %s: parse response: %w", name, err)
	}
	if parsed.Token == "" {
		return fmt.Errorf("register %s: no token in response: %s", name, respBody)
	}

	a.s.Suite.Mu.Lock()
	a.s.Users[name] = &cucumber.TestUser{
		Name:    name,
		Subject: parsed.Token,
	}
	a.s.Suite.Mu.Unlock()
	a.s.CurrentUser = name
	a.s.Variables[name+"_id"] = parsed.User.ID
	a.s.Variables[name+"_email"] = name + "@example.com"
	return nil
}

func (a *authSteps) iAmNotAuthenticated() error {
	name := "anonymous"
	a.s.Suite.Mu.Lock()
	if a.s.Users[name] == nil {
		a.s.Users[name] = &cucumber.TestUser{Name: name}
	}
	a.s.Suite.Mu.Unlock()
	a.s.CurrentUser = name
	return nil
}
