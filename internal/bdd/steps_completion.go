package bdd

import (
	"context"
	"fmt"
	"strings"

	"github.com/consulta/advisor-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		cs := &completionSteps{s: s}
		ctx.Step(`^the advisor replies with "([^"]*)"$`, cs.theAdvisorRepliesWith)
		ctx.Step(`^the advisor replies with:$`, cs.theAdvisorRepliesWithDoc)
		ctx.Step(`^the advisor is unavailable$`, cs.theAdvisorIsUnavailable)
		ctx.Step(`^the last advisor request should have (\d+) messages$`, cs.theLastAdvisorRequestShouldHaveMessages)
		ctx.Step(`^the last advisor request model should be "([^"]*)"$`, cs.theLastAdvisorRequestModelShouldBe)
		ctx.Step(`^the last advisor request system prompt should contain "([^"]*)"$`, cs.theLastAdvisorRequestSystemPromptShouldContain)

		// Reset the mock before each scenario so canned replies and recorded
		// requests never leak between scenarios.
		ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
			if mock, ok := s.Suite.Extra["mockAdvisor"].(*MockAdvisor); ok {
				mock.Reset()
			}
			return ctx, nil
		})
	})
}

type completionSteps struct {
	s *cucumber.TestScenario
}

func (cs *completionSteps) mock() (*MockAdvisor, error) {
	mock, ok := cs.s.Suite.Extra["mockAdvisor"].(*MockAdvisor)
	if !ok {
		return nil, fmt.Errorf("no mock advisor configured for this suite")
	}
	return mock, nil
}

func (cs *completionSteps) theAdvisorRepliesWith(reply string) error {
	mock, err := cs.mock()
	if err != nil {
		return err
	}
	expanded, err := cs.s.Expand(reply)
	if err != nil {
		return err
	}
	mock.SetReply(expanded)
	return nil
}

func (cs *completionSteps) theAdvisorRepliesWithDoc(reply *godog.DocString) error {
	return cs.theAdvisorRepliesWith(reply.Content)
}

func (cs *completionSteps) theAdvisorIsUnavailable() error {
	mock, err := cs.mock()
	if err != nil {
		return err
	}
	mock.SetFail(true)
	return nil
}

func (cs *completionSteps) theLastAdvisorRequestShouldHaveMessages(count int) error {
	mock, err := cs.mock()
	if err != nil {
		return err
	}
	last := mock.LastRequest()
	if last == nil {
		return fmt.Errorf("advisor was never called")
	}
	if len(last.Messages) != count {
		return fmt.Errorf("expected %d messages in advisor request, got %d", count, len(last.Messages))
	}
	return nil
}

func (cs *completionSteps) theLastAdvisorRequestModelShouldBe(model string) error {
	mock, err := cs.mock()
	if err != nil {
		return err
	}
	last := mock.LastRequest()
	if last == nil {
		return fmt.Errorf("advisor was never called")
	}
	if last.Model != model {
		return fmt.Errorf("expected model %q, got %q", model, last.Model)
	}
	return nil
}

func (cs *completionSteps) theLastAdvisorRequestSystemPromptShouldContain(expected string) error {
	mock, err := cs.mock()
	if err != nil {
		return err
	}
	last := mock.LastRequest()
	if last == nil {
		return fmt.Errorf("advisor was never called")
	}
	if len(last.Messages) == 0 || last.Messages[0].Role != "system" {
		return fmt.Errorf("advisor request has no leading system message")
	}
	expanded, err := cs.s.Expand(expected)
	if err != nil {
		return err
	}
	if !strings.Contains(last.Messages[0].Content, expanded) {
		return fmt.Errorf("system prompt does not contain %q, prompt was:\n%s", expanded, last.Messages[0].Content)
	}
	return nil
}
