// Package cucumber is a godog-based harness for driving the HTTP API from
// Gherkin scenarios.
//
// A TestSuite spans the whole test run; each scenario gets its own
// TestScenario with isolated variables and one HTTP session per named user,
// so switching users switches cookies, headers, and the last response.
// Step text supports ${name} placeholders that expand to scenario variables
// captured from earlier responses.
package cucumber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
)

// TestDB gives steps direct database access for assertions that the public
// API cannot express, like digest-only session rows.
type TestDB interface {
	// ClearAll wipes mutable user data before each scenario. Curated seed
	// tables survive so catalog reads stay meaningful.
	ClearAll(ctx context.Context) error
	// ExecSQL runs a raw query and returns the rows as maps.
	ExecSQL(ctx context.Context, query string) ([]map[string]interface{}, error)
}

// TestSuite is shared by every scenario in a run and may be accessed from
// concurrently executing scenarios; Mu guards the shared maps.
type TestSuite struct {
	Context  interface{} // opaque application context (the server config)
	APIURL   string
	Mu       sync.Mutex
	TestingT *testing.T
	Extra    map[string]interface{} // run-scoped objects such as mock servers
	DB       TestDB
}

func NewTestSuite() *TestSuite {
	return &TestSuite{
		APIURL: "http://localhost:8080",
		Extra:  map[string]interface{}{},
	}
}

// TestUser is an API identity. Subject holds the bearer token once the user
// has authenticated.
type TestUser struct {
	Name    string
	Subject string
	Mu      sync.Mutex
}

// TestScenario carries per-scenario state. godog runs each scenario on a
// single goroutine, so no locking is needed here.
type TestScenario struct {
	Suite       *TestSuite
	CurrentUser string
	PathPrefix  string
	Variables   map[string]interface{}
	Users       map[string]*TestUser
	sessions    map[string]*TestSession
}

func (s *TestScenario) Logf(format string, args ...any) {
	s.Suite.TestingT.Logf(format, args...)
}

func (s *TestScenario) User() *TestUser {
	s.Suite.Mu.Lock()
	defer s.Suite.Mu.Unlock()
	return s.Users[s.CurrentUser]
}

// Session returns the current user's HTTP session, creating it on first use.
func (s *TestScenario) Session() *TestSession {
	session := s.sessions[s.CurrentUser]
	if session == nil {
		session = &TestSession{
			TestUser: s.User(),
			Client:   &http.Client{},
			Header:   http.Header{},
		}
		s.sessions[s.CurrentUser] = session
	}
	return session
}

// Expand substitutes every ${name} in value with the scenario variable of
// that name. Unknown variables fail the step rather than expanding to "".
func (s *TestScenario) Expand(value string) (string, error) {
	var firstErr error
	expanded := os.Expand(value, func(name string) string {
		v, err := s.Resolve(name)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return ""
		}
		text, err := renderValue(v)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("expanding ${%s}: %w", name, err)
		}
		return text
	})
	if firstErr != nil {
		return "", firstErr
	}
	return expanded, nil
}

// Resolve looks up a scenario variable by name.
func (s *TestScenario) Resolve(name string) (interface{}, error) {
	value, ok := s.Variables[name]
	if !ok {
		return nil, fmt.Errorf("variable ${%s} has not been set by an earlier step", name)
	}
	return value, nil
}

// renderValue turns a stored variable into step text. Selections pulled out
// of JSON bodies arrive as strings, float64s, or bools; anything structured
// is re-encoded as JSON.
func renderValue(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v), nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("cannot render %T in step text: %w", value, err)
	}
	return string(data), nil
}

// TestSession is one user's HTTP state, like a browser profile: a client,
// sticky headers, and the last response.
type TestSession struct {
	TestUser  *TestUser
	Client    *http.Client
	Resp      *http.Response
	RespBytes []byte
	Header    http.Header

	respJSON interface{}
}

// RespJSON parses the last response body as JSON, caching the result until
// the next request overwrites it.
func (s *TestSession) RespJSON() (interface{}, error) {
	if s.respJSON != nil {
		return s.respJSON, nil
	}
	if s.RespBytes == nil {
		return nil, fmt.Errorf("no response body")
	}
	if err := json.Unmarshal(s.RespBytes, &s.respJSON); err != nil {
		return nil, fmt.Errorf("parsing response json: %w\nbody was:\n%s", err, s.RespBytes)
	}
	return s.respJSON, nil
}

// SetRespBytes replaces the response body and drops the cached JSON.
func (s *TestSession) SetRespBytes(body []byte) {
	s.RespBytes = body
	s.respJSON = nil
}

// StepModules collects step registration functions. Each source file in this
// package (and in suites that build on it) appends its own.
var StepModules []func(ctx *godog.ScenarioContext, s *TestScenario)

// InitializeScenario wires a fresh TestScenario into godog.
func (suite *TestSuite) InitializeScenario(ctx *godog.ScenarioContext) {
	s := &TestScenario{
		Suite:     suite,
		Users:     map[string]*TestUser{},
		sessions:  map[string]*TestSession{},
		Variables: map[string]interface{}{},
	}
	for _, register := range StepModules {
		register(ctx, s)
	}
}

func DefaultOptions() godog.Options {
	return godog.Options{
		Output:      colors.Colored(os.Stdout),
		Format:      "progress",
		Paths:       []string{"features"},
		Randomize:   time.Now().UTC().UnixNano(),
		Concurrency: 10,
	}
}

// ApplyReportOptions switches the suite to junit output when
// GODOG_REPORT_DIR is set, writing one XML file per top-level test. The
// returned cleanup closes the report file and must be deferred by the caller.
func ApplyReportOptions(opts *godog.Options, testName string) func() {
	noop := func() {}
	dir := os.Getenv("GODOG_REPORT_DIR")
	if dir == "" {
		return noop
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return noop
	}
	name := strings.ReplaceAll(testName, "/", "-") + ".xml"
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return noop
	}
	opts.Output = f
	opts.Format = "junit"
	return func() { _ = f.Close() }
}
