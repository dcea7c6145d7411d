package bdd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/consulta/advisor-service/internal/cmd/serve"
	"github.com/consulta/advisor-service/internal/config"
	"github.com/consulta/advisor-service/internal/testutil/cucumber"
	"github.com/consulta/advisor-service/internal/testutil/testpg"
	"github.com/cucumber/godog"
	"github.com/stretchr/testify/require"

	// Import plugins to trigger init() registration. The encrypt/local plugin
	// is registered for every run but only loads when a config names it.
	_ "github.com/consulta/advisor-service/internal/plugin/cache/noop"
	_ "github.com/consulta/advisor-service/internal/plugin/embed/disabled"
	_ "github.com/consulta/advisor-service/internal/plugin/encrypt/local"
	_ "github.com/consulta/advisor-service/internal/plugin/filestore/dbstore"
	_ "github.com/consulta/advisor-service/internal/plugin/route/system"
	_ "github.com/consulta/advisor-service/internal/plugin/store/postgres"
)

// featureEnv is one booted advisor-service instance plus the doubles the
// scenarios talk to. Each Test* runner builds its own so config variants
// (encryption on/off) cannot bleed into each other.
type featureEnv struct {
	cfg     *config.Config
	apiURL  string
	dbURL   string
	advisor *MockAdvisor
}

// startEnv brings up Postgres, the mock completion backend, and the service
// itself. customize may adjust the config before the server boots.
func startEnv(t *testing.T, customize func(cfg *config.Config)) *featureEnv {
	dbURL := testpg.StartPostgres(t)
	advisor := NewMockAdvisor(t)

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.DBURL = dbURL
	// Sessions are read straight from the database so scenarios can expire
	// them with SQL.
	cfg.CacheType = "none"
	cfg.CompletionBaseURL = advisor.Server.URL
	cfg.CompletionAPIKey = "test-key"
	cfg.Listener.Port = 0
	cfg.Listener.EnableTLS = false
	if customize != nil {
		customize(&cfg)
	}

	ctx := config.WithContext(context.Background(), &cfg)
	srv, err := serve.StartServer(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &featureEnv{
		cfg:     &cfg,
		apiURL:  fmt.Sprintf("http://localhost:%d", srv.Running.Port),
		dbURL:   dbURL,
		advisor: advisor,
	}
}

// featurePaths globs dir for feature files and fails the test if there are
// none, which usually means the test is running from the wrong directory.
func featurePaths(t *testing.T, dir string) []string {
	paths, err := filepath.Glob(filepath.Join(dir, "*.feature"))
	require.NoError(t, err)
	require.NotEmpty(t, paths, "No feature files found in %s/", dir)
	return paths
}

// runFeatures executes each feature file as its own subtest. Scenarios share
// one database, so they run sequentially.
func (e *featureEnv) runFeatures(t *testing.T, featureFiles []string) {
	opts := cucumber.DefaultOptions()
	opts.Concurrency = 1
	if testing.Verbose() {
		opts.Format = "pretty"
	}

	for _, featurePath := range featureFiles {
		name := strings.TrimSuffix(filepath.Base(featurePath), ".feature")
		t.Run(name, func(t *testing.T) {
			o := opts
			o.TestingT = t
			o.Paths = []string{featurePath}
			defer cucumber.ApplyReportOptions(&o, t.Name())()

			suite := cucumber.NewTestSuite()
			suite.APIURL = e.apiURL
			suite.TestingT = t
			suite.Context = e.cfg
			suite.DB = &PostgresTestDB{DBURL: e.dbURL}
			suite.Extra["mockAdvisor"] = e.advisor

			status := godog.TestSuite{
				Name:                name,
				Options:             &o,
				ScenarioInitializer: suite.InitializeScenario,
			}.Run()
			if status != 0 {
				t.Fail()
			}
		})
	}
}
