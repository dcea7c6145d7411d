package bdd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/consulta/advisor-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
)

// Database plumbing for scenarios: per-scenario cleanup plus steps that
// assert directly against SQL, for invariants the HTTP surface hides
// (digest-only session rows, link audit columns, indexer bookkeeping).
func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		if s.Suite.DB != nil {
			// Fresh tables per scenario so state never leaks between them.
			ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
				return ctx, s.Suite.DB.ClearAll(ctx)
			})
		}

		steps := &dbSteps{scenario: s}
		ctx.Step(`^I execute SQL query:$`, steps.executeQuery)
		ctx.Step(`^the SQL result should have (\d+) rows?$`, steps.rowCountIs)
		ctx.Step(`^the SQL result should match:$`, steps.resultMatchesTable)
		ctx.Step(`^the SQL result column "([^"]*)" should be non-null$`, steps.firstRowColumnNonNull)
		ctx.Step(`^the SQL result at row (\d+) column "([^"]*)" should be "([^"]*)"$`, steps.cellIs)
	})
}

type dbSteps struct {
	scenario *cucumber.TestScenario
	rows     []map[string]interface{}
}

func (d *dbSteps) executeQuery(query *godog.DocString) error {
	if d.scenario.Suite.DB == nil {
		return fmt.Errorf("no TestDB configured")
	}
	sql, err := d.scenario.Expand(query.Content)
	if err != nil {
		return err
	}
	if d.rows, err = d.scenario.Suite.DB.ExecSQL(context.Background(), sql); err != nil {
		return err
	}

	// Mirror the rows into the session response so the generic JSON
	// assertion steps can inspect them too.
	asJSON, err := json.Marshal(d.rows)
	if err != nil {
		return err
	}
	d.scenario.Session().SetRespBytes(asJSON)
	return nil
}

func (d *dbSteps) rowCountIs(count int) error {
	if len(d.rows) != count {
		return fmt.Errorf("want %d row(s), got %d", count, len(d.rows))
	}
	return nil
}

func (d *dbSteps) resultMatchesTable(expected *godog.Table) error {
	if len(expected.Rows) < 2 {
		return fmt.Errorf("expected table needs a header row and at least one data row")
	}
	header := expected.Rows[0].Cells
	for i, tableRow := range expected.Rows[1:] {
		for col, cell := range tableRow.Cells {
			if err := d.compareCell(i, header[col].Value, cell.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *dbSteps) firstRowColumnNonNull(column string) error {
	if len(d.rows) == 0 {
		return fmt.Errorf("query returned no rows")
	}
	value, ok := d.rows[0][column]
	if !ok {
		return fmt.Errorf("column %q missing from result", column)
	}
	if value == nil {
		return fmt.Errorf("column %q is null", column)
	}
	return nil
}

func (d *dbSteps) cellIs(row int, column, expected string) error {
	return d.compareCell(row, column, expected)
}

func (d *dbSteps) compareCell(row int, column, want string) error {
	if row >= len(d.rows) {
		return fmt.Errorf("row %d out of range, query returned %d row(s)", row, len(d.rows))
	}
	want, err := d.scenario.Expand(want)
	if err != nil {
		return err
	}
	got := fmt.Sprintf("%v", d.rows[row][column])
	if got != want {
		return fmt.Errorf("row %d column %q: want %q, got %q", row, column, want, got)
	}
	return nil
}
