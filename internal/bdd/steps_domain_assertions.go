package bdd

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/consulta/advisor-service/internal/testutil/cucumber"
	"github.com/cucumber/godog"
	"github.com/google/uuid"
	"github.com/itchyny/gojq"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		d := &domainSteps{s: s}
		ctx.Step(`^the "([^"]*)" selection from the response should be a valid UUID$`, d.selectionShouldBeValidUUID)
		ctx.Step(`^the "([^"]*)" selection from the response should be a recent timestamp$`, d.selectionShouldBeRecentTimestamp)
		ctx.Step(`^the "([^"]*)" selection from the response should start with "([^"]*)"$`, d.selectionShouldStartWith)
		ctx.Step(`^the "([^"]*)" selection from the response should end with "([^"]*)"$`, d.selectionShouldEndWith)
		ctx.Step(`^the response body should be a CSV with (\d+) rows$`, d.responseShouldBeCSVWithRows)
		ctx.Step(`^the response body CSV row (\d+) should be "([^"]*)"$`, d.responseCSVRowShouldBe)
		ctx.Step(`^the response body should be an XLSX archive$`, d.responseShouldBeXLSX)
		ctx.Step(`^the "([^"]*)" selection from the response should decode to a CSV with (\d+) rows$`, d.selectionShouldDecodeToCSVWithRows)
	})
}

type domainSteps struct {
	s *cucumber.TestScenario
}

func (d *domainSteps) selectString(selector string) (string, error) {
	session := d.s.Session()
	doc, err := session.RespJSON()
	if err != nil {
		return "", err
	}
	query, err := gojq.Parse(selector)
	if err != nil {
		return "", err
	}
	iter := query.Run(doc)
	if actual, found := iter.Next(); found {
		str, ok := actual.(string)
		if !ok {
			return "", fmt.Errorf("selection %s is not a string: %v (%T)", selector, actual, actual)
		}
		return str, nil
	}
	return "", fmt.Errorf("response does not have a node that matches selector: %s", selector)
}

func (d *domainSteps) selectionShouldBeValidUUID(selector string) error {
	value, err := d.selectString(selector)
	if err != nil {
		return err
	}
	if _, err := uuid.Parse(value); err != nil {
		return fmt.Errorf("selection %s is not a valid UUID: %q", selector, value)
	}
	return nil
}

func (d *domainSteps) selectionShouldBeRecentTimestamp(selector string) error {
	value, err := d.selectString(selector)
	if err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return fmt.Errorf("selection %s is not an RFC3339 timestamp: %q", selector, value)
	}
	age := time.Since(ts)
	if age < -time.Minute || age > time.Minute {
		return fmt.Errorf("selection %s is not recent: %s (%.fs from now)", selector, value, age.Seconds())
	}
	return nil
}

func (d *domainSteps) selectionShouldStartWith(selector, prefix string) error {
	value, err := d.selectString(selector)
	if err != nil {
		return err
	}
	expanded, err := d.s.Expand(prefix)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(value, expanded) {
		return fmt.Errorf("selection %s does not start with %q: %q", selector, expanded, value)
	}
	return nil
}

func (d *domainSteps) selectionShouldEndWith(selector, suffix string) error {
	value, err := d.selectString(selector)
	if err != nil {
		return err
	}
	expanded, err := d.s.Expand(suffix)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(value, expanded) {
		return fmt.Errorf("selection %s does not end with %q: %q", selector, expanded, value)
	}
	return nil
}

func parseCSV(data []byte) ([][]string, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("body is not valid CSV: %w", err)
	}
	return records, nil
}

func (d *domainSteps) responseShouldBeCSVWithRows(rows int) error {
	records, err := parseCSV(d.s.Session().RespBytes)
	if err != nil {
		return err
	}
	if len(records) != rows {
		return fmt.Errorf("expected %d CSV rows, got %d", rows, len(records))
	}
	return nil
}

func (d *domainSteps) responseCSVRowShouldBe(row int, expected string) error {
	records, err := parseCSV(d.s.Session().RespBytes)
	if err != nil {
		return err
	}
	if row >= len(records) {
		return fmt.Errorf("CSV row %d out of range (have %d rows)", row, len(records))
	}
	expanded, err := d.s.Expand(expected)
	if err != nil {
		return err
	}
	actual := strings.Join(records[row], ",")
	if actual != expanded {
		return fmt.Errorf("CSV row %d: expected %q, got %q", row, expanded, actual)
	}
	return nil
}

func (d *domainSteps) responseShouldBeXLSX() error {
	body := d.s.Session().RespBytes
	// XLSX files are zip archives, identified by the PK local-file header.
	if !bytes.HasPrefix(body, []byte("PK\x03\x04")) {
		return fmt.Errorf("response body is not an XLSX (zip) archive, starts with: %q", truncateBytes(body, 8))
	}
	return nil
}

func (d *domainSteps) selectionShouldDecodeToCSVWithRows(selector string, rows int) error {
	encoded, err := d.selectString(selector)
	if err != nil {
		return err
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("selection %s is not valid base64: %w", selector, err)
	}
	records, err := parseCSV(decoded)
	if err != nil {
		return err
	}
	if len(records) != rows {
		return fmt.Errorf("expected %d CSV rows, got %d", rows, len(records))
	}
	return nil
}

func truncateBytes(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
