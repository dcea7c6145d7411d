package cucumber

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// JSONMustMatch fails unless actual and expected are structurally equal
// documents. When expand is set, ${name} placeholders in expected are
// resolved first. Mismatches render as a unified diff over the pretty-printed
// forms, which reads far better than DeepEqual's one-line dump.
func (s *TestScenario) JSONMustMatch(actual, expected string, expand bool) error {
	actualDoc, err := parseJSONDoc("actual", actual)
	if err != nil {
		return err
	}
	expectedDoc, err := s.expectedJSONDoc(expected, expand, actualDoc)
	if err != nil {
		return err
	}
	if reflect.DeepEqual(expectedDoc, actualDoc) {
		return nil
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(prettyJSON(expectedDoc)),
		B:        difflib.SplitLines(prettyJSON(actualDoc)),
		FromFile: "Expected",
		ToFile:   "Actual",
		Context:  1,
	})
	return fmt.Errorf("actual does not match expected, diff:\n%s", diff)
}

// JSONMustContain fails unless actual contains expected: objects may carry
// extra keys, arrays must match element by element, scalars must be equal.
func (s *TestScenario) JSONMustContain(actual, expected string, expand bool) error {
	actualDoc, err := parseJSONDoc("actual", actual)
	if err != nil {
		return err
	}
	expectedDoc, err := s.expectedJSONDoc(expected, expand, actualDoc)
	if err != nil {
		return err
	}
	if err := containsDoc(expectedDoc, actualDoc, ""); err != nil {
		return fmt.Errorf("actual does not contain expected.\n  mismatch: %s\n  expected:\n%s\n  actual:\n%s",
			err, prettyJSON(expectedDoc), prettyJSON(actualDoc))
	}
	return nil
}

// expectedJSONDoc expands and parses the expected document. An empty
// expectation is a step-authoring error; the actual document is echoed back
// so the author can paste it in.
func (s *TestScenario) expectedJSONDoc(expected string, expand bool, actualDoc interface{}) (interface{}, error) {
	if expand {
		var err error
		if expected, err = s.Expand(expected); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(expected) == "" {
		return nil, fmt.Errorf("expected json not specified, actual json was:\n%s", prettyJSON(actualDoc))
	}
	return parseJSONDoc("expected", expected)
}

func parseJSONDoc(label, doc string) (interface{}, error) {
	var parsed interface{}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return nil, fmt.Errorf("parsing %s json: %w\njson was:\n%s", label, err, doc)
	}
	return parsed, nil
}

func prettyJSON(doc interface{}) string {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", doc)
	}
	return string(data)
}

// containsDoc walks expected and requires every leaf to be present in actual.
// path accumulates the location for error reporting, rooted at $.
func containsDoc(expected, actual interface{}, path string) error {
	switch want := expected.(type) {
	case nil:
		if actual != nil {
			return fmt.Errorf("at %s: expected null, got %v", jsonPath(path), actual)
		}
		return nil
	case map[string]interface{}:
		have, ok := actual.(map[string]interface{})
		if !ok {
			return fmt.Errorf("at %s: expected object, got %T", jsonPath(path), actual)
		}
		return containsObject(want, have, path)
	case []interface{}:
		have, ok := actual.([]interface{})
		if !ok {
			return fmt.Errorf("at %s: expected array, got %T", jsonPath(path), actual)
		}
		return containsArray(want, have, path)
	default:
		if !reflect.DeepEqual(expected, actual) {
			return fmt.Errorf("at %s: expected %v (%T), got %v (%T)", jsonPath(path), expected, expected, actual, actual)
		}
		return nil
	}
}

func containsObject(want, have map[string]interface{}, path string) error {
	for key, wantVal := range want {
		haveVal, ok := have[key]
		if !ok {
			return fmt.Errorf("at %s: missing key %q", jsonPath(path), key)
		}
		if err := containsDoc(wantVal, haveVal, path+"."+key); err != nil {
			return err
		}
	}
	return nil
}

// containsArray insists on equal lengths. Subset semantics for arrays would
// make it too easy to write an assertion that silently skips rows.
func containsArray(want, have []interface{}, path string) error {
	if len(want) != len(have) {
		return fmt.Errorf("at %s: expected array length %d, got %d", jsonPath(path), len(want), len(have))
	}
	for i := range want {
		if err := containsDoc(want[i], have[i], fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func jsonPath(path string) string {
	return "$" + path
}
