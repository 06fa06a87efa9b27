// Package reporting renders evaluation outcomes for consumers other than the
// terminal: JUnit XML for CI pipelines and plain-language interpretation of
// accuracy figures.
package reporting

import (
	"encoding/xml"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/clinbench/recoeval/internal/models"
)

// JUnit XML schema types

// JUnitTestSuites is the top-level container.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite maps to one service under test.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase maps to one combination evaluated against a service.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
}

// JUnitFailure marks a combination where no sample hit.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitError marks a service that produced no usable results.
type JUnitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}

// JUnitProperty is a key-value metadata entry.
type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ConvertToJUnit maps an aggregate result onto JUnit: one suite per service,
// one case per combination. A combination with samples but zero hits is a
// failure; a service-level error becomes a single errored case so the suite
// still shows up in CI.
func ConvertToJUnit(name string, result *models.AggregateResult) *JUnitTestSuites {
	suites := &JUnitTestSuites{}
	timestamp := time.Now().UTC().Format(time.RFC3339)

	serviceIDs := make([]string, 0, len(result.PerService))
	for id := range result.PerService {
		serviceIDs = append(serviceIDs, id)
	}
	sort.Strings(serviceIDs)

	for _, id := range serviceIDs {
		svc := result.PerService[id]
		suite := JUnitTestSuite{
			Name:      fmt.Sprintf("%s/%s", name, id),
			Timestamp: timestamp,
			Properties: []JUnitProperty{
				{Name: "overall_accuracy", Value: fmt.Sprintf("%.4f", svc.OverallAccuracy)},
			},
		}

		if svc.Error != "" {
			suite.Tests = 1
			suite.Errors = 1
			suite.TestCases = append(suite.TestCases, JUnitTestCase{
				Name:      id,
				Classname: id,
				Error:     &JUnitError{Message: svc.Error, Type: "ServiceError"},
			})
		} else {
			labels := make([]string, 0, len(svc.CombinationResults))
			for label := range svc.CombinationResults {
				labels = append(labels, label)
			}
			sort.Strings(labels)
			for _, label := range labels {
				suite.Tests++
				tc := convertCombination(id, label, svc.CombinationResults[label])
				if tc.Failure != nil {
					suite.Failures++
				}
				suite.Time += tc.Time
				suite.TestCases = append(suite.TestCases, tc)
			}
		}

		suites.Tests += suite.Tests
		suites.Failures += suite.Failures
		suites.Errors += suite.Errors
		suites.Time += suite.Time
		suites.TestSuites = append(suites.TestSuites, suite)
	}

	return suites
}

func convertCombination(serviceID, label string, cr models.CombinationResult) JUnitTestCase {
	tc := JUnitTestCase{
		Name:      fmt.Sprintf("%s/%s", label, cr.Combination.Key()),
		Classname: serviceID,
		Time:      cr.AvgProcessingTimeMs * float64(cr.TotalSamples) / 1000.0,
	}
	if cr.TotalSamples > 0 && cr.HitSamples == 0 {
		tc.Failure = &JUnitFailure{
			Message: fmt.Sprintf("0/%d samples hit", cr.TotalSamples),
			Type:    "ZeroAccuracy",
			Body:    fmt.Sprintf("accuracy=%.4f failed_samples=%d", cr.Accuracy, cr.FailedSamples),
		}
	}
	return tc
}

// WriteJUnitXML writes the aggregate result as JUnit XML to path.
func WriteJUnitXML(name string, result *models.AggregateResult, path string) error {
	suites := ConvertToJUnit(name, result)

	data, err := xml.MarshalIndent(suites, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JUnit XML: %w", err)
	}

	output := append([]byte(xml.Header), data...)
	return os.WriteFile(path, output, 0644)
}
