package scan_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ampscan/ampscan/internal/metrics"
	"github.com/ampscan/ampscan/internal/scan"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fakeOracle struct {
	reports map[string]scan.Report
	err     error
	calls   []string
}

func (o *fakeOracle) Validate(_ context.Context, url string) (scan.Report, error) {
	o.calls = append(o.calls, url)
	if o.err != nil {
		return scan.Report{}, o.err
	}
	report, ok := o.reports[url]
	if !ok {
		return scan.Report{URL: url}, nil
	}
	return report, nil
}

type fakeClassifier struct {
	statuses map[string]scan.AcceptanceStatus
	err      error
}

func (c *fakeClassifier) Classify(_ context.Context, verr scan.ValidationError) (string, scan.AcceptanceStatus, error) {
	if c.err != nil {
		return "", "", c.err
	}
	status, ok := c.statuses[verr.Code]
	if !ok {
		status = scan.StatusNew
	}
	return "slug-" + verr.Code, status, nil
}

type fakePublisher struct {
	err      error
	topics   []string
	payloads []any
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return fmt.Sprintf("msg-%d", len(p.topics)), nil
}

func errorReport(url string, codes ...string) scan.Report {
	r := scan.Report{URL: url}
	for _, code := range codes {
		r.Results = append(r.Results, scan.Result{
			Error:     scan.ValidationError{Code: code},
			Sanitized: true,
		})
	}
	return r
}

func TestValidateAndStoreCountsEachURLOnce(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{reports: map[string]scan.Report{
		// Three raw errors on one URL still count the URL once.
		"https://example.com/a": errorReport("https://example.com/a",
			scan.CodeInvalidElement, scan.CodeInvalidAttribute, scan.CodeExcessiveCSS),
		"https://example.com/b": {URL: "https://example.com/b"},
	}}
	classifier := &fakeClassifier{statuses: map[string]scan.AcceptanceStatus{}}
	scanner := scan.NewScanner(oracle, classifier, zap.NewNop())

	_, err := scanner.ValidateAndStore(context.Background(), "https://example.com/a", "post")
	require.NoError(t, err)
	_, err = scanner.ValidateAndStore(context.Background(), "https://example.com/b", "post")
	require.NoError(t, err)

	counters := scanner.Counters()
	require.Equal(t, 2, counters.NumberCrawled)
	require.Equal(t, 1, counters.TotalErrors)
	require.Equal(t, 1, counters.UnacceptedErrors)
	require.Equal(t, scan.TypeValidity{Valid: 1, Total: 2}, counters.ValidityByType["post"])
}

func TestValidateAndStoreAcceptedErrorsDoNotCountAsUnaccepted(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{reports: map[string]scan.Report{
		"https://example.com/a": errorReport("https://example.com/a", scan.CodeInvalidElement),
	}}
	classifier := &fakeClassifier{statuses: map[string]scan.AcceptanceStatus{
		scan.CodeInvalidElement: scan.StatusAckAccepted,
	}}
	scanner := scan.NewScanner(oracle, classifier, zap.NewNop())

	_, err := scanner.ValidateAndStore(context.Background(), "https://example.com/a", "home")
	require.NoError(t, err)

	counters := scanner.Counters()
	require.Equal(t, 1, counters.TotalErrors)
	require.Equal(t, 0, counters.UnacceptedErrors)
	// A URL whose errors are all accepted counts as valid for its type.
	require.Equal(t, scan.TypeValidity{Valid: 1, Total: 1}, counters.ValidityByType["home"])
}

func TestValidateAndStoreOracleFailureLeavesCountersUntouched(t *testing.T) {
	t.Parallel()

	oracleErr := &scan.FetchError{URL: "https://example.com/a", StatusCode: 503}
	oracle := &fakeOracle{err: oracleErr}
	scanner := scan.NewScanner(oracle, &fakeClassifier{}, zap.NewNop())

	_, err := scanner.ValidateAndStore(context.Background(), "https://example.com/a", "post")
	require.ErrorIs(t, err, oracleErr)

	counters := scanner.Counters()
	require.Equal(t, 0, counters.NumberCrawled)
	require.Equal(t, 0, counters.TotalErrors)
	require.Empty(t, counters.ValidityByType)
}

func TestValidateAndStoreClassifierFailureAborts(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{reports: map[string]scan.Report{
		"https://example.com/a": errorReport("https://example.com/a", scan.CodeInvalidElement),
	}}
	classifier := &fakeClassifier{err: errors.New("store unavailable")}
	scanner := scan.NewScanner(oracle, classifier, zap.NewNop())

	_, err := scanner.ValidateAndStore(context.Background(), "https://example.com/a", "post")
	require.Error(t, err)
	require.Equal(t, 0, scanner.Counters().NumberCrawled)
}

func TestValidateAndStorePublishesAdvisoryEvent(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{reports: map[string]scan.Report{
		"https://example.com/a": errorReport("https://example.com/a", scan.CodeInvalidElement),
	}}
	pub := &fakePublisher{}
	scanner := scan.NewScanner(oracle, &fakeClassifier{}, zap.NewNop(),
		scan.WithPublisher(pub, "scan-results"),
		scan.WithRunID("run-1"),
	)

	_, err := scanner.ValidateAndStore(context.Background(), "https://example.com/a", "post")
	require.NoError(t, err)

	require.Equal(t, []string{"scan-results"}, pub.topics)
	payload, ok := pub.payloads[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "run-1", payload["run_id"])
	require.Equal(t, "https://example.com/a", payload["url"])
	require.Equal(t, 1, payload["errors"])
	require.Equal(t, 1, payload["unaccepted"])
}

func TestValidateAndStorePublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{reports: map[string]scan.Report{}}
	pub := &fakePublisher{err: errors.New("broker down")}
	scanner := scan.NewScanner(oracle, &fakeClassifier{}, zap.NewNop(),
		scan.WithPublisher(pub, "scan-results"),
	)

	_, err := scanner.ValidateAndStore(context.Background(), "https://example.com/a", "post")
	require.NoError(t, err)
	require.Equal(t, 1, scanner.Counters().NumberCrawled)
}
