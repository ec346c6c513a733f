package commons

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxoclaim/internal/errors"
)

// setupHTTPMock activates httpmock for the duration of the test. These tests
// stay sequential: httpmock swaps the process-wide default transport.
func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

const mockAPI = "https://commons.example.org/w/api.php"

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(Config{
		API:        mockAPI,
		RateLimit:  1000,
		CrawlLimit: 1000,
		MaxRetries: 3,
	})
	require.NoError(t, err)
	return client
}

func TestGetRetriesTransportErrors(t *testing.T) {
	setupHTTPMock(t)

	// First two attempts fail at the transport level, the third succeeds.
	attempts := 0
	httpmock.RegisterResponder("GET", mockAPI,
		func(r *http.Request) (*http.Response, error) {
			attempts++
			if attempts < 3 {
				return httpmock.ConnectionFailure(r)
			}
			resp := httpmock.NewStringResponse(http.StatusOK, `{
				"query": {"categorymembers": [
					{"pageid": 1, "ns": 14, "title": "Category:Iris - botanical illustrations"}
				]}
			}`)
			resp.Header.Set("Content-Type", "application/json")
			return resp, nil
		})

	client := newMockedClient(t)
	subcats, err := client.Subcategories(context.Background(), "Category:Iridaceae - botanical illustrations")
	require.NoError(t, err)

	assert.Equal(t, []string{"Category:Iris - botanical illustrations"}, subcats)
	assert.Equal(t, 3, attempts)
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	setupHTTPMock(t)

	attempts := 0
	httpmock.RegisterResponder("GET", mockAPI,
		func(r *http.Request) (*http.Response, error) {
			attempts++
			return httpmock.ConnectionFailure(r)
		})

	client := newMockedClient(t)
	_, err := client.Subcategories(context.Background(), "Category:Iridaceae - botanical illustrations")
	require.Error(t, err)

	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
	assert.Equal(t, 3, attempts, "every configured attempt is used")
}

func TestGetDoesNotRetryAPIErrors(t *testing.T) {
	setupHTTPMock(t)

	// A structured API rejection is deterministic; retrying would just
	// repeat the same answer.
	attempts := 0
	httpmock.RegisterResponder("GET", mockAPI,
		func(r *http.Request) (*http.Response, error) {
			attempts++
			resp := httpmock.NewStringResponse(http.StatusOK,
				`{"error": {"code": "invalidcategory", "info": "The category name isn't valid."}}`)
			resp.Header.Set("Content-Type", "application/json")
			return resp, nil
		})

	client := newMockedClient(t)
	_, err := client.Subcategories(context.Background(), "Category:::bogus")
	require.Error(t, err)

	assert.True(t, errors.IsCategory(err, errors.CategoryAPIResponse))
	assert.Equal(t, 1, attempts, "structured API errors must not be retried")
}
