package commons

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxoclaim/internal/errors"
	"taxoclaim/internal/wikibase"
)

// newTestClient spins up a fake Action API endpoint and returns a client
// pointed at it. The route function receives the parsed request and returns
// the JSON body to serve.
func newTestClient(t *testing.T, route func(r *http.Request) string) *Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("Failed to parse request form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := io.WriteString(w, route(r)); err != nil {
			t.Errorf("Failed to write response: %v", err)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		API:        srv.URL + "/w/api.php",
		Username:   "TestBot",
		Password:   "bot-password",
		RateLimit:  1000, // effectively unlimited in tests
		CrawlLimit: 1000,
		MaxRetries: 2,
	})
	require.NoError(t, err)
	return client
}

// tokenResponses answers the token and login requests mwclient makes before
// a write, and defers everything else to next.
func tokenResponses(next func(r *http.Request) string) func(r *http.Request) string {
	return func(r *http.Request) string {
		switch {
		case r.Form.Get("meta") == "tokens" && r.Form.Get("type") == "login":
			return `{"batchcomplete":true,"query":{"tokens":{"logintoken":"login-token+\\"}}}`
		case r.Form.Get("meta") == "tokens":
			return `{"batchcomplete":true,"query":{"tokens":{"csrftoken":"csrf-token+\\"}}}`
		case r.Form.Get("action") == "login":
			return `{"login":{"result":"Success","lguserid":7,"lgusername":"TestBot"}}`
		default:
			return next(r)
		}
	}
}

func TestSubcategoriesDrainsContinue(t *testing.T) {
	t.Parallel()

	var calls []string
	client := newTestClient(t, func(r *http.Request) string {
		require.Equal(t, "categorymembers", r.Form.Get("list"))
		require.Equal(t, "Category:Iridaceae - botanical illustrations", r.Form.Get("cmtitle"))
		require.Equal(t, "subcat", r.Form.Get("cmtype"))

		calls = append(calls, r.Form.Get("cmcontinue"))
		if r.Form.Get("cmcontinue") == "" {
			return `{
				"continue": {"cmcontinue": "subcat|IRIS|42", "continue": "-||"},
				"query": {"categorymembers": [
					{"pageid": 1, "ns": 14, "title": "Category:Iris - botanical illustrations"},
					{"pageid": 2, "ns": 14, "title": "Category:Crocus - botanical illustrations"}
				]}
			}`
		}
		return `{
			"query": {"categorymembers": [
				{"pageid": 3, "ns": 14, "title": "Category:Gladiolus - botanical illustrations"}
			]}
		}`
	})

	// The Category: prefix is added when absent
	subcats, err := client.Subcategories(context.Background(), "Iridaceae - botanical illustrations")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Category:Iris - botanical illustrations",
		"Category:Crocus - botanical illustrations",
		"Category:Gladiolus - botanical illustrations",
	}, subcats)
	assert.Equal(t, []string{"", "subcat|IRIS|42"}, calls, "second request must carry the continue token")
}

func TestFilesInCategory(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(r *http.Request) string {
		require.Equal(t, "file", r.Form.Get("cmtype"))
		return `{
			"query": {"categorymembers": [
				{"pageid": 10, "ns": 6, "title": "File:Iris sibirica Sturm52.jpg"},
				{"pageid": 11, "ns": 6, "title": "File:Iris sibirica Thomé.jpg"}
			]}
		}`
	})

	files, err := client.FilesInCategory(context.Background(), "Category:Iris sibirica - botanical illustrations")
	require.NoError(t, err)
	assert.Equal(t, []string{"File:Iris sibirica Sturm52.jpg", "File:Iris sibirica Thomé.jpg"}, files)
}

func TestFileInfo(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(r *http.Request) string {
		require.Equal(t, "info", r.Form.Get("prop"))
		require.Equal(t, "File:Iris sibirica Sturm52.jpg", r.Form.Get("titles"))
		return `{
			"query": {"pages": [
				{"pageid": 4711, "ns": 6, "title": "File:Iris sibirica Sturm52.jpg", "lastrevid": 987654321}
			]}
		}`
	})

	// The File: prefix is added when absent
	info, err := client.FileInfo(context.Background(), "Iris sibirica Sturm52.jpg")
	require.NoError(t, err)

	assert.Equal(t, int64(4711), info.PageID)
	assert.Equal(t, int64(987654321), info.LastRevID)
	assert.Equal(t, "M4711", info.MediaInfoID())
}

func TestFileInfoMissingPage(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(r *http.Request) string {
		return `{
			"query": {"pages": [
				{"ns": 6, "title": "File:Does not exist.jpg", "missing": true}
			]}
		}`
	})

	_, err := client.FileInfo(context.Background(), "File:Does not exist.jpg")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestFileCategories(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(r *http.Request) string {
		require.Equal(t, "categories", r.Form.Get("prop"))
		return `{
			"query": {"pages": [
				{"pageid": 4711, "ns": 6, "title": "File:Iris sibirica Sturm52.jpg", "categories": [
					{"ns": 14, "title": "Category:Iris sibirica - botanical illustrations"},
					{"ns": 14, "title": "Category:Jacob Sturm illustrations"}
				]}
			]}
		}`
	})

	cats, err := client.FileCategories(context.Background(), "File:Iris sibirica Sturm52.jpg")
	require.NoError(t, err)
	assert.Len(t, cats, 2)
	assert.Contains(t, cats, "Category:Iris sibirica - botanical illustrations")
}

func TestStatementValues(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(r *http.Request) string {
		require.Equal(t, "wbgetentities", r.Form.Get("action"))
		require.Equal(t, "M4711", r.Form.Get("ids"))
		return `{
			"entities": {
				"M4711": {
					"id": "M4711",
					"pageid": 4711,
					"statements": {
						"P180": [
							{"mainsnak": {"snaktype": "value", "property": "P180",
								"datavalue": {"value": {"entity-type": "item", "id": "Q158086"}, "type": "wikibase-entityid"}},
								"type": "statement", "rank": "preferred"},
							{"mainsnak": {"snaktype": "value", "property": "P180",
								"datavalue": {"value": {"entity-type": "item", "id": "Q157876"}, "type": "wikibase-entityid"}},
								"type": "statement", "rank": "normal"}
						]
					}
				}
			},
			"success": 1
		}`
	})

	values, err := client.StatementValues(context.Background(), "M4711", "P180")
	require.NoError(t, err)
	assert.Equal(t, []string{"Q158086", "Q157876"}, values)
}

func TestStatementValuesEmptyStatements(t *testing.T) {
	t.Parallel()

	// Entities without structured data serialize statements as an empty array
	client := newTestClient(t, func(r *http.Request) string {
		return `{"entities": {"M4711": {"id": "M4711", "pageid": 4711, "statements": []}}, "success": 1}`
	})

	values, err := client.StatementValues(context.Background(), "M4711", "P180")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestStatementValuesMissingEntity(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(r *http.Request) string {
		return `{"entities": {"M999": {"id": "M999", "missing": ""}}, "success": 1}`
	})

	_, err := client.StatementValues(context.Background(), "M999", "P180")
	require.Error(t, err)
	assert.True(t, errors.IsEntityMissing(err))
}

func TestStatementValuesNoSuchEntityError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(r *http.Request) string {
		return `{"error": {"code": "no-such-entity", "info": "Could not find an entity with the ID \"M999\"."}}`
	})

	_, err := client.StatementValues(context.Background(), "M999", "P180")
	require.Error(t, err)
	assert.True(t, errors.IsEntityMissing(err))
}

func TestWriteClaims(t *testing.T) {
	t.Parallel()

	var editForm map[string]string
	client := newTestClient(t, tokenResponses(func(r *http.Request) string {
		require.Equal(t, "wbeditentity", r.Form.Get("action"))
		editForm = map[string]string{
			"id":      r.Form.Get("id"),
			"data":    r.Form.Get("data"),
			"token":   r.Form.Get("token"),
			"summary": r.Form.Get("summary"),
		}
		return `{"entity": {"id": "M4711"}, "success": 1}`
	}))

	claim := wikibase.NewItemClaim("P180", "Q158086", wikibase.RankPreferred)
	err := client.WriteClaims(context.Background(), "M4711", []wikibase.Claim{claim}, "Add depicts claim for Q158086")
	require.NoError(t, err)

	require.NotNil(t, editForm)
	assert.Equal(t, "M4711", editForm["id"])
	assert.Equal(t, "csrf-token+\\", editForm["token"])
	assert.Equal(t, "Add depicts claim for Q158086", editForm["summary"])

	var payload struct {
		Claims []map[string]any `json:"claims"`
	}
	require.NoError(t, json.Unmarshal([]byte(editForm["data"]), &payload))
	require.Len(t, payload.Claims, 1)
	assert.Equal(t, "preferred", payload.Claims[0]["rank"])
}

func TestWriteClaimsRequiresCredentials(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("No request should reach the API without credentials")
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{API: srv.URL + "/w/api.php"})
	require.NoError(t, err)

	claim := wikibase.NewItemClaim("P180", "Q158086", wikibase.RankNormal)
	err = client.WriteClaims(context.Background(), "M1", []wikibase.Claim{claim}, "test")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestPermalink(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{API: "https://commons.wikimedia.org/w/api.php"})
	require.NoError(t, err)

	got := client.Permalink("File:Iris sibirica Sturm52.jpg", 987654321)
	assert.Equal(t,
		"https://commons.wikimedia.org/w/index.php?title=File:Iris_sibirica_Sturm52.jpg&oldid=987654321",
		got)
}

func TestEncodeTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"spaces become underscores", "File:Iris sibirica.jpg", "File:Iris_sibirica.jpg"},
		{"parentheses are escaped", "File:Iris (plant).jpg", "File:Iris_%28plant%29.jpg"},
		{"colon and slash survive", "File:A/B v1.0.jpg", "File:A/B_v1.0.jpg"},
		{"unicode is percent encoded", "File:Thomé.jpg", "File:Thom%C3%A9.jpg"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, encodeTitle(tt.title))
		})
	}
}
