package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

type brave struct {
	enabled    bool
	apiKey     string
	maxResults int64
	httpClient *http.Client
}

// NewBrave creates the Brave Search API tool. It is enabled only when an API
// key is configured.
func NewBrave() *brave {
	return &brave{
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (x *brave) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "tool-brave",
			Usage:       "Enable the Brave Search tool",
			Sources:     cli.EnvVars("CHACK_TOOL_BRAVE"),
			Value:       true,
			Destination: &x.enabled,
		},
		&cli.StringFlag{
			Name:        "brave-api-key",
			Usage:       "Brave Search API key",
			Sources:     cli.EnvVars("BRAVE_API_KEY"),
			Destination: &x.apiKey,
		},
		&cli.IntFlag{
			Name:        "tool-brave-max-results",
			Usage:       "Maximum number of search results",
			Sources:     cli.EnvVars("CHACK_TOOL_BRAVE_MAX_RESULTS"),
			Value:       6,
			Destination: &x.maxResults,
		},
	}
}

func (x *brave) Init(ctx context.Context) (bool, error) {
	return x.enabled && x.apiKey != "", nil
}

func (x *brave) Prompt(ctx context.Context) string {
	return ""
}

func (x *brave) Specs() []*model.ToolSpec {
	return []*model.ToolSpec{
		{
			Name:        "brave_search",
			Description: "Search the web via the Brave Search API and return a short list of results",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {
						Type:        "string",
						Description: "Search query",
					},
					"count": {
						Type:        "integer",
						Description: "Number of results to return (1-20)",
					},
					"country": {
						Type:        "string",
						Description: "Country code, e.g. 'US'",
					},
					"freshness": {
						Type:        "string",
						Description: "Result freshness filter",
						Enum:        []any{"pd", "pw", "pm", "py"},
					},
				},
				Required: []string{"query"},
			},
		},
	}
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (x *brave) Execute(ctx context.Context, call model.ToolCall) (string, error) {
	query, _ := call.Args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "ERROR: Query cannot be empty", nil
	}

	count := int(x.maxResults)
	if v, ok := call.Args["count"].(float64); ok && v > 0 {
		count = int(v)
	}
	if count < 1 {
		count = 1
	}
	if count > 20 {
		count = 20
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))
	if country, ok := call.Args["country"].(string); ok && country != "" {
		params.Set("country", country)
	}
	if freshness, ok := call.Args["freshness"].(string); ok && freshness != "" {
		params.Set("freshness", freshness)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, braveEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", x.apiKey)

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return "ERROR: Brave search failed: " + err.Error(), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "ERROR: Brave API returned HTTP " + resp.Status, nil
	}

	var body braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", goerr.Wrap(err, "failed to decode Brave response")
	}

	results := make([]searchResult, 0, len(body.Web.Results))
	for _, r := range body.Web.Results {
		results = append(results, searchResult{Title: r.Title, URL: r.URL})
	}
	if len(results) > count {
		results = results[:count]
	}

	return formatResults("Brave", query, results), nil
}
