package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/net/html"
)

const ddgEndpoint = "https://duckduckgo.com/html/"

// userAgent mimics a desktop browser; the HTML endpoint rejects bare clients.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type duckduckgo struct {
	enabled    bool
	maxResults int64
	httpClient *http.Client
}

// NewDuckDuckGo creates the DuckDuckGo search tool. It scrapes the HTML
// endpoint and needs no API key.
func NewDuckDuckGo() *duckduckgo {
	return &duckduckgo{
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (x *duckduckgo) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "tool-duckduckgo",
			Usage:       "Enable the DuckDuckGo search tool",
			Sources:     cli.EnvVars("CHACK_TOOL_DUCKDUCKGO"),
			Value:       true,
			Destination: &x.enabled,
		},
		&cli.IntFlag{
			Name:        "tool-duckduckgo-max-results",
			Usage:       "Maximum number of search results",
			Sources:     cli.EnvVars("CHACK_TOOL_DUCKDUCKGO_MAX_RESULTS"),
			Value:       6,
			Destination: &x.maxResults,
		},
	}
}

func (x *duckduckgo) Init(ctx context.Context) (bool, error) {
	return x.enabled, nil
}

func (x *duckduckgo) Prompt(ctx context.Context) string {
	return ""
}

func (x *duckduckgo) Specs() []*model.ToolSpec {
	return []*model.ToolSpec{
		{
			Name:        "duckduckgo_search",
			Description: "Search DuckDuckGo and return a short list of results",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {
						Type:        "string",
						Description: "Search query",
					},
				},
				Required: []string{"query"},
			},
		},
	}
}

func (x *duckduckgo) Execute(ctx context.Context, call model.ToolCall) (string, error) {
	query, _ := call.Args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "ERROR: Query cannot be empty", nil
	}

	maxResults := int(x.maxResults)
	if maxResults < 1 {
		maxResults = 1
	}
	if maxResults > 20 {
		maxResults = 20
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ddgEndpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return "ERROR: Failed to reach DuckDuckGo: " + err.Error(), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "ERROR: DuckDuckGo returned HTTP " + resp.Status, nil
	}

	results, err := parseResults(resp.Body)
	if err != nil {
		return "", goerr.Wrap(err, "failed to parse DuckDuckGo response")
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	return formatResults("DuckDuckGo", query, results), nil
}

type searchResult struct {
	Title string
	URL   string
}

// parseResults extracts result links (a.result__a) from the HTML endpoint.
func parseResults(r io.Reader) ([]searchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var results []searchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			title := strings.TrimSpace(nodeText(n))
			href := attr(n, "href")
			if title != "" && href != "" {
				results = append(results, searchResult{
					Title: title,
					URL:   normalizeURL(href),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return results, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, name := range strings.Fields(attr(n, "class")) {
		if name == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// normalizeURL resolves DuckDuckGo's redirect links (uddg parameter) to the
// target URL.
func normalizeURL(raw string) string {
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	} else if strings.HasPrefix(raw, "/") {
		raw = "https://duckduckgo.com" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	return raw
}

func formatResults(engine, query string, results []searchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("SUCCESS: No %s results found for '%s'", engine, query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SUCCESS: %s results for '%s' (top %d):", engine, query, len(results))
	for i, r := range results {
		fmt.Fprintf(&sb, "\n%d. %s - %s", i+1, r.Title, r.URL)
	}
	return sb.String()
}
