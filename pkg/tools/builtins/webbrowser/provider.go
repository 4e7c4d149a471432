// Package webbrowser implements the web_browser tool: it fetches a page
// and extracts either its visible text or its links.
package webbrowser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/justinlietz93/toolstream/pkg/api"
	"github.com/justinlietz93/toolstream/pkg/tools"
	"github.com/justinlietz93/toolstream/pkg/tools/registry"
)

const toolName = "web_browser"

var toolParametersJSON = json.RawMessage(`{
	"type": "object",
	"properties": {
		"url": {"type": "string"},
		"extract_type": {"type": "string", "enum": ["text", "links"]}
	},
	"required": ["url"]
}`)

// Provider implements registry.FunctionProvider for page fetch/extract.
type Provider struct {
	client *http.Client

	fetches *prometheus.CounterVec
}

var _ registry.FunctionProvider = (*Provider)(nil)

// New creates a Provider with the given request timeout.
func New(timeout time.Duration) *Provider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Provider{
		client: &http.Client{Timeout: timeout},
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolstream_web_browser_fetches_total",
				Help: "Total web_browser tool fetches by extract type and outcome",
			},
			[]string{"extract_type", "status"},
		),
	}
}

func (p *Provider) Name() string { return toolName }

func (p *Provider) Tools() []api.ToolDefinition {
	return []api.ToolDefinition{
		{
			Type:        "function",
			Name:        toolName,
			Description: "Fetches a web page and extracts its text or links",
			Parameters:  toolParametersJSON,
		},
	}
}

func (p *Provider) CanExecute(name string) bool { return name == toolName }

func (p *Provider) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	var args struct {
		URL         string `json:"url"`
		ExtractType string `json:"extract_type"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return p.fail("", call.ID, fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if strings.TrimSpace(args.URL) == "" {
		return p.fail(args.ExtractType, call.ID, "url is required"), nil
	}
	extractType := args.ExtractType
	if extractType == "" {
		extractType = "text"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
	if err != nil {
		return p.fail(extractType, call.ID, err.Error()), nil
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return p.fail(extractType, call.ID, fmt.Sprintf("fetch failed: %v", err)), nil
	}
	defer resp.Body.Close()

	doc, err := html.Parse(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return p.fail(extractType, call.ID, fmt.Sprintf("parse failed: %v", err)), nil
	}

	var output string
	switch extractType {
	case "links":
		output = strings.Join(extractLinks(doc), "\n")
	case "title":
		output = extractTitle(doc)
	default:
		output = extractText(doc)
	}

	p.fetches.WithLabelValues(extractType, "ok").Inc()
	return &tools.ToolResult{CallID: call.ID, Output: output}, nil
}

func (p *Provider) fail(extractType, callID, msg string) *tools.ToolResult {
	if extractType == "" {
		extractType = "text"
	}
	p.fetches.WithLabelValues(extractType, "error").Inc()
	return &tools.ToolResult{CallID: callID, Output: msg, IsError: true}
}

func extractText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				b.WriteString(trimmed)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func extractLinks(n *html.Node) []string {
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && attr.Val != "" {
					links = append(links, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return links
}

func extractTitle(n *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return title
}

func (p *Provider) Routes() []registry.Route { return nil }

func (p *Provider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.fetches}
}

func (p *Provider) Close() error { return nil }
