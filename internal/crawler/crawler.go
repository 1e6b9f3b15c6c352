// Package crawler acquires scan units from the web: a bounded,
// same-host breadth-first crawl starting at one URL.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sensit/sensit/internal/config"
	"github.com/sensit/sensit/internal/scanner"
	"github.com/sensit/sensit/internal/types"
	"golang.org/x/net/html"
)

// content types worth scanning; everything else is fetched headers-only
// and dropped
var textTypes = []string{
	"text/html",
	"text/plain",
	"application/json",
	"application/javascript",
	"text/javascript",
	"application/x-javascript",
}

const maxBodyBytes = 4 << 20

type page struct {
	url   *url.URL
	depth int
}

// Source streams fetched pages starting at start, following links only
// on the same host, down to cfg.MaxDepth and at most cfg.MaxPages
// fetches. Fetch failures degrade to warnings.
func Source(start string, cfg config.CrawlConfig, client *http.Client) scanner.UnitSource {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return func(ctx context.Context, emit func(scanner.Unit), warn func(types.Warning)) error {
		root, err := url.Parse(start)
		if err != nil {
			return fmt.Errorf("crawl start: %w", err)
		}
		if root.Scheme != "http" && root.Scheme != "https" {
			return fmt.Errorf("crawl start: unsupported scheme %q", root.Scheme)
		}

		queue := []page{{url: root, depth: 0}}
		visited := map[string]bool{canonical(root): true}
		fetched := 0

		for len(queue) > 0 && fetched < cfg.MaxPages {
			if ctx.Err() != nil {
				return nil
			}
			p := queue[0]
			queue = queue[1:]
			fetched++

			body, ctype, err := fetch(ctx, client, cfg.UserAgent, p.url)
			if err != nil {
				warn(types.Warning{Stage: "crawl", Source: p.url.String(), Msg: err.Error()})
				continue
			}
			if !scannable(ctype) {
				continue
			}
			emit(scanner.Unit{Source: p.url.String(), Text: body})

			if p.depth >= cfg.MaxDepth || !strings.HasPrefix(ctype, "text/html") {
				continue
			}
			for _, link := range extractLinks(body, p.url) {
				if link.Host != root.Host {
					continue
				}
				key := canonical(link)
				if visited[key] {
					continue
				}
				visited[key] = true
				queue = append(queue, page{url: link, depth: p.depth + 1})
			}
		}
		return nil
	}
}

func fetch(ctx context.Context, client *http.Client, agent string, u *url.URL) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", "", err
	}
	if agent != "" {
		req.Header.Set("User-Agent", agent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("status %d", resp.StatusCode)
	}
	ctype := resp.Header.Get("Content-Type")
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", err
	}
	return string(b), ctype, nil
}

func scannable(ctype string) bool {
	for _, t := range textTypes {
		if strings.HasPrefix(ctype, t) {
			return true
		}
	}
	return false
}

// extractLinks pulls anchor hrefs and script srcs out of the page,
// resolved against the page URL. Script sources matter because bundled
// JavaScript is where web-exposed credentials usually hide. Fragments
// are stripped; parse errors yield no links since html.Parse always
// recovers.
func extractLinks(body string, base *url.URL) []*url.URL {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}
	var out []*url.URL
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			var attr string
			switch n.Data {
			case "a":
				attr = "href"
			case "script":
				attr = "src"
			}
			if attr != "" {
				for _, a := range n.Attr {
					if a.Key != attr {
						continue
					}
					ref, err := url.Parse(strings.TrimSpace(a.Val))
					if err != nil {
						continue
					}
					abs := base.ResolveReference(ref)
					if abs.Scheme != "http" && abs.Scheme != "https" {
						continue
					}
					abs.Fragment = ""
					out = append(out, abs)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return out
}

func canonical(u *url.URL) string {
	c := *u
	c.Fragment = ""
	return c.String()
}
