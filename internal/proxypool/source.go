// File: internal/proxypool/source.go
package proxypool

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Source produces candidate endpoints for the pool. Fetch may be slow and may
// fail; the pool never calls it while holding its lock.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Endpoint, error)
}

// StaticSource serves a fixed list of configured endpoint strings. Entries
// that fail to parse are skipped rather than failing the whole fetch.
type StaticSource struct {
	Entries []string
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Fetch(ctx context.Context) ([]Endpoint, error) {
	out := make([]Endpoint, 0, len(s.Entries))
	for _, raw := range s.Entries {
		ep, err := ParseEndpoint(raw)
		if err != nil {
			continue
		}
		out = append(out, ep)
	}
	return out, nil
}

// TextSource fetches a newline-separated host:port list over HTTP.
type TextSource struct {
	URL    string
	Client *http.Client
}

func (s *TextSource) Name() string { return "text:" + s.URL }

func (s *TextSource) Fetch(ctx context.Context) ([]Endpoint, error) {
	body, err := fetchBody(ctx, s.Client, s.URL)
	if err != nil {
		return nil, err
	}

	var out []Endpoint
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ep, err := ParseEndpoint(line)
		if err != nil {
			continue
		}
		out = append(out, ep)
	}
	return out, nil
}

// HTMLSource scrapes a free-proxy-list style HTML table where the first two
// columns of each row are the IP and port.
type HTMLSource struct {
	URL    string
	Client *http.Client
}

func (s *HTMLSource) Name() string { return "html:" + s.URL }

func (s *HTMLSource) Fetch(ctx context.Context) ([]Endpoint, error) {
	body, err := fetchBody(ctx, s.Client, s.URL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []Endpoint
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		host := strings.TrimSpace(cells.Eq(0).Text())
		port, err := strconv.Atoi(strings.TrimSpace(cells.Eq(1).Text()))
		if host == "" || err != nil || port <= 0 || port > 65535 {
			return
		}
		out = append(out, Endpoint{Host: host, Port: port, Protocol: ProtocolHTTP})
	})
	return out, nil
}

func fetchBody(ctx context.Context, client *http.Client, url string) (string, error) {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
