package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sensit/sensit/internal/config"
	"github.com/sensit/sensit/internal/scanner"
	"github.com/sensit/sensit/internal/types"
)

func crawl(t *testing.T, start string, cfg config.CrawlConfig) ([]scanner.Unit, []types.Warning) {
	t.Helper()
	var units []scanner.Unit
	var warns []types.Warning
	err := Source(start, cfg, nil)(context.Background(),
		func(u scanner.Unit) { units = append(units, u) },
		func(w types.Warning) { warns = append(warns, w) })
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	return units, warns
}

func testConfig() config.CrawlConfig {
	cfg := config.Default().Crawl
	cfg.MaxDepth = 2
	cfg.MaxPages = 50
	return cfg
}

func TestCrawlFollowsSameHostLinks(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/a">a</a> <a href="/b">b</a> <a href="https://elsewhere.invalid/x">ext</a>`))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("token here"))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/a#frag">dup</a>`))
	})

	units, warns := crawl(t, srv.URL, testConfig())
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	var got []string
	for _, u := range units {
		got = append(got, strings.TrimPrefix(u.Source, srv.URL))
	}
	sort.Strings(got)
	// root, /a, /b once each; the fragment variant of /a deduplicates
	if len(got) != 3 || got[0] != "" || got[1] != "/a" || got[2] != "/b" {
		t.Fatalf("crawled %v", got)
	}
}

func TestCrawlDepthBudget(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	link := func(next string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<a href="` + next + `">next</a>`))
		}
	}
	mux.HandleFunc("/", link("/d1"))
	mux.HandleFunc("/d1", link("/d2"))
	mux.HandleFunc("/d2", link("/d3"))
	mux.HandleFunc("/d3", link("/d4"))

	cfg := testConfig()
	cfg.MaxDepth = 2
	units, _ := crawl(t, srv.URL, cfg)
	// depth 0, 1, 2 fetched; /d3 is never enqueued
	if len(units) != 3 {
		var got []string
		for _, u := range units {
			got = append(got, u.Source)
		}
		t.Fatalf("expected 3 pages, crawled %v", got)
	}
}

func TestCrawlPageBudget(t *testing.T) {
	var hits atomic.Int64
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		// every page links to two fresh ones
		p := r.URL.Path
		w.Write([]byte(`<a href="` + p + `x">x</a><a href="` + p + `y">y</a>`))
	})

	cfg := testConfig()
	cfg.MaxDepth = 10
	cfg.MaxPages = 5
	units, _ := crawl(t, srv.URL+"/", cfg)
	if len(units) != 5 {
		t.Fatalf("expected 5 pages, got %d", len(units))
	}
	if hits.Load() != 5 {
		t.Fatalf("fetched %d pages, budget was 5", hits.Load())
	}
}

func TestCrawlSkipsNonTextContent(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/logo.png">img</a><script src="/app.js"></script>`))
	})
	mux.HandleFunc("/logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/app.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Write([]byte(`var key = "secret"`))
	})

	units, _ := crawl(t, srv.URL, testConfig())
	if len(units) != 2 {
		t.Fatalf("expected root and app.js only, got %d units", len(units))
	}
	for _, u := range units {
		if strings.HasSuffix(u.Source, ".png") {
			t.Fatalf("binary page emitted: %s", u.Source)
		}
	}
}

func TestCrawlFetchFailureWarns(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="/gone">gone</a>`))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	units, warns := crawl(t, srv.URL, testConfig())
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(units))
	}
	if len(warns) != 1 || warns[0].Stage != "crawl" {
		t.Fatalf("expected one crawl warning, got %v", warns)
	}
}

func TestCrawlSendsUserAgent(t *testing.T) {
	var agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.UserAgent = "sensit/test"
	crawl(t, srv.URL, cfg)
	if agent != "sensit/test" {
		t.Fatalf("user agent %q", agent)
	}
}

func TestCrawlRejectsBadScheme(t *testing.T) {
	err := Source("ftp://example.com", testConfig(), nil)(context.Background(),
		func(scanner.Unit) {}, func(types.Warning) {})
	if err == nil {
		t.Fatal("expected error for non-http scheme")
	}
}
