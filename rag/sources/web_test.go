package sources_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/mudler/localqa/rag/sources"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Web Sources", func() {
	var (
		ctx     context.Context
		server  *httptest.Server
		fetcher *Fetcher
	)

	BeforeEach(func() {
		ctx = context.Background()

		mux := http.NewServeMux()
		mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, "<html><body><p>First page</p></body></html>")
		})
		mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, "<html><body><p>Second page</p></body></html>")
		})
		mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, strings.Repeat("x", 2048))
		})
		mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>%[1]s/page1</loc></url>
<url><loc>%[1]s/missing</loc></url>
<url><loc>%[1]s/page2</loc></url>
</urlset>`, "http://"+r.Host)
		})

		server = httptest.NewServer(mux)
		DeferCleanup(server.Close)
		fetcher = NewFetcher(server.Client(), 1024, 0)
	})

	Describe("GetWebPage", func() {
		It("should download a page with its content type", func() {
			doc, err := fetcher.GetWebPage(ctx, server.URL+"/page1")
			Expect(err).ToNot(HaveOccurred())
			Expect(doc.ContentType).To(HavePrefix("text/html"))
			Expect(string(doc.Data)).To(ContainSubstring("First page"))
		})

		It("should handle invalid URLs", func() {
			_, err := fetcher.GetWebPage(ctx, "not-a-valid-url")
			Expect(err).To(HaveOccurred())
		})

		It("should handle non-existent pages", func() {
			_, err := fetcher.GetWebPage(ctx, server.URL+"/nonexistent")
			Expect(err).To(MatchError(ContainSubstring("404")))
		})

		It("should refuse oversized resources", func() {
			_, err := fetcher.GetWebPage(ctx, server.URL+"/big")
			Expect(err).To(MatchError(ContainSubstring("larger than")))
		})
	})

	Describe("GetWebSitemapContent", func() {
		It("should download the listed pages in order and skip broken ones", func() {
			docs, err := fetcher.Fetch(ctx, server.URL+"/sitemap.xml")
			Expect(err).ToNot(HaveOccurred())
			Expect(docs).To(HaveLen(2))
			Expect(string(docs[0].Data)).To(ContainSubstring("First page"))
			Expect(string(docs[1].Data)).To(ContainSubstring("Second page"))
		})

		It("should stop at the page limit", func() {
			docs, err := NewFetcher(server.Client(), 0, 1).GetWebSitemapContent(ctx, server.URL+"/sitemap.xml")
			Expect(err).ToNot(HaveOccurred())
			Expect(docs).To(HaveLen(1))
		})

		It("should handle non-existent sitemap URLs", func() {
			_, err := fetcher.GetWebSitemapContent(ctx, server.URL+"/nothing/sitemap.xml")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("NewHTTPClient", func() {
		It("should refuse loopback destinations by default", func() {
			guarded := NewFetcher(NewHTTPClient(time.Second, false), 0, 0)

			_, err := guarded.GetWebPage(ctx, server.URL+"/page1")
			Expect(errors.Is(err, ErrForbiddenDestination)).To(BeTrue())

			_, err = guarded.Fetch(ctx, server.URL+"/sitemap.xml")
			Expect(errors.Is(err, ErrForbiddenDestination)).To(BeTrue())
		})

		It("should refuse host names that resolve to loopback", func() {
			port := server.Listener.Addr().(*net.TCPAddr).Port
			_, err := NewFetcher(NewHTTPClient(time.Second, false), 0, 0).GetWebPage(ctx, fmt.Sprintf("http://localhost:%d/page1", port))
			Expect(errors.Is(err, ErrForbiddenDestination)).To(BeTrue())
		})

		It("should reach private destinations when allowed", func() {
			doc, err := NewFetcher(NewHTTPClient(time.Second, true), 0, 0).GetWebPage(ctx, server.URL+"/page1")
			Expect(err).ToNot(HaveOccurred())
			Expect(string(doc.Data)).To(ContainSubstring("First page"))
		})

		DescribeTable("IsPublicIP",
			func(addr string, public bool) {
				Expect(IsPublicIP(net.ParseIP(addr))).To(Equal(public))
			},
			Entry("loopback", "127.0.0.1", false),
			Entry("ipv6 loopback", "::1", false),
			Entry("private", "10.1.2.3", false),
			Entry("private 192.168", "192.168.0.10", false),
			Entry("metadata endpoint", "169.254.169.254", false),
			Entry("unspecified", "0.0.0.0", false),
			Entry("unique local", "fd00::1", false),
			Entry("public", "93.184.216.34", true),
			Entry("public ipv6", "2606:4700::1111", true),
		)
	})

	It("should recognise sitemap URLs", func() {
		Expect(IsSitemap("https://example.com/sitemap.xml")).To(BeTrue())
		Expect(IsSitemap("https://example.com/sitemap.xml?page=2")).To(BeTrue())
		Expect(IsSitemap("https://example.com/about")).To(BeFalse())
	})
})
