package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/mudler/localqa/pkg/client"
	"github.com/mudler/localqa/rag/llm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeProvider struct {
	answer string
	err    error
	prompt string
}

func (f *fakeProvider) Complete(_ context.Context, _, prompt string) (string, error) {
	f.prompt = prompt
	return f.answer, f.err
}

func testConfig() config {
	return config{
		Address:        ":0",
		CORSOrigins:    []string{"*"},
		MaxUploadBytes: "1M",
		TopK:           3,
		DefaultModels:  []llm.ModelID{llm.GPT4o},
	}
}

var _ = Describe("API", func() {
	var (
		server  *httptest.Server
		qa      *client.Client
		a       *app
		gpt     *fakeProvider
		mistral *fakeProvider
	)

	start := func(cfg config) {
		var err error
		a, err = newAppWith(cfg, map[llm.ModelID]llm.Provider{llm.GPT4o: gpt, llm.Mistral: mistral}, nil)
		Expect(err).ToNot(HaveOccurred())

		server = httptest.NewServer(newAPI(cfg, a))
		DeferCleanup(server.Close)
		qa = client.NewClient(server.URL)
	}

	BeforeEach(func() {
		gpt = &fakeProvider{answer: "It greets the world."}
		mistral = &fakeProvider{err: errors.New("upstream is down")}

		start(testConfig())
	})

	upload := func(text string) string {
		id, err := qa.Upload("notes.txt", "text/plain", strings.NewReader(text))
		Expect(err).ToNot(HaveOccurred())
		Expect(id).ToNot(BeEmpty())
		return id
	}

	It("should answer questions about an uploaded document", func() {
		id := upload("Hello world\n\nFoo bar\nworld peace\n")

		responses, err := qa.AskQuestion(id, "world", "gpt-4o")
		Expect(err).ToNot(HaveOccurred())
		Expect(responses).To(Equal(map[string]string{"gpt-4o": "It greets the world."}))
		Expect(gpt.prompt).To(Equal("Instruction: world\n\nContext:\n1. Hello world\n2. world peace\n3. Foo bar\n\nResponse:"))
	})

	It("should mark a failed model without losing the others", func() {
		id := upload("Hello world\n")

		responses, err := qa.AskQuestion(id, "Hello?", "gpt-4o", "mistral")
		Expect(err).ToNot(HaveOccurred())
		Expect(responses).To(HaveLen(2))
		Expect(responses["gpt-4o"]).To(Equal("It greets the world."))
		Expect(responses["mistral"]).To(HavePrefix("error: "))
		Expect(responses["mistral"]).To(ContainSubstring("upstream is down"))
	})

	It("should ask the default models when none are selected", func() {
		id := upload("Hello world\n")

		responses, err := qa.AskQuestion(id, "Hello?")
		Expect(err).ToNot(HaveOccurred())
		Expect(responses).To(HaveKey("gpt-4o"))
		Expect(responses).ToNot(HaveKey("mistral"))
	})

	It("should accept models[] form fields", func() {
		id := upload("Hello world\n")

		resp, err := http.PostForm(server.URL+"/ask-question/", map[string][]string{
			"session_id": {id},
			"question":   {"Hello?"},
			"models[]":   {"mistral"},
		})
		Expect(err).ToNot(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		body, _ := io.ReadAll(resp.Body)
		Expect(string(body)).To(ContainSubstring(`"mistral":"error: `))
		Expect(string(body)).ToNot(ContainSubstring("gpt-4o"))
	})

	It("should reject unknown models", func() {
		id := upload("Hello world\n")

		_, err := qa.AskQuestion(id, "Hello?", "gpt-9")
		var apiErr *client.Error
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(gpt.prompt).To(BeEmpty())
	})

	It("should reject questions without a session id", func() {
		_, err := qa.AskQuestion("", "Hello?")
		var apiErr *client.Error
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("should report closed sessions as not found", func() {
		id := upload("Hello world\n")
		Expect(qa.CloseSession(id)).To(Succeed())

		_, err := qa.AskQuestion(id, "Hello?", "gpt-4o")
		var apiErr *client.Error
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusNotFound))
		Expect(gpt.prompt).To(BeEmpty())

		err = qa.CloseSession(id)
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("should reject unsupported files", func() {
		_, err := qa.Upload("tool.exe", "application/x-msdownload", strings.NewReader("MZ"))
		var apiErr *client.Error
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("should fail on documents without text", func() {
		_, err := qa.Upload("blank.txt", "text/plain", strings.NewReader("\n  \n"))
		var apiErr *client.Error
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusInternalServerError))
	})

	It("should fail on broken containers", func() {
		_, err := qa.Upload("broken.pdf", "application/pdf", strings.NewReader("not a pdf"))
		var apiErr *client.Error
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusInternalServerError))
		Expect(apiErr.Message).To(ContainSubstring("extraction failed"))
	})

	It("should sniff uploads without a content type", func() {
		_, err := qa.Upload("notes", "", strings.NewReader("Plain words here\n"))
		Expect(err).ToNot(HaveOccurred())
	})

	It("should index a sitemap as one session", func() {
		cfg := testConfig()
		cfg.SourcesAllowPrivate = true
		start(cfg)

		site := http.NewServeMux()
		site.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/xml")
			io.WriteString(w, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"><url><loc>http://`+r.Host+`/a</loc></url><url><loc>http://`+r.Host+`/tool.exe</loc></url><url><loc>http://`+r.Host+`/b</loc></url></urlset>`)
		})
		site.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, "<p>The world is round</p>")
		})
		site.HandleFunc("/tool.exe", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/x-msdownload")
			io.WriteString(w, "MZ")
		})
		site.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			io.WriteString(w, "Unrelated text\n")
		})
		siteServer := httptest.NewServer(site)
		DeferCleanup(siteServer.Close)

		id, err := qa.UploadURL(siteServer.URL + "/sitemap.xml")
		Expect(err).ToNot(HaveOccurred())

		_, err = qa.AskQuestion(id, "world", "gpt-4o")
		Expect(err).ToNot(HaveOccurred())
		Expect(gpt.prompt).To(ContainSubstring("1. The world is round\n2. Unrelated text\n"))
	})

	It("should refuse to download from loopback addresses", func() {
		secret := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			io.WriteString(w, "db_password hunter2\n")
		}))
		DeferCleanup(secret.Close)

		_, err := qa.UploadURL(secret.URL + "/config")
		var apiErr *client.Error
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(apiErr.Message).To(ContainSubstring("not allowed"))
		Expect(a.store.Len()).To(BeZero())
	})

	It("should keep the session gauge in line with expired sessions", func() {
		cfg := testConfig()
		cfg.SessionTTL = 20 * time.Millisecond
		start(cfg)

		upload("Hello world\n")
		Expect(testutil.ToFloat64(a.metrics.ActiveSessions)).To(Equal(1.0))

		Eventually(a.store.Evict).WithTimeout(time.Second).WithPolling(10 * time.Millisecond).Should(Equal(1))
		Expect(a.store.Len()).To(BeZero())
		Expect(testutil.ToFloat64(a.metrics.ActiveSessions)).To(BeZero())
	})

	It("should reject invalid urls", func() {
		_, err := qa.UploadURL("not a url")
		var apiErr *client.Error
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("should list the available models", func() {
		models, err := qa.AvailableModels()
		Expect(err).ToNot(HaveOccurred())
		Expect(models).To(HaveLen(len(llm.AllModels)))
		Expect(models[0]).To(Equal(client.Model{ID: "phi-3-small", Configured: false}))
		Expect(models).To(ContainElement(client.Model{ID: "gpt-4o", Configured: true}))
	})

	It("should list the top terms of a session", func() {
		id := upload("go is fun\ngo is fast\n")

		terms, err := qa.Terms(id, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(terms).To(Equal([]client.Term{{Term: "go", Count: 2}, {Term: "is", Count: 2}}))

		_, err = qa.Terms("missing", 2)
		var apiErr *client.Error
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("should expose health, metrics and the UI", func() {
		upload("Hello world\n")

		for path, fragment := range map[string]string{
			"/healthz": `"ok"`,
			"/metrics": "localqa_documents_ingested_total",
			"/":        "<title>LocalQA</title>",
		} {
			resp, err := http.Get(server.URL + path)
			Expect(err).ToNot(HaveOccurred())
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK), path)
			Expect(string(body)).To(ContainSubstring(fragment), path)
		}
	})
})
