package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/contentstore"
	csmem "github.com/papercomputeco/engram/pkg/contentstore/inmemory"
	"github.com/papercomputeco/engram/pkg/fragment"
	"github.com/papercomputeco/engram/pkg/memory"
)

// newTestEngine builds an engine over an in-memory store, without a vector
// index. Recall endpoint tests wire their own engine with mocks.
func newTestEngine() *memory.Engine {
	store, err := contentstore.New(contentstore.Config{Driver: csmem.NewDriver()})
	Expect(err).NotTo(HaveOccurred())

	engine, err := memory.New(memory.Config{Store: store})
	Expect(err).NotTo(HaveOccurred())
	return engine
}

func postJSON(app *fiber.App, path, body string) *http.Response {
	req, err := http.NewRequest(http.MethodPost, path, strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func decodeBody(resp *http.Response, out any) {
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	Expect(json.Unmarshal(body, out)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		server *Server
		engine *memory.Engine
	)

	BeforeEach(func() {
		engine = newTestEngine()

		var err error
		server, err = NewServer(Config{ListenAddr: ":0"}, engine, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(engine.Close()).To(Succeed())
	})

	Describe("NewServer", func() {
		It("returns an error when the engine is nil", func() {
			_, err := NewServer(Config{ListenAddr: ":0"}, nil, zap.NewNop())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("memory engine is required"))
		})

		It("returns an error when the logger is nil", func() {
			_, err := NewServer(Config{ListenAddr: ":0"}, engine, nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("logger is required"))
		})

		It("creates a server with valid config", func() {
			Expect(server).NotTo(BeNil())
		})

		It("mounts the MCP handler when one is configured", func() {
			mcpStub := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("mcp-ok"))
			})

			mounted, err := NewServer(Config{ListenAddr: ":0", MCP: mcpStub}, engine, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())

			req, err := http.NewRequest(http.MethodGet, "/mcp", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := mounted.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("mcp-ok"))
		})

		It("leaves /mcp unmounted when no handler is configured", func() {
			req, err := http.NewRequest(http.MethodGet, "/mcp", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("handlePing", func() {
		It("returns pong", func() {
			req, err := http.NewRequest(http.MethodGet, "/ping", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("pong"))
		})
	})

	Describe("handleIngest", func() {
		It("stores a fragment and reports its address", func() {
			resp := postJSON(server.app, "/memory/fragments", `{"content":"the build failed on linux"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out IngestResponse
			decodeBody(resp, &out)

			Expect(out.Hash).NotTo(BeEmpty())
			Expect(out.RefCount).To(Equal(1))
			Expect(out.TokenCount).To(Equal(len("the build failed on linux") / fragment.BytesPerToken))
		})

		It("increments the reference count on duplicate content", func() {
			first := postJSON(server.app, "/memory/fragments", `{"content":"same thing twice"}`)
			Expect(first.StatusCode).To(Equal(fiber.StatusOK))

			second := postJSON(server.app, "/memory/fragments", `{"content":"same thing twice"}`)
			Expect(second.StatusCode).To(Equal(fiber.StatusOK))

			var firstOut, secondOut IngestResponse
			decodeBody(first, &firstOut)
			decodeBody(second, &secondOut)

			Expect(secondOut.Hash).To(Equal(firstOut.Hash))
			Expect(secondOut.RefCount).To(Equal(2))
		})

		It("accepts a content type and tags", func() {
			resp := postJSON(server.app, "/memory/fragments",
				`{"content":"func main() {}","content_type":"file-snapshot","tags":["code","user-marked"]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out IngestResponse
			decodeBody(resp, &out)

			entry, err := engine.Entry(context.Background(), out.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(entry.ContentType)).To(Equal("file-snapshot"))
			Expect(entry.Tags).To(HaveLen(2))
		})

		It("returns 400 for an unparsable body", func() {
			resp := postJSON(server.app, "/memory/fragments", `{not json`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 400 when content is missing", func() {
			resp := postJSON(server.app, "/memory/fragments", `{"content_type":"file-snapshot"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("content is required"))
		})

		It("returns 400 for an unknown content type", func() {
			resp := postJSON(server.app, "/memory/fragments", `{"content":"x","content_type":"parquet"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("unknown content type"))
		})

		It("returns 400 for an unknown tag", func() {
			resp := postJSON(server.app, "/memory/fragments", `{"content":"x","tags":["sparkly"]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("unknown tag"))
		})
	})

	Describe("handleStats", func() {
		It("reports store and window occupancy", func() {
			resp := postJSON(server.app, "/memory/fragments", `{"content":"twelve tokens worth of text, give or take a while"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			req, err := http.NewRequest(http.MethodGet, "/memory/stats", nil)
			Expect(err).NotTo(HaveOccurred())

			statsResp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(statsResp.StatusCode).To(Equal(fiber.StatusOK))

			var stats memory.Stats
			decodeBody(statsResp, &stats)

			Expect(stats.Store.Entries).To(Equal(1))
			Expect(stats.Window.Items).To(Equal(1))
			Expect(stats.Window.Tokens).To(BeNumerically(">", 0))
		})
	})

	Describe("handleGetEntry", func() {
		It("returns the entry with reconstructed content", func() {
			resp := postJSON(server.app, "/memory/fragments", `{"content":"remember the port is 5432","tags":["user-marked"]}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out IngestResponse
			decodeBody(resp, &out)

			req, err := http.NewRequest(http.MethodGet, "/memory/entries/"+out.Hash, nil)
			Expect(err).NotTo(HaveOccurred())

			entryResp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(entryResp.StatusCode).To(Equal(fiber.StatusOK))

			var entry EntryResponse
			decodeBody(entryResp, &entry)

			Expect(entry.Hash).To(Equal(out.Hash))
			Expect(entry.Content).To(Equal("remember the port is 5432"))
			Expect(entry.Tier).To(Equal("hot"))
			Expect(entry.ReferenceCount).To(Equal(1))
			Expect(entry.Tags).To(ContainElement("user-marked"))
		})

		It("returns 404 for an unknown hash", func() {
			req, err := http.NewRequest(http.MethodGet, "/memory/entries/deadbeef", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("handleRelease", func() {
		It("drops a reference and removes the entry from the window", func() {
			resp := postJSON(server.app, "/memory/fragments", `{"content":"ephemeral scratch output"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out IngestResponse
			decodeBody(resp, &out)

			req, err := http.NewRequest(http.MethodDelete, "/memory/fragments/"+out.Hash, nil)
			Expect(err).NotTo(HaveOccurred())

			delResp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(delResp.StatusCode).To(Equal(fiber.StatusNoContent))

			statsReq, err := http.NewRequest(http.MethodGet, "/memory/stats", nil)
			Expect(err).NotTo(HaveOccurred())

			statsResp, err := server.app.Test(statsReq)
			Expect(err).NotTo(HaveOccurred())

			var stats memory.Stats
			decodeBody(statsResp, &stats)
			Expect(stats.Window.Items).To(Equal(0))
			Expect(stats.Store.Releasing).To(Equal(1))
		})

		It("returns 404 for an unknown hash", func() {
			req, err := http.NewRequest(http.MethodDelete, "/memory/fragments/deadbeef", nil)
			Expect(err).NotTo(HaveOccurred())

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})
})
