package api

import (
	"context"
	"errors"
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
	testutils "github.com/papercomputeco/engram/pkg/utils/test"
	"github.com/papercomputeco/engram/pkg/vector"
)

var _ = Describe("handleRecallEndpoint", func() {
	var (
		server       *Server
		engine       *memory.Engine
		vectorDriver *testutils.MockVectorDriver
		ctx          context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		vectorDriver = testutils.NewMockVectorDriver()

		store, err := contentstore.New(contentstore.Config{Driver: csmem.NewDriver()})
		Expect(err).NotTo(HaveOccurred())

		engine, err = memory.New(memory.Config{
			Store:    store,
			Vectors:  vectorDriver,
			Embedder: testutils.NewMockEmbedder(),
		})
		Expect(err).NotTo(HaveOccurred())

		server, err = NewServer(Config{ListenAddr: ":0"}, engine, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(engine.Close()).To(Succeed())
	})

	ingest := func(text string) string {
		frag := fragment.New([]byte(text), fragment.TypeConversationalTurn)
		hash, err := engine.Ingest(ctx, frag)
		Expect(err).NotTo(HaveOccurred())
		return hash
	}

	recall := func(path string) (*http.Response, RecallResponse) {
		req, err := http.NewRequest(http.MethodGet, path, nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())

		var out RecallResponse
		if resp.StatusCode == fiber.StatusOK {
			decodeBody(resp, &out)
		}
		return resp, out
	}

	Context("when query parameter is missing", func() {
		It("returns 400", func() {
			resp, _ := recall("/v1/recall")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Context("when budget is invalid", func() {
		It("returns 400 for a non-integer budget", func() {
			resp, _ := recall("/v1/recall?query=test&budget=abc")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 400 for a zero budget", func() {
			resp, _ := recall("/v1/recall?query=test&budget=0")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 400 for a negative budget", func() {
			resp, _ := recall("/v1/recall?query=test&budget=-5")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Context("when nothing is stored", func() {
		It("returns an empty context with the default budget", func() {
			resp, out := recall("/v1/recall?query=anything")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			Expect(out.Query).To(Equal("anything"))
			Expect(out.Context).To(BeEmpty())
			Expect(out.TokenBudget).To(Equal(memory.DefaultMaxWindowTokens))
			Expect(out.TokenCount).To(Equal(0))
		})
	})

	Context("when the window holds recent fragments", func() {
		It("returns them oldest first", func() {
			ingest("first remark about the schema")
			ingest("second remark about the index")

			resp, out := recall("/v1/recall?query=schema&budget=500")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			Expect(out.Context).To(ContainSubstring("first remark about the schema"))
			Expect(out.Context).To(ContainSubstring("second remark about the index"))
			Expect(out.TokenBudget).To(Equal(500))
		})
	})

	Context("when the index returns historical matches", func() {
		It("includes entries above the similarity floor and excludes the rest", func() {
			relevant := ingest("a binary search tree keeps its keys ordered")
			offTopic := ingest("the cafeteria menu changes on tuesdays")

			// Drop both from the window so only the index can surface them.
			Expect(engine.Release(ctx, relevant)).To(Succeed())
			Expect(engine.Release(ctx, offTopic)).To(Succeed())

			vectorDriver.Results = []vector.QueryResult{
				{Document: vector.Document{ID: relevant, Hash: relevant}, Score: 0.9},
				{Document: vector.Document{ID: offTopic, Hash: offTopic}, Score: 0.1},
			}

			resp, out := recall("/v1/recall?query=binary+search+tree&budget=500")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			Expect(out.Context).To(ContainSubstring("binary search tree"))
			Expect(out.Context).NotTo(ContainSubstring("cafeteria menu"))
		})

		It("does not repeat entries already in the window", func() {
			hash := ingest("one copy of this remark is plenty")

			vectorDriver.Results = []vector.QueryResult{
				{Document: vector.Document{ID: hash, Hash: hash}, Score: 0.95},
			}

			resp, out := recall("/v1/recall?query=remark&budget=500")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			Expect(strings.Count(out.Context, "one copy of this remark is plenty")).To(Equal(1))
		})
	})

	Context("when the index query fails", func() {
		It("degrades to recent-only instead of failing", func() {
			ingest("still reachable through the window")
			vectorDriver.QueryErr = errors.New("index down")

			resp, out := recall("/v1/recall?query=reachable&budget=500")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(out.Context).To(ContainSubstring("still reachable through the window"))
		})
	})
})
