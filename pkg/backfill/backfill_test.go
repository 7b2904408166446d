package backfill_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/backfill"
	"github.com/papercomputeco/engram/pkg/contentstore"
	csmem "github.com/papercomputeco/engram/pkg/contentstore/inmemory"
	"github.com/papercomputeco/engram/pkg/fragment"
	testutils "github.com/papercomputeco/engram/pkg/utils/test"
	"github.com/papercomputeco/engram/pkg/vector"
)

var _ = Describe("Backfiller", func() {
	var (
		ctx      context.Context
		store    *contentstore.Store
		vectors  *testutils.MockVectorDriver
		embedder *testutils.MockEmbedder
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		store, err = contentstore.New(contentstore.Config{Driver: csmem.NewDriver()})
		Expect(err).NotTo(HaveOccurred())

		vectors = testutils.NewMockVectorDriver()
		embedder = testutils.NewMockEmbedder()
	})

	ingest := func(text string) string {
		frag := fragment.New([]byte(text), fragment.TypeConversationalTurn, fragment.Meta{})
		hash, _, err := store.Store(ctx, frag)
		Expect(err).NotTo(HaveOccurred())
		return hash
	}

	newBackfiller := func(opts backfill.Options) *backfill.Backfiller {
		b, err := backfill.NewBackfiller(store, vectors, embedder, opts)
		Expect(err).NotTo(HaveOccurred())
		return b
	}

	Describe("NewBackfiller", func() {
		It("requires a content store", func() {
			_, err := backfill.NewBackfiller(nil, vectors, embedder, backfill.Options{})
			Expect(err).To(MatchError("content store is required"))
		})

		It("requires a vector driver", func() {
			_, err := backfill.NewBackfiller(store, nil, embedder, backfill.Options{})
			Expect(err).To(MatchError("vector driver is required"))
		})

		It("requires an embedder unless dry-running", func() {
			_, err := backfill.NewBackfiller(store, vectors, nil, backfill.Options{})
			Expect(err).To(MatchError("embedder is required"))

			_, err = backfill.NewBackfiller(store, vectors, nil, backfill.Options{DryRun: true})
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Run", func() {
		It("embeds entries missing from the index", func() {
			first := ingest("the deploy failed on the migration step")
			second := ingest("retry with a longer timeout fixed it")

			result, err := newBackfiller(backfill.Options{}).Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Scanned).To(Equal(2))
			Expect(result.Embedded).To(Equal(2))
			Expect(result.Indexed).To(BeZero())
			Expect(result.Failed).To(BeZero())

			docs := vectors.Documents()
			Expect(docs).To(HaveLen(2))
			Expect([]string{docs[0].ID, docs[1].ID}).To(ConsistOf(first, second))
			for _, doc := range docs {
				Expect(doc.Hash).To(Equal(doc.ID))
				Expect(doc.Embedding).NotTo(BeEmpty())
			}
		})

		It("leaves already indexed entries alone", func() {
			indexed := ingest("already indexed entry")
			missing := ingest("missing from the index")

			Expect(vectors.Add(ctx, []vector.Document{
				{ID: indexed, Hash: indexed, Embedding: []float32{1, 0}},
			})).To(Succeed())

			result, err := newBackfiller(backfill.Options{}).Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Indexed).To(Equal(1))
			Expect(result.Embedded).To(Equal(1))

			for _, doc := range vectors.Documents() {
				if doc.ID == indexed {
					// The pre-indexed embedding was not replaced.
					Expect(doc.Embedding).To(Equal([]float32{1, 0}))
				} else {
					Expect(doc.ID).To(Equal(missing))
				}
			}
		})

		It("does not touch the index on a dry run", func() {
			ingest("would be embedded")

			b, err := backfill.NewBackfiller(store, vectors, nil, backfill.Options{DryRun: true})
			Expect(err).NotTo(HaveOccurred())

			result, err := b.Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Embedded).To(Equal(1))
			Expect(vectors.Documents()).To(BeEmpty())
		})

		It("counts embedding failures and keeps going", func() {
			embedder.FailOn = "poison entry"
			ingest("poison entry")
			good := ingest("healthy entry")

			result, err := newBackfiller(backfill.Options{}).Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Failed).To(Equal(1))
			Expect(result.Embedded).To(Equal(1))

			docs := vectors.Documents()
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].ID).To(Equal(good))
		})

		It("stops between entries when cancelled", func() {
			for i := 0; i < 5; i++ {
				ingest(fmt.Sprintf("entry number %d", i))
			}
			embedder.Delay = 50 * time.Millisecond

			cancelCtx, cancel := context.WithTimeout(ctx, 75*time.Millisecond)
			defer cancel()

			result, err := newBackfiller(backfill.Options{}).Run(cancelCtx)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Cancelled).To(BeTrue())
			Expect(result.Embedded).To(BeNumerically("<", 5))
		})

		It("probes the index in batches", func() {
			for i := 0; i < 5; i++ {
				ingest(fmt.Sprintf("batched entry %d", i))
			}

			result, err := newBackfiller(backfill.Options{ProbeBatch: 2}).Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Embedded).To(Equal(5))
			Expect(vectors.Documents()).To(HaveLen(5))
		})
	})
})
