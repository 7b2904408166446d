package worker

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	testutils "github.com/papercomputeco/engram/pkg/utils/test"
	vecmem "github.com/papercomputeco/engram/pkg/vector/inmemory"
)

func newTestPool(embedder *testutils.MockEmbedder, numWorkers, queueSize uint) (*Pool, *vecmem.Driver) {
	driver := vecmem.NewDriver()

	pool, err := NewPool(&Config{
		Vectors:    driver,
		Embedder:   embedder,
		NumWorkers: numWorkers,
		QueueSize:  queueSize,
		Logger:     zap.NewNop(),
	})
	Expect(err).ToNot(HaveOccurred())

	return pool, driver
}

var _ = Describe("Pool", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("NewPool", func() {
		It("returns an error when the vector driver is missing", func() {
			_, err := NewPool(&Config{
				Embedder: testutils.NewMockEmbedder(),
			})
			Expect(err).To(MatchError(ContainSubstring("vector driver is required")))
		})

		It("returns an error when the embedder is missing", func() {
			_, err := NewPool(&Config{
				Vectors: vecmem.NewDriver(),
			})
			Expect(err).To(MatchError(ContainSubstring("embedder is required")))
		})

		It("applies worker and queue defaults", func() {
			pool, _ := newTestPool(testutils.NewMockEmbedder(), 0, 0)
			defer pool.Close()

			Expect(pool.config.NumWorkers).To(Equal(defaultNumWorkers))
			Expect(pool.config.QueueSize).To(Equal(defaultJobQueueSize))
		})
	})

	Describe("Enqueue", func() {
		It("indexes queued jobs before Close returns", func() {
			embedder := testutils.NewMockEmbedder()
			embedder.Embeddings["hello world"] = []float32{1, 0, 0}
			embedder.Embeddings["goodbye world"] = []float32{0, 1, 0}

			pool, driver := newTestPool(embedder, 2, 8)

			Expect(pool.Enqueue(Job{Hash: "hash-1", Text: "hello world"})).To(BeTrue())
			Expect(pool.Enqueue(Job{Hash: "hash-2", Text: "goodbye world"})).To(BeTrue())

			pool.Close()

			Expect(driver.Count()).To(Equal(2))

			docs, err := driver.Get(ctx, []string{"hash-1", "hash-2"})
			Expect(err).ToNot(HaveOccurred())
			Expect(docs).To(HaveLen(2))
			Expect(docs[0].Embedding).To(Equal([]float32{1, 0, 0}))
			Expect(docs[1].Embedding).To(Equal([]float32{0, 1, 0}))
		})

		It("skips jobs with no text content", func() {
			pool, driver := newTestPool(testutils.NewMockEmbedder(), 1, 8)

			Expect(pool.Enqueue(Job{Hash: "hash-empty", Text: ""})).To(BeTrue())

			pool.Close()

			Expect(driver.Count()).To(BeZero())
		})

		It("drops embedding failures without indexing them", func() {
			embedder := testutils.NewMockEmbedder()
			embedder.FailOn = "broken input"

			pool, driver := newTestPool(embedder, 1, 8)

			Expect(pool.Enqueue(Job{Hash: "hash-bad", Text: "broken input"})).To(BeTrue())
			Expect(pool.Enqueue(Job{Hash: "hash-good", Text: "fine input"})).To(BeTrue())

			pool.Close()

			Expect(driver.Count()).To(Equal(1))

			docs, err := driver.Get(ctx, []string{"hash-good"})
			Expect(err).ToNot(HaveOccurred())
			Expect(docs).To(HaveLen(1))
		})

		It("rejects jobs once the queue is full", func() {
			embedder := testutils.NewMockEmbedder()
			embedder.Delay = 200 * time.Millisecond

			pool, driver := newTestPool(embedder, 1, 1)

			// One slow worker plus a single queue slot holds at most two
			// jobs in flight, so at least two of these four must drop.
			accepted := 0
			for i := range 4 {
				if pool.Enqueue(Job{Hash: "hash-full", Text: "slow input"}) {
					accepted++
				} else {
					Expect(i).To(BeNumerically(">", 0))
				}
			}
			Expect(accepted).To(BeNumerically("<=", 2))
			Expect(accepted).To(BeNumerically(">=", 1))

			pool.Close()

			Expect(driver.Count()).To(BeNumerically("<=", 2))
		})
	})

	Describe("Close", func() {
		It("waits for in-flight jobs to finish", func() {
			embedder := testutils.NewMockEmbedder()
			embedder.Delay = 50 * time.Millisecond

			pool, driver := newTestPool(embedder, 1, 8)

			Expect(pool.Enqueue(Job{Hash: "hash-slow", Text: "slow input"})).To(BeTrue())

			pool.Close()

			Expect(driver.Count()).To(Equal(1))

			docs, err := driver.Get(ctx, []string{"hash-slow"})
			Expect(err).ToNot(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].Embedding).To(Equal([]float32{0.1, 0.2, 0.3}))
		})
	})
})
