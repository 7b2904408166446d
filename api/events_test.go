package api

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/engram/pkg/window"
)

var _ = Describe("eventBroker", func() {
	var (
		broker *eventBroker
		source chan window.Event
	)

	BeforeEach(func() {
		broker = newEventBroker()
		source = make(chan window.Event, 8)
		go broker.run(source)
	})

	AfterEach(func() {
		broker.stop()
	})

	It("delivers events to a subscriber", func() {
		events, cancel := broker.subscribe()
		defer cancel()

		source <- window.Event{Type: window.EventAdmitted, Hash: "abc", Tokens: 3}

		var got window.Event
		Eventually(events).Should(Receive(&got))
		Expect(got.Type).To(Equal(window.EventAdmitted))
		Expect(got.Hash).To(Equal("abc"))
		Expect(got.Tokens).To(Equal(3))
	})

	It("fans one event out to every subscriber", func() {
		first, cancelFirst := broker.subscribe()
		defer cancelFirst()
		second, cancelSecond := broker.subscribe()
		defer cancelSecond()

		source <- window.Event{Type: window.EventEvicted, Hash: "abc"}

		Eventually(first).Should(Receive())
		Eventually(second).Should(Receive())
	})

	It("stops delivering after cancel", func() {
		events, cancel := broker.subscribe()
		cancel()

		source <- window.Event{Type: window.EventAdmitted, Hash: "abc"}

		Consistently(events, 50*time.Millisecond).ShouldNot(Receive())
	})

	It("keeps the feed alive when a subscriber stalls", func() {
		// Never read from this one; its buffer fills and overflow drops.
		_, cancelStalled := broker.subscribe()
		defer cancelStalled()

		healthy, cancelHealthy := broker.subscribe()
		defer cancelHealthy()

		for i := 0; i < subscriberBuffer+8; i++ {
			source <- window.Event{Type: window.EventAdmitted, Hash: "h", Tokens: i}
		}

		Eventually(healthy).Should(Receive())
	})

	It("tolerates stop being called twice", func() {
		broker.stop()
		broker.stop()
	})
})
