package event

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type queueTestEvent struct {
	EventBase

	value int
}

var queueTestEventType = EventType{Name: "Queue Test Event"}

func newQueueTestEvent(value int) *queueTestEvent {
	return &queueTestEvent{
		EventBase: MakeEventBase(&queueTestEventType),
		value:     value,
	}
}

var _ = Describe("Queue", func() {
	var queue *Queue

	BeforeEach(func() {
		queue = NewQueue()
	})

	It("should dequeue tail events in FIFO order", func() {
		numEvents := 100
		for i := 0; i < numEvents; i++ {
			queue.EnqueueTail(newQueueTestEvent(i))
		}

		for i := 0; i < numEvents; i++ {
			evt, status := queue.DequeueWait()
			Expect(status).To(Equal(StatusSuccess))
			Expect(evt.(*queueTestEvent).value).To(Equal(i))
		}

		Expect(queue.Len()).To(Equal(0))
	})

	It("should drain the head lane before the tail lane", func() {
		queue.EnqueueTail(newQueueTestEvent(5))
		queue.EnqueueTail(newQueueTestEvent(6))
		queue.EnqueueHead(newQueueTestEvent(7))
		queue.EnqueueHead(newQueueTestEvent(8))

		var order []int
		for i := 0; i < 4; i++ {
			evt, status := queue.DequeueWait()
			Expect(status).To(Equal(StatusSuccess))
			order = append(order, evt.(*queueTestEvent).value)
		}

		Expect(order).To(Equal([]int{7, 8, 5, 6}))
	})

	It("should wake a blocked consumer when an event arrives", func() {
		delivered := make(chan int)

		go func() {
			evt, status := queue.DequeueWait()
			Expect(status).To(Equal(StatusSuccess))
			delivered <- evt.(*queueTestEvent).value
		}()

		queue.EnqueueTail(newQueueTestEvent(42))

		Eventually(delivered).Should(Receive(Equal(42)))
	})

	It("should abort a blocked wait", func() {
		status := make(chan DequeueStatus)

		go func() {
			_, s := queue.DequeueWait()
			status <- s
		}()

		queue.WaitAbort()

		Eventually(status).Should(Receive(Equal(StatusWaitAbort)))
	})

	It("should keep aborting until the abort is reset", func() {
		queue.WaitAbort()
		queue.EnqueueTail(newQueueTestEvent(1))

		_, status := queue.DequeueWait()
		Expect(status).To(Equal(StatusWaitAbort))

		queue.WaitAbortReset()

		evt, status := queue.DequeueWait()
		Expect(status).To(Equal(StatusSuccess))
		Expect(evt.(*queueTestEvent).value).To(Equal(1))
	})

	It("should discard both lanes on clear", func() {
		queue.EnqueueTail(newQueueTestEvent(1))
		queue.EnqueueHead(newQueueTestEvent(2))

		queue.Clear()

		Expect(queue.Len()).To(Equal(0))
	})
})
