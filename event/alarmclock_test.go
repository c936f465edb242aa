package event

import (
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("AlarmClock", func() {
	var clock *AlarmClock

	BeforeEach(func() {
		clock = NewAlarmClock()
	})

	AfterEach(func() {
		clock.Stop()
	})

	It("should fire a periodic alarm repeatedly", func() {
		var count atomic.Int64

		clock.AddAlarmPeriodic(nil,
			func(ctx any, expiration time.Time, c *AlarmClock) {
				count.Add(1)
			},
			10*time.Millisecond)

		Eventually(count.Load).Should(BeNumerically(">=", 3))
	})

	It("should fire a one-shot alarm exactly once", func() {
		var count atomic.Int64

		clock.AddAlarm(nil,
			func(ctx any, expiration time.Time, c *AlarmClock) {
				count.Add(1)
			},
			5*time.Millisecond)

		Eventually(count.Load).Should(Equal(int64(1)))
		Consistently(count.Load, "100ms").Should(Equal(int64(1)))
	})

	It("should deliver the registered context on every firing", func() {
		type walletCtx struct{ account string }
		registered := &walletCtx{account: "r9cZA1"}
		delivered := make(chan any, 8)

		clock.AddAlarmPeriodic(registered,
			func(ctx any, expiration time.Time, c *AlarmClock) {
				delivered <- ctx
			},
			10*time.Millisecond)

		Eventually(delivered).Should(Receive(BeIdenticalTo(registered)))
	})

	It("should not fire after the alarm is removed", func() {
		var count atomic.Int64

		id := clock.AddAlarmPeriodic(nil,
			func(ctx any, expiration time.Time, c *AlarmClock) {
				count.Add(1)
			},
			10*time.Millisecond)

		Eventually(count.Load).Should(BeNumerically(">=", 1))

		clock.RemoveAlarm(id)
		settled := count.Load()

		Consistently(func() int64 {
			return count.Load() - settled
		}, "100ms").Should(BeNumerically("<=", 1))
	})

	It("should ignore removing an unknown alarm", func() {
		clock.RemoveAlarm(AlarmID("no-such-alarm"))
	})

	It("should run alarms from multiple registrations independently", func() {
		var fast, slow atomic.Int64

		clock.AddAlarmPeriodic(nil,
			func(ctx any, expiration time.Time, c *AlarmClock) {
				fast.Add(1)
			},
			5*time.Millisecond)
		clock.AddAlarmPeriodic(nil,
			func(ctx any, expiration time.Time, c *AlarmClock) {
				slow.Add(1)
			},
			50*time.Millisecond)

		Eventually(fast.Load).Should(BeNumerically(">=", 5))
		Eventually(slow.Load).Should(BeNumerically(">=", 1))
		Expect(fast.Load()).To(BeNumerically(">", slow.Load()))
	})
})
