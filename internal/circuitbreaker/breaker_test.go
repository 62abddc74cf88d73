package circuitbreaker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/faceguard/api-gateway/internal/circuitbreaker"
)

var _ = Describe("CircuitBreaker", func() {
	var (
		cb  *circuitbreaker.CircuitBreaker
		ctx context.Context
	)

	failingOp := func(ctx context.Context) error {
		return errors.New("upstream exploded")
	}

	succeedingOp := func(ctx context.Context) error {
		return nil
	}

	tripCircuit := func(cb *circuitbreaker.CircuitBreaker) {
		for i := 0; i < 5; i++ {
			cb.Execute(ctx, failingOp)
		}
		Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
	}

	BeforeEach(func() {
		ctx = context.Background()
		cb = circuitbreaker.New("core-data", circuitbreaker.Config{
			Timeout:               time.Second,
			ErrorThresholdPercent: 50,
			ResetTimeout:          100 * time.Millisecond,
		})
	})

	Describe("New", func() {
		It("should start in the closed state", func() {
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("Execute", func() {
		Context("when in CLOSED state", func() {
			It("should run the operation and return its result", func() {
				err := cb.Execute(ctx, succeedingOp)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the operation's original error unchanged", func() {
				boom := errors.New("boom")
				err := cb.Execute(ctx, func(ctx context.Context) error { return boom })
				Expect(err).To(MatchError(boom))
			})

			It("should remain closed after failures below the floor", func() {
				for i := 0; i < 4; i++ {
					cb.Execute(ctx, failingOp)
				}
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			})

			It("should open after five consecutive failures at full failure rate", func() {
				tripCircuit(cb)
			})

			It("should not open when the failure rate is below the threshold", func() {
				// 20 successes dilute the rate well below 50%.
				for i := 0; i < 20; i++ {
					cb.Execute(ctx, succeedingOp)
				}
				for i := 0; i < 5; i++ {
					cb.Execute(ctx, failingOp)
				}
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			})
		})

		Context("when in OPEN state", func() {
			BeforeEach(func() {
				tripCircuit(cb)
			})

			It("should fast-fail with CircuitOpenError without invoking the operation", func() {
				var invocations atomic.Int32
				for i := 0; i < 10; i++ {
					err := cb.Execute(ctx, func(ctx context.Context) error {
						invocations.Add(1)
						return nil
					})
					Expect(circuitbreaker.IsCircuitOpen(err)).To(BeTrue())
				}
				Expect(invocations.Load()).To(Equal(int32(0)))
			})

			It("should not count fast-fails toward the failure counter", func() {
				before := cb.Stats().FailureCount
				for i := 0; i < 10; i++ {
					cb.Execute(ctx, succeedingOp)
				}
				Expect(cb.Stats().FailureCount).To(Equal(before))
			})

			It("should still count fast-fails as requests", func() {
				before := cb.Stats().RequestCount
				cb.Execute(ctx, succeedingOp)
				Expect(cb.Stats().RequestCount).To(Equal(before + 1))
			})

			It("should transition to HALF-OPEN and invoke the operation once the cooldown elapses", func() {
				time.Sleep(150 * time.Millisecond)

				var invocations atomic.Int32
				err := cb.Execute(ctx, func(ctx context.Context) error {
					invocations.Add(1)
					return nil
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(invocations.Load()).To(Equal(int32(1)))
			})
		})

		Context("when in HALF-OPEN state", func() {
			It("should close on a single success and reset the failure count", func() {
				tripCircuit(cb)
				time.Sleep(150 * time.Millisecond)

				err := cb.Execute(ctx, succeedingOp)
				Expect(err).NotTo(HaveOccurred())
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
				Expect(cb.Stats().FailureCount).To(Equal(0))
			})

			It("should reopen immediately on a single failure", func() {
				tripCircuit(cb)
				time.Sleep(150 * time.Millisecond)

				cb.Execute(ctx, failingOp)
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})
		})

		Context("when the operation outlives the timeout", func() {
			BeforeEach(func() {
				cb = circuitbreaker.New("core-data", circuitbreaker.Config{
					Timeout:               50 * time.Millisecond,
					ErrorThresholdPercent: 50,
					ResetTimeout:          time.Second,
				})
			})

			It("should lose the race and return a TimeoutError", func() {
				err := cb.Execute(ctx, func(ctx context.Context) error {
					select {
					case <-time.After(time.Second):
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				})
				Expect(circuitbreaker.IsTimeout(err)).To(BeTrue())
			})

			It("should cancel the operation's context", func() {
				cancelled := make(chan struct{})
				cb.Execute(ctx, func(ctx context.Context) error {
					<-ctx.Done()
					close(cancelled)
					return ctx.Err()
				})
				Eventually(cancelled).Should(BeClosed())
			})

			It("should count the timeout as a failure", func() {
				slowOp := func(ctx context.Context) error {
					<-ctx.Done()
					return ctx.Err()
				}
				for i := 0; i < 5; i++ {
					cb.Execute(ctx, slowOp)
				}
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})
		})
	})

	Describe("Stats", func() {
		It("should be idempotent between executions", func() {
			cb.Execute(ctx, succeedingOp)
			cb.Execute(ctx, failingOp)

			first := cb.Stats()
			second := cb.Stats()
			Expect(second).To(Equal(first))
		})

		It("should track counters and timestamps", func() {
			cb.Execute(ctx, succeedingOp)
			cb.Execute(ctx, succeedingOp)
			cb.Execute(ctx, failingOp)

			stats := cb.Stats()
			Expect(stats.Service).To(Equal("core-data"))
			Expect(stats.RequestCount).To(Equal(int64(3)))
			Expect(stats.SuccessCount).To(Equal(int64(2)))
			Expect(stats.FailureCount).To(Equal(1))
			Expect(stats.LastSuccessTime).NotTo(BeNil())
			Expect(stats.LastFailureTime).NotTo(BeNil())
		})

		It("should leave timestamps unset until first occurrence", func() {
			stats := cb.Stats()
			Expect(stats.LastFailureTime).To(BeNil())
			Expect(stats.LastSuccessTime).To(BeNil())
		})
	})

	Describe("Reset", func() {
		It("should force CLOSED with zeroed counters", func() {
			tripCircuit(cb)

			cb.Reset()

			stats := cb.Stats()
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			Expect(stats.FailureCount).To(Equal(0))
			Expect(stats.RequestCount).To(Equal(int64(0)))
			Expect(stats.SuccessCount).To(Equal(int64(0)))
			Expect(stats.LastFailureTime).To(BeNil())
		})
	})

	Describe("OnStateChange", func() {
		It("should be notified of transitions", func() {
			transitions := make(chan string, 8)
			cb = circuitbreaker.New("core-data", circuitbreaker.Config{
				Timeout:               time.Second,
				ErrorThresholdPercent: 50,
				ResetTimeout:          time.Second,
				OnStateChange: func(service string, from, to circuitbreaker.State) {
					transitions <- from.String() + "->" + to.String()
				},
			})

			for i := 0; i < 5; i++ {
				cb.Execute(ctx, failingOp)
			}

			Eventually(transitions).Should(Receive(Equal("closed->open")))
		})
	})

	Describe("State.String", func() {
		It("should return correct string representation", func() {
			Expect(circuitbreaker.StateClosed.String()).To(Equal("closed"))
			Expect(circuitbreaker.StateOpen.String()).To(Equal("open"))
			Expect(circuitbreaker.StateHalfOpen.String()).To(Equal("half-open"))
		})
	})
})
