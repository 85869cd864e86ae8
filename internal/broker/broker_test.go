package broker_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/san-kum/cosim/internal/broker"
	fed "github.com/san-kum/cosim/internal/federation"
)

type grantResult struct {
	grant fed.Grant
	err   error
}

func requestAsync(b *broker.Broker, id fed.FederateID, t fed.Time) chan grantResult {
	ch := make(chan grantResult, 1)
	go func() {
		g, err := b.RequestTime(context.Background(), id, t)
		ch <- grantResult{g, err}
	}()
	return ch
}

func info(name string) fed.FederateInfo {
	return fed.FederateInfo{Name: name, Period: 60, Flags: fed.Flags{Uninterruptible: true}}
}

// execute registers interfaces and moves every federate through the barrier.
func execute(b *broker.Broker, ids ...fed.FederateID) {
	errs := make(chan error, len(ids))
	for _, id := range ids {
		go func(id fed.FederateID) {
			errs <- b.EnterExecutingMode(context.Background(), id)
		}(id)
	}
	for range ids {
		Eventually(errs).Should(Receive(BeNil()))
	}
}

var _ = Describe("Broker", func() {
	var (
		ctx context.Context
		b   *broker.Broker
		a   fed.FederateID
		c   fed.FederateID
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		b, err = broker.New(broker.Config{Federates: 2, Registerer: prometheus.NewRegistry()})
		Expect(err).NotTo(HaveOccurred())

		a, err = b.Register(ctx, info("Controller"))
		Expect(err).NotTo(HaveOccurred())
		c, err = b.Register(ctx, info("Building"))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("registration", func() {
		It("rejects federates beyond the expected count", func() {
			_, err := b.Register(ctx, info("Extra"))
			Expect(errors.Is(err, fed.ErrFederationFull)).To(BeTrue())
		})

		It("rejects duplicate global publication keys", func() {
			_, err := b.RegisterPublication(ctx, a, fed.PublicationSpec{Key: "x/y", Type: "double"})
			Expect(err).NotTo(HaveOccurred())
			_, err = b.RegisterPublication(ctx, c, fed.PublicationSpec{Key: "x/y", Type: "double"})
			Expect(errors.Is(err, fed.ErrDuplicateInterface)).To(BeTrue())
		})

		It("rejects invalid federate info", func() {
			_, err := b.Register(ctx, fed.FederateInfo{Name: "NoPeriod"})
			Expect(errors.Is(err, fed.ErrInvalidInfo)).To(BeTrue())
		})

		It("does not allow time requests before executing mode", func() {
			_, err := b.RequestTime(ctx, a, 60)
			Expect(errors.Is(err, fed.ErrWrongMode)).To(BeTrue())
		})
	})

	Describe("status", func() {
		It("lists federates in registration order", func() {
			st := b.Status()
			Expect(st).To(HaveLen(2))
			Expect(st[0].Name).To(Equal("Controller"))
			Expect(st[1].Name).To(Equal("Building"))
			Expect(st[0].Mode).To(Equal(fed.ModeCreated))
			Expect(st[0].Pending).To(BeFalse())
		})

		It("reports finalized federates", func() {
			Expect(b.Finalize(ctx, c)).To(Succeed())
			Expect(b.Status()[1].Mode).To(Equal(fed.ModeFinalized))
		})
	})

	Describe("executing mode barrier", func() {
		It("holds the first federate until the last one enters", func() {
			first := make(chan error, 1)
			go func() { first <- b.EnterExecutingMode(ctx, a) }()
			Consistently(first, 50*time.Millisecond).ShouldNot(Receive())

			Expect(b.EnterExecutingMode(ctx, c)).To(Succeed())
			Eventually(first).Should(Receive(BeNil()))
		})

		It("releases when a waiting peer finalizes instead", func() {
			first := make(chan error, 1)
			go func() { first <- b.EnterExecutingMode(ctx, a) }()
			Consistently(first, 50*time.Millisecond).ShouldNot(Receive())

			Expect(b.Finalize(ctx, c)).To(Succeed())
			Eventually(first).Should(Receive(BeNil()))
		})
	})

	Describe("time grants", func() {
		BeforeEach(func() {
			execute(b, a, c)
		})

		It("grants equal requests together", func() {
			ra := requestAsync(b, a, 60)
			rc := requestAsync(b, c, 60)

			var r grantResult
			Eventually(ra).Should(Receive(&r))
			Expect(r.err).NotTo(HaveOccurred())
			Expect(r.grant.Time).To(Equal(60.0))
			Eventually(rc).Should(Receive(&r))
			Expect(r.grant.Time).To(Equal(60.0))
		})

		It("holds a federate that runs ahead", func() {
			ahead := requestAsync(b, a, 120)
			Consistently(ahead, 50*time.Millisecond).ShouldNot(Receive())

			g, err := b.RequestTime(ctx, c, 60)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Time).To(Equal(60.0))
			Consistently(ahead, 50*time.Millisecond).ShouldNot(Receive())

			behind := requestAsync(b, c, 120)
			var r grantResult
			Eventually(ahead).Should(Receive(&r))
			Expect(r.grant.Time).To(Equal(120.0))
			Eventually(behind).Should(Receive(&r))
			Expect(r.grant.Time).To(Equal(120.0))
		})

		It("clamps requests below the granted time", func() {
			ra := requestAsync(b, a, 60)
			rc := requestAsync(b, c, 60)
			Eventually(ra).Should(Receive())
			Eventually(rc).Should(Receive())

			ra = requestAsync(b, a, 10)
			var r grantResult
			Eventually(ra).Should(Receive(&r))
			Expect(r.grant.Time).To(Equal(60.0))
		})

		It("grants freely once the peer has finalized", func() {
			ra := requestAsync(b, a, 600)
			Consistently(ra, 50*time.Millisecond).ShouldNot(Receive())
			Expect(b.Finalize(ctx, c)).To(Succeed())

			var r grantResult
			Eventually(ra).Should(Receive(&r))
			Expect(r.grant.Time).To(Equal(600.0))
			Expect(b.Finalize(ctx, a)).To(Succeed())
			Eventually(b.Finished()).Should(BeClosed())
		})

		It("returns the context error when the caller gives up", func() {
			short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			_, err := b.RequestTime(short, a, 60)
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())

			g, err := b.RequestTime(ctx, c, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Time).To(Equal(0.0))
		})
	})

	Describe("value exchange", func() {
		var (
			pub fed.Handle
			in  fed.Handle
		)

		BeforeEach(func() {
			var err error
			pub, err = b.RegisterPublication(ctx, a, fed.PublicationSpec{Key: "Plant/Load/Liquid", Type: "double", Units: "W", Global: true})
			Expect(err).NotTo(HaveOccurred())
			in, err = b.RegisterSubscription(ctx, c, fed.SubscriptionSpec{Target: "Plant/Load/Liquid", Units: "W"})
			Expect(err).NotTo(HaveOccurred())
			execute(b, a, c)
		})

		It("delivers a published value on the next grant, once", func() {
			ra := requestAsync(b, a, 60)
			rc := requestAsync(b, c, 60)
			Eventually(ra).Should(Receive())
			var r grantResult
			Eventually(rc).Should(Receive(&r))
			Expect(r.grant.Updates).To(BeEmpty())

			Expect(b.Publish(ctx, a, pub, -200000)).To(Succeed())

			ra = requestAsync(b, a, 120)
			rc = requestAsync(b, c, 120)
			Eventually(ra).Should(Receive())
			Eventually(rc).Should(Receive(&r))
			Expect(r.grant.Updates).To(HaveLen(1))
			Expect(r.grant.Updates[0].Input).To(Equal(in))
			Expect(r.grant.Updates[0].Value).To(Equal(-200000.0))
			Expect(r.grant.Updates[0].Time).To(Equal(60.0))

			ra = requestAsync(b, a, 180)
			rc = requestAsync(b, c, 180)
			Eventually(ra).Should(Receive())
			Eventually(rc).Should(Receive(&r))
			Expect(r.grant.Updates).To(BeEmpty())
		})

		It("rejects unknown publication handles", func() {
			err := b.Publish(ctx, a, pub+5, 1)
			Expect(errors.Is(err, fed.ErrUnknownHandle)).To(BeTrue())
		})
	})

	Describe("termination", func() {
		It("terminates the federation when a terminate-on-error federate fails", func() {
			b2, err := broker.New(broker.Config{Federates: 2})
			Expect(err).NotTo(HaveOccurred())
			strict := info("Strict")
			strict.TerminateOnError = true
			s, _ := b2.Register(ctx, strict)
			o, _ := b2.Register(ctx, info("Other"))
			execute(b2, s, o)

			ro := requestAsync(b2, o, 60)
			Consistently(ro, 50*time.Millisecond).ShouldNot(Receive())
			b2.Fail(s, errors.New("model crashed"))

			var r grantResult
			Eventually(ro).Should(Receive(&r))
			Expect(errors.Is(r.err, fed.ErrFederationTerminated)).To(BeTrue())
			Expect(b2.Wait(ctx)).To(MatchError(ContainSubstring("model crashed")))
		})

		It("only finalizes a failing federate without the flag", func() {
			execute(b, a, c)
			ra := requestAsync(b, a, 60)
			b.Fail(c, errors.New("connection lost"))

			var r grantResult
			Eventually(ra).Should(Receive(&r))
			Expect(r.err).NotTo(HaveOccurred())
			Expect(b.Err()).To(BeNil())
		})
	})
})

var _ = Describe("WaitForCurrentTimeUpdate", func() {
	It("grants the waiting federate after its peer has moved past the time", func() {
		ctx := context.Background()
		b, err := broker.New(broker.Config{Federates: 2})
		Expect(err).NotTo(HaveOccurred())

		ctrl, _ := b.Register(ctx, info("Controller"))
		waiting := info("Building")
		waiting.WaitForCurrentTimeUpdate = true
		bld, _ := b.Register(ctx, waiting)

		pub, _ := b.RegisterPublication(ctx, ctrl, fed.PublicationSpec{Key: "a/b", Type: "double"})
		_, _ = b.RegisterSubscription(ctx, bld, fed.SubscriptionSpec{Target: "a/b"})
		execute(b, ctrl, bld)

		rb := requestAsync(b, bld, 60)
		g, err := b.RequestTime(ctx, ctrl, 60)
		Expect(err).NotTo(HaveOccurred())
		Expect(g.Time).To(Equal(60.0))
		Consistently(rb, 50*time.Millisecond).ShouldNot(Receive())

		Expect(b.Publish(ctx, ctrl, pub, 42)).To(Succeed())
		rc := requestAsync(b, ctrl, 120)

		var r grantResult
		Eventually(rb).Should(Receive(&r))
		Expect(r.grant.Time).To(Equal(60.0))
		Expect(r.grant.Updates).To(HaveLen(1))
		Expect(r.grant.Updates[0].Value).To(Equal(42.0))
		Expect(r.grant.Updates[0].Time).To(Equal(60.0))
		Consistently(rc, 50*time.Millisecond).ShouldNot(Receive())

		Expect(b.Finalize(ctx, bld)).To(Succeed())
		Eventually(rc).Should(Receive())
	})
})

var _ = Describe("NewFromCoreInit", func() {
	It("sizes the federation from the core init string", func() {
		b, err := broker.NewFromCoreInit("--federates=1 --name=solo", prometheus.NewRegistry())
		Expect(err).NotTo(HaveOccurred())

		_, err = b.Register(context.Background(), info("Only"))
		Expect(err).NotTo(HaveOccurred())
		_, err = b.Register(context.Background(), info("Extra"))
		Expect(errors.Is(err, fed.ErrFederationFull)).To(BeTrue())
	})

	It("rejects malformed core init strings", func() {
		_, err := broker.NewFromCoreInit("--federates=0", nil)
		Expect(err).To(HaveOccurred())
		_, err = broker.NewFromCoreInit("--bogus", nil)
		Expect(err).To(HaveOccurred())
	})
})
