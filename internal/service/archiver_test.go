package service_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"ampara.app/soporte/internal/service"
)

var _ = Describe("Archiver", func() {
	It("sweeps with a cutoff one threshold in the past", func() {
		var gotCutoff time.Time
		convStore := &mockConversationStore{
			archiveIdleFn: func(ctx context.Context, cutoff time.Time) (int, error) {
				gotCutoff = cutoff
				return 3, nil
			},
		}

		archiver := service.NewArchiver(convStore, 10*time.Minute, time.Minute)
		count, err := archiver.SweepIdle(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(3))

		expected := time.Now().UTC().Add(-10 * time.Minute)
		// The cutoff is truncated to whole seconds before subtracting.
		Expect(gotCutoff).To(BeTemporally("~", expected, 2*time.Second))
	})

	It("propagates store failures", func() {
		convStore := &mockConversationStore{
			archiveIdleFn: func(ctx context.Context, cutoff time.Time) (int, error) {
				return 0, errors.New("db down")
			},
		}

		archiver := service.NewArchiver(convStore, 10*time.Minute, time.Minute)
		_, err := archiver.SweepIdle(context.Background())
		Expect(err).To(HaveOccurred())
	})

	It("stops sweeping when the context is cancelled", func() {
		sweeps := make(chan struct{}, 10)
		convStore := &mockConversationStore{
			archiveIdleFn: func(ctx context.Context, cutoff time.Time) (int, error) {
				sweeps <- struct{}{}
				return 0, nil
			},
		}

		archiver := service.NewArchiver(convStore, time.Minute, 10*time.Millisecond)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			archiver.Run(ctx)
			close(done)
		}()

		Eventually(sweeps).Should(Receive())
		cancel()
		Eventually(done).Should(BeClosed())
	})
})
