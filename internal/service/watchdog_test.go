package service_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"ampara.app/soporte/internal/model"
	"ampara.app/soporte/internal/notify"
	"ampara.app/soporte/internal/service"
	"ampara.app/soporte/internal/store"
)

var _ = Describe("Watchdog", func() {
	const delay = 20 * time.Millisecond

	var (
		convStore *mockConversationStore
		msgStore  *mockMessageStore
		producer  *mockProducer
		watchdog  *service.Watchdog

		mu     sync.Mutex
		alerts []notify.Alert
		merges []store.Patch
	)

	alertCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(alerts)
	}

	BeforeEach(func() {
		alerts = nil
		merges = nil

		convStore = &mockConversationStore{
			mergeFn: func(ctx context.Context, id string, patch store.Patch) error {
				mu.Lock()
				defer mu.Unlock()
				merges = append(merges, patch)
				return nil
			},
		}
		msgStore = &mockMessageStore{}
		producer = &mockProducer{
			enqueueFn: func(ctx context.Context, alert notify.Alert) error {
				mu.Lock()
				defer mu.Unlock()
				alerts = append(alerts, alert)
				return nil
			},
		}
		watchdog = service.NewWatchdog(convStore, msgStore, producer, delay)
	})

	AfterEach(func() {
		watchdog.Stop()
	})

	It("alerts when an intervened conversation goes unanswered", func() {
		convStore.getFn = func(ctx context.Context, id string) (*model.Conversation, error) {
			return &model.Conversation{ID: id, Intervened: true}, nil
		}

		watchdog.Schedule("visitor-1", time.Now().UTC())

		Eventually(alertCount, 5*delay).Should(Equal(1))
		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			return len(merges)
		}, 5*delay).Should(Equal(1))

		mu.Lock()
		defer mu.Unlock()
		Expect(alerts[0].Kind).To(Equal(notify.AlertUnattended))
		Expect(alerts[0].ConversationID).To(Equal("visitor-1"))
		Expect(merges[0]).To(HaveKey(store.FieldLastWatchdogAlertAt))
	})

	It("stays silent when the conversation is not intervened", func() {
		convStore.getFn = func(ctx context.Context, id string) (*model.Conversation, error) {
			return &model.Conversation{ID: id, Intervened: false}, nil
		}

		watchdog.Schedule("visitor-1", time.Now().UTC())

		Consistently(alertCount, 5*delay).Should(BeZero())
	})

	It("stays silent when the agent answered in time", func() {
		convStore.getFn = func(ctx context.Context, id string) (*model.Conversation, error) {
			return &model.Conversation{ID: id, Intervened: true}, nil
		}
		msgStore.countManualSinceFn = func(ctx context.Context, conversationID string, after time.Time) (int, error) {
			return 1, nil
		}

		watchdog.Schedule("visitor-1", time.Now().UTC())

		Consistently(alertCount, 5*delay).Should(BeZero())
	})

	It("does not repeat an alert that already covers the message", func() {
		messageAt := time.Now().UTC()
		alertedAt := messageAt.Add(time.Second)
		convStore.getFn = func(ctx context.Context, id string) (*model.Conversation, error) {
			return &model.Conversation{ID: id, Intervened: true, LastWatchdogAlertAt: &alertedAt}, nil
		}

		watchdog.Schedule("visitor-1", messageAt)

		Consistently(alertCount, 5*delay).Should(BeZero())
	})

	It("collapses rapid messages into a single pending check", func() {
		convStore.getFn = func(ctx context.Context, id string) (*model.Conversation, error) {
			return &model.Conversation{ID: id, Intervened: true}, nil
		}

		now := time.Now().UTC()
		watchdog.Schedule("visitor-1", now)
		watchdog.Schedule("visitor-1", now.Add(time.Millisecond))
		watchdog.Schedule("visitor-1", now.Add(2*time.Millisecond))

		Eventually(alertCount, 5*delay).Should(Equal(1))
		Consistently(alertCount, 5*delay).Should(Equal(1))
	})

	It("drops pending checks on Stop", func() {
		convStore.getFn = func(ctx context.Context, id string) (*model.Conversation, error) {
			return &model.Conversation{ID: id, Intervened: true}, nil
		}

		watchdog.Schedule("visitor-1", time.Now().UTC())
		watchdog.Stop()

		Consistently(alertCount, 5*delay).Should(BeZero())
	})
})
