package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"ampara.app/soporte/core/config"
	"ampara.app/soporte/internal/llm"
	"ampara.app/soporte/internal/model"
	"ampara.app/soporte/internal/notify"
	"ampara.app/soporte/internal/service"
	"ampara.app/soporte/internal/store"
)

const (
	testAck     = "Te transfiero con un agente humano."
	testApology = "Lo siento, ocurrió un error."
)

func testChatConfig() config.ChatConfig {
	return config.ChatConfig{
		EscalationPhrases: []string{"quiero hablar con un humano", "agente humano"},
		WatchdogDelay:     time.Minute,
		IdleThreshold:     10 * time.Minute,
		DefaultLanguage:   "es",
		Acknowledgement:   testAck,
		ApologyReply:      testApology,
	}
}

// appendRecorder collects appended messages behind a mutex so assertions can
// inspect them.
type appendRecorder struct {
	mu       sync.Mutex
	messages []model.Message
}

func (r *appendRecorder) record(msg *model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, *msg)
}

func (r *appendRecorder) all() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Message(nil), r.messages...)
}

var _ = Describe("ConversationService", func() {
	var (
		ctx       context.Context
		convStore *mockConversationStore
		msgStore  *mockMessageStore
		assistant *mockAssistant
		producer  *mockProducer
		scheduler *mockScheduler
		recorder  *appendRecorder

		alerts    []notify.Alert
		alertsMu  sync.Mutex
		merges    []store.Patch
		scheduled []string
	)

	newService := func() service.ConversationService {
		cfg := testChatConfig()
		var client llm.Client
		if assistant != nil {
			client = assistant
		}
		return service.NewConversationService(
			convStore,
			msgStore,
			client,
			producer,
			service.NewEscalationDetector(cfg.EscalationPhrases),
			service.NewLanguageResolver(client, cfg.DefaultLanguage),
			scheduler,
			cfg,
			"prompt",
		)
	}

	BeforeEach(func() {
		ctx = context.Background()
		recorder = &appendRecorder{}
		alerts = nil
		merges = nil
		scheduled = nil

		convStore = &mockConversationStore{
			mergeFn: func(ctx context.Context, id string, patch store.Patch) error {
				merges = append(merges, patch)
				return nil
			},
		}
		msgStore = &mockMessageStore{
			appendFn: func(ctx context.Context, msg *model.Message) error {
				recorder.record(msg)
				return nil
			},
		}
		assistant = &mockAssistant{}
		producer = &mockProducer{
			enqueueFn: func(ctx context.Context, alert notify.Alert) error {
				alertsMu.Lock()
				defer alertsMu.Unlock()
				alerts = append(alerts, alert)
				return nil
			},
		}
		scheduler = &mockScheduler{
			scheduleFn: func(conversationID string, messageAt time.Time) {
				scheduled = append(scheduled, conversationID)
			},
		}
	})

	Describe("HandleUserMessage", func() {
		It("appends the user message and returns an assistant reply", func() {
			assistant.replyFn = func(ctx context.Context, systemPrompt string, history []llm.Turn, userText string) (string, error) {
				Expect(systemPrompt).To(Equal("prompt"))
				Expect(userText).To(Equal("hola, necesito información"))
				return "claro, te cuento", nil
			}

			reply, err := newService().HandleUserMessage(ctx, "visitor-1", "hola, necesito información")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Escalated).To(BeFalse())
			Expect(reply.Message).NotTo(BeNil())
			Expect(reply.Message.Content).To(Equal("claro, te cuento"))
			Expect(reply.Message.Role).To(Equal(model.RoleAssistant))

			messages := recorder.all()
			Expect(messages).To(HaveLen(2))
			Expect(messages[0].Role).To(Equal(model.RoleUser))
			Expect(messages[0].Content).To(Equal("hola, necesito información"))
			Expect(messages[1].Role).To(Equal(model.RoleAssistant))
		})

		It("stamps messages at whole-second precision", func() {
			_, err := newService().HandleUserMessage(ctx, "visitor-1", "hola")
			Expect(err).NotTo(HaveOccurred())

			for _, msg := range recorder.all() {
				Expect(msg.SentAt.Nanosecond()).To(BeZero())
				Expect(msg.SentAt.Location()).To(Equal(time.UTC))
			}
		})

		It("reactivates a closed conversation on an inbound message", func() {
			convStore.getFn = func(ctx context.Context, id string) (*model.Conversation, error) {
				return &model.Conversation{ID: id, State: model.ConversationClosed, Language: "es"}, nil
			}
			touched := false
			convStore.touchFn = func(ctx context.Context, id, language string, at time.Time) (*model.Conversation, error) {
				touched = true
				return &model.Conversation{ID: id, State: model.ConversationOpen, Language: language}, nil
			}
			assistant.replyFn = func(ctx context.Context, systemPrompt string, history []llm.Turn, userText string) (string, error) {
				return "bienvenido de nuevo", nil
			}

			reply, err := newService().HandleUserMessage(ctx, "visitor-1", "hola otra vez")
			Expect(err).NotTo(HaveOccurred())
			Expect(touched).To(BeTrue())
			Expect(reply.Message).NotTo(BeNil())
			Expect(reply.Message.Content).To(Equal("bienvenido de nuevo"))
		})

		It("arms the watchdog on every inbound message", func() {
			_, err := newService().HandleUserMessage(ctx, "visitor-1", "hola")
			Expect(err).NotTo(HaveOccurred())
			Expect(scheduled).To(Equal([]string{"visitor-1"}))
		})

		It("answers with the apology when the assistant fails", func() {
			assistant.replyFn = func(ctx context.Context, systemPrompt string, history []llm.Turn, userText string) (string, error) {
				return "", errors.New("api down")
			}

			reply, err := newService().HandleUserMessage(ctx, "visitor-1", "hola")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Message.Content).To(Equal(testApology))
		})

		It("answers with the apology when no assistant is configured", func() {
			assistant = nil

			reply, err := newService().HandleUserMessage(ctx, "visitor-1", "hola")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Message.Content).To(Equal(testApology))
		})

		It("normalizes foreign-language messages and keeps the original", func() {
			assistant.detectLanguageFn = func(ctx context.Context, text string) (string, error) {
				return "en", nil
			}
			assistant.translateFn = func(ctx context.Context, text, target string) (string, error) {
				Expect(target).To(Equal("es"))
				return "hola, necesito ayuda", nil
			}

			_, err := newService().HandleUserMessage(ctx, "visitor-1", "hi, I need help")
			Expect(err).NotTo(HaveOccurred())

			messages := recorder.all()
			Expect(messages[0].Content).To(Equal("hola, necesito ayuda"))
			Expect(messages[0].Original).To(Equal("hi, I need help"))
			Expect(messages[0].Language).To(Equal("en"))
		})

		It("stays silent while an agent owns the conversation", func() {
			convStore.touchFn = func(ctx context.Context, id, language string, at time.Time) (*model.Conversation, error) {
				return &model.Conversation{ID: id, State: model.ConversationOpen, Intervened: true}, nil
			}
			assistant.replyFn = func(ctx context.Context, systemPrompt string, history []llm.Turn, userText string) (string, error) {
				Fail("assistant must not be called while intervened")
				return "", nil
			}

			reply, err := newService().HandleUserMessage(ctx, "visitor-1", "sigo esperando")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Message).To(BeNil())
			Expect(reply.Escalated).To(BeFalse())

			messages := recorder.all()
			Expect(messages).To(HaveLen(1))
			Expect(messages[0].Role).To(Equal(model.RoleUser))
		})
	})

	Describe("escalation", func() {
		It("marks the request, alerts the roster once and acknowledges", func() {
			reply, err := newService().HandleUserMessage(ctx, "visitor-1", "quiero hablar con un humano")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Escalated).To(BeTrue())
			Expect(reply.Message.Content).To(Equal(testAck))

			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].Kind).To(Equal(notify.AlertEscalation))
			Expect(alerts[0].ConversationID).To(Equal("visitor-1"))

			Expect(merges).To(HaveLen(1))
			Expect(merges[0]).To(HaveKey(store.FieldEscalationRequestedAt))
		})

		It("acknowledges repeat requests without alerting again", func() {
			requestedAt := time.Now().UTC().Add(-time.Minute)
			convStore.touchFn = func(ctx context.Context, id, language string, at time.Time) (*model.Conversation, error) {
				return &model.Conversation{
					ID:                    id,
					State:                 model.ConversationOpen,
					EscalationRequestedAt: &requestedAt,
				}, nil
			}
			assistant.replyFn = func(ctx context.Context, systemPrompt string, history []llm.Turn, userText string) (string, error) {
				Fail("assistant must not answer an escalation request")
				return "", nil
			}

			reply, err := newService().HandleUserMessage(ctx, "visitor-1", "quiero hablar con un humano ya")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Escalated).To(BeTrue())
			Expect(reply.Message).NotTo(BeNil())
			Expect(reply.Message.Content).To(Equal(testAck))
			Expect(alerts).To(BeEmpty())
			Expect(merges).To(BeEmpty())
		})

		It("does not alert when an agent already intervened", func() {
			convStore.touchFn = func(ctx context.Context, id, language string, at time.Time) (*model.Conversation, error) {
				return &model.Conversation{ID: id, State: model.ConversationOpen, Intervened: true}, nil
			}

			reply, err := newService().HandleUserMessage(ctx, "visitor-1", "quiero hablar con un humano")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Escalated).To(BeFalse())
			Expect(reply.Message).To(BeNil())
			Expect(alerts).To(BeEmpty())
		})

		It("localizes the acknowledgement for foreign visitors", func() {
			assistant.detectLanguageFn = func(ctx context.Context, text string) (string, error) {
				return "en", nil
			}
			assistant.translateFn = func(ctx context.Context, text, target string) (string, error) {
				if text == testAck {
					Expect(target).To(Equal("en"))
					return "Transferring you to a human agent.", nil
				}
				return text, nil
			}

			reply, err := newService().HandleUserMessage(ctx, "visitor-1", "I want an agente humano please")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Escalated).To(BeTrue())
			Expect(reply.Message.Content).To(Equal("Transferring you to a human agent."))
		})
	})

	Describe("HandleAgentReply", func() {
		agent := &model.Agent{ID: 7, Name: "Ana", Email: "ana@example.com"}

		It("takes over the conversation on the first reply", func() {
			convStore.getFn = func(ctx context.Context, id string) (*model.Conversation, error) {
				return &model.Conversation{ID: id, State: model.ConversationOpen}, nil
			}

			msg, err := newService().HandleAgentReply(ctx, "visitor-1", agent, "hola, soy Ana")
			Expect(err).NotTo(HaveOccurred())
			Expect(msg.Manual).To(BeTrue())
			Expect(msg.Role).To(Equal(model.RoleAssistant))

			messages := recorder.all()
			Expect(messages).To(HaveLen(2))
			Expect(messages[0].Kind).To(Equal(model.KindStatus))
			Expect(messages[0].Content).To(Equal(model.StatusIntervened))
			Expect(messages[1].Content).To(Equal("hola, soy Ana"))

			Expect(merges).To(HaveLen(1))
			Expect(merges[0][store.FieldIntervened]).To(Equal(true))
			Expect(merges[0][store.FieldIntervenedBy]).NotTo(BeNil())
		})

		It("keeps the owner on subsequent replies", func() {
			owner := &model.AgentRef{ID: 7, Name: "Ana"}
			convStore.getFn = func(ctx context.Context, id string) (*model.Conversation, error) {
				return &model.Conversation{ID: id, State: model.ConversationOpen, Intervened: true, IntervenedBy: owner}, nil
			}

			_, err := newService().HandleAgentReply(ctx, "visitor-1", agent, "sigo aquí")
			Expect(err).NotTo(HaveOccurred())

			messages := recorder.all()
			Expect(messages).To(HaveLen(1))
			Expect(messages[0].Kind).To(Equal(model.KindText))

			for _, patch := range merges {
				Expect(patch).NotTo(HaveKey(store.FieldIntervenedBy))
			}
		})

		It("reopens an archived conversation on a subsequent reply", func() {
			owner := &model.AgentRef{ID: 7, Name: "Ana"}
			convStore.getFn = func(ctx context.Context, id string) (*model.Conversation, error) {
				return &model.Conversation{ID: id, State: model.ConversationArchived, Intervened: true, IntervenedBy: owner}, nil
			}

			_, err := newService().HandleAgentReply(ctx, "visitor-1", agent, "sigo aquí")
			Expect(err).NotTo(HaveOccurred())

			Expect(merges).To(HaveLen(1))
			Expect(merges[0][store.FieldState]).To(Equal(string(model.ConversationOpen)))
			Expect(merges[0]).To(HaveKey(store.FieldLastMessageAt))
		})

		It("fails for an unknown conversation", func() {
			_, err := newService().HandleAgentReply(ctx, "nope", agent, "hola")
			Expect(err).To(MatchError(service.ErrConversationNotFound))
		})
	})

	Describe("Release", func() {
		It("clears the intervention and records the transition", func() {
			convStore.getFn = func(ctx context.Context, id string) (*model.Conversation, error) {
				return &model.Conversation{ID: id, Intervened: true, IntervenedBy: &model.AgentRef{ID: 7}}, nil
			}

			Expect(newService().Release(ctx, "visitor-1")).To(Succeed())

			Expect(merges).To(HaveLen(1))
			Expect(merges[0][store.FieldIntervened]).To(Equal(false))
			Expect(merges[0][store.FieldIntervenedBy]).To(BeNil())
			Expect(merges[0][store.FieldEscalationRequestedAt]).To(BeNil())

			messages := recorder.all()
			Expect(messages).To(HaveLen(1))
			Expect(messages[0].Content).To(Equal(model.StatusReleased))
		})

		It("is a no-op when nobody intervened", func() {
			convStore.getFn = func(ctx context.Context, id string) (*model.Conversation, error) {
				return &model.Conversation{ID: id}, nil
			}

			Expect(newService().Release(ctx, "visitor-1")).To(Succeed())
			Expect(merges).To(BeEmpty())
			Expect(recorder.all()).To(BeEmpty())
		})
	})

	Describe("Close", func() {
		It("closes and releases an intervened conversation", func() {
			convStore.getFn = func(ctx context.Context, id string) (*model.Conversation, error) {
				return &model.Conversation{ID: id, Intervened: true}, nil
			}

			Expect(newService().Close(ctx, "visitor-1")).To(Succeed())

			Expect(merges).To(HaveLen(1))
			Expect(merges[0][store.FieldState]).To(Equal(string(model.ConversationClosed)))
			Expect(merges[0][store.FieldIntervened]).To(Equal(false))

			messages := recorder.all()
			Expect(messages).To(HaveLen(2))
			Expect(messages[0].Content).To(Equal(model.StatusClosed))
			Expect(messages[1].Content).To(Equal(model.StatusReleased))
		})

		It("records both transitions even when nobody intervened", func() {
			convStore.getFn = func(ctx context.Context, id string) (*model.Conversation, error) {
				return &model.Conversation{ID: id}, nil
			}

			Expect(newService().Close(ctx, "visitor-1")).To(Succeed())

			messages := recorder.all()
			Expect(messages).To(HaveLen(2))
			Expect(messages[0].Content).To(Equal(model.StatusClosed))
			Expect(messages[1].Content).To(Equal(model.StatusReleased))
		})
	})

	Describe("List", func() {
		It("sweeps idle conversations before listing the open ones", func() {
			swept := false
			convStore.archiveIdleFn = func(ctx context.Context, cutoff time.Time) (int, error) {
				swept = true
				Expect(cutoff).To(BeTemporally("~", time.Now().UTC().Add(-10*time.Minute), 2*time.Second))
				return 0, nil
			}

			_, err := newService().List(ctx, model.ConversationOpen, 50)
			Expect(err).NotTo(HaveOccurred())
			Expect(swept).To(BeTrue())
		})

		It("does not sweep for archived listings", func() {
			convStore.archiveIdleFn = func(ctx context.Context, cutoff time.Time) (int, error) {
				Fail("sweep must not run for archived listings")
				return 0, nil
			}

			_, err := newService().List(ctx, model.ConversationArchived, 50)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("MarkSeen", func() {
		It("resets the unseen counter", func() {
			convStore.getFn = func(ctx context.Context, id string) (*model.Conversation, error) {
				return &model.Conversation{ID: id, State: model.ConversationOpen, UnseenCount: 3}, nil
			}

			Expect(newService().MarkSeen(ctx, "visitor-1")).To(Succeed())

			Expect(merges).To(HaveLen(1))
			Expect(merges[0][store.FieldUnseenCount]).To(Equal(0))
			Expect(merges[0]).To(HaveKey(store.FieldLastSeenAt))
		})

		It("fails for an unknown conversation", func() {
			err := newService().MarkSeen(ctx, "nope")
			Expect(err).To(MatchError(service.ErrConversationNotFound))
			Expect(merges).To(BeEmpty())
		})
	})
})
