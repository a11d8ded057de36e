package service_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"ampara.app/soporte/internal/service"
)

var _ = Describe("EscalationDetector", func() {
	var detector service.EscalationDetector

	BeforeEach(func() {
		detector = service.NewEscalationDetector([]string{
			"hablar con una persona",
			"quiero hablar con un humano",
			"necesito ayuda humana",
			"pasame con un humano",
			"quiero hablar con alguien",
			"agente humano",
		})
	})

	DescribeTable("phrase matching",
		func(text string, expected bool) {
			Expect(detector.Detect(text)).To(Equal(expected))
		},
		Entry("direct request", "quiero hablar con un humano", true),
		Entry("request embedded in a sentence", "por favor, necesito ayuda humana con esto", true),
		Entry("uppercase", "QUIERO HABLAR CON UN HUMANO", true),
		Entry("mixed case", "Quiero Hablar Con Alguien ahora", true),
		Entry("accented variant", "pásame con un humano", true),
		Entry("agent phrase", "me pueden poner con un agente humano?", true),
		Entry("ordinary question", "cuánto cuesta el servicio?", false),
		Entry("mentions a person but no request", "una persona me recomendó este servicio", false),
		Entry("empty message", "", false),
		Entry("partial phrase", "quiero hablar", false),
	)

	It("ignores empty configured phrases", func() {
		d := service.NewEscalationDetector([]string{"", "  ", "ayuda real"})
		Expect(d.Detect("no match here")).To(BeFalse())
		Expect(d.Detect("necesito AYUDA REAL ya")).To(BeTrue())
	})
})
