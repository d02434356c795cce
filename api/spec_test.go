package api_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/employee-management/api"
)

func TestAPI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "API Document Suite")
}

var _ = Describe("Load", func() {
	It("validates the embedded document", func() {
		doc, err := api.Load(context.Background())
		Expect(err).NotTo(HaveOccurred())

		data := doc.Paths.Find("/api/data")
		Expect(data).NotTo(BeNil())
		Expect(data.Get).NotTo(BeNil())
		Expect(data.Post).NotTo(BeNil())
		Expect(data.Put).NotTo(BeNil())
		Expect(data.Delete).NotTo(BeNil())
		Expect(doc.Paths.Find("/api/v1/health")).NotTo(BeNil())
	})

	It("lists every dispatcher endpoint", func() {
		doc, err := api.Load(context.Background())
		Expect(err).NotTo(HaveOccurred())

		endpoint := doc.Components.Parameters["Endpoint"].Value
		Expect(endpoint.Required).To(BeTrue())
		Expect(endpoint.Schema.Value.Enum).To(ContainElements("auth", "users", "audit-export", "navigation"))
	})
})
