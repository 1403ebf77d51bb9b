package delivery_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	delivery "github.com/JohnPlummer/jp-go-delivery"
)

var _ = Describe("Request", func() {
	Describe("NewRequest", func() {
		It("should build a request with headers, tag and body", func() {
			req, err := delivery.NewRequest(
				delivery.MethodPut,
				"https://api.example.com/items/1",
				delivery.StringDeserializer,
				delivery.WithHeader("Content-Type", "application/json"),
				delivery.WithTag("item-1"),
				delivery.WithBody(delivery.JSONSerializer{Value: map[string]int{"n": 1}}),
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(req.Method()).To(Equal(delivery.MethodPut))
			Expect(req.URL()).To(Equal("https://api.example.com/items/1"))
			Expect(req.Tag()).To(Equal("item-1"))
			Expect(req.NumRetries()).To(Equal(0))
			Expect(req.Headers()).To(Equal(map[string]string{"Content-Type": "application/json"}))
		})

		It("should reject a GET request with a body", func() {
			_, err := delivery.NewRequest(
				delivery.MethodGet,
				"https://api.example.com/items",
				delivery.StringDeserializer,
				delivery.WithBody(delivery.BytesSerializer("x")),
			)
			Expect(errors.Is(err, delivery.ErrBodyNotAllowed)).To(BeTrue())
		})

		It("should accept a GET request without a body", func() {
			_, err := delivery.NewRequest(delivery.MethodGet, "https://api.example.com/items", delivery.StringDeserializer)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should require a method, url and deserializer", func() {
			_, err := delivery.NewRequest("", "https://api.example.com", delivery.StringDeserializer)
			Expect(err).To(HaveOccurred())

			_, err = delivery.NewRequest(delivery.MethodPost, "", delivery.StringDeserializer)
			Expect(err).To(HaveOccurred())

			_, err = delivery.NewRequest[string](delivery.MethodPost, "https://api.example.com", nil)
			Expect(err).To(HaveOccurred())
		})

		It("should return a copy of the headers", func() {
			req, err := delivery.NewRequest(
				delivery.MethodPost,
				"https://api.example.com",
				delivery.StringDeserializer,
				delivery.WithHeader("X-Trace", "abc"),
			)
			Expect(err).NotTo(HaveOccurred())

			headers := req.Headers()
			headers["X-Trace"] = "changed"
			Expect(req.Headers()).To(HaveKeyWithValue("X-Trace", "abc"))
		})
	})

	Describe("Codecs", func() {
		It("should copy bytes on serialize", func() {
			source := delivery.BytesSerializer("abc")
			data, err := source.Serialize()
			Expect(err).NotTo(HaveOccurred())
			data[0] = 'z'
			Expect(string(source)).To(Equal("abc"))
		})

		It("should encode and decode JSON", func() {
			type item struct {
				Name string `json:"name"`
			}
			data, err := delivery.JSONSerializer{Value: item{Name: "widget"}}.Serialize()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal(`{"name":"widget"}`))

			decoded, err := delivery.JSONDeserializer[item]{}.Deserialize(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(decoded.Name).To(Equal("widget"))
		})

		It("should fail to serialize values JSON cannot encode", func() {
			_, err := delivery.JSONSerializer{Value: make(chan int)}.Serialize()
			Expect(err).To(HaveOccurred())
		})

		It("should decode text responses", func() {
			text, err := delivery.StringDeserializer.Deserialize([]byte("文字"))
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("文字"))
		})
	})
})
