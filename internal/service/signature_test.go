package service_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sappyoak/sappyoak-site-functions/internal/service"
)

var _ = Describe("VerifySignature", func() {
	secret := []byte("It's a Secret to Everybody")
	body := []byte("Hello, World!")

	It("matches GitHub's documented test vector", func() {
		Expect(service.SignBody(secret, body)).To(Equal(
			"sha256=757107ea0eb2509fc211221cce984b8a37570b6d7586c22c46f4379c8b043e17"))
	})

	It("accepts the signature of the exact body", func() {
		Expect(service.VerifySignature(secret, body, service.SignBody(secret, body))).To(Succeed())
	})

	It("rejects every single-bit mutation of the body", func() {
		signature := service.SignBody(secret, body)
		for i := range body {
			for bit := range 8 {
				mutated := append([]byte(nil), body...)
				mutated[i] ^= 1 << bit
				Expect(service.VerifySignature(secret, mutated, signature)).To(
					MatchError(service.ErrInvalidSignature), "byte %d bit %d", i, bit)
			}
		}
	})

	It("rejects signatures of a different length", func() {
		signature := service.SignBody(secret, body)
		Expect(service.VerifySignature(secret, body, signature[:len(signature)-1])).To(MatchError(service.ErrInvalidSignature))
		Expect(service.VerifySignature(secret, body, signature+"0")).To(MatchError(service.ErrInvalidSignature))
	})

	It("rejects a signature made with another secret", func() {
		Expect(service.VerifySignature(secret, body, service.SignBody([]byte("other"), body))).To(MatchError(service.ErrInvalidSignature))
	})

	It("fails fast on a missing header", func() {
		Expect(service.VerifySignature(secret, body, "")).To(MatchError(service.ErrMissingSignature))
	})
})
