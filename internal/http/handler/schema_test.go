package handler_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sappyoak/sappyoak-site-functions/internal/http/handler"
)

var _ = Describe("SchemaHandler", func() {
	It("serves a schema per published document", func() {
		gin.SetMode(gin.TestMode)
		router := gin.New()
		router.GET("/schema", handler.NewSchemaHandler().Get)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/schema", nil))

		Expect(w.Code).To(Equal(http.StatusOK))

		var body map[string]json.RawMessage
		Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
		Expect(body).To(HaveKey("feedRecord"))
		Expect(body).To(HaveKey("feedPage"))
		Expect(body).To(HaveKey("liveMessage"))
		Expect(string(body["feedRecord"])).To(ContainSubstring("rowKey"))
	})
})
