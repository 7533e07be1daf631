package api

import (
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/api/middleware"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
)

const APIDocsPath = "/apidocs.json"

func RegisterRoutes(container *restful.Container, handler *Handler) {
	ws := new(restful.WebService)

	ws.
		Path("/api/v1").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	// Health endpoint
	ws.
		Route(ws.GET("health").
			To(handler.Health).
			Doc("Health check").
			Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
			Writes(HealthResponse{}).
			Returns(200, "OK", HealthResponse{}))

	ws.
		Route(ws.POST("/judge").
			To(handler.Judge).
			Doc("Judge a predicted answer against the reference answer").
			Metadata(restfulspec.KeyOpenAPITags, []string{"judge"}).
			Reads(JudgeRequest{}).
			Writes(models.Verdict{}).
			Returns(200, "OK", models.Verdict{}).
			Returns(400, "Bad Request", middleware.ErrorResponse{}).
			Returns(502, "Malformed Judge Response", middleware.ErrorResponse{}).
			Returns(503, "Judge Unavailable", middleware.ErrorResponse{}))

	ws.
		Route(ws.POST("/scores").
			To(handler.Scores).
			Doc("Aggregate verdicts into accuracy and average score").
			Metadata(restfulspec.KeyOpenAPITags, []string{"scores"}).
			Reads(ScoresRequest{}).
			Writes(models.Metrics{}).
			Returns(200, "OK", models.Metrics{}).
			Returns(400, "Bad Request", middleware.ErrorResponse{}).
			Returns(422, "No Yes/No Verdicts", middleware.ErrorResponse{}))

	container.Add(ws)

	container.Add(restfulspec.NewOpenAPIService(restfulspec.Config{
		WebServices: container.RegisteredWebServices(),
		APIPath:     APIDocsPath,
	}))
}

// NewContainer builds the API container with logging and panic recovery filters.
func NewContainer(handler *Handler) *restful.Container {
	container := restful.NewContainer()
	container.Filter(middleware.Logger)
	container.Filter(middleware.RecoverPanic)
	RegisterRoutes(container, handler)
	return container
}
