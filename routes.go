package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mudler/localqa/rag"
	"github.com/mudler/localqa/rag/extract"
	"github.com/mudler/localqa/rag/llm"
	"github.com/mudler/localqa/rag/sources"
	"github.com/mudler/localqa/rag/types"
	"github.com/mudler/xlog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultTermsLimit = 10

type requestValidator struct {
	validator *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

func newAPI(cfg config, a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{validator: validator.New()}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	if cfg.MaxUploadBytes != "" {
		e.Use(middleware.BodyLimit(cfg.MaxUploadBytes))
	}
	e.Use(a.metrics.Middleware())

	registerStaticHandler(e, cfg.StaticDir)

	e.POST("/upload-file/", uploadFile(a.service))
	e.POST("/upload-url/", uploadURL(a.service, a.fetcher))
	e.POST("/ask-question/", askQuestion(a.service))
	e.POST("/close-session/", closeSession(a.service))
	e.GET("/available-models/", availableModels(a.orchestrator))
	e.GET("/sessions/:id/terms", sessionTerms(a.service))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	return e
}

func errorMessage(message string) map[string]string {
	return map[string]string{"error": message}
}

// statusFor maps a pipeline error to the HTTP status reported to the client.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrUnsupportedMediaType):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Sprintf("Missing or invalid field: %s", verrs[0].Field())
	}
	return "Invalid request: " + err.Error()
}

// uploadFile extracts and indexes an uploaded document and opens a session for it
func uploadFile(service *rag.Service) func(c echo.Context) error {
	return func(c echo.Context) error {
		file, err := c.FormFile("file")
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Failed to read file: "+err.Error()))
		}

		f, err := file.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Failed to open file: "+err.Error()))
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Failed to read file: "+err.Error()))
		}

		mt, err := extract.ResolveMediaType(file.Header.Get("Content-Type"), data)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage(err.Error()))
		}

		xlog.Info("Processing upload", "file", file.Filename, "type", mt.String(), "size", len(data))

		id, err := service.Upload(c.Request().Context(), data, mt)
		if err != nil {
			return c.JSON(statusFor(err), errorMessage("Error processing file: "+err.Error()))
		}

		return c.JSON(http.StatusOK, map[string]string{
			"message":    "File processed and indexed.",
			"session_id": id,
			"media_type": mt.String(),
		})
	}
}

type urlRequest struct {
	URL string `form:"url" validate:"required,url"`
}

// uploadURL downloads a web page, or every page of a sitemap, and indexes it as one session
func uploadURL(service *rag.Service, fetcher *sources.Fetcher) func(c echo.Context) error {
	return func(c echo.Context) error {
		r := new(urlRequest)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}
		if err := c.Validate(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage(validationMessage(err)))
		}

		docs, err := fetcher.Fetch(c.Request().Context(), r.URL)
		if errors.Is(err, sources.ErrForbiddenDestination) {
			return c.JSON(http.StatusBadRequest, errorMessage("Failed to download: "+err.Error()))
		}
		if err != nil {
			return c.JSON(http.StatusBadGateway, errorMessage("Failed to download: "+err.Error()))
		}

		parts := make([]rag.Part, 0, len(docs))
		lastErr := errors.New("no usable pages")
		for _, doc := range docs {
			mt, err := extract.ResolveMediaType(doc.ContentType, doc.Data)
			if err != nil {
				xlog.Warn("Skipping unsupported page", "url", doc.URL, "error", err)
				lastErr = fmt.Errorf("%s: %w", doc.URL, err)
				continue
			}
			parts = append(parts, rag.Part{Data: doc.Data, MediaType: mt})
		}
		if len(parts) == 0 {
			return c.JSON(http.StatusBadRequest, errorMessage(lastErr.Error()))
		}

		id, err := service.UploadParts(c.Request().Context(), parts)
		if err != nil {
			return c.JSON(statusFor(err), errorMessage("Error processing url: "+err.Error()))
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"message":    "URL processed and indexed.",
			"session_id": id,
			"pages":      len(parts),
		})
	}
}

type askRequest struct {
	SessionID string   `form:"session_id" validate:"required"`
	Question  string   `form:"question" validate:"required"`
	Models    []string `form:"models"`
}

// askQuestion answers a question about a session's document with every selected model
func askQuestion(service *rag.Service) func(c echo.Context) error {
	return func(c echo.Context) error {
		r := new(askRequest)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}
		if err := c.Validate(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage(validationMessage(err)))
		}

		params, err := c.FormParams()
		if err == nil {
			r.Models = append(r.Models, params["models[]"]...)
		}

		models, err := llm.ParseModelIDs(r.Models)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage(err.Error()))
		}

		answers, err := service.Ask(c.Request().Context(), r.SessionID, r.Question, models)
		if err != nil {
			return c.JSON(statusFor(err), errorMessage(err.Error()))
		}

		responses := make(map[string]string, len(answers))
		for id, answer := range answers {
			if answer.Err != nil {
				responses[id.String()] = "error: " + answer.Err.Error()
				continue
			}
			responses[id.String()] = answer.Text
		}

		return c.JSON(http.StatusOK, map[string]interface{}{"responses": responses})
	}
}

type closeRequest struct {
	SessionID string `form:"session_id" validate:"required"`
}

func closeSession(service *rag.Service) func(c echo.Context) error {
	return func(c echo.Context) error {
		r := new(closeRequest)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}
		if err := c.Validate(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage(validationMessage(err)))
		}

		if err := service.Close(r.SessionID); err != nil {
			return c.JSON(statusFor(err), errorMessage("Session not found"))
		}

		return c.JSON(http.StatusOK, map[string]string{"message": "Session closed and resources cleaned up."})
	}
}

func availableModels(orchestrator *llm.Orchestrator) func(c echo.Context) error {
	return func(c echo.Context) error {
		type model struct {
			ID         string `json:"id"`
			Configured bool   `json:"configured"`
		}

		models := make([]model, 0, len(llm.AllModels))
		for _, id := range llm.AllModels {
			models = append(models, model{ID: id.String(), Configured: orchestrator.Configured(id)})
		}

		defaults := []string{}
		for _, id := range orchestrator.DefaultModels() {
			defaults = append(defaults, id.String())
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"models":  models,
			"default": defaults,
		})
	}
}

func sessionTerms(service *rag.Service) func(c echo.Context) error {
	return func(c echo.Context) error {
		limit := defaultTermsLimit
		if l := c.QueryParam("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 0 {
				return c.JSON(http.StatusBadRequest, errorMessage("Invalid limit"))
			}
			limit = n
		}

		terms, err := service.Terms(c.Param("id"), limit)
		if err != nil {
			return c.JSON(statusFor(err), errorMessage(err.Error()))
		}

		return c.JSON(http.StatusOK, map[string]interface{}{"terms": terms})
	}
}
