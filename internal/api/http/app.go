package httpapi

import (
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/i474232898/weather-consensus/internal/cloud"
	"github.com/i474232898/weather-consensus/internal/crosscloud"
	"github.com/i474232898/weather-consensus/internal/store"
	"github.com/i474232898/weather-consensus/internal/weather"
)

var validate = validator.New()

// NewApp builds a Fiber app with the shared middleware and error handler.
// writeTimeout must exceed the slowest handler, which for the aggregator is
// the provider timeout.
func NewApp(name string, writeTimeout time.Duration, logger *slog.Logger) *fiber.App {
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          writeTimeout,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          errorHandler(logger),
	})

	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": name,
		})
	})

	return app
}

// statusOf maps an error to its HTTP status and error code.
func statusOf(err error) (int, string) {
	var fe *fiber.Error
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &fe):
		if fe.Code < fiber.StatusInternalServerError {
			return fe.Code, cloud.CodeInvalidRequest
		}
		return fe.Code, cloud.CodeInternal
	case errors.As(err, &ve):
		return fiber.StatusBadRequest, cloud.CodeInvalidRequest
	case errors.Is(err, weather.ErrLocationNotFound):
		return fiber.StatusNotFound, cloud.CodeLocationNotFound
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound, cloud.CodeNotFound
	case errors.Is(err, crosscloud.ErrNoProviderDataAvailable):
		return fiber.StatusServiceUnavailable, cloud.CodeNoProviderData
	case errors.Is(err, weather.ErrNoDataAvailable):
		return fiber.StatusServiceUnavailable, cloud.CodeNoData
	case errors.Is(err, weather.ErrCredentialsUnavailable):
		return fiber.StatusInternalServerError, cloud.CodeCredentials
	default:
		return fiber.StatusInternalServerError, cloud.CodeInternal
	}
}

func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, code := statusOf(err)

		msg := err.Error()
		if code == cloud.CodeInternal {
			logger.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
				"error", err,
			)
			msg = "internal server error"
		}

		return c.Status(status).JSON(cloud.ErrorBody{
			Error:   true,
			Code:    code,
			Message: msg,
		})
	}
}
