package serverutils

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"note-editor-core/internal/storage"
)

// BaseResponse is the uniform envelope for every API reply.
type BaseResponse[T any] struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

func SuccessResponse[T any](message string, data T) BaseResponse[T] {
	return BaseResponse[T]{
		Success: true,
		Code:    fiber.StatusOK,
		Message: message,
		Data:    data,
	}
}

func ErrorResponse(code int, message string) BaseResponse[any] {
	return BaseResponse[any]{
		Success: false,
		Code:    code,
		Message: message,
	}
}

var validate = validator.New()

// ValidateRequest runs struct-tag validation on a parsed request body.
func ValidateRequest(req interface{}) error {
	return validate.Struct(req)
}

// ErrorHandlerMiddleware converts errors escaping a handler into the uniform
// envelope. Known error kinds map to their HTTP status, everything else is a 500.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		var fiberErr *fiber.Error
		var validationErrs validator.ValidationErrors

		switch {
		case errors.As(err, &fiberErr):
			return c.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
		case errors.As(err, &validationErrs):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse(fiber.StatusBadRequest, err.Error()))
		case errors.Is(err, storage.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse(fiber.StatusNotFound, err.Error()))
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, err.Error()))
		}
	}
}
