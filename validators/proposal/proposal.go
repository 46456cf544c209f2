package proposalValidator

import (
	"fmt"
	"time"

	"dfp/middleware"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// CreateProposalRequest is the payload for creating a funding proposal
type CreateProposalRequest struct {
	Title       string     `json:"title" validate:"required,min=5,max=255"`
	Description string     `json:"description" validate:"required,min=20"`
	Category    string     `json:"category" validate:"required"`
	ImageURL    string     `json:"imageUrl" validate:"omitempty,url"`
	Budget      float64    `json:"budget" validate:"required,gt=0"`
	Currency    string     `json:"currency" validate:"omitempty,iso4217"`
	Deadline    *time.Time `json:"deadline"`
}

// ProposalUpdateRequest is the payload for posting a progress update
type ProposalUpdateRequest struct {
	Title string `json:"title" validate:"required,min=5,max=255"`
	Body  string `json:"body" validate:"required,min=10"`
}

// ReviewRequest is the payload for an admin review decision
type ReviewRequest struct {
	Action string `json:"action" validate:"required,oneof=APPROVE REJECT"`
	Note   string `json:"note"`
}

// fieldErrors turns validator failures into the field->message map the
// response envelope expects.
func fieldErrors(err error) map[string]string {
	errors := make(map[string]string)
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		errors["body"] = "Invalid request data!"
		return errors
	}
	for _, fe := range validationErrors {
		switch fe.Tag() {
		case "required":
			errors[fe.Field()] = fmt.Sprintf("%s is required!", fe.Field())
		case "min":
			errors[fe.Field()] = fmt.Sprintf("%s must be at least %s characters long!", fe.Field(), fe.Param())
		case "max":
			errors[fe.Field()] = fmt.Sprintf("%s must be at most %s characters long!", fe.Field(), fe.Param())
		case "gt":
			errors[fe.Field()] = fmt.Sprintf("%s must be greater than %s!", fe.Field(), fe.Param())
		case "url":
			errors[fe.Field()] = fmt.Sprintf("%s must be a valid URL!", fe.Field())
		case "iso4217":
			errors[fe.Field()] = fmt.Sprintf("%s must be a valid currency code!", fe.Field())
		case "oneof":
			errors[fe.Field()] = fmt.Sprintf("%s must be one of: %s!", fe.Field(), fe.Param())
		default:
			errors[fe.Field()] = fmt.Sprintf("%s is invalid!", fe.Field())
		}
	}
	return errors
}

// CreateProposal validates a proposal creation request
func CreateProposal() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(CreateProposalRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		if err := validate.Struct(reqData); err != nil {
			return middleware.ValidationErrorResponse(c, fieldErrors(err))
		}

		if reqData.Currency == "" {
			reqData.Currency = "USD"
		}

		c.Locals("validatedProposal", reqData)
		return c.Next()
	}
}

// CreateUpdate validates a proposal progress update
func CreateUpdate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(ProposalUpdateRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		if err := validate.Struct(reqData); err != nil {
			return middleware.ValidationErrorResponse(c, fieldErrors(err))
		}

		c.Locals("validatedUpdate", reqData)
		return c.Next()
	}
}

// Review validates an admin review decision
func Review() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqData := new(ReviewRequest)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		if err := validate.Struct(reqData); err != nil {
			return middleware.ValidationErrorResponse(c, fieldErrors(err))
		}

		c.Locals("validatedReview", reqData)
		return c.Next()
	}
}
