package response

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Response is the message envelope every endpoint shares. Success payloads
// embed it alongside their own fields.
type Response struct {
	Message string `json:"message,omitempty"`
}

func OK(msg string) Response {
	return Response{Message: msg}
}

func Error(msg string) Response {
	return Response{Message: msg}
}

func ValidationError(errs validator.ValidationErrors) Response {
	var msgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", err.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("field %s is not a valid email", err.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}

	return Response{Message: strings.Join(msgs, ", ")}
}
