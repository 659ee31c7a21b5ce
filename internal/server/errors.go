package server

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"healthstack/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerTagNames sync.Once

// useWireFieldNames makes validation errors name fields the way clients send
// them (json or form tag) instead of by Go field name.
func useWireFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, key := range []string{"json", "form"} {
				name, _, _ := strings.Cut(f.Tag.Get(key), ",")
				if name != "" && name != "-" {
					return name
				}
			}
			return ""
		})
	})
}

const problemContentType = "application/problem+json"

type problem struct {
	Title    string            `json:"title"`
	Detail   string            `json:"detail,omitempty"`
	Status   int               `json:"status"`
	Instance string            `json:"instance,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
	OrderID  string            `json:"orderId,omitempty"`
}

// writeProblem keeps the problem content type: gin only sets
// application/json when no Content-Type is present.
func writeProblem(c *gin.Context, p problem) {
	if p.Instance == "" {
		p.Instance = c.Request.URL.Path
	}
	c.Header("Content-Type", problemContentType)
	c.JSON(p.Status, p)
}

func statusForKind(k domain.ErrorKind) int {
	switch k {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func titleForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "One or more validation errors occurred."
	case http.StatusNotFound:
		return "Resource not found."
	case http.StatusBadGateway:
		return "Upstream service failed."
	default:
		return "An unexpected error occurred."
	}
}

// writeError maps a service error to a problem response. Internal details are
// only exposed for client-caused failures.
func (s *Server) writeError(c *gin.Context, err error) {
	status := statusForKind(domain.KindOf(err))
	p := problem{Title: titleForStatus(status), Status: status}
	if status < http.StatusInternalServerError || status == http.StatusBadGateway {
		p.Detail = err.Error()
	}
	writeProblem(c, p)
}

// writeBindError turns binding failures into a 400 with a per-field map.
func writeBindError(c *gin.Context, err error) {
	p := problem{Title: titleForStatus(http.StatusBadRequest), Status: http.StatusBadRequest}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		p.Errors = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			p.Errors[fieldPath(fe)] = fieldMessage(fe)
		}
	} else {
		p.Detail = "request body is not valid JSON: " + err.Error()
	}
	writeProblem(c, p)
}

// fieldPath turns "CreateOrderRequest.Items[0].Quantity" into "items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	parts := strings.Split(ns, ".")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToLower(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, ".")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if fe.Kind() == reflect.Slice {
			return "must contain at least one item"
		}
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "must contain at least one item"
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
