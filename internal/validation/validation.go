// Package validation holds the request schemas and turns schema violations
// into Validation errors with a single human-readable message.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/splax/todos/internal/apperr"
)

// CreateTodo is the body of POST /todos/addTodos.
type CreateTodo struct {
	Name   string `json:"name" validate:"required,min=3,max=30"`
	IsDone *bool  `json:"isDone" validate:"required"`
}

// UpdateTodo is the body of PUT /todos/updateTodos/{id}. Absent fields are left
// unchanged, but at least one must be present.
type UpdateTodo struct {
	Name   *string `json:"name" validate:"omitempty,min=3,max=30"`
	IsDone *bool   `json:"isDone"`
}

// CreateUser is the body of POST /users and POST /auth/signup.
type CreateUser struct {
	Name     string `json:"name" validate:"required,min=3,max=30"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// UpdateUser is the body of PUT /users/{id}. At least one field must be present.
type UpdateUser struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=6"`
}

// Login is the body of POST /auth/login.
type Login struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshToken is the body of POST /auth/refresh and /auth/logout when no cookie is sent.
type RefreshToken struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// UserQuery is the query string of GET /users.
type UserQuery struct {
	Q    string `json:"q"`
	Page int    `json:"page" validate:"min=1"`
	Size int    `json:"size" validate:"min=1,max=10"`
}

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate.RegisterStructValidation(requireAnyField, UpdateTodo{}, UpdateUser{})
	})
	return validate
}

func requireAnyField(sl validator.StructLevel) {
	switch in := sl.Current().Interface().(type) {
	case UpdateTodo:
		if in.Name == nil && in.IsDone == nil {
			sl.ReportError(in.Name, "name", "Name", "at_least_one", "name, isDone")
		}
	case UpdateUser:
		if in.Email == nil && in.Password == nil {
			sl.ReportError(in.Email, "email", "Email", "at_least_one", "email, password")
		}
	}
}

// Struct validates v against its tags.
func Struct(v any) error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return apperr.Validation(message(fieldErrs[0]))
	}
	return apperr.Wrap(apperr.KindValidation, "invalid request", err)
}

// DecodeJSON decodes a single JSON object from r into dst, rejecting unknown
// fields, then validates it.
func DecodeJSON(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if dec.More() {
		return apperr.Validation("request body must contain a single JSON object")
	}
	return Struct(dst)
}

func decodeError(err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, io.EOF):
		return apperr.Validation("request body is required")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return apperr.Wrap(apperr.KindValidation, "invalid JSON body", err)
	case errors.As(err, &typeErr):
		return apperr.Validation(fmt.Sprintf("%q must be a %s", typeErr.Field, jsonKind(typeErr.Type)))
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return apperr.Validation(fmt.Sprintf("%q is not allowed", field))
	}
	return apperr.Wrap(apperr.KindValidation, "invalid JSON body", err)
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	}
	return t.Kind().String()
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "email":
		return fmt.Sprintf("%q must be a valid email", field)
	case "min":
		if isString {
			return fmt.Sprintf("%q length must be at least %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%q must be greater than or equal to %s", field, fe.Param())
	case "at_least_one":
		return fmt.Sprintf(`"value" must contain at least one of [%s]`, fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("%q length must be less than or equal to %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%q must be less than or equal to %s", field, fe.Param())
	}
	return fmt.Sprintf("%q failed %s validation", field, fe.Tag())
}

// ID parses a path identifier that must be a positive integer.
func ID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, apperr.Validation(`"id" must be a number`)
	}
	if id <= 0 {
		return 0, apperr.Validation(`"id" must be a positive number`)
	}
	return id, nil
}

// ParseUserQuery reads q, page and size, applying defaults page=1 and size=10.
func ParseUserQuery(values map[string][]string) (UserQuery, error) {
	query := UserQuery{Page: 1, Size: 10}
	get := func(key string) string {
		if v := values[key]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}
	query.Q = get("q")
	for key, dst := range map[string]*int{"page": &query.Page, "size": &query.Size} {
		raw := get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return UserQuery{}, apperr.Validation(fmt.Sprintf("%q must be a number", key))
		}
		*dst = n
	}
	if err := Struct(query); err != nil {
		return UserQuery{}, err
	}
	return query, nil
}
