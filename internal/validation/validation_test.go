package validation

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/todos/internal/apperr"
)

func assertValidation(t *testing.T, err error, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, msg, apperr.MessageOf(err, ""))
}

func TestDecodeCreateTodo(t *testing.T) {
	var in CreateTodo
	require.NoError(t, DecodeJSON(strings.NewReader(`{"name":"buy milk","isDone":false}`), &in))
	assert.Equal(t, "buy milk", in.Name)
	require.NotNil(t, in.IsDone)
	assert.False(t, *in.IsDone)
}

func TestDecodeCreateTodoFailures(t *testing.T) {
	cases := []struct {
		name string
		body string
		msg  string
	}{
		{"missing isDone", `{"name":"buy milk"}`, `"isDone" is required`},
		{"missing name", `{"isDone":true}`, `"name" is required`},
		{"short name", `{"name":"ab","isDone":true}`, `"name" length must be at least 3 characters long`},
		{"long name", `{"name":"` + strings.Repeat("a", 31) + `","isDone":true}`, `"name" length must be less than or equal to 30 characters long`},
		{"wrong type", `{"name":"buy milk","isDone":"yes"}`, `"isDone" must be a boolean`},
		{"unknown field", `{"name":"buy milk","isDone":true,"owner":1}`, `"owner" is not allowed`},
		{"empty body", ``, `request body is required`},
		{"malformed", `{"name":`, `invalid JSON body`},
		{"trailing data", `{"name":"buy milk","isDone":true}{}`, `request body must contain a single JSON object`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var in CreateTodo
			assertValidation(t, DecodeJSON(strings.NewReader(tc.body), &in), tc.msg)
		})
	}
}

func TestDecodeUpdateTodoPartial(t *testing.T) {
	var in UpdateTodo
	require.NoError(t, DecodeJSON(strings.NewReader(`{"isDone":true}`), &in))
	assert.Nil(t, in.Name)
	require.NotNil(t, in.IsDone)
	assert.True(t, *in.IsDone)

	var empty UpdateTodo
	assertValidation(t, DecodeJSON(strings.NewReader(`{}`), &empty), `"value" must contain at least one of [name, isDone]`)

	var onlyName UpdateTodo
	require.NoError(t, DecodeJSON(strings.NewReader(`{"name":"walk dog"}`), &onlyName))

	var bad UpdateTodo
	assertValidation(t, DecodeJSON(strings.NewReader(`{"name":"x"}`), &bad), `"name" length must be at least 3 characters long`)
}

func TestDecodeCreateUser(t *testing.T) {
	var in CreateUser
	require.NoError(t, DecodeJSON(strings.NewReader(`{"name":"Alice","email":"a@x.com","password":"secret1"}`), &in))

	var badEmail CreateUser
	assertValidation(t, DecodeJSON(strings.NewReader(`{"name":"Alice","email":"not-an-email","password":"secret1"}`), &badEmail), `"email" must be a valid email`)

	var shortPassword CreateUser
	assertValidation(t, DecodeJSON(strings.NewReader(`{"name":"Alice","email":"a@x.com","password":"123"}`), &shortPassword), `"password" length must be at least 6 characters long`)
}

func TestDecodeUpdateUser(t *testing.T) {
	var in UpdateUser
	require.NoError(t, DecodeJSON(strings.NewReader(`{"email":"new@x.com"}`), &in))
	require.NotNil(t, in.Email)
	assert.Nil(t, in.Password)

	var empty UpdateUser
	assertValidation(t, DecodeJSON(strings.NewReader(`{}`), &empty), `"value" must contain at least one of [email, password]`)

	var bad UpdateUser
	assertValidation(t, DecodeJSON(strings.NewReader(`{"password":"123"}`), &bad), `"password" length must be at least 6 characters long`)
}

func TestID(t *testing.T) {
	id, err := ID("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	_, err = ID("abc")
	assertValidation(t, err, `"id" must be a number`)
	_, err = ID("0")
	assertValidation(t, err, `"id" must be a positive number`)
	_, err = ID("-4")
	assertValidation(t, err, `"id" must be a positive number`)
}

func TestParseUserQuery(t *testing.T) {
	q, err := ParseUserQuery(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, UserQuery{Page: 1, Size: 10}, q)

	q, err = ParseUserQuery(url.Values{"q": {" ali "}, "page": {"2"}, "size": {"5"}})
	require.NoError(t, err)
	assert.Equal(t, UserQuery{Q: "ali", Page: 2, Size: 5}, q)

	_, err = ParseUserQuery(url.Values{"size": {"11"}})
	assertValidation(t, err, `"size" must be less than or equal to 10`)
	_, err = ParseUserQuery(url.Values{"page": {"0"}})
	assertValidation(t, err, `"page" must be greater than or equal to 1`)
	_, err = ParseUserQuery(url.Values{"page": {"first"}})
	assertValidation(t, err, `"page" must be a number`)
}
