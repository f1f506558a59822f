package app

import (
	"fmt"
	"net/http"
)

// Request methods a presenter is run with.
const (
	MethodGet  = http.MethodGet
	MethodPost = http.MethodPost
)

// ActionKey is the parameter holding the action name.
const ActionKey = "action"

// DefaultAction is run when a request names no action.
const DefaultAction = "default"

// FileUpload is one uploaded file of a POST request.
type FileUpload struct {
	Name        string
	ContentType string
	Content     []byte
}

// Request is one simulated request against a presenter.
type Request struct {
	Presenter string
	Method    string
	Params    map[string]any
	Post      map[string]any
	Files     map[string]FileUpload
}

// NewRequest creates a Request. The maps are copied.
func NewRequest(presenter, method string, params, post map[string]any, files map[string]FileUpload) *Request {
	r := &Request{
		Presenter: presenter,
		Method:    method,
		Params:    make(map[string]any, len(params)),
		Post:      make(map[string]any, len(post)),
		Files:     make(map[string]FileUpload, len(files)),
	}
	for k, v := range params {
		r.Params[k] = v
	}
	for k, v := range post {
		r.Post[k] = v
	}
	for k, v := range files {
		r.Files[k] = v
	}
	return r
}

// Param returns the named parameter, or nil.
func (r *Request) Param(name string) any {
	return r.Params[name]
}

// Action returns the action parameter, DefaultAction when unset.
func (r *Request) Action() string {
	if a, ok := r.Params[ActionKey]; ok && a != nil {
		if s := fmt.Sprint(a); s != "" {
			return s
		}
	}
	return DefaultAction
}

// IsMethod reports whether the request was made with method.
func (r *Request) IsMethod(method string) bool {
	return r.Method == method
}
