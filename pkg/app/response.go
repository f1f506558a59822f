package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Response is the outcome of running a presenter. It is one of
// *TextResponse, *RedirectResponse or *JSONResponse.
type Response interface {
	Send(w http.ResponseWriter, r *http.Request) error
}

// TextResponse renders Source as the response body. Source may be a
// string, []byte, fmt.Stringer or io.WriterTo (e.g. a rendered template);
// anything else is formatted with fmt.Sprint.
type TextResponse struct {
	Source any
}

// Body converts Source to a string.
func (t *TextResponse) Body() (string, error) {
	switch s := t.Source.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	case io.WriterTo:
		var buf bytes.Buffer
		if _, err := s.WriteTo(&buf); err != nil {
			return "", fmt.Errorf("render text response: %w", err)
		}
		return buf.String(), nil
	default:
		return fmt.Sprint(s), nil
	}
}

// Send implements Response.
func (t *TextResponse) Send(w http.ResponseWriter, _ *http.Request) error {
	body, err := t.Body()
	if err != nil {
		return err
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	_, err = io.WriteString(w, body)
	return err
}

// RedirectResponse redirects to URL with Code (302 when zero).
type RedirectResponse struct {
	URL  string
	Code int
}

// Send implements Response.
func (rr *RedirectResponse) Send(w http.ResponseWriter, r *http.Request) error {
	code := rr.Code
	if code == 0 {
		code = http.StatusFound
	}
	http.Redirect(w, r, rr.URL, code)
	return nil
}

// JSONResponse encodes Payload as JSON. A json.RawMessage or []byte
// payload is written as is.
type JSONResponse struct {
	Payload     any
	ContentType string
}

// Bytes returns the encoded payload.
func (j *JSONResponse) Bytes() ([]byte, error) {
	switch p := j.Payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return p, nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode json response: %w", err)
		}
		return b, nil
	}
}

// Decode unmarshals the payload into v.
func (j *JSONResponse) Decode(v any) error {
	b, err := j.Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Send implements Response.
func (j *JSONResponse) Send(w http.ResponseWriter, _ *http.Request) error {
	b, err := j.Bytes()
	if err != nil {
		return err
	}
	ct := j.ContentType
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	_, err = w.Write(b)
	return err
}
