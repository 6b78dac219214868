package apifetch

import (
	"context"
	"encoding/json"
	"fmt"
)

// None returns the response unfiltered.
func None() Chain[*Response, *Response, *Response] {
	return Create[*Response]()
}

// Bytes returns the raw response body.
func Bytes() Chain[*Response, *Response, []byte] {
	return Then(Create[*Response](), func(_ context.Context, r *Response) ([]byte, error) {
		return r.Body, nil
	})
}

// Text returns the response body as a string.
func Text() Chain[*Response, *Response, string] {
	return Then(Create[*Response](), func(_ context.Context, r *Response) (string, error) {
		return string(r.Body), nil
	})
}

// JSON decodes the response body into a T.
func JSON[T any]() Chain[*Response, *Response, T] {
	return Then(Create[*Response](), func(_ context.Context, r *Response) (T, error) {
		var v T
		if err := json.Unmarshal(r.Body, &v); err != nil {
			return v, fmt.Errorf("decode json: %w", err)
		}
		return v, nil
	})
}
