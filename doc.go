// Package apifetch performs HTTP requests whose responses flow through typed,
// composable filter chains:
//
//   - Chain[T, In, Out]: an immutable sequence of fallible steps with per-step
//     recovery (retry with optional backoff, fallback value, fallback filter,
//     custom policies that may rewrite the cause)
//   - Request[T]: one GET or POST with an observable lifecycle
//     (PENDING, FILTERING, SUCCESS, ERROR), progress callbacks and a periodic
//     update ticker
//   - Config: client-wide before-send hooks, URL processor, body
//     preprocessing, authorization supplier and an error handler with matchers
//   - HTTPTransport: net/http with middleware, rate limiting, circuit breaking
//     and de‑duplication of identical in‑flight GETs
//   - Prometheus metrics and structured debug logging via log/slog
//
// Every failure is classified once as NETWORK (no response), HTTP (non-2xx
// response) or FILTER (the chain failed) and returned as a *RequestError after
// the error handler has seen it.
//
// Typical usage:
//
//	client := apifetch.New(
//	    apifetch.WithBaseURL("https://api.example.com"),
//	    apifetch.WithAuthorization(apifetch.StaticAuthorization(apifetch.Bearer(token))),
//	)
//	users := apifetch.JSON[[]User]().
//	    Constraint(func(u []User) bool { return len(u) > 0 }, nil).
//	    Retry(2)
//	list, err := apifetch.Get(ctx, client, "/users", users, nil)
package apifetch
