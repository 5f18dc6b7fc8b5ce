// Package apiclient is the shared network-access core of the Lookbook
// services: a JSON API client that classifies failures, retries transient
// ones with bounded attempts, reroutes around connection failures once per
// call, enforces per-attempt timeouts via context cancellation, and exposes
// aggregated loading state to observers.
//
// Lifecycle of one logical call:
//
//	buildConfig → request interceptors → attempt loop → response interceptors
//
// Each attempt runs under its own timeout-armed context. On failure the
// fallback router may rewrite the target origin exactly once (no budget slot,
// no delay), then the response-error interceptors run and the ErrorClassifier
// decides retry or stop. The loading registry flips a METHOD_endpoint flag at
// call start and on the terminal transition only, never per attempt.
//
// Typical usage:
//
//	client := apiclient.New(
//	    apiclient.WithBaseURL("https://api.lookbook.dev"),
//	    apiclient.WithMaxRetries(3),
//	    apiclient.WithMetrics(),
//	)
//	resp, err := client.Get(ctx, "/api/recommend")
//
// Failure classification is deliberately pluggable: provide an
// ErrorClassifier via WithClassifier to change which errors retry and how
// long the waits are. Request-construction failures (serialization, request
// interceptors) are never retried.
package apiclient
