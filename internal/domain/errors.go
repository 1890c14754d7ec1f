package domain

import "errors"

var (
	// ErrNoCredential is returned when the credential pool has no active credential
	ErrNoCredential = errors.New("no credential available")

	// ErrQuotaExceeded is returned when the feed signals payment or quota exhaustion
	// for the active credential
	ErrQuotaExceeded = errors.New("credential quota exceeded")

	// ErrSubscriptionFailed is returned when the subscription handshake fails
	ErrSubscriptionFailed = errors.New("subscription failed")

	// ErrBufferClosed is returned when pushing to a closed ingest buffer
	ErrBufferClosed = errors.New("ingest buffer closed")

	// ErrNoGatewayAvailable is returned when no content gateway served a document
	ErrNoGatewayAvailable = errors.New("no working gateway found")
)
