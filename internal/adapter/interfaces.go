// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

// Package adapter provides the transport to the remote sync authority.
//
// The primary abstraction is [Transport], which decouples the sync engine
// from the underlying protocol. The package ships an HTTP/REST
// implementation ([NewHTTPTransport]) built on resty.
//
// Transport-level failures are mapped to the sentinel errors in errors.go
// so callers can classify them with [errors.Is] without knowing about HTTP
// status codes: [ErrTransient] for failures worth retrying with backoff,
// [ErrPermanent] for failures that will not succeed on retry, and
// [ErrVersionConflict] for optimistic-concurrency rejections.
package adapter

import (
	"context"

	"github.com/pavetrack/field-sync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/transport_mock.go -package=mock

// Transport defines protocol-agnostic communication with the remote
// authority. Implementations are responsible for serialisation and for
// mapping transport-level errors to the sentinel values defined in this
// package.
type Transport interface {
	// Push submits a batch of local mutations. The authority evaluates
	// each item independently against its stored version and returns one
	// [models.PushResult] per item, in batch order. A per-item version
	// conflict is reported inside the result, not as an error; Push
	// returns an error only when the batch as a whole failed.
	Push(ctx context.Context, req models.PushRequest) ([]models.PushResult, error)

	// Pull fetches remote-originated changes after the given cursor, at
	// most limit per page. The returned page carries the cursor to resume
	// from; an empty change list means the caller is caught up.
	Pull(ctx context.Context, cursor string, limit int) (models.PullPage, error)
}
