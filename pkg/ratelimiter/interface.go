package ratelimiter

import "context"

// Limiter admits work against shared capacity. Reserve either grants a lease
// or says how long to wait. Complete releases a granted lease.
type Limiter interface {
	Reserve(ctx context.Context, req ReserveRequest) (ReserveResponse, error)
	Complete(ctx context.Context, req CompleteRequest) (CompleteResponse, error)
}

// Unlimited admits every reservation.
var Unlimited Limiter = unlimited{}

type unlimited struct{}

func (unlimited) Reserve(context.Context, ReserveRequest) (ReserveResponse, error) {
	return ReserveResponse{Allowed: true}, nil
}

func (unlimited) Complete(context.Context, CompleteRequest) (CompleteResponse, error) {
	return CompleteResponse{Ok: true}, nil
}
