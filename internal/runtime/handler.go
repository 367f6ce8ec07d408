package runtime

import (
	"context"
	"errors"

	"google.golang.org/protobuf/proto"

	errspkg "github.com/issuu/kanin/internal/runtime/errors"
	extractpkg "github.com/issuu/kanin/internal/runtime/extract"
)

// Handler is the bound form of a typed handler: the extraction pipeline plus
// the handler body, together with a constructor for the response envelope so
// handler errors can be encoded as the same type the caller expects. Build
// one with NewHandler or one of its arity variants.
type Handler struct {
	invoke      func(ctx context.Context, req *extractpkg.Request) invocation
	newResponse func() (proto.Message, error)
}

// invocation is the raw result of running extraction and the handler body for
// one delivery.
type invocation struct {
	reply proto.Message
	err   *errspkg.HandlerError
	// extraction marks err as produced by an extractor rather than the
	// handler body.
	extraction bool
}

func extractionFailure(err *errspkg.HandlerError) invocation {
	return invocation{err: err, extraction: true}
}

// handlerResult classifies the handler body's return. Plain errors become
// internal errors; the dispatch unit fills in the source later.
func handlerResult(reply proto.Message, err error) invocation {
	if err == nil {
		return invocation{reply: reply}
	}
	var herr *errspkg.HandlerError
	if errors.As(err, &herr) {
		return invocation{err: herr}
	}
	return invocation{err: errspkg.NewInternal("", err)}
}

func responseFactory[Res proto.Message]() func() (proto.Message, error) {
	return func() (proto.Message, error) {
		return extractpkg.NewMessage[Res]()
	}
}

// NewHandler adapts a handler that needs no extracted arguments.
func NewHandler[Res proto.Message](fn func(ctx context.Context) (Res, error)) Handler {
	return Handler{
		newResponse: responseFactory[Res](),
		invoke: func(ctx context.Context, _ *extractpkg.Request) invocation {
			return handlerResult(fn(ctx))
		},
	}
}

// NewHandler1 adapts a handler taking one extracted argument. Extractors run
// strictly left to right; the first failure short-circuits the rest and the
// handler body is never invoked.
func NewHandler1[A any, Res proto.Message](a extractpkg.Arg[A], fn func(ctx context.Context, a A) (Res, error)) Handler {
	return Handler{
		newResponse: responseFactory[Res](),
		invoke: func(ctx context.Context, req *extractpkg.Request) invocation {
			av, herr := a(ctx, req)
			if herr != nil {
				return extractionFailure(herr)
			}
			return handlerResult(fn(ctx, av))
		},
	}
}

// NewHandler2 adapts a handler taking two extracted arguments.
func NewHandler2[A, B any, Res proto.Message](a extractpkg.Arg[A], b extractpkg.Arg[B], fn func(ctx context.Context, a A, b B) (Res, error)) Handler {
	return Handler{
		newResponse: responseFactory[Res](),
		invoke: func(ctx context.Context, req *extractpkg.Request) invocation {
			av, herr := a(ctx, req)
			if herr != nil {
				return extractionFailure(herr)
			}
			bv, herr := b(ctx, req)
			if herr != nil {
				return extractionFailure(herr)
			}
			return handlerResult(fn(ctx, av, bv))
		},
	}
}

// NewHandler3 adapts a handler taking three extracted arguments.
func NewHandler3[A, B, C any, Res proto.Message](a extractpkg.Arg[A], b extractpkg.Arg[B], c extractpkg.Arg[C], fn func(ctx context.Context, a A, b B, c C) (Res, error)) Handler {
	return Handler{
		newResponse: responseFactory[Res](),
		invoke: func(ctx context.Context, req *extractpkg.Request) invocation {
			av, herr := a(ctx, req)
			if herr != nil {
				return extractionFailure(herr)
			}
			bv, herr := b(ctx, req)
			if herr != nil {
				return extractionFailure(herr)
			}
			cv, herr := c(ctx, req)
			if herr != nil {
				return extractionFailure(herr)
			}
			return handlerResult(fn(ctx, av, bv, cv))
		},
	}
}

// NewHandler4 adapts a handler taking four extracted arguments.
func NewHandler4[A, B, C, D any, Res proto.Message](a extractpkg.Arg[A], b extractpkg.Arg[B], c extractpkg.Arg[C], d extractpkg.Arg[D], fn func(ctx context.Context, a A, b B, c C, d D) (Res, error)) Handler {
	return Handler{
		newResponse: responseFactory[Res](),
		invoke: func(ctx context.Context, req *extractpkg.Request) invocation {
			av, herr := a(ctx, req)
			if herr != nil {
				return extractionFailure(herr)
			}
			bv, herr := b(ctx, req)
			if herr != nil {
				return extractionFailure(herr)
			}
			cv, herr := c(ctx, req)
			if herr != nil {
				return extractionFailure(herr)
			}
			dv, herr := d(ctx, req)
			if herr != nil {
				return extractionFailure(herr)
			}
			return handlerResult(fn(ctx, av, bv, cv, dv))
		},
	}
}
