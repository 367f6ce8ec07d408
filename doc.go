/*
Package kanin is an RPC microservice framework built on AMQP.

An App binds typed handlers to routing keys. Each handler consumes from its
own queue, decodes the delivery through declared extractors, and publishes a
protobuf reply to the caller's reply-to queue with the request's correlation
id. Deliveries are acked only after the reply has been handed to the broker,
so processing is at-least-once.

	app, err := kanin.NewApp(cfg, logger, kanin.Dependencies{})
	if err != nil {
		// ...
	}

	err = app.Register(kanin.HandlerRegistration{
		RoutingKey: "my_routing_key",
		Handler: kanin.NewHandler1(kanin.Proto[*pb.MyRequest](),
			func(ctx context.Context, req *pb.MyRequest) (*pb.MyResponse, error) {
				// ...
			}),
	})

	err = app.Run(ctx)

Handlers return their response envelope or an error. Errors built with
NewInvalidRequest or NewInternal are encoded into the envelope's
invalid_request or internal_error field; any other error is treated as
internal. Extractors such as Proto, Header, State and ReqID run left to right
before the handler body and fail the request on the first error.
*/
package kanin
