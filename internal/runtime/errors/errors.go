package errors

import sterrors "errors"

var (
	ErrAppRequired         = sterrors.New("kanin: app is required")
	ErrHandlerRequired     = sterrors.New("kanin: handler function is required")
	ErrRoutingKeyRequired  = sterrors.New("kanin: routing key is required")
	ErrDuplicateRoutingKey = sterrors.New("kanin: routing key is already registered")
	ErrNoHandlers          = sterrors.New("kanin: no handlers were registered on the app")
	ErrAppAlreadyRunning   = sterrors.New("kanin: app is already running")
	ErrBrokerRequired      = sterrors.New("kanin: broker is required")
	ErrConfigRequired      = sterrors.New("kanin: config is required")
	ErrLoggerRequired      = sterrors.New("kanin: logger is required")
	ErrResponseRequired    = sterrors.New("kanin: response prototype is required")
	ErrConsumerTerminated  = sterrors.New("kanin: consumer terminated unexpectedly")
	ErrStateSealed         = sterrors.New("kanin: state cannot be added after the app has started")
	ErrDuplicateStateType  = sterrors.New("kanin: a state value of this type is already registered")
	ErrDuplicateValueType  = sterrors.New("kanin: a value of this type is already stored in the request")
)
