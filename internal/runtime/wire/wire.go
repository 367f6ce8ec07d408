// Package wire holds the framework-level protocol messages and the default
// mapping from handler errors onto response envelopes.
//
// The InvalidRequest and InternalError schemas are the conventional error
// variants services embed in their response envelopes. They are built at init
// from descriptors rather than generated code, so the framework carries no
// protoc step.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	errspkg "github.com/issuu/kanin/internal/runtime/errors"
)

// Envelope field and oneof names the default error mapping looks for on a
// service's response message. They mirror the conventional response schema:
//
//	message FooResponse {
//	  oneof response {
//	    Success success = 1;
//	    InvalidRequest invalid_request = 2;
//	    InternalError internal_error = 3;
//	  }
//	}
const (
	FieldInvalidRequest = "invalid_request"
	FieldInternalError  = "internal_error"
	FieldError          = "error"
	FieldSource         = "source"
)

var (
	invalidRequestDesc protoreflect.MessageDescriptor
	internalErrorDesc  protoreflect.MessageDescriptor
)

func init() {
	fd, err := protodesc.NewFile(protocolFile(), nil)
	if err != nil {
		panic(fmt.Sprintf("kanin: failed to build protocol descriptors: %v", err))
	}
	invalidRequestDesc = fd.Messages().ByName("InvalidRequest")
	internalErrorDesc = fd.Messages().ByName("InternalError")
}

func protocolFile() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("kanin/protocol.proto"),
		Package: proto.String("kanin"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("InvalidRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					stringField(FieldError, 1),
				},
			},
			{
				Name: proto.String("InternalError"),
				Field: []*descriptorpb.FieldDescriptorProto{
					stringField(FieldSource, 1),
					stringField(FieldError, 2),
				},
			},
		},
	}
}

func stringField(name string, number int32) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
	}
}

// NewInvalidRequest builds a standalone kanin.InvalidRequest message.
func NewInvalidRequest(description string) proto.Message {
	msg := dynamicpb.NewMessage(invalidRequestDesc)
	setString(msg, FieldError, description)
	return msg
}

// NewInternalError builds a standalone kanin.InternalError message. It is the
// reply of last resort when no handler-specific envelope exists, e.g. for
// unroutable deliveries.
func NewInternalError(source, description string) proto.Message {
	msg := dynamicpb.NewMessage(internalErrorDesc)
	setString(msg, FieldSource, source)
	setString(msg, FieldError, description)
	return msg
}

func setString(msg protoreflect.Message, name protoreflect.Name, value string) {
	fd := msg.Descriptor().Fields().ByName(name)
	msg.Set(fd, protoreflect.ValueOfString(value))
}

// DecodeInvalidRequest parses a standalone kanin.InvalidRequest payload.
func DecodeInvalidRequest(payload []byte) (description string, err error) {
	msg := dynamicpb.NewMessage(invalidRequestDesc)
	if err := proto.Unmarshal(payload, msg); err != nil {
		return "", err
	}
	return getString(msg, FieldError), nil
}

// DecodeInternalError parses a standalone kanin.InternalError payload.
func DecodeInternalError(payload []byte) (source, description string, err error) {
	msg := dynamicpb.NewMessage(internalErrorDesc)
	if err := proto.Unmarshal(payload, msg); err != nil {
		return "", "", err
	}
	return getString(msg, FieldSource), getString(msg, FieldError), nil
}

func getString(msg protoreflect.Message, name protoreflect.Name) string {
	fd := msg.Descriptor().Fields().ByName(name)
	return msg.Get(fd).String()
}

// PopulateError fills the matching error variant of the given response
// envelope from a handler error, using the conventional field names above.
// Exactly one variant ends up populated. It fails if the envelope does not
// follow the convention; callers then fall back to a standalone error message
// or a custom mapper.
func PopulateError(envelope proto.Message, herr *errspkg.HandlerError) error {
	if envelope == nil {
		return fmt.Errorf("envelope is nil")
	}

	var fieldName protoreflect.Name
	switch herr.Kind() {
	case errspkg.KindInvalidRequest:
		fieldName = FieldInvalidRequest
	default:
		fieldName = FieldInternalError
	}

	m := envelope.ProtoReflect()
	fd := m.Descriptor().Fields().ByName(fieldName)
	if fd == nil || fd.Kind() != protoreflect.MessageKind {
		return fmt.Errorf("response type %s has no %q message field", m.Descriptor().FullName(), fieldName)
	}

	variant := m.Mutable(fd).Message()
	if err := setStringField(variant, FieldError, herr.WireMessage()); err != nil {
		return err
	}
	if fieldName == FieldInternalError {
		if err := setStringField(variant, FieldSource, herr.Source()); err != nil {
			return err
		}
	}
	return nil
}

func setStringField(msg protoreflect.Message, name protoreflect.Name, value string) error {
	fd := msg.Descriptor().Fields().ByName(name)
	if fd == nil || fd.Kind() != protoreflect.StringKind {
		return fmt.Errorf("message %s has no %q string field", msg.Descriptor().FullName(), name)
	}
	msg.Set(fd, protoreflect.ValueOfString(value))
	return nil
}
