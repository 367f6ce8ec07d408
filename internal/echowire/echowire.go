// Package echowire carries the echo service schema used by kanin's tests and
// example: an EchoRequest and an EchoResponse envelope whose oneof holds
// exactly one of success, invalid_request, or internal_error. The messages are
// built from descriptors at init, so the module needs no protoc step.
package echowire

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

var (
	requestDesc  protoreflect.MessageDescriptor
	responseDesc protoreflect.MessageDescriptor
)

func init() {
	fd, err := protodesc.NewFile(echoFile(), nil)
	if err != nil {
		panic(fmt.Sprintf("echowire: failed to build echo descriptors: %v", err))
	}
	requestDesc = fd.Messages().ByName("EchoRequest")
	responseDesc = fd.Messages().ByName("EchoResponse")
}

func echoFile() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("kanin/echo.proto"),
		Package: proto.String("kanin.echo"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("EchoRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					stringField("value", 1, nil),
				},
			},
			{
				Name: proto.String("Success"),
				Field: []*descriptorpb.FieldDescriptorProto{
					stringField("value", 1, nil),
				},
			},
			{
				Name: proto.String("InvalidRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					stringField("error", 1, nil),
				},
			},
			{
				Name: proto.String("InternalError"),
				Field: []*descriptorpb.FieldDescriptorProto{
					stringField("source", 1, nil),
					stringField("error", 2, nil),
				},
			},
			{
				Name: proto.String("EchoResponse"),
				OneofDecl: []*descriptorpb.OneofDescriptorProto{
					{Name: proto.String("response")},
				},
				Field: []*descriptorpb.FieldDescriptorProto{
					messageField("success", 1, ".kanin.echo.Success"),
					messageField("invalid_request", 2, ".kanin.echo.InvalidRequest"),
					messageField("internal_error", 3, ".kanin.echo.InternalError"),
				},
			},
		},
	}
}

func stringField(name string, number int32, oneofIndex *int32) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:       proto.String(name),
		Number:     proto.Int32(number),
		Label:      descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:       descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
		OneofIndex: oneofIndex,
	}
}

func messageField(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:       proto.String(name),
		Number:     proto.Int32(number),
		Label:      descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:       descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName:   proto.String(typeName),
		OneofIndex: proto.Int32(0),
	}
}

// NewRequest builds an EchoRequest with the given value.
func NewRequest(value string) proto.Message {
	msg := dynamicpb.NewMessage(requestDesc)
	msg.Set(requestDesc.Fields().ByName("value"), protoreflect.ValueOfString(value))
	return msg
}

// RequestPrototype returns an empty EchoRequest for prototype-based decoding.
func RequestPrototype() proto.Message {
	return dynamicpb.NewMessage(requestDesc)
}

// RequestValue reads the value field from a decoded EchoRequest.
func RequestValue(msg proto.Message) string {
	m := msg.ProtoReflect()
	return m.Get(m.Descriptor().Fields().ByName("value")).String()
}

// ResponsePrototype returns an empty EchoResponse envelope.
func ResponsePrototype() proto.Message {
	return dynamicpb.NewMessage(responseDesc)
}

// Success builds an EchoResponse with the success variant populated.
func Success(value string) proto.Message {
	envelope := dynamicpb.NewMessage(responseDesc)
	field := responseDesc.Fields().ByName("success")
	variant := envelope.Mutable(field).Message()
	variant.Set(variant.Descriptor().Fields().ByName("value"), protoreflect.ValueOfString(value))
	return envelope
}

// Decoded is the flattened view of an EchoResponse used in assertions.
type Decoded struct {
	// Variant is the populated oneof field name, or "" when none is set.
	Variant string
	// Value is success.value.
	Value string
	// Error is the error description of the error variants.
	Error string
	// Source is internal_error.source.
	Source string
}

// DecodeResponse unmarshals an EchoResponse payload and reports which variant
// is populated.
func DecodeResponse(payload []byte) (Decoded, error) {
	envelope := dynamicpb.NewMessage(responseDesc)
	if err := proto.Unmarshal(payload, envelope); err != nil {
		return Decoded{}, err
	}

	oneof := responseDesc.Oneofs().ByName("response")
	populated := envelope.WhichOneof(oneof)
	if populated == nil {
		return Decoded{}, nil
	}

	out := Decoded{Variant: string(populated.Name())}
	variant := envelope.Get(populated).Message()
	fields := variant.Descriptor().Fields()
	switch out.Variant {
	case "success":
		out.Value = variant.Get(fields.ByName("value")).String()
	case "invalid_request":
		out.Error = variant.Get(fields.ByName("error")).String()
	case "internal_error":
		out.Source = variant.Get(fields.ByName("source")).String()
		out.Error = variant.Get(fields.ByName("error")).String()
	}
	return out, nil
}
