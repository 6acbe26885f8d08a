package cti

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// SchemaPackage is the protobuf package the CTI messages live in.
const SchemaPackage = "addsec.cti"

var buildDescriptor = sync.OnceValues(func() (protoreflect.MessageDescriptor, error) {
	fd, err := protodesc.NewFile(schemaFile(), new(protoregistry.Files))
	if err != nil {
		return nil, fmt.Errorf("cti: build schema: %w", err)
	}
	return fd.Messages().ByName("Report"), nil
})

// Descriptor returns the protobuf descriptor of the Report message.
func Descriptor() (protoreflect.MessageDescriptor, error) {
	return buildDescriptor()
}

// ToJSON decodes payload against the Report descriptor and renders it as
// indented protojson. Byte fields are rendered base64 as protojson specifies.
func ToJSON(payload []byte) ([]byte, error) {
	md, err := Descriptor()
	if err != nil {
		return nil, err
	}
	msg := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(msg)
}

// schemaFile mirrors the field table in codec.go.
func schemaFile() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("addsec_cti.proto"),
		Package: proto.String(SchemaPackage),
		Syntax:  proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Report"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("organization_id", fieldReportOrganizationID, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
					scalarField("system_id", fieldReportSystemID, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
					scalarField("application_id", fieldReportApplicationID, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					repeatedField("observations", fieldReportObservations, "Observation"),
				},
			},
			{
				Name: proto.String("Observation"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("observation_type", fieldObservationType, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					scalarField("timestamp", fieldObservationTimestamp, descriptorpb.FieldDescriptorProto_TYPE_INT64),
					scalarField("test_id", fieldObservationTestID, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					repeatedField("datas", fieldObservationDatas, "DataItem"),
				},
			},
			{
				Name: proto.String("DataItem"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("data_type", fieldDataType, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					scalarField("data", fieldDataData, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				},
			},
		},
	}
}

func scalarField(name string, num protowire.Number, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(int32(num)),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func repeatedField(name string, num protowire.Number, msg string) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(int32(num)),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String("." + SchemaPackage + "." + msg),
	}
}
