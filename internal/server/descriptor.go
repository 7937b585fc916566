package server

import (
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// extractionFileProto mirrors ExtractionServiceDesc as a file descriptor so that
// reflection clients can resolve the service and its Struct payloads.
func extractionFileProto() *descriptorpb.FileDescriptorProto {
	methods := make([]*descriptorpb.MethodDescriptorProto, 0, len(ExtractionServiceDesc.Methods))
	for _, m := range ExtractionServiceDesc.Methods {
		methods = append(methods, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(m.MethodName),
			InputType:  proto.String(".google.protobuf.Struct"),
			OutputType: proto.String(".google.protobuf.Struct"),
		})
	}
	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String(ExtractionServiceDesc.Metadata.(string)),
		Package:    proto.String("timetable.v1"),
		Dependency: []string{"google/protobuf/struct.proto"},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name:   proto.String("ExtractionService"),
			Method: methods,
		}},
		Syntax: proto.String("proto3"),
	}
}

// registerDescriptor adds the extraction file to the global registry once.
var registerDescriptor = sync.OnceValue(func() error {
	fd, err := protodesc.NewFile(extractionFileProto(), protoregistry.GlobalFiles)
	if err != nil {
		return err
	}
	return protoregistry.GlobalFiles.RegisterFile(fd)
})
