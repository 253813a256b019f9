package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/server/api"
	"github.com/dmitrijs2005/datakeeper/internal/server/auth"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// fromStruct decodes a message into one of the api request types, with the
// same strictness as an HTTP body.
func fromStruct(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrMalformedRequest, err)
	}
	return api.DecodeBytes(b, v)
}

func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode response: %w", common.ErrorInternal, err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("%w: encode response: %w", common.ErrorInternal, err)
	}
	return out, nil
}

// respond converts a backend result into a reply message.
func (s *GRPCServer) respond(ctx context.Context, method string, v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, s.statusError(ctx, method, err)
	}
	out, err := toStruct(v)
	if err != nil {
		return nil, s.statusError(ctx, method, err)
	}
	return out, nil
}

func (s *GRPCServer) Upsert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	cred, _ := auth.CredentialFrom(ctx)

	var req api.UpsertRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, s.statusError(ctx, "Upsert", err)
	}

	resp, err := s.backend.Upsert(ctx, cred, &req)
	return s.respond(ctx, "Upsert", resp, err)
}

func (s *GRPCServer) Read(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	cred, _ := auth.CredentialFrom(ctx)

	var req api.ReadRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, s.statusError(ctx, "Read", err)
	}

	resp, err := s.backend.Read(ctx, cred, &req)
	return s.respond(ctx, "Read", resp, err)
}

func (s *GRPCServer) StoreFiles(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	cred, _ := auth.CredentialFrom(ctx)

	var req api.StoreFilesRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, s.statusError(ctx, "StoreFiles", err)
	}

	resp, err := s.backend.StoreFiles(ctx, cred, req.DocumentType, api.Uploads(req.Files))
	return s.respond(ctx, "StoreFiles", resp, err)
}

func (s *GRPCServer) ListFiles(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	cred, _ := auth.CredentialFrom(ctx)

	var req api.ListFilesRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, s.statusError(ctx, "ListFiles", err)
	}

	resp, err := s.backend.ListFiles(ctx, cred, req.DocumentType)
	return s.respond(ctx, "ListFiles", resp, err)
}

func (s *GRPCServer) DispatchJob(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	cred, _ := auth.CredentialFrom(ctx)

	var req api.JobRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, s.statusError(ctx, "DispatchJob", err)
	}

	resp, err := s.backend.DispatchJob(ctx, cred, &req)
	return s.respond(ctx, "DispatchJob", resp, err)
}

func (s *GRPCServer) Ping(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "OK"})
}
