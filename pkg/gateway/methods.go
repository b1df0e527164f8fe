package gateway

import (
	"context"
	"encoding/json"
	"fmt"
)

// Method names exposed on the host RPC surface. The storage and log
// methods are reachable only through compiled sandbox bindings; the serve
// method is consumed by the external agent loop.
const (
	MethodGetIsolatedStorage    = "getIsolatedStorage"
	MethodSetIsolatedStorage    = "setIsolatedStorage"
	MethodDeleteIsolatedStorage = "deleteIsolatedStorage"
	MethodLogAttachment         = "logAttachment"
	MethodGetOrServePlugin      = "getOrServePlugin"
)

type storageParams struct {
	TenantID   string          `json:"tenantId"`
	ProviderID string          `json:"providerId"`
	Data       json.RawMessage `json:"data,omitempty"`
}

type logAttachmentParams struct {
	TenantID string          `json:"tenantId"`
	StreamID *int64          `json:"streamId"`
	Title    string          `json:"title"`
	Summary  *string         `json:"summary"`
	URL      string          `json:"url"`
	Data     json.RawMessage `json:"data"`
}

type serveParams struct {
	TenantID   string         `json:"tenantId"`
	ProviderID string         `json:"providerId"`
	Config     map[string]any `json:"config"`
	StreamID   *int64         `json:"streamId"`
}

// registerMethods wires the gateway method handlers into the router
func (s *Server) registerMethods() {
	_ = s.router.RegisterMethod(MethodGetIsolatedStorage, s.handleGetIsolatedStorage)
	_ = s.router.RegisterMethod(MethodSetIsolatedStorage, s.handleSetIsolatedStorage)
	_ = s.router.RegisterMethod(MethodDeleteIsolatedStorage, s.handleDeleteIsolatedStorage)
	_ = s.router.RegisterMethod(MethodLogAttachment, s.handleLogAttachment)
	_ = s.router.RegisterMethod(MethodGetOrServePlugin, s.handleGetOrServePlugin)
}

func decodeParams[T any](params json.RawMessage) (*T, error) {
	if len(params) == 0 {
		return nil, &RPCError{Code: InvalidParams, Message: "missing params"}
	}
	var out T
	if err := json.Unmarshal(params, &out); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return &out, nil
}

func (p *storageParams) validate() error {
	if p.TenantID == "" || p.ProviderID == "" {
		return &RPCError{Code: InvalidParams, Message: "tenantId and providerId are required"}
	}
	return nil
}

func (s *Server) handleGetIsolatedStorage(_ context.Context, raw json.RawMessage) (interface{}, error) {
	params, err := decodeParams[storageParams](raw)
	if err != nil {
		return nil, err
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	data, err := s.store.GetIsolated(params.TenantID, params.ProviderID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return data, nil
}

func (s *Server) handleSetIsolatedStorage(_ context.Context, raw json.RawMessage) (interface{}, error) {
	params, err := decodeParams[storageParams](raw)
	if err != nil {
		return nil, err
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if params.Data == nil {
		return nil, &RPCError{Code: InvalidParams, Message: "data is required"}
	}

	if err := s.store.SetIsolated(params.TenantID, params.ProviderID, params.Data); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleDeleteIsolatedStorage(_ context.Context, raw json.RawMessage) (interface{}, error) {
	params, err := decodeParams[storageParams](raw)
	if err != nil {
		return nil, err
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	if err := s.store.DeleteIsolated(params.TenantID, params.ProviderID); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Server) handleLogAttachment(_ context.Context, raw json.RawMessage) (interface{}, error) {
	params, err := decodeParams[logAttachmentParams](raw)
	if err != nil {
		return nil, err
	}
	if params.TenantID == "" || params.Title == "" || params.URL == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "tenantId, title and url are required"}
	}

	attachment, err := s.store.AppendAttachment(Attachment{
		TenantID: params.TenantID,
		StreamID: params.StreamID,
		Title:    params.Title,
		Summary:  params.Summary,
		URL:      params.URL,
		Data:     params.Data,
	})
	if err != nil {
		return nil, err
	}

	return map[string]string{"id": attachment.ID}, nil
}

func (s *Server) handleGetOrServePlugin(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	if s.pluginServer == nil {
		return nil, &RPCError{Code: InternalError, Message: "plugin serving is not enabled"}
	}

	params, err := decodeParams[serveParams](raw)
	if err != nil {
		return nil, err
	}
	if params.TenantID == "" || params.ProviderID == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "tenantId and providerId are required"}
	}

	port, err := s.pluginServer.GetOrServe(ctx, params.TenantID, params.ProviderID, params.Config, params.StreamID)
	if err != nil {
		return nil, err
	}

	return map[string]int{"port": port}, nil
}
