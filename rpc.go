package main

import (
	"context"
	"encoding/json"

	"consultd/internal/config"
	"consultd/internal/conversation"
	"consultd/internal/hub"
	"consultd/internal/orchestrator"
)

// registerConsultOperations wires the Event Hub's RPC surface to the same
// Orchestrator, Config and Conversation services the REST boundary uses,
// per §4.C and §9's stateful socket-driven consult path: a hub client can
// drive the full consult/continue/end algorithm and the config and
// conversation operations without going through REST, and every
// transition it causes broadcasts the same events a REST caller would
// observe, since both paths share the same service instances.
func registerConsultOperations(h *hub.Hub, orch *orchestrator.Service, cfg *config.Service, convs *conversation.Service) {
	h.Handle("consult", func(c *hub.Client, params json.RawMessage) (any, error) {
		var req struct {
			Question             string   `json:"question"`
			Mode                 string   `json:"mode"`
			Context              string   `json:"context"`
			DocIDs               []string `json:"docIds"`
			DocTitles            []string `json:"docTitles"`
			Folder               string   `json:"folder"`
			Model                string   `json:"model"`
			SystemPrompt         string   `json:"systemPrompt"`
			DisableRAG bool     `json:"disableRag"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, err
		}
		return orch.Consult(context.Background(), orchestrator.ConsultInput{
			Question:             req.Question,
			Mode:                 orchestrator.Mode(req.Mode),
			Context:              req.Context,
			DocIDs:               req.DocIDs,
			DocTitles:            req.DocTitles,
			Folder:               req.Folder,
			Model:                req.Model,
			SystemPromptOverride: req.SystemPrompt,
			DisableRAG:           req.DisableRAG,
		})
	})

	h.Handle("continue", func(c *hub.Client, params json.RawMessage) (any, error) {
		var req struct {
			ConversationID string   `json:"conversationId"`
			Message        string   `json:"message"`
			DocIDs         []string `json:"docIds"`
			DocTitles      []string `json:"docTitles"`
			Folder         string   `json:"folder"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, err
		}
		return orch.Continue(context.Background(), orchestrator.ContinueInput{
			ConversationID: req.ConversationID,
			Message:        req.Message,
			DocIDs:         req.DocIDs,
			DocTitles:      req.DocTitles,
			Folder:         req.Folder,
		})
	})

	h.Handle("end", func(c *hub.Client, params json.RawMessage) (any, error) {
		var req struct {
			ConversationID string `json:"conversationId"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, err
		}
		return orch.End(context.Background(), req.ConversationID)
	})

	h.Handle("config:get", func(c *hub.Client, params json.RawMessage) (any, error) {
		loaded, err := cfg.Load(context.Background())
		if err != nil {
			return nil, err
		}
		return config.Snapshot(loaded), nil
	})

	h.Handle("config:update", func(c *hub.Client, params json.RawMessage) (any, error) {
		var patch config.Patch
		if err := json.Unmarshal(params, &patch); err != nil {
			return nil, err
		}
		updated, err := cfg.Update(context.Background(), patch)
		if err != nil {
			return nil, err
		}
		return config.Snapshot(updated), nil
	})

	h.Handle("conversation:list", func(c *hub.Client, params json.RawMessage) (any, error) {
		active, err := convs.ListActive(context.Background())
		if err != nil {
			return nil, err
		}
		archived, err := convs.ListArchived(context.Background())
		if err != nil {
			return nil, err
		}
		return map[string]any{"active": active, "archived": archived}, nil
	})

	h.Handle("conversation:get", func(c *hub.Client, params json.RawMessage) (any, error) {
		var req struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, err
		}
		return convs.Get(context.Background(), req.ID)
	})

	h.Handle("conversation:delete", func(c *hub.Client, params json.RawMessage) (any, error) {
		var req struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, err
		}
		if err := convs.Delete(context.Background(), req.ID); err != nil {
			return nil, err
		}
		return map[string]bool{"deleted": true}, nil
	})
}
