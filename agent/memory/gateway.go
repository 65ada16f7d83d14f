package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/ppec-ai/copilot/agent/contract"
	planx "github.com/ppec-ai/copilot/agent/plan"
)

// Gateway reconstructs, persists, and reverts a session's durable history of
// completed plans on top of an append-only record store.
type Gateway struct {
	store contractx.RecordStore
}

func NewGateway(store contractx.RecordStore) (*Gateway, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: record store is required", contractx.ErrValidation)
	}
	return &Gateway{store: store}, nil
}

// History returns the session's conversational context oldest first. Each
// committed plan contributes a user entry (the goal) followed by an
// assistant entry (the final summary). Retrieval errors degrade to an empty
// history rather than failing the turn.
func (g *Gateway) History(ctx context.Context, sessionID string) ([]contractx.Message, error) {
	records, err := g.store.List(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("memory retrieval failed, continuing with empty history")
		return []contractx.Message{}, nil
	}

	messages := make([]contractx.Message, 0, len(records)*2)
	for _, rec := range records {
		raw, ok := rec.Metadata[contractx.MetadataPlan]
		if !ok {
			continue
		}
		var pl planx.Plan
		if err := json.Unmarshal([]byte(raw), &pl); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Str("record_key", rec.Key).Msg("skipping unparseable plan record")
			continue
		}
		messages = append(messages,
			contractx.Message{Role: contractx.RoleUser, Content: pl.Goal},
			contractx.Message{Role: contractx.RoleAssistant, Content: pl.FinalSummary},
		)
	}
	return messages, nil
}

// Commit persists a completed plan as a single atomic record keyed by its
// turn id. Plans without a final summary are never persisted.
func (g *Gateway) Commit(ctx context.Context, sessionID string, pl planx.Plan) error {
	if strings.TrimSpace(pl.FinalSummary) == "" {
		log.Warn().Str("session_id", sessionID).Str("turn_id", pl.TurnID).Msg("plan has no final summary, not adding to memory")
		return nil
	}

	payload, err := json.Marshal(pl)
	if err != nil {
		log.Error().Err(err).Str("turn_id", pl.TurnID).Msg("failed to serialize plan for memory")
		return nil
	}

	rec := contractx.Record{
		Key:      pl.TurnID,
		OwnerKey: sessionID,
		Content:  fmt.Sprintf("User Goal: %s\nAI Response: %s", pl.Goal, pl.FinalSummary),
		Metadata: map[string]string{
			contractx.MetadataPlan:   string(payload),
			contractx.MetadataTurnID: pl.TurnID,
		},
	}
	if err := g.store.Add(ctx, rec); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Str("turn_id", pl.TurnID).Msg("failed to add plan to memory")
		return nil
	}
	log.Info().Str("session_id", sessionID).Str("turn_id", pl.TurnID).Msg("committed completed plan to memory")
	return nil
}

// Revert deletes every record recorded strictly after the target turn, by
// storage-order position. Reverting to the most recent turn deletes nothing
// and succeeds; an unknown turn id fails with ErrTurnNotFound and deletes
// nothing.
func (g *Gateway) Revert(ctx context.Context, sessionID string, turnID string) error {
	records, err := g.store.List(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("list memory records: %w", err)
	}

	targetIdx := -1
	for i, rec := range records {
		if rec.Key == turnID {
			targetIdx = i
			break
		}
	}
	if targetIdx == -1 {
		return fmt.Errorf("%w: turn_id=%s", contractx.ErrTurnNotFound, turnID)
	}

	deleted := 0
	for _, rec := range records[targetIdx+1:] {
		if err := g.store.Delete(ctx, rec.Key); err != nil {
			return fmt.Errorf("delete memory record key=%s: %w", rec.Key, err)
		}
		deleted++
	}
	log.Warn().Str("session_id", sessionID).Str("turn_id", turnID).Int("deleted", deleted).Msg("reverted session memory")
	return nil
}
