package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/graphrag/internal/core/domain"
)

// dedupeSweepLimit bounds how many entities one sweep loads per kind. The
// pairwise comparison below is O(n²) per kind, acceptable only at bounded
// corpus sizes.
const dedupeSweepLimit = 500

// FindAndMergeDuplicates loads up to dedupeSweepLimit entities of a kind
// ordered by mention count and merges any pair whose name similarity reaches
// the exact threshold. The higher-ranked entity survives, absorbing the
// loser's mentions (sum), authority (max), and aliases; the losing name is
// kept as an alias at confidence 0.95 and the losing row is deleted.
func (uc *EntityResolverUC) FindAndMergeDuplicates(ctx context.Context, kind domain.EntityKind) (*domain.MergeReport, error) {
	if !kind.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "duplicate sweep", fmt.Errorf("unknown kind %q", kind))
	}

	entities, err := uc.graph.ListEntitiesByKind(ctx, kind, dedupeSweepLimit)
	if err != nil {
		return nil, fmt.Errorf("load entities for sweep: %w", err)
	}

	report := &domain.MergeReport{Examined: len(entities)}
	merged := make(map[string]bool, len(entities))

	for i, survivor := range entities {
		if merged[survivor.ID] {
			continue
		}
		for j := i + 1; j < len(entities); j++ {
			loser := entities[j]
			if merged[loser.ID] {
				continue
			}
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if nameSimilarity(survivor.Name, loser.Name) < uc.cfg.ExactThreshold {
				continue
			}
			if err := uc.mergePair(ctx, survivor, loser); err != nil {
				report.Failed++
				uc.logger.Warn("duplicate merge failed",
					"survivor", survivor.ID, "loser", loser.ID, "error", err)
				continue
			}
			merged[loser.ID] = true
			report.Merged++
		}
	}

	uc.logger.Info("duplicate sweep finished",
		"kind", kind, "examined", report.Examined, "merged", report.Merged, "failed", report.Failed)
	return report, nil
}

func (uc *EntityResolverUC) mergePair(ctx context.Context, survivor, loser *domain.Entity) error {
	survivor.MentionCount += loser.MentionCount
	survivor.AuthorityScore = maxFloat(survivor.AuthorityScore, loser.AuthorityScore)
	if survivor.Description == "" && loser.Description != "" {
		survivor.Description = loser.Description
	}

	if err := uc.graph.UpdateEntityStats(ctx, survivor.ID, survivor.MentionCount, survivor.AuthorityScore, survivor.Description); err != nil {
		return fmt.Errorf("update survivor stats: %w", err)
	}
	if err := uc.graph.ReassignAliases(ctx, loser.ID, survivor.ID); err != nil {
		return fmt.Errorf("reassign aliases: %w", err)
	}

	alias := domain.Alias{
		ID:         uuid.NewString(),
		EntityID:   survivor.ID,
		Alias:      loser.Name,
		Confidence: 0.95,
		CreatedAt:  time.Now().UTC(),
	}
	if err := uc.graph.CreateAlias(ctx, &alias); err != nil {
		return fmt.Errorf("alias losing name: %w", err)
	}

	if err := uc.graph.DeleteEntity(ctx, loser.ID); err != nil {
		return fmt.Errorf("delete merged entity: %w", err)
	}

	uc.logger.Debug("entities merged",
		"survivor", survivor.ID, "survivor_name", survivor.Name,
		"loser", loser.ID, "loser_name", loser.Name)
	return nil
}
