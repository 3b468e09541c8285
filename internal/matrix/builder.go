package matrix

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"dicer/internal/config"
	"dicer/internal/runstate"
	"dicer/internal/services"
)

// taskIDLength is the hex prefix length of the task identifier hash.
const taskIDLength = 12

// TaskID derives the stable identifier for one variant task. The hash
// covers exactly the fields that define the task's identity, so rebuilding
// the matrix from identical configuration never renames a task.
func TaskID(offerID, actor string, kind runstate.VariantKind, index int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", offerID, actor, kind, index)))
	return hex.EncodeToString(sum[:])[:taskIDLength]
}

// Build expands the configuration into the ordered task set: identical-script
// tasks first, one per actor in configuration order, then reworded tasks
// grouped by eligible actor. ScriptText is populated only for identical
// tasks; reworded tasks receive theirs during script preparation.
func Build(cfg *config.Config, runID string) ([]*runstate.Task, error) {
	if len(cfg.Actors) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "matrix", "build", "no actors configured", nil)
	}
	if !cfg.Variants.IdenticalScript && cfg.Variants.RewordedCount <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "matrix", "build", "no variants requested: enable identical_script or set reworded_count", nil)
	}

	var tasks []*runstate.Task
	position := 0

	add := func(actor config.Actor, kind runstate.VariantKind, index int) {
		task := &runstate.Task{
			ID:           TaskID(cfg.OfferID, actor.Name, kind, index),
			RunID:        runID,
			Position:     position,
			ActorName:    actor.Name,
			SceneID:      actor.SceneID,
			VoiceID:      actor.VoiceID,
			Style:        actor.Style,
			Kind:         kind,
			VariantIndex: index,
			StageVector:  pendingStageVector(),
		}
		if kind == runstate.KindIdentical {
			task.ScriptText = cfg.Reference.Script
		}
		tasks = append(tasks, task)
		position++
	}

	if cfg.Variants.IdenticalScript {
		for _, actor := range cfg.Actors {
			add(actor, runstate.KindIdentical, 0)
		}
	}
	if cfg.Variants.RewordedCount > 0 {
		eligible := cfg.EligibleActors()
		if len(eligible) == 0 {
			return nil, services.Wrap(services.ErrConfiguration, "matrix", "build", "reworded variants requested but every actor is identical_only", nil)
		}
		for _, actor := range eligible {
			for index := 1; index <= cfg.Variants.RewordedCount; index++ {
				add(actor, runstate.KindReworded, index)
			}
		}
	}

	return tasks, nil
}

func pendingStageVector() map[runstate.Stage]runstate.StageRecord {
	vector := make(map[runstate.Stage]runstate.StageRecord, len(runstate.Stages()))
	for _, stage := range runstate.Stages() {
		vector[stage] = runstate.StageRecord{Stage: stage, Status: runstate.StagePending}
	}
	return vector
}
