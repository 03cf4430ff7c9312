// Package detector partitions scanned images into duplicate groups and ranks
// each group so that exactly one image is recommended to keep.
package detector

import (
	"context"
	"errors"
	"fmt"

	"imagededup/config"
	"imagededup/hashing"
	"imagededup/logging"
	"imagededup/types"

	"golang.org/x/sync/errgroup"
)

// FeaturePreparer readies images for pairwise scoring and answers the coarse
// pre-filter question. Implemented by the imageprocessor engine.
type FeaturePreparer interface {
	Prepare(ctx context.Context, paths []string) error
	PrefilterPass(pathA, pathB string) bool
}

// ConsensusScorer scores one pair and applies the match gate. Implemented by
// the provider consensus layer.
type ConsensusScorer interface {
	Compare(ctx context.Context, pathA, pathB string) types.SimilarityScore
	IsMatch(score types.SimilarityScore) bool
}

// Detector runs the two detection stages: exact grouping by content digest,
// then greedy similarity clustering over the remainder.
type Detector struct {
	preparer FeaturePreparer
	scorer   ConsensusScorer
	cfg      config.Detection
	quality  config.Quality
}

// New returns a detector wired to the given engines.
func New(preparer FeaturePreparer, scorer ConsensusScorer, cfg config.Detection, quality config.Quality) *Detector {
	return &Detector{preparer: preparer, scorer: scorer, cfg: cfg, quality: quality}
}

// DetectDuplicates classifies the records into duplicate groups. Unreadable
// files are excluded from exact grouping but still flow into perceptual
// comparison. On emergency stop the groups found so far are returned along
// with ErrEmergencyStopped.
func (d *Detector) DetectDuplicates(ctx context.Context, records []*types.ImageRecord) ([]*types.DuplicateGroup, error) {
	groups, remaining := d.groupExact(records)
	logging.LogInfo("exact stage: %d groups, %d images left for perceptual comparison", len(groups), len(remaining))

	if err := d.preparer.Prepare(ctx, paths(remaining)); err != nil {
		return d.rankAll(groups), haltErr(err)
	}

	similarityGroups, err := d.clusterBySimilarity(ctx, remaining)
	groups = append(groups, similarityGroups...)

	return d.rankAll(groups), err
}

// groupExact partitions records by content digest and byte size. Partitions
// with at least two members become exact groups; everything else moves on to
// the perceptual stage.
func (d *Detector) groupExact(records []*types.ImageRecord) ([]*types.DuplicateGroup, []*types.ImageRecord) {
	partitions := make(map[string][]*types.ImageRecord)
	var order []string
	var unhashable []*types.ImageRecord

	for _, record := range records {
		digest, err := hashing.DigestFile(record.Path)
		if err != nil {
			logging.LogWarning("cannot hash %s, excluding from exact grouping: %v", record.Path, err)
			unhashable = append(unhashable, record)
			continue
		}
		record.Digest = digest

		key := hashing.GroupKey(digest, record.Size)
		if _, seen := partitions[key]; !seen {
			order = append(order, key)
		}
		partitions[key] = append(partitions[key], record)
	}

	var groups []*types.DuplicateGroup
	var remaining []*types.ImageRecord
	for _, key := range order {
		members := partitions[key]
		if len(members) >= 2 {
			groups = append(groups, &types.DuplicateGroup{
				Images:     members,
				Similarity: 1.0,
				Confidence: types.ConfidenceAbsolute,
				Method:     types.MethodExact,
			})
		} else {
			remaining = append(remaining, members[0])
		}
	}
	remaining = append(remaining, unhashable...)

	return groups, remaining
}

type candidateScore struct {
	index int
	score types.SimilarityScore
	match bool
}

// clusterBySimilarity runs the greedy seed-absorption pass: each unprocessed
// image seeds a cluster and absorbs every later unprocessed image whose
// consensus score against the seed clears the match gate. Transitivity is
// deliberately not enforced; only seed-to-candidate comparisons are made.
// The processed set belongs to this loop alone; comparison workers only
// return scores.
func (d *Detector) clusterBySimilarity(ctx context.Context, records []*types.ImageRecord) ([]*types.DuplicateGroup, error) {
	var groups []*types.DuplicateGroup
	processed := make([]bool, len(records))

	for i := range records {
		if ctx.Err() != nil {
			return groups, haltErr(ctx.Err())
		}
		if processed[i] {
			continue
		}

		var candidates []int
		for j := i + 1; j < len(records); j++ {
			if !processed[j] {
				candidates = append(candidates, j)
			}
		}
		if len(candidates) == 0 {
			continue
		}

		scores, err := d.scoreCandidates(ctx, records, i, candidates)
		if err != nil {
			return groups, haltErr(err)
		}

		cluster := []*types.ImageRecord{records[i]}
		var simSum, confSum float64
		for _, cs := range scores {
			if !cs.match {
				continue
			}
			cluster = append(cluster, records[cs.index])
			processed[cs.index] = true
			simSum += cs.score.Similarity
			confSum += cs.score.Confidence
		}
		processed[i] = true

		if len(cluster) < 2 {
			continue
		}

		matches := float64(len(cluster) - 1)
		groups = append(groups, &types.DuplicateGroup{
			Images:     cluster,
			Similarity: simSum / matches,
			Confidence: confidenceLabel(confSum / matches),
			Method:     types.MethodPerceptual,
		})
	}

	return groups, nil
}

// scoreCandidates compares one seed against its candidates with bounded
// parallelism. Results come back in candidate order so absorption stays
// deterministic.
func (d *Detector) scoreCandidates(ctx context.Context, records []*types.ImageRecord, seed int, candidates []int) ([]candidateScore, error) {
	results := make([]candidateScore, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)

	for slot, j := range candidates {
		slot, j := slot, j
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			seedPath := records[seed].Path
			candidatePath := records[j].Path
			if !d.preparer.PrefilterPass(seedPath, candidatePath) {
				results[slot] = candidateScore{index: j}
				return nil
			}

			score := d.scorer.Compare(gctx, seedPath, candidatePath)
			results[slot] = candidateScore{index: j, score: score, match: d.scorer.IsMatch(score)}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func confidenceLabel(confidence float64) string {
	if confidence >= 0.95 {
		return types.ConfidenceHigh
	}
	return types.ConfidenceMedium
}

func paths(records []*types.ImageRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Path
	}
	return out
}

// haltErr maps cooperative cancellation onto the emergency-stop error so
// callers can tell a user-triggered halt from an ordinary fault.
func haltErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return types.ErrEmergencyStopped
	}
	return fmt.Errorf("duplicate detection failed: %w", err)
}
