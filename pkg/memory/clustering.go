package memory

import (
	"sort"

	"github.com/codeready-toolchain/agentctl/internal/store"
)

// FeedbackEntry is one correction/feedback sample to cluster (spec §4.9c).
type FeedbackEntry struct {
	ID         string
	Embedding  []float64
	TargetFile string // may be empty ("null")
}

// ClusterProposal is a surviving cluster emitted as a correction proposal.
type ClusterProposal struct {
	MemberIDs  []string
	Size       int
	Confidence float64
	TargetFile string
}

// unionFind is a minimal disjoint-set over entry indices.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[ra] = rb
	}
}

// ClusterCorrections runs union-find clustering over entries: any pair with
// cosine similarity ≥ similarityThreshold is unioned. Clusters with size <
// minClusterSize are discarded. Results are sorted by size desc, then
// confidence desc (spec §4.9c).
func ClusterCorrections(entries []FeedbackEntry, similarityThreshold float64, minClusterSize int) []ClusterProposal {
	n := len(entries)
	if n == 0 {
		return nil
	}
	uf := newUnionFind(n)

	// pairSim[i][j] cached for the confidence computation below.
	pairSim := make(map[[2]int]float64)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim := store.CosineSimilarity(entries[i].Embedding, entries[j].Embedding)
			pairSim[[2]int{i, j}] = sim
			if sim >= similarityThreshold {
				uf.union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	var proposals []ClusterProposal
	for _, members := range groups {
		if len(members) < minClusterSize {
			continue
		}

		var sumSim float64
		var pairs int
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				i, j := members[a], members[b]
				if i > j {
					i, j = j, i
				}
				sumSim += pairSim[[2]int{i, j}]
				pairs++
			}
		}
		avgSim := 0.0
		if pairs > 0 {
			avgSim = sumSim / float64(pairs)
		}
		bonus := 0.03 * float64(len(members))
		if bonus > 0.2 {
			bonus = 0.2
		}
		confidence := avgSim + bonus
		if confidence > 0.99 {
			confidence = 0.99
		}

		ids := make([]string, 0, len(members))
		votes := make(map[string]int)
		for _, idx := range members {
			ids = append(ids, entries[idx].ID)
			if entries[idx].TargetFile != "" {
				votes[entries[idx].TargetFile]++
			}
		}

		target := ""
		best := 0
		// Deterministic tie-break: first-seen-in-member-order wins ties,
		// since map iteration order is not stable.
		for _, idx := range members {
			tf := entries[idx].TargetFile
			if tf == "" {
				continue
			}
			if votes[tf] > best {
				best = votes[tf]
				target = tf
			}
		}

		proposals = append(proposals, ClusterProposal{
			MemberIDs: ids, Size: len(members), Confidence: confidence, TargetFile: target,
		})
	}

	sort.Slice(proposals, func(i, j int) bool {
		if proposals[i].Size != proposals[j].Size {
			return proposals[i].Size > proposals[j].Size
		}
		return proposals[i].Confidence > proposals[j].Confidence
	})
	return proposals
}
