package features

import (
	"sort"

	"github.com/heimdalr/dag"

	"github.com/kestrel-dev/devc/internal/errors"
)

// OrderFeatures orders features for installation. Two edge kinds
// participate: hard edges from dependsOn (the target MUST be installed
// first) and soft edges from installsAfter (the target SHOULD be
// installed first, but a cycle in soft edges alone is not an error).
//
// overrideOrder, when non-empty, places the named features first in the
// given order, followed by the rest in declaration order; hard-dependency
// violations an override introduces are still reported, never silently
// honored.
func OrderFeatures(features []*Feature, overrideOrder []string) ([]*Feature, error) {
	if len(features) == 0 {
		return features, nil
	}

	featureMap := make(map[string]*Feature)
	declIndex := make(map[string]int)
	for i, f := range features {
		id := featureKey(f)
		featureMap[id] = f
		declIndex[id] = i
	}

	if len(overrideOrder) > 0 {
		ordered, err := applyOverrideOrder(features, overrideOrder, featureMap)
		if err != nil {
			return nil, err
		}
		if err := checkHardEdgesSatisfied(ordered, featureMap); err != nil {
			return nil, err
		}
		return ordered, nil
	}

	return orderByTwoPassKahn(features, featureMap, declIndex)
}

// applyOverrideOrder reorders features based on the override order.
func applyOverrideOrder(features []*Feature, overrideOrder []string, featureMap map[string]*Feature) ([]*Feature, error) {
	result := make([]*Feature, 0, len(features))
	used := make(map[string]bool)

	for _, id := range overrideOrder {
		if f, ok := featureMap[id]; ok {
			result = append(result, f)
			used[id] = true
		}
	}

	for _, f := range features {
		if !used[featureKey(f)] {
			result = append(result, f)
		}
	}

	return result, nil
}

// checkHardEdgesSatisfied verifies that an explicit override order still
// respects every hard dependency; a violation is reported rather than
// silently honored.
func checkHardEdgesSatisfied(ordered []*Feature, featureMap map[string]*Feature) error {
	position := make(map[string]int, len(ordered))
	for i, f := range ordered {
		position[featureKey(f)] = i
	}
	for _, f := range ordered {
		if f.Metadata == nil {
			continue
		}
		for _, dep := range f.Metadata.DependsOn {
			depFeature, exists := featureMap[dep]
			if !exists {
				continue
			}
			if position[featureKey(depFeature)] > position[featureKey(f)] {
				return errors.FeatureCycle([]string{featureKey(f), dep}).
					WithHint("overrideFeatureInstallOrder places this feature before a hard dependency it requires")
			}
		}
	}
	return nil
}

// orderByTwoPassKahn builds a dag.DAG over the feature set with a hard
// edge per dependsOn relation and a soft edge per installsAfter relation,
// then repeatedly peels off the DAG's current roots - the lowest
// declaration index first - to produce a deterministic install order.
// dag.DAG refuses any AddEdge that would introduce a cycle: a hard edge
// rejected this way is a real dependency cycle and is reported; a soft
// edge rejected this way is simply dropped; installsAfter is a hint, not
// a requirement, so a cycle among soft edges alone is never an error.
func orderByTwoPassKahn(features []*Feature, featureMap map[string]*Feature, declIndex map[string]int) ([]*Feature, error) {
	graph := dag.NewDAG()
	for _, f := range features {
		if err := graph.AddVertexByID(featureKey(f), f); err != nil {
			return nil, err
		}
	}

	seen := make(map[[2]string]bool)
	addEdgeOnce := func(from, to string) error {
		key := [2]string{from, to}
		if seen[key] {
			return nil
		}
		seen[key] = true
		return graph.AddEdge(from, to)
	}

	for _, f := range features {
		id := featureKey(f)
		if f.Metadata == nil {
			continue
		}
		for _, dep := range f.Metadata.DependsOn {
			if _, ok := featureMap[dep]; !ok {
				continue
			}
			if err := addEdgeOnce(dep, id); err != nil {
				return nil, errors.FeatureCycle([]string{dep, id}).
					WithHint("dependsOn introduces a cycle between these features")
			}
		}
	}
	for _, f := range features {
		id := featureKey(f)
		if f.Metadata == nil {
			continue
		}
		for _, dep := range f.Metadata.InstallsAfter {
			if _, ok := featureMap[dep]; !ok {
				continue
			}
			_ = addEdgeOnce(dep, id)
		}
	}

	result := make([]*Feature, 0, len(features))
	for len(result) < len(features) {
		roots := graph.GetRoots()
		if len(roots) == 0 {
			break
		}
		ids := make([]string, 0, len(roots))
		for id := range roots {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return declIndex[ids[i]] < declIndex[ids[j]] })

		next := ids[0]
		result = append(result, featureMap[next])
		if err := graph.DeleteVertex(next); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func featureKey(f *Feature) string {
	if f.Metadata != nil && f.Metadata.ID != "" {
		return f.Metadata.ID
	}
	return f.ID
}

// ValidateDependencies checks that all hard dependencies are present.
func ValidateDependencies(features []*Feature) error {
	available := make(map[string]bool)
	for _, f := range features {
		available[f.ID] = true
		if f.Metadata != nil && f.Metadata.ID != "" {
			available[f.Metadata.ID] = true
		}
	}

	for _, f := range features {
		if f.Metadata == nil {
			continue
		}
		for _, dep := range f.Metadata.DependsOn {
			if !available[dep] {
				return errors.FeatureDependency(featureKey(f), dep)
			}
		}
	}

	return nil
}
