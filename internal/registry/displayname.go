package registry

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/go-git/go-git/v6"
)

// DisplayNames maps each state to a name unambiguous among its siblings.
// Unique names pass through unchanged. Duplicates prefer "name (branch)"
// when the workspace's git branch is known and itself unique among the
// duplicates; any names still colliding after that fall back to
// "name [hash]", a short FNV-1a digest of configPath::workspacePath.
//
// The returned map is guaranteed injective: no two distinct inputs ever
// produce the same display name.
func DisplayNames(states []*ContainerState) map[string]string {
	byName := make(map[string][]*ContainerState)
	for _, c := range states {
		byName[c.Name] = append(byName[c.Name], c)
	}

	result := make(map[string]string, len(states))
	for name, group := range byName {
		if len(group) == 1 {
			result[group[0].ID] = name
			continue
		}
		assignDisambiguated(name, group, result)
	}
	return result
}

func assignDisambiguated(name string, group []*ContainerState, result map[string]string) {
	// Stable order so ties resolve the same way across runs.
	sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })

	branchOf := make(map[string]string, len(group))
	branchCount := make(map[string]int)
	for _, c := range group {
		branch := gitBranch(c)
		if branch == "" {
			continue
		}
		branchOf[c.ID] = branch
		branchCount[branch]++
	}

	assigned := make(map[string]bool, len(group))
	used := make(map[string]bool, len(group))
	for _, c := range group {
		if branch, ok := branchOf[c.ID]; ok && branchCount[branch] == 1 {
			candidate := fmt.Sprintf("%s (%s)", name, branch)
			result[c.ID] = candidate
			used[candidate] = true
			assigned[c.ID] = true
		}
	}

	for _, c := range group {
		if assigned[c.ID] {
			continue
		}
		candidate := fmt.Sprintf("%s [%s]", name, shortHash(c))
		for used[candidate] {
			// Astronomically unlikely for two distinct identity keys to
			// collide on the truncated hash; widen deterministically if
			// it ever happens rather than silently dropping a record.
			candidate = fmt.Sprintf("%s [%s.%s]", name, shortHash(c), c.ID[:min(4, len(c.ID))])
		}
		result[c.ID] = candidate
		used[candidate] = true
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func shortHash(c *ContainerState) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(c.ConfigPath + "::" + c.WorkspacePath))
	return fmt.Sprintf("%08x", h.Sum32())
}

// gitBranch returns the current branch name for the workspace, or "" if the
// workspace isn't a git repository or is in detached-HEAD state.
func gitBranch(c *ContainerState) string {
	if c.WorkspacePath == "" {
		return ""
	}
	repo, err := git.PlainOpenWithOptions(c.WorkspacePath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	if !head.Name().IsBranch() {
		return ""
	}
	return head.Name().Short()
}
