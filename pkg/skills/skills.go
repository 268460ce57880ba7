// Package skills implements the Skill Index (C13): a directory scan over
// SKILL.md files with mtime-cached metadata refresh, name resolution, and
// token-budget-aware selection. Generalizes the teacher's progressive
// tool-disclosure idea (pkg/agent/prompt/tools.go's FormatToolDescriptions,
// which formats and filters a tool list for prompt injection) to skill
// files discovered from disk, and reuses gopkg.in/yaml.v3 for the
// frontmatter format the same way the teacher uses it for chain configs
// (pkg/config/chain.go).
package skills

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Constraints narrow what an agent running under a skill may do.
type Constraints struct {
	AllowedTools  []string `yaml:"allowedTools,omitempty"`
	DeniedTools   []string `yaml:"deniedTools,omitempty"`
	NetworkAccess bool     `yaml:"networkAccess"`
	ShellAccess   bool     `yaml:"shellAccess"`
}

// frontmatter is the YAML header of a SKILL.md file.
type frontmatter struct {
	Title       string      `yaml:"title"`
	Tags        []string    `yaml:"tags"`
	Summary     string      `yaml:"summary"`
	Constraints Constraints `yaml:"constraints"`
}

// Definition is one skill's metadata, as returned by List/Resolve.
type Definition struct {
	Name        string
	Title       string
	Tags        []string
	Summary     string
	Constraints Constraints
	FilePath    string
	ModTime     time.Time
	ContentHash string

	body string // full markdown content after the frontmatter, read by Refresh
}

// Body returns the skill's full instructions (loaded by refresh/resolve).
func (d Definition) Body() string { return d.body }

// ErrNotFound is returned by Resolve for an unknown skill name.
var ErrNotFound = errors.New("skills: not found")

// Index scans a directory of skill subdirectories, each containing a
// SKILL.md, and caches their parsed metadata keyed by mtime.
type Index struct {
	root string

	mu   sync.RWMutex
	defs map[string]Definition
}

// New builds an Index rooted at dir. Call Refresh to perform the initial
// scan.
func New(dir string) *Index {
	return &Index{root: dir, defs: make(map[string]Definition)}
}

// Refresh rescans root, re-reading only the SKILL.md files whose mtime
// changed since the last refresh, and dropping entries for names that no
// longer exist.
func (ix *Index) Refresh() error {
	entries, err := os.ReadDir(ix.root)
	if err != nil {
		return fmt.Errorf("skills: read dir: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(ix.root, name, "SKILL.md")
		info, err := os.Stat(path)
		if err != nil {
			continue // not a skill directory
		}
		seen[name] = true

		if existing, ok := ix.defs[name]; ok && existing.ModTime.Equal(info.ModTime()) {
			continue
		}

		def, err := loadSkill(name, path, info.ModTime())
		if err != nil {
			return fmt.Errorf("skills: load %s: %w", name, err)
		}
		ix.defs[name] = def
	}

	for name := range ix.defs {
		if !seen[name] {
			delete(ix.defs, name)
		}
	}
	return nil
}

func loadSkill(name, path string, mtime time.Time) (Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, err
	}

	fm, body := splitFrontmatter(raw)
	var meta frontmatter
	if fm != "" {
		if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
			return Definition{}, fmt.Errorf("parse frontmatter: %w", err)
		}
	}

	sum := sha256.Sum256(raw)
	return Definition{
		Name: name, Title: meta.Title, Tags: meta.Tags, Summary: meta.Summary,
		Constraints: meta.Constraints, FilePath: path, ModTime: mtime,
		ContentHash: hex.EncodeToString(sum[:]), body: body,
	}, nil
}

// splitFrontmatter separates a "---\n...\n---\n" YAML header from the
// remaining markdown body. Content with no frontmatter delimiter returns
// the whole file as body.
func splitFrontmatter(raw []byte) (fm, body string) {
	const delim = "---"
	text := string(raw)
	if !strings.HasPrefix(text, delim) {
		return "", text
	}
	rest := text[len(delim):]
	end := strings.Index(rest, "\n"+delim)
	if end == -1 {
		return "", text
	}
	fm = strings.TrimPrefix(rest[:end], "\n")
	body = strings.TrimPrefix(rest[end+len(delim)+1:], "\n")
	return fm, body
}

// List returns all known skill definitions, sorted by name.
func (ix *Index) List() []Definition {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Definition, 0, len(ix.defs))
	for _, d := range ix.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve loads the full content for each named skill, in the order given.
func (ix *Index) Resolve(names []string) ([]Definition, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Definition, 0, len(names))
	for _, name := range names {
		d, ok := ix.defs[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		out = append(out, d)
	}
	return out, nil
}

// estimatedTokens approximates token count as chars/4, per the budget rule.
func estimatedTokens(d Definition) int {
	return (len(d.Summary) + len(d.body)) / 4
}

// SelectWithinBudget keeps defs in input order whose estimated token cost
// fits the remaining budget, dropping the rest.
func SelectWithinBudget(defs []Definition, tokenBudget int) []Definition {
	selected := make([]Definition, 0, len(defs))
	remaining := tokenBudget
	for _, d := range defs {
		cost := estimatedTokens(d)
		if cost > remaining {
			continue
		}
		selected = append(selected, d)
		remaining -= cost
	}
	return selected
}

// MergeConstraints combines constraints across a set of selected skills.
// allowedTools is the intersection of all non-empty lists (an empty list
// from a skill means "no restriction", so it does not narrow the
// intersection); deniedTools is the union; networkAccess/shellAccess are
// ANDed since skills can only narrow, never grant.
func MergeConstraints(defs []Definition) Constraints {
	merged := Constraints{NetworkAccess: true, ShellAccess: true}
	var allowedSet map[string]bool
	deniedSeen := make(map[string]bool)

	for _, d := range defs {
		c := d.Constraints
		if len(c.AllowedTools) > 0 {
			set := make(map[string]bool, len(c.AllowedTools))
			for _, t := range c.AllowedTools {
				set[t] = true
			}
			if allowedSet == nil {
				allowedSet = set
			} else {
				for t := range allowedSet {
					if !set[t] {
						delete(allowedSet, t)
					}
				}
			}
		}
		for _, t := range c.DeniedTools {
			deniedSeen[t] = true
		}
		merged.NetworkAccess = merged.NetworkAccess && c.NetworkAccess
		merged.ShellAccess = merged.ShellAccess && c.ShellAccess
	}

	if allowedSet != nil {
		merged.AllowedTools = make([]string, 0, len(allowedSet))
		for t := range allowedSet {
			merged.AllowedTools = append(merged.AllowedTools, t)
		}
		sort.Strings(merged.AllowedTools)
	}
	if len(deniedSeen) > 0 {
		merged.DeniedTools = make([]string, 0, len(deniedSeen))
		for t := range deniedSeen {
			merged.DeniedTools = append(merged.DeniedTools, t)
		}
		sort.Strings(merged.DeniedTools)
	}
	return merged
}
