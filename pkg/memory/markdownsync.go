package memory

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentctl/internal/store"
)

// markdownSyncNamespace fixes the UUIDv5 namespace for deterministic chunk
// ids, per spec §4.9 step 3 ("deterministic UUIDv5 ... under a fixed
// namespace").
var markdownSyncNamespace = uuid.MustParse("6f1b1f2a-6e0f-4f2b-9d1a-8f6a2c6d4b10")

const (
	maxChunkChars = 4096
	minChunkChars = 32
)

// Chunk is one normalized markdown section ready for sync.
type Chunk struct {
	Heading     string
	Text        string
	ID          string
	ContentHash string
}

// SplitMarkdown splits content on `##` headers, sub-splits sections over
// maxChunkChars at paragraph boundaries, discards chunks under
// minChunkChars, and stamps each surviving chunk with its deterministic id
// and content hash (spec §4.9 step 1-3).
func SplitMarkdown(filePath, content string) []Chunk {
	sections := splitOnHeadings(content)

	var chunks []Chunk
	for _, sec := range sections {
		for _, piece := range subSplit(sec.body) {
			normalized := normalize(piece)
			if len(normalized) < minChunkChars {
				continue
			}
			headingPath := sec.heading
			// uuid.NewSHA1 is UUIDv5's construction (SHA-1, version
			// nibble 5); same namespace+name always yields the same id.
			id := uuid.NewSHA1(markdownSyncNamespace, []byte(fmt.Sprintf("%s:%s", filePath, headingPath))).String()
			chunks = append(chunks, Chunk{
				Heading:     headingPath,
				Text:        normalized,
				ID:          id,
				ContentHash: contentHash(normalized),
			})
		}
	}
	return chunks
}

type section struct {
	heading string
	body    string
}

func splitOnHeadings(content string) []section {
	lines := strings.Split(content, "\n")
	var sections []section
	var cur section
	var body strings.Builder
	started := false

	flush := func() {
		if started {
			cur.body = body.String()
			sections = append(sections, cur)
		}
		body.Reset()
	}

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "## ") {
			flush()
			cur = section{heading: strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "## "))}
			started = true
			continue
		}
		if !started {
			started = true
			cur = section{heading: ""}
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()
	return sections
}

// subSplit breaks body into chunks no larger than maxChunkChars, preferring
// paragraph (blank-line) boundaries.
func subSplit(body string) []string {
	if len(body) <= maxChunkChars {
		return []string{body}
	}

	paragraphs := strings.Split(body, "\n\n")
	var chunks []string
	var cur strings.Builder
	for _, p := range paragraphs {
		if cur.Len() > 0 && cur.Len()+len(p)+2 > maxChunkChars {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
		for cur.Len() > maxChunkChars {
			s := cur.String()
			chunks = append(chunks, s[:maxChunkChars])
			cur.Reset()
			cur.WriteString(s[maxChunkChars:])
		}
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// normalize applies LF line endings, strips trailing per-line whitespace,
// collapses 3+ blank lines to 2, and trims the result (spec §4.9 step 2).
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), " \t"))
	}

	var out []string
	blank := 0
	for _, l := range lines {
		if l == "" {
			blank++
			if blank > 2 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Diff classifies each current chunk against persisted sync state, keyed by
// content hash (spec §4.9 step 4).
type Diff struct {
	ToCreate  []Chunk
	ToUpdate  []Chunk
	Unchanged []Chunk
	ToDelete  []store.MarkdownSyncRow
}

func diffChunks(chunks []Chunk, persisted []store.MarkdownSyncRow) Diff {
	byHash := make(map[string]store.MarkdownSyncRow, len(persisted))
	for _, p := range persisted {
		byHash[p.ContentHash] = p
	}
	byHeading := make(map[string]store.MarkdownSyncRow, len(persisted))
	for _, p := range persisted {
		byHeading[p.Heading] = p
	}

	var d Diff
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		seen[c.ContentHash] = true
		if _, ok := byHash[c.ContentHash]; ok {
			d.Unchanged = append(d.Unchanged, c)
			continue
		}
		if _, ok := byHeading[c.Heading]; ok {
			d.ToUpdate = append(d.ToUpdate, c)
			continue
		}
		d.ToCreate = append(d.ToCreate, c)
	}
	for _, p := range persisted {
		if !seen[p.ContentHash] {
			stillPresent := false
			for _, c := range chunks {
				if c.Heading == p.Heading {
					stillPresent = true
					break
				}
			}
			if !stillPresent {
				d.ToDelete = append(d.ToDelete, p)
			}
		}
	}
	return d
}

// SyncMarkdown runs the full markdown->vector sync for one file: split,
// diff against persisted state, embed only create+update, upsert,
// delete orphans, persist new state. Re-running with identical content is a
// no-op, satisfying the spec's idempotency invariant.
func (p *Pipeline) SyncMarkdown(ctx context.Context, syncRepo *store.MarkdownSyncRepository, filePath, content string, memType Type) error {
	chunks := SplitMarkdown(filePath, content)
	persisted, err := syncRepo.ListByFile(ctx, filePath)
	if err != nil {
		return err
	}

	d := diffChunks(chunks, persisted)
	if len(d.ToCreate) == 0 && len(d.ToUpdate) == 0 && len(d.ToDelete) == 0 {
		p.log.Debug("markdown sync no-op", "file", filePath)
		return nil
	}

	var toEmbed []Chunk
	toEmbed = append(toEmbed, d.ToCreate...)
	toEmbed = append(toEmbed, d.ToUpdate...)

	var upserts []store.MemoryRow
	var syncRows []store.MarkdownSyncRow
	for _, c := range toEmbed {
		vec, err := p.embedder.Embed(ctx, c.Text)
		if err != nil {
			return err
		}
		upserts = append(upserts, store.MemoryRow{
			ID: c.ID, Type: string(memType), Content: c.Text, Source: filePath, Embedding: vec,
		})
		syncRows = append(syncRows, store.MarkdownSyncRow{ContentHash: c.ContentHash, PointID: c.ID, FilePath: filePath, Heading: c.Heading})
	}

	if len(upserts) > 0 {
		if err := p.repo.Upsert(ctx, upserts); err != nil {
			return err
		}
	}

	keepHashes := make([]string, 0, len(chunks))
	for _, c := range chunks {
		keepHashes = append(keepHashes, c.ContentHash)
	}
	orphanIDs, err := syncRepo.DeleteOrphans(ctx, filePath, keepHashes)
	if err != nil {
		return err
	}
	if len(orphanIDs) > 0 {
		if err := p.repo.Delete(ctx, orphanIDs); err != nil {
			return err
		}
	}

	for _, row := range syncRows {
		if err := syncRepo.Upsert(ctx, row); err != nil {
			return err
		}
	}

	p.log.Info("markdown sync complete", "file", filePath, "created", len(d.ToCreate), "updated", len(d.ToUpdate), "deleted", len(orphanIDs))
	return nil
}
