// Package parser extracts frontmatter, wikilinks, and tags from Markdown content.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/raido/internal/models"
)

// ErrMalformedFrontmatter reports a frontmatter block that cannot be parsed:
// an opening --- without a closing delimiter, or YAML that does not decode.
var ErrMalformedFrontmatter = errors.New("malformed frontmatter")

var (
	wikilinkRe   = regexp.MustCompile(`(!?)\[\[(.*?)\]\]`)
	tagRe        = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	inlineCodeRe = regexp.MustCompile("`[^`\n]*`")
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Title       string
	Aliases     []string
	Tags        []string
	Refs        []models.LinkRef
}

// Parse extracts frontmatter, body, wikilinks, and tags from raw Markdown
// bytes. Fenced code blocks and inline code spans are ignored when scanning
// for links, tags, and headings, so C snippets full of #include lines and
// bracket expressions do not pollute the result.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	lines := scrubCode(body)
	scrubbed := strings.Join(lines, "\n")

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, lines),
		Aliases:     stringList(fm, "aliases", "alias"),
		Tags:        extractTags(scrubbed, fm),
		Refs:        extractRefs(scrubbed),
	}, nil
}

// Compose renders frontmatter and body back into a Markdown document. An
// empty frontmatter map yields the body alone.
func Compose(fm map[string]interface{}, body string) ([]byte, error) {
	if len(fm) == 0 {
		return []byte(body), nil
	}
	block, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("parser: marshal frontmatter: %w", err)
	}
	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(block)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.Bytes(), nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is
// body. An opened but unterminated block and undecodable YAML are both hard
// errors so callers can skip the note and record the failure.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	// Find end delimiter.
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, "", fmt.Errorf("%w: opening --- without closing delimiter", ErrMalformedFrontmatter)
	}

	yamlBlock := rest[:idx]
	// Body starts after closing delimiter line.
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedFrontmatter, err)
	}

	return fm, body, nil
}

// scrubCode blanks out fenced code blocks and inline code spans, preserving
// line structure so heading detection still works on the result.
func scrubCode(body string) []string {
	lines := strings.Split(body, "\n")
	out := make([]string, len(lines))
	inFence := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		out[i] = inlineCodeRe.ReplaceAllString(line, " ")
	}
	return out
}

// extractRefs returns every wikilink occurrence in document order, duplicates
// included. References with an empty target (such as [[#Heading]]
// self-anchors) are skipped.
func extractRefs(body string) []models.LinkRef {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	var out []models.LinkRef
	for _, m := range matches {
		ref := ParseRef(m[2], m[1] == "!")
		if ref.Target == "" {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// ParseRef splits the inner text of one wikilink, kept verbatim in Raw, into
// the pieces of the "target#anchor|alias" form. Also used to rehydrate
// references stored by a previous pass.
func ParseRef(raw string, embed bool) models.LinkRef {
	target := raw
	var alias, anchor string
	if i := strings.Index(target, "|"); i >= 0 {
		alias = strings.TrimSpace(target[i+1:])
		target = target[:i]
	}
	if i := strings.Index(target, "#"); i >= 0 {
		anchor = strings.TrimSpace(target[i+1:])
		target = target[:i]
	}
	return models.LinkRef{
		Raw:    raw,
		Target: strings.TrimSpace(target),
		Alias:  alias,
		Anchor: anchor,
		Embed:  embed,
	}
}

// extractTags collects tags from the frontmatter "tags" field and then inline
// #tags from the body, deduplicated with insertion order preserved.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string

	for _, t := range stringList(fm, "tags") {
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}

	matches := tagRe.FindAllStringSubmatch(body, -1)
	for _, m := range matches {
		t := m[1]
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}

	return out
}

// stringList reads the first of the given frontmatter keys as a list of
// strings. A plain string value is split on commas, matching how vault tools
// accept both "tags: [a, b]" and "tags: a, b".
func stringList(fm map[string]interface{}, keys ...string) []string {
	if fm == nil {
		return nil
	}
	for _, key := range keys {
		raw, ok := fm[key]
		if !ok {
			continue
		}
		var out []string
		switch v := raw.(type) {
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					if s = strings.TrimSpace(s); s != "" {
						out = append(out, s)
					}
				}
			}
		case string:
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	}
	return nil
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading outside code fences, otherwise empty string.
func deriveTitle(fm map[string]interface{}, lines []string) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
