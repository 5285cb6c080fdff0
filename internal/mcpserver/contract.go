package mcpserver

// NoteFormatContract is the canonical note format, served both as an MCP
// resource and through the get_note_contract tool.
const NoteFormatContract = `# Raido Note Format Contract

Every Markdown note stored in Raido SHOULD follow this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # optional; falls back to the first heading
tags:                               # optional; YAML list, order is preserved
  - tag-one
  - tag-two
aliases:                            # optional; alternative names for linking
  - Short Name
---

Body text in standard Markdown.

Use [[wikilinks]] to reference other notes.
Use [[Target|display text]] when the link text should differ from the target.
Use ![[image.png]] to embed an attachment.
` + "```" + `

## Rules

1. **Frontmatter is optional but strict.** If a note opens with ` + "`" + `---` + "`" + `, the
   closing ` + "`" + `---` + "`" + ` fence must be present and the block must be valid YAML.
   An unterminated or malformed block makes the whole note unparseable and it
   will be rejected.
2. **Title resolution order:** frontmatter ` + "`" + `title` + "`" + `, else the first
   ` + "`" + `# heading` + "`" + ` in the body, else the filename stem.
3. **Tags** are lowercase kebab-case, like ` + "`" + `project-x` + "`" + ` or
   ` + "`" + `meeting-notes` + "`" + `. Duplicates are dropped; the first occurrence
   keeps its position.
4. **Aliases** give a note extra names that wikilinks can target. Use them for
   abbreviations (` + "`" + `aliases: [SAP GUI]` + "`" + `) so other notes can link naturally.
5. **Wikilink resolution is case-insensitive** and tries, in order: note
   titles, aliases, filename stems. ` + "`" + `[[sap gui]]` + "`" + ` finds a note titled
   ` + "`" + `SAP GUI` + "`" + `. When several notes claim the same name, an exact-case match
   wins, then the oldest note.
6. **Unresolved wikilinks are allowed.** They are recorded as dangling links
   (inspect them with the ` + "`" + `get_dangling_links` + "`" + ` tool) and start resolving as
   soon as a matching note appears.
7. **Links inside code are ignored.** ` + "`" + `[[...]]` + "`" + ` inside fenced blocks or
   inline code spans is treated as literal text.
8. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
9. **Encoding** is UTF-8 with a trailing newline.

## Assets & Images

- Upload with the ` + "`" + `upload_asset` + "`" + ` tool; paste its ` + "`" + `markdownImage` + "`" + ` result into the note body.
- Everything lives flat under ` + "`" + `attachments/` + "`" + `; there are no sub-folders.
- Embed with the absolute form ` + "`" + `![description](/attachments/filename.png)` + "`" + `.
- Relative forms like ` + "`" + `./attachments/...` + "`" + ` do not resolve; always start with ` + "`" + `/attachments/` + "`" + `.
- Accepted formats: png, jpg, jpeg, gif, webp, svg, pdf.

## Example

` + "```" + `markdown
---
title: Weekly standup 2025-01-20
tags:
  - meeting-notes
  - project-x
aliases:
  - Standup W4
---

# Weekly standup 2025-01-20

Attendees: Alice, Bob.

![Whiteboard](/attachments/standup-w4.jpg)

## Action items

- [[Alice]] to review the [[Design Doc]]
- Bob to update [[Project X Roadmap|the roadmap]]
` + "```" + `
`
