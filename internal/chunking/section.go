package chunking

import "strings"

// section is a detected heading and the char range it spans from its own
// start to the next detected heading (or document end).
type section struct {
	title string
	level int
	start int
	end   int
}

var falseHeadingSubstrings = []string{
	"figure", "table", "image", "result", "input", "output", "clear",
	"blurry", "crystal", "gundam", "large", "small", "tiny", "vision",
	"text token", "memory", "pipeline",
}

// isFalseHeading filters section-regex matches that are actually figure
// captions or image labels rather than real section titles.
func isFalseHeading(title string) bool {
	lower := strings.ToLower(title)
	if len(lower) < 3 {
		return true
	}
	letters := 0
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			letters++
		}
	}
	if letters < 3 {
		return true
	}
	for _, bad := range falseHeadingSubstrings {
		if strings.Contains(lower, bad) {
			return true
		}
	}
	return false
}

// detectSections finds heading matches and resolves each one's span up to
// the next heading (or EOF). Matches filtered by isFalseHeading never
// produce a section boundary.
func detectSections(content string, cfg Config) []section {
	matches := cfg.sectionRegex.FindAllStringSubmatchIndex(content, -1)
	var raw []struct {
		start, end int
		number     string
		title      string
	}
	for _, m := range matches {
		// m[0:1] full match, m[2:3] group1 (number, optional), m[4:5] group2 (title)
		fullStart, fullEnd := m[0], m[1]
		var number, title string
		if m[2] >= 0 {
			number = content[m[2]:m[3]]
		}
		if m[4] >= 0 {
			title = content[m[4]:m[5]]
		}
		if title == "" || isFalseHeading(title) {
			continue
		}
		raw = append(raw, struct {
			start, end int
			number     string
			title      string
		}{fullStart, fullEnd, number, title})
	}

	sections := make([]section, 0, len(raw))
	for i, r := range raw {
		level := 1
		if r.number != "" {
			level = strings.Count(r.number, ".") + 1
		}
		end := len(content)
		if i+1 < len(raw) {
			end = raw[i+1].start
		}
		if r.start >= len(content) || end > len(content) || r.start >= end {
			continue
		}
		sections = append(sections, section{title: r.title, level: level, start: r.start, end: end})
	}
	return sections
}

// segment is one contiguous region of the document assigned to one
// (possibly merged) section title, ready for independent chunking.
type segment struct {
	title   string
	level   int
	content string
	start   int // char offset into the original document
}

// splitBySections partitions content by detected headings, merging any
// section below minSectionChars into its neighbor so chunking never
// operates on a near-empty fragment.
func splitBySections(content string, sections []section, cfg Config) []segment {
	if len(sections) == 0 {
		return []segment{{title: "Document", level: 1, content: content, start: 0}}
	}

	minSectionChars := int(float64(cfg.MinTokens) * cfg.CharsPerToken * 3.0)
	if sections[0].start > 0 {
		sections = append([]section{{title: "Document", level: 1, start: 0, end: sections[0].start}}, sections...)
	}

	var segments []segment
	var pending *segment

	for _, s := range sections {
		body := content[s.start:s.end]
		cur := segment{title: s.title, level: s.level, content: body, start: s.start}

		if len(cur.content) < minSectionChars {
			if pending != nil {
				pending.content += cur.content
				pending.title = pending.title + " + " + cur.title
			} else {
				pending = &cur
			}
			continue
		}

		if pending != nil {
			cur.title = pending.title + " + " + cur.title
			cur.content = pending.content + cur.content
			cur.start = pending.start
			pending = nil
		}
		segments = append(segments, cur)
	}
	if pending != nil {
		if n := len(segments); n > 0 {
			segments[n-1].title += " + " + pending.title
			segments[n-1].content += pending.content
		} else {
			segments = append(segments, *pending)
		}
	}
	return segments
}
