package pipeline

import (
	"regexp"
	"strings"
)

// headingPattern matches a numbered heading such as "1 Intro", "2. Method",
// "1.1 Background" or "## 3 Results".
var headingPattern = regexp.MustCompile(`^\s*(?:#{1,6}\s*)?(\d{1,2}(?:\.\d{1,2})*)\.?\s+(\S.*?)\s*$`)

// markdownHeading matches any markdown heading line.
var markdownHeading = regexp.MustCompile(`^\s*#{1,6}\s`)

// ParseOutline splits an outline into sections at numbered headings.
//
// Text that does not sit under a numbered heading (a preamble, or a
// section under an unnumbered markdown heading) is not a section. Those
// segments are returned as dropped so the caller can report them.
func ParseOutline(text string) (sections []SectionSpec, dropped []string) {
	var (
		current *SectionSpec
		body    []string
		orphan  []string
	)

	flushSection := func() {
		if current != nil {
			current.Body = strings.TrimSpace(strings.Join(body, "\n"))
			sections = append(sections, *current)
		}
		current, body = nil, nil
	}
	flushOrphan := func() {
		if seg := strings.TrimSpace(strings.Join(orphan, "\n")); seg != "" {
			dropped = append(dropped, seg)
		}
		orphan = nil
	}

	for line := range strings.Lines(text) {
		line = strings.TrimRight(line, "\r\n")

		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flushSection()
			flushOrphan()
			current = &SectionSpec{Number: m[1], Title: strings.TrimSpace(m[2])}
			continue
		}
		if markdownHeading.MatchString(line) {
			flushSection()
			flushOrphan()
			orphan = append(orphan, line)
			continue
		}
		if current != nil {
			body = append(body, line)
		} else {
			orphan = append(orphan, line)
		}
	}
	flushSection()
	flushOrphan()
	return sections, dropped
}
