package engine

import (
	"fmt"
	"strings"
)

// maxContextEntries bounds topics and concepts quoted in a chat context.
const maxContextEntries = 3

// BuildChatContext renders the user message for a chat completion: a header,
// the topics and concepts named by the query, the relevant transcript
// sections and finally the question. Empty blocks are left out.
func BuildChatContext(query string, meta VideoMetadata, analysis AnalysisResult, chunks []Chunk, lang string) string {
	p := Prompts(lang)
	q := strings.ToLower(strings.TrimSpace(query))

	var blocks []string
	blocks = append(blocks, fmt.Sprintf("%s: %s\n%s: %s",
		p.VideoLabel, meta.Title, p.DurationLabel, FormatDuration(meta.DurationSeconds)))

	var topics []string
	for _, t := range analysis.MainTopics {
		if len(topics) == maxContextEntries {
			break
		}
		if mentions(q, t.Topic) {
			topics = append(topics, fmt.Sprintf("[%s] %s: %s", t.Timestamp, t.Topic, t.Description))
		}
	}
	if len(topics) > 0 {
		blocks = append(blocks, p.TopicsHeading+"\n"+strings.Join(topics, "\n"))
	}

	var concepts []string
	for _, c := range analysis.KeyConcepts {
		if len(concepts) == maxContextEntries {
			break
		}
		if mentions(q, c.Concept) {
			concepts = append(concepts, fmt.Sprintf("%s: %s", c.Concept, c.Definition))
		}
	}
	if len(concepts) > 0 {
		blocks = append(blocks, p.ConceptsHeading+"\n"+strings.Join(concepts, "\n"))
	}

	if len(chunks) > 0 {
		sections := make([]string, 0, len(chunks))
		for _, c := range chunks {
			sections = append(sections, fmt.Sprintf("[%s - %s]\n%s",
				FormatMs(c.StartTimeMs), FormatMs(c.EndTimeMs), c.Text))
		}
		blocks = append(blocks, p.SectionsHeading+"\n"+strings.Join(sections, "\n\n"))
	}

	blocks = append(blocks, p.QuestionLabel+" "+query)
	return strings.Join(blocks, "\n\n")
}
