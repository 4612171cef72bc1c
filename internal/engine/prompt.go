package engine

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// LLM prompt templates keyed by language tag. Data only; selection is a table
// lookup with DefaultLanguage as the fallback.

// DefaultLanguage is used when a video's language has no template set.
const DefaultLanguage = "en"

// PromptSet holds every language-dependent string of the pipeline.
type PromptSet struct {
	// AnalysisSystem is the system prompt of the analysis call.
	AnalysisSystem string `toml:"analysis_system"`
	// AnalysisPrompt args: title, duration, chunk count, transcript lines.
	AnalysisPrompt string `toml:"analysis_prompt"`
	// ChatSystem is the system prompt of the chat call.
	ChatSystem string `toml:"chat_system"`

	// Chat context labels.
	VideoLabel      string `toml:"video_label"`
	DurationLabel   string `toml:"duration_label"`
	TopicsHeading   string `toml:"topics_heading"`
	ConceptsHeading string `toml:"concepts_heading"`
	SectionsHeading string `toml:"sections_heading"`
	QuestionLabel   string `toml:"question_label"`

	// FallbackSummary args: title, duration.
	FallbackSummary    string `toml:"fallback_summary"`
	SectionLabel       string `toml:"section_label"`
	FallbackConcept    string `toml:"fallback_concept"`
	FallbackDefinition string `toml:"fallback_definition"`
}

const analysisPromptEN = `Analyze this YouTube video transcript and produce a structured summary.

Video title: %s
Duration: %s
Transcript sections: %d

Respond with valid JSON only (no markdown, no code fences) using exactly these keys:
{
  "summary": "A comprehensive summary of the whole video in 3-5 sentences.",
  "mainTopics": [
    {"topic": "Topic name", "timestamp": "M:SS", "description": "What is said about it"}
  ],
  "keyConcepts": [
    {"concept": "Term", "definition": "Definition as explained in the video"}
  ],
  "timeline": [
    {"time": "M:SS", "event": "What happens at this point"}
  ]
}

Rules:
- Timestamps use M:SS, or H:MM:SS for videos longer than one hour, and must come from the transcript markers
- Cover the entire video: the first entry must be within the first 3 minutes and consecutive entries no more than 3 minutes apart
- Only use information present in the transcript
- Write in English

Transcript:
%s`

const analysisPromptMS = `Analisis transkrip video YouTube ini dan hasilkan ringkasan berstruktur.

Tajuk video: %s
Tempoh: %s
Bahagian transkrip: %d

Balas dengan JSON yang sah sahaja (tanpa markdown, tanpa blok kod) menggunakan kunci berikut sahaja:
{
  "summary": "Ringkasan menyeluruh video dalam 3-5 ayat.",
  "mainTopics": [
    {"topic": "Nama topik", "timestamp": "M:SS", "description": "Apa yang dibincangkan"}
  ],
  "keyConcepts": [
    {"concept": "Istilah", "definition": "Definisi seperti yang diterangkan dalam video"}
  ],
  "timeline": [
    {"time": "M:SS", "event": "Apa yang berlaku pada ketika ini"}
  ]
}

Peraturan:
- Cap masa menggunakan M:SS, atau H:MM:SS untuk video melebihi satu jam, dan mesti diambil daripada penanda transkrip
- Liputi keseluruhan video: entri pertama mesti dalam 3 minit pertama dan jarak antara entri tidak melebihi 3 minit
- Gunakan maklumat daripada transkrip sahaja
- Tulis dalam Bahasa Melayu

Transkrip:
%s`

var builtinPrompts = map[string]PromptSet{
	"en": {
		AnalysisSystem:     "You are an expert video content analyst. You read timestamped transcripts and return precise, well-structured JSON summaries.",
		AnalysisPrompt:     analysisPromptEN,
		ChatSystem:         "You are a helpful assistant answering questions about a YouTube video. Base your answers on the provided video analysis and transcript sections. Cite timestamps in [M:SS] form when referring to specific moments. If the answer is not in the provided context, say so.",
		VideoLabel:         "Video",
		DurationLabel:      "Duration",
		TopicsHeading:      "Relevant topics:",
		ConceptsHeading:    "Relevant concepts:",
		SectionsHeading:    "Relevant transcript sections:",
		QuestionLabel:      "User question:",
		FallbackSummary:    "This video \"%s\" (%s) could not be summarized automatically. The sections below follow the transcript in order.",
		SectionLabel:       "Section",
		FallbackConcept:    "Transcript",
		FallbackDefinition: "Detailed concepts are unavailable; ask a question to search the transcript directly.",
	},
	"ms": {
		AnalysisSystem:     "Anda ialah penganalisis kandungan video yang pakar. Anda membaca transkrip bercap masa dan memulangkan ringkasan JSON yang tepat dan tersusun.",
		AnalysisPrompt:     analysisPromptMS,
		ChatSystem:         "Anda ialah pembantu yang menjawab soalan tentang video YouTube. Jawab berdasarkan analisis video dan bahagian transkrip yang diberikan. Nyatakan cap masa dalam bentuk [M:SS] apabila merujuk detik tertentu. Jika jawapan tiada dalam konteks, nyatakan dengan jelas. Jawab dalam Bahasa Melayu.",
		VideoLabel:         "Video",
		DurationLabel:      "Tempoh",
		TopicsHeading:      "Topik berkaitan:",
		ConceptsHeading:    "Konsep berkaitan:",
		SectionsHeading:    "Bahagian transkrip berkaitan:",
		QuestionLabel:      "Soalan pengguna:",
		FallbackSummary:    "Video \"%s\" (%s) tidak dapat diringkaskan secara automatik. Bahagian di bawah mengikut urutan transkrip.",
		SectionLabel:       "Bahagian",
		FallbackConcept:    "Transkrip",
		FallbackDefinition: "Konsep terperinci tidak tersedia; tanya soalan untuk mencari dalam transkrip secara terus.",
	},
}

var (
	promptsMu sync.RWMutex
	prompts   = cloneBuiltin()
)

func cloneBuiltin() map[string]PromptSet {
	m := make(map[string]PromptSet, len(builtinPrompts))
	for k, v := range builtinPrompts {
		m[k] = v
	}
	return m
}

// Prompts returns the template set for lang, falling back to DefaultLanguage.
func Prompts(lang string) PromptSet {
	promptsMu.RLock()
	defer promptsMu.RUnlock()
	if p, ok := prompts[NormalizeLanguage(lang)]; ok {
		return p
	}
	return prompts[DefaultLanguage]
}

// HasPrompts reports whether a template set exists for lang.
func HasPrompts(lang string) bool {
	promptsMu.RLock()
	defer promptsMu.RUnlock()
	_, ok := prompts[NormalizeLanguage(lang)]
	return ok
}

// OverridePrompts rewords the built-in set for lang. Empty fields keep the
// current wording. Only languages in the built-in table can be overridden.
func OverridePrompts(lang string, set PromptSet) error {
	lang = NormalizeLanguage(lang)
	promptsMu.Lock()
	defer promptsMu.Unlock()
	base, ok := prompts[lang]
	if !ok {
		return fmt.Errorf("prompts: no built-in set for %q", lang)
	}
	prompts[lang] = mergePrompts(base, set)
	return nil
}

// ResetPrompts restores the built-in table.
func ResetPrompts() {
	promptsMu.Lock()
	defer promptsMu.Unlock()
	prompts = cloneBuiltin()
}

// LoadPromptsFile reads wording overrides from a TOML file whose top-level
// tables are built-in language tags:
//
//	[ms]
//	question_label = "Soalan:"
func LoadPromptsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("prompts: read %s: %w", path, err)
	}
	var sets map[string]PromptSet
	if err := toml.Unmarshal(data, &sets); err != nil {
		return nil, fmt.Errorf("prompts: parse %s: %w", path, err)
	}
	langs := make([]string, 0, len(sets))
	for lang, set := range sets {
		if strings.TrimSpace(lang) == "" {
			continue
		}
		if err := OverridePrompts(lang, set); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		langs = append(langs, NormalizeLanguage(lang))
	}
	return langs, nil
}

func mergePrompts(base, over PromptSet) PromptSet {
	pick := func(b, o string) string {
		if o != "" {
			return o
		}
		return b
	}
	return PromptSet{
		AnalysisSystem:     pick(base.AnalysisSystem, over.AnalysisSystem),
		AnalysisPrompt:     pick(base.AnalysisPrompt, over.AnalysisPrompt),
		ChatSystem:         pick(base.ChatSystem, over.ChatSystem),
		VideoLabel:         pick(base.VideoLabel, over.VideoLabel),
		DurationLabel:      pick(base.DurationLabel, over.DurationLabel),
		TopicsHeading:      pick(base.TopicsHeading, over.TopicsHeading),
		ConceptsHeading:    pick(base.ConceptsHeading, over.ConceptsHeading),
		SectionsHeading:    pick(base.SectionsHeading, over.SectionsHeading),
		QuestionLabel:      pick(base.QuestionLabel, over.QuestionLabel),
		FallbackSummary:    pick(base.FallbackSummary, over.FallbackSummary),
		SectionLabel:       pick(base.SectionLabel, over.SectionLabel),
		FallbackConcept:    pick(base.FallbackConcept, over.FallbackConcept),
		FallbackDefinition: pick(base.FallbackDefinition, over.FallbackDefinition),
	}
}
