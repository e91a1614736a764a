package llm

import (
	"fmt"
	"strings"

	"github.com/jo-hoe/podify/internal/podcast"
)

var toneInstructions = map[podcast.Tone]string{
	podcast.ToneEducational: "Tone: Clear, informative, accessible. Explain jargon when used. Use relatable analogies.",
	podcast.ToneCasual:      "Tone: Relaxed, like two friends chatting over coffee. Light humour welcome. Keep it breezy.",
	podcast.ToneDeepDive:    "Tone: Thorough and detailed. Go deeper into nuance. It's okay to spend time on complex ideas.",
	podcast.ToneMystical:    "Tone: Reverent but not pretentious. Honour the spiritual dimension while staying grounded and practical.",
}

func tone(t podcast.Tone) string {
	if s, ok := toneInstructions[t]; ok {
		return s
	}
	return toneInstructions[podcast.ToneEducational]
}

func wordTarget(d podcast.Duration) int {
	if n, ok := podcast.DurationWords[d]; ok {
		return n
	}
	return podcast.DurationWords[podcast.Duration5]
}

func baseRules(words int, cta string) string {
	var b strings.Builder
	b.WriteString("RULES:\n")
	b.WriteString("- Write for SPOKEN word: use contractions, casual phrasing, natural rhythm\n")
	b.WriteString("- Include \"um\", \"right\", \"exactly\", \"oh interesting\" SPARINGLY (max 3-4 per episode)\n")
	b.WriteString("- Never say \"great question\"; react naturally instead\n")
	b.WriteString("- Each speaker turn: 1-4 sentences MAX. Keep it punchy.\n")
	b.WriteString("- Include [laughs], [pause] stage directions VERY sparingly (max 2-3 per episode)\n")
	fmt.Fprintf(&b, "- Target: %d words total\n", words)
	b.WriteString("- Source content is your ONLY reference; don't make up facts\n")
	if cta != "" {
		fmt.Fprintf(&b, "- End with a soft CTA: %s\n", cta)
	}
	b.WriteString("\nOUTPUT: Return ONLY a JSON array, no markdown, no explanation:\n")
	b.WriteString(`[{"speaker":"HOST_A","text":"..."},{"speaker":"HOST_B","text":"..."},...]`)
	return b.String()
}

// SystemPrompt renders the per-format instructions for cfg.
func (w *ScriptWriter) SystemPrompt(cfg podcast.PodcastConfig) string {
	words := wordTarget(cfg.Duration)
	hostA := cfg.Voices.HostA.Name
	hostB := "Guest"
	if cfg.Voices.HostB != nil && cfg.Voices.HostB.Name != "" {
		hostB = cfg.Voices.HostB.Name
	}
	show := w.opts.ShowName
	rules := baseRules(words, w.opts.CallToAction)

	var prompt string
	switch cfg.Format {
	case podcast.FormatInterview:
		prompt = fmt.Sprintf(`You are a podcast script writer. %[1]s (HOST_A) is the interviewer, %[2]s (HOST_B) is the expert guest.

The interviewer asks probing questions. The expert gives detailed, engaging answers with examples and stories. The interviewer occasionally summarises or reacts.

STRUCTURE:
1. Introduction of guest and topic (30s)
2. "How did you get into this?" or origin story (1min)
3. Core Q&A: 3-5 questions going progressively deeper
4. Rapid-fire or "one thing listeners should know" (1min)
5. Where to learn more + outro (30s)

%[3]s

%[4]s`, hostA, hostB, tone(cfg.Tone), rules)

	case podcast.FormatSoloNarration:
		prompt = fmt.Sprintf(`You are a podcast script writer for a single-narrator show. %[1]s (HOST_A) narrates everything.

Write as a flowing narrative, like an audiobook or documentary voiceover. Use rhetorical questions to engage the listener. Vary sentence length for rhythm.

STRUCTURE:
1. Hook: compelling opening line or question
2. Background: set the scene
3. Core content: walk through the material
4. Reflection: why this matters
5. Closing thought + soft CTA

%[2]s

OUTPUT: Return ONLY a JSON array with all entries as HOST_A:
[{"speaker":"HOST_A","text":"..."},{"speaker":"HOST_A","text":"..."},...]

Target: %[3]d words total.`, hostA, tone(cfg.Tone), words)

	case podcast.FormatStudyNotes:
		prompt = fmt.Sprintf(`You are a podcast script writer that turns study notes into an engaging two-person discussion.

%[1]s (HOST_A): The teacher. Explains concepts clearly, uses examples, checks understanding.
%[2]s (HOST_B): The student. Asks clarifying questions, makes connections, occasionally gets confused (then corrected).

KEY: Make it feel like a productive tutoring session, not a lecture. %[2]s should make mistakes or have misconceptions that %[1]s gently corrects.

STRUCTURE:
1. "Today we're covering..." overview (30s)
2. Concept-by-concept walkthrough with Q&A
3. Quick recap / "test yourself" moment
4. Key takeaways to remember

%[3]s

%[4]s`, hostA, hostB, tone(cfg.Tone), rules)

	default:
		prompt = fmt.Sprintf(`You are a podcast script writer for "%[1]s", a two-host show.

%[2]s (HOST_A): The knowledgeable guide. Warm, clear, explains concepts accessibly. Uses metaphors and real-world connections. Never condescending.

%[3]s (HOST_B): The curious explorer. Asks the questions listeners are thinking. Gets genuinely excited about discoveries. Pushes for practical takeaways.

Natural name usage:
- Hosts should address each other BY NAME regularly (every 3-5 exchanges)
- e.g. "%[3]s, have you ever noticed..." or "That's a great point, %[2]s"

STRUCTURE:
1. Hook (30s): intriguing opening that draws listeners in
2. Context (1min): set the scene, why this matters
3. Deep exploration (3-7min): core content, back and forth
4. Practical takeaway (1min): what can listeners actually DO
5. Outro (30s): wrap up with soft CTA

%[4]s

%[5]s`, show, hostA, hostB, tone(cfg.Tone), rules)
	}

	if ci := strings.TrimSpace(cfg.CustomInstructions); ci != "" {
		prompt += "\n\nADDITIONAL INSTRUCTIONS: " + ci
	}
	return prompt
}

// UserPrompt wraps the source content with the title and length target.
func UserPrompt(cfg podcast.PodcastConfig) string {
	return fmt.Sprintf(`Create a %s podcast episode titled %q based on the following content.

Target approximately %d words of dialogue.

<source_content>
%s
</source_content>`, cfg.Duration, cfg.Title, wordTarget(cfg.Duration), cfg.Content)
}

const describeSystemPrompt = "You write concise podcast episode descriptions. Return ONLY the description text, no quotes or labels."

const describeExcerptLimit = 2000

func describeUserPrompt(title string, lines []podcast.ScriptLine) string {
	excerpt := podcast.JoinText(lines)
	if r := []rune(excerpt); len(r) > describeExcerptLimit {
		excerpt = string(r[:describeExcerptLimit])
	}
	return fmt.Sprintf(`Write a 2-3 sentence podcast episode description for an episode titled %q.
This is for an RSS feed listing; make it compelling and informative, not clickbait.
Based on this transcript excerpt:

%s`, title, excerpt)
}
