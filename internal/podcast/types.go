package podcast

import (
	"fmt"
	"strings"
	"time"
)

// Speaker identifies one of the two fixed script roles.
type Speaker string

const (
	HostA Speaker = "HOST_A"
	HostB Speaker = "HOST_B"
)

// Valid reports whether s is one of the two known roles.
func (s Speaker) Valid() bool {
	return s == HostA || s == HostB
}

type Format string

const (
	FormatConversation  Format = "conversation"
	FormatInterview     Format = "interview"
	FormatSoloNarration Format = "solo_narration"
	FormatStudyNotes    Format = "study_notes"
)

type Duration string

const (
	Duration5  Duration = "5min"
	Duration10 Duration = "10min"
	Duration15 Duration = "15min"
)

type Tone string

const (
	ToneEducational Tone = "educational"
	ToneCasual      Tone = "casual"
	ToneDeepDive    Tone = "deep_dive"
	ToneMystical    Tone = "mystical"
)

// TTSProvider selects the speech-synthesis backend.
type TTSProvider string

const (
	TTSDeepInfra TTSProvider = "deepinfra"
	TTSInference TTSProvider = "inference"
	TTSOpenAI    TTSProvider = "openai"
	TTSMock      TTSProvider = "mock"
)

// LLMProvider selects the text-generation backend.
type LLMProvider string

const (
	LLMOpenRouter LLMProvider = "openrouter"
	LLMInference  LLMProvider = "inference"
	LLMMock       LLMProvider = "mock"
)

// Voice pairs a provider voice identifier with the on-air host name.
type Voice struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Voices holds the two host voices. HostB is optional for solo narration.
type Voices struct {
	HostA Voice  `json:"host_a" yaml:"hostA"`
	HostB *Voice `json:"host_b,omitempty" yaml:"hostB,omitempty"`
}

// VoiceFor resolves the provider voice for a speaker. HOST_B falls back to
// HOST_A's voice when no second voice is configured.
func (v Voices) VoiceFor(s Speaker) string {
	if s == HostB && v.HostB != nil && v.HostB.ID != "" {
		return v.HostB.ID
	}
	return v.HostA.ID
}

// NameFor returns the display name used in the readable transcript.
func (v Voices) NameFor(s Speaker) string {
	if s == HostA {
		return v.HostA.Name
	}
	if v.HostB != nil && v.HostB.Name != "" {
		return v.HostB.Name
	}
	return "Host B"
}

// PodcastConfig is the immutable input of one generation run.
type PodcastConfig struct {
	Content            string      `json:"content"`
	Title              string      `json:"title"`
	Format             Format      `json:"format"`
	Duration           Duration    `json:"duration"`
	Tone               Tone        `json:"tone"`
	Voices             Voices      `json:"voices"`
	TTSProvider        TTSProvider `json:"ttsProvider"`
	LLMProvider        LLMProvider `json:"llmProvider"`
	IncludeMusic       bool        `json:"includeMusic"`
	CustomInstructions string      `json:"customInstructions,omitempty"`
	Source             string      `json:"source,omitempty"`
}

// WithDefaults returns a copy with empty enumerations filled in.
func (c PodcastConfig) WithDefaults() PodcastConfig {
	if c.Format == "" {
		c.Format = FormatConversation
	}
	if c.Duration == "" {
		c.Duration = Duration5
	}
	if c.Tone == "" {
		c.Tone = ToneEducational
	}
	if c.Voices.HostA.ID == "" {
		c.Voices = VoicePresets[DefaultVoicePreset]
	}
	if c.TTSProvider == "" {
		c.TTSProvider = TTSDeepInfra
	}
	if c.LLMProvider == "" {
		c.LLMProvider = LLMOpenRouter
	}
	if strings.TrimSpace(c.Title) == "" {
		c.Title = "Untitled Episode"
	}
	return c
}

// Validate checks the input before any stage work begins.
func (c PodcastConfig) Validate() error {
	if len(strings.TrimSpace(c.Content)) < MinContentChars {
		return &ConfigurationError{Op: "validate", Err: fmt.Errorf("content too short (< %d chars)", MinContentChars)}
	}
	switch c.Format {
	case FormatConversation, FormatInterview, FormatSoloNarration, FormatStudyNotes:
	default:
		return &ConfigurationError{Op: "validate", Err: fmt.Errorf("unknown format %q", c.Format)}
	}
	if _, ok := DurationWords[c.Duration]; !ok {
		return &ConfigurationError{Op: "validate", Err: fmt.Errorf("unknown duration %q", c.Duration)}
	}
	switch c.Tone {
	case ToneEducational, ToneCasual, ToneDeepDive, ToneMystical:
	default:
		return &ConfigurationError{Op: "validate", Err: fmt.Errorf("unknown tone %q", c.Tone)}
	}
	if strings.TrimSpace(c.Voices.HostA.ID) == "" {
		return &ConfigurationError{Op: "validate", Err: fmt.Errorf("host_a voice is required")}
	}
	return nil
}

// MinContentChars is the shortest source text accepted for a run.
const MinContentChars = 50

// DurationWords maps a target duration to an approximate word budget.
var DurationWords = map[Duration]int{
	Duration5:  750,
	Duration10: 1500,
	Duration15: 2250,
}

const DefaultVoicePreset = "luna_and_sol"

// VoicePresets are the named voice pairings offered to callers.
var VoicePresets = map[string]Voices{
	"luna_and_sol": {
		HostA: Voice{ID: "af_heart", Name: "Luna"},
		HostB: &Voice{ID: "af_bella", Name: "Sol"},
	},
	"mixed_gender": {
		HostA: Voice{ID: "af_heart", Name: "Luna"},
		HostB: &Voice{ID: "am_michael", Name: "Sol"},
	},
	"british_pair": {
		HostA: Voice{ID: "bf_emma", Name: "Luna"},
		HostB: &Voice{ID: "bm_george", Name: "Sol"},
	},
	"solo_warm": {
		HostA: Voice{ID: "af_heart", Name: "Narrator"},
	},
	"solo_british": {
		HostA: Voice{ID: "bf_emma", Name: "Narrator"},
	},
}

// PresetVoices looks up a preset by name, falling back to the default pairing.
func PresetVoices(name string) Voices {
	if v, ok := VoicePresets[strings.TrimSpace(name)]; ok {
		return v
	}
	return VoicePresets[DefaultVoicePreset]
}

// ScriptLine is one speaker turn of the generated script.
type ScriptLine struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// AudioClip is a synthesized segment on disk, owned by the job's work dir.
type AudioClip struct {
	Speaker  Speaker
	Path     string
	Duration time.Duration // estimate from text length, not measured
}

// Result is what a successful run reports back to the caller.
type Result struct {
	AudioPath       string       `json:"audioPath"`
	RemoteURL       string       `json:"remoteUrl,omitempty"`
	Slug            string       `json:"slug"`
	Transcript      []ScriptLine `json:"transcript"`
	DurationSeconds float64      `json:"durationSeconds"`
	WordCount       int          `json:"wordCount"`
	CostUSD         float64      `json:"costUsd"`
}

// Stage names a phase of generation as seen by progress observers.
type Stage string

const (
	StageScripting Stage = "scripting"
	StageAudio     Stage = "audio"
	StageAssembly  Stage = "assembly"
	StageComplete  Stage = "complete"
)

// Order is the stage's position in a run, starting at 1. Unknown stages are 0.
func (s Stage) Order() int {
	switch s {
	case StageScripting:
		return 1
	case StageAudio:
		return 2
	case StageAssembly:
		return 3
	case StageComplete:
		return 4
	}
	return 0
}

// ProgressEvent is delivered to progress observers.
type ProgressEvent struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

// Notify receives intra-stage progress. Implementations must not block.
type Notify func(message string, percent int)
