// Package scoring decides whether a recording is a usable static-image sample source and how good it is.
//
// Evaluation runs in four stages: hard filter (denylist and modern-year rule), positive indicator
// requirement, DJ/manipulation veto, then a weighted score built from the rule tables in Rules.
// Every function here is pure: identical inputs always produce identical verdicts.
package scoring

import (
	"math"
	"strings"
)

// Stage names where a candidate left the funnel.
type Stage string

const (
	StageNone         Stage = ""
	StageDenylist     Stage = "denylist"
	StageModernYear   Stage = "modern_year"
	StageNoIndicator  Stage = "no_indicator"
	StageManipulation Stage = "manipulation"
	StageThreshold    Stage = "below_threshold"
)

// Input is everything the engine reads about one candidate.
type Input struct {
	Title             string
	Channel           string
	Description       string
	Tags              []string
	DurationSeconds   int
	ChannelReputation float64
	// Query is the discovery query, used only for genre/era inference.
	Query string
	// Relaxed skips the positive indicator requirement for curated sources.
	Relaxed bool
}

// Signal records one scoring contribution.
type Signal struct {
	Rule  string
	Match string
	Delta int
}

// Verdict is the engine's decision.
type Verdict struct {
	Accepted bool
	// Rejected is set for hard rejections (stages A to C); such verdicts always score 0.
	Rejected     bool
	Stage        Stage
	Reason       string
	Score        int
	HasIndicator bool
	Signals      []Signal
	Inference    Inference
}

type compiledRule struct {
	WeightedRule
	phrases phraseSet
}

// Engine evaluates candidates against a compiled rule set. It is safe for concurrent use.
type Engine struct {
	rules        Rules
	denylist     phraseSet
	freeLicense  phraseSet
	staticVisual phraseSet
	strongFormat phraseSet
	manipulation phraseSet
	weighted     []compiledRule
}

// NewEngine compiles rules.
func NewEngine(rules Rules) *Engine {
	e := &Engine{
		rules:        rules,
		denylist:     compile(rules.Denylist),
		freeLicense:  compile(rules.FreeLicense),
		staticVisual: compile(rules.StaticVisual),
		strongFormat: compile(rules.StrongFormat),
		manipulation: compile(rules.Manipulation),
	}
	for _, r := range rules.Weighted {
		e.weighted = append(e.weighted, compiledRule{WeightedRule: r, phrases: compile(r.Phrases)})
	}
	return e
}

// Default returns an engine over DefaultRules.
func Default() *Engine {
	return NewEngine(DefaultRules())
}

// AcceptThreshold returns the minimum accepted score of this engine.
func (e *Engine) AcceptThreshold() int {
	return e.rules.AcceptThreshold
}

type foldedInput struct {
	title, channel, description, tags string
}

func (f foldedInput) fields(sel Field) string {
	var parts []string
	if sel&FieldTitle != 0 {
		parts = append(parts, f.title)
	}
	if sel&FieldChannel != 0 {
		parts = append(parts, f.channel)
	}
	if sel&FieldDescription != 0 {
		parts = append(parts, f.description)
	}
	if sel&FieldTags != 0 {
		parts = append(parts, f.tags)
	}
	return join(parts...)
}

// Evaluate runs all stages for in.
func (e *Engine) Evaluate(in Input) Verdict {
	f := foldedInput{
		title:       fold(in.Title),
		channel:     fold(in.Channel),
		description: fold(in.Description),
		tags:        fold(strings.Join(in.Tags, " | ")),
	}
	v := Verdict{Inference: Infer(in.Title, in.Description, in.Tags, in.Query)}

	_, hasStatic := e.staticVisual.first(f.fields(FieldTitle | FieldDescription | FieldTags))
	_, hasFormat := e.strongFormat.first(f.fields(FieldTitle | FieldDescription | FieldTags))
	v.HasIndicator = hasStatic || hasFormat

	if stage, reason, rejected := e.hardFilter(f, in.Relaxed, v.HasIndicator); rejected {
		v.Rejected = true
		v.Stage = stage
		v.Reason = reason
		return v
	}

	v.Score, v.Signals = e.weightedScore(f, in)
	v.Accepted = v.Score >= e.rules.AcceptThreshold && (in.Relaxed || v.HasIndicator)
	if !v.Accepted {
		v.Stage = StageThreshold
		v.Reason = "score below acceptance threshold"
	}
	return v
}

// Score is Evaluate reduced to the persisted number: 0 for hard rejections.
func (e *Engine) Score(in Input) int {
	return e.Evaluate(in).Score
}

func (e *Engine) hardFilter(f foldedInput, relaxed, hasIndicator bool) (Stage, string, bool) {
	if phrase, ok := e.denylist.first(f.fields(FieldTitle | FieldChannel)); ok {
		return StageDenylist, "title or channel matches denylist: " + phrase, true
	}
	if phrase, ok := e.denylist.first(f.description); ok {
		return StageDenylist, "description matches denylist: " + phrase, true
	}

	text := f.fields(FieldTitle | FieldChannel | FieldDescription)
	if year := modernYear.FindString(text); year != "" {
		if _, free := e.freeLicense.first(text); !free {
			return StageModernYear, "modern release year " + year, true
		}
	}

	if !relaxed && !hasIndicator {
		return StageNoIndicator, "no static-visual or vinyl format indicator", true
	}

	if phrase, ok := e.manipulation.first(f.fields(FieldTitle | FieldDescription | FieldTags)); ok {
		return StageManipulation, "dj or turntable manipulation: " + phrase, true
	}
	return StageNone, "", false
}

func (e *Engine) weightedScore(f foldedInput, in Input) (int, []Signal) {
	var (
		score   int
		signals []Signal
	)
	add := func(rule, match string, delta int) {
		score += delta
		signals = append(signals, Signal{Rule: rule, Match: match, Delta: delta})
	}

	for _, r := range e.weighted {
		text := f.fields(r.Fields)
		if r.PerMatch {
			for _, hit := range r.phrases.all(text) {
				add(r.Name, hit, r.Weight)
			}
			continue
		}
		if hit, ok := r.phrases.first(text); ok {
			add(r.Name, hit, r.Weight)
		}
	}

	for _, hit := range e.staticVisual.all(f.fields(FieldTitle | FieldDescription | FieldTags)) {
		add("static_visual", hit, e.rules.StaticVisualBonus)
	}

	if d := in.DurationSeconds; d > 0 {
		if e.rules.SingleTrack.contains(d) {
			add("single_track_duration", "", e.rules.SingleTrackBonus)
		}
		if e.rules.FullAlbum.contains(d) {
			add("full_album_duration", "", e.rules.FullAlbumBonus)
		}
		if d < e.rules.ShortClipSeconds {
			add("short_clip", "", e.rules.ShortClipPenalty)
		}
	}

	if e.rules.TimestampList != nil {
		if m := e.rules.TimestampList.FindString(f.description); m != "" {
			add("timestamp_list", m, e.rules.TimestampPenalty)
		}
	}

	rep := math.Max(0, math.Min(1, in.ChannelReputation))
	if bonus := int(math.Round(rep * e.rules.ReputationWeight)); bonus != 0 {
		add("channel_reputation", "", bonus)
	}

	return clamp(score, 0, 100), signals
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
