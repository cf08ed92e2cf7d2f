package scoring

import "regexp"

// Field selects which parts of a candidate a weighted rule reads.
type Field uint8

const (
	FieldTitle Field = 1 << iota
	FieldChannel
	FieldDescription
	FieldTags
)

// WeightedRule adds Weight once when any phrase matches, or once per matched phrase when PerMatch is set.
type WeightedRule struct {
	Name     string
	Fields   Field
	Phrases  []Pattern
	Weight   int
	PerMatch bool
}

// Window is an inclusive duration range in seconds.
type Window struct {
	Min, Max int
}

func (w Window) contains(seconds int) bool {
	return seconds >= w.Min && seconds <= w.Max
}

// Rules is the complete, immutable configuration of the filter and scorer.
type Rules struct {
	Denylist     []Pattern
	FreeLicense  []Pattern
	StaticVisual []Pattern
	StrongFormat []Pattern
	Manipulation []Pattern

	Weighted []WeightedRule

	StaticVisualBonus int
	SingleTrack       Window
	SingleTrackBonus  int
	FullAlbum         Window
	FullAlbumBonus    int
	ShortClipSeconds  int
	ShortClipPenalty  int
	TimestampList     *regexp.Regexp
	TimestampPenalty  int
	ReputationWeight  float64
	AcceptThreshold   int
}

// AcceptThreshold is the minimum score of an accepted candidate under DefaultRules.
const AcceptThreshold = 15

var (
	modernYear     = regexp.MustCompile(`\b20[0-2][0-9]\b`)
	timestampLines = regexp.MustCompile(`(?m)\b\d{1,2}:\d{2}\s*[-–—)]?\s*(intro|verse|chorus|bridge|outro|hook|pre-chorus|solo|breakdown)\b`)
)

var mainstreamHipHop = []Pattern{
	Word("drake"), Sub("kanye"), Sub("travis scott"), Sub("kendrick lamar"), Sub("eminem"), Sub("jay-z"),
	Word("nas"), Sub("lil wayne"), Sub("21 savage"), Sub("sicko mode"), Sub("hotline bling"),
	Sub("gods plan"), Sub("mask off"), Sub("lose yourself"), Sub("hip hop beat"),
}

// DefaultRules returns the production rule tables.
func DefaultRules() Rules {
	return Rules{
		Denylist: append([]Pattern{
			Word("live"), Sub("live at"), Sub("live performance"), Sub("live session"), Sub("concert"),
			Sub("guitar cover"), Sub("piano cover"), Sub("drum cover"), Sub("bass cover"), Sub("acoustic cover"),
			Sub("cover version"), Sub("cover song"), Sub("karaoke"), Sub("tutorial"), Word("lesson"), Word("lessons"),
			Word("how to"), Sub("interview"), Sub("podcast"), Sub("reaction"), Sub("unboxing"),
			Sub("beat juggling"), Sub("dj battle"), Word("dmc"), Sub("controllerism"), Sub("type beat"),
			Sub("drum kit"), Sub("sample pack"),
		}, mainstreamHipHop[:9]...),
		FreeLicense: []Pattern{
			Sub("royalty free"), Sub("royalty-free"), Sub("copyright free"), Sub("no copyright"),
			Sub("public domain"), Sub("creative commons"), Sub("free to use"),
		},
		StaticVisual: []Pattern{
			Sub("album cover"), Sub("album art"), Word("cover art"), Sub("artwork"), Sub("sleeve"),
			Sub("front cover"), Sub("back cover"), Sub("static image"), Sub("still image"), Sub("label shot"),
			Word("record label"),
		},
		StrongFormat: []Pattern{
			Sub("vinyl rip"), Sub("needle drop"), Sub("needledrop"), Sub("full album"), Sub("full lp"),
			Sub("library music"), Sub("from vinyl"), Sub("vinyl"), Word("lp"), Word("45"), Word("45s"),
			Sub("7 inch"), Sub("12 inch"), Sub("78 rpm"),
		},
		Manipulation: []Pattern{
			Sub("scratch"), Sub("turntablism"), Sub("turntablist"), Sub("dj set"), Sub("dj mix"),
			Sub("beat juggl"), Sub("spinning"), Word("spin"), Word("spins"), Word("rotate"), Sub("rotating"),
		},
		Weighted: []WeightedRule{
			{Name: "format", Fields: FieldTitle, Weight: 25, Phrases: []Pattern{
				Sub("vinyl rip"), Sub("needle drop"), Sub("needledrop"), Sub("full album"), Sub("full lp"),
				Sub("library music"), Sub("from vinyl"), Word("lp"), Word("45"), Word("45s"), Sub("78 rpm"),
			}},
			{Name: "library_label", Fields: FieldTitle | FieldChannel | FieldDescription | FieldTags, Weight: 15, Phrases: []Pattern{
				Sub("library music"), Word("kpm"), Sub("de wolfe"), Sub("bruton"), Sub("chappell"), Sub("sonoton"),
				Sub("boosey"), Sub("music de wolfe"), Sub("conroy"), Sub("themes international"), Sub("peer international"),
			}},
			{Name: "rarity", Fields: FieldTitle | FieldDescription | FieldTags, Weight: 15, Phrases: []Pattern{
				Sub("private press"), Sub("rare groove"), Word("rare"), Sub("obscure"), Sub("deep funk"),
				Sub("spiritual jazz"), Sub("jazz funk"), Sub("unreleased"), Sub("holy grail"), Sub("crate digging"),
			}},
			{Name: "vinyl_description", Fields: FieldDescription, Weight: 10, Phrases: []Pattern{
				Sub("vinyl"), Word("lp"), Word("45"), Word("record"), Word("records"), Sub("pressing"),
				Sub("side a"), Sub("side b"), Sub("needle"), Sub("turntable"),
			}},
			{Name: "channel_archive", Fields: FieldChannel, Weight: 10, Phrases: []Pattern{
				Word("records"), Sub("vinyl"), Sub("archive"), Word("rips"), Sub("crate"), Sub("diggin"),
				Sub("grooves"), Sub("library"), Sub("collector"),
			}},
			{Name: "loose_dj", Fields: FieldDescription | FieldTags, Weight: -40, Phrases: []Pattern{
				Word("dj"), Sub("deejay"), Sub("mixtape"), Sub("mixed by"), Word("cdj"), Sub("serato"),
				Sub("traktor"), Sub("live mix"), Sub("scratch"), Sub("turntablism"),
			}},
			{Name: "interview", Fields: FieldTitle | FieldDescription | FieldTags, Weight: -25, Phrases: []Pattern{
				Sub("interview"), Sub("in conversation"), Sub("talks about"), Sub("q&a"), Sub("documentary"),
			}},
			{Name: "filming", Fields: FieldTitle | FieldDescription | FieldTags, Weight: -20, Phrases: []Pattern{
				Sub("my setup"), Sub("turntable setup"), Sub("camera"), Sub("filmed"), Word("gear"),
				Sub("studio tour"), Sub("record player"), Sub("stylus"), Sub("cartridge"),
			}},
			{Name: "review", Fields: FieldTitle | FieldDescription | FieldTags, Weight: -25, Phrases: []Pattern{
				Word("review"), Sub("reaction"), Sub("reacts"), Sub("first time hearing"), Sub("rating"),
				Sub("ranking"), Sub("haul"),
			}},
			{Name: "mainstream", Fields: FieldTitle | FieldChannel | FieldDescription | FieldTags, Weight: -30, Phrases: mainstreamHipHop},
		},
		StaticVisualBonus: 10,
		SingleTrack:       Window{Min: 90, Max: 480},
		SingleTrackBonus:  10,
		FullAlbum:         Window{Min: 1200, Max: 4200},
		FullAlbumBonus:    15,
		ShortClipSeconds:  45,
		ShortClipPenalty:  -20,
		TimestampList:     timestampLines,
		TimestampPenalty:  -15,
		ReputationWeight:  20,
		AcceptThreshold:   AcceptThreshold,
	}
}
