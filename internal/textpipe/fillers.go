package textpipe

// builtinFillers are disfluencies stripped from every utterance before
// vocabulary is applied. Configured ignore phrases extend this set.
var builtinFillers = map[string]struct{}{
	"uh":   {},
	"uhh":  {},
	"um":   {},
	"umm":  {},
	"er":   {},
	"erm":  {},
	"ah":   {},
	"hmm":  {},
	"mhm":  {},
	"like": {},
}

// builtinFillerPhrases are multi-word fillers removed as substrings.
var builtinFillerPhrases = []string{
	"you know",
	"i mean",
	"sort of",
	"kind of",
}
