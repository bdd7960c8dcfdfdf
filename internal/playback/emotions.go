package playback

import "sort"

// Emotion maps a named emotion to the asset that plays it.
type Emotion struct {
	Asset  string
	Repeat bool
	FPS    int
}

// IdleEmotion plays for names missing from the table.
var IdleEmotion = Emotion{Asset: "idle_one.aaf", Repeat: false, FPS: 20}

var emotions = map[string]Emotion{
	"happy":       {Asset: "happy_one.aaf", Repeat: true, FPS: 20},
	"laughing":    {Asset: "enjoy_one.aaf", Repeat: true, FPS: 20},
	"funny":       {Asset: "happy_one.aaf", Repeat: true, FPS: 20},
	"loving":      {Asset: "happy_one.aaf", Repeat: true, FPS: 20},
	"embarrassed": {Asset: "happy_one.aaf", Repeat: true, FPS: 20},
	"confident":   {Asset: "happy_one.aaf", Repeat: true, FPS: 20},
	"delicious":   {Asset: "happy_one.aaf", Repeat: true, FPS: 20},
	"sad":         {Asset: "sad_one.aaf", Repeat: true, FPS: 20},
	"crying":      {Asset: "happy_one.aaf", Repeat: true, FPS: 20},
	"sleepy":      {Asset: "happy_one.aaf", Repeat: true, FPS: 20},
	"silly":       {Asset: "happy_one.aaf", Repeat: true, FPS: 20},
	"angry":       {Asset: "angry_one.aaf", Repeat: true, FPS: 20},
	"surprised":   {Asset: "happy_one.aaf", Repeat: true, FPS: 20},
	"shocked":     {Asset: "shocked_one.aaf", Repeat: true, FPS: 20},
	"thinking":    {Asset: "thinking_one.aaf", Repeat: true, FPS: 20},
	"winking":     {Asset: "happy_one.aaf", Repeat: true, FPS: 20},
	"relaxed":     {Asset: "happy_one.aaf", Repeat: true, FPS: 20},
	"confused":    {Asset: "dizzy_one.aaf", Repeat: true, FPS: 20},
	"neutral":     IdleEmotion,
	"idle":        IdleEmotion,
}

// LookupEmotion returns the emotion called name. Unknown names return
// IdleEmotion and false.
func LookupEmotion(name string) (Emotion, bool) {
	e, ok := emotions[name]
	if !ok {
		return IdleEmotion, false
	}
	return e, true
}

// EmotionNames lists the known emotions, sorted.
func EmotionNames() []string {
	names := make([]string, 0, len(emotions))
	for n := range emotions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
