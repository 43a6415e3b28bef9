package attention

// Compliments are delivered by the praise job at its drawn interval.
// Keep these short and channel-wide; they are not replies to anyone in
// particular.
var compliments = []string{
	"You all are some of the most creative storytellers I've ever met! 🌟",
	"I just have to say it: this channel has amazing imagination. Keep it up!",
	"Every story you weave here is a delight to read. Bravo! 👏",
	"What a talented bunch of writers you are. I'm lucky to weave with you!",
	"Your ideas keep surprising me, and I've read a LOT of stories. ✨",
	"This channel radiates creativity. Never stop telling tales!",
}

// Nudges are delivered by the idle watcher when a channel has gone
// quiet with no story running.
var nudges = []string{
	"It's been quiet in here... anyone up for a story? Start one with `%sstartstory <initial sentence>`!",
	"The Story Weaver's loom sits idle. Shall we spin a new tale? Try `%sstartstory <initial sentence>`.",
	"I miss our stories! Type `%sstartstory <initial sentence>` and let's begin a new adventure.",
	"A blank page awaits... `%sstartstory <initial sentence>` will fill it with wonder!",
}
