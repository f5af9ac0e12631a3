package resources

type builtinResource struct {
	Title    string
	Category string
	Body     string
}

var builtin = []builtinResource{
	{
		Title:    "Box breathing",
		Category: "coping",
		Body: `Breathe in slowly for four counts.
Hold your breath for four counts.
Breathe out slowly for four counts.
Hold again for four counts.
Repeat four times, or until you feel a little steadier.`,
	},
	{
		Title:    "5-4-3-2-1 grounding",
		Category: "coping",
		Body: `Name five things you can see, four things you can touch, three things you can hear, two things you can smell and one thing you can taste.
Take your time with each one. It helps bring your attention back to the present moment.`,
	},
	{
		Title:    "When to reach out",
		Category: "crisis",
		Body: `If you are thinking about hurting yourself, or you feel unsafe, please talk to someone right now.
Tell a trusted adult such as a parent, teacher or school counsellor.
Call your local emergency number if you are in immediate danger.
In many countries you can call or text a youth helpline for free, any time of day.`,
	},
	{
		Title:    "Getting better sleep",
		Category: "wellbeing",
		Body: `Try to go to bed and wake up at about the same time every day.
Put screens away half an hour before sleep.
If your thoughts keep you awake, write them down in your diary and leave them there until morning.`,
	},
}
