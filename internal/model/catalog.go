package model

// Store keys of the durable local key space.
const (
	KeyActiveSession = "ykj-ai-user"
	KeyRegistry      = "ykj-ai-users"
)

const (
	WatermarkText = "YKJ-Ai"

	ChatSystemInstruction = "You are AI-CI, an expert creative assistant. Your goal is to help users brainstorm and refine ideas for video and photo content. Provide creative, inspiring, and actionable suggestions."
	ChatGreeting          = "Hello! I'm AI-CI, your creative partner. How can I help you brainstorm today? You can also ask me to create an image for you using the `/generate` command!"

	StyleNone = "None"
)

var ImageStyles = []string{
	StyleNone,
	"Photorealistic",
	"Anime",
	"Watercolor",
	"Cyberpunk",
	"Fantasy",
	"Vintage",
	"Minimalist",
}

func IsImageStyle(s string) bool {
	for _, v := range ImageStyles {
		if v == s {
			return true
		}
	}
	return false
}

var Qualities = []Quality{QualityStandard, QualityHD}

var AspectRatios = []AspectRatio{AspectLandscape, AspectSquare, AspectPortrait}

type MusicTrack struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

var MusicTracks = []MusicTrack{
	{Name: "None", URL: ""},
	{Name: "Upbeat Pop", URL: "https://cdn.pixabay.com/audio/2023/09/26/audio_49e343ffb4.mp3"},
	{Name: "Chill Lofi", URL: "https://cdn.pixabay.com/audio/2022/05/27/audio_14343163a8.mp3"},
	{Name: "Cinematic", URL: "https://cdn.pixabay.com/audio/2024/02/09/audio_365928d157.mp3"},
	{Name: "Acoustic Folk", URL: "https://cdn.pixabay.com/audio/2022/08/03/audio_583a292a83.mp3"},
}

func IsMusicTrack(url string) bool {
	for _, t := range MusicTracks {
		if t.URL == url {
			return true
		}
	}
	return false
}

// Filter is a preview-only CSS filter applied by the browser to the
// staged image. Value is the CSS filter expression.
type Filter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

const FilterNone = "none"

var Filters = []Filter{
	{Name: "None", Value: FilterNone},
	{Name: "B&W", Value: "grayscale(100%)"},
	{Name: "Sepia", Value: "sepia(100%)"},
	{Name: "Vintage", Value: "sepia(60%) contrast(110%) brightness(90%)"},
	{Name: "Invert", Value: "invert(100%)"},
}

func IsFilter(value string) bool {
	for _, f := range Filters {
		if f.Value == value {
			return true
		}
	}
	return false
}

var VideoLoadingMessages = []string{
	"Warming up the digital canvas...",
	"Teaching pixels to dance...",
	"Assembling cinematic atoms...",
	"Directing a symphony of light and shadow...",
	"Rendering your vision, frame by frame...",
	"This can take a few minutes, the magic is worth it!",
	"Finalizing the masterpiece...",
}

var VideoPromptIdeas = []string{
	"An astronaut riding a horse on Mars",
	"A time-lapse of a flower blooming",
	"A cat DJing at a party",
	"Ocean waves crashing in slow motion",
	"A magical library with flying books",
	"A chef preparing a gourmet meal with flair",
}

var ImagePromptIdeas = []string{
	"A crystal clear lake reflecting a starry night sky",
	"A majestic lion with a crown, photorealistic",
	"A cozy cabin in a snowy forest, watercolor style",
	"A robot tending to a garden of glowing flowers",
	"A portrait of a wise old woman, detailed pencil sketch",
	"A cyberpunk cityscape from a low angle view",
}
