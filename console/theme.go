package console

import "strconv"

type rgb struct {
	r int
	g int
	b int
}

// Theme holds the colours used by the renderer.
type Theme struct {
	TabBarBG      rgb
	TabActiveBG   rgb
	TabActiveFG   rgb
	TabInactiveFG rgb
	PromptFG      rgb
	ErrorFG       rgb
	NoticeFG      rgb
	MetaFG        rgb
	SearchFG      rgb
}

const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
)

// DefaultTheme is a muted dark palette.
var DefaultTheme = Theme{
	TabBarBG:      rgb{r: 60, g: 56, b: 54},
	TabActiveBG:   rgb{r: 250, g: 189, b: 47},
	TabActiveFG:   rgb{r: 40, g: 40, b: 40},
	TabInactiveFG: rgb{r: 235, g: 219, b: 178},
	PromptFG:      rgb{r: 184, g: 187, b: 38},
	ErrorFG:       rgb{r: 251, g: 73, b: 52},
	NoticeFG:      rgb{r: 131, g: 165, b: 152},
	MetaFG:        rgb{r: 146, g: 131, b: 116},
	SearchFG:      rgb{r: 211, g: 134, b: 155},
}

func ansiFgRGB(c rgb) string {
	return "\x1b[38;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}

func ansiBgRGB(c rgb) string {
	return "\x1b[48;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}
