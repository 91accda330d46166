package uiutil

import "hash/fnv"

const (
	AnsiReset = "\033[0m"
	AnsiDim   = "\033[2m"
	AnsiBold  = "\033[1m"
)

var nameColors = []string{
	"\033[31m", // red
	"\033[32m", // green
	"\033[33m", // yellow
	"\033[34m", // blue
	"\033[35m", // magenta
	"\033[36m", // cyan
}

// PickColor maps a name to a stable color, so a user keeps one color across
// runs and peers.
func PickColor(s string) string {
	if s == "" {
		return AnsiReset
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return nameColors[h.Sum32()%uint32(len(nameColors))]
}

// FormatName colors name, or fallback when name is empty.
func FormatName(name, fallback string) string {
	display := name
	if display == "" {
		display = fallback
	}
	return PickColor(display) + display + AnsiReset
}

func Dim(s string) string { return AnsiDim + s + AnsiReset }
