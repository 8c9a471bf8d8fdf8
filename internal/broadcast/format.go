// Package broadcast renders tracked-player locations into a single chat
// message and hands it to the configured sinks.
package broadcast

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"trackcast/internal/host"
)

// Placeholders recognized in templates.
const (
	PlaceholderPlayers = "%players%"
	PlaceholderName    = "%name%"
	PlaceholderWorld   = "%world%"
	PlaceholderX       = "%x%"
	PlaceholderY       = "%y%"
	PlaceholderZ       = "%z%"
)

const (
	listSeparator   = "\n"
	inlineSeparator = " | "
)

// Templates controls the broadcast layout.
type Templates struct {
	// Outer wraps the joined player lines at %players%.
	Outer string
	// PlayerLine is rendered once per online tracked player.
	PlayerLine string
	// ShowY keeps %y%; otherwise the token and its separators are removed.
	ShowY bool
	// AsList joins lines with newlines instead of " | ".
	AsList bool
}

// DefaultTemplates mirrors the stock config document.
func DefaultTemplates() Templates {
	return Templates{
		Outer:      "[Tracked]\n%players%",
		PlayerLine: "§a- %name%§r at §e%world%§r: §b%x%§r, %y%, %z%",
		ShowY:      true,
		AsList:     true,
	}
}

var yToken = regexp.MustCompile(`([ ,]*)` + regexp.QuoteMeta(PlaceholderY) + `([ ,]*)`)

// dropY removes %y% with the separators around it. A separator on both sides
// collapses to the right-hand one so the neighbouring fields stay apart; a
// token at either end of the template takes its separators with it.
func dropY(tpl string) string {
	return yToken.ReplaceAllStringFunc(tpl, func(m string) string {
		sub := yToken.FindStringSubmatch(m)
		if sub[1] != "" && sub[2] != "" {
			return sub[2]
		}
		return ""
	})
}

// Render builds the broadcast text for ids. Offline and unknown players are
// skipped. ok is false when no tracked player is online; callers must not
// broadcast in that case.
func Render(ids []uuid.UUID, r host.Resolver, t Templates) (text string, ok bool) {
	line := t.PlayerLine
	if !t.ShowY {
		line = dropY(line)
	}

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		p, found := r.ByID(id)
		if !found || !p.Online {
			continue
		}
		lines = append(lines, renderLine(line, p, t.ShowY))
	}
	if len(lines) == 0 {
		return "", false
	}

	sep := inlineSeparator
	if t.AsList {
		sep = listSeparator
	}
	return strings.ReplaceAll(t.Outer, PlaceholderPlayers, strings.Join(lines, sep)), true
}

func renderLine(tpl string, p host.Player, showY bool) string {
	pairs := []string{
		PlaceholderName, p.Name,
		PlaceholderWorld, p.World,
		PlaceholderX, strconv.Itoa(p.X),
		PlaceholderZ, strconv.Itoa(p.Z),
	}
	if showY {
		pairs = append(pairs, PlaceholderY, strconv.Itoa(p.Y))
	}
	// Single pass: substituted values are never scanned again.
	return strings.NewReplacer(pairs...).Replace(tpl)
}
