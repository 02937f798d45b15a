package news

import (
	"strings"
	"unicode/utf8"

	"github.com/MimeLyc/content-orchestrator/internal/content"
	"github.com/agnivade/levenshtein"
)

// TitleSimilarity is 1 minus the normalized Levenshtein distance of the folded, lowercased titles.
func TitleSimilarity(a, b string) float64 {
	na := normalizeTitle(a)
	nb := normalizeTitle(b)
	longest := max(utf8.RuneCountInString(na), utf8.RuneCountInString(nb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(na, nb))/float64(longest)
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(content.FoldAccents(title)), " "))
}
