package helpers

import (
	"sort"
	"unicode/utf8"
)

// Finds a valid name that is one character away from a misspelled one. This
// is used to suggest the export an import probably meant.
type TypoDetector struct {
	oneCharTypos map[string]string
	valid        map[string]bool
}

func MakeTypoDetector(valid []string) TypoDetector {
	detector := TypoDetector{
		oneCharTypos: make(map[string]string),
		valid:        make(map[string]bool),
	}

	// Iterate in a fixed order so collisions always resolve the same way
	sorted := append([]string{}, valid...)
	sort.Strings(sorted)

	// Add all combinations of each valid word with one character missing
	for _, correct := range sorted {
		detector.valid[correct] = true
		if len(correct) > 3 {
			for i, ch := range correct {
				key := correct[:i] + correct[i+utf8.RuneLen(ch):]
				if _, ok := detector.oneCharTypos[key]; !ok {
					detector.oneCharTypos[key] = correct
				}
			}
		}
	}

	return detector
}

func (detector TypoDetector) MaybeCorrectTypo(typo string) (string, bool) {
	// Check for a single deleted character
	if corrected, ok := detector.oneCharTypos[typo]; ok && corrected != typo {
		return corrected, true
	}

	// Check for a single misplaced or added character. An added character is
	// easier to spot than a missing one, so shorter names are allowed here.
	for i, ch := range typo {
		if without := typo[:i] + typo[i+utf8.RuneLen(ch):]; len(without) >= 3 && detector.valid[without] {
			return without, true
		}
		if corrected, ok := detector.oneCharTypos[typo[:i]+typo[i+utf8.RuneLen(ch):]]; ok && corrected != typo {
			return corrected, true
		}
	}

	return "", false
}
