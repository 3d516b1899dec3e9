package resolve

import (
	"sort"
)

// Door-count options that the tie-break knows about.
const (
	OptionFourDoor = "4DR"
	OptionTwoDoor  = "2DR"
)

func finishCheckboxes(on map[string]bool, prefer4Door bool) CheckboxSet {
	if prefer4Door && on[OptionFourDoor] && on[OptionTwoDoor] {
		delete(on, OptionTwoDoor)
	}

	out := make(CheckboxSet, 0, len(on))
	for option := range on {
		out = append(out, option)
	}
	sort.Strings(out)
	return out
}
