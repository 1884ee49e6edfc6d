package validation

import "sort"

// Narrator maps a public key to the numeric recitation id used by the
// verse data upstream. Only narrators with word-level timing data belong
// here.
type Narrator struct {
	RecitationID int
	Name         string
}

// Translation maps a public key to the edition identifier used by the
// translation upstream.
type Translation struct {
	EditionID string
	Name      string
}

// Background maps a public id to an asset filename under the configured
// backgrounds directory.
type Background struct {
	FileName string
}

func DefaultNarrators() map[string]Narrator {
	return map[string]Narrator{
		"mishary_alafasy": {RecitationID: 7, Name: "Mishary Rashid Alafasy"},
		"abu_bakr_shatri": {RecitationID: 4, Name: "Abu Bakr al-Shatri"},
	}
}

func DefaultTranslations() map[string]Translation {
	return map[string]Translation{
		"en_sahih":     {EditionID: "en.sahih", Name: "Sahih International"},
		"en_pickthall": {EditionID: "en.pickthall", Name: "Pickthall"},
	}
}

func DefaultBackgrounds() map[string]Background {
	return map[string]Background{
		"nature_video": {FileName: "nature.mp4"},
		"calm_image":   {FileName: "calm_image.jpeg"},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
