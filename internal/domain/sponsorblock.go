package domain

import "strings"

// SponsorBlockCategories is the fixed closed set of segment categories the
// extractor can be asked to remove.
type SponsorBlockCategories struct {
	Sponsor       bool `json:"sponsor"`
	Intro         bool `json:"intro"`
	Outro         bool `json:"outro"`
	SelfPromo     bool `json:"selfpromo"`
	Preview       bool `json:"preview"`
	Filler        bool `json:"filler"`
	Interaction   bool `json:"interaction"`
	MusicOffTopic bool `json:"music_offtopic"`
}

// ParseSponsorBlockCategories reads a comma-delimited category list.
// Unknown names are ignored.
func ParseSponsorBlockCategories(categories string) SponsorBlockCategories {
	var c SponsorBlockCategories
	for _, category := range strings.Split(categories, ",") {
		switch category {
		case "sponsor":
			c.Sponsor = true
		case "intro":
			c.Intro = true
		case "outro":
			c.Outro = true
		case "selfpromo":
			c.SelfPromo = true
		case "preview":
			c.Preview = true
		case "filler":
			c.Filler = true
		case "interaction":
			c.Interaction = true
		case "music_offtopic":
			c.MusicOffTopic = true
		}
	}
	return c
}

// String renders the enabled categories as a comma-delimited list in the
// canonical order.
func (c SponsorBlockCategories) String() string {
	var categories []string
	if c.Sponsor {
		categories = append(categories, "sponsor")
	}
	if c.Intro {
		categories = append(categories, "intro")
	}
	if c.Outro {
		categories = append(categories, "outro")
	}
	if c.SelfPromo {
		categories = append(categories, "selfpromo")
	}
	if c.Preview {
		categories = append(categories, "preview")
	}
	if c.Filler {
		categories = append(categories, "filler")
	}
	if c.Interaction {
		categories = append(categories, "interaction")
	}
	if c.MusicOffTopic {
		categories = append(categories, "music_offtopic")
	}
	return strings.Join(categories, ",")
}
