package mission

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys of the bar.
const (
	keyLabel  = "mission.label"
	keyCancel = "mission.cancel"
)

// IconFlag is the icon shown next to the bar label.
const IconFlag = "flag"

var supported = []language.Tag{
	language.MustParse("zh-Hant"),
	language.English,
}

// BarView is what a UI renders for the mission bar.
type BarView struct {
	Visible     bool   `json:"visible"`
	Icon        string `json:"icon"`
	Label       string `json:"label"`
	CancelLabel string `json:"cancel_label"`
}

// Bar presents the mission context. It holds no state of its own.
type Bar struct {
	mission *Context
	catalog catalog.Catalog
	matcher language.Matcher
}

// NewBar creates a bar over a mission context.
func NewBar(mission *Context) *Bar {
	b := catalog.NewBuilder()
	_ = b.SetString(supported[0], keyLabel, "標注")
	_ = b.SetString(supported[0], keyCancel, "取消")
	_ = b.SetString(language.English, keyLabel, "Mark")
	_ = b.SetString(language.English, keyCancel, "Cancel")

	return &Bar{
		mission: mission,
		catalog: b,
		matcher: language.NewMatcher(supported),
	}
}

// View renders the bar in lang. Unknown languages fall back to zh-Hant.
func (b *Bar) View(lang string) BarView {
	p := message.NewPrinter(b.match(lang), message.Catalog(b.catalog))
	return BarView{
		Visible:     b.mission.Active(),
		Icon:        IconFlag,
		Label:       p.Sprintf(keyLabel),
		CancelLabel: p.Sprintf(keyCancel),
	}
}

// Cancel invokes the mission's close handler.
func (b *Bar) Cancel() {
	b.mission.Close()
}

func (b *Bar) match(lang string) language.Tag {
	tag, err := language.Parse(lang)
	if err != nil {
		return supported[0]
	}
	_, i, confidence := b.matcher.Match(tag)
	if confidence == language.No {
		return supported[0]
	}
	return supported[i]
}
