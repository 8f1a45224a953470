// Package catalog defines the built-in blocking categories and their fixed
// domain memberships. The custom category has no fixed membership; its
// domains come from the policy store.
package catalog

import (
	"sort"

	"focusguard/pkg/blocklist"
)

// Custom is the name of the user-extensible category.
const Custom = "custom"

// Definition describes a built-in blocking category.
type Definition struct {
	Name        string
	Title       string
	Description string
	Domains     []string
}

// Categories lists the built-in categories with their fixed domain sets.
// Membership is static configuration; only the custom category grows at
// runtime.
var Categories = map[string]Definition{
	"facebook": {
		Name:        "facebook",
		Title:       "Facebook",
		Description: "Facebook and Messenger services.",
		Domains: []string{
			"facebook.com", "www.facebook.com", "m.facebook.com",
			"fb.com", "www.fb.com",
			"messenger.com", "www.messenger.com",
			"fbcdn.net", "static.xx.fbcdn.net",
		},
	},
	"instagram": {
		Name:        "instagram",
		Title:       "Instagram",
		Description: "Instagram web and CDN hosts.",
		Domains: []string{
			"instagram.com", "www.instagram.com",
			"cdninstagram.com", "scontent.cdninstagram.com",
		},
	},
	"linkedin": {
		Name:        "linkedin",
		Title:       "LinkedIn",
		Description: "LinkedIn web and CDN hosts.",
		Domains: []string{
			"linkedin.com", "www.linkedin.com",
			"licdn.com", "static.licdn.com",
		},
	},
	"twitter": {
		Name:        "twitter",
		Title:       "Twitter / X",
		Description: "Twitter and X web hosts.",
		Domains: []string{
			"twitter.com", "www.twitter.com", "mobile.twitter.com",
			"x.com", "www.x.com",
			"twimg.com", "abs.twimg.com",
		},
	},
	"youtube": {
		Name:        "youtube",
		Title:       "YouTube",
		Description: "YouTube web, mobile and short-link hosts.",
		Domains: []string{
			"youtube.com", "www.youtube.com", "m.youtube.com",
			"youtu.be", "www.youtu.be",
			"youtube-nocookie.com", "www.youtube-nocookie.com",
		},
	},
	"tiktok": {
		Name:        "tiktok",
		Title:       "TikTok",
		Description: "TikTok web and CDN hosts.",
		Domains: []string{
			"tiktok.com", "www.tiktok.com", "m.tiktok.com",
			"tiktokcdn.com", "tiktokv.com",
		},
	},
	"reddit": {
		Name:        "reddit",
		Title:       "Reddit",
		Description: "Reddit web and media hosts.",
		Domains: []string{
			"reddit.com", "www.reddit.com", "old.reddit.com",
			"redd.it", "www.redd.it",
			"redditmedia.com", "redditstatic.com",
		},
	},
	"snapchat": {
		Name:        "snapchat",
		Title:       "Snapchat",
		Description: "Snapchat web hosts.",
		Domains: []string{
			"snapchat.com", "www.snapchat.com", "web.snapchat.com",
			"sc-cdn.net",
		},
	},
	"adult-content": {
		Name:        "adult-content",
		Title:       "Adult content",
		Description: "Well-known adult content sites.",
		Domains: []string{
			"pornhub.com", "www.pornhub.com",
			"xvideos.com", "www.xvideos.com",
			"xnxx.com", "www.xnxx.com",
			"xhamster.com", "www.xhamster.com",
			"redtube.com", "www.redtube.com",
			"youporn.com", "www.youporn.com",
			"onlyfans.com", "www.onlyfans.com",
			"chaturbate.com", "www.chaturbate.com",
			"stripchat.com", "www.stripchat.com",
			"livejasmin.com", "www.livejasmin.com",
		},
	},
	"casino-gambling": {
		Name:        "casino-gambling",
		Title:       "Casino and gambling",
		Description: "Well-known gambling and betting sites.",
		Domains: []string{
			"bet365.com", "www.bet365.com",
			"pokerstars.com", "www.pokerstars.com",
			"888casino.com", "www.888casino.com",
			"betway.com", "www.betway.com",
			"williamhill.com", "www.williamhill.com",
			"unibet.com", "www.unibet.com",
			"stake.com", "www.stake.com",
			"draftkings.com", "www.draftkings.com",
			"fanduel.com", "www.fanduel.com",
			"bwin.com", "www.bwin.com",
		},
	},
}

// Domains returns the fixed domain set for a built-in category. The second
// return value is false for unknown names and for the custom category.
func Domains(name string) (blocklist.Set, bool) {
	def, ok := Categories[name]
	if !ok {
		return nil, false
	}
	return blocklist.NewSet(def.Domains...), true
}

// Exists reports whether name is a known category, including custom.
func Exists(name string) bool {
	if name == Custom {
		return true
	}
	_, ok := Categories[name]
	return ok
}

// Names returns all category names in lexical order, custom last.
func Names() []string {
	names := make([]string, 0, len(Categories)+1)
	for name := range Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return append(names, Custom)
}
