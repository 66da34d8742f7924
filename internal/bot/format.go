package bot

import (
	"fmt"
	"strings"

	"newsfeed/internal/feed"
	"newsfeed/internal/model"
)

const (
	statusActive = "active"
	statusPaused = "paused"
)

// FormatArticle formats one article as a short numbered entry.
func FormatArticle(a model.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s\n", a.ID, a.Title)
	if a.Summary != "" {
		fmt.Fprintf(&b, "   %s\n", a.Summary)
	}
	if a.URL != "" {
		fmt.Fprintf(&b, "   %s\n", a.URL)
	}
	return b.String()
}

// FormatFeed formats a personalized feed page with its relevance scores.
func FormatFeed(f feed.Feed) string {
	if len(f.Articles) == 0 {
		return "No articles match your interests yet. Try /interests or come back later."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your feed (%d of %d):\n", len(f.Articles), f.TotalCount)
	for _, a := range f.Articles {
		b.WriteString("\n")
		b.WriteString(strings.TrimSuffix(FormatArticle(a), "\n"))
		if score, ok := f.RelevanceScores[a.ID]; ok {
			fmt.Fprintf(&b, "  [%.2f]", score)
		}
		b.WriteString("\n")
	}
	if len(f.Recommendations.Breaking) > 0 {
		fmt.Fprintf(&b, "\nBreaking: %s\n", f.Recommendations.Breaking[0].Title)
	}
	return b.String()
}

// FormatSearch formats search results.
func FormatSearch(query string, res feed.SearchResult) string {
	if len(res.Articles) == 0 {
		return fmt.Sprintf("Nothing found for %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q (%d):\n", query, res.TotalCount)
	for _, a := range res.Articles {
		b.WriteString("\n")
		b.WriteString(FormatArticle(a))
	}
	return b.String()
}

// FormatSaved formats a list of bookmarks.
func FormatSaved(folder string, saved []model.SavedArticle) string {
	if len(saved) == 0 {
		if folder != "" {
			return fmt.Sprintf("No saved articles in %q.", folder)
		}
		return "You have no saved articles. Use /save <id> to keep one."
	}
	var b strings.Builder
	b.WriteString("Saved articles:\n")
	for _, sa := range saved {
		title := fmt.Sprintf("article #%d", sa.ArticleID)
		if sa.Article != nil {
			title = sa.Article.Title
		}
		fmt.Fprintf(&b, "\n#%d %s", sa.ArticleID, title)
		if sa.Folder != "" {
			fmt.Fprintf(&b, " [%s]", sa.Folder)
		}
		b.WriteString("\n")
		if sa.Notes != "" {
			fmt.Fprintf(&b, "   %s\n", sa.Notes)
		}
	}
	return b.String()
}

// FormatPreferences formats a user's preferences for display.
func FormatPreferences(p *model.Preferences) string {
	if p == nil {
		return "No preferences yet. Use /interests, /keywords and /mute to set them."
	}
	var b strings.Builder
	b.WriteString("Your preferences:\n")
	fmt.Fprintf(&b, "\nInterests: %s\n", listOrNone(p.Categories))
	fmt.Fprintf(&b, "Keywords: %s\n", listOrNone(p.Keywords))
	fmt.Fprintf(&b, "Companies: %s\n", listOrNone(p.Companies))
	fmt.Fprintf(&b, "Industries: %s\n", listOrNone(p.Industries))
	fmt.Fprintf(&b, "Muted: %s\n", listOrNone(p.ExcludedKeywords))
	personalization := statusActive
	if !p.PersonalizationEnabled {
		personalization = statusPaused
	}
	fmt.Fprintf(&b, "Personalization: %s\n", personalization)
	if p.Notifications.DigestEnabled {
		fmt.Fprintf(&b, "Digest: daily at %s %s\n", p.Notifications.DigestTime, p.Notifications.Timezone)
	} else {
		b.WriteString("Digest: off\n")
	}
	return b.String()
}

// FormatDigest formats a digest as a Telegram message.
func FormatDigest(d *model.Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your %s digest (%s - %s)\n\n", d.Type,
		d.PeriodStart.Format("Jan 2 15:04"), d.PeriodEnd.Format("Jan 2 15:04 UTC"))
	b.WriteString(d.Summary)
	b.WriteString("\n")
	if len(d.KeyTrends) > 0 {
		b.WriteString("\nTrends:\n")
		for _, t := range d.KeyTrends {
			fmt.Fprintf(&b, "  - %s\n", t)
		}
	}
	if len(d.ActionItems) > 0 {
		b.WriteString("\nTo do:\n")
		for _, a := range d.ActionItems {
			fmt.Fprintf(&b, "  - %s\n", a)
		}
	}
	return b.String()
}

// FormatSources formats the source registry.
func FormatSources(srcs []model.Source) string {
	if len(srcs) == 0 {
		return "No sources are configured."
	}
	var b strings.Builder
	b.WriteString("Sources:\n")
	for _, s := range srcs {
		status := statusActive
		if !s.IsActive {
			status = statusPaused
		}
		fmt.Fprintf(&b, "\n#%d %s (%s, every %d min) [%s]\n", s.ID, s.Name, s.Type, s.CadenceMinutes, status)
		if s.LastFetchedAt != nil {
			fmt.Fprintf(&b, "   last fetch: %s\n", s.LastFetchedAt.Format("2006-01-02 15:04 UTC"))
		}
	}
	return b.String()
}

func listOrNone(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}
