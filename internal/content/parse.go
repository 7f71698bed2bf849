package content

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/autonote/api/schemas"
	"github.com/xkilldash9x/autonote/internal/llmutil"
)

const (
	disclosure = "※この記事に含まれるリンクはAmazonアソシエイトリンクです"
	// listHeading introduces the link list of a multi-product article.
	listHeading = "## 紹介した商品"
)

// ParseArticle splits a model response into a title and body. The first fenced block is
// preferred; without one the whole response is used. The first "# " line is the title,
// and disclosure or rule lines the model adds are dropped so they are not repeated.
func ParseArticle(response string) (title, body string) {
	text, ok := llmutil.ExtractCodeBlock(response)
	if !ok {
		text = response
	}

	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, "```"):
			continue
		case title == "" && strings.HasPrefix(line, "# "):
			title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
		case strings.HasPrefix(line, "※"), strings.HasPrefix(line, "---"):
			continue
		default:
			lines = append(lines, strings.TrimRight(line, " \t"))
		}
	}
	if len(lines) == 0 {
		return title, ""
	}
	return title, strings.Join(lines, "\n") + "\n"
}

// defaultTitles are used when the model produced no title.
func defaultTitles(p schemas.Product) []string {
	return []string{
		p.Title + "を使ってみた感想",
		"最近気になっている" + p.Category + "アイテム",
		"シンプルで使いやすい" + p.Title,
		"デスクまわりに加えた新しいアイテム",
	}
}

// InsertAffiliateLink links the first case-insensitive mention of the product name and
// appends the call to action and the associate disclosure.
func InsertAffiliateLink(body string, p schemas.Product) string {
	if p.Title != "" {
		re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(p.Title))
		if loc := re.FindStringIndex(body); loc != nil {
			body = body[:loc[0]] + "[" + p.Title + "](" + p.AffiliateURL + ")" + body[loc[1]:]
		}
	}
	return body + "\n\n商品の詳細は[こちら](" + p.AffiliateURL + ")からご確認いただけます。\n\n---\n" + disclosure
}

// productList renders the trailing link list of a multi-product article.
func productList(products []schemas.Product) string {
	var b strings.Builder
	b.WriteString("\n\n" + listHeading + "\n")
	for i, p := range products {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- [" + p.Title + "](" + p.AffiliateURL + ")")
	}
	return b.String()
}
