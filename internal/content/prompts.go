package content

import (
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/autonote/api/schemas"
	"github.com/xkilldash9x/autonote/internal/llmutil"
)

const systemPrompt = `あなたは以下のキャラクター設定で note.com に投稿する記事を書くライターです：

## キャラクター設定
- シンプルでおしゃれアイテムが好き
- 仕事はプログラマっぽいなにかをしています
- 日々のくらしの一部を文字起こししてみます

## 文体・トーンの特徴
- AIっぽくない、自然で親しみやすい文章
- 日常的で親近感のある表現
- 過度に宣伝的にならない、自然な商品紹介
- 実体験があるかのような具体的な描写

## 記事構成
1. **タイトル** - 魅力的で自然、30文字以内
2. **導入** - 日常的なシーンから自然に始まる
3. **商品紹介** - 特徴や魅力を自然に説明
4. **感想や使用場面** - 実際に使っているような具体的な描写
5. **締め + CTA** - 自然な流れで紹介、最後にアソシエイト開示

## 注意事項
- 毎日投稿しても違和感のない一貫性を保つ
- 商品の良さを自然に伝える（過度な褒め言葉は避ける）
- 読者との距離感を適切に保つ
- Amazonアソシエイトリンクであることを必ず明記

記事はMarkdown形式で出力してください。`

// Season is a Japanese season name.
type Season string

const (
	Spring Season = "春"
	Summer Season = "夏"
	Autumn Season = "秋"
	Winter Season = "冬"
)

var seasonContexts = map[Season]string{
	Spring: "カフェやテラスでの作業時間が気持ちいい季節。新生活に向けて部屋の模様替えを考える時期。",
	Summer: "暑い日が続くので、涼しい室内でのデスクワークが中心。シンプルで機能的なアイテムが重宝する季節。",
	Autumn: "読書の季節、集中して作業に取り組みたい時期。落ち着いた雰囲気のアイテムが恋しくなる。",
	Winter: "家で過ごす時間が長くなる季節。暖かく快適な空間作りを意識したくなる時期。",
}

// SeasonOf maps a month to its season: March to May is spring, June to August summer,
// September to November autumn and the rest winter.
func SeasonOf(m time.Month) Season {
	switch {
	case m >= time.March && m <= time.May:
		return Spring
	case m >= time.June && m <= time.August:
		return Summer
	case m >= time.September && m <= time.November:
		return Autumn
	default:
		return Winter
	}
}

// SeasonalContext returns the prompt paragraph describing the time of year.
func SeasonalContext(t time.Time) string {
	return seasonContexts[SeasonOf(t.Month())]
}

func buildProductPrompt(p schemas.Product, opts Options, now time.Time) string {
	features := "なし"
	if len(p.Features) > 0 {
		features = strings.Join(p.Features, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "以下の商品について、今日（%s）の記事を書いてください。\n\n", llmutil.JapaneseDate(now))
	b.WriteString("## 商品情報\n")
	fmt.Fprintf(&b, "- **商品名**: %s\n", p.Title)
	fmt.Fprintf(&b, "- **価格**: %s\n", p.Price)
	fmt.Fprintf(&b, "- **評価**: %g/5 (%d件のレビュー)\n", p.Rating, p.ReviewCount)
	fmt.Fprintf(&b, "- **カテゴリ**: %s\n", p.Category)
	fmt.Fprintf(&b, "- **説明**: %s\n", p.Description)
	fmt.Fprintf(&b, "- **特徴**: %s\n\n", features)
	if opts.Theme != "" {
		fmt.Fprintf(&b, "## テーマ\n%s\n\n", opts.Theme)
	}
	fmt.Fprintf(&b, "## 時期的な文脈\n%s\n\n", SeasonalContext(now))
	b.WriteString(`## 要件
- 記事の長さ: 800-1200文字程度
- 自然で親しみやすい文章
- 実際に使用しているような具体的な描写を含める
- 商品の魅力を自然に伝える
- 最後にAmazonアソシエイトリンクであることを明記

## 出力形式
` + "```markdown" + `
# [記事タイトル]

[導入部分]

[商品紹介部分]

[感想・使用シーン部分]

[締めくくり + CTA]

---
※この記事に含まれるリンクはAmazonアソシエイトリンクです
` + "```" + `

自然で読みやすい記事をお願いします。`)
	return b.String()
}

func buildMultiProductPrompt(products []schemas.Product, theme string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "以下の複数商品について、「%s」というテーマで今日（%s）の記事を書いてください。\n\n",
		theme, llmutil.JapaneseDate(now))
	b.WriteString("## 商品一覧\n")
	for i, p := range products {
		fmt.Fprintf(&b, "%d. **%s** (%s) - %s\n", i+1, p.Title, p.Price, p.Description)
	}
	b.WriteString("\n各商品について簡潔に紹介し、全体として統一感のある記事にしてください。\n")
	b.WriteString("記事の長さ: 1000-1500文字程度")
	return b.String()
}
