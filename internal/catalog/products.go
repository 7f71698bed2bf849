package catalog

import (
	"context"
	"math"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/autonote/api/schemas"
)

// browseNodes maps configured category names to catalog browse node ids.
var browseNodes = map[string]string{
	"All":         "465392",
	"Electronics": "3210981",
	"Home":        "2016926051",
	"Kitchen":     "2016929051",
	"Fashion":     "2016930051",
}

// BrowseNode returns the node id for a category, falling back to All.
func BrowseNode(category string) string {
	if id, ok := browseNodes[category]; ok {
		return id
	}
	return browseNodes["All"]
}

// SearchProducts runs a keyword search in a category and keeps products rated at least
// minRating. Products without a rating are kept.
func (c *Client) SearchProducts(ctx context.Context, keywords, category string, minRating float64) ([]schemas.Product, error) {
	if category == "" {
		category = "All"
	}
	doc, err := c.request(ctx, "ItemSearch", map[string]string{
		"Keywords":      keywords,
		"SearchIndex":   category,
		"ResponseGroup": responseGroups,
		"Sort":          "salesrank",
	})
	if err != nil {
		return nil, err
	}

	var kept []schemas.Product
	for _, p := range c.parseProducts(doc, category) {
		if p.Rating == 0 || p.Rating >= minRating {
			kept = append(kept, p)
		}
	}
	c.logger.Debug("Product search completed",
		zap.String("keywords", keywords),
		zap.String("category", category),
		zap.Int("results", len(kept)))
	return kept, nil
}

// GetBestSellers returns the top sellers of a category.
func (c *Client) GetBestSellers(ctx context.Context, category string) ([]schemas.Product, error) {
	doc, err := c.request(ctx, "BrowseNodeLookup", map[string]string{
		"BrowseNodeId":  BrowseNode(category),
		"ResponseGroup": "TopSellers",
	})
	if err != nil {
		return nil, err
	}
	return c.parseProducts(doc, category), nil
}

// GetProductDetails looks up a single product by ASIN.
func (c *Client) GetProductDetails(ctx context.Context, asin string) (schemas.Product, error) {
	doc, err := c.request(ctx, "ItemLookup", map[string]string{
		"ItemId":        asin,
		"ResponseGroup": responseGroups,
	})
	if err != nil {
		return schemas.Product{}, err
	}
	products := c.parseProducts(doc, "")
	if len(products) == 0 {
		return schemas.Product{}, ErrProductNotFound
	}
	return products[0], nil
}

// GetStylishProducts searches every configured category with its first few keywords and
// returns up to limit distinct products ranked by rating weighted by review volume.
// A failed search is logged and skipped. When no search yields anything, the categories'
// best sellers are used instead, in sales rank order.
func (c *Client) GetStylishProducts(ctx context.Context, limit int) ([]schemas.Product, error) {
	if limit <= 0 {
		return []schemas.Product{}, nil
	}
	keywords := c.cfg.Keywords
	if n := c.cfg.KeywordsPerCategory; n > 0 && n < len(keywords) {
		keywords = keywords[:n]
	}

	var collected []schemas.Product
search:
	for _, category := range c.cfg.Categories {
		for _, kw := range keywords {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			found, err := c.SearchProducts(ctx, kw, category, c.cfg.MinRating)
			if err != nil {
				c.logger.Warn("Product search failed, skipping",
					zap.String("category", category),
					zap.String("keyword", kw),
					zap.Error(err))
				continue
			}
			collected = append(collected, found...)
			if len(collected) >= 2*limit {
				break search
			}
		}
	}

	ranked := rankProducts(dedupe(collected))
	if len(ranked) == 0 {
		return c.bestSellerFallback(ctx, limit)
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (c *Client) bestSellerFallback(ctx context.Context, limit int) ([]schemas.Product, error) {
	c.logger.Info("No search results, falling back to best sellers")
	var collected []schemas.Product
	for _, category := range c.cfg.Categories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		top, err := c.GetBestSellers(ctx, category)
		if err != nil {
			c.logger.Warn("Best seller lookup failed, skipping", zap.String("category", category), zap.Error(err))
			continue
		}
		collected = dedupe(append(collected, top...))
		if len(collected) >= limit {
			return collected[:limit], nil
		}
	}
	if collected == nil {
		collected = []schemas.Product{}
	}
	return collected, nil
}

// dedupe keeps the first occurrence of every ASIN.
func dedupe(products []schemas.Product) []schemas.Product {
	seen := make(map[string]struct{}, len(products))
	out := make([]schemas.Product, 0, len(products))
	for _, p := range products {
		if _, ok := seen[p.ASIN]; ok {
			continue
		}
		seen[p.ASIN] = struct{}{}
		out = append(out, p)
	}
	return out
}

func score(p schemas.Product) float64 {
	return p.Rating * math.Log(math.Max(float64(p.ReviewCount), 1))
}

// rankProducts sorts by score, highest first. Ties keep search order.
func rankProducts(products []schemas.Product) []schemas.Product {
	sort.SliceStable(products, func(i, j int) bool {
		return score(products[i]) > score(products[j])
	})
	return products
}

// AffiliateLink builds the tagged product URL. The associate tag always comes first.
func (c *Client) AffiliateLink(asin string, extra url.Values) string {
	base := strings.TrimRight(c.cfg.AffiliateBaseURL, "/")
	q := "tag=" + url.QueryEscape(c.cfg.AssociateTag)
	if len(extra) > 0 {
		q += "&" + extra.Encode()
	}
	return base + "/dp/" + url.PathEscape(asin) + "?" + q
}
