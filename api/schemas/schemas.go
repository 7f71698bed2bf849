package schemas

import (
	"errors"
	"fmt"
	"time"
)

// TaskType names a unit of work the executor knows how to run.
type TaskType string

const (
	TaskDailyPost    TaskType = "daily-post"
	TaskGenerateOnly TaskType = "generate-only"
	TaskHealthCheck  TaskType = "health-check"
)

// Product is a catalog item as returned by the commerce API.
type Product struct {
	ASIN         string   `json:"asin"`
	Title        string   `json:"title"`
	Price        string   `json:"price"`
	Image        string   `json:"image,omitempty"`
	Rating       float64  `json:"rating"`
	ReviewCount  int      `json:"reviewCount"`
	Description  string   `json:"description,omitempty"`
	Category     string   `json:"category,omitempty"`
	Features     []string `json:"features,omitempty"`
	AffiliateURL string   `json:"affiliateUrl"`
}

// Ref returns the subset of product fields carried by an article.
func (p Product) Ref() ProductRef {
	return ProductRef{
		ASIN:         p.ASIN,
		Title:        p.Title,
		Price:        p.Price,
		AffiliateURL: p.AffiliateURL,
	}
}

// ProductRef identifies the product an article promotes.
type ProductRef struct {
	ASIN         string `json:"asin"`
	Title        string `json:"title"`
	Price        string `json:"price"`
	AffiliateURL string `json:"affiliateUrl"`
}

// GenerationMetadata records how an article was produced.
type GenerationMetadata struct {
	GeneratedAt      time.Time `json:"generatedAt"`
	CharacterVersion string    `json:"characterVersion"`
	Model            string    `json:"model"`
}

// Article is generated content ready for publication. It is not modified after generation.
type Article struct {
	Title    string             `json:"title"`
	Content  string             `json:"content"`
	Product  ProductRef         `json:"product"`
	Metadata GenerationMetadata `json:"metadata"`
}

// ErrEmptyTitle is returned when an article without a title is handed to the publisher.
var ErrEmptyTitle = errors.New("article title must not be empty")

// Validate checks the invariants the publisher relies on.
func (a Article) Validate() error {
	if a.Title == "" {
		return ErrEmptyTitle
	}
	return nil
}

// PublishOptions controls how an article is published. The zero value saves a free draft;
// start from DefaultPublishOptions to publish.
type PublishOptions struct {
	// PublishNow publishes immediately; false leaves the article as a draft.
	PublishNow bool     `json:"publishNow"`
	Hashtags   []string `json:"hashtags,omitempty"`
	IsPaid     bool     `json:"isPaid"`
	// Price is only read when IsPaid is set.
	Price int `json:"price,omitempty"`
}

// DefaultPublishOptions returns options for an immediate, free publication without tags.
func DefaultPublishOptions() PublishOptions {
	return PublishOptions{PublishNow: true}
}

// Validate rejects paid publications without a positive price.
func (o PublishOptions) Validate() error {
	if o.IsPaid && o.Price <= 0 {
		return fmt.Errorf("paid publication requires a positive price, got %d", o.Price)
	}
	return nil
}

// PublicationResult describes a successful publication.
type PublicationResult struct {
	Success  bool      `json:"success"`
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	PostedAt time.Time `json:"postedAt"`
}

// ArticleEntry is one row of the account's article list.
type ArticleEntry struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	// Date is the zero time when the rendered date could not be parsed.
	Date    time.Time `json:"date"`
	RawDate string    `json:"rawDate,omitempty"`
}

// PostingLimitCheck is the outcome of evaluating recent publication history.
type PostingLimitCheck struct {
	CanPost        bool           `json:"canPost"`
	TodayPostCount int            `json:"todayPostCount"`
	RecentArticles []ArticleEntry `json:"recentArticles"`
}
