package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/inkforge/inkforge/internal/runner"
	"github.com/inkforge/inkforge/internal/schema"
)

const (
	OutlineTool = "article_outline"
	SectionTool = "article_section"
)

var (
	DefaultArticleTags       = []string{"AI智能创作", "深度长文"}
	DefaultArticleCategories = []string{"深度观察"}
)

// Invoker runs a tool. *runner.Runner satisfies it.
type Invoker interface {
	Run(ctx context.Context, req schema.InvocationRequest) (schema.InvocationResult, error)
}

// Pusher sends posts to the CMS. *Client satisfies it.
type Pusher interface {
	PushBrief(ctx context.Context, post Post) (Published, error)
	PushArticle(ctx context.Context, post Post) (Published, error)
}

// BriefInput is a generated brief awaiting publication.
type BriefInput struct {
	Question string   `json:"question"`
	Brief    string   `json:"brief"`
	Summary  string   `json:"summary"`
	Status   string   `json:"status"`
	Keywords []string `json:"keywords"`
	Platform string   `json:"platform"`
}

// Section is one entry of a generated outline.
type Section struct {
	Heading   string   `json:"heading"`
	KeyPoints []string `json:"key_points"`
}

// ArticleInput is a finished article.
type ArticleInput struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Excerpt string   `json:"excerpt"`
	Status  string   `json:"status"`
	Tags    []string `json:"tags"`
}

// Service maps generated artifacts onto CMS posts and drives the
// outline/section article flow.
type Service struct {
	invoker Invoker
	pusher  Pusher
}

func NewService(invoker Invoker, pusher Pusher) *Service {
	return &Service{invoker: invoker, pusher: pusher}
}

// PublishBrief pushes a brief. Empty keywords are valid.
func (s *Service) PublishBrief(ctx context.Context, in BriefInput) (Published, error) {
	keywords := in.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	post := Post{
		Title:    in.Question,
		Content:  in.Brief,
		Excerpt:  in.Summary,
		Status:   statusOrDraft(in.Status),
		Keywords: keywords,
		Fields:   map[string]any{"brief_platform": in.Platform},
	}
	return s.pusher.PushBrief(ctx, post)
}

// GenerateOutline runs the outline tool for topic. Keyword derivation is
// skipped.
func (s *Service) GenerateOutline(ctx context.Context, topic string, provider string) (any, error) {
	res, err := s.invoker.Run(ctx, schema.InvocationRequest{
		ToolID:    OutlineTool,
		Inputs:    map[string]string{schema.InputQuestion: topic},
		Provider:  provider,
		Recursive: true,
	})
	if err != nil {
		return nil, err
	}
	return res.Result, nil
}

// GenerateSection writes the body of one outline section. The article
// context and the key points are also folded into the material block,
// since the composed user message only carries question and file.
func (s *Service) GenerateSection(ctx context.Context, sec Section, articleContext string, provider string) (string, error) {
	requirements := strings.Join(sec.KeyPoints, "，")

	var material strings.Builder
	if articleContext != "" {
		material.WriteString("上下文：" + articleContext + "\n")
	}
	if requirements != "" {
		material.WriteString("要点：" + requirements)
	}

	res, err := s.invoker.Run(ctx, schema.InvocationRequest{
		ToolID: SectionTool,
		Inputs: map[string]string{
			schema.InputQuestion: sec.Heading,
			"context":            articleContext,
			"requirements":       requirements,
			schema.InputFile:     strings.TrimSpace(material.String()),
		},
		Provider:  provider,
		Recursive: true,
	})
	if err != nil {
		return "", err
	}
	return resultString(res.Result), nil
}

// PublishArticle pushes a finished article with default tags and category.
func (s *Service) PublishArticle(ctx context.Context, in ArticleInput) (Published, error) {
	tags := in.Tags
	if len(tags) == 0 {
		tags = DefaultArticleTags
	}
	post := Post{
		Title:      in.Title,
		Content:    in.Content,
		Excerpt:    in.Excerpt,
		Status:     statusOrDraft(in.Status),
		Tags:       tags,
		Categories: DefaultArticleCategories,
	}
	pub, err := s.pusher.PushArticle(ctx, post)
	if err != nil {
		return Published{}, fmt.Errorf("[Publisher] %w", err)
	}
	return pub, nil
}

// Publish dispatches by kind ("brief" or "article") on a raw JSON payload.
func (s *Service) Publish(ctx context.Context, kind string, payload []byte) (Published, error) {
	switch kind {
	case "brief":
		var in BriefInput
		if err := json.Unmarshal(payload, &in); err != nil {
			return Published{}, fmt.Errorf("parse brief payload: %w", err)
		}
		return s.PublishBrief(ctx, in)
	case "article":
		var in ArticleInput
		if err := json.Unmarshal(payload, &in); err != nil {
			return Published{}, fmt.Errorf("parse article payload: %w", err)
		}
		return s.PublishArticle(ctx, in)
	default:
		return Published{}, fmt.Errorf("unknown publish kind %q", kind)
	}
}

func statusOrDraft(s string) string {
	if s == "" {
		return "draft"
	}
	return s
}

func resultString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if m, ok := v.(map[string]any); ok {
		if c, ok := m["content"].(string); ok {
			return c
		}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

var _ Invoker = (*runner.Runner)(nil)
