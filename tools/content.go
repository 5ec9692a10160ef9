package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/richinex/scribe/llm"
	"github.com/richinex/scribe/model"
)

// contextPassages is how many passages generators pull as grounding.
const contextPassages = 7

// Content is the structured result of a generator.
type Content struct {
	Kind      string `json:"kind"`
	Topic     string `json:"topic"`
	Style     string `json:"style,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Body      string `json:"content"`
	HTML      bool   `json:"is_html"`
	Path      string `json:"filepath,omitempty"`
	WordCount int    `json:"word_count"`
}

var wordTargets = map[string]string{
	"short":  "300-400",
	"medium": "600-800",
	"long":   "1000-1500",
}

var styleInstructions = map[string]string{
	"professional": "Use a professional, authoritative tone suitable for a business blog.",
	"casual":       "Use a conversational, friendly tone as if talking to a friend.",
	"technical":    "Use technical language and precise terminology for a technical audience.",
	"social_media": "Use engaging, concise language with emojis and hashtags at the end. Keep it punchy and shareable.",
}

const blogSystemPrompt = `You are a professional content writer and educator.
Create engaging, informative content based on the provided information.
%s
Target length: %s words.

For social media posts:
- Include an attention-grabbing opening
- Use short paragraphs
- Add 3-5 relevant hashtags at the end

For blog posts:
- Start with a compelling title as a markdown heading
- Open with a hook
- Use clear section headings
- End with a conclusion or call to action`

const newsletterSystemPrompt = `You are a professional newsletter writer.
Create an engaging, informative newsletter with:
- A first line of the form "Subject: <catchy subject line>"
- A warm greeting
- Clear sections with headings
- An engaging but professional tone
- A call to action or conclusion
- A professional sign-off

Format the newsletter ready for email distribution.`

const htmlSystemPrompt = `You are a web designer and technical writer.
Write one complete, self-contained HTML5 page about the topic:
- A <title> and an <h1> with the topic
- Sections with <h2> headings and paragraphs drawn from the context
- Inline CSS in a <style> element: readable font, centred 800px column, soft colours
- A footer with the generation date

Return only the HTML document, without commentary.`

// generator holds what every content action shares.
type generator struct {
	searcher  Searcher
	completer llm.Completer
	outputDir string
	now       func() time.Time
}

// gatherContext pulls grounding passages; without a searcher the model uses
// its general knowledge.
func (g *generator) gatherContext(ctx context.Context, question string) (string, error) {
	if g.searcher == nil {
		return "", nil
	}
	results, err := g.searcher.Retrieve(ctx, question, contextPassages, 0)
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Chunk.Text
	}
	return strings.Join(texts, "\n"), nil
}

func (g *generator) write(ctx context.Context, system, topic, extra, question string) (string, error) {
	grounding, err := g.gatherContext(ctx, question)
	if err != nil {
		return "", err
	}
	if grounding == "" {
		grounding = "Use your general knowledge about this topic."
	}
	user := fmt.Sprintf("Topic: %s\n%s\nContext Information:\n%s", topic, extra, grounding)
	text, err := g.completer.Complete(ctx, llm.Prompt{System: system, User: user}, nil)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("model returned empty content")
	}
	return text, nil
}

// save writes content under the output directory. It is a no-op when no
// directory is configured.
func (g *generator) save(c *Content, name, ext, body string) ([]model.SideEffect, error) {
	if g.outputDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(g.outputDir, fmt.Sprintf("%s_%s_%s.%s", name, safeTopic(c.Topic), g.clock().Format("20060102_150405"), ext))
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return nil, fmt.Errorf("save content: %w", err)
	}
	c.Path = path
	return []model.SideEffect{{Kind: "file", Target: path}}, nil
}

func (g *generator) clock() time.Time {
	if g.now == nil {
		return time.Now()
	}
	return g.now()
}

// BlogPost generates blog posts and social media content.
type BlogPost struct{ generator }

// NewBlogPost creates the generate_blog_post action. A non-empty outputDir
// saves every post to disk.
func NewBlogPost(searcher Searcher, completer llm.Completer, outputDir string) *BlogPost {
	return &BlogPost{generator{searcher: searcher, completer: completer, outputDir: outputDir, now: time.Now}}
}

// Spec describes generate_blog_post.
func (a *BlogPost) Spec() ActionSpec {
	return ActionSpec{
		Name:        "generate_blog_post",
		Description: "Generate a blog post or social media content about a topic from the knowledge base.",
		Tags:        []string{"generate", "content", "blog", "social"},
		InputSchema: Object([]string{"topic"}, map[string]any{
			"topic":  Prop("string", "The topic to write about", "minLength", 1),
			"style":  Prop("string", "Writing style", "enum", []string{"professional", "casual", "technical", "social_media"}, "default", "professional"),
			"length": Prop("string", "Content length: short (300 words), medium (600 words), long (1000+ words)", "enum", []string{"short", "medium", "long"}, "default", "medium"),
		}),
		SideEffecting: a.outputDir != "",
		Timeout:       2 * time.Minute,
	}
}

type blogInput struct {
	Topic  string `json:"topic"`
	Style  string `json:"style"`
	Length string `json:"length"`
}

// Handle writes the post.
func (a *BlogPost) Handle(ctx context.Context, inputs map[string]any) (Output, error) {
	var in blogInput
	if err := Decode(inputs, &in); err != nil {
		return Output{}, err
	}
	system := fmt.Sprintf(blogSystemPrompt, styleInstructions[in.Style], wordTargets[in.Length])
	extra := fmt.Sprintf("Create %s %s content about this topic.\n", in.Length, in.Style)
	text, err := a.write(ctx, system, in.Topic, extra, "Provide comprehensive information about "+in.Topic)
	if err != nil {
		return Output{}, err
	}

	c := Content{
		Kind:      "blog_post",
		Topic:     in.Topic,
		Style:     in.Style,
		Subject:   SubjectLine(text),
		Body:      text,
		WordCount: len(strings.Fields(text)),
	}
	now := a.clock()
	file := fmt.Sprintf("Generated: %s\nTopic: %s\nStyle: %s\n%s\n\n%s",
		now.Format("2006-01-02 15:04:05"), in.Topic, in.Style, strings.Repeat("=", 80), text)
	effects, err := a.save(&c, "blog_post_"+in.Style, "txt", file)
	if err != nil {
		return Output{}, err
	}
	return Output{Text: text, Data: c, SideEffects: effects}, nil
}

// Newsletter generates email-ready newsletters.
type Newsletter struct{ generator }

// NewNewsletter creates the generate_newsletter action.
func NewNewsletter(searcher Searcher, completer llm.Completer, outputDir string) *Newsletter {
	return &Newsletter{generator{searcher: searcher, completer: completer, outputDir: outputDir, now: time.Now}}
}

// Spec describes generate_newsletter.
func (a *Newsletter) Spec() ActionSpec {
	return ActionSpec{
		Name:        "generate_newsletter",
		Description: "Generate a professional newsletter about a topic, ready to be sent via email.",
		Tags:        []string{"generate", "content", "newsletter"},
		InputSchema: Object([]string{"topic"}, map[string]any{
			"topic":    Prop("string", "The main topic or theme", "minLength", 1),
			"sections": Prop("integer", "Number of sections", "default", 3, "minimum", 1, "maximum", 10),
		}),
		SideEffecting: a.outputDir != "",
		Timeout:       2 * time.Minute,
	}
}

type newsletterInput struct {
	Topic    string `json:"topic"`
	Sections int    `json:"sections"`
}

// Handle writes the newsletter.
func (a *Newsletter) Handle(ctx context.Context, inputs map[string]any) (Output, error) {
	var in newsletterInput
	if err := Decode(inputs, &in); err != nil {
		return Output{}, err
	}
	extra := fmt.Sprintf("Number of sections: %d\n", in.Sections)
	text, err := a.write(ctx, newsletterSystemPrompt, in.Topic, extra,
		fmt.Sprintf("Provide comprehensive information about %s suitable for a newsletter", in.Topic))
	if err != nil {
		return Output{}, err
	}

	c := Content{
		Kind:      "newsletter",
		Topic:     in.Topic,
		Subject:   SubjectLine(text),
		Body:      text,
		WordCount: len(strings.Fields(text)),
	}
	effects, err := a.save(&c, "newsletter", "txt", text)
	if err != nil {
		return Output{}, err
	}
	return Output{Text: text, Data: c, SideEffects: effects}, nil
}

// HTMLPage generates a standalone web page.
type HTMLPage struct{ generator }

// NewHTMLPage creates the generate_html action.
func NewHTMLPage(searcher Searcher, completer llm.Completer, outputDir string) *HTMLPage {
	return &HTMLPage{generator{searcher: searcher, completer: completer, outputDir: outputDir, now: time.Now}}
}

// Spec describes generate_html.
func (a *HTMLPage) Spec() ActionSpec {
	return ActionSpec{
		Name:        "generate_html",
		Description: "Generate a simple, attractive HTML page about a topic.",
		Tags:        []string{"generate", "content", "html", "page"},
		InputSchema: Object([]string{"topic"}, map[string]any{
			"topic": Prop("string", "The topic for the HTML page", "minLength", 1),
		}),
		SideEffecting: a.outputDir != "",
		Timeout:       2 * time.Minute,
	}
}

type htmlInput struct {
	Topic string `json:"topic"`
}

// Handle writes the page.
func (a *HTMLPage) Handle(ctx context.Context, inputs map[string]any) (Output, error) {
	var in htmlInput
	if err := Decode(inputs, &in); err != nil {
		return Output{}, err
	}
	extra := fmt.Sprintf("Date: %s\n", a.clock().Format("January 2, 2006"))
	text, err := a.write(ctx, htmlSystemPrompt, in.Topic, extra, "Provide comprehensive information about "+in.Topic)
	if err != nil {
		return Output{}, err
	}
	page := stripFence(text)

	c := Content{
		Kind:      "html",
		Topic:     in.Topic,
		Subject:   in.Topic,
		Body:      page,
		HTML:      true,
		WordCount: len(strings.Fields(page)),
	}
	effects, err := a.save(&c, "webpage", "html", page)
	if err != nil {
		return Output{}, err
	}
	return Output{Text: page, Data: c, SideEffects: effects}, nil
}

var (
	subjectPrefix = regexp.MustCompile(`(?i)^\W*subject\W*:\s*`)
	headingPrefix = regexp.MustCompile(`^#{1,6}\s+`)
)

// SubjectLine finds the subject of generated content: an explicit
// "Subject:" line, else the first markdown heading. Returns "" when neither
// is present.
func SubjectLine(content string) string {
	var heading string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if loc := subjectPrefix.FindStringIndex(line); loc != nil {
			if s := cleanInline(line[loc[1]:]); s != "" {
				return s
			}
		}
		if heading == "" && headingPrefix.MatchString(line) {
			heading = cleanInline(headingPrefix.ReplaceAllString(line, ""))
		}
	}
	return heading
}

func cleanInline(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*_`\""))
}

// safeTopic turns a topic into a file name fragment of at most 50 bytes.
func safeTopic(topic string) string {
	var b strings.Builder
	for _, r := range topic {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	s := strings.ReplaceAll(strings.TrimRight(b.String(), " "), " ", "_")
	for len(s) > 50 {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	if s == "" {
		s = "untitled"
	}
	return s
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
