package agentsync

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/content-orchestrator/internal/docstore"
)

type SourceType string

const (
	SourcePage SourceType = "page"
	SourcePost SourceType = "post"
)

func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourcePage, SourcePost:
		return SourceType(s), nil
	}
	return "", fmt.Errorf("unknown source type %q", s)
}

func (t SourceType) Collection() string {
	if t == SourcePost {
		return docstore.CollectionPosts
	}
	return docstore.CollectionPages
}

// Payload is the document shape accepted by the agent workspace sync endpoint.
type Payload struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	CleanText   string     `json:"clean_text"`
	URL         string     `json:"url"`
	ContentType SourceType `json:"content_type"`
	Language    string     `json:"language"`
	UpdatedAt   any        `json:"updated_at"`
	Content     any        `json:"content"`
	Slug        string     `json:"slug"`
	Type        SourceType `json:"type"`
}

// BuildPayload flattens doc for export. Pages send their layout as a JSON string.
func BuildPayload(doc docstore.Document, sourceType SourceType, serverURL string) (Payload, error) {
	var raw any
	var content any
	if sourceType == SourcePage {
		raw = doc["layout"]
		data, err := json.Marshal(raw)
		if err != nil {
			return Payload{}, fmt.Errorf("encode layout: %w", err)
		}
		content = string(data)
	} else {
		raw = doc["content"]
		content = raw
	}

	lang := doc.String("language")
	if lang == "" {
		lang = "en"
	}
	title := doc.String("title")

	return Payload{
		ID:          doc.ID(),
		Title:       title,
		CleanText:   CleanText(raw, title),
		URL:         DocumentURL(serverURL, lang, doc.String("slug")),
		ContentType: sourceType,
		Language:    lang,
		UpdatedAt:   doc["updatedAt"],
		Content:     content,
		Slug:        doc.String("slug"),
		Type:        sourceType,
	}, nil
}

// DocumentURL is the public address of a document: non-default languages get a path prefix and
// the home slug maps to the site root.
func DocumentURL(serverURL, lang, slug string) string {
	base := strings.TrimRight(serverURL, "/")
	if lang != "" && lang != "en" {
		base += "/" + lang
	}
	if slug == "home" {
		return base + "/"
	}
	return base + "/" + slug
}
