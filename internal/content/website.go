package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MimeLyc/content-orchestrator/internal/docstore"
)

// WebsiteInfo is the business profile every prompt is written against.
type WebsiteInfo struct {
	WebsiteName    string `json:"websiteName"`
	Industry       string `json:"industry"`
	Description    string `json:"description"`
	Goal           string `json:"goal"`
	TargetAudience string `json:"targetAudience"`
	BrandTone      string `json:"brandTone"`
}

func (w WebsiteInfo) ToneOrDefault() string {
	if w.BrandTone == "" {
		return "professional"
	}
	return w.BrandTone
}

func (w WebsiteInfo) IndustryOrDefault() string {
	if w.Industry == "" {
		return "general"
	}
	return w.Industry
}

// LoadWebsiteInfo reads the website-info global. A missing global yields an empty profile.
func LoadWebsiteInfo(ctx context.Context, docs docstore.Store) (WebsiteInfo, error) {
	var info WebsiteInfo
	doc, err := docs.FindByID(ctx, docstore.CollectionGlobals, docstore.GlobalWebsiteInfo)
	if errors.Is(err, docstore.ErrNotFound) {
		return info, nil
	}
	if err != nil {
		return info, fmt.Errorf("load website info: %w", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return info, fmt.Errorf("encode website info: %w", err)
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("decode website info: %w", err)
	}
	return info, nil
}
