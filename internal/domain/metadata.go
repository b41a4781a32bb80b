package domain

import (
	"encoding/json"
	"fmt"
)

// Service type kinds. Each kind selects a typed metadata variant instead of
// an open-ended map, so malformed payloads are rejected at the boundary.
const (
	ServiceKindTrafficPurchase = "traffic_purchase"
	ServiceKindDocument        = "document"
	ServiceKindCustom          = "custom"
)

// TrafficPurchaseMetadata describes a paid-traffic delivery engagement.
type TrafficPurchaseMetadata struct {
	TargetURL     string `json:"target_url"`
	Visits        int64  `json:"visits"`
	GeoTarget     string `json:"geo_target,omitempty"`
	TrackingPixel string `json:"tracking_pixel,omitempty"`
}

// DocumentMetadata describes a document exchange engagement.
type DocumentMetadata struct {
	Title         string   `json:"title"`
	DocumentKind  string   `json:"document_kind"`
	AttachmentIDs []string `json:"attachment_ids,omitempty"`
}

// CustomMetadata carries free-form terms agreed out of band.
type CustomMetadata struct {
	Summary string            `json:"summary"`
	Terms   map[string]string `json:"terms,omitempty"`
}

// DecodeMetadata parses raw escrow metadata into the variant selected by the
// service type kind. A nil/empty payload is allowed for the custom kind only.
func DecodeMetadata(kind string, raw json.RawMessage) (any, error) {
	switch kind {
	case ServiceKindTrafficPurchase:
		var m TrafficPurchaseMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode traffic_purchase metadata: %w", err)
		}
		if m.TargetURL == "" {
			return nil, fmt.Errorf("traffic_purchase metadata requires target_url")
		}
		if m.Visits <= 0 {
			return nil, fmt.Errorf("traffic_purchase metadata requires positive visits")
		}
		return m, nil
	case ServiceKindDocument:
		var m DocumentMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode document metadata: %w", err)
		}
		if m.Title == "" {
			return nil, fmt.Errorf("document metadata requires title")
		}
		return m, nil
	case ServiceKindCustom:
		if len(raw) == 0 {
			return CustomMetadata{}, nil
		}
		var m CustomMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode custom metadata: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown service type kind: %s", kind)
	}
}
