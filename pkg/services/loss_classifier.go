package services

import (
	"sort"
	"strings"

	"github.com/codigix/nobal-casting-sub004/pkg/models"
)

// LossClassifier charges downtime to availability or performance loss.
//
// Producers that supply a specific DowntimeCategory are classified exactly.
// Legacy free-text categories and the catch-all "other" fall back to a
// case-insensitive substring match of the category and reasons against the
// keyword tables. The keyword match is a heuristic: every availability keyword
// is tried against all fields before any performance keyword, and anything
// unmatched is availability loss.
type LossClassifier struct {
	rules models.LossRules
}

// NewLossClassifier creates a classifier with the given keyword tables.
func NewLossClassifier(rules models.LossRules) *LossClassifier {
	return &LossClassifier{rules: rules}
}

// DowntimeSplit is the result of classifying a shift's downtime.
type DowntimeSplit struct {
	Total        float64
	Availability float64
	Performance  float64
}

var categoryLossTypes = map[models.DowntimeCategory]models.LossType{
	models.DowntimeBreakdown:    models.LossAvailability,
	models.DowntimeSetup:        models.LossAvailability,
	models.DowntimeWaiting:      models.LossAvailability,
	models.DowntimeMinorStop:    models.LossPerformance,
	models.DowntimeReducedSpeed: models.LossPerformance,
}

// Classify returns the loss type of a downtime bucket.
func (c *LossClassifier) Classify(category models.DowntimeCategory, rawCategory string, reasons ...string) models.LossType {
	if lt, ok := categoryLossTypes[category]; ok {
		return lt
	}

	fields := make([]string, 0, len(reasons)+1)
	fields = append(fields, strings.ToLower(rawCategory))
	for _, r := range reasons {
		fields = append(fields, strings.ToLower(r))
	}

	if matchesAny(fields, c.rules.Availability) {
		return models.LossAvailability
	}
	if matchesAny(fields, c.rules.Performance) {
		return models.LossPerformance
	}
	return models.LossAvailability
}

func matchesAny(fields, keywords []string) bool {
	for _, kw := range keywords {
		for _, f := range fields {
			if strings.Contains(f, kw) {
				return true
			}
		}
	}
	return false
}

type downtimeBucket struct {
	category    models.DowntimeCategory
	rawCategory string
	reasons     []string
	minutes     float64
}

// Split sums downtime per category bucket and classifies each bucket.
// Negative durations are ignored.
func (c *LossClassifier) Split(events []models.DowntimeEvent) DowntimeSplit {
	buckets := make(map[string]*downtimeBucket)
	for _, ev := range events {
		if ev.DurationMinutes <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(ev.RawCategory))
		if ev.Category != models.DowntimeUnknown && ev.Category != "" {
			key = string(ev.Category)
		}
		b, ok := buckets[key]
		if !ok {
			b = &downtimeBucket{category: ev.Category, rawCategory: ev.RawCategory}
			buckets[key] = b
		}
		b.minutes += ev.DurationMinutes
		if ev.Reason != "" {
			b.reasons = append(b.reasons, ev.Reason)
		}
	}

	// Deterministic summation order.
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var split DowntimeSplit
	for _, k := range keys {
		b := buckets[k]
		split.Total += b.minutes
		switch c.Classify(b.category, b.rawCategory, b.reasons...) {
		case models.LossPerformance:
			split.Performance += b.minutes
		default:
			split.Availability += b.minutes
		}
	}
	return split
}
