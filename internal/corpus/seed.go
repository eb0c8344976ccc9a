package corpus

import (
	"context"

	"github.com/capitalize-ai/shop-assistant/internal/model"
)

func seedDoc(id, title, category, sourceType, url, text string) model.NewDocumentInput {
	meta := map[string]string{
		model.MetaTitle:      title,
		model.MetaCategory:   category,
		model.MetaSourceType: sourceType,
	}
	if url != "" {
		meta[model.MetaURL] = url
	}
	return model.NewDocumentInput{ID: id, Text: text, Metadata: meta}
}

// DefaultDocuments returns the built-in shop operations knowledge base.
func DefaultDocuments() []model.NewDocumentInput {
	return []model.NewDocumentInput{
		seedDoc("kb-shop-setup", "Shop Setup Guide", "setup", "documentation", "https://docs.tiktok.com/shop-setup",
			"TikTok Shop setup: to set up a shop, create a TikTok Business account, complete identity verification, add business information, set up payment methods, and list your first products. Verification typically takes 1-3 business days."),
		seedDoc("kb-product-optimization", "Product Optimization", "optimization", "best_practices", "",
			"Optimize TikTok Shop listings with high-quality images (800x800px minimum), compelling descriptions with keywords, competitive pricing, multiple product images, and detailed specifications. Product videos perform 40% better."),
		seedDoc("kb-marketing", "Marketing Strategies", "marketing", "strategy", "https://docs.tiktok.com/marketing",
			"Effective TikTok marketing: create authentic trending content, use popular hashtags, collaborate with micro-influencers, run TikTok Ads, host live shopping events, and engage with audience. Storytelling content performs 3x better."),
		seedDoc("kb-performance-metrics", "Performance Metrics", "analytics", "analytics", "https://docs.tiktok.com/analytics",
			"Key metrics to track: conversion rate (aim for 2-5%), average order value, customer acquisition cost, ROAS, engagement rate, and customer lifetime value. Top shops have 15-25% month-over-month growth."),
		seedDoc("kb-policy-compliance", "Policy Compliance", "compliance", "policy", "https://docs.tiktok.com/policies",
			"TikTok Shop policies require accurate descriptions, fair pricing, proper shipping times, responsive customer service, and compliance with local regulations. Violations can result in account suspension."),
		seedDoc("kb-requirements", "TikTok Shop Requirements", "setup", "documentation", "https://docs.tiktok.com/requirements",
			"Requirements for TikTok Shop include: valid business license, tax identification number, bank account for payments, product compliance with TikTok policies, shipping capabilities, customer service setup. You must be 18+ and have a valid business entity."),
		seedDoc("kb-scaling", "Scaling Your TikTok Shop", "scaling", "strategy", "https://docs.tiktok.com/scaling",
			"To scale your TikTok Shop: focus on high-performing products, optimize your product listings, use data analytics to understand trends, expand to multiple markets, build a strong brand presence, automate order processing, invest in customer retention."),
		seedDoc("kb-customer-service", "Customer Service Best Practices", "customer-service", "support", "https://docs.tiktok.com/customer-service",
			"Provide excellent customer service by: responding quickly to inquiries, offering clear return policies, providing detailed product information, using chatbots for common questions, following up with customers, handling complaints professionally."),
		seedDoc("kb-sourcing", "Product Sourcing Strategies", "sourcing", "best_practices", "https://docs.tiktok.com/sourcing",
			"Effective product sourcing: research trending products, find reliable suppliers, negotiate bulk discounts, ensure product quality, consider dropshipping options, build relationships with manufacturers, diversify your product range."),
	}
}

// Seed loads the default knowledge base into s.
func Seed(ctx context.Context, s *Store) error {
	_, err := s.AddDocuments(ctx, DefaultDocuments())
	return err
}
