// Package models defines data structures for the scraper.
package models

import (
	"strconv"
	"strings"
)

// RecordKind tells the two product shapes apart.
type RecordKind string

const (
	// KindAPIProduct is a product projected from the JSON category API.
	KindAPIProduct RecordKind = "api_product"
	// KindPageProduct is a product scraped from a rendered detail page.
	KindPageProduct RecordKind = "page_product"
)

// Record is a normalized output row. Implementations share only the
// identifier of the work item they were extracted from.
type Record interface {
	Kind() RecordKind
	Key() string
	Header() []string
	Row() []string
}

// APIProduct is a product row built from the category API attributes.
type APIProduct struct {
	Source       string   `json:"source"`
	Provider     string   `json:"provider"`
	FarmURL      string   `json:"farm_url"`
	Size         string   `json:"size"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	IsLocal      bool     `json:"is_local"`
	IsOrganic    bool     `json:"is_organic"`
	IsPeakSeason bool     `json:"is_peak_season"`
	Unit         string   `json:"unit"`
	Price        string   `json:"price"`
	BRUnit       string   `json:"brunit"`
	MaxQty       string   `json:"max_qty"`
	ImageURLs    []string `json:"image_urls"`
	IsBuyable    bool     `json:"is_buyable"`
	IsAvailable  bool     `json:"is_available"`
	ProductURL   string   `json:"product_url"`
}

var apiProductHeader = []string{
	"source", "provider", "farm_url", "size", "title", "description",
	"is_local", "is_organic", "is_peak_season", "unit", "price", "brunit",
	"max_qty", "image_urls", "is_buyable", "is_available", "product_url",
}

// Kind implements Record.
func (p *APIProduct) Kind() RecordKind { return KindAPIProduct }

// Key identifies the product within its category listing. A product listed
// under two categories yields two rows; rows without a product URL fall back
// to the title.
func (p *APIProduct) Key() string {
	if p.ProductURL != "" {
		return p.Source + "/" + p.ProductURL
	}
	if p.Source == "" && p.Title == "" {
		return ""
	}
	return p.Source + "/" + p.Title
}

// Header implements Record.
func (p *APIProduct) Header() []string { return apiProductHeader }

// Row implements Record. Image URLs are joined with "|".
func (p *APIProduct) Row() []string {
	return []string{
		p.Source,
		p.Provider,
		p.FarmURL,
		p.Size,
		p.Title,
		p.Description,
		strconv.FormatBool(p.IsLocal),
		strconv.FormatBool(p.IsOrganic),
		strconv.FormatBool(p.IsPeakSeason),
		p.Unit,
		p.Price,
		p.BRUnit,
		p.MaxQty,
		strings.Join(p.ImageURLs, "|"),
		strconv.FormatBool(p.IsBuyable),
		strconv.FormatBool(p.IsAvailable),
		p.ProductURL,
	}
}

// PageProduct is a product row scraped from an HTML detail page. Every field
// is empty when the page does not carry it.
type PageProduct struct {
	Source       string `json:"source"`
	Farm         string `json:"farm"`
	Title        string `json:"title"`
	SKU          string `json:"sku"`
	Price        string `json:"price"`
	PriceUnit    string `json:"price_unit"`
	AboutProduct string `json:"about_product"`
	Ingredient   string `json:"ingredient"`
	FarmLocation string `json:"farm_location"`
	AboutFarm    string `json:"about_farm"`
}

var pageProductHeader = []string{
	"source", "farm", "title", "sku", "price", "price_unit",
	"about_product", "ingredient", "farm_location", "about_farm",
}

// Kind implements Record.
func (p *PageProduct) Kind() RecordKind { return KindPageProduct }

// Key implements Record.
func (p *PageProduct) Key() string { return p.Source }

// Header implements Record.
func (p *PageProduct) Header() []string { return pageProductHeader }

// Row implements Record.
func (p *PageProduct) Row() []string {
	return []string{
		p.Source,
		p.Farm,
		p.Title,
		p.SKU,
		p.Price,
		p.PriceUnit,
		p.AboutProduct,
		p.Ingredient,
		p.FarmLocation,
		p.AboutFarm,
	}
}
