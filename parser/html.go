package parser

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-baldor/models"
)

// Product detail page selectors.
const (
	selFarm         = "span.card-detail-farm"
	selTitle        = "h1.card-details-title"
	selSKU          = "div.card-detail-sku"
	selPrice        = "span.price"
	selPriceUnit    = "span.price-unit"
	selAboutProduct = "div.product-note > div.mce-content"
	selIngredient   = "div#productIngredient"
	selFarmLocation = "div.farm-descr-box > div.pn-heading.clearfix > strong.pn-title > span"
	selAboutFarm    = "div.farm-descr-box > div.clearfix.mce-content"
)

// ExtractPageProduct reads a product detail page. Missing blocks leave their
// field empty; only an unreadable document is an error.
func ExtractPageProduct(source string, body []byte) (*models.PageProduct, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse product page %s: %w", source, err)
	}
	return pageProductFromDocument(source, doc), nil
}

func pageProductFromDocument(source string, doc *goquery.Document) *models.PageProduct {
	text := func(selector string) string {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			return ""
		}
		return CleanText(sel.Text())
	}

	price := ""
	if raw := text(selPrice); raw != "" {
		price, _ = ExtractPrice(raw)
	}

	return &models.PageProduct{
		Source:       source,
		Farm:         text(selFarm),
		Title:        text(selTitle),
		SKU:          text(selSKU),
		Price:        price,
		PriceUnit:    text(selPriceUnit),
		AboutProduct: text(selAboutProduct),
		Ingredient:   text(selIngredient),
		FarmLocation: text(selFarmLocation),
		AboutFarm:    text(selAboutFarm),
	}
}
