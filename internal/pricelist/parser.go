// Package pricelist reads partner price-list documents.
package pricelist

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"procurement/internal/domain"

	"gopkg.in/yaml.v3"
)

// scalar accepts any YAML scalar and keeps its literal text, so ids and
// parameter values may be written as numbers or strings.
type scalar string

func (s *scalar) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", value.Line)
	}
	*s = scalar(strings.TrimSpace(value.Value))
	return nil
}

type document struct {
	Shop       scalar        `yaml:"shop"`
	Categories []rawCategory `yaml:"categories"`
	Goods      []rawGood     `yaml:"goods"`
}

type rawCategory struct {
	ID   scalar `yaml:"id"`
	Name scalar `yaml:"name"`
}

type rawGood struct {
	ID         scalar            `yaml:"id"`
	Category   scalar            `yaml:"category"`
	Model      scalar            `yaml:"model"`
	Name       scalar            `yaml:"name"`
	Price      scalar            `yaml:"price"`
	PriceRRC   scalar            `yaml:"price_rrc"`
	Quantity   scalar            `yaml:"quantity"`
	Parameters map[string]scalar `yaml:"parameters"`
}

// Parse decodes a YAML price list. Structural problems and non-numeric
// amounts are reported as domain.ErrValidation.
func Parse(r io.Reader) (*domain.PriceList, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty price list", domain.ErrValidation)
		}
		return nil, fmt.Errorf("%w: malformed price list: %v", domain.ErrValidation, err)
	}

	list := &domain.PriceList{
		ShopName:   string(doc.Shop),
		Categories: make([]domain.PriceListCategory, 0, len(doc.Categories)),
		Items:      make([]domain.PriceListItem, 0, len(doc.Goods)),
	}

	for _, c := range doc.Categories {
		list.Categories = append(list.Categories, domain.PriceListCategory{
			ExternalID: string(c.ID),
			Name:       string(c.Name),
		})
	}

	for i, g := range doc.Goods {
		item, err := g.toItem(i)
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, item)
	}
	return list, nil
}

// ParseBytes is Parse over an in-memory document
func ParseBytes(b []byte) (*domain.PriceList, error) {
	return Parse(bytes.NewReader(b))
}

func (g rawGood) toItem(row int) (domain.PriceListItem, error) {
	price, err := parseAmount(g.Price)
	if err != nil {
		return domain.PriceListItem{}, &domain.RowError{Section: "goods", Row: row, Field: "price", Reason: err.Error()}
	}
	rrc, err := parseAmount(g.PriceRRC)
	if err != nil {
		return domain.PriceListItem{}, &domain.RowError{Section: "goods", Row: row, Field: "price_rrc", Reason: err.Error()}
	}
	qty, err := parseAmount(g.Quantity)
	if err != nil {
		return domain.PriceListItem{}, &domain.RowError{Section: "goods", Row: row, Field: "quantity", Reason: err.Error()}
	}

	var params map[string]string
	if len(g.Parameters) > 0 {
		params = make(map[string]string, len(g.Parameters))
		for k, v := range g.Parameters {
			params[strings.TrimSpace(k)] = string(v)
		}
	}

	return domain.PriceListItem{
		ExternalSKU: string(g.ID),
		CategoryRef: string(g.Category),
		Name:        string(g.Name),
		Model:       string(g.Model),
		Price:       price,
		PriceRRC:    rrc,
		Quantity:    int(qty),
		Parameters:  params,
	}, nil
}

// parseAmount reads a whole number. An absent value is zero.
func parseAmount(s scalar) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a whole number", string(s))
	}
	return n, nil
}
