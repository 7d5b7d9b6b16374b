package catalog

// Package catalog loads the product catalog file used to price carts.

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type File struct {
	Shop     ShopConfig `yaml:"shop"`
	Products []Product  `yaml:"products"`
}

type ShopConfig struct {
	Name     string `yaml:"name" validate:"required"`
	Currency string `yaml:"currency" validate:"required,eq=vnd"`
}

type Product struct {
	ID          string `yaml:"id" validate:"required"`
	Code        string `yaml:"code"`
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
	Price       int64  `yaml:"price" validate:"gte=0"`
	Weight      int    `yaml:"weight" validate:"gte=0"`
	Thumbnail   string `yaml:"thumbnail"`
	Active      bool   `yaml:"active"`
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(content []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &file, nil
}

func (p *Parser) ParseFromString(content string) (*File, error) {
	return p.Parse([]byte(content))
}

func (p *Parser) ParseFile(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return p.Parse(content)
}
