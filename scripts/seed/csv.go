package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sassyweb/storefront/internal/products"
)

var productColumns = []string{"name", "brand", "category", "subcategory", "image", "sizes", "concerns", "description", "featured"}

// parseProducts reads a header row followed by one product per row. List
// columns are separated by '|'.
func parseProducts(r io.Reader) ([]products.Input, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"name", "brand", "category"} {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var out []products.Input
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		in := products.Input{
			Name:        field("name"),
			Brand:       field("brand"),
			Category:    field("category"),
			Subcategory: field("subcategory"),
			Image:       field("image"),
			Sizes:       splitList(field("sizes")),
			Concerns:    splitList(field("concerns")),
			Description: field("description"),
		}
		if v := field("featured"); v != "" {
			featured, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("line %d: featured: %w", line, err)
			}
			in.Featured = featured
		}
		out = append(out, in)
	}
	return out, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, "|")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
