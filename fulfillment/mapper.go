package fulfillment

import (
	"context"
	"fmt"
	"sort"

	"github.com/juliezen/integrationhub/domain"
)

// ItemMapLookup resolves a persisted FulfillmentItemMap row for one source
// item code, the Go translation of the FulfillmentItemMap query in
// mapper.py's _map_line.
type ItemMapLookup func(ctx context.Context, organizationID, sourceItemCode string) (*domain.FulfillmentItemMap, error)

// MappedLine is one normalized line resolved to a target (distributor)
// item code, company and warehouse.
type MappedLine struct {
	SourceItemCode string
	TargetItemCode string
	TargetCompany  string
	Quantity       float64
	Warehouse      string
}

// MapLines resolves every line in order against company's item map,
// grounded on mapper.py:LineMapper.map_lines/_map_line's three-tier
// fallback: exact FulfillmentItemMap entry, then metadata-configured
// mapping, then identity (source code used as-is). After every line
// resolves, an order that maps to more than one distinct target company
// fails as FulfillmentConfigurationError(multiple_target_companies), the Go
// translation of map_lines' closing `set(l.target_company for l in lines)`
// check.
func MapLines(ctx context.Context, lookup ItemMapLookup, metadataMap map[string]string, organizationID, defaultCompany string, order *NormalizedOrder) ([]MappedLine, error) {
	var mapped []MappedLine
	companies := map[string]struct{}{}
	for _, line := range order.Lines {
		ml, err := mapLine(ctx, lookup, metadataMap, organizationID, defaultCompany, line)
		if err != nil {
			return nil, err
		}
		companies[ml.TargetCompany] = struct{}{}
		mapped = append(mapped, ml)
	}
	if len(companies) > 1 {
		names := make([]string, 0, len(companies))
		for c := range companies {
			names = append(names, c)
		}
		sort.Strings(names)
		return nil, domain.NewFulfillmentConfigurationErrorCode("line_mapping", "multiple_target_companies",
			fmt.Sprintf("order lines resolve to more than one target company: %v", names))
	}
	return mapped, nil
}

func mapLine(ctx context.Context, lookup ItemMapLookup, metadataMap map[string]string, organizationID, defaultCompany string, line NormalizedLine) (MappedLine, error) {
	if lookup != nil {
		entry, err := lookup(ctx, organizationID, line.SourceItemCode)
		if err == nil && entry != nil {
			if entry.TargetItemCode == "" {
				return MappedLine{}, invalidItemMap(line.SourceItemCode)
			}
			company := entry.TargetCompany
			if company == "" {
				company = defaultCompany
			}
			warehouse := entry.Warehouse
			if warehouse == "" {
				warehouse = line.Warehouse
			}
			return MappedLine{
				SourceItemCode: line.SourceItemCode,
				TargetItemCode: entry.TargetItemCode,
				TargetCompany:  company,
				Quantity:       line.Quantity,
				Warehouse:      warehouse,
			}, nil
		}
	}
	if metadataMap != nil {
		if target, ok := metadataMap[line.SourceItemCode]; ok {
			if target == "" {
				return MappedLine{}, invalidItemMap(line.SourceItemCode)
			}
			return MappedLine{
				SourceItemCode: line.SourceItemCode,
				TargetItemCode: target,
				TargetCompany:  defaultCompany,
				Quantity:       line.Quantity,
				Warehouse:      line.Warehouse,
			}, nil
		}
	}
	// Identity fallback: no explicit map row or metadata entry exists for
	// this item, so the source code is used as-is against the default
	// (distributor) company, matching mapper.py's final branch.
	return MappedLine{
		SourceItemCode: line.SourceItemCode,
		TargetItemCode: line.SourceItemCode,
		TargetCompany:  defaultCompany,
		Quantity:       line.Quantity,
		Warehouse:      line.Warehouse,
	}, nil
}

func invalidItemMap(sourceItemCode string) error {
	return domain.NewFulfillmentConfigurationErrorCode("line_mapping", "invalid_item_map",
		fmt.Sprintf("item map for %q resolves to an empty target item code", sourceItemCode))
}
