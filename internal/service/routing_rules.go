package service

import (
	"strconv"
	"strings"

	"marketplace-core/internal/models"
)

// Score boost granted by a matching prefer_location rule. A boost biases
// ranking without pruning the candidate set.
const preferLocationBoost = 10.0

// ruleEffects accumulates the outcome of applying matched rules, highest
// priority first.
type ruleEffects struct {
	required       map[string]bool
	excluded       map[string]bool
	boosts         map[string]float64
	surcharge      int64
	shippingMethod string
	applied        []string
}

func newRuleEffects() *ruleEffects {
	return &ruleEffects{
		required: make(map[string]bool),
		excluded: make(map[string]bool),
		boosts:   make(map[string]float64),
	}
}

// applyRules evaluates each rule's condition against the request and folds
// matching rules into the effect set.
func applyRules(rules []models.RoutingRule, req *RouteRequest) *ruleEffects {
	effects := newRuleEffects()

	for _, rule := range rules {
		if !ruleMatches(&rule, req) {
			continue
		}

		switch rule.Action {
		case models.ActionRequireLocation:
			effects.required[rule.Target] = true
		case models.ActionExcludeLocation:
			effects.excluded[rule.Target] = true
		case models.ActionPreferLocation:
			effects.boosts[rule.Target] += preferLocationBoost
		case models.ActionApplySurcharge:
			if cents, err := strconv.ParseInt(rule.Target, 10, 64); err == nil {
				effects.surcharge += cents
			}
		case models.ActionRequireShippingMethod:
			// Highest-priority rule wins; later (lower priority) rules
			// cannot loosen it.
			if effects.shippingMethod == "" {
				effects.shippingMethod = rule.Target
			}
		default:
			continue
		}

		effects.applied = append(effects.applied, rule.Name)
	}

	return effects
}

// ruleMatches evaluates the rule's dot-path condition against the request.
// Item-scoped paths (items.*) match if any line item satisfies the operator.
func ruleMatches(rule *models.RoutingRule, req *RouteRequest) bool {
	values := fieldValues(req, rule.FieldPath)
	if len(values) == 0 {
		return false
	}

	// not_equals and not_in must hold for every value, the rest for any.
	negated := rule.Operator == models.OpNotEquals || rule.Operator == models.OpNotIn
	for _, actual := range values {
		match := compareValue(rule.Operator, actual, rule.Value)
		if negated && !match {
			return false
		}
		if !negated && match {
			return true
		}
	}
	return negated
}

// fieldValues resolves a dot path against the request. Destination and
// request-level paths yield one value; items.* yields one value per item.
func fieldValues(req *RouteRequest, path string) []string {
	switch path {
	case "order_id":
		return []string{req.OrderID}
	case "service_level":
		return []string{req.ServiceLevel}
	case "item_count":
		return []string{strconv.Itoa(len(req.Items))}
	case "total_quantity":
		total := 0
		for _, item := range req.Items {
			total += item.Quantity
		}
		return []string{strconv.Itoa(total)}
	case "destination.country":
		return []string{req.Destination.Country}
	case "destination.state":
		return []string{req.Destination.State}
	case "destination.city":
		return []string{req.Destination.City}
	case "destination.zip":
		return []string{req.Destination.Zip}
	}

	if rest, ok := strings.CutPrefix(path, "items."); ok {
		values := make([]string, 0, len(req.Items))
		for _, item := range req.Items {
			switch rest {
			case "sku":
				values = append(values, item.SKU)
			case "vendor_id":
				values = append(values, item.VendorID)
			case "category":
				values = append(values, item.Category)
			case "quantity":
				values = append(values, strconv.Itoa(item.Quantity))
			case "unit_price":
				values = append(values, strconv.FormatInt(item.UnitPrice, 10))
			default:
				return nil
			}
		}
		return values
	}

	return nil
}

// compareValue applies one operator to a single actual value. List-valued
// rule values (in/not_in) are comma separated.
func compareValue(op, actual, ruleValue string) bool {
	switch op {
	case models.OpEquals:
		return strings.EqualFold(actual, ruleValue)
	case models.OpNotEquals:
		return !strings.EqualFold(actual, ruleValue)
	case models.OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(ruleValue))
	case models.OpGreaterThan:
		a, errA := strconv.ParseFloat(actual, 64)
		b, errB := strconv.ParseFloat(ruleValue, 64)
		return errA == nil && errB == nil && a > b
	case models.OpLessThan:
		a, errA := strconv.ParseFloat(actual, 64)
		b, errB := strconv.ParseFloat(ruleValue, 64)
		return errA == nil && errB == nil && a < b
	case models.OpIn:
		return listContains(ruleValue, actual)
	case models.OpNotIn:
		return !listContains(ruleValue, actual)
	default:
		return false
	}
}

func listContains(list, value string) bool {
	for _, v := range strings.Split(list, ",") {
		if strings.EqualFold(strings.TrimSpace(v), value) {
			return true
		}
	}
	return false
}
