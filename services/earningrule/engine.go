package earningrule

import (
	"context"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"loyalty-engine/pkg/db/option"
	"loyalty-engine/pkg/errutil"
	"loyalty-engine/pkg/repository"
	"loyalty-engine/services/transaction"
)

// Trigger event names rules are registered under. Transaction rules use the
// transaction.registered system event; geo and QR triggers arrive through
// dedicated engine entry points.
const (
	TriggerTransactionRegistered = "transaction.registered"
	TriggerGeoEvent              = "customer.geo_event"
	TriggerQRCodeEvent           = "customer.qrcode_event"
)

// Result is one rule award.
type Result struct {
	RuleID   uuid.UUID
	RuleName string
	Points   int64
}

func Total(results []Result) int64 {
	var sum int64
	for _, r := range results {
		sum += r.Points
	}
	return sum
}

// Engine evaluates earning rules against purchase, event, geo, and QR
// triggers. Rules at their usage limit yield zero, never an error; each
// award is recorded for subsequent limit checks.
type Engine struct {
	cache  *ruleCache
	rules  repository.Repository[Rule]
	usages repository.Repository[RuleUsage]
	expr   *expressionEvaluator
	node   *snowflake.Node
	logger *zap.Logger
	now    func() time.Time
}

type EngineParams struct {
	fx.In

	Rules  repository.Repository[Rule]
	Usages repository.Repository[RuleUsage]
	Node   *snowflake.Node
	Logger *zap.Logger
}

func NewEngine(p EngineParams) (*Engine, error) {
	expr, err := newExpressionEvaluator()
	if err != nil {
		return nil, err
	}
	return &Engine{
		cache:  newRuleCache(p.Rules, time.Minute),
		rules:  p.Rules,
		usages: p.Usages,
		expr:   expr,
		node:   p.Node,
		logger: p.Logger,
		now:    time.Now,
	}, nil
}

// SaveRule upserts a rule and drops the cache so the change is visible to
// the next evaluation.
func (e *Engine) SaveRule(ctx context.Context, rule *Rule) error {
	if rule.ID == uuid.Nil {
		return errutil.ValidationFailed("rule id is required")
	}
	if rule.Name == "" {
		return errutil.ValidationFailed("rule name is required")
	}

	existing, err := e.rules.FindOne(ctx, &Rule{ID: rule.ID})
	if err != nil {
		return err
	}
	if existing == nil {
		err = e.rules.Create(ctx, rule)
	} else {
		err = e.rules.Update(ctx, rule.ID.String(), rule)
	}
	if err != nil {
		return err
	}

	e.cache.Invalidate()
	return nil
}

// EvaluateTransaction awards points for a registered purchase: per matching
// transaction rule, round half-up over the eligible gross value, apply
// active multiply rules, then clamp each award to the points the rule still
// allows the customer in its rolling window.
func (e *Engine) EvaluateTransaction(ctx context.Context, tx *transaction.Transaction) ([]Result, error) {
	if tx == nil || !tx.Exists() {
		return nil, errutil.ValidationFailed("transaction is required")
	}
	if tx.DocumentType != transaction.DocumentTypeSell {
		return nil, nil
	}

	rules, err := e.applicableRules(ctx, TriggerTransactionRegistered)
	if err != nil {
		return nil, err
	}

	vars := map[string]any{
		"customer": map[string]any{"id": tx.CustomerID.String()},
		"transaction": map[string]any{
			"grossValue":     tx.GrossValue(),
			"documentType":   tx.DocumentType,
			"documentNumber": tx.DocumentNumber,
			"itemCount":      len(tx.Items),
		},
		"event": map[string]any{},
	}

	multiplier := 1.0
	var awards []transactionAward
	for _, rule := range rules {
		switch rule.Type {
		case TypeMultiplyPoints:
			var payload MultiplyPayload
			if err := rule.DecodePayload(&payload); err != nil {
				return nil, err
			}
			if payload.Multiplier > 0 {
				multiplier *= payload.Multiplier
			}
		case TypeTransaction:
			award, err := e.evaluateTransactionRule(ctx, rule, tx, vars)
			if err != nil {
				return nil, err
			}
			if award != nil {
				awards = append(awards, *award)
			}
		}
	}

	if multiplier != 1.0 {
		for i := range awards {
			awards[i].points = roundHalfUp(float64(awards[i].points) * multiplier)
		}
	}

	var results []Result
	for _, a := range awards {
		points := a.points
		if a.payload.MaxPoints > 0 {
			granted, err := e.grantedPoints(ctx, a.rule, tx.CustomerID)
			if err != nil {
				return nil, err
			}
			if headroom := a.payload.MaxPoints - granted; points > headroom {
				points = headroom
			}
		}
		if points <= 0 {
			continue
		}
		if err := e.recordUsage(ctx, a.rule.ID, tx.CustomerID, points); err != nil {
			return nil, err
		}
		results = append(results, Result{RuleID: a.rule.ID, RuleName: a.rule.Name, Points: points})
	}
	return results, nil
}

// transactionAward is a transaction rule's award before multipliers and the
// per-period points cap are applied.
type transactionAward struct {
	rule    *Rule
	payload TransactionPayload
	points  int64
}

func (e *Engine) evaluateTransactionRule(ctx context.Context, rule *Rule, tx *transaction.Transaction, vars map[string]any) (*transactionAward, error) {
	matched, err := e.expr.Matches(rule.Expression, vars)
	if err != nil || !matched {
		return nil, err
	}

	var payload TransactionPayload
	if err := rule.DecodePayload(&payload); err != nil {
		return nil, err
	}

	eligible := eligibleValue(tx, payload)
	if eligible <= 0 || tx.GrossValue() < payload.MinOrderValue {
		return nil, nil
	}

	atLimit, err := e.atUsageLimit(ctx, rule, tx.CustomerID)
	if err != nil {
		return nil, err
	}
	if atLimit {
		return nil, nil
	}

	points := roundHalfUp(eligible * payload.PointsRate)
	if points <= 0 {
		return nil, nil
	}
	return &transactionAward{rule: rule, payload: payload, points: points}, nil
}

// EvaluateEvent awards points for a named system event without extra
// context.
func (e *Engine) EvaluateEvent(ctx context.Context, eventName string, customerID uuid.UUID) ([]Result, error) {
	return e.EvaluateEventWithContext(ctx, eventName, customerID, nil)
}

// EvaluateEventWithContext awards points for a named event; eventContext is
// exposed to rule expressions as `event`.
func (e *Engine) EvaluateEventWithContext(ctx context.Context, eventName string, customerID uuid.UUID, eventContext map[string]any) ([]Result, error) {
	if customerID == uuid.Nil {
		return nil, errutil.ValidationFailed("customer id is required")
	}

	rules, err := e.applicableRules(ctx, eventName)
	if err != nil {
		return nil, err
	}

	if eventContext == nil {
		eventContext = map[string]any{}
	}
	vars := map[string]any{
		"customer":    map[string]any{"id": customerID.String()},
		"event":       eventContext,
		"transaction": map[string]any{},
	}

	var results []Result
	for _, rule := range rules {
		if rule.Type != TypeCustomEvent && rule.Type != TypeReferral {
			continue
		}
		matched, err := e.expr.Matches(rule.Expression, vars)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}

		atLimit, err := e.atUsageLimit(ctx, rule, customerID)
		if err != nil {
			return nil, err
		}
		if atLimit {
			continue
		}

		var payload EventPayload
		if err := rule.DecodePayload(&payload); err != nil {
			return nil, err
		}
		if payload.Points <= 0 {
			continue
		}

		if err := e.recordUsage(ctx, rule.ID, customerID, payload.Points); err != nil {
			return nil, err
		}
		results = append(results, Result{RuleID: rule.ID, RuleName: rule.Name, Points: payload.Points})
	}
	return results, nil
}

// EvaluateGeoEvent awards points for every geo rule whose circle contains
// the reported position.
func (e *Engine) EvaluateGeoEvent(ctx context.Context, customerID uuid.UUID, latitude, longitude float64) ([]Result, error) {
	if customerID == uuid.Nil {
		return nil, errutil.ValidationFailed("customer id is required")
	}

	rules, err := e.applicableRules(ctx, TriggerGeoEvent)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, rule := range rules {
		if rule.Type != TypeGeo {
			continue
		}
		var payload GeoPayload
		if err := rule.DecodePayload(&payload); err != nil {
			return nil, err
		}
		distance := haversineMeters(latitude, longitude, payload.Latitude, payload.Longitude)
		if distance > payload.RadiusMeters || payload.Points <= 0 {
			continue
		}

		atLimit, err := e.atUsageLimit(ctx, rule, customerID)
		if err != nil {
			return nil, err
		}
		if atLimit {
			continue
		}

		if err := e.recordUsage(ctx, rule.ID, customerID, payload.Points); err != nil {
			return nil, err
		}
		results = append(results, Result{RuleID: rule.ID, RuleName: rule.Name, Points: payload.Points})
	}
	return results, nil
}

// EvaluateQRCodeEvent awards points for QR rules matching the scanned code.
// A non-nil ruleID narrows the match to that single rule.
func (e *Engine) EvaluateQRCodeEvent(ctx context.Context, customerID uuid.UUID, code string, ruleID *uuid.UUID) ([]Result, error) {
	if customerID == uuid.Nil {
		return nil, errutil.ValidationFailed("customer id is required")
	}
	if code == "" {
		return nil, errutil.ValidationFailed("code is required")
	}

	rules, err := e.applicableRules(ctx, TriggerQRCodeEvent)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, rule := range rules {
		if rule.Type != TypeQRCode {
			continue
		}
		if ruleID != nil && rule.ID != *ruleID {
			continue
		}
		var payload QRCodePayload
		if err := rule.DecodePayload(&payload); err != nil {
			return nil, err
		}
		if payload.Code != code || payload.Points <= 0 {
			continue
		}

		atLimit, err := e.atUsageLimit(ctx, rule, customerID)
		if err != nil {
			return nil, err
		}
		if atLimit {
			continue
		}

		if err := e.recordUsage(ctx, rule.ID, customerID, payload.Points); err != nil {
			return nil, err
		}
		results = append(results, Result{RuleID: rule.ID, RuleName: rule.Name, Points: payload.Points})
	}
	return results, nil
}

// applicableRules returns the cached active rules for the trigger, filtered
// to the current time window.
func (e *Engine) applicableRules(ctx context.Context, eventName string) ([]*Rule, error) {
	rules, err := e.cache.ActiveByEvent(ctx, eventName)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	out := make([]*Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.InWindow(now) {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (e *Engine) atUsageLimit(ctx context.Context, rule *Rule, customerID uuid.UUID) (bool, error) {
	if rule.UsageLimit <= 0 {
		return false, nil
	}

	opts := []option.QueryOption{}
	if start, ok := periodStart(e.now().UTC(), rule.UsagePeriod); ok {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "used_at",
			Operator: option.GTE,
			Value:    start,
		}))
	}

	count, err := e.usages.Count(ctx, &RuleUsage{RuleID: rule.ID, CustomerID: customerID}, opts...)
	if err != nil {
		return false, err
	}
	return count >= int64(rule.UsageLimit), nil
}

// grantedPoints sums what the rule already awarded the customer inside the
// current period window.
func (e *Engine) grantedPoints(ctx context.Context, rule *Rule, customerID uuid.UUID) (int64, error) {
	opts := []option.QueryOption{}
	if start, ok := periodStart(e.now().UTC(), rule.UsagePeriod); ok {
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "used_at",
			Operator: option.GTE,
			Value:    start,
		}))
	}

	rows, err := e.usages.Find(ctx, &RuleUsage{RuleID: rule.ID, CustomerID: customerID}, opts...)
	if err != nil {
		return 0, err
	}

	var sum int64
	for _, row := range rows {
		sum += row.Points
	}
	return sum, nil
}

func (e *Engine) recordUsage(ctx context.Context, ruleID, customerID uuid.UUID, points int64) error {
	return e.usages.Create(ctx, &RuleUsage{
		ID:         e.node.Generate().String(),
		RuleID:     ruleID,
		CustomerID: customerID,
		Points:     points,
		UsedAt:     e.now().UTC(),
	})
}

// periodStart returns the rolling window start. An empty period means the
// limit counts over the customer's lifetime.
func periodStart(now time.Time, period string) (time.Time, bool) {
	switch period {
	case PeriodDay:
		return now.AddDate(0, 0, -1), true
	case PeriodWeek:
		return now.AddDate(0, 0, -7), true
	case PeriodMonth:
		return now.AddDate(0, -1, 0), true
	}
	return time.Time{}, false
}

// eligibleValue sums item gross values left after SKU and category
// exclusions.
func eligibleValue(tx *transaction.Transaction, payload TransactionPayload) float64 {
	excludedSKU := toSet(payload.ExcludedSKUs)
	excludedCategory := toSet(payload.ExcludedCategories)

	var sum float64
	for _, item := range tx.Items {
		if excludedSKU[item.SKU] || excludedCategory[item.Category] {
			continue
		}
		sum += item.GrossValue
	}
	return sum
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func roundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}

// haversineMeters is the great-circle distance between two coordinates.
func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusMeters = 6371000.0

	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}
