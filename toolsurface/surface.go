package toolsurface

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/travelguard/insurance-core/claims"
	"github.com/travelguard/insurance-core/errs"
	"github.com/travelguard/insurance-core/graphsearch"
	"github.com/travelguard/insurance-core/memory"
	"github.com/travelguard/insurance-core/payments"
	"github.com/travelguard/insurance-core/quotation"
	"github.com/travelguard/insurance-core/vectorsearch"
)

// Surface is a thin dispatch layer binding the ten named tools to the
// core components that implement them. Each tool validates its
// arguments then delegates; it carries no business logic of its own.
type Surface struct {
	vectorsearch *vectorsearch.Client
	graphsearch  *graphsearch.Client
	claims       *claims.Orchestrator
	quotation    *quotation.Client
	payments     *payments.Orchestrator
	memory       *memory.Service
	hub          *Hub
	logger       *zap.Logger
}

// New builds a Surface over the already-constructed core components.
func New(
	vs *vectorsearch.Client,
	gs *graphsearch.Client,
	cl *claims.Orchestrator,
	qu *quotation.Client,
	pa *payments.Orchestrator,
	me *memory.Service,
	hub *Hub,
	logger *zap.Logger,
) *Surface {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Surface{
		vectorsearch: vs,
		graphsearch:  gs,
		claims:       cl,
		quotation:    qu,
		payments:     pa,
		memory:       me,
		hub:          hub,
		logger:       logger,
	}
}

// ListTools returns the static tool catalog, usable by an LLM's
// tool-calling loop or by a human-facing API explorer.
func (s *Surface) ListTools() []ToolDefinition {
	return []ToolDefinition{
		{Name: "search_policy", Description: "Search the policy's general conditions by semantic similarity; benefits, benefit conditions and original text are not searched.", InputSchema: schemaStringQuery("query", "k")},
		{Name: "search_concepts", Description: "Search the insurance concept graph for related terms.", InputSchema: schemaStringQuery("query", "k")},
		{Name: "claims_insights", Description: "Answer a free-form claims question by planning and executing read-only SQL against the claims sandbox.", InputSchema: schemaStringQuery("query", "num_insights")},
		{Name: "get_quotation", Description: "Price a single-trip or round-trip insurance policy.", InputSchema: schemaQuotation()},
		{Name: "initiate_purchase", Description: "Start a purchase: create a pending payment record and an external checkout session.", InputSchema: schemaInitiate()},
		{Name: "payment_status", Description: "Look up the current status of a payment by payment_intent_id.", InputSchema: schemaPaymentIntentID()},
		{Name: "complete_purchase", Description: "Issue the policy for a completed payment.", InputSchema: schemaPaymentIntentID()},
		{Name: "cancel_purchase", Description: "Cancel a non-completed payment.", InputSchema: schemaCancel()},
		{Name: "memory_add", Description: "Persist conversational turns as long-term memory for a user.", InputSchema: schemaMemoryAdd()},
		{Name: "memory_search", Description: "Search a user's long-term memory.", InputSchema: schemaMemorySearch()},
	}
}

// CallTool validates args against the named tool's expectations, calls
// the matching core component, and returns a JSON-marshalable result.
// requestID is forwarded to the notification hub so a streaming
// subscriber can correlate start/finish events; it may be nil.
func (s *Surface) CallTool(ctx context.Context, name string, args map[string]any, requestID any) (any, error) {
	s.hub.publish(notification{Event: "tool_call_started", Tool: name, RequestID: requestID, At: time.Now()})

	result, err := s.dispatch(ctx, name, args)
	if err != nil {
		s.hub.publish(notification{Event: "tool_call_failed", Tool: name, RequestID: requestID, Error: err.Error(), At: time.Now()})
		return nil, err
	}
	s.hub.publish(notification{Event: "tool_call_completed", Tool: name, RequestID: requestID, At: time.Now()})
	return result, nil
}

func (s *Surface) dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search_policy":
		return s.searchPolicy(ctx, args)
	case "search_concepts":
		return s.searchConcepts(ctx, args)
	case "claims_insights":
		return s.claimsInsights(ctx, args)
	case "get_quotation":
		return s.getQuotation(ctx, args)
	case "initiate_purchase":
		return s.initiatePurchase(ctx, args)
	case "payment_status":
		return s.paymentStatus(ctx, args)
	case "complete_purchase":
		return s.completePurchase(ctx, args)
	case "cancel_purchase":
		return s.cancelPurchase(ctx, args)
	case "memory_add":
		return s.memoryAdd(ctx, args)
	case "memory_search":
		return s.memorySearch(ctx, args)
	default:
		return nil, errs.Newf(errs.InvalidArgument, "unknown tool %q", name)
	}
}

func (s *Surface) searchPolicy(ctx context.Context, args map[string]any) (any, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	k := intArgOrDefault(args, "k", 5)

	rows, err := s.vectorsearch.SearchGeneralConditions(ctx, query, k)
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "search_policy")
	}
	return rows, nil
}

func (s *Surface) searchConcepts(ctx context.Context, args map[string]any) (any, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	k := intArgOrDefault(args, "k", 5)

	concepts, err := s.graphsearch.SearchConcepts(ctx, query, k)
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "search_concepts")
	}
	return concepts, nil
}

func (s *Surface) claimsInsights(ctx context.Context, args map[string]any) (any, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	numInsights := intArgOrDefault(args, "num_insights", 3)

	count, answer := s.claims.Answer(ctx, query, numInsights)
	return map[string]any{"insight_count": count, "answer": answer}, nil
}

func (s *Surface) getQuotation(ctx context.Context, args map[string]any) (any, error) {
	depart, err := stringArg(args, "departure_date")
	if err != nil {
		return nil, err
	}
	departureCountry, err := stringArg(args, "departure_country")
	if err != nil {
		return nil, err
	}
	arrivalCountry, err := stringArg(args, "arrival_country")
	if err != nil {
		return nil, err
	}
	adults, err := intArg(args, "adults_count")
	if err != nil {
		return nil, err
	}

	tripType := quotation.TripTypeSingle
	if t, _ := args["trip_type"].(string); t == string(quotation.TripTypeRound) {
		tripType = quotation.TripTypeRound
	}

	resp, err := s.quotation.GetQuotation(ctx, quotation.PricingRequest{
		TripType:         tripType,
		DepartureDate:    depart,
		ReturnDate:       stringOr(args, "return_date", ""),
		DepartureCountry: departureCountry,
		ArrivalCountry:   arrivalCountry,
		AdultsCount:      adults,
		ChildrenCount:    intArgOrDefault(args, "children_count", 0),
		Market:           stringOr(args, "market", ""),
		LanguageCode:     stringOr(args, "language", ""),
		Channel:          stringOr(args, "channel", ""),
		DeviceType:       stringOr(args, "device", ""),
	})
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "get_quotation")
	}
	return resp, nil
}

func (s *Surface) initiatePurchase(ctx context.Context, args map[string]any) (any, error) {
	quoteID, err := stringArg(args, "quote_id")
	if err != nil {
		return nil, err
	}
	amount, err := intArg(args, "amount_minor_units")
	if err != nil {
		return nil, err
	}

	if offerID := stringOr(args, "selected_offer_id", ""); offerID != "" {
		if _, err := s.payments.Select(ctx, payments.SelectionRequest{
			QuoteID:         quoteID,
			SelectedOfferID: offerID,
			ProductCode:     stringOr(args, "product_code", ""),
			InsuredParties:  stringOr(args, "insured_parties", ""),
			MainContact:     stringOr(args, "main_contact", ""),
			PricingResponse: stringOr(args, "pricing_response", ""),
		}); err != nil {
			return nil, err
		}
	}

	result, err := s.payments.Initiate(ctx, payments.InitiateRequest{
		UserID:           stringOr(args, "user_id", ""),
		QuoteID:          quoteID,
		AmountMinorUnits: int64(amount),
		Currency:         stringOr(args, "currency", ""),
		ProductName:      stringOr(args, "product_name", ""),
		Email:            stringOr(args, "email", ""),
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Surface) paymentStatus(ctx context.Context, args map[string]any) (any, error) {
	id, err := stringArg(args, "payment_intent_id")
	if err != nil {
		return nil, err
	}
	record, err := s.payments.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Surface) completePurchase(ctx context.Context, args map[string]any) (any, error) {
	id, err := stringArg(args, "payment_intent_id")
	if err != nil {
		return nil, err
	}
	result, err := s.payments.Complete(ctx, id)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Surface) cancelPurchase(ctx context.Context, args map[string]any) (any, error) {
	id, err := stringArg(args, "payment_intent_id")
	if err != nil {
		return nil, err
	}
	reason := stringOr(args, "reason", "")
	if err := s.payments.Cancel(ctx, id, reason); err != nil {
		return nil, err
	}
	return map[string]any{"payment_intent_id": id, "status": "cancelled"}, nil
}

func (s *Surface) memoryAdd(ctx context.Context, args map[string]any) (any, error) {
	userID, err := stringArg(args, "user_id")
	if err != nil {
		return nil, err
	}
	rawMessages, ok := args["messages"].([]any)
	if !ok || len(rawMessages) == 0 {
		return nil, errs.New(errs.InvalidArgument, "messages must be a non-empty array")
	}

	messages := make([]memory.Message, 0, len(rawMessages))
	for _, m := range rawMessages {
		mm, ok := m.(map[string]any)
		if !ok {
			return nil, errs.New(errs.InvalidArgument, "each message must be an object with role and content")
		}
		role, _ := mm["role"].(string)
		content, _ := mm["content"].(string)
		messages = append(messages, memory.Message{Role: role, Content: content})
	}

	var metadata map[string]any
	if m, ok := args["metadata"].(map[string]any); ok {
		metadata = m
	}

	results, err := s.memory.Add(ctx, userID, messages, metadata)
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "memory_add")
	}
	return results, nil
}

func (s *Surface) memorySearch(ctx context.Context, args map[string]any) (any, error) {
	userID, err := stringArg(args, "user_id")
	if err != nil {
		return nil, err
	}
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}
	limit := intArgOrDefault(args, "limit", 10)

	items, err := s.memory.Search(ctx, userID, query, limit)
	if err != nil {
		return nil, errs.Wrap(errs.Runtime, err, "memory_search")
	}
	return items, nil
}

// --- argument helpers ---

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", errs.Newf(errs.InvalidArgument, "%s is required", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", errs.Newf(errs.InvalidArgument, "%s must be a non-empty string", key)
	}
	return s, nil
}

func stringOr(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return fallback
}

func intArg(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, errs.Newf(errs.InvalidArgument, "%s is required", key)
	}
	return toInt(v)
}

func intArgOrDefault(args map[string]any, key string, fallback int) int {
	v, ok := args[key]
	if !ok {
		return fallback
	}
	n, err := toInt(v)
	if err != nil {
		return fallback
	}
	return n
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func toIntSlice(v any) ([]int, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array")
	}
	out := make([]int, 0, len(arr))
	for _, item := range arr {
		n, err := toInt(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func schemaStringQuery(fields ...string) map[string]any {
	props := map[string]any{}
	for _, f := range fields {
		if f == "query" {
			props[f] = map[string]any{"type": "string"}
		} else {
			props[f] = map[string]any{"type": "integer"}
		}
	}
	return map[string]any{"type": "object", "properties": props, "required": []string{"query"}}
}

func schemaQuotation() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"trip_type":         map[string]any{"type": "string", "enum": []string{"ST", "RT"}},
			"departure_date":    map[string]any{"type": "string"},
			"return_date":       map[string]any{"type": "string"},
			"departure_country": map[string]any{"type": "string", "description": "ISO country code the traveler departs from"},
			"arrival_country":   map[string]any{"type": "string", "description": "ISO country code of the destination"},
			"adults_count":      map[string]any{"type": "integer"},
			"children_count":    map[string]any{"type": "integer"},
			"market":            map[string]any{"type": "string", "description": "defaults to " + quotation.DefaultMarket},
			"language":          map[string]any{"type": "string", "description": "defaults to " + quotation.DefaultLanguageCode},
			"channel":           map[string]any{"type": "string", "description": "defaults to " + quotation.DefaultChannel},
			"device":            map[string]any{"type": "string", "description": "defaults to " + quotation.DefaultDeviceType},
		},
		"required": []string{"departure_date", "departure_country", "arrival_country", "adults_count"},
	}
}

func schemaInitiate() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"quote_id":           map[string]any{"type": "string"},
			"user_id":            map[string]any{"type": "string"},
			"amount_minor_units": map[string]any{"type": "integer"},
			"currency":           map[string]any{"type": "string"},
			"product_name":       map[string]any{"type": "string"},
			"email":              map[string]any{"type": "string"},
			"selected_offer_id":  map[string]any{"type": "string", "description": "offer_id from get_quotation; when set, records the Selection Record alongside the payment"},
			"product_code":       map[string]any{"type": "string"},
			"insured_parties":    map[string]any{"type": "string", "description": "JSON array, passed through verbatim"},
			"main_contact":       map[string]any{"type": "string", "description": "JSON object, passed through verbatim"},
			"pricing_response":   map[string]any{"type": "string", "description": "raw get_quotation response, JSON, passed through verbatim"},
		},
		"required": []string{"quote_id", "amount_minor_units"},
	}
}

func schemaPaymentIntentID() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"payment_intent_id": map[string]any{"type": "string"}},
		"required":   []string{"payment_intent_id"},
	}
}

func schemaCancel() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"payment_intent_id": map[string]any{"type": "string"},
			"reason":            map[string]any{"type": "string"},
		},
		"required": []string{"payment_intent_id"},
	}
}

func schemaMemoryAdd() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id":  map[string]any{"type": "string"},
			"messages": map[string]any{"type": "array"},
			"metadata": map[string]any{"type": "object"},
		},
		"required": []string{"user_id", "messages"},
	}
}

func schemaMemorySearch() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user_id": map[string]any{"type": "string"},
			"query":   map[string]any{"type": "string"},
			"limit":   map[string]any{"type": "integer"},
		},
		"required": []string{"user_id", "query"},
	}
}
