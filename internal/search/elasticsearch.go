package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"ticketpay/internal/config"
	"ticketpay/internal/models"
)

// TicketDocument is the searchable projection of an issued ticket.
type TicketDocument struct {
	ID            string    `json:"id"`
	ReferenceCode string    `json:"reference_code"`
	EventID       string    `json:"event_id"`
	OrganizerID   string    `json:"organizer_id"`
	TicketTypeID  string    `json:"ticket_type_id"`
	AttendeeName  string    `json:"attendee_name"`
	AttendeeEmail string    `json:"attendee_email"`
	Status        string    `json:"status"`
	PaymentID     string    `json:"payment_id,omitempty"`
	HasNFT        bool      `json:"has_nft"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewTicketDocument(t *models.Ticket) TicketDocument {
	doc := TicketDocument{
		ID:            t.ID,
		ReferenceCode: t.ReferenceCode,
		EventID:       t.EventID,
		OrganizerID:   t.OrganizerID,
		TicketTypeID:  t.TicketTypeID,
		AttendeeName:  t.Attendee.Name,
		AttendeeEmail: strings.ToLower(t.Attendee.Email),
		Status:        t.Status,
		HasNFT:        t.NFT != nil,
		CreatedAt:     t.CreatedAt,
	}
	if t.PaymentID != nil {
		doc.PaymentID = *t.PaymentID
	}
	return doc
}

type ElasticsearchClient struct {
	client *elasticsearch.Client
	config config.ElasticsearchConfig
}

func NewElasticsearchClient(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{cfg.URL},
		Username:      cfg.Username,
		Password:      cfg.Password,
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	client := &ElasticsearchClient{
		client: es,
		config: cfg,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.ensureIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure index exists: %w", err)
	}

	return client, nil
}

var ticketMapping = map[string]interface{}{
	"settings": map[string]interface{}{
		"number_of_shards":   1,
		"number_of_replicas": 0,
	},
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"id":             map[string]interface{}{"type": "keyword"},
			"reference_code": map[string]interface{}{"type": "keyword"},
			"event_id":       map[string]interface{}{"type": "keyword"},
			"organizer_id":   map[string]interface{}{"type": "keyword"},
			"ticket_type_id": map[string]interface{}{"type": "keyword"},
			"attendee_name": map[string]interface{}{
				"type": "text",
				"fields": map[string]interface{}{
					"keyword": map[string]interface{}{"type": "keyword", "ignore_above": 256},
				},
			},
			"attendee_email": map[string]interface{}{"type": "keyword"},
			"status":         map[string]interface{}{"type": "keyword"},
			"payment_id":     map[string]interface{}{"type": "keyword"},
			"has_nft":        map[string]interface{}{"type": "boolean"},
			"created_at":     map[string]interface{}{"type": "date"},
		},
	},
}

func (c *ElasticsearchClient) ensureIndex(ctx context.Context) error {
	req := esapi.IndicesExistsRequest{
		Index: []string{c.config.Index},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		slog.Info("Elasticsearch index already exists", "index", c.config.Index)
		return nil
	}

	mappingJSON, err := json.Marshal(ticketMapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	createReq := esapi.IndicesCreateRequest{
		Index: c.config.Index,
		Body:  bytes.NewReader(mappingJSON),
	}

	createRes, err := createReq.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("failed to create index: %s", createRes.String())
	}

	slog.Info("Created Elasticsearch index", "index", c.config.Index)
	return nil
}

// IndexTicket upserts the ticket's document keyed by ticket id.
func (c *ElasticsearchClient) IndexTicket(ctx context.Context, t *models.Ticket) error {
	docJSON, err := json.Marshal(NewTicketDocument(t))
	if err != nil {
		return fmt.Errorf("failed to marshal ticket: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.config.Index,
		DocumentID: t.ID,
		Body:       bytes.NewReader(docJSON),
		Refresh:    "wait_for",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to index ticket: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexing error: %s", res.String())
	}
	return nil
}

func (c *ElasticsearchClient) DeleteTicket(ctx context.Context, id string) error {
	req := esapi.DeleteRequest{
		Index:      c.config.Index,
		DocumentID: id,
		Refresh:    "wait_for",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete error: %s", res.String())
	}
	return nil
}

// SearchTickets returns matching documents and the total hit count.
func (c *ElasticsearchClient) SearchTickets(ctx context.Context, f models.TicketFilter) ([]TicketDocument, int64, error) {
	size := f.Limit
	if size <= 0 || size > 100 {
		size = 50
	}

	searchRequest := map[string]interface{}{
		"query":            buildTicketQuery(f),
		"sort":             buildSortQuery(f.Query),
		"from":             f.Offset,
		"size":             size,
		"track_total_hits": true,
	}

	searchJSON, err := json.Marshal(searchRequest)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal search query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{c.config.Index},
		Body:  bytes.NewReader(searchJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, 0, fmt.Errorf("search error: %s", res.String())
	}

	var response struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source TicketDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, 0, fmt.Errorf("failed to decode search response: %w", err)
	}

	docs := make([]TicketDocument, len(response.Hits.Hits))
	for i, hit := range response.Hits.Hits {
		docs[i] = hit.Source
	}
	return docs, response.Hits.Total.Value, nil
}

func buildTicketQuery(f models.TicketFilter) map[string]interface{} {
	var filters []map[string]interface{}
	term := func(field, value string) {
		if value != "" {
			filters = append(filters, map[string]interface{}{
				"term": map[string]interface{}{field: value},
			})
		}
	}
	term("organizer_id", f.OrganizerID)
	term("event_id", f.EventID)
	term("attendee_email", strings.ToLower(f.Email))

	var must []map[string]interface{}
	if f.Query != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     f.Query,
				"fields":    []string{"attendee_name^2", "reference_code"},
				"fuzziness": "AUTO",
			},
		})
	}

	if len(filters) == 0 && len(must) == 0 {
		return map[string]interface{}{
			"match_all": map[string]interface{}{},
		}
	}

	boolQuery := map[string]interface{}{}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	return map[string]interface{}{"bool": boolQuery}
}

func buildSortQuery(query string) []map[string]interface{} {
	if query != "" {
		return []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"created_at": map[string]interface{}{"order": "desc"}},
		}
	}
	return []map[string]interface{}{
		{"created_at": map[string]interface{}{"order": "desc"}},
	}
}

func (c *ElasticsearchClient) HealthCheck(ctx context.Context) error {
	req := esapi.ClusterHealthRequest{
		WaitForStatus: "yellow",
		Timeout:       10 * time.Second,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("health check error: %s", res.String())
	}
	return nil
}
