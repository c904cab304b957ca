package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"pneumatic/infra/tracing"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/elastic/go-elasticsearch/v7/estransport"
	"github.com/sirupsen/logrus"
)

var (
	SearchFunc = Search
	IndexFunc  = Index
)

type H map[string]interface{}

// ActiveESClient stays nil when no elasticsearch url is configured.
var ActiveESClient *elasticsearch.Client

// SearchResult keeps the matched documents of a search, in the order elasticsearch ranked them.
type SearchResult struct {
	Total int
	Hits  []Hit
}

type Hit struct {
	ID     string
	Source json.RawMessage
}

// ResponseError is an elasticsearch reply with an error status.
type ResponseError struct {
	Status string
	Reason string
}

func (e *ResponseError) Error() string {
	if e.Reason == "" {
		return "error response status " + e.Status
	}
	return fmt.Sprintf("error response status %s: %s", e.Status, e.Reason)
}

func CreateClient(url string) (*elasticsearch.Client, error) {
	debug := os.Getenv("GIN_MODE") == "debug"
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Logger:    &estransport.TextLogger{Output: os.Stdout, EnableRequestBody: debug, EnableResponseBody: debug},
		Transport: &tracing.ClientTransport{},
	})
	if err != nil {
		return nil, err
	}
	ActiveESClient = client
	return client, nil
}

// Index writes doc under id, replacing the previous version of the document.
func Index(ctx context.Context, index string, id string, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	res, err := esapi.IndexRequest{Index: index, DocumentID: id, Body: bytes.NewReader(body)}.Do(ctx, ActiveESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if err := checkResponse(res); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"index": index, "id": id}).Debug("document indexed")
	return nil
}

func Search(ctx context.Context, index string, query interface{}) (*SearchResult, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	res, err := ActiveESClient.Search(
		ActiveESClient.Search.WithContext(ctx),
		ActiveESClient.Search.WithIndex(index),
		ActiveESClient.Search.WithBody(bytes.NewReader(body)),
		ActiveESClient.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if err := checkResponse(res); err != nil {
		return nil, err
	}

	reply := struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string          `json:"_id"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}{}
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return nil, err
	}
	r := SearchResult{Total: reply.Hits.Total.Value, Hits: make([]Hit, 0, len(reply.Hits.Hits))}
	for _, h := range reply.Hits.Hits {
		r.Hits = append(r.Hits, Hit{ID: h.ID, Source: h.Source})
	}
	return &r, nil
}

func checkResponse(res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	reply := struct {
		Error struct {
			Reason string `json:"reason"`
		} `json:"error"`
	}{}
	// error bodies are not always objects
	_ = json.NewDecoder(res.Body).Decode(&reply)
	return &ResponseError{Status: res.Status(), Reason: reply.Error.Reason}
}
