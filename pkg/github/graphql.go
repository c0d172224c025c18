package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	maxQuerySize        = 100000
	maxGraphQLVarLength = 10000
)

const markReadyForReviewMutation = `mutation($pullRequestId: ID!) {
  markPullRequestReadyForReview(input: {pullRequestId: $pullRequestId}) {
    pullRequest {
      isDraft
    }
  }
}`

// graphQLError is a single entry of a GraphQL "errors" array.
type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// MakeGraphQLRequest executes a GraphQL query or mutation and returns the "data" object.
// GraphQL requests are POSTs and are not retried.
func (c *Client) MakeGraphQLRequest(ctx context.Context, query string, variables map[string]any) (map[string]any, error) {
	if err := validateGraphQLVariables(variables); err != nil {
		return nil, fmt.Errorf("invalid GraphQL variables: %w", err)
	}
	if len(query) > maxQuerySize {
		return nil, fmt.Errorf("GraphQL query too large: %d chars (max %d)", len(query), maxQuerySize)
	}

	queryType := extractGraphQLOperation(query)
	slog.InfoContext(ctx, "Executing GraphQL request", "component", "graphql", "type", queryType, "size", len(query))

	payload := map[string]any{
		"query":     query,
		"variables": variables,
	}

	start := time.Now()
	var result struct {
		Data   map[string]any `json:"data"`
		Errors []graphQLError `json:"errors"`
	}
	if err := c.sendJSONURL(ctx, http.MethodPost, graphQLURL(c.baseURL), payload, &result); err != nil {
		return nil, fmt.Errorf("graphql %s: %w", queryType, err)
	}
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Message)
		}
		slog.ErrorContext(ctx, "GraphQL request returned errors", "component", "graphql", "type", queryType, "errors", msgs)
		return nil, fmt.Errorf("graphql errors: %s", strings.Join(msgs, "; "))
	}

	slog.InfoContext(ctx, "GraphQL request completed", "component", "graphql", "type", queryType, "duration", time.Since(start))
	return result.Data, nil
}

// MarkReadyForReview converts a draft pull request, identified by its GraphQL node ID,
// into one that is ready for review.
func (c *Client) MarkReadyForReview(ctx context.Context, nodeID string) error {
	if nodeID == "" {
		return errors.New("pull request node ID is required")
	}
	if _, err := c.MakeGraphQLRequest(ctx, markReadyForReviewMutation, map[string]any{"pullRequestId": nodeID}); err != nil {
		return fmt.Errorf("marking %s ready for review: %w", nodeID, err)
	}
	return nil
}

// graphQLURL derives the GraphQL endpoint from the REST base URL. GitHub Enterprise
// serves REST under /api/v3 and GraphQL under /api/graphql.
func graphQLURL(baseURL string) string {
	if base, ok := strings.CutSuffix(baseURL, "/api/v3"); ok {
		return base + "/api/graphql"
	}
	return baseURL + "/graphql"
}

// validateGraphQLVariables validates GraphQL variables to prevent injection.
func validateGraphQLVariables(variables map[string]any) error {
	for key, value := range variables {
		if strings.ContainsAny(key, "{}[]\"'\n\r\t") {
			return fmt.Errorf("invalid character in variable key: %s", key)
		}
		if str, ok := value.(string); ok {
			if strings.Contains(str, "__schema") || strings.Contains(str, "__type") {
				return errors.New("introspection queries not allowed in variables")
			}
			if len(str) > maxGraphQLVarLength {
				return fmt.Errorf("variable value too long: %d chars", len(str))
			}
		}
	}
	return nil
}

// extractGraphQLOperation returns the first top-level field of a query, for logging.
func extractGraphQLOperation(query string) string {
	lines := strings.Split(strings.TrimSpace(query), "\n")
	if len(lines) < 2 {
		return "unknown-graphql"
	}
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "}") {
			continue
		}
		if idx := strings.IndexAny(line, "( {"); idx > 0 {
			return line[:idx]
		}
		return line
	}
	return "unknown-graphql"
}
